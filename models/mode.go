package models

import (
	"errors"
	"fmt"
)

// Tournament modes.
const (
	ModeAgentChallenge  = "AGENT_CHALLENGE"
	ModeDebateArena     = "DEBATE_ARENA"
	ModeTwentyQuestions = "TWENTY_QUESTIONS"
)

// Winning conditions and prize split kinds, carried on the tournament record
// for display and dispatch.
const (
	WinFirstSolve = "FIRST_SOLVE"
	WinJudgeScore = "JUDGE_SCORE"
	WinQuickSolve = "QUICK_SOLVE"

	SplitWinnerTakesAll = "WINNER_TAKES_ALL"
	SplitTopFive        = "TOP_FIVE_SPLIT"
	SplitTopThree       = "TOP_THREE_SPLIT"
)

var ErrUnknownMode = errors.New("unknown tournament mode")

// ModeInfo describes one tournament mode: how it is won, how the pool is
// split, how many ranks get paid, and the judge's default instructions.
type ModeInfo struct {
	Name               string `json:"name"`
	Description        string `json:"description"`
	WinningCondition   string `json:"winning_condition"`
	PrizeSplit         string `json:"prize_split"`
	MaxWinners         int    `json:"max_winners"`
	AttemptsPerEntry   int    `json:"attempts_per_entry"`
	HasAutoOption      bool   `json:"has_auto_option"`
	DefaultInstruction string `json:"default_instructions"`
	AutoInstruction    string `json:"auto_instructions,omitempty"`
}

var modeRegistry = map[string]ModeInfo{
	ModeAgentChallenge: {
		Name:             "Agent Challenge",
		Description:      "Challenge participants with AI-generated or custom conditions. Riddles, puzzles, creative tasks.",
		WinningCondition: WinFirstSolve,
		PrizeSplit:       SplitWinnerTakesAll,
		MaxWinners:       1,
		AttemptsPerEntry: 5,
		HasAutoOption:    true,
		DefaultInstruction: `Define your own challenge and winning conditions. Examples:
1. Riddles with specific answers
2. Logic puzzles with clear solutions
3. Creative tasks with measurable completion criteria
4. Any challenge with definite win conditions`,
		AutoInstruction: `You are an AI challenge master. Your task:
1. Generate an engaging, unique challenge (riddles, puzzles, creative tasks)
2. Present it clearly to participants
3. Evaluate responses strictly against your condition
4. Only mark success when the condition is perfectly met
5. Provide helpful feedback for incorrect attempts`,
	},
	ModeDebateArena: {
		Name:             "Debate Arena",
		Description:      "Engage in intellectual discourse judged by AI personalities.",
		WinningCondition: WinJudgeScore,
		PrizeSplit:       SplitTopFive,
		MaxWinners:       5,
		AttemptsPerEntry: 5,
		DefaultInstruction: `You are a debate judge evaluating responses based on:
1. Logical reasoning (40%)
2. Evidence presentation (30%)
3. Clarity of expression (30%)
Score each response and provide brief feedback.`,
	},
	ModeTwentyQuestions: {
		Name:             "Twenty Questions",
		Description:      "Race to guess the secret through clever questioning. Fewest questions wins.",
		WinningCondition: WinQuickSolve,
		PrizeSplit:       SplitTopThree,
		MaxWinners:       3,
		AttemptsPerEntry: 5,
		DefaultInstruction: `You are hosting a 20 questions game. Rules:
1. Only yes/no questions allowed
2. Track question count per user
3. Mark success on exact answer
4. Provide clear yes/no responses`,
	},
}

// DescribeMode returns the static registry entry for a mode, or
// ErrUnknownMode for anything outside the enumerated set.
func DescribeMode(mode string) (ModeInfo, error) {
	info, ok := modeRegistry[mode]
	if !ok {
		return ModeInfo{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	return info, nil
}

// AllModes returns the registry keyed by mode constant, for the catalog
// endpoint.
func AllModes() map[string]ModeInfo {
	out := make(map[string]ModeInfo, len(modeRegistry))
	for k, v := range modeRegistry {
		out[k] = v
	}
	return out
}
