package services

import (
	"context"
	"fmt"
	"sort"

	"agent-arena/models"
)

// ArgumentScorer scores one debate argument 0-10. Satisfied by JudgeClient.
type ArgumentScorer interface {
	ScoreArgument(ctx context.Context, content string) (int64, error)
}

// ResolveWinners inspects the tournament's message history and participant
// records and returns winner addresses ordered best-first, capped at the
// mode's winner limit. For DEBATE_ARENA it also returns the per-address score
// totals so settlement can persist them; the map is nil for other modes.
func ResolveWinners(ctx context.Context, t *models.Tournament, scorer ArgumentScorer) ([]string, map[string]int64, error) {
	switch t.Mode {
	case models.ModeAgentChallenge:
		return resolveChallengeWinner(t), nil, nil
	case models.ModeTwentyQuestions:
		return resolveTwentyQuestionsWinners(t), nil, nil
	case models.ModeDebateArena:
		winners, scores, err := resolveDebateWinners(ctx, t, scorer)
		return winners, scores, err
	default:
		_, err := models.DescribeMode(t.Mode)
		return nil, nil, err
	}
}

// First participant that completed the challenge wins, at most one.
func resolveChallengeWinner(t *models.Tournament) []string {
	for _, p := range t.Participants {
		if p.HasCompleted {
			return []string{p.Address}
		}
	}
	return nil
}

// Correct guessers ranked by how few questions they needed; ties go to
// whoever guessed correctly first. Top 3 get paid.
func resolveTwentyQuestionsWinners(t *models.Tournament) []string {
	var candidates []models.Participant
	for _, p := range t.Participants {
		if p.HasGuessedCorrect {
			candidates = append(candidates, p)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].GuessCount != candidates[j].GuessCount {
			return candidates[i].GuessCount < candidates[j].GuessCount
		}
		ci, cj := candidates[i].CorrectAt, candidates[j].CorrectAt
		if ci != nil && cj != nil {
			return ci.Before(*cj)
		}
		return cj == nil && ci != nil
	})

	winners := make([]string, 0, 3)
	for _, p := range candidates {
		winners = append(winners, p.Address)
		if len(winners) == 3 {
			break
		}
	}
	return winners
}

// Every user-authored message is scored by the judge oracle and totals are
// summed per sender. Zero totals are dropped; top 5 by total win. A scoring
// failure aborts resolution: an oracle outage must not zero the field and
// turn a funded debate into a winnerless one.
func resolveDebateWinners(ctx context.Context, t *models.Tournament, scorer ArgumentScorer) ([]string, map[string]int64, error) {
	totals := make(map[string]int64)
	var order []string

	for _, m := range t.Messages {
		if m.Role != models.RoleUser {
			continue
		}
		if _, seen := totals[m.SenderAddress]; !seen {
			order = append(order, m.SenderAddress)
		}
		score, err := scorer.ScoreArgument(ctx, m.Content)
		if err != nil {
			return nil, nil, fmt.Errorf("scoring message from %s in tournament %s: %w", m.SenderAddress, t.ID, err)
		}
		totals[m.SenderAddress] += score
	}

	sort.SliceStable(order, func(i, j int) bool {
		return totals[order[i]] > totals[order[j]]
	})

	winners := make([]string, 0, 5)
	for _, addr := range order {
		if totals[addr] <= 0 {
			continue
		}
		winners = append(winners, addr)
		if len(winners) == 5 {
			break
		}
	}
	return winners, totals, nil
}
