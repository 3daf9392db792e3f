package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"agent-arena/models"
)

// mapScorer returns a fixed score per message content.
type mapScorer struct {
	scores map[string]int64
	errOn  string
}

func (m *mapScorer) ScoreArgument(_ context.Context, content string) (int64, error) {
	if m.errOn != "" && content == m.errOn {
		return 0, fmt.Errorf("%w: judge offline", ErrOracleUnavailable)
	}
	return m.scores[content], nil
}

func ts(minute int) *time.Time {
	t := time.Date(2026, 8, 1, 12, minute, 0, 0, time.UTC)
	return &t
}

func TestResolveChallengeWinner(t *testing.T) {
	tournament := &models.Tournament{
		Mode: models.ModeAgentChallenge,
		Participants: []models.Participant{
			{Address: "0xaaa", HasCompleted: false},
			{Address: "0xbbb", HasCompleted: true},
			{Address: "0xccc", HasCompleted: true},
		},
	}
	winners, scores, err := ResolveWinners(context.Background(), tournament, nil)
	if err != nil {
		t.Fatalf("ResolveWinners: %v", err)
	}
	if scores != nil {
		t.Error("challenge mode should not return debate scores")
	}
	if len(winners) != 1 || winners[0] != "0xbbb" {
		t.Errorf("got winners %v, want [0xbbb]", winners)
	}
}

func TestResolveChallengeNoSolver(t *testing.T) {
	tournament := &models.Tournament{
		Mode:         models.ModeAgentChallenge,
		Participants: []models.Participant{{Address: "0xaaa"}},
	}
	winners, _, err := ResolveWinners(context.Background(), tournament, nil)
	if err != nil {
		t.Fatalf("ResolveWinners: %v", err)
	}
	if len(winners) != 0 {
		t.Errorf("got winners %v, want none", winners)
	}
}

func TestResolveTwentyQuestionsRanking(t *testing.T) {
	tournament := &models.Tournament{
		Mode: models.ModeTwentyQuestions,
		Participants: []models.Participant{
			{Address: "0xslow", HasGuessedCorrect: true, GuessCount: 12, CorrectAt: ts(5)},
			{Address: "0xnever", HasGuessedCorrect: false, GuessCount: 20},
			{Address: "0xfast", HasGuessedCorrect: true, GuessCount: 3, CorrectAt: ts(9)},
			{Address: "0xlate", HasGuessedCorrect: true, GuessCount: 12, CorrectAt: ts(7)},
			{Address: "0xfourth", HasGuessedCorrect: true, GuessCount: 15, CorrectAt: ts(2)},
		},
	}
	winners, _, err := ResolveWinners(context.Background(), tournament, nil)
	if err != nil {
		t.Fatalf("ResolveWinners: %v", err)
	}
	// Fewest questions first; the 12-question tie breaks on earlier correct
	// guess; the 15-question guesser falls outside the top 3.
	want := []string{"0xfast", "0xslow", "0xlate"}
	if len(winners) != len(want) {
		t.Fatalf("got %d winners %v, want %v", len(winners), winners, want)
	}
	for i := range want {
		if winners[i] != want[i] {
			t.Errorf("rank %d = %s, want %s", i+1, winners[i], want[i])
		}
	}
}

func TestResolveDebateWinners(t *testing.T) {
	tournament := &models.Tournament{
		ID:   "t1",
		Mode: models.ModeDebateArena,
		Messages: []models.ChatMessage{
			{Role: models.RoleUser, SenderAddress: "0xaaa", Content: "weak"},
			{Role: models.RoleAssistant, SenderAddress: "judge", Content: "feedback"},
			{Role: models.RoleUser, SenderAddress: "0xbbb", Content: "strong"},
			{Role: models.RoleUser, SenderAddress: "0xaaa", Content: "strong"},
			{Role: models.RoleUser, SenderAddress: "0xccc", Content: "offtopic"},
		},
	}
	scorer := &mapScorer{scores: map[string]int64{"weak": 2, "strong": 8, "offtopic": 0}}

	winners, scores, err := ResolveWinners(context.Background(), tournament, scorer)
	if err != nil {
		t.Fatalf("ResolveWinners: %v", err)
	}
	// 0xaaa totals 10, 0xbbb totals 8, 0xccc totals 0 and is dropped.
	if len(winners) != 2 || winners[0] != "0xaaa" || winners[1] != "0xbbb" {
		t.Errorf("got winners %v, want [0xaaa 0xbbb]", winners)
	}
	if scores["0xaaa"] != 10 || scores["0xbbb"] != 8 || scores["0xccc"] != 0 {
		t.Errorf("got scores %v", scores)
	}
}

// An oracle outage during scoring must abort resolution rather than score
// the field zero and declare a funded debate winnerless.
func TestResolveDebateScoringFailureAborts(t *testing.T) {
	tournament := &models.Tournament{
		ID:   "t1",
		Mode: models.ModeDebateArena,
		Messages: []models.ChatMessage{
			{Role: models.RoleUser, SenderAddress: "0xaaa", Content: "unscorable"},
			{Role: models.RoleUser, SenderAddress: "0xbbb", Content: "fine"},
		},
	}
	scorer := &mapScorer{scores: map[string]int64{"fine": 5}, errOn: "unscorable"}

	winners, scores, err := ResolveWinners(context.Background(), tournament, scorer)
	if !errors.Is(err, ErrOracleUnavailable) {
		t.Fatalf("got %v, want ErrOracleUnavailable", err)
	}
	if winners != nil || scores != nil {
		t.Errorf("aborted resolution returned winners=%v scores=%v, want none", winners, scores)
	}
}

func TestResolveDebateCapsAtFive(t *testing.T) {
	tournament := &models.Tournament{ID: "t1", Mode: models.ModeDebateArena}
	addrs := []string{"0x1", "0x2", "0x3", "0x4", "0x5", "0x6", "0x7"}
	scores := map[string]int64{}
	for i, addr := range addrs {
		content := addr + "-arg"
		tournament.Messages = append(tournament.Messages, models.ChatMessage{
			Role: models.RoleUser, SenderAddress: addr, Content: content,
		})
		scores[content] = int64(10 - i)
	}

	winners, _, err := ResolveWinners(context.Background(), tournament, &mapScorer{scores: scores})
	if err != nil {
		t.Fatalf("ResolveWinners: %v", err)
	}
	if len(winners) != 5 {
		t.Fatalf("got %d winners, want 5", len(winners))
	}
	for i := 0; i < 5; i++ {
		if winners[i] != addrs[i] {
			t.Errorf("rank %d = %s, want %s", i+1, winners[i], addrs[i])
		}
	}
}

func TestResolveWinnersUnknownMode(t *testing.T) {
	tournament := &models.Tournament{Mode: "BINGO"}
	if _, _, err := ResolveWinners(context.Background(), tournament, nil); !errors.Is(err, models.ErrUnknownMode) {
		t.Errorf("got %v, want ErrUnknownMode", err)
	}
}
