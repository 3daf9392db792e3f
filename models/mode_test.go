package models

import (
	"errors"
	"testing"
)

func TestDescribeMode(t *testing.T) {
	tests := []struct {
		mode       string
		maxWinners int
	}{
		{ModeAgentChallenge, 1},
		{ModeDebateArena, 5},
		{ModeTwentyQuestions, 3},
	}
	for _, tt := range tests {
		info, err := DescribeMode(tt.mode)
		if err != nil {
			t.Fatalf("DescribeMode(%s): %v", tt.mode, err)
		}
		if info.MaxWinners != tt.maxWinners {
			t.Errorf("%s max winners = %d, want %d", tt.mode, info.MaxWinners, tt.maxWinners)
		}
		if info.AttemptsPerEntry <= 0 {
			t.Errorf("%s attempts per entry = %d, want > 0", tt.mode, info.AttemptsPerEntry)
		}
		if info.DefaultInstruction == "" {
			t.Errorf("%s has no default instruction", tt.mode)
		}
	}
}

func TestDescribeModeUnknown(t *testing.T) {
	if _, err := DescribeMode("BINGO"); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("got %v, want ErrUnknownMode", err)
	}
	if _, err := DescribeMode(""); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("empty mode: got %v, want ErrUnknownMode", err)
	}
}

func TestAllModesCoversRegistry(t *testing.T) {
	modes := AllModes()
	if len(modes) != 3 {
		t.Fatalf("got %d modes, want 3", len(modes))
	}
	for _, want := range []string{ModeAgentChallenge, ModeDebateArena, ModeTwentyQuestions} {
		if _, ok := modes[want]; !ok {
			t.Errorf("AllModes missing %s", want)
		}
	}

	// Callers must not be able to mutate the registry through the copy.
	modes[ModeAgentChallenge] = ModeInfo{MaxWinners: 99}
	if info, _ := DescribeMode(ModeAgentChallenge); info.MaxWinners != 1 {
		t.Error("mutating the AllModes copy leaked into the registry")
	}
}
