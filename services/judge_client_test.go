package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestParseScore(t *testing.T) {
	tests := []struct {
		reply string
		want  int64
	}{
		{"7", 7},
		{"  8 ", 8},
		{`"9"`, 9},
		{"6.8", 6},
		{"10", 10},
		{"15", 10},
		{"-3", 0},
		{"7 out of 10", 7},
		{"I'd say this argument rates highly", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := ParseScore(tt.reply); got != tt.want {
			t.Errorf("ParseScore(%q) = %d, want %d", tt.reply, got, tt.want)
		}
	}
}

func judgeStub(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprintf(w, `{"choices":[{"message":{"content":%q}}]}`, reply)
	}))
}

func testJudge(baseURL string) *JudgeClient {
	return &JudgeClient{
		BaseURL:    baseURL,
		Model:      "test-model",
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func TestTwentyQuestionsReplyPassesValidAnswers(t *testing.T) {
	for _, valid := range []string{"Yes", "No", "I cannot answer that", SentinelCorrectGuess} {
		srv := judgeStub(t, valid)
		c := testJudge(srv.URL)
		reply, err := c.TwentyQuestionsReply(context.Background(), "penguin", "Is it an animal?")
		srv.Close()
		if err != nil {
			t.Fatalf("TwentyQuestionsReply(%q): %v", valid, err)
		}
		if reply != valid {
			t.Errorf("got %q, want %q", reply, valid)
		}
	}
}

// A model that rambles instead of answering in the allowed set must be
// collapsed so it can never leak the term or fake a win.
func TestTwentyQuestionsReplyCollapsesInvalidAnswers(t *testing.T) {
	srv := judgeStub(t, "Well, the secret term is penguin, so yes!")
	defer srv.Close()

	c := testJudge(srv.URL)
	reply, err := c.TwentyQuestionsReply(context.Background(), "penguin", "Is it a bird?")
	if err != nil {
		t.Fatalf("TwentyQuestionsReply: %v", err)
	}
	if reply != "I cannot answer that" {
		t.Errorf("got %q, want the collapsed fallback", reply)
	}
}

func TestEvaluateExhaustionIsOracleUnavailable(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := testJudge(srv.URL)
	_, err := c.Evaluate(context.Background(), "system", "user")
	if !errors.Is(err, ErrOracleUnavailable) {
		t.Fatalf("got %v, want ErrOracleUnavailable", err)
	}
	if hits != judgeMaxRetries {
		t.Errorf("judge hit %d times, want %d retries", hits, judgeMaxRetries)
	}
}

func TestScoreArgument(t *testing.T) {
	srv := judgeStub(t, "8")
	defer srv.Close()

	c := testJudge(srv.URL)
	score, err := c.ScoreArgument(context.Background(), "a compelling argument")
	if err != nil {
		t.Fatalf("ScoreArgument: %v", err)
	}
	if score != 8 {
		t.Errorf("got %d, want 8", score)
	}
}
