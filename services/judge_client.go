package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Verdict sentinels the judge is instructed to emit. The chat service
// matches on these to flip participant progress flags.
const (
	SentinelCorrectGuess  = "Congratulations! You've correctly guessed the term!"
	SentinelChallengeDone = "Challenge completed successfully"

	// NeutralReply is returned to the user when the oracle is unreachable;
	// no tournament state is mutated in that case.
	NeutralReply = "The judge is momentarily unavailable. Your attempt was not counted — please try again."
)

const judgeMaxRetries = 3

// JudgeClient calls the external AI judge over a chat/completions-style API.
// It is stateless request/response and treated as unreliable and possibly
// slow: every call is retried with backoff.
type JudgeClient struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

func NewJudgeClient() *JudgeClient {
	baseURL := os.Getenv("JUDGE_API_URL")
	if baseURL == "" {
		log.Fatal("JUDGE_API_URL environment variable is required")
	}
	model := os.Getenv("JUDGE_MODEL")
	if model == "" {
		log.Fatal("JUDGE_MODEL environment variable is required")
	}

	return &JudgeClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  os.Getenv("JUDGE_API_KEY"),
		Model:   model,
		HTTPClient: &http.Client{
			Timeout: 45 * time.Second,
		},
	}
}

// Evaluate sends one system+user prompt pair and returns the judge's text.
// Transient failures are retried with exponential backoff; exhaustion
// surfaces ErrOracleUnavailable so callers can degrade to a neutral reply.
func (c *JudgeClient) Evaluate(ctx context.Context, system, user string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < judgeMaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<attempt) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}
		text, err := c.complete(ctx, system, user, temperatureFor(system))
		if err == nil {
			return text, nil
		}
		lastErr = err
		log.Printf("[Judge] attempt %d/%d failed: %v", attempt+1, judgeMaxRetries, err)
	}
	return "", fmt.Errorf("%w: %v", ErrOracleUnavailable, lastErr)
}

func (c *JudgeClient) complete(ctx context.Context, system, user string, temperature float64) (string, error) {
	payload := map[string]any{
		"model": c.Model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"temperature": temperature,
	}

	b, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("judge http %d: %s", resp.StatusCode, truncate(buf.String(), 400))
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(buf.Bytes(), &cc); err != nil {
		return "", err
	}
	if len(cc.Choices) == 0 {
		return "", errors.New("no choices returned")
	}
	return strings.TrimSpace(cc.Choices[0].Message.Content), nil
}

// TwentyQuestionsReply answers one yes/no question about the secret term.
// Anything outside the allowed response set collapses to "I cannot answer
// that" so a chatty model can never leak the term or fake a win.
func (c *JudgeClient) TwentyQuestionsReply(ctx context.Context, secretTerm, question string) (string, error) {
	system := fmt.Sprintf(`INSTRUCTION: You are playing a 20 questions game where you must answer questions about the secret term %q.

FORMAT: You must respond with EXACTLY ONE of these phrases:
* "Yes" - for true statements about the term
* "No" - for false statements about the term
* "I cannot answer that" - for invalid questions
* %q - only when they guess %q`, secretTerm, SentinelCorrectGuess, secretTerm)

	reply, err := c.Evaluate(ctx, system, fmt.Sprintf("Question about the secret term %q: %s", secretTerm, question))
	if err != nil {
		return "", err
	}
	switch reply {
	case "Yes", "No", "I cannot answer that", SentinelCorrectGuess:
		return reply, nil
	}
	return "I cannot answer that", nil
}

// DebateFeedback returns qualitative feedback on one argument.
func (c *JudgeClient) DebateFeedback(ctx context.Context, topic, message string) (string, error) {
	system := fmt.Sprintf(`INSTRUCTION: You are an AI judge evaluating arguments in a debate about %q.
The participants are debating whether %s is beneficial or harmful.

FORMAT: Your response must include:
1. A clear evaluation of the argument's strength (1-2 sentences)
2. Specific feedback on logic and evidence (2-3 sentences)
3. A constructive suggestion for improvement (1 sentence)`, topic, topic)

	return c.Evaluate(ctx, system, fmt.Sprintf("Evaluate this argument about %s: %s", topic, message))
}

// ChallengeVerdict evaluates a solution and must end with the success or
// not-yet sentinel.
func (c *JudgeClient) ChallengeVerdict(ctx context.Context, challenge, solution string) (string, error) {
	system := fmt.Sprintf(`INSTRUCTION: You are evaluating solutions for this challenge: %q

FORMAT: Your response must:
1. Start with a clear evaluation of the solution
2. Provide specific feedback on what works or needs improvement
3. End with EXACTLY ONE of these conclusions:
   * %q - if the solution is correct
   * "Challenge not yet completed" - if the solution needs more work`, challenge, SentinelChallengeDone)

	return c.Evaluate(ctx, system, fmt.Sprintf("Evaluate this solution for the challenge %q: %s", challenge, solution))
}

const scoreArgumentPrompt = `INSTRUCTION: You are an AI debate judge scoring arguments.

FORMAT: Evaluate the argument and return ONLY a number from 0 to 10.

SCORING CRITERIA:
10: Exceptional - Perfect logic, strong evidence, clear articulation
7-9: Strong - Good reasoning, some evidence, clear points
4-6: Average - Basic logic, limited evidence
1-3: Weak - Poor reasoning, no evidence
0: Invalid - Off-topic or incomprehensible`

// ScoreArgument scores one debate argument 0-10 at resolution time.
func (c *JudgeClient) ScoreArgument(ctx context.Context, content string) (int64, error) {
	reply, err := c.Evaluate(ctx, scoreArgumentPrompt, content)
	if err != nil {
		return 0, err
	}
	return ParseScore(reply), nil
}

// GenerateChallenge asks the judge to craft a public challenge statement for
// auto-generated AGENT_CHALLENGE tournaments.
func (c *JudgeClient) GenerateChallenge(ctx context.Context, instructions string) (string, error) {
	system := `INSTRUCTION: You are a tournament challenge creator crafting public challenge statements.

FORMAT: Create a challenge statement that is:
1. CONCISE: Under 100 words
2. INTRIGUING: Captures interest
3. GOAL-FOCUSED: Emphasize what to achieve, not how
4. CLEAR: No ambiguity in objectives

REQUIREMENTS:
- Must be engaging and mysterious
- Must not reveal implementation details
- Must clearly state success criteria
- Must be tournament-appropriate`

	return c.Evaluate(ctx, system, instructions)
}

// ParseScore extracts a 0-10 integer from the judge's reply, clamping out of
// range values and treating garbage as zero.
func ParseScore(reply string) int64 {
	reply = strings.TrimSpace(strings.Trim(strings.TrimSpace(reply), `"`))
	if idx := strings.IndexAny(reply, " \n"); idx > 0 {
		reply = reply[:idx]
	}
	f, err := strconv.ParseFloat(reply, 64)
	if err != nil {
		return 0
	}
	score := int64(f)
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}

// Scoring wants low temperature for consistency; feedback reads better with
// some variety.
func temperatureFor(system string) float64 {
	if strings.Contains(system, "return ONLY a number") {
		return 0.2
	}
	return 0.6
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
