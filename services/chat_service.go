package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"agent-arena/models"
)

// ModeJudge is the slice of the judge oracle the chat flow needs.
// Satisfied by JudgeClient.
type ModeJudge interface {
	TwentyQuestionsReply(ctx context.Context, secretTerm, question string) (string, error)
	DebateFeedback(ctx context.Context, topic, message string) (string, error)
	ChallengeVerdict(ctx context.Context, challenge, solution string) (string, error)
}

// ChatService handles participant interactions: it consumes attempts,
// appends to the message history, flips progress flags on judge verdicts,
// and triggers settlement when a terminal condition is met.
type ChatService struct {
	DB         *gorm.DB
	Judge      ModeJudge
	Settlement *SettlementService
}

func NewChatService(db *gorm.DB, judge ModeJudge, settlement *SettlementService) *ChatService {
	return &ChatService{DB: db, Judge: judge, Settlement: settlement}
}

// SubmitInteraction processes one chat message from a participant.
func (s *ChatService) SubmitInteraction(c *fiber.Ctx) error {
	type Req struct {
		UserAddress string `json:"user_address"`
		Message     string `json:"message"`
	}

	tournamentID := c.Params("id")
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if req.UserAddress == "" || strings.TrimSpace(req.Message) == "" {
		return c.Status(400).JSON(fiber.Map{"error": "user_address and message are required"})
	}
	address := strings.ToLower(req.UserAddress)

	var tournament models.Tournament
	if err := s.DB.First(&tournament, "id = ?", tournamentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "tournament not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error fetching tournament"})
	}
	if tournament.Status == models.StatusCompleted || tournament.PrizesDistributed {
		return c.Status(400).JSON(fiber.Map{"error": "tournament is completed"})
	}

	// Cheap pre-check before spending an oracle call; the authoritative
	// check happens under the row lock below.
	var participant models.Participant
	if err := s.DB.Where("tournament_id = ? AND address = ?", tournamentID, address).
		First(&participant).Error; err != nil || participant.AttemptsLeft <= 0 {
		return c.Status(403).JSON(fiber.Map{"error": "no attempts remaining"})
	}

	reply, success, err := s.evaluate(c.Context(), &tournament, req.Message)
	if err != nil {
		if errors.Is(err, ErrOracleUnavailable) {
			// Degrade without corrupting state: no attempt consumed, no
			// message appended.
			log.Printf("[Chat] tournament %s: oracle unavailable for %s: %v", tournamentID, address, err)
			return c.JSON(fiber.Map{
				"message":       NeutralReply,
				"success":       false,
				"attempts_left": participant.AttemptsLeft,
				"terminal":      false,
			})
		}
		log.Printf("[Chat] tournament %s: evaluation failed for %s: %v", tournamentID, address, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to process message"})
	}

	var attemptsLeft int
	terminal := false
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		p, err := ConsumeAttempt(tx, tournamentID, address)
		if err != nil {
			return err
		}

		switch tournament.Mode {
		case models.ModeTwentyQuestions:
			// guess_count is the number of questions asked to reach the
			// correct guess, so every accepted question counts.
			p.GuessCount++
			if success && !p.HasGuessedCorrect {
				p.HasGuessedCorrect = true
				now := time.Now()
				p.CorrectAt = &now
			}
		case models.ModeAgentChallenge:
			if success {
				p.HasCompleted = true
			}
		}
		if err := tx.Save(p).Error; err != nil {
			return err
		}

		userMsg := models.ChatMessage{
			ID:               uuid.NewString(),
			TournamentID:     tournamentID,
			Role:             models.RoleUser,
			Content:          req.Message,
			SenderAddress:    address,
			RecipientAddress: tournament.TreasuryAddress,
		}
		assistantMsg := models.ChatMessage{
			ID:               uuid.NewString(),
			TournamentID:     tournamentID,
			Role:             models.RoleAssistant,
			Content:          reply,
			SenderAddress:    tournament.TreasuryAddress,
			RecipientAddress: address,
		}
		if err := tx.Create(&userMsg).Error; err != nil {
			return err
		}
		if err := tx.Create(&assistantMsg).Error; err != nil {
			return err
		}

		attemptsLeft = p.AttemptsLeft
		terminal, err = s.isTerminal(tx, &tournament, success)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNoAttemptsLeft) {
			return c.Status(403).JSON(fiber.Map{"error": "no attempts remaining"})
		}
		log.Printf("[Chat] tournament %s: failed to store interaction from %s: %v", tournamentID, address, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to store message"})
	}

	resp := fiber.Map{
		"message":       reply,
		"success":       success,
		"attempts_left": attemptsLeft,
		"terminal":      terminal,
	}

	if terminal {
		// Settlement takes its own per-tournament lock; the chat
		// transaction has already committed.
		result, err := s.Settlement.Settle(c.Context(), tournamentID)
		if err != nil {
			// The win is recorded; settlement can be retried explicitly.
			log.Printf("[Chat] tournament %s: settlement after terminal interaction failed: %v", tournamentID, err)
		} else {
			resp["winners"] = result.Winners
		}
	}

	return c.JSON(resp)
}

// evaluate routes the message to the mode-specific judge prompt and detects
// the success sentinel in the verdict.
func (s *ChatService) evaluate(ctx context.Context, t *models.Tournament, message string) (reply string, success bool, err error) {
	switch t.Mode {
	case models.ModeTwentyQuestions:
		reply, err = s.Judge.TwentyQuestionsReply(ctx, t.SecretTerm, message)
		success = reply == SentinelCorrectGuess
	case models.ModeDebateArena:
		// Debate has no per-message win; scoring happens at resolution.
		reply, err = s.Judge.DebateFeedback(ctx, t.DebateTopic, message)
	case models.ModeAgentChallenge:
		reply, err = s.Judge.ChallengeVerdict(ctx, t.ChallengeStatement, message)
		success = strings.Contains(reply, SentinelChallengeDone)
	default:
		_, err = models.DescribeMode(t.Mode)
	}
	return reply, success, err
}

// isTerminal decides whether this interaction ended the tournament:
// AGENT_CHALLENGE on the first completed solve, TWENTY_QUESTIONS once the
// winner cap of correct guessers is reached. DEBATE_ARENA ends by schedule
// or explicit settle, never from chat.
func (s *ChatService) isTerminal(tx *gorm.DB, t *models.Tournament, success bool) (bool, error) {
	if !success {
		return false, nil
	}
	switch t.Mode {
	case models.ModeAgentChallenge:
		return true, nil
	case models.ModeTwentyQuestions:
		info, err := models.DescribeMode(t.Mode)
		if err != nil {
			return false, err
		}
		var correct int64
		if err := tx.Model(&models.Participant{}).
			Where("tournament_id = ? AND has_guessed_correct = ?", t.ID, true).
			Count(&correct).Error; err != nil {
			return false, err
		}
		return correct >= int64(info.MaxWinners), nil
	}
	return false, nil
}

// GetMessages returns the tournament's chat history in append order.
func (s *ChatService) GetMessages(c *fiber.Ctx) error {
	tournamentID := c.Params("id")
	var messages []models.ChatMessage
	if err := s.DB.Where("tournament_id = ?", tournamentID).
		Order("timestamp ASC").
		Find(&messages).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to fetch messages"})
	}
	return c.JSON(messages)
}
