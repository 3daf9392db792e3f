package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"agent-arena/models"
)

// EntryVerifier checks a client-supplied entry-fee transaction on-chain
// before the ledger credits attempts. Satisfied by PayoutClient.
type EntryVerifier interface {
	VerifyEntryPayment(ctx context.Context, txHash, treasuryAddress string, entryFee decimal.Decimal) error
}

// EntryService is the attempt ledger: it tracks per-participant entry counts
// and remaining attempts, gating message submission.
type EntryService struct {
	DB       *gorm.DB
	Verifier EntryVerifier
}

func NewEntryService(db *gorm.DB, verifier EntryVerifier) *EntryService {
	return &EntryService{DB: db, Verifier: verifier}
}

// EnterTournament credits one entry: verifies the fee transaction, enforces
// the participant cap, and adds attempts_per_entry attempts. A returning
// address accumulates attempts; current_participants counts entry slots
// used, so it increments on every paid entry.
func (s *EntryService) EnterTournament(c *fiber.Ctx) error {
	type Req struct {
		UserAddress     string `json:"user_address"`
		TransactionHash string `json:"transaction_hash"`
	}

	tournamentID := c.Params("id")
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if req.UserAddress == "" || req.TransactionHash == "" {
		return c.Status(400).JSON(fiber.Map{"error": "user_address and transaction_hash are required"})
	}
	address := strings.ToLower(req.UserAddress)

	var tournament models.Tournament
	if err := s.DB.First(&tournament, "id = ?", tournamentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "tournament not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error fetching tournament"})
	}
	if tournament.Status == models.StatusCompleted {
		return c.Status(400).JSON(fiber.Map{"error": "tournament is completed"})
	}

	// The original trusted the hash as-is; verifying it against the gateway
	// is a deliberate hardening step.
	if err := s.Verifier.VerifyEntryPayment(c.Context(), req.TransactionHash, tournament.TreasuryAddress, tournament.EntryFee); err != nil {
		log.Printf("[Entry] tournament %s: rejected entry from %s: %v", tournamentID, address, err)
		return c.Status(402).JSON(fiber.Map{"error": "entry fee transaction could not be verified", "details": err.Error()})
	}

	var attemptsLeft int
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var locked models.Tournament
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&locked, "id = ?", tournamentID).Error; err != nil {
			return fmt.Errorf("failed to lock tournament: %w", err)
		}
		if locked.PrizesDistributed {
			return ErrTournamentClosed
		}
		if locked.MaxParticipants > 0 && locked.CurrentParticipants >= locked.MaxParticipants {
			return ErrTournamentFull
		}

		attemptsPerEntry := locked.AttemptsPerEntry
		if attemptsPerEntry <= 0 {
			attemptsPerEntry = 5
		}

		var participant models.Participant
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("tournament_id = ? AND address = ?", tournamentID, address).
			First(&participant).Error
		switch {
		case err == nil:
			participant.AttemptsLeft += attemptsPerEntry
			if err := tx.Save(&participant).Error; err != nil {
				return fmt.Errorf("failed to update participant: %w", err)
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			participant = models.Participant{
				ID:           uuid.NewString(),
				TournamentID: tournamentID,
				Address:      address,
				AttemptsLeft: attemptsPerEntry,
			}
			if err := tx.Create(&participant).Error; err != nil {
				return fmt.Errorf("failed to create participant: %w", err)
			}
		default:
			return fmt.Errorf("failed to fetch participant: %w", err)
		}

		entry := models.EntryTransaction{
			ID:            uuid.NewString(),
			ParticipantID: participant.ID,
			TournamentID:  tournamentID,
			TxHash:        req.TransactionHash,
			Amount:        locked.EntryFee,
		}
		if err := tx.Create(&entry).Error; err != nil {
			// Unique index on tx_hash rejects replaying the same payment.
			return fmt.Errorf("entry transaction already used: %w", err)
		}

		if err := tx.Model(&models.Tournament{}).
			Where("id = ?", tournamentID).
			Update("current_participants", gorm.Expr("current_participants + 1")).Error; err != nil {
			return fmt.Errorf("failed to increment participant count: %w", err)
		}

		attemptsLeft = participant.AttemptsLeft
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrTournamentFull) {
			return c.Status(403).JSON(fiber.Map{"error": "tournament is full"})
		}
		if errors.Is(err, ErrTournamentClosed) {
			return c.Status(400).JSON(fiber.Map{"error": "tournament is completed"})
		}
		log.Printf("[Entry] tournament %s: entry failed for %s: %v", tournamentID, address, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to enter tournament"})
	}

	log.Printf("[Entry] tournament %s: %s entered, %d attempt(s) left", tournamentID, address, attemptsLeft)
	return c.JSON(fiber.Map{"attempts_left": attemptsLeft})
}

// ConsumeAttempt decrements a participant's attempts by exactly one inside
// the caller's transaction, locking the row so two concurrent chat
// submissions cannot both spend the last attempt. attempts_left never goes
// below zero.
func ConsumeAttempt(tx *gorm.DB, tournamentID, address string) (*models.Participant, error) {
	var participant models.Participant
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tournament_id = ? AND address = ?", tournamentID, strings.ToLower(address)).
		First(&participant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s has not entered tournament %s", ErrNoAttemptsLeft, address, tournamentID)
		}
		return nil, fmt.Errorf("failed to fetch participant: %w", err)
	}
	if participant.AttemptsLeft <= 0 {
		return nil, ErrNoAttemptsLeft
	}
	participant.AttemptsLeft--
	if err := tx.Save(&participant).Error; err != nil {
		return nil, fmt.Errorf("failed to consume attempt: %w", err)
	}
	return &participant, nil
}
