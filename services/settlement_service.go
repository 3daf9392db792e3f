package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"agent-arena/models"
	"agent-arena/utils"
)

// SettlementResult reports the outcome of one settle call.
type SettlementResult struct {
	TournamentID   string                    `json:"tournament_id"`
	AlreadySettled bool                      `json:"already_settled"`
	Winners        []models.TournamentWinner `json:"winners"`
	Distributions  []PrizeShare              `json:"distributions"`
}

// SettlementService is the only component that mutates prizes_distributed,
// winners, and status=COMPLETED, and the only one that invokes the payout
// gateway.
type SettlementService struct {
	DB         *gorm.DB
	Judge      ArgumentScorer
	Gateway    PayoutGateway
	Archive    *utils.ArchiveClient
	ReserveBps int64

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewSettlementService(db *gorm.DB, judge ArgumentScorer, gateway PayoutGateway, archive *utils.ArchiveClient, reserveBps int64) *SettlementService {
	return &SettlementService{
		DB:         db,
		Judge:      judge,
		Gateway:    gateway,
		Archive:    archive,
		ReserveBps: reserveBps,
		locks:      make(map[string]*sync.Mutex),
	}
}

// lockFor returns the per-tournament mutex serializing settlement runs.
func (s *SettlementService) lockFor(tournamentID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[tournamentID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[tournamentID] = l
	}
	return l
}

// forgetLock drops the mutex for a settled tournament. Settlement on a
// settled tournament short-circuits on prizes_distributed, so losing the
// lock identity at that point is harmless.
func (s *SettlementService) forgetLock(tournamentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, tournamentID)
}

// Settle resolves winners, computes shares, and drives the payouts for one
// tournament. Calling it on an already-settled tournament issues zero
// transfers and returns the recorded winners.
//
// Winners are resolved at most once: the full distribution plan (address,
// rank, amount, idempotency key per row) is committed before the first
// transfer is issued. A run that fails mid-loop leaves paid rows carrying
// their transaction hash and prizes_distributed false; the retry loads the
// persisted plan instead of re-resolving, so a judge that would order the
// field differently on a second scoring pass cannot redirect or double-pay
// a rank.
func (s *SettlementService) Settle(ctx context.Context, tournamentID string) (*SettlementResult, error) {
	lock := s.lockFor(tournamentID)
	if !lock.TryLock() {
		return nil, fmt.Errorf("%w: tournament %s", ErrSettlementBusy, tournamentID)
	}
	defer lock.Unlock()

	var tournament models.Tournament
	err := s.DB.
		Preload("Participants").
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("timestamp ASC")
		}).
		Preload("Winners", func(db *gorm.DB) *gorm.DB {
			return db.Order("rank ASC")
		}).
		First(&tournament, "id = ?", tournamentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTournamentNotFound, tournamentID)
		}
		return nil, fmt.Errorf("failed to load tournament %s: %w", tournamentID, err)
	}

	if tournament.PrizesDistributed {
		log.Printf("[Settlement] tournament %s already settled, returning prior result", tournamentID)
		s.forgetLock(tournamentID)
		return &SettlementResult{
			TournamentID:   tournamentID,
			AlreadySettled: true,
			Winners:        tournament.Winners,
		}, nil
	}

	plan := tournament.Winners
	if len(plan) == 0 {
		winners, debateScores, err := ResolveWinners(ctx, &tournament, s.Judge)
		if err != nil {
			return nil, fmt.Errorf("winner resolution failed for tournament %s: %w", tournamentID, err)
		}
		if len(winners) == 0 {
			// No payout attempted, tournament stays un-completed.
			return nil, fmt.Errorf("%w: tournament %s", ErrNoWinners, tournamentID)
		}

		pool := tournament.EntryFee.Mul(decimal.NewFromInt(int64(tournament.CurrentParticipants)))
		distributable := DistributablePrize(pool, s.ReserveBps)
		shares, err := CalculatePrizes(tournament.Mode, winners, distributable)
		if err != nil {
			return nil, fmt.Errorf("prize calculation failed for tournament %s: %w", tournamentID, err)
		}

		log.Printf("[Settlement] tournament %s: pool=%s distributable=%s winners=%d",
			tournamentID, pool, distributable, len(shares))

		err = s.DB.Transaction(func(tx *gorm.DB) error {
			for i, share := range shares {
				w := models.TournamentWinner{
					ID:             uuid.NewString(),
					TournamentID:   tournamentID,
					Address:        share.Address,
					Rank:           i + 1,
					Prize:          share.Amount,
					IdempotencyKey: fmt.Sprintf("%s:%s:%d", tournamentID, share.Address, i+1),
				}
				if err := tx.Create(&w).Error; err != nil {
					return err
				}
				plan = append(plan, w)
			}
			return persistDebateScores(tx, tournamentID, debateScores)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to persist distribution plan for tournament %s: %w", tournamentID, err)
		}
	} else {
		log.Printf("[Settlement] tournament %s: resuming persisted plan, %d rank(s)", tournamentID, len(plan))
	}

	paid, err := executeTransfers(ctx, &tournament, plan, s.Gateway, func(w models.TournamentWinner) error {
		return s.DB.Model(&models.TournamentWinner{}).
			Where("id = ?", w.ID).
			Update("tx_hash", w.TxHash).Error
	})
	if err != nil {
		return nil, err
	}

	// Conditional final write: only the run that finds the guard still false
	// gets to complete the tournament.
	now := time.Now()
	res := s.DB.Model(&models.Tournament{}).
		Where("id = ? AND prizes_distributed = ?", tournamentID, false).
		Updates(map[string]interface{}{
			"prizes_distributed": true,
			"status":             models.StatusCompleted,
			"settled_at":         now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to mark tournament %s settled: %w", tournamentID, res.Error)
	}
	if res.RowsAffected == 0 {
		log.Printf("[Settlement] tournament %s was marked settled concurrently", tournamentID)
	}

	s.forgetLock(tournamentID)
	s.archiveTranscript(&tournament)

	shares := make([]PrizeShare, len(paid))
	for i, w := range paid {
		shares[i] = PrizeShare{Address: w.Address, Amount: w.Prize}
	}

	log.Printf("[Settlement] tournament %s settled: %d payout(s)", tournamentID, len(paid))
	return &SettlementResult{
		TournamentID:  tournamentID,
		Winners:       paid,
		Distributions: shares,
	}, nil
}

// executeTransfers issues one transfer per unpaid plan row, sequentially in
// rank order against the single treasury wallet, marking each row paid before
// the next transfer is issued. Rows already carrying a transaction hash were
// paid by a previous run and are skipped. Failure at rank i stops the loop
// and surfaces a PartialDistributionError.
func executeTransfers(ctx context.Context, t *models.Tournament, plan []models.TournamentWinner, gateway PayoutGateway, markPaid func(models.TournamentWinner) error) ([]models.TournamentWinner, error) {
	paid := make([]models.TournamentWinner, 0, len(plan))
	for _, w := range plan {
		if w.TxHash != "" {
			log.Printf("[Settlement] tournament %s: rank %d (%s) already paid in tx %s, skipping", t.ID, w.Rank, w.Address, w.TxHash)
			paid = append(paid, w)
			continue
		}

		receipt, err := gateway.Transfer(ctx, t.WalletRef, w.Address, w.Prize, w.IdempotencyKey)
		if err != nil {
			return paid, &PartialDistributionError{
				TournamentID: t.ID,
				FailedRank:   w.Rank,
				Address:      w.Address,
				Paid:         len(paid),
				Err:          err,
			}
		}

		w.TxHash = receipt.Hash
		if err := markPaid(w); err != nil {
			// The transfer landed but the record write failed. Stop here:
			// the idempotency key lets the gateway dedupe a retried
			// transfer for this rank.
			return paid, &PartialDistributionError{
				TournamentID: t.ID,
				FailedRank:   w.Rank,
				Address:      w.Address,
				Paid:         len(paid),
				Err:          fmt.Errorf("transfer confirmed (tx %s) but winner record failed: %w", receipt.Hash, err),
			}
		}
		log.Printf("[Settlement] tournament %s: paid rank %d %s -> %s (tx %s)", t.ID, w.Rank, w.Prize, w.Address, receipt.Hash)
		paid = append(paid, w)
	}
	return paid, nil
}

// persistDebateScores writes the per-sender totals alongside the distribution
// plan, in the same transaction, so the scores that produced the plan are the
// scores on record.
func persistDebateScores(tx *gorm.DB, tournamentID string, scores map[string]int64) error {
	for addr, score := range scores {
		if err := tx.Model(&models.Participant{}).
			Where("tournament_id = ? AND address = ?", tournamentID, addr).
			Update("score", score).Error; err != nil {
			return fmt.Errorf("failed to persist score for %s: %w", addr, err)
		}
	}
	return nil
}

// archiveTranscript pushes the full message history to blob storage after
// settlement commits. Best effort, never on the settlement critical path.
func (s *SettlementService) archiveTranscript(t *models.Tournament) {
	if s.Archive == nil {
		return
	}
	tournamentID := t.ID
	messages := t.Messages
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		url, err := s.Archive.StoreTranscript(ctx, tournamentID, messages)
		if err != nil {
			log.Printf("[Settlement] transcript archive failed for tournament %s: %v", tournamentID, err)
			return
		}
		if err := s.DB.Model(&models.Tournament{}).
			Where("id = ?", tournamentID).
			Update("archive_url", url).Error; err != nil {
			log.Printf("[Settlement] failed to record archive URL for tournament %s: %v", tournamentID, err)
		}
	}()
}

// SettleTournament is the HTTP entry point for explicit settlement.
func (s *SettlementService) SettleTournament(c *fiber.Ctx) error {
	id := c.Params("id")

	result, err := s.Settle(c.Context(), id)
	if err != nil {
		var partial *PartialDistributionError
		switch {
		case errors.Is(err, ErrTournamentNotFound):
			return c.Status(404).JSON(fiber.Map{"error": "tournament not found"})
		case errors.Is(err, ErrNoWinners):
			return c.Status(400).JSON(fiber.Map{"error": "no winners found"})
		case errors.Is(err, ErrSettlementBusy):
			return c.Status(409).JSON(fiber.Map{"error": "settlement already in progress"})
		case errors.Is(err, ErrOracleUnavailable):
			return c.Status(503).JSON(fiber.Map{"error": "judge unavailable, settlement not started"})
		case errors.As(err, &partial):
			log.Printf("[Settlement] PARTIAL FAILURE tournament %s: %v", id, err)
			return c.Status(500).JSON(fiber.Map{
				"error":       "prize distribution failed partway; retry will resume from the failed rank",
				"failed_rank": partial.FailedRank,
				"address":     partial.Address,
				"paid_count":  partial.Paid,
			})
		default:
			log.Printf("[Settlement] tournament %s: %v", id, err)
			return c.Status(500).JSON(fiber.Map{"error": "settlement failed"})
		}
	}

	return c.JSON(fiber.Map{
		"message":         "tournament settled",
		"already_settled": result.AlreadySettled,
		"winners":         result.Winners,
		"distributions":   result.Distributions,
	})
}
