package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"

	"agent-arena/models"
)

// StartLifecycleScheduler runs the two time-driven transitions: PENDING
// tournaments activate at start_time, and ACTIVE debate tournaments settle
// once end_time passes. Challenge and twenty-questions tournaments end from
// chat, not from the clock.
func (s *SettlementService) StartLifecycleScheduler(ctx context.Context) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	sched.Start()

	// Every minute: activate tournaments whose start time has arrived
	_, err = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			now := time.Now()
			res := s.DB.Model(&models.Tournament{}).
				Where("status = ? AND start_time <= ?", models.StatusPending, now).
				Update("status", models.StatusActive)
			if res.Error != nil {
				log.Printf("[Scheduler] DB error activating tournaments: %v", res.Error)
				return
			}
			if res.RowsAffected > 0 {
				log.Printf("[Scheduler] Activated %d tournament(s)", res.RowsAffected)
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	// Every minute: settle expired debates
	_, err = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			var tournaments []models.Tournament
			now := time.Now()
			err := s.DB.Where(
				"mode = ? AND status = ? AND prizes_distributed = ? AND end_time IS NOT NULL AND end_time <= ?",
				models.ModeDebateArena, models.StatusActive, false, now,
			).Find(&tournaments).Error
			if err != nil {
				log.Printf("[Scheduler] DB error fetching expired debates: %v", err)
				return
			}

			for _, t := range tournaments {
				jobCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
				_, err := s.Settle(jobCtx, t.ID)
				cancel()
				switch {
				case err == nil:
					log.Printf("[Scheduler] Settled expired debate %s (%s)", t.ID, t.Name)
				case errors.Is(err, ErrOracleUnavailable):
					// Judge outage at end time. Leave the tournament open;
					// the next tick retries resolution.
					log.Printf("[Scheduler] Judge unavailable for debate %s, retrying next tick: %v", t.ID, err)
				case errors.Is(err, ErrNoWinners):
					// Resolution genuinely scored the field: nobody posted a
					// positive-scoring argument. Mark completed so the
					// tournament stops being picked up every minute.
					if dbErr := s.DB.Model(&models.Tournament{}).
						Where("id = ? AND prizes_distributed = ?", t.ID, false).
						Update("status", models.StatusCompleted).Error; dbErr != nil {
						log.Printf("[Scheduler] Failed to close winnerless debate %s: %v", t.ID, dbErr)
					} else {
						log.Printf("[Scheduler] Closed debate %s with no winners", t.ID)
					}
				case errors.Is(err, ErrSettlementBusy):
					// Another settlement run owns the lock; next tick retries.
				default:
					log.Printf("[Scheduler] Failed to settle debate %s: %v", t.ID, err)
				}
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	return sched, nil
}
