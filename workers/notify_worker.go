package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"gorm.io/gorm"

	"agent-arena/models"
	"agent-arena/utils"
)

// NotifyClient delivers settlement webhooks for tournaments whose prizes
// have been paid out but whose notification has not been acknowledged yet.
type NotifyClient struct {
	WebhookURL string
	Token      string
	HTTPClient *http.Client
	DB         *gorm.DB
}

func NewNotifyClient(db *gorm.DB) *NotifyClient {
	webhookURL := os.Getenv("SETTLEMENT_WEBHOOK_URL")
	if webhookURL == "" {
		log.Fatal("SETTLEMENT_WEBHOOK_URL environment variable is required")
	}
	token := os.Getenv("SETTLEMENT_WEBHOOK_TOKEN")

	return &NotifyClient{
		WebhookURL: webhookURL,
		Token:      token,
		DB:         db,
		HTTPClient: utils.HTTPClient,
	}
}

// sendSettlementNotice POSTs the final standings for one tournament.
func (c *NotifyClient) sendSettlementNotice(ctx context.Context, t models.Tournament, winners []models.TournamentWinner) error {
	payload, err := json.Marshal(map[string]any{
		"tournament_id": t.ID,
		"name":          t.Name,
		"mode":          t.Mode,
		"settled_at":    t.SettledAt,
		"winners":       winners,
	})
	if err != nil {
		return fmt.Errorf("failed to encode notice: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("X-Service-Token", c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// PollSettlements scans for settled-but-unnotified tournaments and delivers
// their notices. notified_at is only set after a 2xx response, so a failed
// delivery is retried on the next tick.
func PollSettlements(ctx context.Context, client *NotifyClient, pollInterval time.Duration) {
	log.Println("Starting settlement notification polling...")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Settlement notification polling stopped.")
			return
		case <-ticker.C:
			var tournaments []models.Tournament
			err := client.DB.
				Preload("Winners", func(db *gorm.DB) *gorm.DB {
					return db.Order("rank ASC")
				}).
				Where("prizes_distributed = ? AND notified_at IS NULL", true).
				Find(&tournaments).Error
			if err != nil {
				log.Printf("[Notify] DB error fetching settled tournaments: %v", err)
				continue
			}
			if len(tournaments) == 0 {
				continue
			}

			for _, t := range tournaments {
				if err := client.sendSettlementNotice(ctx, t, t.Winners); err != nil {
					log.Printf("[Notify] Failed to notify for tournament %s: %v", t.ID, err)
					continue
				}
				now := time.Now()
				if err := client.DB.Model(&models.Tournament{}).
					Where("id = ?", t.ID).
					Update("notified_at", now).Error; err != nil {
					// Worst case the webhook fires twice; receivers key on
					// tournament_id.
					log.Printf("[Notify] Failed to mark tournament %s notified: %v", t.ID, err)
					continue
				}
				log.Printf("[Notify] Delivered settlement notice for tournament %s", t.ID)
			}
		}
	}
}
