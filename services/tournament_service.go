package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"agent-arena/models"
)

// WalletProvisioner creates the per-tournament treasury wallet.
// Satisfied by PayoutClient.
type WalletProvisioner interface {
	CreateWallet(ctx context.Context) (walletRef, address string, err error)
}

// ChallengeGenerator produces auto-generated challenge statements.
// Satisfied by JudgeClient.
type ChallengeGenerator interface {
	GenerateChallenge(ctx context.Context, instructions string) (string, error)
}

type TournamentService struct {
	DB         *gorm.DB
	Wallets    WalletProvisioner
	Generator  ChallengeGenerator
	ReserveBps int64
}

func NewTournamentService(db *gorm.DB, wallets WalletProvisioner, generator ChallengeGenerator, reserveBps int64) *TournamentService {
	return &TournamentService{DB: db, Wallets: wallets, Generator: generator, ReserveBps: reserveBps}
}

// CreateTournament validates mode-specific fields up front, provisions the
// treasury wallet, and stores the tournament as PENDING.
func (s *TournamentService) CreateTournament(c *fiber.Ctx) error {
	type Req struct {
		Name               string `json:"name"`
		Mode               string `json:"mode"`
		IsAutoGenerated    bool   `json:"is_auto_generated"`
		EntryFee           string `json:"entry_fee"`
		MaxParticipants    int    `json:"max_participants"`
		AgentInstructions  string `json:"agent_instructions"`
		CreatorAddress     string `json:"creator_address"`
		DurationMins       int    `json:"duration_mins"`
		DebateTopic        string `json:"debate_topic"`
		SecretTerm         string `json:"secret_term"`
		ChallengeStatement string `json:"challenge_statement"`
		StartTime          string `json:"start_time"` // RFC3339, optional
	}

	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if req.Name == "" {
		return c.Status(400).JSON(fiber.Map{"error": "name is required"})
	}

	info, err := models.DescribeMode(req.Mode)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid mode", "details": err.Error()})
	}

	// Validation errors are rejected at creation time, not discovered at
	// settlement.
	switch req.Mode {
	case models.ModeDebateArena:
		if req.DebateTopic == "" {
			return c.Status(400).JSON(fiber.Map{"error": "debate_topic is required"})
		}
	case models.ModeTwentyQuestions:
		if req.SecretTerm == "" {
			return c.Status(400).JSON(fiber.Map{"error": "secret_term is required"})
		}
	case models.ModeAgentChallenge:
		if req.ChallengeStatement == "" && !req.IsAutoGenerated {
			return c.Status(400).JSON(fiber.Map{"error": "challenge_statement is required unless is_auto_generated"})
		}
	}

	entryFee, err := decimal.NewFromString(req.EntryFee)
	if err != nil || !entryFee.IsPositive() {
		return c.Status(400).JSON(fiber.Map{"error": "entry_fee must be a positive decimal"})
	}

	startTime := time.Now()
	if req.StartTime != "" {
		startTime, err = time.Parse(time.RFC3339, req.StartTime)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid start_time (use RFC3339)"})
		}
	}
	var endTime *time.Time
	if req.Mode == models.ModeDebateArena {
		if req.DurationMins <= 0 {
			return c.Status(400).JSON(fiber.Map{"error": "duration_mins is required for debate tournaments"})
		}
		t := startTime.Add(time.Duration(req.DurationMins) * time.Minute)
		endTime = &t
	}

	instructions := req.AgentInstructions
	if instructions == "" {
		instructions = info.DefaultInstruction
		if req.Mode == models.ModeAgentChallenge && req.IsAutoGenerated {
			instructions = info.AutoInstruction
		}
	}

	// One wallet per tournament; the gateway keeps the keys.
	walletRef, treasuryAddress, err := s.Wallets.CreateWallet(c.Context())
	if err != nil {
		log.Printf("[Tournament] failed to provision treasury wallet: %v", err)
		return c.Status(502).JSON(fiber.Map{"error": "failed to provision treasury wallet"})
	}

	statement := req.ChallengeStatement
	switch req.Mode {
	case models.ModeAgentChallenge:
		if req.IsAutoGenerated {
			statement, err = s.Generator.GenerateChallenge(c.Context(), instructions)
			if err != nil {
				log.Printf("[Tournament] challenge generation failed: %v", err)
				return c.Status(502).JSON(fiber.Map{"error": "failed to generate challenge statement"})
			}
		}
	case models.ModeDebateArena:
		statement = "Debate Topic: " + req.DebateTopic + "\n\nParticipate in this structured debate. Present your arguments clearly and respond to others' points. An AI judge will evaluate responses based on logic, evidence, and argumentation quality."
	case models.ModeTwentyQuestions:
		statement = "Try to guess the secret term by asking yes/no questions. You have 20 questions to figure it out!"
	}

	tournament := &models.Tournament{
		ID:                 uuid.NewString(),
		Name:               req.Name,
		Slug:               slug.Make(req.Name),
		Mode:               req.Mode,
		Status:             models.StatusPending,
		EntryFee:           entryFee,
		MaxParticipants:    req.MaxParticipants,
		AttemptsPerEntry:   info.AttemptsPerEntry,
		SecretTerm:         req.SecretTerm,
		DebateTopic:        req.DebateTopic,
		ChallengeStatement: statement,
		IsAutoGenerated:    req.Mode == models.ModeAgentChallenge && req.IsAutoGenerated,
		AgentInstructions:  instructions,
		WinningCondition:   info.WinningCondition,
		PrizeSplit:         info.PrizeSplit,
		CreatorAddress:     strings.ToLower(req.CreatorAddress),
		TreasuryAddress:    treasuryAddress,
		WalletRef:          walletRef,
		StartTime:          startTime,
		EndTime:            endTime,
	}

	if err := s.DB.Create(tournament).Error; err != nil {
		log.Printf("[Tournament] DB insert failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "DB insert failed"})
	}

	return c.Status(201).JSON(tournament)
}

func (s *TournamentService) GetAllTournaments(c *fiber.Ctx) error {
	var tournaments []models.Tournament
	if err := s.DB.Order("created_at DESC").Find(&tournaments).Error; err != nil {
		log.Printf("[Tournament] ERROR fetching tournaments: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to fetch tournaments"})
	}
	for i := range tournaments {
		s.fillComputed(&tournaments[i])
	}
	return c.JSON(tournaments)
}

// GetAllTournamentsMini returns a minimal projection for listing pages.
func (s *TournamentService) GetAllTournamentsMini(c *fiber.Ctx) error {
	type TournamentMini struct {
		ID                  string          `json:"id"`
		Name                string          `json:"name"`
		Slug                string          `json:"slug"`
		Mode                string          `json:"mode"`
		Status              string          `json:"status"`
		EntryFee            decimal.Decimal `json:"entry_fee"`
		MaxParticipants     int             `json:"max_participants"`
		CurrentParticipants int             `json:"current_participants"`
		PrizesDistributed   bool            `json:"prizes_distributed"`
		StartTime           time.Time       `json:"start_time"`
		EndTime             *time.Time      `json:"end_time,omitempty"`
		CreatedAt           time.Time       `json:"created_at"`
		WinnerCount         int64           `json:"winner_count"`
	}
	var tournaments []TournamentMini
	query := `
        SELECT
            t.id,
            t.name,
            t.slug,
            t.mode,
            t.status,
            t.entry_fee,
            t.max_participants,
            t.current_participants,
            t.prizes_distributed,
            t.start_time,
            t.end_time,
            t.created_at,
            COUNT(w.id) as winner_count
        FROM tournaments t
        LEFT JOIN tournament_winners w ON t.id = w.tournament_id
        GROUP BY t.id
        ORDER BY t.created_at DESC
    `
	if err := s.DB.Raw(query).Scan(&tournaments).Error; err != nil {
		log.Printf("[Tournament] ERROR fetching mini tournaments: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to fetch tournaments"})
	}
	return c.JSON(tournaments)
}

func (s *TournamentService) GetTournamentByID(c *fiber.Ctx) error {
	id := c.Params("id")
	var tournament models.Tournament
	err := s.DB.
		Preload("Participants", func(db *gorm.DB) *gorm.DB {
			return db.Order("joined_at ASC")
		}).
		Preload("Winners", func(db *gorm.DB) *gorm.DB {
			return db.Order("rank ASC")
		}).
		First(&tournament, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "tournament not found"})
		}
		log.Printf("[Tournament] ERROR fetching tournament %s: %v", id, err)
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}

	s.fillComputed(&tournament)
	return c.JSON(&tournament)
}

// GetModes exposes the static mode catalog.
func (s *TournamentService) GetModes(c *fiber.Ctx) error {
	return c.JSON(models.AllModes())
}

func (s *TournamentService) fillComputed(t *models.Tournament) {
	pool := t.EntryFee.Mul(decimal.NewFromInt(int64(t.CurrentParticipants)))
	t.PrizePool = DistributablePrize(pool, s.ReserveBps)
	if t.MaxParticipants > 0 {
		t.AvailableSlots = int64(t.MaxParticipants - t.CurrentParticipants)
	} else {
		t.AvailableSlots = -1 // unlimited
	}
}
