package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tournament statuses. COMPLETED is terminal.
const (
	StatusPending   = "PENDING"
	StatusActive    = "ACTIVE"
	StatusCompleted = "COMPLETED"
)

// Tournament is the aggregate root: one funding wallet, one mode, one
// settlement outcome.
type Tournament struct {
	ID     string `json:"id" gorm:"primaryKey"`
	Name   string `json:"name" gorm:"not null"`
	Slug   string `json:"slug" gorm:"index"`
	Mode   string `json:"mode" gorm:"not null;index"`
	Status string `json:"status" gorm:"default:'PENDING';index"`

	EntryFee            decimal.Decimal `json:"entry_fee" gorm:"type:numeric(30,18);not null"`
	MaxParticipants     int             `json:"max_participants" gorm:"default:0"`
	CurrentParticipants int             `json:"current_participants" gorm:"default:0"`
	AttemptsPerEntry    int             `json:"attempts_per_entry" gorm:"default:5"`

	// Mode-specific fields. Exactly one of these is required per mode.
	SecretTerm         string `json:"secret_term,omitempty"`
	DebateTopic        string `json:"debate_topic,omitempty"`
	ChallengeStatement string `json:"challenge_statement,omitempty" gorm:"type:text"`
	IsAutoGenerated    bool   `json:"is_auto_generated" gorm:"default:false"`

	AgentInstructions string `json:"agent_instructions" gorm:"type:text"`
	WinningCondition  string `json:"winning_condition"`
	PrizeSplit        string `json:"prize_split"`
	CreatorAddress    string `json:"creator_address" gorm:"index"`

	// Treasury wallet owning the pooled entry fees. The gateway holds the
	// keys; WalletRef is an opaque credential owned by this tournament only.
	TreasuryAddress string `json:"treasury_address"`
	WalletRef       string `json:"-" gorm:"column:wallet_ref"`

	// Idempotence guard: once true, settlement must never issue a transfer
	// again for this tournament.
	PrizesDistributed bool `json:"prizes_distributed" gorm:"default:false"`

	StartTime  time.Time  `json:"start_time"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	CreatedAt  time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
	SettledAt  *time.Time `json:"settled_at,omitempty"`
	NotifiedAt *time.Time `json:"-" gorm:"index"`
	ArchiveURL string     `json:"archive_url,omitempty"`

	// Relationships
	Participants []Participant      `json:"participants,omitempty" gorm:"foreignKey:TournamentID"`
	Messages     []ChatMessage      `json:"messages,omitempty" gorm:"foreignKey:TournamentID"`
	Winners      []TournamentWinner `json:"winners,omitempty" gorm:"foreignKey:TournamentID"`

	// Calculated fields (not stored in DB)
	PrizePool      decimal.Decimal `json:"prize_pool,omitempty" gorm:"-"`
	AvailableSlots int64           `json:"available_slots,omitempty" gorm:"-"`
}

// Participant is one entrant per tournament, keyed by normalized
// (lower-case) wallet address.
type Participant struct {
	ID           string `json:"id" gorm:"primaryKey"`
	TournamentID string `json:"tournament_id" gorm:"not null;index:idx_participant_addr,unique"`
	Address      string `json:"address" gorm:"not null;index:idx_participant_addr,unique"`

	AttemptsLeft int `json:"attempts_left" gorm:"default:0"`

	// Mode-specific progress
	HasGuessedCorrect bool       `json:"has_guessed_correct" gorm:"default:false"`
	GuessCount        int        `json:"guess_count" gorm:"default:0"`
	CorrectAt         *time.Time `json:"correct_at,omitempty"`
	HasCompleted      bool       `json:"has_completed" gorm:"default:false"`
	Score             int64      `json:"score" gorm:"default:0"`

	JoinedAt  time.Time `json:"joined_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	Transactions []EntryTransaction `json:"transactions,omitempty" gorm:"foreignKey:ParticipantID"`
}

// EntryTransaction records one verified entry-fee payment.
type EntryTransaction struct {
	ID            string          `json:"id" gorm:"primaryKey"`
	ParticipantID string          `json:"participant_id" gorm:"not null;index"`
	TournamentID  string          `json:"tournament_id" gorm:"not null;index"`
	TxHash        string          `json:"tx_hash" gorm:"not null;uniqueIndex"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:numeric(30,18)"`
	CreatedAt     time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

// Chat message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is immutable once appended.
type ChatMessage struct {
	ID               string    `json:"id" gorm:"primaryKey"`
	TournamentID     string    `json:"tournament_id" gorm:"not null;index"`
	Role             string    `json:"role" gorm:"not null"`
	Content          string    `json:"content" gorm:"type:text"`
	SenderAddress    string    `json:"sender_address"`
	RecipientAddress string    `json:"recipient_address"`
	Timestamp        time.Time `json:"timestamp" gorm:"autoCreateTime;index"`
}

// TournamentWinner rows are the distribution plan: one row per rank, written
// before the first transfer is issued. TxHash is empty until the rank's
// transfer confirms, so a retried settlement run resumes the persisted plan
// and skips rows that already carry a hash. The idempotency key
// (tournamentID:address:rank) lets the gateway dedupe a re-issued transfer.
type TournamentWinner struct {
	ID             string          `json:"id" gorm:"primaryKey"`
	TournamentID   string          `json:"tournament_id" gorm:"not null;index"`
	Address        string          `json:"address" gorm:"not null"`
	Rank           int             `json:"rank" gorm:"not null"`
	Prize          decimal.Decimal `json:"prize" gorm:"type:numeric(30,18)"`
	TxHash         string          `json:"tx_hash"`
	IdempotencyKey string          `json:"-" gorm:"uniqueIndex"`
	CreatedAt      time.Time       `json:"created_at" gorm:"autoCreateTime"`
}
