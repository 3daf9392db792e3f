package services

import (
	"errors"
	"fmt"
)

// Settlement and ledger error taxonomy. Handlers map these to HTTP statuses;
// the settlement engine branches on them with errors.Is.
var (
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrNoWinners          = errors.New("no winners found")
	ErrNoAttemptsLeft     = errors.New("no attempts remaining")
	ErrTournamentFull     = errors.New("tournament is full")
	ErrTournamentClosed   = errors.New("tournament is not accepting interactions")
	ErrOracleUnavailable  = errors.New("judge oracle unavailable")
	ErrEntryNotVerified   = errors.New("entry fee transaction could not be verified")
	ErrSettlementBusy     = errors.New("settlement already in progress")
)

// PartialDistributionError is the critical failure mode: transfers up to
// FailedRank-1 have landed on-chain and are recorded, the transfer at
// FailedRank did not. prizes_distributed stays false so settlement can be
// retried; the retry skips every rank that already has a winner row.
type PartialDistributionError struct {
	TournamentID string
	FailedRank   int
	Address      string
	Paid         int
	Err          error
}

func (e *PartialDistributionError) Error() string {
	return fmt.Sprintf("partial distribution for tournament %s: transfer to %s (rank %d) failed after %d completed payout(s): %v",
		e.TournamentID, e.Address, e.FailedRank, e.Paid, e.Err)
}

func (e *PartialDistributionError) Unwrap() error { return e.Err }
