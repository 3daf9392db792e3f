package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"agent-arena/models"
)

// fakeGateway records transfer destinations and can be told to fail on a
// specific idempotency key.
type fakeGateway struct {
	keys         []string
	destinations []string
	failOn       string
}

func (g *fakeGateway) Transfer(_ context.Context, _ string, destination string, _ decimal.Decimal, idempotencyKey string) (TransferReceipt, error) {
	if idempotencyKey == g.failOn {
		return TransferReceipt{}, errors.New("gateway timeout")
	}
	g.keys = append(g.keys, idempotencyKey)
	g.destinations = append(g.destinations, destination)
	return TransferReceipt{Hash: "0xtx-" + idempotencyKey, Destination: destination}, nil
}

func threeRankPlan() (*models.Tournament, []models.TournamentWinner) {
	t := &models.Tournament{ID: "t1", WalletRef: "w1"}
	plan := []models.TournamentWinner{
		{ID: "p1", TournamentID: "t1", Address: "0xaaa", Rank: 1, Prize: dec("0.5"), IdempotencyKey: "t1:0xaaa:1"},
		{ID: "p2", TournamentID: "t1", Address: "0xbbb", Rank: 2, Prize: dec("0.3"), IdempotencyKey: "t1:0xbbb:2"},
		{ID: "p3", TournamentID: "t1", Address: "0xccc", Rank: 3, Prize: dec("0.2"), IdempotencyKey: "t1:0xccc:3"},
	}
	return t, plan
}

func TestExecuteTransfersHappyPath(t *testing.T) {
	tournament, plan := threeRankPlan()
	gateway := &fakeGateway{}
	var marked []models.TournamentWinner

	paid, err := executeTransfers(context.Background(), tournament, plan, gateway, func(w models.TournamentWinner) error {
		marked = append(marked, w)
		return nil
	})
	if err != nil {
		t.Fatalf("executeTransfers: %v", err)
	}
	if len(paid) != 3 || len(marked) != 3 || len(gateway.keys) != 3 {
		t.Fatalf("paid=%d marked=%d transfers=%d, want 3 each", len(paid), len(marked), len(gateway.keys))
	}
	for i, w := range paid {
		if w.Rank != i+1 {
			t.Errorf("winner %d rank = %d, want %d", i, w.Rank, i+1)
		}
		if w.TxHash != "0xtx-"+plan[i].IdempotencyKey {
			t.Errorf("rank %d tx hash = %s, want the gateway receipt", w.Rank, w.TxHash)
		}
		if gateway.destinations[i] != plan[i].Address {
			t.Errorf("transfer %d went to %s, want %s", i, gateway.destinations[i], plan[i].Address)
		}
	}
}

func TestExecuteTransfersStopsOnFailure(t *testing.T) {
	tournament, plan := threeRankPlan()
	gateway := &fakeGateway{failOn: "t1:0xbbb:2"}
	var marked []models.TournamentWinner

	paid, err := executeTransfers(context.Background(), tournament, plan, gateway, func(w models.TournamentWinner) error {
		marked = append(marked, w)
		return nil
	})

	var partial *PartialDistributionError
	if !errors.As(err, &partial) {
		t.Fatalf("got %v, want PartialDistributionError", err)
	}
	if partial.FailedRank != 2 || partial.Address != "0xbbb" || partial.Paid != 1 {
		t.Errorf("got rank=%d addr=%s paid=%d, want rank=2 addr=0xbbb paid=1", partial.FailedRank, partial.Address, partial.Paid)
	}
	// Rank 1 landed and was marked before the failure; rank 3 was never
	// attempted.
	if len(paid) != 1 || len(marked) != 1 || marked[0].Rank != 1 {
		t.Errorf("paid=%d marked=%d, want exactly rank 1 marked", len(paid), len(marked))
	}
	if len(gateway.keys) != 1 {
		t.Errorf("gateway issued %d transfers after the failure point, want 1", len(gateway.keys))
	}
}

// A retry resumes the persisted plan: paid rows keep their address, rank, and
// hash, and the remaining transfers go to the addresses the plan recorded,
// not to whatever a fresh resolution would rank.
func TestExecuteTransfersResumesPersistedPlan(t *testing.T) {
	tournament, plan := threeRankPlan()
	plan[0].TxHash = "0xold"
	gateway := &fakeGateway{}

	paid, err := executeTransfers(context.Background(), tournament, plan, gateway, func(models.TournamentWinner) error {
		return nil
	})
	if err != nil {
		t.Fatalf("executeTransfers: %v", err)
	}
	if len(gateway.keys) != 2 {
		t.Fatalf("retry issued %d transfers, want 2 (ranks 2 and 3 only)", len(gateway.keys))
	}
	if gateway.destinations[0] != "0xbbb" || gateway.destinations[1] != "0xccc" {
		t.Errorf("retry transferred to %v, want the plan's rank 2 and 3 addresses", gateway.destinations)
	}
	if len(paid) != 3 {
		t.Fatalf("result has %d winners, want all 3 ranks", len(paid))
	}
	if paid[0].TxHash != "0xold" || paid[0].Address != "0xaaa" {
		t.Errorf("rank 1 must keep its original payment (%s to %s)", paid[0].TxHash, paid[0].Address)
	}
}

// Re-running against a fully paid plan must issue zero transfers.
func TestExecuteTransfersFullyPaidIsNoop(t *testing.T) {
	tournament, plan := threeRankPlan()
	for i := range plan {
		plan[i].TxHash = "0xold-" + plan[i].Address
	}
	gateway := &fakeGateway{}

	paid, err := executeTransfers(context.Background(), tournament, plan, gateway, func(models.TournamentWinner) error {
		t.Fatal("markPaid must not be called when every rank is already paid")
		return nil
	})
	if err != nil {
		t.Fatalf("executeTransfers: %v", err)
	}
	if len(gateway.keys) != 0 {
		t.Errorf("issued %d transfers on a settled plan, want 0", len(gateway.keys))
	}
	if len(paid) != 3 {
		t.Errorf("result has %d winners, want the 3 prior rows", len(paid))
	}
}

func TestExecuteTransfersMarkPaidFailureIsPartial(t *testing.T) {
	tournament, plan := threeRankPlan()
	gateway := &fakeGateway{}

	_, err := executeTransfers(context.Background(), tournament, plan, gateway, func(w models.TournamentWinner) error {
		if w.Rank == 2 {
			return errors.New("db down")
		}
		return nil
	})

	var partial *PartialDistributionError
	if !errors.As(err, &partial) {
		t.Fatalf("got %v, want PartialDistributionError", err)
	}
	if partial.FailedRank != 2 || partial.Paid != 1 {
		t.Errorf("got rank=%d paid=%d, want rank=2 paid=1", partial.FailedRank, partial.Paid)
	}
}

func TestSettlementLockReusedThenForgotten(t *testing.T) {
	s := NewSettlementService(nil, nil, nil, nil, 200)

	l1 := s.lockFor("t1")
	if s.lockFor("t1") != l1 {
		t.Fatal("concurrent settles of one tournament must share a lock")
	}
	other := s.lockFor("t2")
	if other == l1 {
		t.Fatal("different tournaments must not share a lock")
	}

	s.forgetLock("t1")
	if len(s.locks) != 1 {
		t.Errorf("lock map has %d entries after forgetting t1, want 1", len(s.locks))
	}
	if s.lockFor("t1") == l1 {
		t.Error("forgotten lock was handed out again")
	}
}
