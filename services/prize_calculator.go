package services

import (
	"fmt"

	"github.com/shopspring/decimal"

	"agent-arena/models"
)

// PrizeShare is one payout: an address and the exact amount it receives.
type PrizeShare struct {
	Address string          `json:"address"`
	Amount  decimal.Decimal `json:"amount"`
}

// Percentage tables keyed by winner count. Each row sums to 100; the last
// rank takes the remainder after the earlier shares, so the shares always sum
// exactly to the distributable prize even when division has to round.
var debateSplits = map[int][]int64{
	5: {35, 25, 20, 12, 8},
	4: {40, 30, 20, 10},
	3: {50, 30, 20},
	2: {60, 40},
}

var twentyQuestionsSplits = map[int][]int64{
	3: {50, 30, 20},
	2: {60, 40},
}

var oneHundred = decimal.NewFromInt(100)

// DistributablePrize applies the reserve fraction to the pooled entry fees.
// reserveBps is basis points (200 = 2%).
func DistributablePrize(pool decimal.Decimal, reserveBps int64) decimal.Decimal {
	reserve := pool.Mul(decimal.NewFromInt(reserveBps)).Div(decimal.NewFromInt(10000))
	return pool.Sub(reserve)
}

// CalculatePrizes maps (mode, ordered winners, distributable pool) to payout
// shares. Pure and deterministic: no I/O, no rounding drift. A single winner
// takes the whole distributable prize regardless of mode.
func CalculatePrizes(mode string, winners []string, distributable decimal.Decimal) ([]PrizeShare, error) {
	if len(winners) == 0 {
		return nil, ErrNoWinners
	}
	if distributable.IsNegative() {
		return nil, fmt.Errorf("distributable prize is negative: %s", distributable)
	}

	if len(winners) == 1 {
		return []PrizeShare{{Address: winners[0], Amount: distributable}}, nil
	}

	info, err := models.DescribeMode(mode)
	if err != nil {
		return nil, err
	}
	if len(winners) > info.MaxWinners {
		winners = winners[:info.MaxWinners]
	}

	var pcts []int64
	switch mode {
	case models.ModeAgentChallenge:
		// Winner takes all: only rank 1 is ever paid.
		return []PrizeShare{{Address: winners[0], Amount: distributable}}, nil
	case models.ModeDebateArena:
		pcts = debateSplits[len(winners)]
	case models.ModeTwentyQuestions:
		pcts = twentyQuestionsSplits[len(winners)]
	}
	if pcts == nil {
		return nil, fmt.Errorf("no prize split defined for mode %s with %d winners", mode, len(winners))
	}

	shares := make([]PrizeShare, len(winners))
	remaining := distributable
	for i, addr := range winners {
		amount := remaining
		if i < len(winners)-1 {
			amount = distributable.Mul(decimal.NewFromInt(pcts[i])).Div(oneHundred)
		}
		shares[i] = PrizeShare{Address: addr, Amount: amount}
		remaining = remaining.Sub(amount)
	}
	return shares, nil
}
