// Package cleanup implements the startup cancel-all/stranded-merge pass
// and the periodic redemption loop (C7).
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"

	"mmterm/internal/config"
	"mmterm/internal/ctf"
	"mmterm/internal/exchange"
	"mmterm/pkg/types"
)

// minRedeemBalance is the dust threshold below which a condition's
// remaining balance is not worth a redeem transaction.
const minRedeemBalance = 0.001

// heldPosition is the slice of the venue's positions API response the
// redeemer reads.
type heldPosition struct {
	ConditionID string  `json:"conditionId"`
	Outcome     string  `json:"outcome"` // "Yes" or "No"
	Size        float64 `json:"size"`
	NegRisk     bool    `json:"negRisk"`
}

// Redeemer runs the startup cleanup pass and the periodic redemption
// ticker. Grounded on risk.Manager's ticker-loop + perpetual
// logged-and-continue idiom.
type Redeemer struct {
	http     *resty.Client
	clob     *exchange.Client
	ctfc     *ctf.Client
	wallet   common.Address
	interval time.Duration
	logger   *slog.Logger
}

func New(dataAPIBaseURL string, clob *exchange.Client, ctfc *ctf.Client, wallet common.Address, cfg config.RedeemerConfig, logger *slog.Logger) *Redeemer {
	client := resty.New().
		SetBaseURL(dataAPIBaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2)

	interval := cfg.Interval
	if interval <= 0 {
		interval = 60 * time.Second
	}

	return &Redeemer{
		http:     client,
		clob:     clob,
		ctfc:     ctfc,
		wallet:   wallet,
		interval: interval,
		logger:   logger.With("component", "redeemer"),
	}
}

// StartupCleanup cancels every open order for the wallet, then merges
// stranded both-sides balances on any still-unresolved condition.
func (r *Redeemer) StartupCleanup(ctx context.Context) error {
	if _, err := r.clob.CancelAll(ctx); err != nil {
		return fmt.Errorf("cancel all on startup: %w", err)
	}
	r.logger.Info("startup: all open orders cancelled")

	positions, err := r.fetchPositions(ctx)
	if err != nil {
		return fmt.Errorf("fetch positions on startup: %w", err)
	}

	byCondition := groupByCondition(positions)
	for conditionID, legs := range byCondition {
		denominator, err := r.ctfc.PayoutDenominator(ctx, conditionID)
		if err != nil {
			r.logger.Warn("startup cleanup: payout denominator read failed", "condition_id", conditionID, "error", err)
			continue
		}
		if denominator != 0 {
			continue // resolved, leave to the periodic redeemer
		}

		yes, no := legs["Yes"], legs["No"]
		if yes < ctf.MinSharesPerSide || no < ctf.MinSharesPerSide {
			continue
		}

		mergeAmount := yes
		if no < mergeAmount {
			mergeAmount = no
		}
		negRisk := anyNegRisk(positions, conditionID)
		if err := r.ctfc.Merge(ctx, conditionID, types.MoneyFromFloat(mergeAmount)); err != nil {
			r.logger.Error("startup cleanup: merge failed", "condition_id", conditionID, "error", err)
			continue
		}
		r.logger.Info("startup cleanup: merged stranded position", "condition_id", conditionID, "amount", mergeAmount, "neg_risk", negRisk)
	}
	return nil
}

// Run drives the periodic redemption loop until ctx is cancelled.
func (r *Redeemer) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.redeemTick(ctx); err != nil {
				r.logger.Error("redeem tick failed", "error", err)
			}
		}
	}
}

func (r *Redeemer) redeemTick(ctx context.Context) error {
	positions, err := r.fetchPositions(ctx)
	if err != nil {
		return fmt.Errorf("fetch positions: %w", err)
	}

	byCondition := groupByCondition(positions)
	for conditionID, legs := range byCondition {
		total := legs["Yes"] + legs["No"]
		if total < minRedeemBalance {
			continue
		}

		denominator, err := r.ctfc.PayoutDenominator(ctx, conditionID)
		if err != nil {
			r.logger.Warn("redeemer: payout denominator read failed", "condition_id", conditionID, "error", err)
			continue
		}
		if denominator == 0 {
			continue // unresolved, skip
		}

		expected := 0.0
		for _, outcomeIdx := range []int{0, 1} {
			numerator, err := r.ctfc.PayoutNumerator(ctx, conditionID, outcomeIdx)
			if err != nil {
				r.logger.Warn("redeemer: payout numerator read failed", "condition_id", conditionID, "outcome", outcomeIdx, "error", err)
				continue
			}
			shares := legs["Yes"]
			if outcomeIdx == 1 {
				shares = legs["No"]
			}
			expected += shares * (float64(numerator) / float64(denominator))
		}

		if err := r.ctfc.Redeem(ctx, conditionID); err != nil {
			r.logger.Error("redeemer: redeem failed, will retry next tick", "condition_id", conditionID, "error", err)
			continue
		}
		r.logger.Info("redeemed condition", "condition_id", conditionID, "expected_collateral", expected)
	}
	return nil
}

func (r *Redeemer) fetchPositions(ctx context.Context) ([]heldPosition, error) {
	var positions []heldPosition
	resp, err := r.http.R().
		SetContext(ctx).
		SetQueryParam("user", r.wallet.Hex()).
		SetResult(&positions).
		Get("/positions")
	if err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("get positions: status %d", resp.StatusCode())
	}
	return positions, nil
}

func groupByCondition(positions []heldPosition) map[string]map[string]float64 {
	out := make(map[string]map[string]float64)
	for _, p := range positions {
		legs, ok := out[p.ConditionID]
		if !ok {
			legs = map[string]float64{}
			out[p.ConditionID] = legs
		}
		legs[p.Outcome] += p.Size
	}
	return out
}

func anyNegRisk(positions []heldPosition, conditionID string) bool {
	for _, p := range positions {
		if p.ConditionID == conditionID && p.NegRisk {
			return true
		}
	}
	return false
}
