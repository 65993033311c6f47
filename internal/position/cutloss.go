package position

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"mmterm/pkg/types"
)

// rechaseFloorFactor and rechaseCeilFactor bound how far the adaptive
// cut-loss's resting order is allowed to drift from the active limit before
// it's cancelled (floor) or re-posted closer to the midpoint (ceiling).
var (
	rechaseFloorFactor = decimal.NewFromFloat(0.95)
	rechaseCeilFactor  = decimal.NewFromFloat(1.02)
)

// adaptiveTick bounds how often runAdaptiveCutLoss re-checks a window
// shorter than the configured cadence, so the deadline check never
// overshoots mm_cut_loss_time by more than one tick.
const adaptiveTick = time.Second

// runAdaptiveCutLoss manages the unfilled leg of a one-leg-filled position,
// chasing the midpoint down (never below the profit floor) until either it
// fills or the cut-loss deadline forces a market exit.
func (mc *Machine) runAdaptiveCutLoss(ctx context.Context, pos types.Position) {
	filled, unfilled, outcomeIdx := pos.Yes, pos.No, 1
	if pos.No.Filled {
		filled, unfilled, outcomeIdx = pos.No, pos.Yes, 0
	}

	mc.cancelOrder(ctx, unfilled.OrderID)

	tokenID, err := mc.deps.CTF.PositionID(pos.Market.ConditionID, outcomeIdx)
	if err != nil {
		mc.logger.Error("adaptive cut-loss: compute position id failed", "error", err)
		mc.setStatus(types.StatusDone)
		return
	}
	shares, err := mc.deps.CTF.BalanceOf(ctx, mc.deps.CTF.Wallet(), tokenID)
	if err != nil {
		mc.logger.Error("adaptive cut-loss: read balance failed", "error", err)
		mc.setStatus(types.StatusDone)
		return
	}

	minCombined := types.PriceFromFloat(mc.deps.MM.AdaptiveMinCombined)
	floor := minCombined.Sub(filled.FillPrice)
	zero := types.PriceFromFloat(0)
	if floor.LessThan(zero) {
		floor = zero
	}
	sellCap := types.PriceFromFloat(mc.deps.MM.SellPrice)

	var activeOrderID string
	var activeLimit types.Price

	cadence := mc.deps.MM.AdaptiveMonitorSec
	if cadence <= 0 {
		cadence = 5 * time.Second
	}
	ticker := time.NewTicker(adaptiveTick)
	defer ticker.Stop()

	lastAction := time.Now().Add(-cadence)

	for {
		remaining := pos.Market.EndTime.Sub(time.Now())
		if remaining <= mc.deps.MM.CutLossTime {
			mc.adaptiveDeadline(ctx, pos, unfilled.TokenID, activeOrderID, shares)
			return
		}

		select {
		case <-ctx.Done():
			mc.cancelOrder(ctx, activeOrderID)
			mc.setStatus(types.StatusExpired)
			return
		case <-ticker.C:
		}

		if time.Since(lastAction) < cadence {
			continue
		}
		lastAction = time.Now()

		if activeOrderID != "" {
			filledNow, err := mc.checkOrderFilled(ctx, unfilled.TokenID, activeOrderID, activeLimit)
			if err == nil && filledNow {
				combined := filled.FillPrice.Add(activeLimit)
				mc.logger.Info("adaptive cut-loss leg filled", "combined", combined.Float64())
				mc.finalizeFilled(&unfilled, activeLimit)
				mc.commitLegs(filled, unfilled, outcomeIdx)
				mc.setStatus(types.StatusDone)
				return
			}
		}

		midF, err := mc.deps.CLOB.Midpoint(ctx, unfilled.TokenID)
		if err != nil {
			mc.logger.Warn("adaptive cut-loss: midpoint read failed", "error", err)
			continue
		}
		mid := types.PriceFromFloat(midF)

		rechaseFloor := activeLimit.Mul(rechaseFloorFactor)
		rechaseCeil := activeLimit.Mul(rechaseCeilFactor)

		switch {
		case activeOrderID != "" && (mid.LessThan(floor) || mid.LessThan(rechaseFloor)):
			mc.cancelOrder(ctx, activeOrderID)
			activeOrderID = ""

		case activeOrderID != "":
			target := mid
			if sellCap.LessThan(target) {
				target = sellCap
			}
			if target.GreaterThan(rechaseCeil) {
				mc.cancelOrder(ctx, activeOrderID)
				activeOrderID, activeLimit = mc.repostLimit(ctx, pos, unfilled, shares, target)
			}

		case !mid.LessThan(floor):
			target := mid
			if sellCap.LessThan(target) {
				target = sellCap
			}
			activeOrderID, activeLimit = mc.repostLimit(ctx, pos, unfilled, shares, target)
		}
	}
}

func (mc *Machine) repostLimit(ctx context.Context, pos types.Position, unfilled types.Leg, shares types.Money, target types.Price) (orderID string, limit types.Price) {
	price := target.RoundFloorTick(pos.Market.TickSize)
	id, err := mc.postSell(ctx, unfilled.TokenID, pos.Market.TickSize, price, shares.Float64(), pos.Market.NegRisk)
	if err != nil {
		mc.logger.Warn("adaptive cut-loss: repost failed", "error", err)
		return "", types.Price{}
	}
	return id, price
}

// adaptiveDeadline cancels any active limit and market-sells the reconciled
// balance at the protective worst-price of 0.01.
func (mc *Machine) adaptiveDeadline(ctx context.Context, pos types.Position, tokenID, activeOrderID string, shares types.Money) {
	mc.cancelOrder(ctx, activeOrderID)

	if shares.Float64() >= dustBalance {
		_, err := mc.deps.CLOB.PostMarketOrder(ctx, types.MarketOrderRequest{
			TokenID:    tokenID,
			Side:       types.SELL,
			Amount:     shares.Float64(),
			WorstPrice: 0.01,
			TickSize:   pos.Market.TickSize,
			NegRisk:    pos.Market.NegRisk,
			OrderType:  types.OrderTypeFOK,
		})
		if err != nil {
			mc.logger.Error("adaptive cut-loss deadline market-sell failed", "error", err)
		}
	}
	mc.setStatus(types.StatusDone)
}

func (mc *Machine) finalizeFilled(leg *types.Leg, price types.Price) {
	leg.Filled = true
	leg.FillPrice = price
}

func (mc *Machine) commitLegs(filled, unfilled types.Leg, unfilledIsNo int) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if unfilledIsNo == 0 {
		mc.pos.Yes = unfilled
		mc.pos.No = filled
	} else {
		mc.pos.Yes = filled
		mc.pos.No = unfilled
	}
}
