package position

import (
	"context"
	"time"

	"mmterm/pkg/types"
)

// recoverySampleInterval is the 1Hz midpoint-sampling cadence named in the
// recovery-buy contract.
const recoverySampleInterval = time.Second

// recoverySampleCount samples both tokens for 10s at 1Hz.
const recoverySampleCount = 10

// recoveryHold is how long the recovery position is held before the
// keep-or-exit decision.
const recoveryHold = 30 * time.Second

// recoveryMinRemaining is the minimum lifetime required to bother with the
// hold-then-decide step; below this the position is left for resolution.
const recoveryMinRemaining = 5 * time.Second

// recoveryBuy samples both tokens' midpoints after a neither-filled cut,
// looking for a non-declining side that cleared the recovery threshold, and
// takes a speculative position in it.
func (mc *Machine) recoveryBuy(ctx context.Context, pos types.Position) {
	var firstYes, lastYes, firstNo, lastNo types.Price
	var haveYes, haveNo bool

	for i := 0; i < recoverySampleCount; i++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(recoverySampleInterval):
		}

		if yesMidF, err := mc.deps.CLOB.Midpoint(ctx, pos.Market.YesTokenID); err == nil {
			yesMid := types.PriceFromFloat(yesMidF)
			if !haveYes {
				firstYes = yesMid
				haveYes = true
			}
			lastYes = yesMid
		}
		if noMidF, err := mc.deps.CLOB.Midpoint(ctx, pos.Market.NoTokenID); err == nil {
			noMid := types.PriceFromFloat(noMidF)
			if !haveNo {
				firstNo = noMid
				haveNo = true
			}
			lastNo = noMid
		}
	}

	threshold := types.PriceFromFloat(mc.deps.MM.RecoveryThreshold)
	yesQualifies := haveYes && !lastYes.LessThan(threshold) && !lastYes.LessThan(firstYes)
	noQualifies := haveNo && !lastNo.LessThan(threshold) && !lastNo.LessThan(firstNo)

	var tokenID string
	var fillPriceTarget types.Price
	switch {
	case yesQualifies && (!noQualifies || !lastYes.LessThan(lastNo)):
		tokenID, fillPriceTarget = pos.Market.YesTokenID, lastYes
	case noQualifies:
		tokenID, fillPriceTarget = pos.Market.NoTokenID, lastNo
	default:
		mc.logger.Info("recovery buy: no candidate cleared threshold, skipping")
		return
	}

	size := types.MoneyFromFloat(mc.deps.MM.RecoverySize)
	if size.IsZero() {
		size = types.MoneyFromFloat(mc.deps.MM.TradeSize)
	}

	balance, err := mc.deps.CTF.CollateralBalance(ctx, mc.deps.CTF.Wallet())
	if err != nil {
		mc.logger.Error("recovery buy: read collateral balance failed", "error", err)
		return
	}
	cost := size.Mul(fillPriceTarget.Decimal())
	if balance.LessThan(cost) {
		mc.logger.Info("recovery buy: insufficient collateral, skipping")
		return
	}

	result, err := mc.deps.CLOB.PostMarketOrder(ctx, types.MarketOrderRequest{
		TokenID:    tokenID,
		Side:       types.BUY,
		Amount:     cost.Float64(),
		WorstPrice: 0.99,
		TickSize:   pos.Market.TickSize,
		NegRisk:    pos.Market.NegRisk,
		OrderType:  types.OrderTypeFOK,
	})
	if err != nil || !result.OK {
		mc.logger.Warn("recovery buy: market buy failed", "error", err)
		return
	}
	mc.logger.Info("recovery buy filled", "token_id", tokenID, "fill_price", result.FillPrice)

	select {
	case <-ctx.Done():
		return
	case <-time.After(recoveryHold):
	}

	remaining := pos.Market.EndTime.Sub(time.Now())
	if remaining < recoveryMinRemaining {
		mc.logger.Info("recovery buy: holding through resolution, remaining lifetime too short to exit")
		return
	}

	currentMidF, err := mc.deps.CLOB.Midpoint(ctx, tokenID)
	if err != nil {
		mc.logger.Warn("recovery buy: exit midpoint read failed, holding", "error", err)
		return
	}
	currentMid := types.PriceFromFloat(currentMidF)
	entryFillPrice := types.PriceFromFloat(result.FillPrice)
	if !currentMid.LessThan(entryFillPrice) {
		mc.logger.Info("recovery buy: price held or improved, keeping position")
		return
	}

	if _, err := mc.deps.CLOB.PostMarketOrder(ctx, types.MarketOrderRequest{
		TokenID:    tokenID,
		Side:       types.SELL,
		Amount:     result.TakingAmount,
		WorstPrice: 0.01,
		TickSize:   pos.Market.TickSize,
		NegRisk:    pos.Market.NegRisk,
		OrderType:  types.OrderTypeFOK,
	}); err != nil {
		mc.logger.Error("recovery buy: exit sell failed", "error", err)
	}
}
