package position

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mmterm/pkg/types"
)

// monitorTick is the monitoring-loop cadence named in the position
// state-machine contract.
const monitorTick = 10 * time.Second

// fillTolerance is the fraction of requested size that counts as "filled"
// for order-status polling, tolerating the venue's own rounding at the
// edges (Open Question decision #3).
const fillTolerance = 0.99

// dustBalance is the on-chain balance below which a token is treated as
// already fully sold/consumed rather than requiring a market-sell.
const dustBalance = 0.001

// Machine drives one Position from entry through settlement. Only this
// goroutine mutates pos; Snapshot reads it under mutex for the dashboard.
type Machine struct {
	deps   Deps
	logger *slog.Logger

	mu  sync.Mutex
	pos types.Position
}

func NewMachine(deps Deps, m types.Market) *Machine {
	return &Machine{
		deps:   deps,
		logger: deps.Logger.With("asset", m.Asset, "condition_id", m.ConditionID),
		pos:    types.Position{Market: m, Status: types.StatusEntering},
	}
}

func (mc *Machine) Snapshot() types.Position {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.pos
}

func (mc *Machine) setStatus(s types.PositionStatus) {
	mc.mu.Lock()
	mc.pos.Status = s
	mc.mu.Unlock()
}

// Run drives the full lifecycle: enter, then monitor until a terminal
// transition fires. Returns once the position reaches done or expired.
func (mc *Machine) Run(ctx context.Context) {
	if err := mc.enter(ctx); err != nil {
		mc.logger.Error("enter failed, abandoning position", "error", err)
		mc.setStatus(types.StatusExpired)
		return
	}
	mc.monitorLoop(ctx)
}

// enter confirms collateral, splits, and posts both resting sells.
func (mc *Machine) enter(ctx context.Context) error {
	mc.mu.Lock()
	market := mc.pos.Market
	mc.mu.Unlock()

	tradeSize := types.MoneyFromFloat(mc.deps.MM.TradeSize)
	required := tradeSize.Add(tradeSize)

	balance, err := mc.deps.CTF.CollateralBalance(ctx, mc.deps.CTF.Wallet())
	if err != nil {
		return fmt.Errorf("read collateral balance: %w", err)
	}
	if balance.LessThan(required) {
		return fmt.Errorf("insufficient collateral: have %s, need %s", balance, required)
	}

	if err := mc.deps.CTF.Split(ctx, market.ConditionID, required, market.NegRisk); err != nil {
		return fmt.Errorf("split: %w", err)
	}

	entryPrice := types.PriceFromFloat(0.5)
	sellPrice := types.PriceFromFloat(mc.deps.MM.SellPrice).RoundFloorTick(market.TickSize)

	yesOrderID, err := mc.postSell(ctx, market.YesTokenID, market.TickSize, sellPrice, mc.deps.MM.TradeSize, market.NegRisk)
	if err != nil {
		return fmt.Errorf("post YES sell: %w", err)
	}
	noOrderID, err := mc.postSell(ctx, market.NoTokenID, market.TickSize, sellPrice, mc.deps.MM.TradeSize, market.NegRisk)
	if err != nil {
		return fmt.Errorf("post NO sell: %w", err)
	}

	entryCost := types.MoneyFromFloat(mc.deps.MM.TradeSize * entryPrice.Float64())

	mc.mu.Lock()
	mc.pos.EnteredAt = time.Now()
	mc.pos.Status = types.StatusMonitoring
	mc.pos.Yes = types.Leg{TokenID: market.YesTokenID, Shares: tradeSize, EntryPrice: entryPrice, EntryCost: entryCost, OrderID: yesOrderID, TargetPrice: sellPrice}
	mc.pos.No = types.Leg{TokenID: market.NoTokenID, Shares: tradeSize, EntryPrice: entryPrice, EntryCost: entryCost, OrderID: noOrderID, TargetPrice: sellPrice}
	mc.mu.Unlock()
	return nil
}

func (mc *Machine) postSell(ctx context.Context, tokenID string, tick types.TickSize, price types.Price, size float64, negRisk bool) (string, error) {
	results, err := mc.deps.CLOB.PostOrders(ctx, []types.UserOrder{{
		TokenID:   tokenID,
		Price:     price.Float64(),
		Size:      size,
		Side:      types.SELL,
		OrderType: types.OrderTypeGTC,
		TickSize:  tick,
	}}, negRisk)
	if err != nil {
		return "", err
	}
	if len(results) == 0 || !results[0].Success {
		return "", fmt.Errorf("order rejected: %+v", results)
	}
	return results[0].OrderID, nil
}

// monitorLoop polls both legs at monitorTick cadence and fires the
// terminal-condition branches in the priority order the contract names.
func (mc *Machine) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(monitorTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if mc.monitorTick(ctx) {
				return
			}
		}
	}
}

// monitorTick runs one monitoring step. Returns true once the position has
// reached a terminal state and the loop should stop.
func (mc *Machine) monitorTick(ctx context.Context) bool {
	mc.mu.Lock()
	pos := mc.pos
	mc.mu.Unlock()

	remaining := pos.RemainingLifetime(time.Now())

	yesStatus := mc.pollLeg(ctx, pos.Yes)
	noStatus := mc.pollLeg(ctx, pos.No)
	mc.applyFill(&pos.Yes, yesStatus)
	mc.applyFill(&pos.No, noStatus)

	mc.mu.Lock()
	mc.pos.Yes = pos.Yes
	mc.pos.No = pos.No
	mc.mu.Unlock()

	switch {
	case pos.Yes.Filled && pos.No.Filled:
		mc.logger.Info("both legs filled", "yes_fill", pos.Yes.FillPrice, "no_fill", pos.No.FillPrice)
		mc.setStatus(types.StatusDone)
		return true

	case remaining <= 0:
		mc.logger.Warn("position expired unresolved")
		mc.setStatus(types.StatusExpired)
		return true

	case (pos.Yes.Filled != pos.No.Filled) && mc.deps.MM.AdaptiveCutLoss:
		mc.setStatus(types.StatusCutting)
		mc.runAdaptiveCutLoss(ctx, pos)
		return true

	case remaining <= mc.deps.MM.CutLossTime && !pos.Yes.Filled && !pos.No.Filled:
		mc.setStatus(types.StatusCutting)
		mc.neitherFilledCut(ctx, pos)
		return true

	case remaining <= mc.deps.MM.CutLossTime && (pos.Yes.Filled != pos.No.Filled):
		mc.setStatus(types.StatusCutting)
		mc.immediateCut(ctx, pos)
		return true
	}
	return false
}

func (mc *Machine) pollLeg(ctx context.Context, leg types.Leg) types.FillStatus {
	if leg.Filled || leg.OrderID == "" {
		return types.FillStatus{Kind: types.FillPending}
	}
	if mc.deps.CLOB.DryRun() {
		filled, err := mc.checkOrderFilled(ctx, leg.TokenID, leg.OrderID, leg.TargetPrice)
		if err != nil {
			mc.logger.Warn("dry-run midpoint read failed", "token_id", leg.TokenID, "error", err)
			return types.FillStatus{Kind: types.FillPending}
		}
		if filled {
			return types.FillStatus{Kind: types.FillFilled, Price: leg.TargetPrice}
		}
		return types.FillStatus{Kind: types.FillPending}
	}
	result, err := mc.deps.CLOB.OrderStatus(ctx, leg.OrderID)
	if err != nil {
		mc.logger.Warn("order status poll failed", "order_id", leg.OrderID, "error", err)
		return types.FillStatus{Kind: types.FillPending}
	}
	switch result.Status {
	case "matched", "filled":
		if result.SizeMatched >= leg.Shares.Float64()*fillTolerance {
			return types.FillStatus{Kind: types.FillFilled, Price: leg.EntryPrice}
		}
	case "cancelled":
		return types.FillStatus{Kind: types.FillCancelled}
	}
	return types.FillStatus{Kind: types.FillPending}
}

// checkOrderFilled reports whether orderID is filled. In dry-run mode, where
// resting orders are never actually posted, it simulates a fill once the
// venue midpoint reaches the order's target price rather than trusting the
// OrderStatus stub, which always reports an immediate fill.
func (mc *Machine) checkOrderFilled(ctx context.Context, tokenID, orderID string, target types.Price) (bool, error) {
	if mc.deps.CLOB.DryRun() {
		midF, err := mc.deps.CLOB.Midpoint(ctx, tokenID)
		if err != nil {
			return false, err
		}
		return !types.PriceFromFloat(midF).LessThan(target), nil
	}
	status, err := mc.deps.CLOB.OrderStatus(ctx, orderID)
	if err != nil {
		return false, err
	}
	return status.Status == "matched" || status.Status == "filled", nil
}

func (mc *Machine) applyFill(leg *types.Leg, status types.FillStatus) {
	if status.Kind == types.FillFilled && !leg.Filled {
		leg.Filled = true
		leg.FillPrice = status.Price
	}
}

// neitherFilledCut cancels both resting orders and merges the reconciled
// on-chain balance, recovering entry cost with zero venue slippage.
func (mc *Machine) neitherFilledCut(ctx context.Context, pos types.Position) {
	mc.cancelOrder(ctx, pos.Yes.OrderID)
	mc.cancelOrder(ctx, pos.No.OrderID)

	yesID, err := mc.deps.CTF.PositionID(pos.Market.ConditionID, 0)
	if err != nil {
		mc.logger.Error("compute yes position id failed", "error", err)
		mc.setStatus(types.StatusDone)
		return
	}
	noID, err := mc.deps.CTF.PositionID(pos.Market.ConditionID, 1)
	if err != nil {
		mc.logger.Error("compute no position id failed", "error", err)
		mc.setStatus(types.StatusDone)
		return
	}

	yesBal, err := mc.deps.CTF.BalanceOf(ctx, mc.deps.CTF.Wallet(), yesID)
	if err != nil {
		mc.logger.Error("read yes balance failed", "error", err)
		mc.setStatus(types.StatusDone)
		return
	}
	noBal, err := mc.deps.CTF.BalanceOf(ctx, mc.deps.CTF.Wallet(), noID)
	if err != nil {
		mc.logger.Error("read no balance failed", "error", err)
		mc.setStatus(types.StatusDone)
		return
	}

	mergeAmount := types.MinMoney(yesBal, noBal)
	if !mergeAmount.IsZero() {
		if err := mc.deps.CTF.Merge(ctx, pos.Market.ConditionID, mergeAmount); err != nil {
			mc.logger.Error("merge failed", "error", err)
		}
	}

	if mc.deps.MM.RecoveryBuy {
		mc.recoveryBuy(ctx, pos)
	}

	mc.setStatus(types.StatusDone)
}

// immediateCut (legacy) cancels the unfilled leg and market-sells whatever
// on-chain balance remains of it, at a worst price of 0.01.
func (mc *Machine) immediateCut(ctx context.Context, pos types.Position) {
	unfilled, outcomeIdx := pos.Yes, 0
	if pos.Yes.Filled {
		unfilled, outcomeIdx = pos.No, 1
	}

	mc.cancelOrder(ctx, unfilled.OrderID)

	tokenID, err := mc.deps.CTF.PositionID(pos.Market.ConditionID, outcomeIdx)
	if err != nil {
		mc.logger.Error("compute position id failed", "error", err)
		mc.setStatus(types.StatusDone)
		return
	}
	balance, err := mc.deps.CTF.BalanceOf(ctx, mc.deps.CTF.Wallet(), tokenID)
	if err != nil {
		mc.logger.Error("read balance failed", "error", err)
		mc.setStatus(types.StatusDone)
		return
	}
	if balance.Float64() < dustBalance {
		mc.setStatus(types.StatusDone)
		return
	}

	_, err = mc.deps.CLOB.PostMarketOrder(ctx, types.MarketOrderRequest{
		TokenID:    unfilled.TokenID,
		Side:       types.SELL,
		Amount:     balance.Float64(),
		WorstPrice: 0.01,
		TickSize:   pos.Market.TickSize,
		NegRisk:    pos.Market.NegRisk,
		OrderType:  types.OrderTypeFOK,
	})
	if err != nil {
		mc.logger.Error("market sell failed", "error", err)
	}
	mc.setStatus(types.StatusDone)
}

func (mc *Machine) cancelOrder(ctx context.Context, orderID string) {
	if orderID == "" {
		return
	}
	if _, err := mc.deps.CLOB.CancelOrders(ctx, []string{orderID}); err != nil {
		mc.logger.Warn("cancel order failed", "order_id", orderID, "error", err)
	}
}
