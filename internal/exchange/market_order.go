package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"

	"github.com/shopspring/decimal"

	"mmterm/pkg/types"
)

// buildMarketOrderPayload converts a MarketOrderRequest into the signed
// order shape the CLOB /order endpoint expects for FOK/FAK market orders.
// Amount is in collateral units for BUY (spend this much USDC) and in
// shares for SELL (sell this many shares); WorstPrice bounds slippage.
func (c *Client) buildMarketOrderPayload(req types.MarketOrderRequest) (types.OrderPayload, error) {
	tickSize := req.TickSize
	if tickSize == "" {
		tickSize = types.Tick001
	}

	worstPrice := decimal.NewFromFloat(req.WorstPrice)

	var makerAmt, takerAmt *big.Int
	switch req.Side {
	case types.BUY:
		size := decimal.NewFromFloat(req.Amount).Div(worstPrice)
		makerAmt, takerAmt = PriceToAmounts(worstPrice, size, types.BUY, tickSize)
	case types.SELL:
		makerAmt, takerAmt = PriceToAmounts(worstPrice, decimal.NewFromFloat(req.Amount), types.SELL, tickSize)
	}

	signed := types.SignedOrder{
		Maker:         c.auth.FunderAddress().Hex(),
		Signer:        c.auth.Address().Hex(),
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenID:       req.TokenID,
		MakerAmount:   makerAmt,
		TakerAmount:   takerAmt,
		Side:          req.Side,
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		SignatureType: c.auth.sigType,
	}

	exchangeAddr := c.addrs.ExchangeFor(req.NegRisk).Hex()
	if err := c.signOrder(&signed, exchangeAddr); err != nil {
		return types.OrderPayload{}, err
	}

	return types.OrderPayload{
		Order:     signed,
		Owner:     c.auth.creds.ApiKey,
		OrderType: req.OrderType,
	}, nil
}

// PostMarketOrder places a single FOK or FAK order and returns the venue's
// immediate fill result. Unlike PostOrders (GTC resting orders, batched),
// market orders resolve synchronously: FOK either fills completely or is
// killed outright, FAK takes whatever liquidity is available and cancels
// the remainder.
func (c *Client) PostMarketOrder(ctx context.Context, req types.MarketOrderRequest) (types.MarketOrderResult, error) {
	if req.OrderType != types.OrderTypeFOK && req.OrderType != types.OrderTypeFAK {
		return types.MarketOrderResult{}, fmt.Errorf("market order must be FOK or FAK, got %q", req.OrderType)
	}
	if c.dryRun {
		c.logger.Info("DRY-RUN: would post market order", "token_id", req.TokenID, "side", req.Side, "amount", req.Amount)
		return types.MarketOrderResult{OK: true, OrderID: "dry-run-market", FillPrice: req.WorstPrice, TakingAmount: req.Amount, MakingAmount: req.Amount}, nil
	}
	if err := c.rl.Order.Wait(ctx); err != nil {
		return types.MarketOrderResult{}, err
	}

	payload, err := c.buildMarketOrderPayload(req)
	if err != nil {
		return types.MarketOrderResult{}, fmt.Errorf("build market order payload: %w", err)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return types.MarketOrderResult{}, fmt.Errorf("marshal market order: %w", err)
	}
	headers, err := c.auth.L2Headers("POST", "/order", string(body))
	if err != nil {
		return types.MarketOrderResult{}, fmt.Errorf("l2 headers: %w", err)
	}

	var result types.MarketOrderResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(payload).
		SetResult(&result).
		Post("/order")
	if err != nil {
		return types.MarketOrderResult{}, fmt.Errorf("post market order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.MarketOrderResult{}, fmt.Errorf("post market order: status %d: %s", resp.StatusCode(), resp.String())
	}
	return result, nil
}

// OrderStatus polls the current status of a previously-placed order.
// Used by the position machine's fill-poll loop: an order is treated as
// filled once SizeMatched covers at least fillTolerance of the requested
// size, tolerating the venue's own rounding at the edges.
func (c *Client) OrderStatus(ctx context.Context, orderID string) (types.OrderStatusResult, error) {
	if c.dryRun {
		return types.OrderStatusResult{Status: "matched", SizeMatched: 1}, nil
	}
	if err := c.rl.Book.Wait(ctx); err != nil {
		return types.OrderStatusResult{}, err
	}

	headers, err := c.auth.L2Headers("GET", "/data/order/"+orderID, "")
	if err != nil {
		return types.OrderStatusResult{}, fmt.Errorf("l2 headers: %w", err)
	}

	var result types.OrderStatusResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&result).
		Get("/data/order/" + orderID)
	if err != nil {
		return types.OrderStatusResult{}, fmt.Errorf("order status: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.OrderStatusResult{}, fmt.Errorf("order status: status %d: %s", resp.StatusCode(), resp.String())
	}
	return result, nil
}

// Midpoint returns the current book midpoint for tokenID, used by the
// recovery-buy sub-routine's 1Hz sampling loop.
func (c *Client) Midpoint(ctx context.Context, tokenID string) (float64, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return 0, err
	}

	var result struct {
		Mid string `json:"mid"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("token_id", tokenID).
		SetResult(&result).
		Get("/midpoint")
	if err != nil {
		return 0, fmt.Errorf("get midpoint: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, fmt.Errorf("get midpoint: status %d: %s", resp.StatusCode(), resp.String())
	}

	var mid float64
	if _, err := fmt.Sscanf(result.Mid, "%f", &mid); err != nil {
		return 0, fmt.Errorf("parse midpoint %q: %w", result.Mid, err)
	}
	return mid, nil
}
