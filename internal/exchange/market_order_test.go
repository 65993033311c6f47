package exchange

import (
	"context"
	"testing"

	"mmterm/pkg/types"
)

func TestDryRunPostMarketOrder(t *testing.T) {
	t.Parallel()
	c := newDryRunClient()

	result, err := c.PostMarketOrder(context.Background(), types.MarketOrderRequest{
		TokenID:    "tok1",
		Side:       types.BUY,
		Amount:     5,
		WorstPrice: 0.6,
		TickSize:   types.Tick001,
		OrderType:  types.OrderTypeFOK,
	})
	if err != nil {
		t.Fatalf("PostMarketOrder: %v", err)
	}
	if !result.OK {
		t.Error("result.OK = false, want true")
	}
	if result.OrderID == "" {
		t.Error("result.OrderID is empty")
	}
}

func TestPostMarketOrderRejectsGTC(t *testing.T) {
	t.Parallel()
	c := newDryRunClient()

	_, err := c.PostMarketOrder(context.Background(), types.MarketOrderRequest{
		TokenID:   "tok1",
		Side:      types.BUY,
		Amount:    5,
		OrderType: types.OrderTypeGTC,
	})
	if err == nil {
		t.Fatal("expected error for GTC order type on PostMarketOrder")
	}
}

func TestDryRunOrderStatus(t *testing.T) {
	t.Parallel()
	c := newDryRunClient()

	status, err := c.OrderStatus(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("OrderStatus: %v", err)
	}
	if status.Status != "matched" {
		t.Errorf("status = %q, want matched", status.Status)
	}
}
