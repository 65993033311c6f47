package api

import (
	"time"

	"mmterm/internal/config"
	"mmterm/pkg/types"
)

// DashboardSnapshot is the complete read-only state served to the dashboard.
type DashboardSnapshot struct {
	Timestamp time.Time `json:"timestamp"`

	Positions []PositionStatus `json:"positions"`

	TotalRealized   float64 `json:"total_realized"`
	TotalUnrealized float64 `json:"total_unrealized"`
	TotalPnL        float64 `json:"total_pnl"`

	Config ConfigSummary `json:"config"`
}

// LegStatus mirrors pkg/types.Leg for JSON serialization.
type LegStatus struct {
	TokenID    string  `json:"token_id"`
	Shares     float64 `json:"shares"`
	EntryPrice float64 `json:"entry_price"`
	Filled     bool    `json:"filled"`
	FillPrice  float64 `json:"fill_price,omitempty"`
	OrderID    string  `json:"order_id,omitempty"`
}

// PositionStatus is the per-asset view of one active (or just-terminated)
// position, built from a dispatcher Snapshot.
type PositionStatus struct {
	Asset       string    `json:"asset"`
	ConditionID string    `json:"condition_id"`
	Question    string    `json:"question"`
	Status      string    `json:"status"`
	EnteredAt   time.Time `json:"entered_at"`
	EndTime     time.Time `json:"end_time"`

	Yes LegStatus `json:"yes"`
	No  LegStatus `json:"no"`

	RealizedPnL float64 `json:"realized_pnl"`
}

func legStatus(l types.Leg) LegStatus {
	return LegStatus{
		TokenID:    l.TokenID,
		Shares:     l.Shares.Float64(),
		EntryPrice: l.EntryPrice.Float64(),
		Filled:     l.Filled,
		FillPrice:  l.FillPrice.Float64(),
		OrderID:    l.OrderID,
	}
}

// legPnL computes (fill_price - entry_price) * shares, zero if unfilled.
func legPnL(l types.Leg) float64 {
	if !l.Filled {
		return 0
	}
	return (l.FillPrice.Float64() - l.EntryPrice.Float64()) * l.Shares.Float64()
}

// NewPositionStatus builds the dashboard DTO for one asset's position.
func NewPositionStatus(asset string, pos types.Position) PositionStatus {
	return PositionStatus{
		Asset:       asset,
		ConditionID: pos.Market.ConditionID,
		Question:    pos.Market.Question,
		Status:      string(pos.Status),
		EnteredAt:   pos.EnteredAt,
		EndTime:     pos.Market.EndTime,
		Yes:         legStatus(pos.Yes),
		No:          legStatus(pos.No),
		RealizedPnL: legPnL(pos.Yes) + legPnL(pos.No),
	}
}

// ConfigSummary is the operator-facing subset of Config shown on the
// dashboard: the market-making tuning knobs and operational mode.
type ConfigSummary struct {
	Assets              []string `json:"assets"`
	Duration            string   `json:"duration"`
	TradeSize           float64  `json:"trade_size"`
	SellPrice           float64  `json:"sell_price"`
	CutLossTime         string   `json:"cut_loss_time"`
	PollInterval        string   `json:"poll_interval"`
	AdaptiveCutLoss     bool     `json:"adaptive_cut_loss"`
	AdaptiveMinCombined float64  `json:"adaptive_min_combined"`
	RecoveryBuy         bool     `json:"recovery_buy"`
	DryRun              bool     `json:"dry_run"`
}

// NewConfigSummary creates config summary from config.
func NewConfigSummary(cfg config.Config) ConfigSummary {
	return ConfigSummary{
		Assets:              cfg.MM.Assets,
		Duration:            cfg.MM.Duration,
		TradeSize:           cfg.MM.TradeSize,
		SellPrice:           cfg.MM.SellPrice,
		CutLossTime:         cfg.MM.CutLossTime.String(),
		PollInterval:        cfg.MM.PollInterval.String(),
		AdaptiveCutLoss:     cfg.MM.AdaptiveCutLoss,
		AdaptiveMinCombined: cfg.MM.AdaptiveMinCombined,
		RecoveryBuy:         cfg.MM.RecoveryBuy,
		DryRun:              cfg.DryRun,
	}
}
