package api

import (
	"time"

	"mmterm/internal/config"
	"mmterm/pkg/types"
)

// SnapshotProvider provides read-only snapshot access to dispatcher state.
// Implemented by position.Dispatcher.
type SnapshotProvider interface {
	Snapshot() map[string]types.Position
}

// BuildSnapshot aggregates dispatcher state into a dashboard snapshot.
func BuildSnapshot(provider SnapshotProvider, cfg config.Config) DashboardSnapshot {
	byAsset := provider.Snapshot()

	positions := make([]PositionStatus, 0, len(byAsset))
	var totalRealized float64
	for asset, pos := range byAsset {
		ps := NewPositionStatus(asset, pos)
		positions = append(positions, ps)
		if pos.Status == types.StatusDone || pos.Status == types.StatusExpired {
			totalRealized += ps.RealizedPnL
		}
	}

	return DashboardSnapshot{
		Timestamp:       time.Now(),
		Positions:       positions,
		TotalRealized:   totalRealized,
		TotalUnrealized: 0,
		TotalPnL:        totalRealized,
		Config:          NewConfigSummary(cfg),
	}
}
