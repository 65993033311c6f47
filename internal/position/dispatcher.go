// Package position implements the per-asset position state machine: the
// dispatcher enforces at most one active position per asset, and each
// Machine drives one position from entry through cut-loss or settlement.
package position

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"mmterm/internal/config"
	"mmterm/internal/ctf"
	"mmterm/internal/exchange"
	"mmterm/pkg/types"
)

// Deps bundles the collaborators every Machine needs. Built once at
// bootstrap and shared (read-only) by every position task.
type Deps struct {
	CTF    *ctf.Client
	CLOB   *exchange.Client
	MM     config.MMConfig
	Logger *slog.Logger
}

type assetSlot struct {
	active  *Machine
	pending *types.Market
}

// Dispatcher owns one goroutine-per-asset map and enforces: at most one
// active position per asset, with at most one pending replacement queued
// behind it. Generalizes engine.Engine's single-owner
// slots-map-protected-by-mutex pattern.
type Dispatcher struct {
	mu     sync.Mutex
	assets map[string]*assetSlot
	deps   Deps
}

func NewDispatcher(deps Deps) *Dispatcher {
	return &Dispatcher{
		assets: make(map[string]*assetSlot),
		deps:   deps,
	}
}

// Run consumes Market events from the detector until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, events <-chan types.Market) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-events:
			if !ok {
				return
			}
			d.handle(ctx, m)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, m types.Market) {
	d.mu.Lock()
	defer d.mu.Unlock()

	slot, ok := d.assets[m.Asset]
	if !ok {
		slot = &assetSlot{}
		d.assets[m.Asset] = slot
	}

	if slot.active == nil {
		d.startLocked(ctx, slot, m)
		return
	}

	mCopy := m
	slot.pending = &mCopy
	d.deps.Logger.Info("position already active, queued replacement", "asset", m.Asset, "condition_id", m.ConditionID)
}

// startLocked must be called with d.mu held.
func (d *Dispatcher) startLocked(ctx context.Context, slot *assetSlot, m types.Market) {
	machine := NewMachine(d.deps, m)
	slot.active = machine
	d.deps.Logger.Info("starting position", "asset", m.Asset, "condition_id", m.ConditionID)

	go func() {
		machine.Run(ctx)
		d.onTerminate(ctx, m.Asset)
	}()
}

// onTerminate runs after a Machine's Run returns. If a pending replacement
// exists and still has enough remaining lifetime to be worth entering, it
// is promoted; otherwise it is discarded.
func (d *Dispatcher) onTerminate(ctx context.Context, asset string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	slot, ok := d.assets[asset]
	if !ok {
		return
	}
	slot.active = nil

	pending := slot.pending
	slot.pending = nil
	if pending == nil {
		return
	}

	remaining := pending.EndTime.Sub(time.Now())
	if !shouldPromote(remaining, d.deps.MM.CutLossTime) {
		d.deps.Logger.Info("discarding pending replacement, insufficient lifetime", "asset", asset, "remaining", remaining)
		return
	}
	d.startLocked(ctx, slot, *pending)
}

// shouldPromote reports whether a pending replacement's remaining lifetime
// is worth starting a fresh position for, per the dispatch rule.
func shouldPromote(remaining, cutLossTime time.Duration) bool {
	return remaining > cutLossTime
}

// Snapshot returns the current Position for every asset with an active
// Machine, for the status dashboard.
func (d *Dispatcher) Snapshot() map[string]types.Position {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]types.Position, len(d.assets))
	for asset, slot := range d.assets {
		if slot.active != nil {
			out[asset] = slot.active.Snapshot()
		}
	}
	return out
}
