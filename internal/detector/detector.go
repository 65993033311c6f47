// Package detector deterministically discovers upcoming time-windowed
// binary markets per configured asset, without subscribing to any feed.
package detector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"mmterm/internal/config"
	"mmterm/pkg/types"
)

// freshnessWindow bounds how stale a just-discovered market's open time may
// be before the detector drops it rather than emitting a late entry.
const freshnessWindow = 15 * time.Second

// gammaMarket is the slice of the Gamma API's market shape the detector reads.
type gammaMarket struct {
	ConditionID     string `json:"conditionId"`
	Question        string `json:"question"`
	Slug            string `json:"slug"`
	Active          bool   `json:"active"`
	AcceptingOrders bool   `json:"acceptingOrders"`
	StartDate       string `json:"startDate"`
	EndDate         string `json:"endDate"`
	ClobTokenIds    string `json:"clobTokenIds"`
	NegRisk         bool   `json:"negRisk"`
	OrderPriceMinTickSize float64 `json:"orderPriceMinTickSize"`
}

// Detector polls the Gamma metadata endpoint on a fixed interval, looking
// up the deterministic slug for each configured asset's next slot.
type Detector struct {
	http     *resty.Client
	assets   []string
	slotSecs int64
	poll     time.Duration
	logger   *slog.Logger

	eventsCh chan types.Market
	seen     map[string]bool // keyed "asset|slot_start"
}

// New builds a Detector from MM config. cfg.Duration must already have been
// validated ("5m" or "15m") by config.Validate.
func New(gammaBaseURL string, mm config.MMConfig, logger *slog.Logger) (*Detector, error) {
	slotSecs, err := mm.SlotSeconds()
	if err != nil {
		return nil, err
	}
	client := resty.New().
		SetBaseURL(gammaBaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	return &Detector{
		http:     client,
		assets:   mm.Assets,
		slotSecs: slotSecs,
		poll:     mm.PollInterval,
		logger:   logger.With("component", "detector"),
		eventsCh: make(chan types.Market, 8),
		seen:     make(map[string]bool),
	}, nil
}

// Events returns the channel new Market events are emitted on.
func (d *Detector) Events() <-chan types.Market {
	return d.eventsCh
}

// Run polls until ctx is cancelled. Grounded on market.Scanner's
// immediate-scan-then-ticker idiom.
func (d *Detector) Run(ctx context.Context) {
	d.pollOnce(ctx)

	ticker := time.NewTicker(d.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.pollOnce(ctx)
		}
	}
}

func (d *Detector) pollOnce(ctx context.Context) {
	now := time.Now()
	for _, asset := range d.assets {
		nextSlot := floorSlot(now, d.slotSecs) + d.slotSecs
		key := fmt.Sprintf("%s|%d", asset, nextSlot)
		if d.seen[key] {
			continue
		}

		slug := fmt.Sprintf("%s-updown-%s-%d", strings.ToLower(asset), durationLabel(d.slotSecs), nextSlot)
		market, ok, err := d.lookupSlug(ctx, slug)
		if err != nil {
			d.logger.Warn("slug lookup failed", "asset", asset, "slug", slug, "error", err)
			continue
		}
		if !ok {
			continue
		}

		d.seen[key] = true

		if market.YesTokenID == "" || market.NoTokenID == "" {
			d.logger.Warn("market missing token ids, discarding", "slug", slug)
			continue
		}
		if time.Since(market.OpenTime) > freshnessWindow {
			d.logger.Warn("market stale at discovery, dropping", "slug", slug, "open_time", market.OpenTime)
			continue
		}

		d.emit(market)
	}
}

func (d *Detector) emit(m types.Market) {
	select {
	case d.eventsCh <- m:
	default:
		d.logger.Warn("events channel full, dropping market", "condition_id", m.ConditionID)
	}
}

func (d *Detector) lookupSlug(ctx context.Context, slug string) (types.Market, bool, error) {
	var gm gammaMarket
	resp, err := d.http.R().
		SetContext(ctx).
		SetResult(&gm).
		Get("/markets/slug/" + slug)
	if err != nil {
		return types.Market{}, false, fmt.Errorf("lookup slug %s: %w", slug, err)
	}
	if resp.StatusCode() == 404 {
		return types.Market{}, false, nil
	}
	if resp.StatusCode() != 200 {
		return types.Market{}, false, fmt.Errorf("lookup slug %s: status %d", slug, resp.StatusCode())
	}
	if !gm.Active || !gm.AcceptingOrders {
		return types.Market{}, false, nil
	}

	openTime, err := time.Parse(time.RFC3339, gm.StartDate)
	if err != nil {
		return types.Market{}, false, fmt.Errorf("parse start date %q: %w", gm.StartDate, err)
	}
	endTime, err := time.Parse(time.RFC3339, gm.EndDate)
	if err != nil {
		return types.Market{}, false, fmt.Errorf("parse end date %q: %w", gm.EndDate, err)
	}

	yesID, noID := splitTokenIDs(gm.ClobTokenIds)

	market := types.Market{
		Asset:       assetFromSlug(slug),
		ConditionID: gm.ConditionID,
		Question:    gm.Question,
		OpenTime:    openTime,
		EndTime:     endTime,
		YesTokenID:  yesID,
		NoTokenID:   noID,
		TickSize:    tickSizeFromFloat(gm.OrderPriceMinTickSize),
		NegRisk:     gm.NegRisk,
	}
	return market, true, nil
}

func floorSlot(t time.Time, slotSeconds int64) int64 {
	return (t.Unix() / slotSeconds) * slotSeconds
}

func durationLabel(slotSeconds int64) string {
	if slotSeconds == 900 {
		return "15m"
	}
	return "5m"
}

func assetFromSlug(slug string) string {
	parts := strings.SplitN(slug, "-updown-", 2)
	if len(parts) != 2 {
		return slug
	}
	return strings.ToUpper(parts[0])
}

// splitTokenIds parses the Gamma API's `clobTokenIds` field, a JSON-array-
// encoded string of two token ids in [YES, NO] order.
func splitTokenIDs(raw string) (yes, no string) {
	raw = strings.Trim(raw, "[]")
	parts := strings.Split(raw, ",")
	clean := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), `"`)
		if p != "" {
			clean = append(clean, p)
		}
	}
	if len(clean) != 2 {
		return "", ""
	}
	return clean[0], clean[1]
}

func tickSizeFromFloat(f float64) types.TickSize {
	switch {
	case f >= 0.1:
		return types.Tick01
	case f >= 0.01:
		return types.Tick001
	case f >= 0.001:
		return types.Tick0001
	default:
		return types.Tick00001
	}
}
