package detector

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"mmterm/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestFloorSlot(t *testing.T) {
	t.Parallel()

	tests := []struct {
		unix int64
		slot int64
		want int64
	}{
		{1000, 300, 900},
		{900, 300, 900},
		{899, 300, 600},
		{1000, 900, 900},
	}
	for _, tt := range tests {
		got := floorSlot(time.Unix(tt.unix, 0), tt.slot)
		if got != tt.want {
			t.Errorf("floorSlot(%d, %d) = %d, want %d", tt.unix, tt.slot, got, tt.want)
		}
	}
}

func TestDurationLabel(t *testing.T) {
	t.Parallel()
	if got := durationLabel(300); got != "5m" {
		t.Errorf("durationLabel(300) = %q, want 5m", got)
	}
	if got := durationLabel(900); got != "15m" {
		t.Errorf("durationLabel(900) = %q, want 15m", got)
	}
}

func TestAssetFromSlug(t *testing.T) {
	t.Parallel()
	if got := assetFromSlug("btc-updown-5m-1700000000"); got != "BTC" {
		t.Errorf("assetFromSlug = %q, want BTC", got)
	}
	if got := assetFromSlug("not-a-slug"); got != "not-a-slug" {
		t.Errorf("assetFromSlug fallback = %q, want input echoed back", got)
	}
}

func TestSplitTokenIDs(t *testing.T) {
	t.Parallel()

	yes, no := splitTokenIDs(`["111","222"]`)
	if yes != "111" || no != "222" {
		t.Errorf("splitTokenIDs = (%q, %q), want (111, 222)", yes, no)
	}

	yes, no = splitTokenIDs(`[]`)
	if yes != "" || no != "" {
		t.Errorf("splitTokenIDs(empty) = (%q, %q), want empty", yes, no)
	}
}

func TestTickSizeFromFloat(t *testing.T) {
	t.Parallel()
	tests := []struct {
		f    float64
		want string
	}{
		{0.1, "0.1"},
		{0.01, "0.01"},
		{0.001, "0.001"},
		{0.0001, "0.0001"},
	}
	for _, tt := range tests {
		if got := string(tickSizeFromFloat(tt.f)); got != tt.want {
			t.Errorf("tickSizeFromFloat(%v) = %q, want %q", tt.f, got, tt.want)
		}
	}
}

func TestDetectorEmitsFreshMarket(t *testing.T) {
	t.Parallel()

	now := time.Now()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"conditionId": "0xabc",
			"question": "BTC up or down?",
			"slug": "btc-updown-5m-1700000000",
			"active": true,
			"acceptingOrders": true,
			"startDate": "` + now.Format(time.RFC3339) + `",
			"endDate": "` + now.Add(5*time.Minute).Format(time.RFC3339) + `",
			"clobTokenIds": "[\"111\",\"222\"]",
			"negRisk": false,
			"orderPriceMinTickSize": 0.01
		}`))
	}))
	defer srv.Close()

	d, err := New(srv.URL, config.MMConfig{Assets: []string{"BTC"}, Duration: "5m", PollInterval: time.Second}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d.pollOnce(ctx)

	select {
	case m := <-d.eventsCh:
		if m.ConditionID != "0xabc" {
			t.Errorf("ConditionID = %q, want 0xabc", m.ConditionID)
		}
		if m.YesTokenID != "111" || m.NoTokenID != "222" {
			t.Errorf("token ids = (%q, %q), want (111, 222)", m.YesTokenID, m.NoTokenID)
		}
	default:
		t.Fatal("expected a market event, got none")
	}
}

func TestDetectorDedupsSlot(t *testing.T) {
	t.Parallel()

	hits := 0
	now := time.Now()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"conditionId": "0xabc",
			"active": true,
			"acceptingOrders": true,
			"startDate": "` + now.Format(time.RFC3339) + `",
			"endDate": "` + now.Add(5*time.Minute).Format(time.RFC3339) + `",
			"clobTokenIds": "[\"111\",\"222\"]",
			"orderPriceMinTickSize": 0.01
		}`))
	}))
	defer srv.Close()

	d, err := New(srv.URL, config.MMConfig{Assets: []string{"BTC"}, Duration: "5m", PollInterval: time.Second}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	d.pollOnce(ctx)
	<-d.eventsCh
	d.pollOnce(ctx)

	if hits != 1 {
		t.Errorf("expected 1 HTTP lookup after dedup, got %d", hits)
	}
}

func TestDetectorDiscardsNotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d, err := New(srv.URL, config.MMConfig{Assets: []string{"ETH"}, Duration: "15m", PollInterval: time.Second}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	d.pollOnce(context.Background())

	select {
	case m := <-d.eventsCh:
		t.Fatalf("expected no event for 404 slug, got %+v", m)
	default:
	}
}
