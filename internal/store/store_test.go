package store

import (
	"testing"
)

func TestSaveAndLoadSeenTrades(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	seen := map[string]struct{}{
		"0xabc": {},
		"0xdef": {},
	}

	if err := s.SaveSeenTrades(seen); err != nil {
		t.Fatalf("SaveSeenTrades: %v", err)
	}

	loaded, err := s.LoadSeenTrades()
	if err != nil {
		t.Fatalf("LoadSeenTrades: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("len(loaded) = %d, want 2", len(loaded))
	}
	if _, ok := loaded["0xabc"]; !ok {
		t.Error("missing 0xabc")
	}
	if _, ok := loaded["0xdef"]; !ok {
		t.Error("missing 0xdef")
	}
}

func TestLoadSeenTradesMissing(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	loaded, err := s.LoadSeenTrades()
	if err != nil {
		t.Fatalf("LoadSeenTrades: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected non-nil empty set for missing file")
	}
	if len(loaded) != 0 {
		t.Errorf("len(loaded) = %d, want 0", len(loaded))
	}
}

func TestSaveSeenTradesOverwrites(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	_ = s.SaveSeenTrades(map[string]struct{}{"0x1": {}})
	_ = s.SaveSeenTrades(map[string]struct{}{"0x2": {}, "0x3": {}})

	loaded, err := s.LoadSeenTrades()
	if err != nil {
		t.Fatalf("LoadSeenTrades: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("len(loaded) = %d, want 2 (latest save)", len(loaded))
	}
	if _, ok := loaded["0x1"]; ok {
		t.Error("0x1 should have been overwritten away")
	}
}

func TestSaveAndLoadSimStats(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	stats := SimStats{RealizedPnL: 12.5, PositionsOpen: 4, PositionsDone: 3}
	if err := s.SaveSimStats(stats); err != nil {
		t.Fatalf("SaveSimStats: %v", err)
	}

	loaded, err := s.LoadSimStats()
	if err != nil {
		t.Fatalf("LoadSimStats: %v", err)
	}
	if loaded != stats {
		t.Errorf("loaded = %+v, want %+v", loaded, stats)
	}
}

func TestLoadSimStatsMissing(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	loaded, err := s.LoadSimStats()
	if err != nil {
		t.Fatalf("LoadSimStats: %v", err)
	}
	if loaded != (SimStats{}) {
		t.Errorf("expected zero value, got %+v", loaded)
	}
}
