package copytrade

import (
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"mmterm/internal/store"
)

func newTestFeed(t *testing.T) *RTDSFeed {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	f, err := NewRTDSFeed("wss://example.invalid/rtds", "0xtrader", st, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err != nil {
		t.Fatalf("NewRTDSFeed: %v", err)
	}
	return f
}

func activityMsg(tx string) []byte {
	env := envelope{
		Topic: "activity",
		Payload: Activity{
			ProxyWallet:     "0xtrader",
			Side:            "BUY",
			Asset:           "12345",
			ConditionID:     "0xcond",
			TransactionHash: tx,
		},
	}
	data, _ := json.Marshal(env)
	return data
}

func TestDispatchDeduplicatesByTransactionHash(t *testing.T) {
	f := newTestFeed(t)

	f.dispatch(activityMsg("0xabc"))
	f.dispatch(activityMsg("0xabc"))
	f.dispatch(activityMsg("0xdef"))

	select {
	case a := <-f.Activities():
		if a.TransactionHash != "0xabc" {
			t.Errorf("first activity tx = %q, want 0xabc", a.TransactionHash)
		}
	default:
		t.Fatal("expected first activity on channel")
	}

	select {
	case a := <-f.Activities():
		if a.TransactionHash != "0xdef" {
			t.Errorf("second activity tx = %q, want 0xdef", a.TransactionHash)
		}
	default:
		t.Fatal("expected second activity on channel")
	}

	select {
	case a := <-f.Activities():
		t.Fatalf("unexpected third activity: %+v", a)
	default:
	}
}

func TestDispatchIgnoresNonActivityTopic(t *testing.T) {
	f := newTestFeed(t)

	env := envelope{Topic: "ping"}
	data, _ := json.Marshal(env)
	f.dispatch(data)

	select {
	case a := <-f.Activities():
		t.Fatalf("unexpected activity for non-activity topic: %+v", a)
	default:
	}
}

func TestDispatchPersistsDedupSetAcrossFeeds(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(dir)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	f1, err := NewRTDSFeed("wss://example.invalid/rtds", "0xtrader", st, logger)
	if err != nil {
		t.Fatalf("NewRTDSFeed: %v", err)
	}
	f1.dispatch(activityMsg("0xabc"))
	<-f1.Activities()

	st2, err := store.Open(dir)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	f2, err := NewRTDSFeed("wss://example.invalid/rtds", "0xtrader", st2, logger)
	if err != nil {
		t.Fatalf("NewRTDSFeed: %v", err)
	}
	f2.dispatch(activityMsg("0xabc"))

	select {
	case a := <-f2.Activities():
		t.Fatalf("expected dedup to survive restart, got %+v", a)
	default:
	}
}
