// Package copytrade provides a thin consumer for the RTDS (real-time data
// service) trader-activity feed used by the copy-trade strategy.
//
// The copy-trade engine itself — deciding how much to mirror and placing the
// mirrored order — is an external collaborator out of scope for this
// repository (see the non-goals in the top-level design notes); what lives
// here is the feed contract and the dedup bookkeeping the core repo commits
// to: a seen-transaction-hash set so a restart doesn't replay an already
// mirrored fill.
package copytrade

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mmterm/internal/store"
)

const (
	pingInterval       = 5 * time.Second
	minReconnectWait   = 2 * time.Second
	maxReconnectWait   = 30 * time.Second
	activityBufferSize = 64
)

// Activity is one trader-activity message from the RTDS feed.
type Activity struct {
	ProxyWallet     string  `json:"proxyWallet"`
	Side            string  `json:"side"`
	Asset           string  `json:"asset"`
	ConditionID     string  `json:"conditionId"`
	Title           string  `json:"title"`
	Price           float64 `json:"price"`
	Size            float64 `json:"size"`
	TransactionHash string  `json:"transactionHash"`
	Timestamp       int64   `json:"timestamp"`
	Outcome         string  `json:"outcome"`
}

type envelope struct {
	Topic   string   `json:"topic"`
	Payload Activity `json:"payload"`
}

// RTDSFeed maintains a websocket subscription to one trader's activity feed,
// auto-reconnecting with exponential backoff and deduplicating against a
// persisted set of already-seen transaction hashes.
type RTDSFeed struct {
	url         string
	trader      string
	store       *store.Store
	conn        *websocket.Conn
	connMu      sync.Mutex
	seen        map[string]struct{}
	seenMu      sync.Mutex
	activityCh  chan Activity
	logger      *slog.Logger
}

// NewRTDSFeed creates a feed watching the given trader's proxy wallet.
func NewRTDSFeed(url, trader string, st *store.Store, logger *slog.Logger) (*RTDSFeed, error) {
	seen, err := st.LoadSeenTrades()
	if err != nil {
		return nil, fmt.Errorf("load seen trades: %w", err)
	}
	return &RTDSFeed{
		url:        url,
		trader:     trader,
		store:      st,
		seen:       seen,
		activityCh: make(chan Activity, activityBufferSize),
		logger:     logger.With("component", "copytrade-rtds"),
	}, nil
}

// Activities returns a read-only channel of deduplicated trader-activity
// events. Messages whose transaction hash has already been seen (including
// across restarts, via the persisted dedup set) are filtered before reaching
// this channel.
func (f *RTDSFeed) Activities() <-chan Activity { return f.activityCh }

// Run connects and maintains the feed with auto-reconnect. Blocks until ctx
// is cancelled.
func (f *RTDSFeed) Run(ctx context.Context) error {
	backoff := minReconnectWait

	for {
		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("rtds feed disconnected, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

func (f *RTDSFeed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	if err := conn.WriteJSON(map[string]string{
		"subscribe": "activity",
		"wallet":    f.trader,
	}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	f.logger.Info("rtds feed connected", "trader", f.trader)

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go f.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		f.dispatch(msg)
	}
}

func (f *RTDSFeed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.connMu.Lock()
			conn := f.conn
			f.connMu.Unlock()
			if conn == nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				f.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

func (f *RTDSFeed) dispatch(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		f.logger.Debug("ignoring non-json rtds message", "data", string(data))
		return
	}
	if env.Topic != "activity" {
		return
	}

	hash := env.Payload.TransactionHash
	f.seenMu.Lock()
	if _, ok := f.seen[hash]; ok {
		f.seenMu.Unlock()
		return
	}
	f.seen[hash] = struct{}{}
	seenCopy := make(map[string]struct{}, len(f.seen))
	for h := range f.seen {
		seenCopy[h] = struct{}{}
	}
	f.seenMu.Unlock()

	if err := f.store.SaveSeenTrades(seenCopy); err != nil {
		f.logger.Error("persist seen trades", "error", err)
	}

	select {
	case f.activityCh <- env.Payload:
	default:
		f.logger.Warn("activity channel full, dropping event", "tx", hash)
	}
}
