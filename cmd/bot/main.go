// Polymarket MM Terminal — an automated market maker for short-lived
// binary prediction markets, built around a deterministic time-slot
// detector and a per-asset position state machine with an adaptive
// cut-loss protocol.
//
// Architecture:
//
//	main.go                  — entry point: loads config, wires every
//	                            component, waits for SIGINT/SIGTERM
//	internal/chain            — single-writer on-chain transaction
//	                            serializer over the smart-contract wallet
//	internal/ctf               — split/merge/redeem + balance/payout reads
//	internal/exchange          — CLOB order gateway (limit/market orders,
//	                            cancel, status, midpoint) + L1/L2 auth
//	internal/detector           — deterministic time-slot market discovery
//	internal/position           — dispatcher + per-position state machine,
//	                            adaptive cut-loss, recovery buy
//	internal/cleanup            — startup cleanup pass + periodic redeemer
//	internal/copytrade          — thin RTDS trader-activity feed consumer
//	internal/store               — copy-trade dedup set + sim-stats blob
//	internal/api                — read-only status/dashboard HTTP+WS server
package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"mmterm/internal/api"
	"mmterm/internal/chain"
	"mmterm/internal/cleanup"
	"mmterm/internal/config"
	"mmterm/internal/copytrade"
	"mmterm/internal/ctf"
	"mmterm/internal/detector"
	"mmterm/internal/exchange"
	"mmterm/internal/position"
	"mmterm/internal/store"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("MMBOT_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders or on-chain writes will be placed")
	}

	privKey, err := parsePrivateKey(cfg.Wallet.PrivateKey)
	if err != nil {
		logger.Error("failed to parse wallet private key", "error", err)
		os.Exit(1)
	}

	addrs := chain.Addresses{
		Wallet:            gethcrypto.PubkeyToAddress(privKey.PublicKey),
		ConditionalTokens: hexAddr(cfg.Chain.ConditionalTokens),
		Collateral:        hexAddr(cfg.Chain.Collateral),
		Exchange:          hexAddr(cfg.Chain.Exchange),
		NegRiskExchange:   hexAddr(cfg.Chain.NegRiskExchange),
		NegRiskAdapter:    hexAddr(cfg.Chain.NegRiskAdapter),
	}
	if cfg.Wallet.FunderAddress != "" {
		addrs.Wallet = hexAddr(cfg.Wallet.FunderAddress)
	}

	executor, err := chain.New(cfg.Chain, privKey, addrs, cfg.DryRun, logger)
	if err != nil {
		logger.Error("failed to create chain executor", "error", err)
		os.Exit(1)
	}

	// ctf.Client issues read-only eth_call requests (balances, payouts) even
	// in dry-run mode; only on-chain writes are skipped there, and those go
	// through executor, which handles its own dry-run short-circuit.
	ethClient, err := ethclient.Dial(cfg.Chain.RPCURL)
	if err != nil {
		logger.Error("failed to dial rpc", "error", err)
		os.Exit(1)
	}

	ctfClient, err := ctf.New(executor, ethClient, addrs)
	if err != nil {
		logger.Error("failed to create ctf client", "error", err)
		os.Exit(1)
	}

	auth, err := exchange.NewAuth(*cfg)
	if err != nil {
		logger.Error("failed to create exchange auth", "error", err)
		os.Exit(1)
	}
	clobClient := exchange.NewClient(*cfg, auth, addrs, logger)

	st, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	det, err := detector.New(cfg.API.GammaBaseURL, cfg.MM, logger)
	if err != nil {
		logger.Error("failed to create detector", "error", err)
		os.Exit(1)
	}

	dispatcher := position.NewDispatcher(position.Deps{
		CTF:    ctfClient,
		CLOB:   clobClient,
		MM:     cfg.MM,
		Logger: logger,
	})

	redeemer := cleanup.New(cfg.API.DataBaseURL, clobClient, ctfClient, addrs.Wallet, cfg.Redeemer, logger)

	var rtdsFeed *copytrade.RTDSFeed
	if cfg.CopyTrade.Enabled {
		rtdsFeed, err = copytrade.NewRTDSFeed(cfg.API.RTDSURL, cfg.CopyTrade.TraderWallet, st, logger)
		if err != nil {
			logger.Error("failed to create rtds feed", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	if !cfg.DryRun {
		if _, err := clobClient.DeriveAPIKey(ctx); err != nil {
			logger.Warn("failed to derive clob api key, continuing with configured credentials", "error", err)
		}
	}

	// executor's single-writer queue must be draining before anything calls
	// Exec, or a startup merge (stranded legs from a prior crash) enqueues
	// and blocks on <-reply forever with nothing reading the queue.
	go executor.Run(ctx)

	if err := redeemer.StartupCleanup(ctx); err != nil {
		logger.Error("startup cleanup failed", "error", err)
	}

	go det.Run(ctx)
	go dispatcher.Run(ctx, det.Events())
	go redeemer.Run(ctx)
	if rtdsFeed != nil {
		go rtdsFeed.Run(ctx)
		go logCopiedActivity(ctx, rtdsFeed, logger)
	}

	var apiServer *api.Server
	if cfg.Dashboard.Enabled {
		apiServer = api.NewServer(cfg.Dashboard, dispatcher, *cfg, logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("dashboard server failed", "error", err)
			}
		}()
		logger.Info("dashboard started", "url", fmt.Sprintf("http://localhost:%d", cfg.Dashboard.Port))
	}

	logger.Info("mm terminal started",
		"assets", cfg.MM.Assets,
		"duration", cfg.MM.Duration,
		"trade_size", cfg.MM.TradeSize,
		"dry_run", cfg.DryRun,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error("failed to stop dashboard", "error", err)
		}
	}

	cancel()
	time.Sleep(300 * time.Millisecond)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parsePrivateKey(raw string) (*ecdsa.PrivateKey, error) {
	keyHex := strings.TrimPrefix(raw, "0x")
	return gethcrypto.HexToECDSA(keyHex)
}

func hexAddr(s string) common.Address {
	return common.HexToAddress(s)
}

// logCopiedActivity drains the RTDS feed and logs each deduplicated trader
// fill. The copy-trade engine's own sizing/mirroring decision is an
// external collaborator, not reimplemented here.
func logCopiedActivity(ctx context.Context, feed *copytrade.RTDSFeed, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case a, ok := <-feed.Activities():
			if !ok {
				return
			}
			logger.Info("copy-trade activity observed",
				"trader", a.ProxyWallet,
				"side", a.Side,
				"asset", a.Asset,
				"price", a.Price,
				"size", a.Size,
				"tx", a.TransactionHash,
			)
		}
	}
}
