// Package config defines all configuration for the market-making terminal.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via MMBOT_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun    bool            `mapstructure:"dry_run"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	Chain     ChainConfig     `mapstructure:"chain"`
	API       APIConfig       `mapstructure:"api"`
	MM        MMConfig        `mapstructure:"mm"`
	CopyTrade CopyTradeConfig `mapstructure:"copytrade"`
	Redeemer  RedeemerConfig  `mapstructure:"redeemer"`
	Store     StoreConfig     `mapstructure:"store"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

// WalletConfig holds the Ethereum signing key used to authorize the
// smart-contract (proxy/Safe) wallet that actually holds collateral.
type WalletConfig struct {
	PrivateKey    string `mapstructure:"private_key"`
	SignatureType int    `mapstructure:"signature_type"`
	FunderAddress string `mapstructure:"funder_address"`
}

// ChainConfig holds the Polygon JSON-RPC endpoint, chain id, and the
// addresses of the on-chain contracts C1/C2 call through.
type ChainConfig struct {
	RPCURL              string `mapstructure:"rpc_url"`
	ChainID             int64  `mapstructure:"chain_id"`
	ConditionalTokens   string `mapstructure:"conditional_tokens_address"`
	Collateral          string `mapstructure:"collateral_address"`
	Exchange            string `mapstructure:"exchange_address"`
	NegRiskExchange     string `mapstructure:"neg_risk_exchange_address"`
	NegRiskAdapter      string `mapstructure:"neg_risk_adapter_address"`
	FeeFloorGwei        int64  `mapstructure:"fee_floor_gwei"`
	FeeCapGwei          int64  `mapstructure:"fee_cap_gwei"`
	TxRetryAttempts     int    `mapstructure:"tx_retry_attempts"`
	TxRetryBackoff      time.Duration `mapstructure:"tx_retry_backoff"`
}

// APIConfig holds venue HTTP/WS endpoints and optional pre-derived L2 CLOB
// credentials (derived via L1 auth on startup if left empty).
type APIConfig struct {
	CLOBBaseURL  string `mapstructure:"clob_base_url"`
	GammaBaseURL string `mapstructure:"gamma_base_url"`
	DataBaseURL  string `mapstructure:"data_base_url"` // positions HTTP (/positions?user=...)
	WSMarketURL  string `mapstructure:"ws_market_url"`
	WSUserURL    string `mapstructure:"ws_user_url"`
	RTDSURL      string `mapstructure:"rtds_url"` // copy-trade trader-activity feed, optional
	ApiKey       string `mapstructure:"api_key"`
	Secret       string `mapstructure:"secret"`
	Passphrase   string `mapstructure:"passphrase"`
}

// MMConfig tunes the market-maker engine: the detector, the position state
// machine, and the adaptive cut-loss controller. Field names mirror spec.md
// §6's mm_* option names exactly (minus the prefix, folded under "mm").
type MMConfig struct {
	Assets               []string      `mapstructure:"assets"`
	Duration             string        `mapstructure:"duration"` // "5m" or "15m"
	TradeSize            float64       `mapstructure:"trade_size"`
	SellPrice            float64       `mapstructure:"sell_price"`
	CutLossTime          time.Duration `mapstructure:"cut_loss_time"`
	PollInterval         time.Duration `mapstructure:"poll_interval"`
	AdaptiveCutLoss      bool          `mapstructure:"adaptive_cl"`
	AdaptiveMinCombined  float64       `mapstructure:"adaptive_min_combined"`
	AdaptiveMonitorSec   time.Duration `mapstructure:"adaptive_monitor_sec"`
	RecoveryBuy          bool          `mapstructure:"recovery_buy"`
	RecoveryThreshold    float64       `mapstructure:"recovery_threshold"`
	RecoverySize         float64       `mapstructure:"recovery_size"`
}

// SlotSeconds maps Duration to the epoch-aligned slot period.
func (c MMConfig) SlotSeconds() (int64, error) {
	switch c.Duration {
	case "5m":
		return 300, nil
	case "15m":
		return 900, nil
	default:
		return 0, fmt.Errorf("mm.duration must be one of: 5m, 15m (got %q)", c.Duration)
	}
}

// CopyTradeConfig enables the RTDS trader-activity feed consumer used by
// the copy-trade strategy. The strategy's own sizing/mirroring decision is
// an external collaborator (see the non-goals in the top-level design
// notes); this controls only whether the feed connects and what dedup
// state it persists.
type CopyTradeConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	TraderWallet string `mapstructure:"trader_wallet"`
}

// RedeemerConfig controls C7's periodic redemption cadence.
type RedeemerConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// StoreConfig sets where the copy-trade dedup set and sim-stats blob are
// persisted (JSON files, atomic tmp-then-rename writes).
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DashboardConfig controls the read-only status/dashboard HTTP+WS server.
type DashboardConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config from a YAML file with env var overrides. Unrecognized
// keys in the file are rejected (strict unmarshal) so unknown options are
// errors, not silently ignored.
// Sensitive fields use env vars: MMBOT_PRIVATE_KEY, MMBOT_CLOB_API_KEY,
// MMBOT_CLOB_API_SECRET, MMBOT_CLOB_PASSPHRASE, MMBOT_DRY_RUN.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("MMBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	decodeOpt := viper.DecoderConfigOption(func(dc *mapstructure.DecoderConfig) {
		dc.ErrorUnused = true
	})
	if err := v.Unmarshal(&cfg, decodeOpt); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if key := os.Getenv("MMBOT_PRIVATE_KEY"); key != "" {
		cfg.Wallet.PrivateKey = key
	}
	if key := os.Getenv("MMBOT_CLOB_API_KEY"); key != "" {
		cfg.API.ApiKey = key
	}
	if secret := os.Getenv("MMBOT_CLOB_API_SECRET"); secret != "" {
		cfg.API.Secret = secret
	}
	if pass := os.Getenv("MMBOT_CLOB_PASSPHRASE"); pass != "" {
		cfg.API.Passphrase = pass
	}
	if v := os.Getenv("MMBOT_DRY_RUN"); v == "true" || v == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges. Every option named
// in spec.md §6 is checked here with a parse-time bound.
func (c *Config) Validate() error {
	if c.Wallet.PrivateKey == "" {
		return fmt.Errorf("wallet.private_key is required (set MMBOT_PRIVATE_KEY)")
	}
	switch c.Wallet.SignatureType {
	case 0, 1, 2:
	default:
		return fmt.Errorf("wallet.signature_type must be one of: 0 (EOA), 1 (POLY_PROXY), 2 (GNOSIS_SAFE)")
	}
	if c.Wallet.SignatureType != 0 && c.Wallet.FunderAddress == "" {
		return fmt.Errorf("wallet.funder_address is required when wallet.signature_type is 1 or 2")
	}
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}
	if c.Chain.ChainID == 0 {
		return fmt.Errorf("chain.chain_id is required (137 for Polygon mainnet)")
	}
	if c.Chain.ConditionalTokens == "" || c.Chain.Collateral == "" || c.Chain.Exchange == "" {
		return fmt.Errorf("chain.conditional_tokens_address, collateral_address, and exchange_address are required")
	}
	if c.Chain.FeeFloorGwei <= 0 {
		c.Chain.FeeFloorGwei = 30
	}
	if c.Chain.FeeCapGwei <= 0 {
		c.Chain.FeeCapGwei = 500
	}
	if c.Chain.TxRetryAttempts <= 0 {
		c.Chain.TxRetryAttempts = 3
	}
	if c.Chain.TxRetryBackoff <= 0 {
		c.Chain.TxRetryBackoff = 3 * time.Second
	}
	if c.API.CLOBBaseURL == "" {
		return fmt.Errorf("api.clob_base_url is required")
	}
	if len(c.MM.Assets) == 0 {
		return fmt.Errorf("mm.assets must list at least one asset")
	}
	if _, err := c.MM.SlotSeconds(); err != nil {
		return err
	}
	if c.MM.TradeSize < 2.5 {
		return fmt.Errorf("mm.trade_size must be >= 2.5 (MIN_SHARES_PER_SIDE)")
	}
	if c.MM.SellPrice <= 0 || c.MM.SellPrice >= 1 {
		return fmt.Errorf("mm.sell_price must be in (0, 1)")
	}
	if c.MM.CutLossTime <= 0 {
		return fmt.Errorf("mm.cut_loss_time must be > 0")
	}
	if c.MM.PollInterval <= 0 {
		return fmt.Errorf("mm.poll_interval must be > 0")
	}
	if c.MM.AdaptiveCutLoss && c.MM.AdaptiveMonitorSec <= 0 {
		return fmt.Errorf("mm.adaptive_monitor_sec must be > 0 when mm.adaptive_cl is enabled")
	}
	if c.Redeemer.Interval <= 0 {
		c.Redeemer.Interval = 60 * time.Second
	}
	if c.CopyTrade.Enabled {
		if c.CopyTrade.TraderWallet == "" {
			return fmt.Errorf("copytrade.trader_wallet is required when copytrade.enabled is true")
		}
		if c.API.RTDSURL == "" {
			return fmt.Errorf("api.rtds_url is required when copytrade.enabled is true")
		}
	}
	return nil
}
