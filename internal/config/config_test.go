package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfigYAML = `
dry_run: true
wallet:
  private_key: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
  signature_type: 0
chain:
  rpc_url: "https://polygon-rpc.com"
  chain_id: 137
  conditional_tokens_address: "0x0000000000000000000000000000000000dEaD"
  collateral_address: "0x0000000000000000000000000000000000dEaD"
  exchange_address: "0x0000000000000000000000000000000000dEaD"
api:
  clob_base_url: "https://clob.polymarket.com"
mm:
  assets: ["BTC"]
  duration: "5m"
  trade_size: 5.0
  sell_price: 0.65
  cut_loss_time: 45s
  poll_interval: 5s
redeemer:
  interval: 60s
store:
  data_dir: "./data"
logging:
  level: "info"
  format: "text"
dashboard:
  enabled: false
  port: 8090
`

func TestLoadAndValidate(t *testing.T) {
	path := writeConfig(t, validConfigYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.MM.Assets[0] != "BTC" {
		t.Errorf("assets = %v, want [BTC]", cfg.MM.Assets)
	}
	if cfg.Chain.FeeFloorGwei != 30 {
		t.Errorf("FeeFloorGwei default = %d, want 30", cfg.Chain.FeeFloorGwei)
	}
	if cfg.Chain.FeeCapGwei != 500 {
		t.Errorf("FeeCapGwei default = %d, want 500", cfg.Chain.FeeCapGwei)
	}
	if cfg.Redeemer.Interval.Seconds() != 60 {
		t.Errorf("Redeemer.Interval = %v, want 60s", cfg.Redeemer.Interval)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, validConfigYAML+"\nbogus_top_level_key: true\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected Load to reject an unrecognized key, got nil error")
	}
}

func TestValidateRequiresTradeSizeAboveMinimum(t *testing.T) {
	path := writeConfig(t, validConfigYAML+"")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.MM.TradeSize = 1.0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate to reject trade_size below 2.5")
	}
}

func TestValidateRequiresFunderAddressForProxyWallet(t *testing.T) {
	path := writeConfig(t, validConfigYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Wallet.SignatureType = 2
	cfg.Wallet.FunderAddress = ""

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate to require funder_address for signature_type 2")
	}
}

func TestValidateRequiresRTDSURLWhenCopyTradeEnabled(t *testing.T) {
	path := writeConfig(t, validConfigYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.CopyTrade.Enabled = true
	cfg.CopyTrade.TraderWallet = "0x0000000000000000000000000000000000dEaD"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate to require api.rtds_url when copytrade is enabled")
	}

	cfg.API.RTDSURL = "wss://ws-live-data.polymarket.com"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, validConfigYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.MM.Duration = "1h"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate to reject an unsupported mm.duration")
	}
}
