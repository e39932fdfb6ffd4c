package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Data.Root != "./data" {
		t.Errorf("Data.Root = %q, want ./data", cfg.Data.Root)
	}
	if cfg.Data.Venue != "binance" {
		t.Errorf("Data.Venue = %q, want binance", cfg.Data.Venue)
	}
	if cfg.Fees.MaintenanceMarginRate <= 0 {
		t.Error("MaintenanceMarginRate should fall back to a positive default")
	}
	if cfg.Fees.TakerFeeRate < 0 {
		t.Error("TakerFeeRate should fall back to a non-negative default")
	}
}

func TestLoadReadsYamlAndKeepsExplicitValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "data:\n  root: /mnt/market-data\n  venue: coinbase\nfees:\n  taker_fee_rate: 0.002\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Data.Root != "/mnt/market-data" {
		t.Errorf("Data.Root = %q, want /mnt/market-data", cfg.Data.Root)
	}
	if cfg.Data.Venue != "coinbase" {
		t.Errorf("Data.Venue = %q, want coinbase", cfg.Data.Venue)
	}
	if cfg.Fees.TakerFeeRate != 0.002 {
		t.Errorf("TakerFeeRate = %v, want 0.002 (explicit value preserved)", cfg.Fees.TakerFeeRate)
	}
	if cfg.Fees.MaintenanceMarginRate <= 0 {
		t.Error("unset MaintenanceMarginRate should still receive a default")
	}
}

func TestLoadEnvOverridesYaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "data:\n  root: /mnt/market-data\n  venue: coinbase\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("BACKTESTER_DATA_ROOT", "/override/data")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Data.Root != "/override/data" {
		t.Errorf("Data.Root = %q, want env override /override/data", cfg.Data.Root)
	}
	if cfg.Data.Venue != "coinbase" {
		t.Errorf("Data.Venue = %q, want unaffected coinbase", cfg.Data.Venue)
	}
}
