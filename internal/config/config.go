// Package config loads the boundary settings for cmd/backtester: the
// on-disk data root, cache sizing, and default taker-fee and
// maintenance-margin rates. Leverage is not read from it.
// BacktestConfig itself (symbol, window, capital) stays the caller's
// responsibility, constructed programmatically or from CLI flags.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"backtester/types"
)

// Config is the runtime configuration for the backtester binary.
type Config struct {
	Data DataConfig `yaml:"data"`
	Fees FeesConfig `yaml:"fees"`
}

// DataConfig controls where the OhlcvStore reads CSV files from and how
// aggressively it caches them.
type DataConfig struct {
	Root               string `yaml:"root"`
	Venue              string `yaml:"venue"`
	CacheCapacity      int    `yaml:"cache_capacity"`
	MemoryCeilingBytes int64  `yaml:"memory_ceiling_bytes"`
}

// FeesConfig holds the default rates applied when a run's
// BacktestConfig doesn't override them.
type FeesConfig struct {
	MaintenanceMarginRate float64 `yaml:"maintenance_margin_rate"`
	TakerFeeRate          float64 `yaml:"taker_fee_rate"`
}

// Load reads an optional .env (environment overrides win) and an
// optional config.yaml at path, returning a Config with defaults
// applied for anything left unset. A missing yaml file is not an error:
// every field then takes its documented default.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML %q: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BACKTESTER_DATA_ROOT"); v != "" {
		cfg.Data.Root = v
	}
	if v := os.Getenv("BACKTESTER_VENUE"); v != "" {
		cfg.Data.Venue = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Data.Root == "" {
		cfg.Data.Root = "./data"
	}
	if cfg.Data.Venue == "" {
		cfg.Data.Venue = "binance"
	}
	if cfg.Fees.MaintenanceMarginRate <= 0 {
		cfg.Fees.MaintenanceMarginRate = types.DefaultMaintenanceMarginRate
	}
	if cfg.Fees.TakerFeeRate <= 0 {
		cfg.Fees.TakerFeeRate = types.DefaultTakerFeeRate
	}
}
