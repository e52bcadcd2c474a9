package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the eetc toolkit.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	EETC     EETC           `yaml:"eetc"`
	Alpaca   Alpaca         `yaml:"alpaca"`
	Logging  Logging        `yaml:"logging"`
	Gather   GatherConfig   `yaml:"gather"`
	Backtest BacktestConfig `yaml:"backtest"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// EETC holds credentials and endpoints for the EETC Data Hub and
// Notifications Manager APIs.
type EETC struct {
	APIKey              string `yaml:"api_key"`
	BaseURL             string `yaml:"base_url"`
	NotificationsAPIKey string `yaml:"notifications_api_key"`
	NotificationsURL    string `yaml:"notifications_url"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// GatherConfig controls daily bar gathering.
type GatherConfig struct {
	Symbols         []string `yaml:"symbols"`
	StartDate       string   `yaml:"start_date"`
	BatchSize       int      `yaml:"batch_size"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min"`
}

// BacktestConfig defines simulation parameters for backtest runs.
type BacktestConfig struct {
	InitialCapital     float64 `yaml:"initial_capital"`
	CommissionPerShare float64 `yaml:"commission_per_share"`
	Slippage           float64 `yaml:"slippage"`
	AllowShort         bool    `yaml:"allow_short"`
	OutputDir          string  `yaml:"output_dir"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("EETC_API_KEY"); v != "" {
		cfg.EETC.APIKey = v
	}

	if v := os.Getenv("EETC_NOTIFICATIONS_API_KEY"); v != "" {
		cfg.EETC.NotificationsAPIKey = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Canonical Alpaca SDK env var names take priority over ours.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// applyDefaults fills fields that must never be zero so that a sparse config
// file still yields a runnable backtest.
func applyDefaults(cfg *Config) {
	if cfg.Backtest.InitialCapital == 0 {
		cfg.Backtest.InitialCapital = 10000
	}
	if cfg.Backtest.Slippage == 0 {
		cfg.Backtest.Slippage = 0.0005
	}
	if cfg.Backtest.OutputDir == "" {
		cfg.Backtest.OutputDir = "results"
	}
	if cfg.Gather.BatchSize == 0 {
		cfg.Gather.BatchSize = 500
	}
}
