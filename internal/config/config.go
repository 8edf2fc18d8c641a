// Package config loads the hkquant YAML configuration and applies
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the hkquant platform.
type Config struct {
	Storage   Storage         `yaml:"storage"`
	Server    Server          `yaml:"server"`
	Logging   Logging         `yaml:"logging"`
	Backtest  BacktestConfig  `yaml:"backtest"`
	Risk      RiskConfig      `yaml:"risk"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Agents    AgentsConfig    `yaml:"agents"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BacktestConfig defines simulation defaults. Individual runs may override
// any of these.
type BacktestConfig struct {
	InitialCapital float64 `yaml:"initial_capital"`
	CommissionPct  float64 `yaml:"commission_pct"`
	Slippage       float64 `yaml:"slippage"`
	RiskFreeRate   float64 `yaml:"risk_free_rate"`
	// MaxPositionWeight bounds confidence-weighted position sizing. The
	// normalization range defaults to [0, 1].
	MaxPositionWeight float64 `yaml:"max_position_weight"`
}

// RiskConfig defines portfolio risk thresholds.
type RiskConfig struct {
	MaxPositionPct float64 `yaml:"max_position_pct"`
	VaRConfidence  float64 `yaml:"var_confidence"`
}

// OptimizerConfig controls parameter sweeps.
type OptimizerConfig struct {
	MaxWorkers int `yaml:"max_workers"`
}

// AgentsConfig controls the agent runtime.
type AgentsConfig struct {
	MailboxSize      int `yaml:"mailbox_size"`
	HeartbeatSeconds int `yaml:"heartbeat_seconds"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides, and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
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
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("HKQUANT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("HKQUANT_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Optimizer.MaxWorkers = n
		}
	}
}

// applyDefaults fills zero-valued fields with platform defaults.
func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Backtest.InitialCapital == 0 {
		cfg.Backtest.InitialCapital = 1_000_000
	}
	if cfg.Backtest.MaxPositionWeight == 0 {
		cfg.Backtest.MaxPositionWeight = 1.0
	}
	if cfg.Risk.MaxPositionPct == 0 {
		cfg.Risk.MaxPositionPct = 0.25
	}
	if cfg.Risk.VaRConfidence == 0 {
		cfg.Risk.VaRConfidence = 0.95
	}
	if cfg.Optimizer.MaxWorkers == 0 {
		cfg.Optimizer.MaxWorkers = 4
	}
	if cfg.Agents.MailboxSize == 0 {
		cfg.Agents.MailboxSize = 256
	}
	if cfg.Agents.HeartbeatSeconds == 0 {
		cfg.Agents.HeartbeatSeconds = 10
	}
}
