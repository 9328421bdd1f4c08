package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rustyeddy/fxbroker/market"
	"gopkg.in/yaml.v3"
)

// Config represents the complete broker configuration
type Config struct {
	Account   AccountConfig   `json:"account" yaml:"account"`
	Execution ExecutionConfig `json:"execution" yaml:"execution"`
	Risk      RiskConfig      `json:"risk" yaml:"risk"`
	Rollover  RolloverConfig  `json:"rollover" yaml:"rollover"`
	Journal   JournalConfig   `json:"journal" yaml:"journal"`
	Feed      FeedConfig      `json:"feed" yaml:"feed"`
}

// AccountConfig contains account initialization parameters
type AccountConfig struct {
	ID       string  `json:"id" yaml:"id"`
	Currency string  `json:"currency" yaml:"currency"`
	Balance  float64 `json:"balance" yaml:"balance"`
	Leverage float64 `json:"leverage" yaml:"leverage"`
}

// ExecutionConfig contains pricing and fill parameters
type ExecutionConfig struct {
	SpreadMultiplier     float64 `json:"spread_multiplier" yaml:"spread_multiplier"`
	ReferenceUnits       float64 `json:"reference_units" yaml:"reference_units"`
	MaxSlippagePips      float64 `json:"max_slippage_pips" yaml:"max_slippage_pips"`
	RequoteThresholdPips float64 `json:"requote_threshold_pips" yaml:"requote_threshold_pips"`
	CommissionPerLot     float64 `json:"commission_per_lot" yaml:"commission_per_lot"`
	DelayMin             string  `json:"delay_min" yaml:"delay_min"` // e.g., "20ms"
	DelayMax             string  `json:"delay_max" yaml:"delay_max"`
}

// ParseDelays converts the delay strings to time.Duration
func (e ExecutionConfig) ParseDelays() (min, max time.Duration, err error) {
	if e.DelayMin != "" {
		if min, err = time.ParseDuration(e.DelayMin); err != nil {
			return 0, 0, fmt.Errorf("execution.delay_min: %w", err)
		}
	}
	if e.DelayMax != "" {
		if max, err = time.ParseDuration(e.DelayMax); err != nil {
			return 0, 0, fmt.Errorf("execution.delay_max: %w", err)
		}
	}
	return min, max, nil
}

// RiskConfig contains account protection parameters
type RiskConfig struct {
	MaxOpenPositions          int     `json:"max_open_positions" yaml:"max_open_positions"`
	MaxSymbolExposure         float64 `json:"max_symbol_exposure" yaml:"max_symbol_exposure"`
	MarginCallLevelPct        float64 `json:"margin_call_level_pct" yaml:"margin_call_level_pct"`
	StopOutLevelPct           float64 `json:"stop_out_level_pct" yaml:"stop_out_level_pct"`
	NegativeBalanceProtection bool    `json:"negative_balance_protection" yaml:"negative_balance_protection"`
}

// RolloverConfig sets the daily swap settlement boundary (UTC)
type RolloverConfig struct {
	Hour   int `json:"hour" yaml:"hour"`
	Minute int `json:"minute" yaml:"minute"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "csv", "sqlite" or "none"
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// FeedConfig selects and parameterizes the tick source
type FeedConfig struct {
	Type     string             `json:"type" yaml:"type"` // "synthetic", "ws" or "replay"
	URL      string             `json:"url,omitempty" yaml:"url,omitempty"`
	Path     string             `json:"path,omitempty" yaml:"path,omitempty"`
	Symbols  []string           `json:"symbols,omitempty" yaml:"symbols,omitempty"`
	Starts   map[string]float64 `json:"starts,omitempty" yaml:"starts,omitempty"`
	Interval string             `json:"interval,omitempty" yaml:"interval,omitempty"`
	Seed     int64              `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// ParseInterval converts the interval string to time.Duration
func (f FeedConfig) ParseInterval() (time.Duration, error) {
	if f.Interval == "" {
		return time.Second, nil
	}
	return time.ParseDuration(f.Interval)
}

// LoadFromFile loads configuration from a file (JSON or YAML based on extension)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	// Determine format by extension
	if (len(path) > 5 && path[len(path)-5:] == ".yaml") || (len(path) > 4 && path[len(path)-4:] == ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Account.Currency == "" {
		return fmt.Errorf("account.currency is required")
	}
	if c.Account.Balance <= 0 {
		return fmt.Errorf("account.balance must be positive")
	}
	if c.Account.Leverage <= 0 {
		return fmt.Errorf("account.leverage must be positive")
	}
	if c.Execution.SpreadMultiplier <= 0 {
		return fmt.Errorf("execution.spread_multiplier must be positive")
	}
	if c.Execution.ReferenceUnits <= 0 {
		return fmt.Errorf("execution.reference_units must be positive")
	}
	if c.Execution.MaxSlippagePips < 0 {
		return fmt.Errorf("execution.max_slippage_pips must not be negative")
	}
	if c.Execution.RequoteThresholdPips <= 0 {
		return fmt.Errorf("execution.requote_threshold_pips must be positive")
	}
	if c.Execution.CommissionPerLot < 0 {
		return fmt.Errorf("execution.commission_per_lot must not be negative")
	}
	min, max, err := c.Execution.ParseDelays()
	if err != nil {
		return err
	}
	if min < 0 || max < min {
		return fmt.Errorf("execution delays must satisfy 0 <= delay_min <= delay_max")
	}
	if c.Risk.MaxOpenPositions <= 0 {
		return fmt.Errorf("risk.max_open_positions must be positive")
	}
	if c.Risk.MaxSymbolExposure <= 0 {
		return fmt.Errorf("risk.max_symbol_exposure must be positive")
	}
	if c.Risk.StopOutLevelPct <= 0 {
		return fmt.Errorf("risk.stop_out_level_pct must be positive")
	}
	if c.Risk.MarginCallLevelPct < c.Risk.StopOutLevelPct {
		return fmt.Errorf("risk.margin_call_level_pct must not be below stop_out_level_pct")
	}
	if c.Rollover.Hour < 0 || c.Rollover.Hour > 23 {
		return fmt.Errorf("rollover.hour must be between 0 and 23")
	}
	if c.Rollover.Minute < 0 || c.Rollover.Minute > 59 {
		return fmt.Errorf("rollover.minute must be between 0 and 59")
	}
	switch c.Journal.Type {
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal trades_file and equity_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	case "none":
	default:
		return fmt.Errorf("journal.type must be 'csv', 'sqlite' or 'none'")
	}
	switch c.Feed.Type {
	case "synthetic":
		if len(c.Feed.Starts) == 0 {
			return fmt.Errorf("feed.starts required for synthetic type")
		}
		for symbol := range c.Feed.Starts {
			if _, ok := market.Meta(symbol); !ok {
				return fmt.Errorf("unknown instrument: %s", symbol)
			}
		}
		if _, err := c.Feed.ParseInterval(); err != nil {
			return fmt.Errorf("feed.interval: %w", err)
		}
	case "ws":
		if c.Feed.URL == "" {
			return fmt.Errorf("feed.url required for ws type")
		}
	case "replay":
		if c.Feed.Path == "" {
			return fmt.Errorf("feed.path required for replay type")
		}
	default:
		return fmt.Errorf("feed.type must be 'synthetic', 'ws' or 'replay'")
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			ID:       "SIM-001",
			Currency: "USD",
			Balance:  100000,
			Leverage: 30,
		},
		Execution: ExecutionConfig{
			SpreadMultiplier:     2.0,
			ReferenceUnits:       100000,
			MaxSlippagePips:      5.0,
			RequoteThresholdPips: 3.0,
			CommissionPerLot:     7.0,
			DelayMin:             "20ms",
			DelayMax:             "120ms",
		},
		Risk: RiskConfig{
			MaxOpenPositions:          200,
			MaxSymbolExposure:         5000000,
			MarginCallLevelPct:        100,
			StopOutLevelPct:           50,
			NegativeBalanceProtection: true,
		},
		Rollover: RolloverConfig{
			Hour:   21,
			Minute: 0,
		},
		Journal: JournalConfig{
			Type:       "csv",
			TradesFile: "./trades.csv",
			EquityFile: "./equity.csv",
		},
		Feed: FeedConfig{
			Type:     "synthetic",
			Starts:   map[string]float64{"EUR_USD": 1.0850},
			Interval: "1s",
			Seed:     42,
		},
	}
}
