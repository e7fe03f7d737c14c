// Package config provides configuration management for the backtester.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/dorsadeh/wheel/internal/strategy"
)

const dateLayout = "2006-01-02"

// Defaults applied by Load when the corresponding field is unset.
const (
	// defaultDTETarget is the target days-to-expiration for new entries.
	defaultDTETarget = 30
	// defaultDTEMin is the minimum acceptable days to expiration.
	defaultDTEMin = 7
	// defaultContracts is the number of contracts opened per trade.
	defaultContracts = 1
	// defaultRiskFreeRate is the annual risk-free rate used by the
	// Sharpe and Sortino ratios.
	defaultRiskFreeRate = 0.05
)

// Config represents the complete application configuration.
type Config struct {
	Backtest  BacktestConfig  `yaml:"backtest"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Data      DataConfig      `yaml:"data"`
	Output    OutputConfig    `yaml:"output"`
	History   HistoryConfig   `yaml:"history"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BacktestConfig defines the run window and capital.
type BacktestConfig struct {
	Ticker         string  `yaml:"ticker"`
	StartDate      string  `yaml:"start_date"` // YYYY-MM-DD
	EndDate        string  `yaml:"end_date"`   // YYYY-MM-DD
	InitialCapital float64 `yaml:"initial_capital"`
	RiskFreeRate   float64 `yaml:"risk_free_rate"`
}

// StrategyConfig defines wheel entry parameters.
type StrategyConfig struct {
	DTETarget int `yaml:"dte_target"`
	DTEMin    int `yaml:"dte_min"`
	// DeltaTarget applies to both sides unless PutDelta or CallDelta
	// override it.
	DeltaTarget *float64 `yaml:"delta_target"`
	PutDelta    *float64 `yaml:"put_delta"`
	CallDelta   *float64 `yaml:"call_delta"`
	// OTMPct is the out-of-the-money fallback used when the chain has no
	// delta data. Unset derives it from the effective delta.
	OTMPct                *float64 `yaml:"otm_pct"`
	Contracts             int      `yaml:"contracts"`
	CommissionPerContract float64  `yaml:"commission_per_contract"`
	// CallProtectionBand gates covered-call entries until the underlying
	// recovers to within this many dollars of the cost basis.
	CallProtectionBand *float64 `yaml:"call_protection_band"`
	ContractMultiplier int      `yaml:"contract_multiplier"`
}

// DataConfig selects and configures the market data source.
type DataConfig struct {
	Provider string `yaml:"provider"` // dataset | synthetic
	BaseURL  string `yaml:"base_url"`
	CacheDir string `yaml:"cache_dir"`
	// Synthetic provider knobs, ignored for the dataset provider.
	SyntheticSeed       int64   `yaml:"synthetic_seed"`
	SyntheticStartPrice float64 `yaml:"synthetic_start_price"`
}

// OutputConfig defines where run artifacts are written.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// HistoryConfig defines the run history database.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// DashboardConfig defines the local results dashboard.
type DashboardConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig defines log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
	// File enables rotating file output when set; empty logs to stderr.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Backtest.RiskFreeRate == 0 {
		c.Backtest.RiskFreeRate = defaultRiskFreeRate
	}
	if c.Strategy.DTETarget == 0 {
		c.Strategy.DTETarget = defaultDTETarget
	}
	if c.Strategy.DTEMin == 0 {
		c.Strategy.DTEMin = defaultDTEMin
	}
	if c.Strategy.Contracts == 0 {
		c.Strategy.Contracts = defaultContracts
	}
	if c.Data.Provider == "" {
		c.Data.Provider = "dataset"
	}
	if c.Data.CacheDir == "" {
		c.Data.CacheDir = ".wheel-cache"
	}
	if c.Data.SyntheticStartPrice == 0 {
		c.Data.SyntheticStartPrice = 100
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "output"
	}
	if c.History.Path == "" {
		c.History.Path = "wheel-history.db"
	}
	if c.Dashboard.Addr == "" {
		c.Dashboard.Addr = "127.0.0.1:9000"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	// Backtest validation
	if c.Backtest.Ticker == "" {
		return fmt.Errorf("backtest.ticker is required")
	}
	start, err := c.StartDate()
	if err != nil {
		return fmt.Errorf("backtest.start_date invalid: %w", err)
	}
	end, err := c.EndDate()
	if err != nil {
		return fmt.Errorf("backtest.end_date invalid: %w", err)
	}
	if end.Before(start) {
		return fmt.Errorf("backtest.end_date (%s) must not precede backtest.start_date (%s)",
			c.Backtest.EndDate, c.Backtest.StartDate)
	}
	if c.Backtest.InitialCapital <= 0 {
		return fmt.Errorf("backtest.initial_capital must be > 0")
	}
	if c.Backtest.RiskFreeRate < 0 || c.Backtest.RiskFreeRate > 0.5 {
		return fmt.Errorf("backtest.risk_free_rate must be between 0 and 0.5")
	}

	// Strategy validation
	if c.Strategy.DTEMin < 0 {
		return fmt.Errorf("strategy.dte_min must be >= 0")
	}
	if c.Strategy.DTETarget < c.Strategy.DTEMin {
		return fmt.Errorf("strategy.dte_target (%d) must be >= strategy.dte_min (%d)",
			c.Strategy.DTETarget, c.Strategy.DTEMin)
	}
	for name, d := range map[string]*float64{
		"strategy.delta_target": c.Strategy.DeltaTarget,
		"strategy.put_delta":    c.Strategy.PutDelta,
		"strategy.call_delta":   c.Strategy.CallDelta,
	} {
		if d != nil && (*d <= 0 || *d >= 1) {
			return fmt.Errorf("%s must be in (0,1)", name)
		}
	}
	if c.Strategy.OTMPct != nil && (*c.Strategy.OTMPct <= 0 || *c.Strategy.OTMPct >= 1) {
		return fmt.Errorf("strategy.otm_pct must be in (0,1)")
	}
	if c.Strategy.Contracts <= 0 {
		return fmt.Errorf("strategy.contracts must be > 0")
	}
	if c.Strategy.CommissionPerContract < 0 {
		return fmt.Errorf("strategy.commission_per_contract must be >= 0")
	}
	if c.Strategy.CallProtectionBand != nil && *c.Strategy.CallProtectionBand < 0 {
		return fmt.Errorf("strategy.call_protection_band must be >= 0")
	}
	if c.Strategy.ContractMultiplier < 0 {
		return fmt.Errorf("strategy.contract_multiplier must be >= 0")
	}

	// Data validation
	if c.Data.Provider != "dataset" && c.Data.Provider != "synthetic" {
		return fmt.Errorf("data.provider must be 'dataset' or 'synthetic'")
	}

	// Logging validation
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json'")
	}
	return nil
}

// StartDate parses the configured start date.
func (c *Config) StartDate() (time.Time, error) {
	return time.Parse(dateLayout, c.Backtest.StartDate)
}

// EndDate parses the configured end date.
func (c *Config) EndDate() (time.Time, error) {
	return time.Parse(dateLayout, c.Backtest.EndDate)
}

// SelectorConfig maps the strategy section onto selector parameters.
func (c *Config) SelectorConfig() strategy.SelectorConfig {
	return strategy.SelectorConfig{
		DTETarget:   c.Strategy.DTETarget,
		DTEMin:      c.Strategy.DTEMin,
		DeltaTarget: c.Strategy.DeltaTarget,
		PutDelta:    c.Strategy.PutDelta,
		CallDelta:   c.Strategy.CallDelta,
		OTMPct:      c.Strategy.OTMPct,
	}
}

// WheelConfig maps the strategy section onto wheel parameters.
func (c *Config) WheelConfig() strategy.WheelConfig {
	return strategy.WheelConfig{
		ContractsPerTrade:     c.Strategy.Contracts,
		CommissionPerContract: c.Strategy.CommissionPerContract,
		CallProtectionBand:    c.Strategy.CallProtectionBand,
	}
}
