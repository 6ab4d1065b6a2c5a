// Package config loads and validates the engine's YAML configuration.
// Credential, proxy-address and connection-URL values of the form "env:NAME"
// are expanded from the environment; a missing variable is a fatal config
// error.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// AccountConfig holds the operator's venue credentials and total capital.
type AccountConfig struct {
	PrivateKey    string          `yaml:"private_key"`
	ProxyAddress  string          `yaml:"proxy_address"`
	SignatureType int             `yaml:"signature_type"`
	APIKey        string          `yaml:"api_key"`
	APISecret     string          `yaml:"api_secret"`
	APIPassphrase string          `yaml:"api_passphrase"`
	TotalCapital  decimal.Decimal `yaml:"total_capital"`
}

// TraderConfig is one leader wallet to mirror.
type TraderConfig struct {
	Name             string          `yaml:"name"`
	WalletAddress    string          `yaml:"wallet_address"`
	AllocatedCapital decimal.Decimal `yaml:"allocated_capital"`
	Enabled          bool            `yaml:"enabled"`
}

// GlobalRiskConfig is the account-wide risk envelope.
type GlobalRiskConfig struct {
	MaxTotalExposure decimal.Decimal `yaml:"max_total_exposure"`
	MaxSingleBet     decimal.Decimal `yaml:"max_single_bet"`
	ReserveCapital   decimal.Decimal `yaml:"reserve_capital"`
}

// PerTraderRiskConfig scales each mirrored fill.
type PerTraderRiskConfig struct {
	MinPortfolioValue      decimal.Decimal `yaml:"min_portfolio_value"`
	MaxPositionPct         decimal.Decimal `yaml:"max_position_pct"`
	UsePortfolioProportion *bool           `yaml:"use_portfolio_proportion"`
}

// MarketFiltersConfig gates which markets may be mirrored.
type MarketFiltersConfig struct {
	WhitelistCategories []string        `yaml:"whitelist_categories"`
	BlacklistCategories []string        `yaml:"blacklist_categories"`
	MinLiquidity        decimal.Decimal `yaml:"min_liquidity"`
}

// RiskConfig groups all risk management settings.
type RiskConfig struct {
	Global        GlobalRiskConfig    `yaml:"global"`
	PerTrader     PerTraderRiskConfig `yaml:"per_trader"`
	MarketFilters MarketFiltersConfig `yaml:"market_filters"`
}

// MonitoringConfig controls the polling cadences.
type MonitoringConfig struct {
	PollIntervalSec          int `yaml:"poll_interval"`
	PortfolioSyncIntervalSec int `yaml:"portfolio_sync_interval"`
}

// LoggingConfig controls log output and the decision audit CSV.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	TradesFile string `yaml:"trades_file"`
}

// TrackingConfig controls the standalone trade history recorder.
type TrackingConfig struct {
	PollIntervalSec int    `yaml:"poll_interval"`
	OutputDir       string `yaml:"output_dir"`
}

// ControlConfig is the HTTP control server the CLI's status/pause/resume/
// stop subcommands talk to. Set listen to "disabled" to turn it off.
type ControlConfig struct {
	Listen string `yaml:"listen"`
}

// Disabled reports whether the control server is turned off.
func (c ControlConfig) Disabled() bool { return c.Listen == "disabled" }

// MetricsConfig enables the optional Redis metrics snapshot sink.
type MetricsConfig struct {
	RedisURL string `yaml:"redis_url"`
}

// AuditConfig enables the optional Postgres audit store. The CSV audit is
// always written regardless.
type AuditConfig struct {
	DatabaseURL string `yaml:"database_url"`
}

// Config aggregates all settings.
type Config struct {
	YourAccount AccountConfig    `yaml:"your_account"`
	Traders     []TraderConfig   `yaml:"traders"`
	Risk        RiskConfig       `yaml:"risk_management"`
	Monitoring  MonitoringConfig `yaml:"monitoring"`
	Logging     LoggingConfig    `yaml:"logging"`
	Tracking    TrackingConfig   `yaml:"trade_tracking"`
	Control     ControlConfig    `yaml:"control"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Audit       AuditConfig      `yaml:"audit"`

	// StateDir holds ledger/monitor/status JSON files.
	StateDir string `yaml:"state_dir"`
}

// Error marks a fatal configuration problem.
type Error struct {
	msg string
}

func (e *Error) Error() string { return "config: " + e.msg }

func errf(format string, args ...any) *Error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

// Load reads, expands, and validates the config at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errf("unable to read %s: %v", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates raw YAML config bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errf("unable to parse yaml: %v", err)
	}
	if err := cfg.expandEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// expandEnv resolves env:NAME references in credential fields.
func (c *Config) expandEnv() error {
	fields := []*string{
		&c.YourAccount.PrivateKey,
		&c.YourAccount.ProxyAddress,
		&c.YourAccount.APIKey,
		&c.YourAccount.APISecret,
		&c.YourAccount.APIPassphrase,
		&c.Metrics.RedisURL,
		&c.Audit.DatabaseURL,
	}
	for _, f := range fields {
		v, err := expandEnvRef(*f)
		if err != nil {
			return err
		}
		*f = v
	}
	return nil
}

func expandEnvRef(value string) (string, error) {
	if !strings.HasPrefix(value, "env:") {
		return value, nil
	}
	name := strings.TrimPrefix(value, "env:")
	v, ok := os.LookupEnv(name)
	if !ok {
		return "", errf("environment variable %s referenced but not set", name)
	}
	return v, nil
}

func (c *Config) applyDefaults() {
	if c.Monitoring.PollIntervalSec == 0 {
		c.Monitoring.PollIntervalSec = 5
	}
	if c.Monitoring.PortfolioSyncIntervalSec == 0 {
		c.Monitoring.PortfolioSyncIntervalSec = 60
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	if c.Logging.TradesFile == "" {
		c.Logging.TradesFile = "trades.csv"
	}
	if c.Tracking.PollIntervalSec == 0 {
		c.Tracking.PollIntervalSec = 30
	}
	if c.Tracking.OutputDir == "" {
		c.Tracking.OutputDir = "state/trader_trades"
	}
	if c.StateDir == "" {
		c.StateDir = "state"
	}
	if c.Control.Listen == "" {
		c.Control.Listen = "127.0.0.1:8642"
	}
	if c.Risk.PerTrader.MaxPositionPct.IsZero() {
		c.Risk.PerTrader.MaxPositionPct = decimal.NewFromInt(1)
	}
	if c.Risk.PerTrader.UsePortfolioProportion == nil {
		t := true
		c.Risk.PerTrader.UsePortfolioProportion = &t
	}
}

func (c *Config) validate() error {
	total := c.YourAccount.TotalCapital
	if total.Sign() <= 0 {
		return errf("your_account.total_capital must be > 0")
	}

	allocated := decimal.Zero
	names := make(map[string]struct{}, len(c.Traders))
	for _, t := range c.Traders {
		if !common.IsHexAddress(t.WalletAddress) {
			return errf("invalid wallet address for trader %q: %s", t.Name, t.WalletAddress)
		}
		if t.AllocatedCapital.Sign() <= 0 {
			return errf("trader %q: allocated_capital must be > 0", t.Name)
		}
		if _, dup := names[t.Name]; dup {
			return errf("duplicate trader name %q", t.Name)
		}
		names[t.Name] = struct{}{}
		if t.Enabled {
			allocated = allocated.Add(t.AllocatedCapital)
		}
	}
	if allocated.Add(c.Risk.Global.ReserveCapital).GreaterThan(total) {
		return errf("allocated capital (%s) plus reserve (%s) exceeds total_capital (%s)",
			allocated, c.Risk.Global.ReserveCapital, total)
	}

	if c.Risk.Global.MaxTotalExposure.Sign() <= 0 {
		return errf("risk_management.global.max_total_exposure must be > 0")
	}
	if c.Risk.PerTrader.MaxPositionPct.Sign() <= 0 || c.Risk.PerTrader.MaxPositionPct.GreaterThan(decimal.NewFromInt(1)) {
		return errf("risk_management.per_trader.max_position_pct must be in (0,1]")
	}
	if c.Monitoring.PollIntervalSec <= 0 {
		return errf("monitoring.poll_interval must be > 0")
	}
	if c.Monitoring.PortfolioSyncIntervalSec <= 0 {
		return errf("monitoring.portfolio_sync_interval must be > 0")
	}
	return nil
}

// PollInterval returns the fast-loop cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Monitoring.PollIntervalSec) * time.Second
}

// PortfolioSyncInterval returns the slow-loop cadence.
func (c *Config) PortfolioSyncInterval() time.Duration {
	return time.Duration(c.Monitoring.PortfolioSyncIntervalSec) * time.Second
}

// UseProportion reports whether sizing scales by the leader's portfolio
// proportion (default true).
func (c *Config) UseProportion() bool {
	return c.Risk.PerTrader.UsePortfolioProportion == nil || *c.Risk.PerTrader.UsePortfolioProportion
}

// Trader looks up a trader by name.
func (c *Config) Trader(name string) (TraderConfig, bool) {
	for _, t := range c.Traders {
		if t.Name == name {
			return t, true
		}
	}
	return TraderConfig{}, false
}

// EnabledTraders returns the traders flagged enabled.
func (c *Config) EnabledTraders() []TraderConfig {
	out := make([]TraderConfig, 0, len(c.Traders))
	for _, t := range c.Traders {
		if t.Enabled {
			out = append(out, t)
		}
	}
	return out
}
