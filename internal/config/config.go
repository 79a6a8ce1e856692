// Package config provides configuration management for the trading agent.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	yaml "gopkg.in/yaml.v3"
)

// structValidator checks the struct tags below before Validate's
// business-rule checks run; it catches the basic "field is present and
// in range" class of error with a library instead of hand-written
// nil/zero checks.
var structValidator = validator.New()

const (
	defaultMaxDailyTrades          = 5
	defaultMaxConsecutiveLosses    = 3
	defaultTradeCooldownMinutes    = 15
	defaultSignalDebounceMinutes   = 5
	defaultDedupWindowSeconds      = 30
	defaultDefaultQuantity         = 1
	defaultEntryLimitBelowPercent  = 0.02
	defaultEntryLimitTimeoutMin    = 5
	defaultOptionDeltaTarget       = 0.40
	defaultOptionMaxSpreadPercent  = 0.15
	defaultStopLossPercent         = 0.30
	defaultProfitTargetPercent     = 0.50
	defaultTrailingStopPercent     = 0.20
	defaultMaxHoldMinutes          = 120
	defaultForceExitHour           = 15
	defaultForceExitMinute         = 45
	defaultBreakevenTriggerPercent = 0.15
	defaultOrderPollIntervalSec    = 5
	defaultExitCheckIntervalSec    = 10

	defaultConfluenceDoubleMinScore  = 5
	defaultConfluenceHalfMaxScore    = 2
	defaultConfluenceDoubleMinRelVol = 1.5
)

// Config is the complete application configuration (spec §6).
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Broker      BrokerConfig      `yaml:"broker"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Admission   AdmissionConfig   `yaml:"admission"`
	Entry       EntryConfig       `yaml:"entry"`
	Option      OptionConfig      `yaml:"option"`
	Exit        ExitConfig        `yaml:"exit"`
	Storage     StorageConfig     `yaml:"storage"`
	HTTP        HTTPConfig        `yaml:"http"`
	Backtest    BacktestConfig    `yaml:"backtest"`
	Regime      RegimeConfig      `yaml:"regime"`
}

// EnvironmentConfig controls runtime mode and logging.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode" validate:"omitempty,oneof=live paper backtest"`
	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// BrokerConfig selects and authenticates the broker adapter.
type BrokerConfig struct {
	Provider string `yaml:"provider" validate:"required,oneof=massive synthetic"`
	APIKey   string `yaml:"api_key"`
}

// ScheduleConfig defines trading windows, all parsed in Timezone.
type ScheduleConfig struct {
	Timezone         string `yaml:"timezone"` // e.g. "America/New_York"
	TradingStart     string `yaml:"trading_start"`
	TradingEnd       string `yaml:"trading_end"`
	AfternoonWindow  bool   `yaml:"afternoon_window_enabled"`
	AfternoonStart   string `yaml:"afternoon_window_start"`
	AfternoonEnd     string `yaml:"afternoon_window_end"`
}

// AdmissionConfig bounds how many and how often new trades can open
// (spec §4.3).
type AdmissionConfig struct {
	TickerAllowlist         []string `yaml:"ticker_allowlist"`
	MaxDailyTrades          int      `yaml:"max_daily_trades" validate:"omitempty,gt=0"`
	MaxDailyLossDollars     float64  `yaml:"max_daily_loss"`
	MaxConsecutiveLosses    int      `yaml:"max_consecutive_losses" validate:"omitempty,gt=0"`
	TradeCooldownMinutes    int      `yaml:"trade_cooldown_minutes" validate:"gte=0"`
	SignalDebounceMinutes   int      `yaml:"signal_debounce_minutes"`
	DedupWindowSeconds      int      `yaml:"dedup_window_seconds"`
	MinPriceRange           float64  `yaml:"min_price_range"`
}

// EntryConfig controls order placement on a new admitted signal.
type EntryConfig struct {
	DefaultQuantity          int     `yaml:"default_quantity" validate:"omitempty,gt=0"`
	EntryLimitBelowPercent   float64 `yaml:"entry_limit_below_percent" validate:"gte=0,lt=1"`
	EntryLimitTimeoutMinutes int     `yaml:"entry_limit_timeout_minutes"`
}

// OptionConfig drives contract selection (spec §4.6 / C2).
type OptionConfig struct {
	DeltaTarget      float64 `yaml:"option_delta_target" validate:"omitempty,gt=0,lt=1"`
	MaxSpreadPercent float64 `yaml:"option_max_spread_percent" validate:"omitempty,gt=0"`
	RiskFreeRate     float64 `yaml:"risk_free_rate"`
}

// ExitConfig parameterizes the exit-decision ladder (spec §4.2).
type ExitConfig struct {
	StopLossPercent                  float64 `yaml:"stop_loss_percent"`
	ProfitTargetPercent              float64 `yaml:"profit_target_percent"`
	TrailingStopPercent              float64 `yaml:"trailing_stop_percent"`
	TrailingStopAfterScaleOutPercent float64 `yaml:"trailing_stop_after_scale_out_percent"`
	MaxHoldMinutes                   int     `yaml:"max_hold_minutes"`
	ForceExitHour                    int     `yaml:"force_exit_hour"`
	ForceExitMinute                  int     `yaml:"force_exit_minute"`
	BreakevenTriggerPercent          float64 `yaml:"breakeven_trigger_percent"`
	ScaleOutEnabled                  bool    `yaml:"scale_out_enabled"`
	ScaleOutTier1Percent             float64 `yaml:"scale_out_tier1_percent"`
	ScaleOutTier1Qty                 float64 `yaml:"scale_out_tier1_qty_fraction"`
	ScaleOutTier2Percent             float64 `yaml:"scale_out_tier2_percent"`
	ScaleOutTier2Qty                 float64 `yaml:"scale_out_tier2_qty_fraction"`
	OrderPollIntervalSeconds         int     `yaml:"order_poll_interval_seconds"`
	ExitCheckIntervalSeconds         int     `yaml:"exit_check_interval_seconds"`
}

// StorageConfig points at the persistence backend.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// HTTPConfig configures the webhook/control-plane server.
type HTTPConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Port         int    `yaml:"port"`
	SharedSecret string `yaml:"shared_secret"`
}

// BacktestConfig configures the deterministic simulator and optimizer
// (spec §4.5 / §4.8).
type BacktestConfig struct {
	Seed              int64   `yaml:"seed"`
	SlippagePercent   float64 `yaml:"slippage_percent"`
	CommissionPerLeg  float64 `yaml:"commission_per_leg"`
}

// RegimeConfig drives regime-aware delta resolution, exit-parameter
// adaptation, and confluence-based quantity scaling (spec §4.6/§4.3
// enrichment). Enabled is the master switch for the whole subsystem:
// disabled (the default), every signal uses the static configured
// delta target and exit parameters exactly as before, matching the
// original system where none of this ever reached a production
// signal path.
type RegimeConfig struct {
	Enabled                   bool    `yaml:"enabled"`
	ConfluenceDoubleMinScore  int     `yaml:"confluence_double_min_score" validate:"omitempty,gt=0"`
	ConfluenceHalfMaxScore    int     `yaml:"confluence_half_max_score" validate:"gte=0"`
	ConfluenceDoubleMinRelVol float64 `yaml:"confluence_double_min_rel_vol" validate:"omitempty,gt=0"`
}

// Load reads, expands, decodes, normalizes and validates a config file.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.yaml"
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path is an operator-supplied config file
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", path, err)
	}

	cfg.Normalize()

	if err := structValidator.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// resolveLocation returns the configured timezone, defaulting to NY.
func (c *Config) resolveLocation() (*time.Location, error) {
	tz := strings.TrimSpace(c.Schedule.Timezone)
	if tz == "" {
		tz = "America/New_York"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", tz, err)
	}
	return loc, nil
}

// Normalize fills in defaults for every unset numeric/duration field so
// that a minimal config file is still runnable.
func (c *Config) Normalize() {
	if strings.TrimSpace(c.Environment.Mode) == "" {
		c.Environment.Mode = "paper"
	}
	if strings.TrimSpace(c.Environment.LogLevel) == "" {
		c.Environment.LogLevel = "info"
	}
	if strings.TrimSpace(c.Schedule.Timezone) == "" {
		c.Schedule.Timezone = "America/New_York"
	}
	if strings.TrimSpace(c.Schedule.TradingStart) == "" {
		c.Schedule.TradingStart = "09:30"
	}
	if strings.TrimSpace(c.Schedule.TradingEnd) == "" {
		c.Schedule.TradingEnd = "16:00"
	}

	if c.Admission.MaxDailyTrades == 0 {
		c.Admission.MaxDailyTrades = defaultMaxDailyTrades
	}
	if c.Admission.MaxConsecutiveLosses == 0 {
		c.Admission.MaxConsecutiveLosses = defaultMaxConsecutiveLosses
	}
	if c.Admission.TradeCooldownMinutes == 0 {
		c.Admission.TradeCooldownMinutes = defaultTradeCooldownMinutes
	}
	if c.Admission.SignalDebounceMinutes == 0 {
		c.Admission.SignalDebounceMinutes = defaultSignalDebounceMinutes
	}
	if c.Admission.DedupWindowSeconds == 0 {
		c.Admission.DedupWindowSeconds = defaultDedupWindowSeconds
	}

	if c.Entry.DefaultQuantity == 0 {
		c.Entry.DefaultQuantity = defaultDefaultQuantity
	}
	if c.Entry.EntryLimitBelowPercent == 0 {
		c.Entry.EntryLimitBelowPercent = defaultEntryLimitBelowPercent
	}
	if c.Entry.EntryLimitTimeoutMinutes == 0 {
		c.Entry.EntryLimitTimeoutMinutes = defaultEntryLimitTimeoutMin
	}

	if c.Option.DeltaTarget == 0 {
		c.Option.DeltaTarget = defaultOptionDeltaTarget
	}
	if c.Option.MaxSpreadPercent == 0 {
		c.Option.MaxSpreadPercent = defaultOptionMaxSpreadPercent
	}

	if c.Exit.StopLossPercent == 0 {
		c.Exit.StopLossPercent = defaultStopLossPercent
	}
	if c.Exit.ProfitTargetPercent == 0 {
		c.Exit.ProfitTargetPercent = defaultProfitTargetPercent
	}
	if c.Exit.TrailingStopPercent == 0 {
		c.Exit.TrailingStopPercent = defaultTrailingStopPercent
	}
	if c.Exit.TrailingStopAfterScaleOutPercent == 0 {
		c.Exit.TrailingStopAfterScaleOutPercent = c.Exit.TrailingStopPercent
	}
	if c.Exit.MaxHoldMinutes == 0 {
		c.Exit.MaxHoldMinutes = defaultMaxHoldMinutes
	}
	if c.Exit.ForceExitHour == 0 && c.Exit.ForceExitMinute == 0 {
		c.Exit.ForceExitHour = defaultForceExitHour
		c.Exit.ForceExitMinute = defaultForceExitMinute
	}
	if c.Exit.BreakevenTriggerPercent == 0 {
		c.Exit.BreakevenTriggerPercent = defaultBreakevenTriggerPercent
	}
	if c.Exit.OrderPollIntervalSeconds == 0 {
		c.Exit.OrderPollIntervalSeconds = defaultOrderPollIntervalSec
	}
	if c.Exit.ExitCheckIntervalSeconds == 0 {
		c.Exit.ExitCheckIntervalSeconds = defaultExitCheckIntervalSec
	}

	if c.Backtest.Seed == 0 {
		c.Backtest.Seed = 1
	}

	if c.Regime.ConfluenceDoubleMinScore == 0 {
		c.Regime.ConfluenceDoubleMinScore = defaultConfluenceDoubleMinScore
	}
	if c.Regime.ConfluenceHalfMaxScore == 0 {
		c.Regime.ConfluenceHalfMaxScore = defaultConfluenceHalfMaxScore
	}
	if c.Regime.ConfluenceDoubleMinRelVol == 0 {
		c.Regime.ConfluenceDoubleMinRelVol = defaultConfluenceDoubleMinRelVol
	}
}

// Validate checks field consistency beyond what YAML decoding can catch.
func (c *Config) Validate() error {
	switch c.Environment.Mode {
	case "live", "paper", "backtest":
	default:
		return fmt.Errorf("environment.mode must be one of: live, paper, backtest")
	}

	switch strings.ToLower(c.Environment.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("environment.log_level must be one of: debug, info, warn, error")
	}

	switch c.Broker.Provider {
	case "massive", "synthetic":
	default:
		return fmt.Errorf("broker.provider must be 'massive' or 'synthetic'")
	}
	if c.Broker.Provider == "massive" && strings.TrimSpace(c.Broker.APIKey) == "" {
		return fmt.Errorf("broker.api_key is required for provider 'massive'")
	}

	loc, err := c.resolveLocation()
	if err != nil {
		return err
	}
	s, err1 := time.ParseInLocation("15:04", c.Schedule.TradingStart, loc)
	e, err2 := time.ParseInLocation("15:04", c.Schedule.TradingEnd, loc)
	if err1 != nil || err2 != nil || !s.Before(e) {
		return fmt.Errorf("schedule trading window invalid (start/end parse/order)")
	}
	if c.Schedule.AfternoonWindow {
		as, err1 := time.ParseInLocation("15:04", c.Schedule.AfternoonStart, loc)
		ae, err2 := time.ParseInLocation("15:04", c.Schedule.AfternoonEnd, loc)
		if err1 != nil || err2 != nil || !as.Before(ae) {
			return fmt.Errorf("schedule.afternoon_window_start/end invalid when afternoon_window_enabled is true")
		}
	}

	if c.Admission.MaxDailyTrades <= 0 {
		return fmt.Errorf("admission.max_daily_trades must be > 0")
	}
	if c.Admission.MaxConsecutiveLosses <= 0 {
		return fmt.Errorf("admission.max_consecutive_losses must be > 0")
	}
	if c.Admission.TradeCooldownMinutes < 0 {
		return fmt.Errorf("admission.trade_cooldown_minutes must be >= 0")
	}

	if c.Entry.DefaultQuantity <= 0 {
		return fmt.Errorf("entry.default_quantity must be > 0")
	}
	if c.Entry.EntryLimitBelowPercent < 0 || c.Entry.EntryLimitBelowPercent >= 1 {
		return fmt.Errorf("entry.entry_limit_below_percent must be in [0,1)")
	}

	if c.Option.DeltaTarget <= 0 || c.Option.DeltaTarget >= 1 {
		return fmt.Errorf("option.option_delta_target must be in (0,1)")
	}
	if c.Option.MaxSpreadPercent <= 0 {
		return fmt.Errorf("option.option_max_spread_percent must be > 0")
	}

	if c.Exit.StopLossPercent <= 0 || c.Exit.StopLossPercent >= 1 {
		return fmt.Errorf("exit.stop_loss_percent must be in (0,1)")
	}
	if c.Exit.ProfitTargetPercent <= 0 {
		return fmt.Errorf("exit.profit_target_percent must be > 0")
	}
	if c.Exit.MaxHoldMinutes <= 0 {
		return fmt.Errorf("exit.max_hold_minutes must be > 0")
	}
	if c.Exit.ForceExitHour < 0 || c.Exit.ForceExitHour > 23 {
		return fmt.Errorf("exit.force_exit_hour must be in [0,23]")
	}
	if c.Exit.ForceExitMinute < 0 || c.Exit.ForceExitMinute > 59 {
		return fmt.Errorf("exit.force_exit_minute must be in [0,59]")
	}
	if c.Exit.ScaleOutEnabled {
		if c.Exit.ScaleOutTier1Percent <= 0 {
			return fmt.Errorf("exit.scale_out_tier1_percent must be > 0 when scale_out_enabled")
		}
		if c.Exit.ScaleOutTier2Percent > 0 && c.Exit.ScaleOutTier2Percent <= c.Exit.ScaleOutTier1Percent {
			return fmt.Errorf("exit.scale_out_tier2_percent must exceed tier1 when both are set")
		}
	}

	if c.HTTP.Enabled {
		if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
			return fmt.Errorf("http.port must be in (0,65535] when http.enabled")
		}
		if strings.TrimSpace(c.HTTP.SharedSecret) == "" {
			return fmt.Errorf("http.shared_secret is required when http.enabled")
		}
	}

	if c.Regime.Enabled {
		if c.Regime.ConfluenceDoubleMinScore <= 0 {
			return fmt.Errorf("regime.confluence_double_min_score must be > 0 when regime.enabled")
		}
		if c.Regime.ConfluenceHalfMaxScore >= c.Regime.ConfluenceDoubleMinScore {
			return fmt.Errorf("regime.confluence_half_max_score must be less than confluence_double_min_score")
		}
		if c.Regime.ConfluenceDoubleMinRelVol <= 0 {
			return fmt.Errorf("regime.confluence_double_min_rel_vol must be > 0 when regime.enabled")
		}
	}

	return nil
}

// Location returns the configured timezone, defaulting to NY. Callers
// thread this through instead of relying on process-local TZ.
func (c *Config) Location() (*time.Location, error) {
	return c.resolveLocation()
}

// IsWithinTradingWindow reports whether now (any timezone) falls within
// the configured regular or afternoon trading window.
func (c *Config) IsWithinTradingWindow(now time.Time) (bool, error) {
	loc, err := c.resolveLocation()
	if err != nil {
		return false, err
	}
	local := now.In(loc)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false, nil
	}

	inWindow := func(startStr, endStr string) bool {
		start, err1 := time.ParseInLocation("15:04", startStr, loc)
		end, err2 := time.ParseInLocation("15:04", endStr, loc)
		if err1 != nil || err2 != nil {
			return false
		}
		s := time.Date(local.Year(), local.Month(), local.Day(), start.Hour(), start.Minute(), 0, 0, loc)
		e := time.Date(local.Year(), local.Month(), local.Day(), end.Hour(), end.Minute(), 0, 0, loc)
		return !local.Before(s) && local.Before(e)
	}

	if inWindow(c.Schedule.TradingStart, c.Schedule.TradingEnd) {
		return true, nil
	}
	if c.Schedule.AfternoonWindow && inWindow(c.Schedule.AfternoonStart, c.Schedule.AfternoonEnd) {
		return true, nil
	}
	return false, nil
}

// ForceExitTime returns today's force-exit cutoff in the configured
// timezone for the given reference time's calendar date.
func (c *Config) ForceExitTime(ref time.Time) (time.Time, error) {
	loc, err := c.resolveLocation()
	if err != nil {
		return time.Time{}, err
	}
	local := ref.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), c.Exit.ForceExitHour, c.Exit.ForceExitMinute, 0, 0, loc), nil
}
