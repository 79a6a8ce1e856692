package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return p
}

const minimalSynthetic = `
environment:
  mode: paper
  log_level: info
broker:
  provider: synthetic
schedule:
  timezone: America/New_York
  trading_start: "09:30"
  trading_end: "16:00"
`

func TestLoadAppliesDefaults(t *testing.T) {
	p := writeTempConfig(t, minimalSynthetic)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Admission.MaxDailyTrades != defaultMaxDailyTrades {
		t.Fatalf("max_daily_trades default not applied: %d", cfg.Admission.MaxDailyTrades)
	}
	if cfg.Exit.StopLossPercent != defaultStopLossPercent {
		t.Fatalf("stop_loss_percent default not applied: %v", cfg.Exit.StopLossPercent)
	}
	if cfg.Exit.ForceExitHour != defaultForceExitHour || cfg.Exit.ForceExitMinute != defaultForceExitMinute {
		t.Fatalf("force exit time default not applied: %d:%d", cfg.Exit.ForceExitHour, cfg.Exit.ForceExitMinute)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	p := writeTempConfig(t, minimalSynthetic+"\nbogus_top_level_field: true\n")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected error decoding config with unknown field")
	}
}

func TestLoadRejectsMissingAPIKeyForMassive(t *testing.T) {
	body := `
environment:
  mode: paper
broker:
  provider: massive
schedule:
  timezone: America/New_York
  trading_start: "09:30"
  trading_end: "16:00"
`
	p := writeTempConfig(t, body)
	if _, err := Load(p); err == nil {
		t.Fatalf("expected validation error for missing broker.api_key")
	}
}

func TestIsWithinTradingWindowWeekday(t *testing.T) {
	p := writeTempConfig(t, minimalSynthetic)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	loc, _ := cfg.Location()
	wed := time.Date(2026, 8, 5, 10, 0, 0, 0, loc) // a Wednesday
	ok, err := cfg.IsWithinTradingWindow(wed)
	if err != nil {
		t.Fatalf("IsWithinTradingWindow: %v", err)
	}
	if !ok {
		t.Fatalf("expected 10:00 ET on a weekday to be within trading window")
	}
}

func TestIsWithinTradingWindowWeekend(t *testing.T) {
	p := writeTempConfig(t, minimalSynthetic)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	loc, _ := cfg.Location()
	sat := time.Date(2026, 8, 8, 10, 0, 0, 0, loc)
	ok, err := cfg.IsWithinTradingWindow(sat)
	if err != nil {
		t.Fatalf("IsWithinTradingWindow: %v", err)
	}
	if ok {
		t.Fatalf("expected Saturday to be outside trading window")
	}
}

func TestIsWithinTradingWindowAfternoonGap(t *testing.T) {
	body := minimalSynthetic + `
  afternoon_window_enabled: true
  afternoon_window_start: "13:00"
  afternoon_window_end: "15:00"
`
	// regular window 09:30-16:00 already covers 13:00-15:00, so use a
	// config with a narrower regular window to exercise the gap logic.
	body = `
environment:
  mode: paper
broker:
  provider: synthetic
schedule:
  timezone: America/New_York
  trading_start: "09:30"
  trading_end: "11:00"
  afternoon_window_enabled: true
  afternoon_window_start: "13:00"
  afternoon_window_end: "15:00"
`
	p := writeTempConfig(t, body)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	loc, _ := cfg.Location()

	midday := time.Date(2026, 8, 5, 12, 0, 0, 0, loc)
	if ok, _ := cfg.IsWithinTradingWindow(midday); ok {
		t.Fatalf("expected noon to fall in the gap between windows")
	}
	afternoon := time.Date(2026, 8, 5, 14, 0, 0, 0, loc)
	if ok, _ := cfg.IsWithinTradingWindow(afternoon); !ok {
		t.Fatalf("expected 14:00 to fall within the afternoon window")
	}
}

func TestForceExitTime(t *testing.T) {
	p := writeTempConfig(t, minimalSynthetic)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	loc, _ := cfg.Location()
	ref := time.Date(2026, 8, 5, 9, 0, 0, 0, loc)
	cutoff, err := cfg.ForceExitTime(ref)
	if err != nil {
		t.Fatalf("ForceExitTime: %v", err)
	}
	if cutoff.Hour() != defaultForceExitHour || cutoff.Minute() != defaultForceExitMinute {
		t.Fatalf("unexpected cutoff: %v", cutoff)
	}
	if cutoff.Day() != 5 {
		t.Fatalf("cutoff should be on ref's calendar day, got day %d", cutoff.Day())
	}
}
