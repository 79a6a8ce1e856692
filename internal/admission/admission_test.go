package admission

import (
	"testing"
	"time"

	"github.com/zerodte/optionagent/internal/config"
	"github.com/zerodte/optionagent/internal/domain"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Admission.MaxDailyTrades = 5
	cfg.Admission.MaxConsecutiveLosses = 3
	cfg.Admission.TradeCooldownMinutes = 15
	cfg.Admission.SignalDebounceMinutes = 5
	cfg.Admission.DedupWindowSeconds = 30
	cfg.Schedule.Timezone = "America/New_York"
	cfg.Schedule.TradingStart = "09:30"
	cfg.Schedule.TradingEnd = "16:00"
	return cfg
}

func weekdayNoon(t *testing.T) time.Time {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("loadlocation: %v", err)
	}
	return time.Date(2026, 8, 5, 11, 0, 0, 0, loc) // Wednesday
}

func TestEvaluateAllowsFirstSignal(t *testing.T) {
	cfg := testConfig()
	state := NewDailyState()
	alert := &domain.Alert{Ticker: "SPY", Direction: domain.DirectionCall, SignalPrice: 500}
	now := weekdayNoon(t)
	loc, _ := cfg.Location()

	r := Evaluate(cfg, state, alert, now, loc)
	if !r.Allowed {
		t.Fatalf("expected allow, got deny: %s", r.Reason)
	}
}

func TestEvaluateDeniesMaxDailyTrades(t *testing.T) {
	cfg := testConfig()
	state := NewDailyState()
	state.TradesOpened = 5
	alert := &domain.Alert{Ticker: "SPY", Direction: domain.DirectionCall, SignalPrice: 500}
	now := weekdayNoon(t)
	loc, _ := cfg.Location()

	r := Evaluate(cfg, state, alert, now, loc)
	if r.Allowed {
		t.Fatalf("expected deny for max daily trades")
	}
}

func TestEvaluateDeniesDuplicateDirection(t *testing.T) {
	cfg := testConfig()
	state := NewDailyState()
	state.OpenDirections["SPY"] = domain.DirectionCall
	alert := &domain.Alert{Ticker: "SPY", Direction: domain.DirectionCall, SignalPrice: 500}
	now := weekdayNoon(t)
	loc, _ := cfg.Location()

	r := Evaluate(cfg, state, alert, now, loc)
	if r.Allowed {
		t.Fatalf("expected deny for duplicate direction")
	}
}

func TestEvaluateDeniesCooldown(t *testing.T) {
	cfg := testConfig()
	state := NewDailyState()
	now := weekdayNoon(t)
	state.LastTradeClosedAt = now.Add(-5 * time.Minute)
	alert := &domain.Alert{Ticker: "SPY", Direction: domain.DirectionCall, SignalPrice: 500}
	loc, _ := cfg.Location()

	r := Evaluate(cfg, state, alert, now, loc)
	if r.Allowed {
		t.Fatalf("expected deny for active cooldown")
	}
}

func TestEvaluateDeniesOutsideTradingWindow(t *testing.T) {
	cfg := testConfig()
	state := NewDailyState()
	loc, _ := cfg.Location()
	evening := time.Date(2026, 8, 5, 20, 0, 0, 0, loc)
	alert := &domain.Alert{Ticker: "SPY", Direction: domain.DirectionCall, SignalPrice: 500}

	r := Evaluate(cfg, state, alert, evening, loc)
	if r.Allowed {
		t.Fatalf("expected deny outside trading window")
	}
}

func TestRecordClosedTracksConsecutiveLosses(t *testing.T) {
	state := NewDailyState()
	now := time.Now()
	state.RecordClosed("SPY", -50, now)
	state.RecordClosed("SPY", -30, now)
	if state.ConsecutiveLosses != 2 {
		t.Fatalf("consecutive losses = %d, want 2", state.ConsecutiveLosses)
	}
	state.RecordClosed("SPY", 20, now)
	if state.ConsecutiveLosses != 0 {
		t.Fatalf("win should reset consecutive losses, got %d", state.ConsecutiveLosses)
	}
}
