package exit

import (
	"testing"
	"time"

	"github.com/zerodte/optionagent/internal/config"
	"github.com/zerodte/optionagent/internal/domain"
)

func baseCfg() *config.ExitConfig {
	return &config.ExitConfig{
		StopLossPercent:                  0.30,
		ProfitTargetPercent:              0.50,
		TrailingStopPercent:              0.20,
		TrailingStopAfterScaleOutPercent: 0.10,
		MaxHoldMinutes:                   120,
		ForceExitHour:                    15,
		ForceExitMinute:                  45,
		BreakevenTriggerPercent:          0.15,
		ScaleOutEnabled:                  true,
		ScaleOutTier1Percent:             0.25,
		ScaleOutTier1Qty:                 0.5,
		ScaleOutTier2Percent:             0.50,
		ScaleOutTier2Qty:                 0.5,
	}
}

func loc() *time.Location { return mustLoadNY() }

func mustLoadNY() *time.Location {
	l, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.UTC
	}
	return l
}

func TestEvaluateForceExitCutoff(t *testing.T) {
	cfg := baseCfg()
	trade := &domain.Trade{EntryPrice: 1.00, EntryQuantity: 10, EntryFilledAt: time.Now()}
	now := time.Date(2026, 8, 3, 15, 45, 0, 0, loc())
	d := Evaluate(cfg, trade, 1.00, now, loc())
	if d.Action != ActionCloseFull || d.Reason != domain.ExitTimeBased {
		t.Fatalf("expected forced close at cutoff, got %+v", d)
	}
}

func TestEvaluateMaxHoldTime(t *testing.T) {
	cfg := baseCfg()
	entryTime := time.Date(2026, 8, 3, 10, 0, 0, 0, loc())
	trade := &domain.Trade{EntryPrice: 1.00, EntryQuantity: 10, EntryFilledAt: entryTime}
	now := entryTime.Add(121 * time.Minute)
	d := Evaluate(cfg, trade, 1.00, now, loc())
	if d.Action != ActionCloseFull || d.Reason != domain.ExitMaxHoldTime {
		t.Fatalf("expected max hold close, got %+v", d)
	}
}

func TestEvaluateAppManagedStopLoss(t *testing.T) {
	cfg := baseCfg()
	entryTime := time.Date(2026, 8, 3, 10, 0, 0, 0, loc())
	trade := &domain.Trade{
		EntryPrice: 1.00, EntryQuantity: 10, EntryFilledAt: entryTime,
		StopLossAppManaged: true, StopLossPrice: 0.70,
	}
	now := entryTime.Add(5 * time.Minute)
	d := Evaluate(cfg, trade, 0.65, now, loc())
	if d.Action != ActionCloseFull || d.Reason != domain.ExitStopLoss {
		t.Fatalf("expected stop loss close, got %+v", d)
	}
}

func TestEvaluateScaleOutTier1(t *testing.T) {
	cfg := baseCfg()
	entryTime := time.Date(2026, 8, 3, 10, 0, 0, 0, loc())
	trade := &domain.Trade{EntryPrice: 1.00, EntryQuantity: 10, EntryFilledAt: entryTime, HighestPriceSeen: 1.25}
	now := entryTime.Add(5 * time.Minute)
	d := Evaluate(cfg, trade, 1.25, now, loc())
	if d.Action != ActionScaleOut || d.ScaleOutQty != 5 {
		t.Fatalf("expected scale-out of 5, got %+v", d)
	}
}

func TestEvaluateScaleOutAppliesBreakevenStop(t *testing.T) {
	cfg := baseCfg()
	entryTime := time.Date(2026, 8, 3, 10, 0, 0, 0, loc())
	trade := &domain.Trade{EntryPrice: 1.00, EntryQuantity: 10, EntryFilledAt: entryTime, HighestPriceSeen: 1.25, StopLossPrice: 0.70}
	now := entryTime.Add(5 * time.Minute)
	d := Evaluate(cfg, trade, 1.25, now, loc())
	if d.NewStopLossPrice != 1.00 {
		t.Fatalf("expected breakeven stop applied alongside scale-out, got %+v", d)
	}
}

func TestEvaluateProfitTargetWhenScaleOutDisabled(t *testing.T) {
	cfg := baseCfg()
	cfg.ScaleOutEnabled = false
	entryTime := time.Date(2026, 8, 3, 10, 0, 0, 0, loc())
	trade := &domain.Trade{EntryPrice: 1.00, EntryQuantity: 10, EntryFilledAt: entryTime, HighestPriceSeen: 1.50}
	now := entryTime.Add(5 * time.Minute)
	d := Evaluate(cfg, trade, 1.50, now, loc())
	if d.Action != ActionCloseFull || d.Reason != domain.ExitProfitTarget {
		t.Fatalf("expected profit target close, got %+v", d)
	}
}

func TestEvaluateProfitTargetWhenEntryQuantityIsOne(t *testing.T) {
	cfg := baseCfg()
	entryTime := time.Date(2026, 8, 3, 10, 0, 0, 0, loc())
	trade := &domain.Trade{EntryPrice: 1.00, EntryQuantity: 1, EntryFilledAt: entryTime, HighestPriceSeen: 1.50}
	now := entryTime.Add(5 * time.Minute)
	d := Evaluate(cfg, trade, 1.50, now, loc())
	if d.Action != ActionCloseFull || d.Reason != domain.ExitProfitTarget {
		t.Fatalf("expected a full profit-target exit for a single-contract trade, got %+v", d)
	}
}

func TestEvaluateNoScaleOutWhenOneContractRemains(t *testing.T) {
	cfg := baseCfg()
	entryTime := time.Date(2026, 8, 3, 10, 0, 0, 0, loc())
	// entry_quantity 2, already scaled out of tier 1 with one contract
	// left: tier 2 must not fire and strip the position to zero, even
	// though its gain_pct and scale_out_count gates are both satisfied.
	trade := &domain.Trade{
		EntryPrice: 1.00, EntryQuantity: 2, EntryFilledAt: entryTime,
		HighestPriceSeen: 1.55, ScaleOutCount: 1, ScaledOutQty: 1, ScaledOut: true,
	}
	now := entryTime.Add(5 * time.Minute)
	d := Evaluate(cfg, trade, 1.55, now, loc())
	if d.Action == ActionScaleOut {
		t.Fatalf("scale-out must not fire with only one contract remaining, got %+v", d)
	}
}

func TestEvaluateTrailingStopAfterPeak(t *testing.T) {
	cfg := baseCfg()
	entryTime := time.Date(2026, 8, 3, 10, 0, 0, 0, loc())
	trade := &domain.Trade{
		EntryPrice: 1.00, EntryQuantity: 10, EntryFilledAt: entryTime,
		HighestPriceSeen: 1.10, ScaleOutCount: 2, ScaledOut: true,
	}
	now := entryTime.Add(5 * time.Minute)
	// after-scale-out trail is 10%: peak 1.10 * 0.9 = 0.99
	d := Evaluate(cfg, trade, 0.98, now, loc())
	if d.Action != ActionCloseFull || d.Reason != domain.ExitTrailingStop {
		t.Fatalf("expected trailing stop close, got %+v", d)
	}
}

func TestEvaluateHoldWhenNothingTriggers(t *testing.T) {
	cfg := baseCfg()
	entryTime := time.Date(2026, 8, 3, 10, 0, 0, 0, loc())
	trade := &domain.Trade{EntryPrice: 1.00, EntryQuantity: 10, EntryFilledAt: entryTime, HighestPriceSeen: 1.05}
	now := entryTime.Add(5 * time.Minute)
	d := Evaluate(cfg, trade, 1.02, now, loc())
	if d.Action != ActionHold {
		t.Fatalf("expected hold, got %+v", d)
	}
}
