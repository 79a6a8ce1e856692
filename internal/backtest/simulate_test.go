package backtest

import (
	"testing"
	"time"

	"github.com/zerodte/optionagent/internal/config"
	"github.com/zerodte/optionagent/internal/domain"
	"github.com/zerodte/optionagent/internal/signal"
)

func testSimConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Schedule.Timezone = "America/New_York"
	cfg.Schedule.TradingStart = "09:30"
	cfg.Schedule.TradingEnd = "16:00"
	cfg.Entry.DefaultQuantity = 1
	cfg.Entry.EntryLimitBelowPercent = 0.02
	cfg.Exit.StopLossPercent = 0.30
	cfg.Exit.ProfitTargetPercent = 0.50
	cfg.Exit.TrailingStopPercent = 0.20
	cfg.Exit.MaxHoldMinutes = 600
	cfg.Exit.ForceExitHour = 15
	cfg.Exit.ForceExitMinute = 55
	cfg.Exit.BreakevenTriggerPercent = 0.15
	cfg.Admission.MaxDailyTrades = 5
	cfg.Admission.MaxConsecutiveLosses = 3
	cfg.Option.RiskFreeRate = 0.04
	cfg.Option.DeltaTarget = 0.4
	cfg.Option.MaxSpreadPercent = 0.5
	return cfg
}

func risingBars(n int, start float64) []domain.Bar {
	loc, _ := time.LoadLocation("America/New_York")
	base := time.Date(2026, 3, 2, 9, 30, 0, 0, loc)
	bars := make([]domain.Bar, n)
	price := start
	for i := 0; i < n; i++ {
		price += 0.5
		bars[i] = domain.Bar{Timestamp: base.Add(time.Duration(i) * time.Minute), Open: price - 0.2, High: price + 0.3, Low: price - 0.3, Close: price, Volume: 1000}
	}
	return bars
}

func alwaysCall(bars []domain.Bar, i int) *domain.Signal {
	if i != 2 {
		return nil
	}
	return &domain.Signal{Direction: domain.DirectionCall, UnderlyingPrice: bars[i].Close}
}

func TestRunProducesAtLeastOneTrade(t *testing.T) {
	cfg := testSimConfig()
	bars := risingBars(60, 500)
	res, err := Run(SimulationConfig{
		Underlying: "SPY", Bars: bars, Strategy: signal.Strategy(alwaysCall),
		Config: cfg, RiskFreeRate: 0.04, ImpliedVol: 0.20,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) == 0 {
		t.Fatalf("expected at least one trade")
	}
	tr := res.Trades[0]
	if tr.Status != domain.StatusClosed {
		t.Fatalf("expected closed trade, got %s", tr.Status)
	}
}

func TestRunRequiresStrategyAndBars(t *testing.T) {
	cfg := testSimConfig()
	if _, err := Run(SimulationConfig{Underlying: "SPY", Config: cfg}); err == nil {
		t.Fatalf("expected error with no strategy or bars")
	}
	if _, err := Run(SimulationConfig{Underlying: "SPY", Strategy: signal.Strategy(alwaysCall), Config: cfg}); err == nil {
		t.Fatalf("expected error with no bars")
	}
}

func TestRunClosesOpenTradeAtDataEnd(t *testing.T) {
	cfg := testSimConfig()
	cfg.Exit.MaxHoldMinutes = 100000
	bars := risingBars(10, 500)
	res, err := Run(SimulationConfig{
		Underlying: "SPY", Bars: bars, Strategy: signal.Strategy(alwaysCall),
		Config: cfg, RiskFreeRate: 0.04, ImpliedVol: 0.20,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("expected exactly one trade, got %d", len(res.Trades))
	}
	if res.Trades[0].ExitReason != domain.ExitDataEnded && res.Trades[0].ExitReason != domain.ExitStopLoss {
		t.Fatalf("expected data_ended (or an earlier stop) close, got %s", res.Trades[0].ExitReason)
	}
}
