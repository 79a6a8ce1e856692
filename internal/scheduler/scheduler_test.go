package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/zerodte/optionagent/internal/broker"
	"github.com/zerodte/optionagent/internal/config"
	"github.com/zerodte/optionagent/internal/domain"
	"github.com/zerodte/optionagent/internal/exit"
	"github.com/zerodte/optionagent/internal/store"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Schedule.Timezone = "America/New_York"
	cfg.Schedule.TradingStart = "09:30"
	cfg.Schedule.TradingEnd = "16:00"
	cfg.Entry.DefaultQuantity = 1
	cfg.Entry.EntryLimitBelowPercent = 0.02
	cfg.Entry.EntryLimitTimeoutMinutes = 5
	cfg.Exit.StopLossPercent = 0.30
	cfg.Exit.ProfitTargetPercent = 0.50
	cfg.Exit.TrailingStopPercent = 0.20
	cfg.Exit.TrailingStopAfterScaleOutPercent = 0.10
	cfg.Exit.MaxHoldMinutes = 120
	cfg.Exit.ForceExitHour = 15
	cfg.Exit.ForceExitMinute = 45
	cfg.Exit.BreakevenTriggerPercent = 0.15
	cfg.Exit.OrderPollIntervalSeconds = 5
	cfg.Exit.ExitCheckIntervalSeconds = 10
	cfg.Admission.MaxDailyTrades = 5
	cfg.Admission.MaxConsecutiveLosses = 3
	return cfg
}

func TestPollEntryFillsArmsStopOnFill(t *testing.T) {
	cfg := testConfig()
	br := broker.NewSyntheticBroker(1, 0.03, 0.20)
	br.SetSpot("SPY", 500)
	st := store.NewMemory()
	agent := NewAgent(cfg, br, st)

	ctx := context.Background()
	trade := &domain.Trade{Status: domain.StatusInit, EntryQuantity: 1}
	res, err := br.PlaceOrder(ctx, broker.OrderRequest{Symbol: "SPY_TEST", Type: broker.OrderTypeLimit, Quantity: 1, LimitPrice: 2.00})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	trade.EntryOrderID = res.OrderID
	trade.OptionSymbol = "SPY_TEST"
	_ = trade.TransitionState(domain.StatusPending, "seed")
	if err := st.SaveTrade(ctx, trade); err != nil {
		t.Fatalf("SaveTrade: %v", err)
	}

	agent.pollEntryFills(ctx)

	got, err := st.GetTrade(ctx, trade.ID)
	if err != nil {
		t.Fatalf("GetTrade: %v", err)
	}
	if got.Status != domain.StatusStopLossPlaced {
		t.Fatalf("expected stop armed after fill, got status %s", got.Status)
	}
	if got.StopLossPrice <= 0 {
		t.Fatalf("expected a positive stop loss price")
	}
}

func TestApplyDecisionCloseFullClosesTrade(t *testing.T) {
	cfg := testConfig()
	br := broker.NewSyntheticBroker(1, 0.03, 0.20)
	br.SetSpot("SPY", 500)
	st := store.NewMemory()
	agent := NewAgent(cfg, br, st)
	ctx := context.Background()

	trade := &domain.Trade{Status: domain.StatusFilled, EntryPrice: 1.00, EntryQuantity: 10, OptionSymbol: "SPY_TEST3"}
	if err := st.SaveTrade(ctx, trade); err != nil {
		t.Fatalf("SaveTrade: %v", err)
	}

	decision := exit.Decision{Action: exit.ActionCloseFull, Reason: domain.ExitProfitTarget}
	agent.applyDecision(ctx, trade, decision, 1.5, time.Now())

	if trade.Status != domain.StatusClosed {
		t.Fatalf("expected closed trade, got %s", trade.Status)
	}
}

func TestRollSessionProducesSummary(t *testing.T) {
	cfg := testConfig()
	br := broker.NewSyntheticBroker(1, 0.03, 0.20)
	st := store.NewMemory()
	agent := NewAgent(cfg, br, st)
	ctx := context.Background()

	loc, _ := cfg.Location()
	now := time.Date(2026, 8, 3, 16, 0, 0, 0, loc)
	trade := &domain.Trade{
		TradeDate: now, Status: domain.StatusClosed, PnLDollars: 50,
		EntryFilledAt: now.Add(-30 * time.Minute), ExitFilledAt: now, ExitReason: domain.ExitProfitTarget,
	}
	if err := st.SaveTrade(ctx, trade); err != nil {
		t.Fatalf("SaveTrade: %v", err)
	}

	agent.rollSession(ctx, now)

	summary, err := st.GetDailySummary(ctx, now)
	if err != nil {
		t.Fatalf("GetDailySummary: %v", err)
	}
	if summary.TradesClosed != 1 || summary.Wins != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}
