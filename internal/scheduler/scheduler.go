// Package scheduler runs the agent's cooperative background loops:
// polling entry fills, evaluating the exit ladder on open trades,
// cleaning up at session rollover, and pulling fresh signal bars
// (spec §4.7 / C10).
package scheduler

import (
	"context"
	"time"

	"github.com/zerodte/optionagent/internal/admission"
	"github.com/zerodte/optionagent/internal/broker"
	"github.com/zerodte/optionagent/internal/config"
	"github.com/zerodte/optionagent/internal/domain"
	"github.com/zerodte/optionagent/internal/entry"
	"github.com/zerodte/optionagent/internal/exit"
	"github.com/zerodte/optionagent/internal/logger"
	"github.com/zerodte/optionagent/internal/metrics"
	"github.com/zerodte/optionagent/internal/signal"
	"github.com/zerodte/optionagent/internal/store"
)

// Agent wires together the components the scheduler's loops drive.
type Agent struct {
	Config  *config.Config
	Broker  broker.Broker
	Store   store.Store
	Entry   *entry.Manager
	Daily   *admission.DailyState

	// Underlying and Strategy parameterize the strategy poll loop;
	// Strategy is nil-safe (a nil Strategy simply never signals).
	Underlying   string
	Strategy     signal.Strategy
	ImpliedVol   float64
	bars         []domain.Bar

	// VIX is the latest VIX level, when the broker feed supplies one;
	// nil leaves the regime delta resolver's VIX factor inactive.
	VIX *float64

	stop chan struct{}
}

// NewAgent builds an Agent ready for Run.
func NewAgent(cfg *config.Config, br broker.Broker, st store.Store) *Agent {
	return &Agent{
		Config: cfg,
		Broker: br,
		Store:  st,
		Entry:  entry.NewManager(cfg, br),
		Daily:  admission.NewDailyState(),
		stop:   make(chan struct{}),
	}
}

// Stop signals every running loop to exit at its next tick.
func (a *Agent) Stop() {
	close(a.stop)
}

// Run starts all four cooperative loops and blocks until ctx is
// cancelled or Stop is called. Each loop owns its own ticker so a slow
// exit evaluation never delays entry-fill polling.
func (a *Agent) Run(ctx context.Context) error {
	logger.Infof("scheduler: starting")

	done := make(chan struct{})
	go func() { a.runEntryFillLoop(ctx); close(done) }()

	exitDone := make(chan struct{})
	go func() { a.runExitEvalLoop(ctx); close(exitDone) }()

	cleanupDone := make(chan struct{})
	go func() { a.runSessionCleanupLoop(ctx); close(cleanupDone) }()

	strategyDone := make(chan struct{})
	go func() { a.runStrategyPollLoop(ctx); close(strategyDone) }()

	<-done
	<-exitDone
	<-cleanupDone
	<-strategyDone
	logger.Infof("scheduler: stopped")
	return nil
}

// runEntryFillLoop polls open PENDING trades for entry fills roughly
// every 5 seconds.
func (a *Agent) runEntryFillLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(a.Config.Exit.OrderPollIntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stop:
			return
		case <-ticker.C:
			a.pollEntryFills(ctx)
		}
	}
}

func (a *Agent) pollEntryFills(ctx context.Context) {
	trades, err := a.Store.ListOpenTrades(ctx)
	if err != nil {
		logger.Errorf("scheduler: listing open trades: %v", err)
		return
	}

	now := time.Now()
	for _, t := range trades {
		if t.Status != domain.StatusPending {
			continue
		}
		filled, err := a.Entry.PollFill(ctx, t, now)
		if err != nil {
			logger.Errorf("scheduler: polling fill for trade %d: %v", t.ID, err)
			continue
		}
		if filled {
			a.Entry.ArmStop(t)
			if err := t.TransitionState(domain.StatusStopLossPlaced, "initial stop armed on fill"); err != nil {
				logger.Errorf("scheduler: arming stop for trade %d: %v", t.ID, err)
			}
			a.Daily.RecordOpened(underlyingOf(t.OptionSymbol), t.Direction)
			metrics.TradesOpened.Inc()
			metrics.OpenPositions.Inc()
		} else if a.Entry.TimedOut(t, now) && t.Status == domain.StatusPending {
			if err := a.Broker.CancelOrder(ctx, t.EntryOrderID); err != nil {
				logger.Errorf("scheduler: cancelling timed-out entry for trade %d: %v", t.ID, err)
			}
		}
		if err := a.Store.SaveTrade(ctx, t); err != nil {
			logger.Errorf("scheduler: saving trade %d: %v", t.ID, err)
		}
	}
}

// runExitEvalLoop evaluates the exit ladder on every open, filled trade
// roughly every 10 seconds.
func (a *Agent) runExitEvalLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(a.Config.Exit.ExitCheckIntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stop:
			return
		case <-ticker.C:
			a.evaluateExits(ctx)
		}
	}
}

func (a *Agent) evaluateExits(ctx context.Context) {
	loc, err := a.Config.Location()
	if err != nil {
		logger.Errorf("scheduler: resolving timezone: %v", err)
		return
	}

	trades, err := a.Store.ListOpenTrades(ctx)
	if err != nil {
		logger.Errorf("scheduler: listing open trades: %v", err)
		return
	}

	now := time.Now()
	for _, t := range trades {
		if t.Status != domain.StatusFilled && t.Status != domain.StatusStopLossPlaced {
			continue
		}

		quote, err := a.Broker.GetQuote(ctx, t.OptionSymbol)
		if err != nil {
			logger.Errorf("scheduler: quoting %s for trade %d: %v", t.OptionSymbol, t.ID, err)
			continue
		}
		mid := quote.Mid()
		t.ObserveMid(mid)
		_ = a.Store.AppendPriceSnapshot(ctx, &domain.PriceSnapshot{TradeID: t.ID, Timestamp: now, Mid: mid, HighWaterMark: t.HighestPriceSeen})

		exitCfg := &a.Config.Exit
		if t.ExitOverride != nil {
			exitCfg = t.ExitOverride
		}
		decision := exit.Evaluate(exitCfg, t, mid, now, loc)
		a.applyDecision(ctx, t, decision, mid, now)
	}
}

func (a *Agent) applyDecision(ctx context.Context, t *domain.Trade, d exit.Decision, mid float64, now time.Time) {
	switch d.Action {
	case exit.ActionHold:
		return

	case exit.ActionRaiseStop:
		t.RaiseStopLoss(d.NewStopLossPrice)
		t.BreakevenApplied = true
		_ = a.Store.SaveTrade(ctx, t)

	case exit.ActionScaleOut:
		t.RaiseStopLoss(d.NewStopLossPrice)
		if d.NewStopLossPrice > 0 {
			t.BreakevenApplied = true
		}
		t.ScaledOut = true
		t.ScaledOutQty += d.ScaleOutQty
		t.ScaleOutCount++
		t.ScaledOutPrice = mid
		_ = a.Store.SaveTrade(ctx, t)
		_ = a.Store.AppendEvent(ctx, &domain.TradeEvent{TradeID: t.ID, Timestamp: now, Kind: "scale_out", Message: "partial close"})

	case exit.ActionCloseFull:
		if err := t.TransitionState(domain.StatusExiting, string(d.Reason)); err != nil {
			logger.Errorf("scheduler: transitioning trade %d to exiting: %v", t.ID, err)
			return
		}
		res, err := a.Broker.PlaceOrder(ctx, broker.OrderRequest{
			Symbol: t.OptionSymbol, Side: broker.SideSellToClose, Type: broker.OrderTypeMarket, Quantity: t.RemainingQuantity(),
		})
		if err != nil {
			logger.Errorf("scheduler: placing exit order for trade %d: %v", t.ID, err)
			return
		}
		t.ExitOrderID = res.OrderID
		t.ExitPrice = mid
		t.ExitFilledAt = now
		t.ExitReason = d.Reason
		t.PnLDollars = (mid - t.EntryPrice) * float64(t.RemainingQuantity()) * 100
		t.PnLPercent = (mid - t.EntryPrice) / t.EntryPrice
		if err := t.TransitionState(domain.StatusClosed, "exit order filled"); err != nil {
			logger.Errorf("scheduler: closing trade %d: %v", t.ID, err)
			return
		}
		a.Daily.RecordClosed(underlyingOf(t.OptionSymbol), t.PnLDollars, now)
		metrics.TradesClosed.WithLabelValues(string(d.Reason)).Inc()
		metrics.OpenPositions.Dec()
		_ = a.Store.SaveTrade(ctx, t)
		_ = a.Store.AppendEvent(ctx, &domain.TradeEvent{TradeID: t.ID, Timestamp: now, Kind: "exit", Message: string(d.Reason)})
	}
}

// runSessionCleanupLoop runs once per calendar day around market close
// to roll daily counters and persist the day's summary.
func (a *Agent) runSessionCleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	var lastRolled string
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stop:
			return
		case <-ticker.C:
			loc, err := a.Config.Location()
			if err != nil {
				continue
			}
			now := time.Now().In(loc)
			cutoff, err := a.Config.ForceExitTime(now)
			if err != nil {
				continue
			}
			key := now.Format("2006-01-02")
			if now.After(cutoff.Add(5*time.Minute)) && key != lastRolled {
				a.rollSession(ctx, now)
				lastRolled = key
			}
		}
	}
}

func (a *Agent) rollSession(ctx context.Context, now time.Time) {
	trades, err := a.Store.ListTradesByDate(ctx, now)
	if err != nil {
		logger.Errorf("scheduler: listing trades for session rollup: %v", err)
		return
	}

	summary := &domain.DailySummary{Date: now, ExitReasonCounts: make(map[domain.ExitReason]int)}
	for _, t := range trades {
		summary.TradesOpened++
		if t.Status == domain.StatusClosed {
			summary.TradesClosed++
			if t.PnLDollars >= 0 {
				summary.Wins++
			} else {
				summary.Losses++
			}
			summary.TotalPnLDollars += t.PnLDollars
			summary.ExitReasonCounts[t.ExitReason]++
		}
	}
	if summary.TradesClosed > 0 {
		var totalMinutes float64
		for _, t := range trades {
			if t.Status == domain.StatusClosed && !t.EntryFilledAt.IsZero() {
				totalMinutes += t.ExitFilledAt.Sub(t.EntryFilledAt).Minutes()
			}
		}
		summary.AvgHoldMinutes = totalMinutes / float64(summary.TradesClosed)
	}

	if err := a.Store.SaveDailySummary(ctx, summary); err != nil {
		logger.Errorf("scheduler: saving daily summary: %v", err)
	}
	a.Daily = admission.NewDailyState()
	logger.Infof("scheduler: rolled session for %s, %d trades closed", now.Format("2006-01-02"), summary.TradesClosed)
}

// underlyingOf strips an OCC-style option symbol down to its
// underlying ticker (everything before the first digit).
func underlyingOf(symbol string) string {
	for i, c := range symbol {
		if c >= '0' && c <= '9' {
			return symbol[:i]
		}
	}
	return symbol
}
