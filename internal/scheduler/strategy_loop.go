package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/zerodte/optionagent/internal/admission"
	"github.com/zerodte/optionagent/internal/domain"
	"github.com/zerodte/optionagent/internal/logger"
	"github.com/zerodte/optionagent/internal/metrics"
	"github.com/zerodte/optionagent/internal/option"
	"github.com/zerodte/optionagent/internal/regime"
)

// runStrategyPollLoop fetches the latest bars roughly every 60 seconds,
// evaluates the configured Strategy on the newest bar, and on a fresh
// signal runs it through admission and, if admitted, opens a trade.
func (a *Agent) runStrategyPollLoop(ctx context.Context) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stop:
			return
		case <-ticker.C:
			a.pollStrategy(ctx)
		}
	}
}

func (a *Agent) pollStrategy(ctx context.Context) {
	if a.Strategy == nil || a.Underlying == "" {
		return
	}

	timer := prometheus.NewTimer(metrics.PollLatency.WithLabelValues("strategy"))
	defer timer.ObserveDuration()

	now := time.Now()
	fresh, err := a.Broker.GetPriceHistory(ctx, a.Underlying, now.Add(-2*time.Hour), now, time.Minute)
	if err != nil {
		logger.Errorf("scheduler: fetching price history for %s: %v", a.Underlying, err)
		return
	}
	if len(fresh) == 0 {
		return
	}
	a.bars = fresh

	i := len(a.bars) - 1
	sig := a.Strategy(a.bars, i)
	if sig == nil {
		return
	}

	alert := &domain.Alert{
		CorrelationID: uuid.NewString(),
		ReceivedAt:    now, Ticker: a.Underlying, Direction: sig.Direction,
		SignalPrice: sig.UnderlyingPrice, Source: "strategy", Status: domain.AlertReceived,
		ConfluenceScore: sig.ConfluenceScore, ConfluenceMax: sig.ConfluenceMax, RelativeVolume: sig.RelativeVolume,
	}
	if err := a.Store.SaveAlert(ctx, alert); err != nil {
		logger.Errorf("scheduler: saving alert: %v", err)
		return
	}

	loc, err := a.Config.Location()
	if err != nil {
		logger.Errorf("scheduler: resolving timezone: %v", err)
		return
	}
	result := admission.Evaluate(a.Config, a.Daily, alert, now, loc)
	if !result.Allowed {
		alert.MarkRejected(result.Reason)
		_ = a.Store.SaveAlert(ctx, alert)
		metrics.AlertsRejected.WithLabelValues(result.Reason).Inc()
		return
	}

	var resolution regime.Resolution
	if a.Config.Regime.Enabled {
		resolution = regime.ResolveDelta(sig.Reason, a.bars, i, a.VIX, now, a.Config.Exit.MaxHoldMinutes)
	}

	if err := a.openFromSignal(ctx, alert, sig.UnderlyingPrice, now, resolution); err != nil {
		logger.Errorf("scheduler: opening trade from signal: %v", err)
		alert.MarkRejected(err.Error())
		_ = a.Store.SaveAlert(ctx, alert)
	}
}

func (a *Agent) openFromSignal(ctx context.Context, alert *domain.Alert, underlyingPrice float64, now time.Time, resolution regime.Resolution) error {
	expiry := now.Add(time.Duration(7-now.Weekday()) * 24 * time.Hour)

	chain, err := a.Broker.GetOptionChain(ctx, a.Underlying, expiry)
	if err != nil {
		return err
	}

	candidates := make([]option.Candidate, len(chain.Contracts))
	for i, c := range chain.Contracts {
		candidates[i] = option.Candidate{
			Symbol: c.Symbol, Strike: c.Strike, Expiration: chain.Expiration,
			Quote: domain.Quote{Bid: c.Bid, Ask: c.Ask},
		}
	}

	best, err := option.Select(&a.Config.Option, alert.Direction, underlyingPrice, a.ImpliedVol, candidates, now, resolution.Delta)
	if err != nil {
		return err
	}

	trade, err := a.Entry.Open(ctx, alert, best, now)
	if err != nil {
		return err
	}
	if a.Config.Regime.Enabled {
		adapted := regime.AdaptExit(&a.Config.Exit, resolution, a.VIX)
		trade.ExitOverride = adapted.ExitConfig(&a.Config.Exit)
	}
	if err := a.Store.SaveTrade(ctx, trade); err != nil {
		return err
	}
	alert.MarkProcessed(trade.ID)
	_ = a.Store.SaveAlert(ctx, alert)
	_ = a.Store.AppendEvent(ctx, &domain.TradeEvent{TradeID: trade.ID, Timestamp: now, Kind: "entry", Message: "opened from strategy signal"})
	return nil
}
