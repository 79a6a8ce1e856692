// Package backtest replays a signal over historical bars and produces the
// same domain.Trade records the live scheduler would have produced,
// using the same admission, entry, exit and option-selection logic
// (spec §4.5 / C8). It also keeps the teacher's older multi-leg spread
// engine (engine.go, scheduler.go) as a supplemental entrypoint for
// strategies expressed as explicit option legs rather than a signal
// function.
package backtest

import (
	"fmt"
	"sort"
	"time"

	"github.com/zerodte/optionagent/internal/admission"
	"github.com/zerodte/optionagent/internal/config"
	"github.com/zerodte/optionagent/internal/domain"
	"github.com/zerodte/optionagent/internal/exit"
	"github.com/zerodte/optionagent/internal/option"
	"github.com/zerodte/optionagent/internal/pricing"
	"github.com/zerodte/optionagent/internal/regime"
	"github.com/zerodte/optionagent/internal/signal"
)

// SimulationConfig parameterizes a single-leg, signal-driven replay.
// Config carries the same admission/entry/exit/option/schedule settings
// the live scheduler runs with, so a backtest and a live session differ
// only in where bars and fills come from.
type SimulationConfig struct {
	Underlying   string
	Bars         []domain.Bar
	Strategy     signal.Strategy
	Config       *config.Config
	RiskFreeRate float64
	ImpliedVol   float64
}

// SimulationResult is every trade the replay produced plus simple
// aggregate stats over them.
type SimulationResult struct {
	Trades      []*domain.Trade
	TotalPnL    float64
	Wins        int
	Losses      int
	WinRate     float64
	MaxDrawdown float64
}

// Run walks cfg.Bars in order, evaluating cfg.Strategy on each bar. Each
// admitted signal opens a synthetic trade priced off the same
// Black-Scholes model the live option package uses, then the exit
// ladder is re-evaluated bar by bar until it closes. The replay is
// deterministic: no randomness is introduced beyond what the caller
// bakes into cfg.Bars.
func Run(cfg SimulationConfig) (*SimulationResult, error) {
	if cfg.Strategy == nil {
		return nil, fmt.Errorf("backtest: simulation requires a strategy")
	}
	if len(cfg.Bars) == 0 {
		return nil, fmt.Errorf("backtest: simulation requires bars")
	}
	if cfg.Config == nil {
		return nil, fmt.Errorf("backtest: simulation requires a config")
	}
	loc, err := cfg.Config.Location()
	if err != nil {
		return nil, fmt.Errorf("backtest: resolving timezone: %w", err)
	}

	daily := admission.NewDailyState()
	var lastDate string
	var trades []*domain.Trade
	var openTrade *domain.Trade
	var openCandidate *option.Candidate

	for i, bar := range cfg.Bars {
		dateKey := bar.Timestamp.In(loc).Format("2006-01-02")
		if dateKey != lastDate {
			daily = admission.NewDailyState()
			lastDate = dateKey
		}

		if openTrade != nil {
			mid := replayMid(openTrade, openCandidate, bar, cfg)
			openTrade.ObserveMid(mid)
			exitCfg := &cfg.Config.Exit
			if openTrade.ExitOverride != nil {
				exitCfg = openTrade.ExitOverride
			}
			decision := exit.Evaluate(exitCfg, openTrade, mid, bar.Timestamp, loc)
			if closed := applyReplayDecision(openTrade, decision, mid, bar.Timestamp); closed {
				daily.RecordClosed(cfg.Underlying, openTrade.PnLDollars, bar.Timestamp)
				trades = append(trades, openTrade)
				openTrade = nil
				openCandidate = nil
			}
			continue
		}

		sig := cfg.Strategy(cfg.Bars, i)
		if sig == nil {
			continue
		}
		alert := &domain.Alert{
			ReceivedAt: bar.Timestamp, Ticker: cfg.Underlying, Direction: sig.Direction,
			SignalPrice: sig.UnderlyingPrice, Source: "backtest", Status: domain.AlertReceived,
		}
		result := admission.Evaluate(cfg.Config, daily, alert, bar.Timestamp, loc)
		if !result.Allowed {
			continue
		}

		var resolution regime.Resolution
		var exitOverride *config.ExitConfig
		deltaTarget := 0.0
		qty := cfg.Config.Entry.DefaultQuantity
		if cfg.Config.Regime.Enabled {
			resolution = regime.ResolveDelta(sig.Reason, cfg.Bars, i, nil, bar.Timestamp, cfg.Config.Exit.MaxHoldMinutes)
			deltaTarget = resolution.Delta
			exitOverride = regime.AdaptExit(&cfg.Config.Exit, resolution, nil).ExitConfig(&cfg.Config.Exit)
			qty = regime.ResolveQuantity(cfg.Config.Regime, qty, sig.ConfluenceScore, sig.RelativeVolume)
		}

		expiry := nextWeeklyExpiry(bar.Timestamp)
		chain := option.SyntheticChain(sig.UnderlyingPrice, cfg.ImpliedVol, cfg.RiskFreeRate, expiry, bar.Timestamp, strikeStepFor(sig.UnderlyingPrice), 12)
		candidate, err := option.Select(&cfg.Config.Option, sig.Direction, sig.UnderlyingPrice, cfg.ImpliedVol, chain, bar.Timestamp, deltaTarget)
		if err != nil {
			continue
		}

		stopLossPercent := cfg.Config.Exit.StopLossPercent
		if exitOverride != nil {
			stopLossPercent = exitOverride.StopLossPercent
		}

		trade := &domain.Trade{
			TradeDate: bar.Timestamp, Direction: sig.Direction, OptionSymbol: candidate.Symbol,
			Strike: candidate.Strike, Expiration: candidate.Expiration, Source: "backtest",
			EntryQuantity: qty, AlertOptionPrice: candidate.Quote.Mid(),
			Status: domain.StatusInit, CreatedAt: bar.Timestamp, ExitOverride: exitOverride,
		}
		if err := trade.TransitionState(domain.StatusPending, "backtest entry submitted"); err != nil {
			continue
		}
		fillPrice := candidate.Quote.Mid() * (1 - cfg.Config.Entry.EntryLimitBelowPercent)
		trade.EntryPrice = fillPrice
		trade.EntryFilledAt = bar.Timestamp
		if err := trade.TransitionState(domain.StatusFilled, "backtest entry filled"); err != nil {
			continue
		}
		trade.StopLossPrice = fillPrice * (1 - stopLossPercent)
		trade.StopLossAppManaged = true
		trade.HighestPriceSeen = fillPrice
		daily.RecordOpened(cfg.Underlying, sig.Direction)

		openTrade = trade
		openCandidate = candidate
	}

	if openTrade != nil {
		last := cfg.Bars[len(cfg.Bars)-1]
		mid := replayMid(openTrade, openCandidate, last, cfg)
		_ = applyReplayDecision(openTrade, exit.Decision{Action: exit.ActionCloseFull, Reason: domain.ExitDataEnded}, mid, last.Timestamp)
		trades = append(trades, openTrade)
	}

	return summarize(trades), nil
}

// replayMid re-prices the held contract off the current bar's close
// using Black-Scholes, falling back to the entry price when no selected
// contract is known. At or past expiration BlackScholesPrice returns
// intrinsic value.
func replayMid(t *domain.Trade, c *option.Candidate, bar domain.Bar, cfg SimulationConfig) float64 {
	if c == nil {
		return t.EntryPrice
	}
	years := c.Expiration.Sub(bar.Timestamp).Hours() / 24 / 365.25
	isCall := t.Direction != domain.DirectionPut
	return pricing.BlackScholesPrice(isCall, bar.Close, c.Strike, years, cfg.RiskFreeRate, cfg.ImpliedVol)
}

// applyReplayDecision mirrors scheduler.Agent.applyDecision but against
// in-memory domain.Trade state rather than a store and broker, and
// reports whether the trade closed.
func applyReplayDecision(t *domain.Trade, d exit.Decision, mid float64, now time.Time) bool {
	switch d.Action {
	case exit.ActionHold:
		return false
	case exit.ActionRaiseStop:
		t.RaiseStopLoss(d.NewStopLossPrice)
		t.BreakevenApplied = true
		return false
	case exit.ActionScaleOut:
		t.RaiseStopLoss(d.NewStopLossPrice)
		if d.NewStopLossPrice > 0 {
			t.BreakevenApplied = true
		}
		t.ScaledOut = true
		t.ScaledOutQty += d.ScaleOutQty
		t.ScaleOutCount++
		t.ScaledOutPrice = mid
		return false
	case exit.ActionCloseFull:
		_ = t.TransitionState(domain.StatusExiting, string(d.Reason))
		t.ExitPrice = mid
		t.ExitFilledAt = now
		t.ExitReason = d.Reason
		t.PnLDollars = (mid - t.EntryPrice) * float64(t.RemainingQuantity()) * 100
		t.PnLPercent = (mid - t.EntryPrice) / t.EntryPrice
		_ = t.TransitionState(domain.StatusClosed, "backtest exit")
		return true
	}
	return false
}

func nextWeeklyExpiry(from time.Time) time.Time {
	daysOut := (7 - int(from.Weekday())) % 7
	if daysOut == 0 {
		daysOut = 7
	}
	exp := from.AddDate(0, 0, daysOut)
	return time.Date(exp.Year(), exp.Month(), exp.Day(), 16, 0, 0, 0, from.Location())
}

func strikeStepFor(spot float64) float64 {
	switch {
	case spot < 50:
		return 1
	case spot < 200:
		return 2.5
	default:
		return 5
	}
}

func summarize(trades []*domain.Trade) *SimulationResult {
	res := &SimulationResult{Trades: trades}
	peak, trough, running := 0.0, 0.0, 0.0
	for _, t := range trades {
		res.TotalPnL += t.PnLDollars
		running += t.PnLDollars
		if running > peak {
			peak = running
		}
		if dd := peak - running; dd > trough {
			trough = dd
		}
		if t.PnLDollars >= 0 {
			res.Wins++
		} else {
			res.Losses++
		}
	}
	res.MaxDrawdown = trough
	if closed := res.Wins + res.Losses; closed > 0 {
		res.WinRate = float64(res.Wins) / float64(closed)
	}
	sort.SliceStable(trades, func(i, j int) bool { return trades[i].TradeDate.Before(trades[j].TradeDate) })
	return res
}
