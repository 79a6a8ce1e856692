// Package admission runs the ordered set of checks that decide whether
// an incoming signal is allowed to open a new trade (spec §4.3).
package admission

import (
	"time"

	"github.com/zerodte/optionagent/internal/config"
	"github.com/zerodte/optionagent/internal/domain"
)

// DailyState tracks the counters the admission checks consult, scoped
// to one trading date. The caller resets it at session rollover.
type DailyState struct {
	TradesOpened        int
	RealizedPnLDollars   float64
	ConsecutiveLosses    int
	LastTradeClosedAt    time.Time
	LastSignalAt         map[string]time.Time // keyed by ticker+direction
	OpenDirections       map[string]domain.Direction
	RecentSignalHashes   map[string]time.Time // dedup window, keyed by ticker+direction+price-bucket
}

// NewDailyState returns a zeroed state ready for a fresh trading date.
func NewDailyState() *DailyState {
	return &DailyState{
		LastSignalAt:       make(map[string]time.Time),
		OpenDirections:      make(map[string]domain.Direction),
		RecentSignalHashes: make(map[string]time.Time),
	}
}

// Result is the admission decision: Allowed true means open the trade.
type Result struct {
	Allowed bool
	Reason  string
}

func allow() Result  { return Result{Allowed: true} }
func deny(reason string) Result { return Result{Allowed: false, Reason: reason} }

// check is one named, short-circuiting admission rule.
type check func(cfg *config.Config, state *DailyState, alert *domain.Alert, now time.Time, loc *time.Location) (Result, bool)

// Evaluate runs the fixed-order checklist and returns the first denial,
// or an allow result if every check passes.
func Evaluate(cfg *config.Config, state *DailyState, alert *domain.Alert, now time.Time, loc *time.Location) Result {
	checks := []check{
		checkTickerAllowlist,
		checkDedupWindow,
		checkDailyTradeCount,
		checkDailyLossCap,
		checkConsecutiveLossPause,
		checkCooldown,
		checkSignalDebounce,
		checkDuplicateDirection,
		checkReverseSignal,
		checkTradingWindow,
	}

	for _, c := range checks {
		if result, matched := c(cfg, state, alert, now, loc); matched {
			return result
		}
	}
	return allow()
}

func checkTickerAllowlist(cfg *config.Config, state *DailyState, alert *domain.Alert, now time.Time, loc *time.Location) (Result, bool) {
	if len(cfg.Admission.TickerAllowlist) == 0 {
		return Result{}, false
	}
	for _, t := range cfg.Admission.TickerAllowlist {
		if t == alert.Ticker {
			return Result{}, false
		}
	}
	return deny("ticker not in allowlist"), true
}

func checkDedupWindow(cfg *config.Config, state *DailyState, alert *domain.Alert, now time.Time, loc *time.Location) (Result, bool) {
	key := dedupKey(alert)
	if last, ok := state.RecentSignalHashes[key]; ok {
		window := time.Duration(cfg.Admission.DedupWindowSeconds) * time.Second
		if now.Sub(last) < window {
			return deny("duplicate signal within dedup window"), true
		}
	}
	state.RecentSignalHashes[key] = now
	return Result{}, false
}

func checkDailyTradeCount(cfg *config.Config, state *DailyState, alert *domain.Alert, now time.Time, loc *time.Location) (Result, bool) {
	if state.TradesOpened >= cfg.Admission.MaxDailyTrades {
		return deny("max daily trades reached"), true
	}
	return Result{}, false
}

func checkDailyLossCap(cfg *config.Config, state *DailyState, alert *domain.Alert, now time.Time, loc *time.Location) (Result, bool) {
	if cfg.Admission.MaxDailyLossDollars > 0 && state.RealizedPnLDollars <= -cfg.Admission.MaxDailyLossDollars {
		return deny("max daily loss reached"), true
	}
	return Result{}, false
}

func checkConsecutiveLossPause(cfg *config.Config, state *DailyState, alert *domain.Alert, now time.Time, loc *time.Location) (Result, bool) {
	if state.ConsecutiveLosses >= cfg.Admission.MaxConsecutiveLosses {
		return deny("consecutive loss limit reached"), true
	}
	return Result{}, false
}

func checkCooldown(cfg *config.Config, state *DailyState, alert *domain.Alert, now time.Time, loc *time.Location) (Result, bool) {
	if state.LastTradeClosedAt.IsZero() {
		return Result{}, false
	}
	cooldown := time.Duration(cfg.Admission.TradeCooldownMinutes) * time.Minute
	if now.Sub(state.LastTradeClosedAt) < cooldown {
		return deny("within post-trade cooldown"), true
	}
	return Result{}, false
}

func checkSignalDebounce(cfg *config.Config, state *DailyState, alert *domain.Alert, now time.Time, loc *time.Location) (Result, bool) {
	key := alert.Ticker + ":" + string(alert.Direction)
	if last, ok := state.LastSignalAt[key]; ok {
		debounce := time.Duration(cfg.Admission.SignalDebounceMinutes) * time.Minute
		if now.Sub(last) < debounce {
			return deny("signal debounced"), true
		}
	}
	state.LastSignalAt[key] = now
	return Result{}, false
}

func checkDuplicateDirection(cfg *config.Config, state *DailyState, alert *domain.Alert, now time.Time, loc *time.Location) (Result, bool) {
	if existing, ok := state.OpenDirections[alert.Ticker]; ok && existing == alert.Direction {
		return deny("already holding a position in this direction"), true
	}
	return Result{}, false
}

func checkReverseSignal(cfg *config.Config, state *DailyState, alert *domain.Alert, now time.Time, loc *time.Location) (Result, bool) {
	if existing, ok := state.OpenDirections[alert.Ticker]; ok && existing == alert.Direction.Opposite() && existing != domain.DirectionNone {
		return deny("reverse signal while position open; close existing first"), true
	}
	return Result{}, false
}

func checkTradingWindow(cfg *config.Config, state *DailyState, alert *domain.Alert, now time.Time, loc *time.Location) (Result, bool) {
	ok, err := cfg.IsWithinTradingWindow(now)
	if err != nil || !ok {
		return deny("outside configured trading window"), true
	}
	return Result{}, false
}

func dedupKey(alert *domain.Alert) string {
	bucket := int(alert.SignalPrice * 100)
	return alert.Ticker + ":" + string(alert.Direction) + ":" + itoa(bucket)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// RecordOpened updates daily state when a trade opens.
func (s *DailyState) RecordOpened(ticker string, dir domain.Direction) {
	s.TradesOpened++
	s.OpenDirections[ticker] = dir
}

// RecordClosed updates daily state when a trade closes with a realized
// outcome.
func (s *DailyState) RecordClosed(ticker string, pnlDollars float64, closedAt time.Time) {
	s.RealizedPnLDollars += pnlDollars
	s.LastTradeClosedAt = closedAt
	delete(s.OpenDirections, ticker)
	if pnlDollars < 0 {
		s.ConsecutiveLosses++
	} else {
		s.ConsecutiveLosses = 0
	}
}
