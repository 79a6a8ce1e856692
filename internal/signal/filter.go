package signal

import (
	"math"
	"time"

	"github.com/zerodte/optionagent/internal/domain"
)

// Filter wraps a Strategy and suppresses signals that don't pass an
// additional condition. A filter may annotate a signal that passes
// (RelativeVolumeFilter records the measured relative volume on it).
type Filter func(Strategy) Strategy

// RSIBandFilter rejects signals whose direction runs into an
// overbought/oversold RSI reading (buying calls when RSI is already
// overbought, or puts when already oversold).
func RSIBandFilter(period int, oversold, overbought float64) Filter {
	return func(next Strategy) Strategy {
		return func(bars []domain.Bar, i int) *domain.Signal {
			sig := next(bars, i)
			if sig == nil {
				return nil
			}
			rsi := RSI(bars[:i+1], period)
			if math.IsNaN(rsi[i]) {
				return sig
			}
			if sig.Direction == domain.DirectionCall && rsi[i] >= overbought {
				return nil
			}
			if sig.Direction == domain.DirectionPut && rsi[i] <= oversold {
				return nil
			}
			return sig
		}
	}
}

// PivotFilter rejects signals that would buy calls below the pivot or
// puts above it, keeping entries aligned with the day's floor-trader
// bias.
func PivotFilter(prevHigh, prevLow, prevClose float64) Filter {
	pivot, _, _, _, _ := PivotPoints(prevHigh, prevLow, prevClose)
	return func(next Strategy) Strategy {
		return func(bars []domain.Bar, i int) *domain.Signal {
			sig := next(bars, i)
			if sig == nil {
				return nil
			}
			if sig.Direction == domain.DirectionCall && bars[i].Close < pivot {
				return nil
			}
			if sig.Direction == domain.DirectionPut && bars[i].Close > pivot {
				return nil
			}
			return sig
		}
	}
}

// SessionWindowFilter rejects signals outside [start, end) in loc.
func SessionWindowFilter(loc *time.Location, start, end time.Duration) Filter {
	return func(next Strategy) Strategy {
		return func(bars []domain.Bar, i int) *domain.Signal {
			sig := next(bars, i)
			if sig == nil {
				return nil
			}
			local := bars[i].Timestamp.In(loc)
			midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
			elapsed := local.Sub(midnight)
			if elapsed < start || elapsed >= end {
				return nil
			}
			return sig
		}
	}
}

// RelativeVolumeFilter rejects signals whose bar volume is below
// minMultiple times the trailing volume SMA, and annotates passing
// signals with the observed multiple.
func RelativeVolumeFilter(period int, minMultiple float64) Filter {
	return func(next Strategy) Strategy {
		return func(bars []domain.Bar, i int) *domain.Signal {
			sig := next(bars, i)
			if sig == nil {
				return nil
			}
			avgVol := VolumeSMA(bars[:i+1], period)
			if math.IsNaN(avgVol[i]) || avgVol[i] <= 0 {
				return sig
			}
			mult := bars[i].Volume / avgVol[i]
			if mult < minMultiple {
				return nil
			}
			sig.RelativeVolume = &mult
			return sig
		}
	}
}

// Apply chains filters onto a strategy in order, each wrapping the
// previous result.
func Apply(base Strategy, filters ...Filter) Strategy {
	s := base
	for _, f := range filters {
		s = f(s)
	}
	return s
}

// Confirm decorates a strategy so that a signal only fires once the
// same direction has persisted for confirmBars consecutive bars,
// matching the spec's one-minute confirmation requirement for signals
// computed off a coarser timeframe. It is stateful and must be
// constructed fresh per symbol/session.
type Confirm struct {
	strategy    Strategy
	confirmBars int

	pendingDir   domain.Direction
	pendingCount int
}

// NewConfirm builds a confirmation decorator requiring confirmBars
// consecutive same-direction raw signals before emitting.
func NewConfirm(strategy Strategy, confirmBars int) *Confirm {
	if confirmBars < 1 {
		confirmBars = 1
	}
	return &Confirm{strategy: strategy, confirmBars: confirmBars}
}

// Evaluate feeds bar i through the wrapped strategy and the
// confirmation state machine, returning a signal only on the bar where
// confirmation completes.
func (c *Confirm) Evaluate(bars []domain.Bar, i int) *domain.Signal {
	sig := c.strategy(bars, i)
	if sig == nil {
		c.pendingDir = domain.DirectionNone
		c.pendingCount = 0
		return nil
	}

	if sig.Direction == c.pendingDir {
		c.pendingCount++
	} else {
		c.pendingDir = sig.Direction
		c.pendingCount = 1
	}

	if c.pendingCount < c.confirmBars {
		return nil
	}
	c.pendingCount = 0
	c.pendingDir = domain.DirectionNone
	return sig
}
