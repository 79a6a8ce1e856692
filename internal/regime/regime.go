// Package regime classifies the market condition behind a signal
// (breakout, trend continuation, or chop) and uses that classification
// to resolve a dynamic option delta target and adapt exit parameters,
// supplementing the strategy's static configuration with the
// confidence-weighted sizing the original system layered on top of it.
package regime

import (
	"math"

	"github.com/zerodte/optionagent/internal/domain"
	"github.com/zerodte/optionagent/internal/signal"
)

// Regime is the market condition a signal fired into.
type Regime string

const (
	Breakout          Regime = "BREAKOUT"
	TrendContinuation Regime = "TREND_CONTINUATION"
	Chop              Regime = "CHOP"
	Unknown           Regime = "UNKNOWN"
)

// trendStrength buckets ADX into strong/weak/chop, mirroring the
// thresholds the ADX indicator's own doc comment documents.
type trendStrength string

const (
	trendStrong trendStrength = "STRONG"
	trendWeak   trendStrength = "WEAK"
	trendChop   trendStrength = "CHOP"
)

const (
	adxPeriod = 14
	atrPeriod = 14
	emaFast   = 9
	emaSlow   = 21

	adxStrongThreshold = 25.0
	adxWeakThreshold   = 18.0
)

// signalRegimeMap maps a Strategy's Reason string to the regime its
// signal is presumed to belong to before validation against the bar
// series. Reasons not listed default to Unknown.
var signalRegimeMap = map[string]Regime{
	"orb_breakout_up":          Breakout,
	"orb_breakout_down":        Breakout,
	"bb_squeeze_breakout_up":   Breakout,
	"bb_squeeze_breakout_down": Breakout,
	"ema_cross_bull":           TrendContinuation,
	"ema_cross_bear":           TrendContinuation,
	"vwap_cross_bull":          TrendContinuation,
	"vwap_cross_bear":          TrendContinuation,
	"ema_vwap_confluence":      TrendContinuation,
	"confluence":               TrendContinuation,
	"confluence_score":         TrendContinuation,
	"vwap_reclaim":             Chop,
	"vwap_rsi_bull":            Chop,
	"vwap_rsi_bear":            Chop,
	"rsi_reversal_bull":        Chop,
	"rsi_reversal_bear":        Chop,
}

// Result is the outcome of classifying one signal against the bars
// that produced it.
type Result struct {
	// InitialRegime is the regime implied by the signal's own reason,
	// before validation against price action.
	InitialRegime Regime
	// FinalRegime is InitialRegime when Valid, otherwise Unknown — the
	// classifier does not fall back to InitialRegime itself; callers
	// that want a best-effort regime use Resolved below.
	FinalRegime Regime
	Valid       bool
	Confidence  float64

	Structured  bool
	Expansion   bool
	Compression bool
	Strength    trendStrength
}

// Resolved returns FinalRegime when the classification validated,
// otherwise falls back to InitialRegime rather than leaving the
// caller with Unknown — the fallback the original delta resolver
// applied at its call site rather than inside the classifier.
func (r Result) Resolved() Regime {
	if r.Valid {
		return r.FinalRegime
	}
	return r.InitialRegime
}

// Classify inspects the bar series up to and including index i and
// validates the regime implied by reason (a Strategy's Signal.Reason)
// against ADX/ATR/EMA/VWAP computed over the same window.
func Classify(reason string, bars []domain.Bar, i int) Result {
	initial, ok := signalRegimeMap[reason]
	if !ok {
		initial = Unknown
	}
	res := Result{InitialRegime: initial, FinalRegime: Unknown}

	if i < 2*adxPeriod {
		return res
	}
	window := bars[:i+1]

	adx := signal.ADX(window, adxPeriod)
	atr := signal.ATR(window, atrPeriod)
	fast := signal.EMA(window, emaFast)
	slow := signal.EMA(window, emaSlow)
	vwap := signal.VWAP(window)

	if math.IsNaN(adx[i]) || math.IsNaN(atr[i]) || atr[i] <= 0 || math.IsNaN(fast[i]) || math.IsNaN(slow[i]) {
		return res
	}

	res.Structured = math.Abs(fast[i]-slow[i]) > 0.2*atr[i]
	res.Expansion = math.Abs(bars[i].Close-vwap[i]) > 0.5*atr[i]
	res.Compression = fiveBarRange(bars, i) < atr[i]

	switch {
	case adx[i] >= adxStrongThreshold:
		res.Strength = trendStrong
	case adx[i] >= adxWeakThreshold:
		res.Strength = trendWeak
	default:
		res.Strength = trendChop
	}

	var score int
	if adx[i] > adxStrongThreshold {
		score += 30
	}
	if res.Expansion {
		score += 25
	}
	if res.Structured {
		score += 25
	}
	if res.Compression {
		score += 20
	}
	res.Confidence = float64(score) / 100.0

	switch initial {
	case Breakout:
		res.Valid = res.Compression && res.Expansion
	case TrendContinuation:
		res.Valid = res.Strength != trendChop && res.Structured
	case Chop:
		res.Valid = res.Strength == trendChop
	default:
		res.Valid = false
	}
	if res.Valid {
		res.FinalRegime = initial
	}
	return res
}

// fiveBarRange returns the high-low range of the trailing 5 bars
// ending at i (fewer if i has fewer than 5 predecessors).
func fiveBarRange(bars []domain.Bar, i int) float64 {
	start := i - 4
	if start < 0 {
		start = 0
	}
	high, low := bars[start].High, bars[start].Low
	for j := start + 1; j <= i; j++ {
		if bars[j].High > high {
			high = bars[j].High
		}
		if bars[j].Low < low {
			low = bars[j].Low
		}
	}
	return high - low
}
