package regime

import (
	"math"
	"time"

	"github.com/zerodte/optionagent/internal/domain"
	"github.com/zerodte/optionagent/internal/signal"
)

// deltaRange is a [low, high] band a factor resolves its vote into.
type deltaRange struct{ low, high float64 }

func (r deltaRange) mid() float64 { return (r.low + r.high) / 2 }

var regimeDeltaRanges = map[Regime]deltaRange{
	Breakout:          {0.50, 0.65},
	TrendContinuation: {0.40, 0.55},
	Chop:              {0.25, 0.40},
	Unknown:           {0.40, 0.55},
}

const (
	vixHighThreshold = 25.0
	vixLowThreshold  = 15.0
	lateDayStartHour = 14

	expectedMoveSmallPct  = 0.30
	expectedMoveLargePct  = 0.70
	deltaFloor            = 0.20
	deltaCeiling          = 0.80

	weightRegime       = 0.40
	weightExpectedMove = 0.30
	weightVIX          = 0.20
	weightTimeOfDay    = 0.10
)

var (
	vixHighRange            = deltaRange{0.35, 0.50}
	vixLowRange             = deltaRange{0.50, 0.70}
	lateDayRange            = deltaRange{0.60, 0.75}
	expectedMoveSmallRange  = deltaRange{0.30, 0.40}
	expectedMoveMediumRange = deltaRange{0.40, 0.55}
	expectedMoveLargeRange  = deltaRange{0.55, 0.70}
)

// Resolution is the blended delta target plus the regime context it
// was derived from, so exit adaptation can reuse the same
// classification without re-running it.
type Resolution struct {
	Classification Result
	Delta          float64
}

// ResolveDelta blends regime, expected move, VIX level and time-of-day
// into a single target delta in [deltaFloor, deltaCeiling], weighting
// each active factor and renormalizing when some are inactive (flat
// VIX or a session that hasn't reached the late-day window yet don't
// vote at all, rather than voting for a neutral midpoint).
func ResolveDelta(reason string, bars []domain.Bar, i int, vix *float64, now time.Time, holdMinutes int) Resolution {
	class := Classify(reason, bars, i)
	regimeRange, ok := regimeDeltaRanges[class.Resolved()]
	if !ok {
		regimeRange = regimeDeltaRanges[Unknown]
	}
	regimeDelta := regimeRange.mid()

	regimeWeight := math.Max(class.Confidence, 0.3) * weightRegime
	var weightedSum, totalWeight float64
	weightedSum += regimeDelta * regimeWeight
	totalWeight += regimeWeight

	if atrVal, moveDelta, active := expectedMoveDelta(bars, i, holdMinutes); active {
		_ = atrVal
		weightedSum += moveDelta * weightExpectedMove
		totalWeight += weightExpectedMove
	}

	if vix != nil {
		if vixDelta, active := vixDeltaVote(*vix); active {
			weightedSum += vixDelta * weightVIX
			totalWeight += weightVIX
		}
	}

	if now.Hour() >= lateDayStartHour {
		weightedSum += lateDayRange.mid() * weightTimeOfDay
		totalWeight += weightTimeOfDay
	}

	delta := regimeDelta
	if totalWeight > 0 {
		delta = weightedSum / totalWeight
	}
	if delta < deltaFloor {
		delta = deltaFloor
	}
	if delta > deltaCeiling {
		delta = deltaCeiling
	}
	return Resolution{Classification: class, Delta: delta}
}

// expectedMoveDelta projects the bar's ATR forward by sqrt(hold/5) to
// estimate the dollar move over the intended hold, classifies it as a
// fraction of the underlying price, and returns the matching delta
// range's midpoint. Inactive when ATR hasn't warmed up or holdMinutes
// is non-positive.
func expectedMoveDelta(bars []domain.Bar, i, holdMinutes int) (atrVal, delta float64, active bool) {
	if holdMinutes <= 0 || i < atrPeriod {
		return 0, 0, false
	}
	atr := signal.ATR(bars[:i+1], atrPeriod)
	if math.IsNaN(atr[i]) || atr[i] <= 0 {
		return 0, 0, false
	}
	underlying := bars[i].Close
	if underlying <= 0 {
		return 0, 0, false
	}
	expectedMoveDollars := atr[i] * math.Sqrt(float64(holdMinutes)/5.0)
	movePct := expectedMoveDollars / underlying * 100

	var r deltaRange
	switch {
	case movePct <= expectedMoveSmallPct:
		r = expectedMoveSmallRange
	case movePct >= expectedMoveLargePct:
		r = expectedMoveLargeRange
	default:
		r = expectedMoveMediumRange
	}
	return atr[i], r.mid(), true
}

// vixDeltaVote returns the delta range midpoint for a high or low VIX
// reading; a neutral reading between the thresholds does not vote.
func vixDeltaVote(vix float64) (delta float64, active bool) {
	switch {
	case vix >= vixHighThreshold:
		return vixHighRange.mid(), true
	case vix <= vixLowThreshold:
		return vixLowRange.mid(), true
	default:
		return 0, false
	}
}
