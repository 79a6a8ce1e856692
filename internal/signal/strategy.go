package signal

import (
	"math"

	"github.com/zerodte/optionagent/internal/domain"
)

// Strategy inspects the bar series up to and including index i and
// returns the signal it would raise there, or nil for no signal. A
// strategy must not look ahead of i.
type Strategy func(bars []domain.Bar, i int) *domain.Signal

// EMACross fires when the fast EMA crosses the slow EMA.
func EMACross(fastPeriod, slowPeriod int) Strategy {
	return func(bars []domain.Bar, i int) *domain.Signal {
		if i < 1 {
			return nil
		}
		fast := EMA(bars[:i+1], fastPeriod)
		slow := EMA(bars[:i+1], slowPeriod)
		if math.IsNaN(fast[i]) || math.IsNaN(slow[i]) || math.IsNaN(fast[i-1]) || math.IsNaN(slow[i-1]) {
			return nil
		}

		prevDiff := fast[i-1] - slow[i-1]
		diff := fast[i] - slow[i]

		switch {
		case diff > 0 && prevDiff <= 0:
			return &domain.Signal{Timestamp: bars[i].Timestamp, Direction: domain.DirectionCall, UnderlyingPrice: bars[i].Close, Reason: "ema_cross_bull"}
		case diff < 0 && prevDiff >= 0:
			return &domain.Signal{Timestamp: bars[i].Timestamp, Direction: domain.DirectionPut, UnderlyingPrice: bars[i].Close, Reason: "ema_cross_bear"}
		default:
			return nil
		}
	}
}

// VWAPCross fires when price crosses the session VWAP.
func VWAPCross() Strategy {
	return func(bars []domain.Bar, i int) *domain.Signal {
		if i < 1 {
			return nil
		}
		vwap := VWAP(bars[:i+1])
		prevAbove := bars[i-1].Close > vwap[i-1]
		curAbove := bars[i].Close > vwap[i]
		if curAbove == prevAbove {
			return nil
		}
		if curAbove {
			return &domain.Signal{Timestamp: bars[i].Timestamp, Direction: domain.DirectionCall, UnderlyingPrice: bars[i].Close, Reason: "vwap_cross_bull"}
		}
		return &domain.Signal{Timestamp: bars[i].Timestamp, Direction: domain.DirectionPut, UnderlyingPrice: bars[i].Close, Reason: "vwap_cross_bear"}
	}
}

// EMAVWAPConfluence fires only when the EMA cross and VWAP side agree.
func EMAVWAPConfluence(fastPeriod, slowPeriod int) Strategy {
	emaStrat := EMACross(fastPeriod, slowPeriod)
	return func(bars []domain.Bar, i int) *domain.Signal {
		sig := emaStrat(bars, i)
		if sig == nil {
			return nil
		}
		vwap := VWAP(bars[:i+1])
		if math.IsNaN(vwap[i]) {
			return nil
		}
		above := bars[i].Close > vwap[i]
		if sig.Direction == domain.DirectionCall && !above {
			return nil
		}
		if sig.Direction == domain.DirectionPut && above {
			return nil
		}
		sig.Reason = "ema_vwap_confluence"
		return sig
	}
}

// VWAPReclaim fires when price closes back above VWAP after having
// closed below it on the prior bar, within a lookback that requires at
// least minBarsBelow consecutive closes under VWAP beforehand.
func VWAPReclaim(minBarsBelow int) Strategy {
	return func(bars []domain.Bar, i int) *domain.Signal {
		if i < minBarsBelow {
			return nil
		}
		vwap := VWAP(bars[:i+1])
		if math.IsNaN(vwap[i]) {
			return nil
		}
		if bars[i].Close <= vwap[i] {
			return nil
		}
		for j := i - minBarsBelow; j < i; j++ {
			if math.IsNaN(vwap[j]) || bars[j].Close >= vwap[j] {
				return nil
			}
		}
		return &domain.Signal{Timestamp: bars[i].Timestamp, Direction: domain.DirectionCall, UnderlyingPrice: bars[i].Close, Reason: "vwap_reclaim"}
	}
}

// VWAPRSI fires a directional signal when price is on one side of VWAP
// and RSI confirms momentum in the same direction without being
// overbought/oversold.
func VWAPRSI(rsiPeriod int, rsiLow, rsiHigh float64) Strategy {
	return func(bars []domain.Bar, i int) *domain.Signal {
		vwap := VWAP(bars[:i+1])
		rsi := RSI(bars[:i+1], rsiPeriod)
		if math.IsNaN(vwap[i]) || math.IsNaN(rsi[i]) {
			return nil
		}
		switch {
		case bars[i].Close > vwap[i] && rsi[i] > 50 && rsi[i] < rsiHigh:
			return &domain.Signal{Timestamp: bars[i].Timestamp, Direction: domain.DirectionCall, UnderlyingPrice: bars[i].Close, Reason: "vwap_rsi_bull"}
		case bars[i].Close < vwap[i] && rsi[i] < 50 && rsi[i] > rsiLow:
			return &domain.Signal{Timestamp: bars[i].Timestamp, Direction: domain.DirectionPut, UnderlyingPrice: bars[i].Close, Reason: "vwap_rsi_bear"}
		default:
			return nil
		}
	}
}

// RSIReversal fires when RSI crosses back out of an oversold/overbought
// extreme.
func RSIReversal(period int, oversold, overbought float64) Strategy {
	return func(bars []domain.Bar, i int) *domain.Signal {
		if i < 1 {
			return nil
		}
		rsi := RSI(bars[:i+1], period)
		if math.IsNaN(rsi[i]) || math.IsNaN(rsi[i-1]) {
			return nil
		}
		switch {
		case rsi[i-1] <= oversold && rsi[i] > oversold:
			return &domain.Signal{Timestamp: bars[i].Timestamp, Direction: domain.DirectionCall, UnderlyingPrice: bars[i].Close, Reason: "rsi_reversal_bull"}
		case rsi[i-1] >= overbought && rsi[i] < overbought:
			return &domain.Signal{Timestamp: bars[i].Timestamp, Direction: domain.DirectionPut, UnderlyingPrice: bars[i].Close, Reason: "rsi_reversal_bear"}
		default:
			return nil
		}
	}
}

// BollingerSqueezeBreakout fires when the band width contracts below a
// fraction of its own recent average (the "squeeze") and price then
// closes outside a band.
func BollingerSqueezeBreakout(period int, k float64, squeezeLookback int, squeezeFactor float64) Strategy {
	return func(bars []domain.Bar, i int) *domain.Signal {
		if i < squeezeLookback {
			return nil
		}
		_, upper, lower := BollingerBands(bars[:i+1], period, k)
		if math.IsNaN(upper[i]) || math.IsNaN(lower[i]) {
			return nil
		}

		width := upper[i] - lower[i]
		var widthSum float64
		n := 0
		for j := i - squeezeLookback; j < i; j++ {
			if math.IsNaN(upper[j]) || math.IsNaN(lower[j]) {
				continue
			}
			widthSum += upper[j] - lower[j]
			n++
		}
		if n == 0 {
			return nil
		}
		avgWidth := widthSum / float64(n)
		if width > avgWidth*squeezeFactor {
			return nil // not squeezed
		}

		switch {
		case bars[i].Close > upper[i]:
			return &domain.Signal{Timestamp: bars[i].Timestamp, Direction: domain.DirectionCall, UnderlyingPrice: bars[i].Close, Reason: "bb_squeeze_breakout_up"}
		case bars[i].Close < lower[i]:
			return &domain.Signal{Timestamp: bars[i].Timestamp, Direction: domain.DirectionPut, UnderlyingPrice: bars[i].Close, Reason: "bb_squeeze_breakout_down"}
		default:
			return nil
		}
	}
}

// ORBBreakout fires when price closes outside the opening range built
// from the first rangeMinutes of the session, expressed in bar counts
// via barsPerRange (the caller resolves minutes to bar count for the
// feed's timeframe).
func ORBBreakout(barsPerRange int) Strategy {
	return func(bars []domain.Bar, i int) *domain.Signal {
		sessionStart := startOfSession(bars, i)
		if i-sessionStart < barsPerRange {
			return nil
		}
		high, low, ok := OpeningRange(bars[sessionStart:sessionStart+barsPerRange], barsPerRange)
		if !ok {
			return nil
		}
		rng := high - low

		switch {
		case bars[i].Close > high:
			level := high
			return &domain.Signal{
				Timestamp: bars[i].Timestamp, Direction: domain.DirectionCall, UnderlyingPrice: bars[i].Close,
				Reason: "orb_breakout_up", ORBRange: &rng, ORBEntryLevel: &level,
			}
		case bars[i].Close < low:
			level := low
			return &domain.Signal{
				Timestamp: bars[i].Timestamp, Direction: domain.DirectionPut, UnderlyingPrice: bars[i].Close,
				Reason: "orb_breakout_down", ORBRange: &rng, ORBEntryLevel: &level,
			}
		default:
			return nil
		}
	}
}

// ORBDirectionBias is ORBBreakout but requires the breakout to agree
// with the pivot-point side (above pivot for calls, below for puts).
func ORBDirectionBias(barsPerRange int, prevHigh, prevLow, prevClose float64) Strategy {
	orb := ORBBreakout(barsPerRange)
	pivot, _, _, _, _ := PivotPoints(prevHigh, prevLow, prevClose)
	return func(bars []domain.Bar, i int) *domain.Signal {
		sig := orb(bars, i)
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

// MultiIndicatorConfluenceParams configures MultiIndicatorConfluence's
// per-factor thresholds.
type MultiIndicatorConfluenceParams struct {
	FastEMA           int
	SlowEMA           int
	RSIPeriod         int
	RSIOverbought     float64
	RSIOversold       float64
	VolumeSMAPeriod   int
	VolumeThreshold   float64
	MinConfluence     int
	PivotProximityPct float64
}

// MultiIndicatorConfluence scores VWAP position, EMA trend, RSI zone,
// MACD histogram sign, relative volume, candle direction and pivot
// proximity independently for calls and puts, firing once whichever
// side's score clears MinConfluence and leads the other side. It also
// stamps the signal's ConfluenceScore/ConfluenceMax/RelativeVolume
// fields, which downstream entry sizing uses to scale quantity.
func MultiIndicatorConfluence(p MultiIndicatorConfluenceParams) Strategy {
	return func(bars []domain.Bar, i int) *domain.Signal {
		if i < 1 {
			return nil
		}
		window := bars[:i+1]
		vwap := VWAP(window)
		emaFast := EMA(window, p.FastEMA)
		emaSlow := EMA(window, p.SlowEMA)
		rsi := RSI(window, p.RSIPeriod)
		_, _, macdHist := MACD(window, 12, 26, 9)
		volSMA := VolumeSMA(window, p.VolumeSMAPeriod)

		bar := bars[i]
		var callScore, putScore int

		if vwap[i] > 0 {
			if bar.Close > vwap[i] {
				callScore++
			} else if bar.Close < vwap[i] {
				putScore++
			}
		}

		if !math.IsNaN(emaFast[i]) && !math.IsNaN(emaSlow[i]) {
			if emaFast[i] > emaSlow[i] {
				callScore++
			} else if emaFast[i] < emaSlow[i] {
				putScore++
			}
		}

		if !math.IsNaN(rsi[i]) {
			if rsi[i] < p.RSIOversold {
				callScore++
			}
			if rsi[i] > p.RSIOverbought {
				putScore++
			}
		}

		if !math.IsNaN(macdHist[i]) {
			if macdHist[i] > 0 {
				callScore++
			} else if macdHist[i] < 0 {
				putScore++
			}
		}

		var relVol float64
		haveRelVol := !math.IsNaN(volSMA[i]) && volSMA[i] > 0
		if haveRelVol {
			relVol = bar.Volume / volSMA[i]
			if relVol >= p.VolumeThreshold && !math.IsNaN(emaFast[i]) && !math.IsNaN(emaSlow[i]) {
				if emaFast[i] > emaSlow[i] {
					callScore++
				} else if emaFast[i] < emaSlow[i] {
					putScore++
				}
			}
		}

		if bar.Close > bar.Open {
			callScore++
		} else if bar.Close < bar.Open {
			putScore++
		}

		maxScore := 6
		if i >= 1 {
			sessionStart := startOfSession(bars, i)
			if sessionStart > 0 {
				prevSessionEnd := sessionStart - 1
				prevSessionStart := startOfSession(bars, prevSessionEnd)
				prevHigh, prevLow, prevClose := sessionHLC(bars[prevSessionStart : prevSessionEnd+1])
				pivot, r1, s1, r2, s2 := PivotPoints(prevHigh, prevLow, prevClose)
				maxScore = 7
				proximity := p.PivotProximityPct / 100.0
				price := bar.Close
				nearS := (s1 != 0 && math.Abs(price-s1)/s1 < proximity) || (s2 != 0 && math.Abs(price-s2)/s2 < proximity)
				nearR := (r1 != 0 && math.Abs(price-r1)/r1 < proximity) || (r2 != 0 && math.Abs(price-r2)/r2 < proximity)
				switch {
				case nearS:
					callScore++
				case nearR:
					putScore++
				case price < pivot:
					callScore++
				case price > pivot:
					putScore++
				}
			}
		}

		switch {
		case callScore >= p.MinConfluence && callScore > putScore:
			score, max := callScore, maxScore
			sig := &domain.Signal{Timestamp: bar.Timestamp, Direction: domain.DirectionCall, UnderlyingPrice: bar.Close, Reason: "confluence_score", ConfluenceScore: &score, ConfluenceMax: &max}
			if haveRelVol {
				rv := relVol
				sig.RelativeVolume = &rv
			}
			return sig
		case putScore >= p.MinConfluence && putScore > callScore:
			score, max := putScore, maxScore
			sig := &domain.Signal{Timestamp: bar.Timestamp, Direction: domain.DirectionPut, UnderlyingPrice: bar.Close, Reason: "confluence_score", ConfluenceScore: &score, ConfluenceMax: &max}
			if haveRelVol {
				rv := relVol
				sig.RelativeVolume = &rv
			}
			return sig
		default:
			return nil
		}
	}
}

// sessionHLC returns the high, low and close of a contiguous run of
// bars belonging to one session, used to derive the next session's
// pivot levels.
func sessionHLC(sessionBars []domain.Bar) (high, low, close float64) {
	if len(sessionBars) == 0 {
		return 0, 0, 0
	}
	high, low = sessionBars[0].High, sessionBars[0].Low
	for _, b := range sessionBars {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	close = sessionBars[len(sessionBars)-1].Close
	return high, low, close
}

// startOfSession walks backward from i to find the first bar index of
// the same calendar date.
func startOfSession(bars []domain.Bar, i int) int {
	d := bars[i].Timestamp
	start := i
	for start > 0 {
		prev := bars[start-1].Timestamp
		if prev.Year() != d.Year() || prev.YearDay() != d.YearDay() {
			break
		}
		start--
	}
	return start
}

// Confluence runs each sub-strategy and fires only once at least
// minAgree of them agree on the same direction for bar i, tagging the
// resulting signal with the agreeing count.
func Confluence(minAgree int, strategies ...Strategy) Strategy {
	return func(bars []domain.Bar, i int) *domain.Signal {
		var calls, puts int
		var sample *domain.Signal
		for _, s := range strategies {
			sig := s(bars, i)
			if sig == nil {
				continue
			}
			if sig.Direction == domain.DirectionCall {
				calls++
			} else if sig.Direction == domain.DirectionPut {
				puts++
			}
			sample = sig
		}

		total := len(strategies)
		switch {
		case calls >= minAgree && calls > puts:
			score, max := calls, total
			return &domain.Signal{Timestamp: bars[i].Timestamp, Direction: domain.DirectionCall, UnderlyingPrice: bars[i].Close, Reason: "confluence", ConfluenceScore: &score, ConfluenceMax: &max}
		case puts >= minAgree && puts > calls:
			score, max := puts, total
			return &domain.Signal{Timestamp: bars[i].Timestamp, Direction: domain.DirectionPut, UnderlyingPrice: bars[i].Close, Reason: "confluence", ConfluenceScore: &score, ConfluenceMax: &max}
		default:
			_ = sample
			return nil
		}
	}
}
