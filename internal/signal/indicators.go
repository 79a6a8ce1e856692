// Package signal computes technical indicators over bar series and
// composes them into entry strategies and post-hoc filters (spec §4.4).
package signal

import (
	"math"

	"github.com/zerodte/optionagent/internal/domain"
)

// EMA returns the exponential moving average series for period n,
// seeded with a simple average over the first n bars. Entries before
// the series warms up are NaN.
func EMA(bars []domain.Bar, n int) []float64 {
	out := make([]float64, len(bars))
	for i := range out {
		out[i] = math.NaN()
	}
	if n <= 0 || len(bars) < n {
		return out
	}

	var sum float64
	for i := 0; i < n; i++ {
		sum += bars[i].Close
	}
	out[n-1] = sum / float64(n)

	k := 2.0 / float64(n+1)
	for i := n; i < len(bars); i++ {
		out[i] = bars[i].Close*k + out[i-1]*(1-k)
	}
	return out
}

// SMA returns the simple moving average of Close over period n.
func SMA(bars []domain.Bar, n int) []float64 {
	out := make([]float64, len(bars))
	for i := range out {
		out[i] = math.NaN()
	}
	if n <= 0 {
		return out
	}
	var sum float64
	for i, b := range bars {
		sum += b.Close
		if i >= n {
			sum -= bars[i-n].Close
		}
		if i >= n-1 {
			out[i] = sum / float64(n)
		}
	}
	return out
}

// VolumeSMA returns the simple moving average of Volume over period n.
func VolumeSMA(bars []domain.Bar, n int) []float64 {
	out := make([]float64, len(bars))
	for i := range out {
		out[i] = math.NaN()
	}
	if n <= 0 {
		return out
	}
	var sum float64
	for i, b := range bars {
		sum += b.Volume
		if i >= n {
			sum -= bars[i-n].Volume
		}
		if i >= n-1 {
			out[i] = sum / float64(n)
		}
	}
	return out
}

// RSI returns the Wilder relative-strength-index series over period n.
func RSI(bars []domain.Bar, n int) []float64 {
	out := make([]float64, len(bars))
	for i := range out {
		out[i] = math.NaN()
	}
	if n <= 0 || len(bars) <= n {
		return out
	}

	var gainSum, lossSum float64
	for i := 1; i <= n; i++ {
		delta := bars[i].Close - bars[i-1].Close
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum -= delta
		}
	}
	avgGain := gainSum / float64(n)
	avgLoss := lossSum / float64(n)
	out[n] = rsiFromAverages(avgGain, avgLoss)

	for i := n + 1; i < len(bars); i++ {
		delta := bars[i].Close - bars[i-1].Close
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(n-1) + gain) / float64(n)
		avgLoss = (avgLoss*float64(n-1) + loss) / float64(n)
		out[i] = rsiFromAverages(avgGain, avgLoss)
	}
	return out
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// ATR returns the Wilder average-true-range series over period n.
func ATR(bars []domain.Bar, n int) []float64 {
	out := make([]float64, len(bars))
	for i := range out {
		out[i] = math.NaN()
	}
	if n <= 0 || len(bars) <= n {
		return out
	}

	trueRange := func(i int) float64 {
		if i == 0 {
			return bars[i].High - bars[i].Low
		}
		hl := bars[i].High - bars[i].Low
		hc := math.Abs(bars[i].High - bars[i-1].Close)
		lc := math.Abs(bars[i].Low - bars[i-1].Close)
		return math.Max(hl, math.Max(hc, lc))
	}

	var sum float64
	for i := 0; i < n; i++ {
		sum += trueRange(i)
	}
	avg := sum / float64(n)
	out[n-1] = avg

	for i := n; i < len(bars); i++ {
		avg = (avg*float64(n-1) + trueRange(i)) / float64(n)
		out[i] = avg
	}
	return out
}

// ADX returns the Wilder average directional index series over period
// n, a trend-strength measure independent of direction: values above
// 25 indicate a strong trend, below 18 a choppy market.
func ADX(bars []domain.Bar, n int) []float64 {
	out := make([]float64, len(bars))
	for i := range out {
		out[i] = math.NaN()
	}
	if n <= 0 || len(bars) <= 2*n {
		return out
	}

	atr := ATR(bars, n)
	dx := make([]float64, len(bars))
	for i := range dx {
		dx[i] = math.NaN()
	}

	var avgPlus, avgMinus float64
	for i := 1; i < len(bars); i++ {
		plusDM := bars[i].High - bars[i-1].High
		minusDM := bars[i-1].Low - bars[i].Low
		if plusDM < 0 {
			plusDM = 0
		}
		if minusDM < 0 {
			minusDM = 0
		}
		if plusDM > minusDM {
			minusDM = 0
		} else if minusDM > plusDM {
			plusDM = 0
		} else {
			plusDM, minusDM = 0, 0
		}
		// Wilder smoothing of the directional movement: a plain mean over
		// the first n bars, then avg = (avg*(n-1) + dm) / n.
		if i <= n {
			avgPlus += plusDM / float64(n)
			avgMinus += minusDM / float64(n)
		} else {
			avgPlus = (avgPlus*float64(n-1) + plusDM) / float64(n)
			avgMinus = (avgMinus*float64(n-1) + minusDM) / float64(n)
		}
		if i < n || math.IsNaN(atr[i]) || atr[i] == 0 {
			continue
		}
		plusDI := 100 * (avgPlus / atr[i])
		minusDI := 100 * (avgMinus / atr[i])
		if plusDI+minusDI == 0 {
			dx[i] = 0
			continue
		}
		dx[i] = 100 * math.Abs(plusDI-minusDI) / (plusDI + minusDI)
	}

	for i := range out {
		if i < 2*n-1 {
			continue
		}
		var sum float64
		count := 0
		for j := i - n + 1; j <= i; j++ {
			if math.IsNaN(dx[j]) {
				continue
			}
			sum += dx[j]
			count++
		}
		if count > 0 {
			out[i] = sum / float64(count)
		}
	}
	return out
}

// VWAP returns the session-cumulative volume-weighted average price,
// resetting the accumulator whenever the calendar date changes.
func VWAP(bars []domain.Bar) []float64 {
	out := make([]float64, len(bars))
	var cumPV, cumV float64
	var sessionDate int

	for i, b := range bars {
		d := b.Timestamp.Year()*10000 + int(b.Timestamp.Month())*100 + b.Timestamp.Day()
		if d != sessionDate {
			sessionDate = d
			cumPV, cumV = 0, 0
		}
		typical := (b.High + b.Low + b.Close) / 3
		cumPV += typical * b.Volume
		cumV += b.Volume
		if cumV > 0 {
			out[i] = cumPV / cumV
		} else {
			out[i] = b.Close
		}
	}
	return out
}

// BollingerBands returns the middle, upper and lower bands over period
// n at k standard deviations.
func BollingerBands(bars []domain.Bar, n int, k float64) (mid, upper, lower []float64) {
	mid = SMA(bars, n)
	upper = make([]float64, len(bars))
	lower = make([]float64, len(bars))
	for i := range bars {
		upper[i] = math.NaN()
		lower[i] = math.NaN()
		if i < n-1 || math.IsNaN(mid[i]) {
			continue
		}
		var sqSum float64
		for j := i - n + 1; j <= i; j++ {
			d := bars[j].Close - mid[i]
			sqSum += d * d
		}
		sd := math.Sqrt(sqSum / float64(n))
		upper[i] = mid[i] + k*sd
		lower[i] = mid[i] - k*sd
	}
	return mid, upper, lower
}

// MACD returns the MACD line, signal line and histogram using the
// standard 12/26/9 EMA convention (periods are parameterized).
func MACD(bars []domain.Bar, fast, slow, signalPeriod int) (macdLine, signalLine, histogram []float64) {
	emaFast := EMA(bars, fast)
	emaSlow := EMA(bars, slow)
	macdLine = make([]float64, len(bars))
	for i := range bars {
		if math.IsNaN(emaFast[i]) || math.IsNaN(emaSlow[i]) {
			macdLine[i] = math.NaN()
		} else {
			macdLine[i] = emaFast[i] - emaSlow[i]
		}
	}

	signalLine = emaOfSeries(macdLine, signalPeriod)
	histogram = make([]float64, len(bars))
	for i := range bars {
		if math.IsNaN(macdLine[i]) || math.IsNaN(signalLine[i]) {
			histogram[i] = math.NaN()
		} else {
			histogram[i] = macdLine[i] - signalLine[i]
		}
	}
	return macdLine, signalLine, histogram
}

// emaOfSeries applies the EMA recursion directly to an arbitrary float
// series (used internally for MACD's signal line, which is an EMA of
// the MACD line rather than of bar closes).
func emaOfSeries(series []float64, n int) []float64 {
	out := make([]float64, len(series))
	for i := range out {
		out[i] = math.NaN()
	}
	if n <= 0 {
		return out
	}

	start := -1
	for i, v := range series {
		if !math.IsNaN(v) {
			start = i
			break
		}
	}
	if start < 0 || start+n > len(series) {
		return out
	}

	var sum float64
	for i := start; i < start+n; i++ {
		sum += series[i]
	}
	out[start+n-1] = sum / float64(n)

	k := 2.0 / float64(n+1)
	for i := start + n; i < len(series); i++ {
		out[i] = series[i]*k + out[i-1]*(1-k)
	}
	return out
}

// PivotPoints computes the classic floor-trader pivot and first and
// second support and resistance levels from the prior session's
// high/low/close.
func PivotPoints(prevHigh, prevLow, prevClose float64) (pivot, r1, s1, r2, s2 float64) {
	pivot = (prevHigh + prevLow + prevClose) / 3
	r1 = 2*pivot - prevLow
	s1 = 2*pivot - prevHigh
	r2 = pivot + (prevHigh - prevLow)
	s2 = pivot - (prevHigh - prevLow)
	return pivot, r1, s1, r2, s2
}

// OpeningRange computes the high/low of the first n bars of a session.
// Callers pass the bars already sliced to one session.
func OpeningRange(sessionBars []domain.Bar, n int) (high, low float64, ok bool) {
	if n <= 0 || len(sessionBars) < n {
		return 0, 0, false
	}
	high = sessionBars[0].High
	low = sessionBars[0].Low
	for i := 1; i < n; i++ {
		if sessionBars[i].High > high {
			high = sessionBars[i].High
		}
		if sessionBars[i].Low < low {
			low = sessionBars[i].Low
		}
	}
	return high, low, true
}
