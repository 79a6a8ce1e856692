package signal

import (
	"math"
	"testing"
	"time"

	"github.com/zerodte/optionagent/internal/domain"
)

func makeBars(closes []float64) []domain.Bar {
	bars := make([]domain.Bar, len(closes))
	base := time.Date(2026, 8, 3, 9, 30, 0, 0, time.UTC)
	for i, c := range closes {
		bars[i] = domain.Bar{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      c, High: c + 0.5, Low: c - 0.5, Close: c, Volume: 1000,
		}
	}
	return bars
}

func TestEMAWarmup(t *testing.T) {
	bars := makeBars([]float64{1, 2, 3, 4, 5, 6})
	out := EMA(bars, 3)
	for i := 0; i < 2; i++ {
		if !math.IsNaN(out[i]) {
			t.Fatalf("expected NaN before warmup at %d, got %v", i, out[i])
		}
	}
	if math.IsNaN(out[2]) {
		t.Fatalf("expected seeded value at index 2")
	}
	// seed is simple average of first 3 closes: (1+2+3)/3 = 2
	if diff := out[2] - 2; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("seed EMA = %v, want 2", out[2])
	}
}

func TestRSIAllGainsIsHundred(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = float64(i + 1)
	}
	bars := makeBars(closes)
	out := RSI(bars, 14)
	if out[14] != 100 {
		t.Fatalf("RSI with all gains = %v, want 100", out[14])
	}
}

func TestVWAPResetsPerSession(t *testing.T) {
	bars := makeBars([]float64{100, 101, 102})
	bars[2].Timestamp = bars[2].Timestamp.AddDate(0, 0, 1)
	out := VWAP(bars)
	// third bar starts a new session so vwap should equal its own typical price
	typical := (bars[2].High + bars[2].Low + bars[2].Close) / 3
	if diff := out[2] - typical; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("session reset VWAP = %v, want %v", out[2], typical)
	}
}

func TestBollingerBandsWidenWithVolatility(t *testing.T) {
	flat := makeBars([]float64{100, 100, 100, 100, 100})
	_, upperFlat, lowerFlat := BollingerBands(flat, 5, 2)
	if diff := upperFlat[4] - lowerFlat[4]; diff > 1e-9 {
		t.Fatalf("flat series should have ~zero band width, got %v", diff)
	}

	volatile := makeBars([]float64{95, 105, 95, 105, 95})
	_, upperVol, lowerVol := BollingerBands(volatile, 5, 2)
	if upperVol[4]-lowerVol[4] <= 0 {
		t.Fatalf("volatile series should have positive band width")
	}
}

func TestMACDHistogramSignOnUptrend(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i)*0.5
	}
	bars := makeBars(closes)
	_, _, hist := MACD(bars, 12, 26, 9)
	if math.IsNaN(hist[59]) {
		t.Fatalf("expected warmed-up histogram value")
	}
}

func TestOpeningRange(t *testing.T) {
	bars := makeBars([]float64{100, 102, 98, 101})
	high, low, ok := OpeningRange(bars, 3)
	if !ok {
		t.Fatalf("expected ok")
	}
	if high != 102.5 || low != 97.5 {
		t.Fatalf("range = [%v,%v], want [97.5,102.5]", low, high)
	}
}

func TestPivotPoints(t *testing.T) {
	pivot, r1, s1, r2, s2 := PivotPoints(110, 100, 105)
	wantPivot := (110.0 + 100 + 105) / 3
	if pivot != wantPivot {
		t.Fatalf("pivot = %v, want %v", pivot, wantPivot)
	}
	if r1 != 2*pivot-100 {
		t.Fatalf("r1 wrong")
	}
	if s1 != 2*pivot-110 {
		t.Fatalf("s1 wrong")
	}
	if r2 != pivot+10 {
		t.Fatalf("r2 wrong")
	}
	if s2 != pivot-10 {
		t.Fatalf("s2 wrong")
	}
}
