package signal

import (
	"testing"
	"time"

	"github.com/zerodte/optionagent/internal/domain"
)

func TestEMACrossFiresOnCrossover(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100
	}
	for i := 10; i < 20; i++ {
		closes[i] = 100 + float64(i-9)*2 // sharp uptrend after bar 10
	}
	bars := makeBars(closes)
	strat := EMACross(3, 8)

	fired := false
	for i := range bars {
		if sig := strat(bars, i); sig != nil && sig.Direction == domain.DirectionCall {
			fired = true
		}
	}
	if !fired {
		t.Fatalf("expected at least one bullish ema cross signal")
	}
}

func TestConfluenceRequiresMinAgree(t *testing.T) {
	always := func(dir domain.Direction) Strategy {
		return func(bars []domain.Bar, i int) *domain.Signal {
			return &domain.Signal{Timestamp: bars[i].Timestamp, Direction: dir, UnderlyingPrice: bars[i].Close}
		}
	}
	never := func(bars []domain.Bar, i int) *domain.Signal { return nil }

	bars := makeBars([]float64{100, 101})

	conf := Confluence(2, always(domain.DirectionCall), always(domain.DirectionCall), never)
	sig := conf(bars, 1)
	if sig == nil || sig.Direction != domain.DirectionCall {
		t.Fatalf("expected call confluence with 2/3 agreeing")
	}
	if *sig.ConfluenceScore != 2 || *sig.ConfluenceMax != 3 {
		t.Fatalf("unexpected confluence score %d/%d", *sig.ConfluenceScore, *sig.ConfluenceMax)
	}

	confTooStrict := Confluence(3, always(domain.DirectionCall), always(domain.DirectionCall), never)
	if sig := confTooStrict(bars, 1); sig != nil {
		t.Fatalf("expected nil when minAgree not met")
	}
}

func TestConfirmRequiresConsecutiveBars(t *testing.T) {
	callEveryBar := func(bars []domain.Bar, i int) *domain.Signal {
		return &domain.Signal{Timestamp: bars[i].Timestamp, Direction: domain.DirectionCall, UnderlyingPrice: bars[i].Close}
	}
	bars := makeBars([]float64{100, 101, 102})
	c := NewConfirm(callEveryBar, 2)

	if sig := c.Evaluate(bars, 0); sig != nil {
		t.Fatalf("expected no signal on first confirming bar")
	}
	if sig := c.Evaluate(bars, 1); sig == nil {
		t.Fatalf("expected signal on second confirming bar")
	}
}

func TestMultiIndicatorConfluenceFiresOnAligningBullishFactors(t *testing.T) {
	base := time.Date(2026, 8, 3, 9, 30, 0, 0, time.UTC)
	n := 60
	bars := make([]domain.Bar, n)
	price := 100.0
	for i := 0; i < n; i++ {
		price += 0.4
		bars[i] = domain.Bar{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      price - 0.3, High: price + 0.3, Low: price - 0.4, Close: price,
			Volume: 1000,
		}
	}

	strat := MultiIndicatorConfluence(MultiIndicatorConfluenceParams{
		FastEMA: 9, SlowEMA: 21, RSIPeriod: 14,
		RSIOverbought: 200, RSIOversold: -100, // neutralize RSI so only trend factors decide
		VolumeSMAPeriod: 20, VolumeThreshold: 10, // neutralize relative volume
		MinConfluence: 4, PivotProximityPct: 0.3,
	})

	var sig *domain.Signal
	for i := range bars {
		if s := strat(bars, i); s != nil {
			sig = s
		}
	}
	if sig == nil {
		t.Fatalf("expected a confluence signal on a steady uptrend")
	}
	if sig.Direction != domain.DirectionCall {
		t.Fatalf("expected a call signal, got %v", sig.Direction)
	}
	if sig.ConfluenceScore == nil || sig.ConfluenceMax == nil {
		t.Fatalf("expected confluence score/max to be stamped on the signal")
	}
	if *sig.ConfluenceScore < 4 {
		t.Fatalf("expected a confluence score of at least 4, got %d/%d", *sig.ConfluenceScore, *sig.ConfluenceMax)
	}
}

func TestMultiIndicatorConfluenceWarmupIsNil(t *testing.T) {
	strat := MultiIndicatorConfluence(MultiIndicatorConfluenceParams{
		FastEMA: 9, SlowEMA: 21, RSIPeriod: 14, RSIOverbought: 70, RSIOversold: 30,
		VolumeSMAPeriod: 20, VolumeThreshold: 1.5, MinConfluence: 5, PivotProximityPct: 0.3,
	})
	bars := makeBars([]float64{100})
	if sig := strat(bars, 0); sig != nil {
		t.Fatalf("expected no signal with only one bar of history")
	}
}

func TestSessionWindowFilterRejectsOutsideWindow(t *testing.T) {
	loc := time.UTC
	always := func(bars []domain.Bar, i int) *domain.Signal {
		return &domain.Signal{Timestamp: bars[i].Timestamp, Direction: domain.DirectionCall}
	}
	filtered := Apply(always, SessionWindowFilter(loc, 9*time.Hour+30*time.Minute, 16*time.Hour))

	bars := makeBars([]float64{100})
	bars[0].Timestamp = time.Date(2026, 8, 3, 8, 0, 0, 0, loc)
	if sig := filtered(bars, 0); sig != nil {
		t.Fatalf("expected pre-market signal to be filtered out")
	}

	bars[0].Timestamp = time.Date(2026, 8, 3, 10, 0, 0, 0, loc)
	if sig := filtered(bars, 0); sig == nil {
		t.Fatalf("expected in-window signal to pass")
	}
}
