package regime

import "github.com/zerodte/optionagent/internal/config"

// exitMultipliers scales a base exit parameter set by regime.
type exitMultipliers struct {
	stopLoss     float64
	profitTarget float64
	trailingStop float64
	maxHold      float64
}

var regimeMultipliers = map[Regime]exitMultipliers{
	Breakout:          {stopLoss: 1.3, profitTarget: 1.5, trailingStop: 1.2, maxHold: 1.2},
	TrendContinuation: {stopLoss: 1.0, profitTarget: 1.0, trailingStop: 1.0, maxHold: 1.0},
	Chop:              {stopLoss: 0.7, profitTarget: 0.6, trailingStop: 0.7, maxHold: 0.6},
	Unknown:           {stopLoss: 1.0, profitTarget: 1.0, trailingStop: 1.0, maxHold: 1.0},
}

const (
	lowConfidenceThreshold  = 0.4
	lowConfidenceSizeFactor = 0.5

	clampStopLossMin, clampStopLossMax         = 0.05, 0.95
	clampProfitTargetMin, clampProfitTargetMax = 0.05, 2.00
	clampTrailingMin, clampTrailingMax         = 0.03, 0.50
	clampHoldMinutesMin, clampHoldMinutesMax   = 10, 360
)

// AdaptedExit is a per-trade exit parameter set derived from a base
// ExitConfig by applying regime and VIX multipliers, then a
// confidence-based position-size cut, then clamping to sane bounds.
type AdaptedExit struct {
	StopLossPercent     float64
	ProfitTargetPercent float64
	TrailingStopPercent float64
	MaxHoldMinutes      int
	// SizeFactor multiplies the entry quantity that would otherwise be
	// ordered; 1.0 leaves it unchanged.
	SizeFactor float64
}

// AdaptExit applies res's regime classification and an optional VIX
// reading to base, in the original system's order: regime multiplier,
// then VIX overlay, then a confidence cut to size only, then clamping.
func AdaptExit(base *config.ExitConfig, res Resolution, vix *float64) AdaptedExit {
	m, ok := regimeMultipliers[res.Classification.Resolved()]
	if !ok {
		m = regimeMultipliers[Unknown]
	}

	stop := base.StopLossPercent * m.stopLoss
	profit := base.ProfitTargetPercent * m.profitTarget
	trail := base.TrailingStopPercent * m.trailingStop
	hold := float64(base.MaxHoldMinutes) * m.maxHold
	sizeFactor := 1.0

	if vix != nil {
		switch {
		case *vix >= vixHighThreshold:
			stop *= 1.3
			profit *= 1.3
			sizeFactor *= 0.7
		case *vix <= vixLowThreshold:
			stop *= 0.8
			profit *= 0.8
		}
	}

	if res.Classification.Confidence < lowConfidenceThreshold {
		sizeFactor *= lowConfidenceSizeFactor
	}

	stop = clamp(stop, clampStopLossMin, clampStopLossMax)
	profit = clamp(profit, clampProfitTargetMin, clampProfitTargetMax)
	trail = clamp(trail, clampTrailingMin, clampTrailingMax)
	holdMinutes := int(clamp(hold, clampHoldMinutesMin, clampHoldMinutesMax))

	return AdaptedExit{
		StopLossPercent:     stop,
		ProfitTargetPercent: profit,
		TrailingStopPercent: trail,
		MaxHoldMinutes:      holdMinutes,
		SizeFactor:          sizeFactor,
	}
}

// ExitConfig materializes a's adapted parameters onto a copy of base,
// for passing straight into exit.Evaluate as the trade's own ExitConfig.
func (a AdaptedExit) ExitConfig(base *config.ExitConfig) *config.ExitConfig {
	cfg := *base
	cfg.StopLossPercent = a.StopLossPercent
	cfg.ProfitTargetPercent = a.ProfitTargetPercent
	cfg.TrailingStopPercent = a.TrailingStopPercent
	cfg.MaxHoldMinutes = a.MaxHoldMinutes
	return &cfg
}

func clamp(v, low, high float64) float64 {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}
