package regime

import "github.com/zerodte/optionagent/internal/config"

// ResolveQuantity doubles baseQty when the signal's confluence score
// and relative volume both clear the configured thresholds, halves it
// (never below 1) when the score falls at or below the half-max
// threshold, and leaves it unchanged otherwise. score and relVol come
// from the originating domain.Signal/Alert; either being absent (a
// strategy that doesn't compute confluence) leaves baseQty unchanged.
func ResolveQuantity(cfg config.RegimeConfig, baseQty int, score *int, relVol *float64) int {
	if !cfg.Enabled || score == nil {
		return baseQty
	}
	switch {
	case *score >= cfg.ConfluenceDoubleMinScore && relVol != nil && *relVol >= cfg.ConfluenceDoubleMinRelVol:
		return baseQty * 2
	case *score <= cfg.ConfluenceHalfMaxScore:
		half := baseQty / 2
		if half < 1 {
			half = 1
		}
		return half
	default:
		return baseQty
	}
}
