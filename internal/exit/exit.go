// Package exit implements the priority-ordered exit-decision ladder
// that decides, for one open trade observation, whether and how much
// of the position to close (spec §4.2).
package exit

import (
	"time"

	"github.com/zerodte/optionagent/internal/config"
	"github.com/zerodte/optionagent/internal/domain"
)

// Action is what the ladder decided to do with a trade at this
// observation.
type Action string

const (
	ActionHold       Action = "HOLD"
	ActionScaleOut   Action = "SCALE_OUT"
	ActionCloseFull  Action = "CLOSE_FULL"
	ActionRaiseStop  Action = "RAISE_STOP"
)

// Decision is the ladder's verdict for one Evaluate call.
type Decision struct {
	Action Action
	Reason domain.ExitReason

	// ScaleOutQty is set only when Action == ActionScaleOut: the number
	// of contracts to close now, leaving RemainingQuantity-ScaleOutQty
	// still open.
	ScaleOutQty int

	// NewStopLossPrice is set when Action == ActionRaiseStop, or
	// alongside a scale-out decision that also moves the stop.
	NewStopLossPrice float64
}

// Evaluate runs the ladder top to bottom against one option-mid
// observation and returns the first rule that matches. Rules are
// evaluated in the fixed priority order the spec lists; a rule that
// doesn't apply falls through to the next without returning.
func Evaluate(cfg *config.ExitConfig, trade *domain.Trade, mid float64, now time.Time, loc *time.Location) Decision {
	// 1. time-based force exit cutoff
	local := now.In(loc)
	cutoff := time.Date(local.Year(), local.Month(), local.Day(), cfg.ForceExitHour, cfg.ForceExitMinute, 0, 0, loc)
	if !local.Before(cutoff) {
		return Decision{Action: ActionCloseFull, Reason: domain.ExitTimeBased}
	}

	// 2. max hold duration
	if !trade.EntryFilledAt.IsZero() {
		held := now.Sub(trade.EntryFilledAt)
		if held >= time.Duration(cfg.MaxHoldMinutes)*time.Minute {
			return Decision{Action: ActionCloseFull, Reason: domain.ExitMaxHoldTime}
		}
	}

	// 3. app-managed stop loss: the broker has no resting stop order for
	// this trade, so the scheduler itself must detect the breach and
	// close it rather than waiting on a fill notification.
	if trade.StopLossAppManaged && trade.StopLossPrice > 0 && mid <= trade.StopLossPrice {
		return Decision{Action: ActionCloseFull, Reason: domain.ExitStopLoss}
	}

	pnlPct := pnlPercent(trade.EntryPrice, mid)

	// 4. breakeven promotion: gated on the high-water mark, not the
	// current mid, so a retraced tick after a retried broker error still
	// sees the trigger it already crossed. Once profit crosses the
	// trigger, raise the stop to at least entry price. This does not
	// return — it falls through so a scale-out or profit-target check on
	// the same observation still applies after the stop is raised.
	var breakevenRaised bool
	if !trade.BreakevenApplied && trade.HighestPriceSeen >= trade.EntryPrice*(1+cfg.BreakevenTriggerPercent) {
		if trade.StopLossPrice < trade.EntryPrice {
			breakevenRaised = true
		}
	}

	// 5. scale-out requires at least 2 contracts at entry and at least 2
	// still remaining, so a contract always survives to preserve the
	// position's identity until the final exit. A single-contract trade
	// (or scale-out disabled) instead falls through to the flat
	// profit-target full exit below.
	remaining := trade.RemainingQuantity()
	if cfg.ScaleOutEnabled && trade.EntryQuantity >= 2 {
		if trade.ScaleOutCount == 0 && pnlPct >= cfg.ScaleOutTier1Percent && remaining > 1 {
			qty := scaleOutQty(trade, cfg.ScaleOutTier1Qty, remaining)
			d := Decision{Action: ActionScaleOut, Reason: domain.ExitScaleOut, ScaleOutQty: qty}
			if breakevenRaised {
				d.NewStopLossPrice = trade.EntryPrice
			}
			return d
		}
		if trade.ScaleOutCount == 1 && cfg.ScaleOutTier2Percent > 0 && pnlPct >= cfg.ScaleOutTier2Percent && remaining > 1 {
			qty := scaleOutQty(trade, cfg.ScaleOutTier2Qty, remaining)
			d := Decision{Action: ActionScaleOut, Reason: domain.ExitScaleOut, ScaleOutQty: qty}
			if breakevenRaised {
				d.NewStopLossPrice = trade.EntryPrice
			}
			return d
		}
	}
	// 6. flat profit target: applies whenever scale-out is disabled, or
	// the trade was never big enough to scale out of in the first place.
	if (!cfg.ScaleOutEnabled || trade.EntryQuantity == 1) && !trade.ScaledOut && pnlPct >= cfg.ProfitTargetPercent {
		return Decision{Action: ActionCloseFull, Reason: domain.ExitProfitTarget}
	}

	// 7. trailing stop, widened after a scale-out has banked partial
	// profit.
	trailPct := cfg.TrailingStopPercent
	if trade.ScaledOut {
		trailPct = cfg.TrailingStopAfterScaleOutPercent
	}
	if trade.HighestPriceSeen > 0 {
		trailLevel := trade.HighestPriceSeen * (1 - trailPct)
		if mid <= trailLevel && trade.HighestPriceSeen > trade.EntryPrice {
			return Decision{Action: ActionCloseFull, Reason: domain.ExitTrailingStop}
		}
	}

	if breakevenRaised {
		return Decision{Action: ActionRaiseStop, Reason: domain.ExitStopLoss, NewStopLossPrice: trade.EntryPrice}
	}

	return Decision{Action: ActionHold}
}

// pnlPercent returns the fractional gain of mid over entry, 0 if entry
// is non-positive.
func pnlPercent(entry, mid float64) float64 {
	if entry <= 0 {
		return 0
	}
	return (mid - entry) / entry
}

// scaleOutQty resolves a tier's quantity fraction against the trade's
// entry quantity, rounding down and capping at remaining-1 so at least
// one contract always survives the scale-out (spec invariant:
// scaled_out_quantity ≤ entry_quantity − 1). Callers only reach here
// once remaining > 1 has already been checked.
func scaleOutQty(trade *domain.Trade, fraction float64, remaining int) int {
	qty := int(float64(trade.EntryQuantity) * fraction)
	if qty <= 0 {
		qty = 1
	}
	if qty > remaining-1 {
		qty = remaining - 1
	}
	return qty
}
