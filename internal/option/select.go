// Package option selects a concrete tradable contract for a directional
// signal: the strike closest to a target delta, subject to spread and
// liquidity filters (spec §4.6 / C2).
package option

import (
	"fmt"
	"math"
	"time"

	"github.com/zerodte/optionagent/internal/config"
	"github.com/zerodte/optionagent/internal/domain"
	"github.com/zerodte/optionagent/internal/pricing"
)

// Candidate is one chain row under consideration.
type Candidate struct {
	Symbol       string
	Strike       float64
	Expiration   time.Time
	Quote        domain.Quote
	OpenInterest int64
	Volume       int64
}

// SelectionError explains why no contract could be selected.
type SelectionError struct {
	Reason string
}

func (e *SelectionError) Error() string { return "option: " + e.Reason }

// Select picks the chain candidate whose theoretical delta is closest
// to the target, among those whose quoted (or estimated) spread is
// within MaxSpreadPercent of mid. deltaTarget overrides cfg.DeltaTarget
// when positive, letting regime-aware callers resolve a dynamic target
// per signal instead of always using the static configured one.
func Select(cfg *config.OptionConfig, dir domain.Direction, underlyingPrice float64, impliedVol float64, chain []Candidate, now time.Time, deltaTarget float64) (*Candidate, error) {
	if len(chain) == 0 {
		return nil, &SelectionError{Reason: "empty chain"}
	}
	if deltaTarget <= 0 {
		deltaTarget = cfg.DeltaTarget
	}

	isCall := dir == domain.DirectionCall
	var best *Candidate
	var bestDiff float64

	for i := range chain {
		c := &chain[i]
		T := yearsToExpiry(now, c.Expiration)
		if T <= 0 {
			continue
		}

		mid := c.Quote.Mid()
		if mid <= 0 {
			continue
		}

		spreadFrac := spreadFraction(c.Quote)
		if spreadFrac > cfg.MaxSpreadPercent {
			continue
		}

		delta := pricing.Delta(isCall, underlyingPrice, c.Strike, T, cfg.RiskFreeRate, impliedVol)
		diff := math.Abs(math.Abs(delta) - deltaTarget)

		if best == nil || diff < bestDiff {
			best = c
			bestDiff = diff
		}
	}

	if best == nil {
		return nil, &SelectionError{Reason: "no candidate passed spread/delta filters"}
	}
	return best, nil
}

// spreadFraction returns (ask-bid)/mid, or 0 when the quote has no
// two-sided market (falls back to Last).
func spreadFraction(q domain.Quote) float64 {
	mid := q.Mid()
	if mid <= 0 || q.Bid <= 0 || q.Ask <= 0 {
		return 0
	}
	return (q.Ask - q.Bid) / mid
}

func yearsToExpiry(now, expiry time.Time) float64 {
	return expiry.Sub(now).Hours() / 24 / 365
}

// SyntheticChain builds a parametric chain of Candidates around the
// underlying price using the pricer's Black-Scholes price and
// EstimateSpread, for use by the synthetic broker and backtest
// simulator when no live chain is available.
func SyntheticChain(underlyingPrice, impliedVol, riskFreeRate float64, expiry time.Time, now time.Time, strikeStep float64, strikeCount int) []Candidate {
	T := yearsToExpiry(now, expiry)
	out := make([]Candidate, 0, strikeCount*2+1)

	atm := math.Round(underlyingPrice/strikeStep) * strikeStep
	for i := -strikeCount; i <= strikeCount; i++ {
		strike := atm + float64(i)*strikeStep
		if strike <= 0 {
			continue
		}
		callPrice := pricing.BlackScholesPrice(true, underlyingPrice, strike, T, riskFreeRate, impliedVol)
		delta := pricing.Delta(true, underlyingPrice, strike, T, riskFreeRate, impliedVol)
		spreadFrac := pricing.EstimateSpread(callPrice, T, math.Abs(delta))
		half := callPrice * spreadFrac / 2

		out = append(out, Candidate{
			Symbol:     fmt.Sprintf("SYN%dC%06.0f", expiry.Unix(), strike*1000),
			Strike:     strike,
			Expiration: expiry,
			Quote:      domain.Quote{Bid: math.Max(0.01, callPrice-half), Ask: callPrice + half, Last: callPrice},
		})
	}
	return out
}
