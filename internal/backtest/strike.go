package backtest

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/zerodte/optionagent/internal/data"
	"github.com/zerodte/optionagent/internal/pricing"
)

// legExpression matches a previously resolved leg's strike or premium,
// e.g. "{LEG1.STRIKE}" or "{LEG2.PREMIUM}".
var legExpression = regexp.MustCompile(`\{LEG(\d)\.(STRIKE|PREMIUM)\}`)

// ResolveStrike converts a leg's strike rule into a concrete strike
// price. Supported forms:
//
//	ATM            nearest strike to asOfPrice
//	ATM:+10        nearest strike to asOfPrice+10
//	ATM:-5%        nearest strike to asOfPrice reduced by 5%
//	DELTA:0.3      strike whose Black-Scholes delta is closest to 0.3
//	{LEG1.STRIKE}+5   arithmetic over a previously resolved leg
func ResolveStrike(strikeRule, underlying string, asOfPrice float64, openDate, expiryDate time.Time, legs []TradeLeg, prov data.Provider) (float64, error) {
	rule := strings.TrimSpace(strings.ToUpper(strikeRule))

	if rule == "ATM" {
		return prov.RoundToNearestStrike(underlying, expiryDate, openDate, asOfPrice), nil
	}

	if rest, ok := strings.CutPrefix(rule, "ATM:"); ok {
		target, err := applyPriceOffset(rest, asOfPrice)
		if err != nil {
			return 0, fmt.Errorf("backtest: resolving %q: %w", strikeRule, err)
		}
		return prov.RoundToNearestStrike(underlying, expiryDate, openDate, target), nil
	}

	if rest, ok := strings.CutPrefix(rule, "DELTA:"); ok {
		targetDelta, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			return 0, fmt.Errorf("backtest: invalid DELTA value %q: %w", rest, err)
		}
		target, err := resolveDeltaStrike(underlying, asOfPrice, openDate, expiryDate, targetDelta, prov)
		if err != nil {
			return 0, fmt.Errorf("backtest: resolving %q: %w", strikeRule, err)
		}
		return prov.RoundToNearestStrike(underlying, expiryDate, openDate, target), nil
	}

	if strings.Contains(rule, "{LEG") {
		target, err := evaluateLegExpression(rule, legs)
		if err != nil {
			return 0, fmt.Errorf("backtest: resolving %q: %w", strikeRule, err)
		}
		return prov.RoundToNearestStrike(underlying, expiryDate, openDate, target), nil
	}

	return 0, fmt.Errorf("backtest: unrecognized strike rule %q", strikeRule)
}

// resolveDeltaStrike estimates at-the-money implied vol from the
// provider's call/put mid prices, then inverts Black-Scholes delta for
// targetDelta. The risk-free rate mirrors the 0.02 default used
// elsewhere in this package's synthetic pricing fallback.
func resolveDeltaStrike(underlying string, asOfPrice float64, openDate, expiryDate time.Time, targetDelta float64, prov data.Provider) (float64, error) {
	const riskFreeRate = 0.02

	atmStrike := prov.RoundToNearestStrike(underlying, expiryDate, openDate, asOfPrice)
	t := yearsToExpiry(openDate, expiryDate)
	if t <= 0 {
		return 0, fmt.Errorf("expiry %s is not after open date %s", expiryDate, openDate)
	}

	callPrice, err := prov.GetOptionPrice(underlying, atmStrike, expiryDate, "call", openDate)
	if err != nil {
		return 0, fmt.Errorf("fetching ATM call price: %w", err)
	}
	putPrice, err := prov.GetOptionPrice(underlying, atmStrike, expiryDate, "put", openDate)
	if err != nil {
		return 0, fmt.Errorf("fetching ATM put price: %w", err)
	}

	iv, err := pricing.ImpliedVolATM(asOfPrice, atmStrike, t, riskFreeRate, callPrice, putPrice)
	if err != nil {
		return 0, fmt.Errorf("estimating ATM implied vol: %w", err)
	}

	return pricing.StrikeFromDelta(targetDelta > 0, asOfPrice, t, riskFreeRate, iv, math.Abs(targetDelta))
}

// applyPriceOffset applies an absolute or percentage offset to a price,
// e.g. "+10" or "-5%".
func applyPriceOffset(offset string, asOfPrice float64) (float64, error) {
	if strings.HasSuffix(offset, "%") {
		pct, err := strconv.ParseFloat(strings.TrimSuffix(offset, "%"), 64)
		if err != nil {
			return 0, err
		}
		return asOfPrice + asOfPrice*pct/100, nil
	}
	abs, err := strconv.ParseFloat(offset, 64)
	if err != nil {
		return 0, err
	}
	return asOfPrice + abs, nil
}

// evaluateLegExpression resolves {LEGn.STRIKE} / {LEGn.PREMIUM}
// references against already-resolved legs and sums the result with
// any remaining +/- numeric terms, e.g. "{LEG1.STRIKE}+5-2.5". This
// covers the wing/calendar-spread expressions actually used in leg
// specs without pulling in a general expression evaluator.
func evaluateLegExpression(expr string, legs []TradeLeg) (float64, error) {
	matches := legExpression.FindAllStringSubmatch(expr, -1)
	if matches == nil {
		return 0, fmt.Errorf("no {LEGn.FIELD} reference found in %q", expr)
	}

	substituted := expr
	for _, m := range matches {
		idx, _ := strconv.Atoi(m[1])
		idx--
		if idx < 0 || idx >= len(legs) {
			return 0, fmt.Errorf("leg index out of range in %q", m[0])
		}

		var value float64
		if m[2] == "STRIKE" {
			value = legs[idx].Strike
		} else {
			value = legs[idx].OpenPremium
		}
		substituted = strings.Replace(substituted, m[0], formatSignedTerm(value), 1)
	}

	return sumSignedTerms(substituted)
}

// formatSignedTerm renders a value so it composes correctly inside an
// existing +/- term chain regardless of its own sign.
func formatSignedTerm(v float64) string {
	if v < 0 {
		return fmt.Sprintf("-%f", -v)
	}
	return fmt.Sprintf("+%f", v)
}

// sumSignedTerms evaluates a chain of +/- numeric terms, e.g. "+10-2.5".
func sumSignedTerms(expr string) (float64, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return 0, fmt.Errorf("empty expression")
	}
	if expr[0] != '+' && expr[0] != '-' {
		expr = "+" + expr
	}

	var total float64
	sign := 1.0
	var term strings.Builder
	flush := func() error {
		if term.Len() == 0 {
			return nil
		}
		v, err := strconv.ParseFloat(term.String(), 64)
		if err != nil {
			return err
		}
		total += sign * v
		term.Reset()
		return nil
	}

	for _, r := range expr {
		switch r {
		case '+':
			if err := flush(); err != nil {
				return 0, err
			}
			sign = 1
		case '-':
			if err := flush(); err != nil {
				return 0, err
			}
			sign = -1
		default:
			term.WriteRune(r)
		}
	}
	if err := flush(); err != nil {
		return 0, err
	}
	return total, nil
}

func yearsToExpiry(from, to time.Time) float64 {
	return to.Sub(from).Hours() / 24 / 365.25
}
