// Package optimize runs a random-parameter search over the backtest
// simulator to find the parameter vector that scores best against a
// chosen objective (spec §4.8 / C9).
package optimize

import (
	"math/rand"
	"sort"

	"github.com/zerodte/optionagent/internal/backtest"
	"github.com/zerodte/optionagent/internal/config"
	"github.com/zerodte/optionagent/internal/domain"
	"github.com/zerodte/optionagent/internal/signal"
)

// Range describes a uniform sampling interval for one named parameter.
type Range struct {
	Min float64
	Max float64
}

// ParameterSpace maps a parameter name to its sampling range. Names
// understood by Apply: "stop_loss_percent", "profit_target_percent",
// "trailing_stop_percent", "breakeven_trigger_percent", "delta_target".
type ParameterSpace map[string]Range

// Params is one sampled point in the space.
type Params map[string]float64

// ScoredResult pairs a sampled parameter vector with the simulation it
// produced and its objective score.
type ScoredResult struct {
	Params  Params
	Summary *backtest.SimulationResult
	Score   float64
}

// Objective scores a simulation result; higher is better.
type Objective func(*backtest.SimulationResult) float64

// ProfitFactor is the default Objective: gross profit over gross loss.
// A run with no trades scores 0; a run with no losing trades scores its
// gross profit in dollars.
func ProfitFactor(res *backtest.SimulationResult) float64 {
	if res == nil || len(res.Trades) == 0 {
		return 0
	}
	var grossProfit, grossLoss float64
	for _, t := range res.Trades {
		if t.PnLDollars >= 0 {
			grossProfit += t.PnLDollars
		} else {
			grossLoss += -t.PnLDollars
		}
	}
	if grossLoss == 0 {
		return grossProfit
	}
	return grossProfit / grossLoss
}

// Apply mutates a copy of base with the sampled params and returns it.
func Apply(base *config.Config, p Params) *config.Config {
	cfg := *base
	if v, ok := p["stop_loss_percent"]; ok {
		cfg.Exit.StopLossPercent = v
	}
	if v, ok := p["profit_target_percent"]; ok {
		cfg.Exit.ProfitTargetPercent = v
	}
	if v, ok := p["trailing_stop_percent"]; ok {
		cfg.Exit.TrailingStopPercent = v
	}
	if v, ok := p["breakeven_trigger_percent"]; ok {
		cfg.Exit.BreakevenTriggerPercent = v
	}
	if v, ok := p["delta_target"]; ok {
		cfg.Option.DeltaTarget = v
	}
	return &cfg
}

// Search draws n random parameter vectors from space, runs a backtest
// for each against bars/strategy, scores the result with objective
// (ProfitFactor if nil), and returns every result sorted descending by
// score. Sampling uses cfg.Backtest.Seed for reproducibility.
func Search(cfg *config.Config, underlying string, bars []domain.Bar, strategy signal.Strategy, riskFreeRate, impliedVol float64, space ParameterSpace, n int, objective Objective) []ScoredResult {
	if objective == nil {
		objective = ProfitFactor
	}
	rng := rand.New(rand.NewSource(cfg.Backtest.Seed))

	names := make([]string, 0, len(space))
	for name := range space {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]ScoredResult, 0, n)
	for i := 0; i < n; i++ {
		params := make(Params, len(names))
		for _, name := range names {
			r := space[name]
			params[name] = r.Min + rng.Float64()*(r.Max-r.Min)
		}

		trial := Apply(cfg, params)
		summary, err := backtest.Run(backtest.SimulationConfig{
			Underlying: underlying, Bars: bars, Strategy: strategy,
			Config: trial, RiskFreeRate: riskFreeRate, ImpliedVol: impliedVol,
		})
		if err != nil {
			continue
		}
		results = append(results, ScoredResult{Params: params, Summary: summary, Score: objective(summary)})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results
}
