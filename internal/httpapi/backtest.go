package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/zerodte/optionagent/internal/backtest"
	"github.com/zerodte/optionagent/internal/data"
	"github.com/zerodte/optionagent/internal/optimize"
	"github.com/zerodte/optionagent/internal/signal"
)

// strategyRegistry resolves the JSON request's named strategy to a
// signal.Strategy builder. Only strategies cheap to default-construct
// from a handful of numeric params are exposed over HTTP; anything more
// exotic (Confluence panels, ORB with prior-session pivots) is a
// library call for now, not a webhook-triggered one.
var strategyRegistry = map[string]func(p map[string]float64) signal.Strategy{
	"ema_cross": func(p map[string]float64) signal.Strategy {
		return signal.EMACross(intParam(p, "fast_period", 9), intParam(p, "slow_period", 21))
	},
	"vwap_cross": func(p map[string]float64) signal.Strategy {
		return signal.VWAPCross()
	},
	"ema_vwap_confluence": func(p map[string]float64) signal.Strategy {
		return signal.EMAVWAPConfluence(intParam(p, "fast_period", 9), intParam(p, "slow_period", 21))
	},
	"vwap_rsi": func(p map[string]float64) signal.Strategy {
		return signal.VWAPRSI(intParam(p, "rsi_period", 14), p["rsi_low"], floatParamOr(p, "rsi_high", 70))
	},
	"rsi_reversal": func(p map[string]float64) signal.Strategy {
		return signal.RSIReversal(intParam(p, "period", 14), floatParamOr(p, "oversold", 30), floatParamOr(p, "overbought", 70))
	},
}

func intParam(p map[string]float64, key string, def int) int {
	if v, ok := p[key]; ok {
		return int(v)
	}
	return def
}

func floatParamOr(p map[string]float64, key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

type backtestRequest struct {
	Underlying   string             `json:"underlying" validate:"required"`
	From         time.Time          `json:"from" validate:"required"`
	To           time.Time          `json:"to" validate:"required"`
	Timeframe    string             `json:"timeframe"`
	Strategy     string             `json:"strategy" validate:"required"`
	Params       map[string]float64 `json:"params"`
	RiskFreeRate float64            `json:"risk_free_rate"`
	ImpliedVol   float64            `json:"implied_vol" validate:"required,gt=0"`
}

func (req *backtestRequest) resolveStrategy() (signal.Strategy, error) {
	build, ok := strategyRegistry[req.Strategy]
	if !ok {
		return nil, fmt.Errorf("httpapi: unknown strategy %q", req.Strategy)
	}
	return build(req.Params), nil
}

func (req *backtestRequest) timeframe() time.Duration {
	if req.Timeframe == "" {
		return time.Minute
	}
	d, err := time.ParseDuration(req.Timeframe)
	if err != nil {
		return time.Minute
	}
	return d
}

// handleBacktestRun fetches bars over the requested window from the
// configured broker and replays a single named strategy against them
// (spec §6 / §4.8).
func (s *Server) handleBacktestRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "POST only"})
		return
	}

	var req backtestRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "decoding request: " + err.Error()})
		return
	}
	if err := webhookValidate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request: " + err.Error()})
		return
	}

	strategy, err := req.resolveStrategy()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	ctx := r.Context()
	bars, err := s.Broker.GetPriceHistory(ctx, req.Underlying, req.From, req.To, req.timeframe())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "fetching price history: " + err.Error()})
		return
	}

	result, err := backtest.Run(backtest.SimulationConfig{
		Underlying:   req.Underlying,
		Bars:         bars,
		Strategy:     strategy,
		Config:       s.Config,
		RiskFreeRate: req.RiskFreeRate,
		ImpliedVol:   req.ImpliedVol,
	})
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type backtestOptimizeRequest struct {
	backtestRequest
	Space      optimize.ParameterSpace `json:"space" validate:"required"`
	Iterations int                     `json:"iterations" validate:"required,gt=0,lte=10000"`
}

// handleBacktestOptimize runs optimize.Search over the same bar window
// handleBacktestRun would use, sampling cfg overrides from Space rather
// than replaying a single fixed config.
func (s *Server) handleBacktestOptimize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "POST only"})
		return
	}

	var req backtestOptimizeRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "decoding request: " + err.Error()})
		return
	}
	if err := webhookValidate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request: " + err.Error()})
		return
	}

	strategy, err := req.resolveStrategy()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	ctx := r.Context()
	bars, err := s.Broker.GetPriceHistory(ctx, req.Underlying, req.From, req.To, req.timeframe())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "fetching price history: " + err.Error()})
		return
	}

	results := optimize.Search(s.Config, req.Underlying, bars, strategy, req.RiskFreeRate, req.ImpliedVol, req.Space, req.Iterations, optimize.ProfitFactor)
	writeJSON(w, http.StatusOK, results)
}

// dataProvider resolves the supplemental multi-leg engine's market-data
// source from the same broker config the live scheduler uses, mirroring
// cmd/optionagent/main.go's newBroker switch.
func (s *Server) dataProvider() data.Provider {
	if s.Config.Broker.Provider == "massive" {
		return data.NewMassiveDataProvider(s.Config.Broker.APIKey)
	}
	return data.NewSyntheticProvider()
}

// handleBacktestSpread runs the supplemental calendar/earnings-driven
// multi-leg spread engine (§4.5) against a static LegSpec config,
// distinct from handleBacktestRun's signal-driven single-leg replay.
func (s *Server) handleBacktestSpread(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "POST only"})
		return
	}

	var cfg backtest.Config
	if err := readJSON(r, &cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "decoding request: " + err.Error()})
		return
	}
	if cfg.Underlying == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "underlying is required"})
		return
	}
	if len(cfg.Strategy) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "strategy must have at least one leg"})
		return
	}

	result, err := backtest.RunSpread(&cfg, s.dataProvider())
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}
