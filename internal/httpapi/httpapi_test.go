package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zerodte/optionagent/internal/backtest"
	"github.com/zerodte/optionagent/internal/broker"
	"github.com/zerodte/optionagent/internal/config"
	"github.com/zerodte/optionagent/internal/domain"
	"github.com/zerodte/optionagent/internal/optimize"
	"github.com/zerodte/optionagent/internal/store"
)

const testSecret = "shh"

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Schedule.Timezone = "America/New_York"
	cfg.Schedule.TradingStart = "00:00"
	cfg.Schedule.TradingEnd = "23:59"
	cfg.Entry.DefaultQuantity = 1
	cfg.Entry.EntryLimitBelowPercent = 0.02
	cfg.Entry.EntryLimitTimeoutMinutes = 5
	cfg.Exit.StopLossPercent = 0.30
	cfg.Exit.ProfitTargetPercent = 0.50
	cfg.Exit.TrailingStopPercent = 0.20
	cfg.Admission.MaxDailyTrades = 5
	cfg.Admission.MaxConsecutiveLosses = 3
	cfg.Option.DeltaTarget = 0.40
	cfg.Option.MaxSpreadPercent = 0.50
	cfg.Option.RiskFreeRate = 0.03
	cfg.HTTP.Enabled = true
	cfg.HTTP.Port = 0
	cfg.HTTP.SharedSecret = testSecret
	return cfg
}

func newTestServer() (*Server, *broker.SyntheticBroker) {
	cfg := testConfig()
	br := broker.NewSyntheticBroker(1, cfg.Option.RiskFreeRate, 0.25)
	br.SetSpot("SPY", 500)
	st := store.NewMemory()
	s := NewServer(cfg, br, st)
	s.ImpliedVol = 0.25
	return s, br
}

func doRequest(t *testing.T, s *Server, method, path string, body interface{}, withAuth bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if withAuth {
		req.Header.Set("X-Agent-Secret", testSecret)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealthReturnsOK(t *testing.T) {
	s, _ := newTestServer()
	rec := doRequest(t, s, http.MethodGet, "/health", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRoutesRejectMissingSharedSecret(t *testing.T) {
	s, _ := newTestServer()
	rec := doRequest(t, s, http.MethodGet, "/trades", nil, false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleWebhookOpensTradeOnAllowedAlert(t *testing.T) {
	s, _ := newTestServer()
	payload := webhookPayload{Ticker: "SPY", Action: "BUY_CALL", Price: 500, Source: "tradingview"}

	rec := doRequest(t, s, http.MethodPost, "/webhook", payload, true)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp["status"] != "opened" {
		t.Fatalf("expected status=opened, got %v", resp)
	}
}

func TestHandleWebhookRejectsInvalidPayload(t *testing.T) {
	s, _ := newTestServer()
	rec := doRequest(t, s, http.MethodPost, "/webhook", map[string]string{"ticker": "SPY"}, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleWebhookRejectsAfterDailyTradeLimit(t *testing.T) {
	s, _ := newTestServer()
	s.Config.Admission.MaxDailyTrades = 1
	s.Daily.TradesOpened = 1 // already at the cap before this alert arrives
	payload := webhookPayload{Ticker: "SPY", Action: "BUY_CALL", Price: 500}

	rec := doRequest(t, s, http.MethodPost, "/webhook", payload, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected rejection with 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp["status"] != "rejected" {
		t.Fatalf("expected status=rejected, got %v", resp)
	}
}

func TestHandleListAndGetTrade(t *testing.T) {
	s, _ := newTestServer()
	trade := &domain.Trade{Status: domain.StatusFilled, EntryPrice: 1.0, EntryQuantity: 1, OptionSymbol: "SPY_TEST"}
	if err := s.Store.SaveTrade(newTestContext(), trade); err != nil {
		t.Fatalf("SaveTrade: %v", err)
	}

	listRec := doRequest(t, s, http.MethodGet, "/trades", nil, true)
	if listRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", listRec.Code)
	}
	var trades []*domain.Trade
	if err := json.Unmarshal(listRec.Body.Bytes(), &trades); err != nil {
		t.Fatalf("decoding trades: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 open trade, got %d", len(trades))
	}

	getRec := doRequest(t, s, http.MethodGet, "/trades/1", nil, true)
	if getRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", getRec.Code, getRec.Body.String())
	}
}

func TestHandleManualCloseClosesFilledTrade(t *testing.T) {
	s, br := newTestServer()
	res, err := br.PlaceOrder(newTestContext(), broker.OrderRequest{Symbol: "SPY_TEST2", Type: broker.OrderTypeLimit, Quantity: 1, LimitPrice: 2.00})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	trade := &domain.Trade{Status: domain.StatusFilled, EntryPrice: 2.0, EntryQuantity: 1, OptionSymbol: "SPY_TEST2", EntryOrderID: res.OrderID}
	if err := s.Store.SaveTrade(newTestContext(), trade); err != nil {
		t.Fatalf("SaveTrade: %v", err)
	}

	rec := doRequest(t, s, http.MethodPost, "/trades/1/close", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	got, err := s.Store.GetTrade(newTestContext(), trade.ID)
	if err != nil {
		t.Fatalf("GetTrade: %v", err)
	}
	if got.Status != domain.StatusClosed {
		t.Fatalf("expected trade closed, got %s", got.Status)
	}
	if got.ExitReason != domain.ExitManual {
		t.Fatalf("expected manual exit reason, got %s", got.ExitReason)
	}
}

func TestHandleCancelTradeCancelsPendingEntry(t *testing.T) {
	s, br := newTestServer()
	br.FillDelay = time.Hour // keep the order open past this test
	res, err := br.PlaceOrder(newTestContext(), broker.OrderRequest{Symbol: "SPY_TEST3", Type: broker.OrderTypeLimit, Quantity: 1, LimitPrice: 2.00})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	trade := &domain.Trade{Status: domain.StatusInit, EntryQuantity: 1, OptionSymbol: "SPY_TEST3", EntryOrderID: res.OrderID}
	if err := trade.TransitionState(domain.StatusPending, "seed"); err != nil {
		t.Fatalf("TransitionState: %v", err)
	}
	if err := s.Store.SaveTrade(newTestContext(), trade); err != nil {
		t.Fatalf("SaveTrade: %v", err)
	}

	rec := doRequest(t, s, http.MethodPost, "/trades/1/cancel", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	got, err := s.Store.GetTrade(newTestContext(), trade.ID)
	if err != nil {
		t.Fatalf("GetTrade: %v", err)
	}
	if got.Status != domain.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
}

func TestHandleBacktestRunReturnsSimulationResult(t *testing.T) {
	s, br := newTestServer()
	br.SetSpot("SPY", 500)

	req := backtestRequest{
		Underlying: "SPY", Strategy: "ema_cross",
		From: time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC),
		To:   time.Date(2026, 1, 2, 11, 30, 0, 0, time.UTC),
		ImpliedVol: 0.25,
	}
	rec := doRequest(t, s, http.MethodPost, "/backtest/run", req, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleBacktestOptimizeReturnsScoredResults(t *testing.T) {
	s, br := newTestServer()
	br.SetSpot("SPY", 500)

	rec := doRequest(t, s, http.MethodPost, "/backtest/optimize", backtestOptimizeRequest{
		backtestRequest: backtestRequest{
			Underlying: "SPY", Strategy: "rsi_reversal",
			From: time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC),
			To:   time.Date(2026, 1, 2, 11, 30, 0, 0, time.UTC),
			ImpliedVol: 0.25,
		},
		Space:      optimize.ParameterSpace{"profit_target_percent": {Min: 0.2, Max: 0.8}},
		Iterations: 3,
	}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleBacktestRunRejectsUnknownStrategy(t *testing.T) {
	s, _ := newTestServer()
	req := backtestRequest{
		Underlying: "SPY", Strategy: "not_a_strategy",
		From: time.Now(), To: time.Now().Add(time.Hour), ImpliedVol: 0.25,
	}
	rec := doRequest(t, s, http.MethodPost, "/backtest/run", req, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleBacktestSpreadReturnsMultiLegTrades(t *testing.T) {
	s, _ := newTestServer()

	req := backtest.Config{
		Underlying:   "SPY",
		DaysToExpiry: 14,
		Entry: backtest.EntryRule{
			Start: time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC),
		},
		Strategy: []backtest.LegSpec{
			{Side: "buy", OptionType: "call", StrikeRule: "ATM", Qty: 1},
		},
	}
	rec := doRequest(t, s, http.MethodPost, "/backtest/spread", req, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleBacktestSpreadRejectsMissingLegs(t *testing.T) {
	s, _ := newTestServer()

	req := backtest.Config{Underlying: "SPY"}
	rec := doRequest(t, s, http.MethodPost, "/backtest/spread", req, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleMetricsServesPrometheusFormat(t *testing.T) {
	s, _ := newTestServer()
	rec := doRequest(t, s, http.MethodGet, "/metrics", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func newTestContext() context.Context {
	return context.Background()
}
