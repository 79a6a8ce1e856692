package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/zerodte/optionagent/internal/admission"
	"github.com/zerodte/optionagent/internal/domain"
	"github.com/zerodte/optionagent/internal/logger"
	"github.com/zerodte/optionagent/internal/metrics"
	"github.com/zerodte/optionagent/internal/option"
)

// webhookValidate is package-level per validator/v10's recommendation
// to build one *Validate and reuse it (it caches struct reflection).
var webhookValidate = validator.New()

type webhookPayload struct {
	Ticker string  `json:"ticker" validate:"required"`
	Action string  `json:"action" validate:"required,oneof=BUY_CALL BUY_PUT CLOSE"`
	Price  float64 `json:"price" validate:"required,gt=0"`
	Source string  `json:"source"`
}

// handleWebhook is the inbound signal surface (spec §6): a BUY_CALL or
// BUY_PUT runs the alert through admission and, if allowed, opens a
// trade exactly like the scheduler's strategy-poll loop would; CLOSE
// requests an immediate manual exit on every open trade for the ticker.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "POST only"})
		return
	}

	var payload webhookPayload
	if err := readJSON(r, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "decoding payload: " + err.Error()})
		return
	}
	if err := webhookValidate.Struct(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid payload: " + err.Error()})
		return
	}

	now := time.Now()
	ctx := r.Context()

	if payload.Action == string(domain.ActionClose) {
		s.closeAllOpenTrades(ctx, payload.Ticker, now, w)
		return
	}

	dir := domain.DirectionCall
	if payload.Action == string(domain.ActionBuyPut) {
		dir = domain.DirectionPut
	}

	alert := &domain.Alert{
		CorrelationID: uuid.NewString(),
		ReceivedAt:    now, Ticker: payload.Ticker, Direction: dir,
		SignalPrice: payload.Price, Source: firstNonEmpty(payload.Source, "webhook"),
		Status: domain.AlertReceived,
	}
	if err := s.Store.SaveAlert(ctx, alert); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}

	loc, err := s.Config.Location()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	result := admission.Evaluate(s.Config, s.Daily, alert, now, loc)
	if !result.Allowed {
		alert.MarkRejected(result.Reason)
		_ = s.Store.SaveAlert(ctx, alert)
		metrics.AlertsRejected.WithLabelValues(result.Reason).Inc()
		writeJSON(w, http.StatusOK, map[string]string{"status": "rejected", "reason": result.Reason})
		return
	}

	trade, err := s.openFromAlert(ctx, alert, now)
	if err != nil {
		alert.MarkRejected(err.Error())
		_ = s.Store.SaveAlert(ctx, alert)
		writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error()})
		return
	}
	alert.MarkProcessed(trade.ID)
	_ = s.Store.SaveAlert(ctx, alert)
	s.hub.broadcast(wsEvent{Type: "trade_opened", Trade: trade})

	writeJSON(w, http.StatusAccepted, map[string]interface{}{"status": "opened", "trade_id": trade.ID, "correlation_id": alert.CorrelationID})
}

func (s *Server) openFromAlert(ctx context.Context, alert *domain.Alert, now time.Time) (*domain.Trade, error) {
	expiry := now.Add(time.Duration(7-now.Weekday()) * 24 * time.Hour)

	chain, err := s.Broker.GetOptionChain(ctx, alert.Ticker, expiry)
	if err != nil {
		return nil, fmt.Errorf("httpapi: fetching option chain: %w", err)
	}

	candidates := make([]option.Candidate, len(chain.Contracts))
	for i, c := range chain.Contracts {
		candidates[i] = option.Candidate{
			Symbol: c.Symbol, Strike: c.Strike, Expiration: chain.Expiration,
			Quote: domain.Quote{Bid: c.Bid, Ask: c.Ask},
		}
	}

	// webhook alerts arrive with no bar history to classify a regime
	// against, so delta resolution falls back to the static configured
	// target (deltaTarget 0).
	best, err := option.Select(&s.Config.Option, alert.Direction, alert.SignalPrice, s.ImpliedVol, candidates, now, 0)
	if err != nil {
		return nil, fmt.Errorf("httpapi: selecting contract: %w", err)
	}

	trade, err := s.Entry.Open(ctx, alert, best, now)
	if err != nil {
		return nil, fmt.Errorf("httpapi: opening entry: %w", err)
	}
	if err := s.Store.SaveTrade(ctx, trade); err != nil {
		return nil, fmt.Errorf("httpapi: saving trade: %w", err)
	}
	_ = s.Store.AppendEvent(ctx, &domain.TradeEvent{TradeID: trade.ID, Timestamp: now, Kind: "entry", Message: "opened from webhook"})
	// Daily.RecordOpened is deliberately not called here: the trade is
	// still PENDING until the scheduler's entry-fill poll confirms it,
	// same as a strategy-originated alert, so the daily trade count
	// only advances once the fill is observed.
	return trade, nil
}

func (s *Server) closeAllOpenTrades(ctx context.Context, ticker string, now time.Time, w http.ResponseWriter) {
	trades, err := s.Store.ListOpenTrades(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}

	var closed []int64
	for _, t := range trades {
		if underlyingOfSymbol(t.OptionSymbol) != ticker {
			continue
		}
		quote, err := s.Broker.GetQuote(ctx, t.OptionSymbol)
		if err != nil {
			logger.Errorf("httpapi: quoting %s for manual close: %v", t.OptionSymbol, err)
			continue
		}
		if err := s.closeTrade(ctx, t, quote.Mid(), now, domain.ExitManual); err != nil {
			logger.Errorf("httpapi: closing trade %d: %v", t.ID, err)
			continue
		}
		closed = append(closed, t.ID)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "closed", "trade_ids": closed})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func underlyingOfSymbol(symbol string) string {
	for i, c := range symbol {
		if c >= '0' && c <= '9' {
			return symbol[:i]
		}
	}
	return symbol
}
