package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zerodte/optionagent/internal/broker"
	"github.com/zerodte/optionagent/internal/domain"
	"github.com/zerodte/optionagent/internal/metrics"
)

// handleListTrades lists every trade still open (spec §6 CRUD surface).
func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "GET only"})
		return
	}
	trades, err := s.Store.ListOpenTrades(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

// handleTradeSubroute dispatches GET /trades/{id}, POST
// /trades/{id}/close, and POST /trades/{id}/cancel.
func (s *Server) handleTradeSubroute(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/trades/")
	parts := strings.Split(path, "/")

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid trade id"})
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.handleGetTrade(w, r, id)
	case len(parts) == 2 && parts[1] == "close" && r.Method == http.MethodPost:
		s.handleManualClose(w, r, id)
	case len(parts) == 2 && parts[1] == "cancel" && r.Method == http.MethodPost:
		s.handleCancelTrade(w, r, id)
	default:
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no such route"})
	}
}

func (s *Server) handleGetTrade(w http.ResponseWriter, r *http.Request, id int64) {
	trade, err := s.Store.GetTrade(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, trade)
}

// handleManualClose forces an immediate full close at the current
// market quote, bypassing the exit ladder (spec §6 manual override).
func (s *Server) handleManualClose(w http.ResponseWriter, r *http.Request, id int64) {
	ctx := r.Context()
	trade, err := s.Store.GetTrade(ctx, id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
		return
	}
	if trade.Status.IsTerminal() {
		writeJSON(w, http.StatusConflict, errorBody{Error: "trade already terminal"})
		return
	}

	quote, err := s.Broker.GetQuote(ctx, trade.OptionSymbol)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error()})
		return
	}
	if err := s.closeTrade(ctx, trade, quote.Mid(), time.Now(), domain.ExitManual); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, trade)
}

// handleCancelTrade cancels a still-pending entry order before it
// fills.
func (s *Server) handleCancelTrade(w http.ResponseWriter, r *http.Request, id int64) {
	ctx := r.Context()
	trade, err := s.Store.GetTrade(ctx, id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
		return
	}
	if trade.Status != domain.StatusPending {
		writeJSON(w, http.StatusConflict, errorBody{Error: "trade is not pending"})
		return
	}
	if err := s.Broker.CancelOrder(ctx, trade.EntryOrderID); err != nil {
		writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error()})
		return
	}
	if err := trade.TransitionState(domain.StatusCancelled, "cancelled via API"); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	if err := s.Store.SaveTrade(ctx, trade); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, trade)
}

// closeTrade mirrors scheduler.Agent.applyDecision's ActionCloseFull
// branch: place the closing order, record fill price/PnL, transition
// to CLOSED, and update the admission and metrics state.
func (s *Server) closeTrade(ctx context.Context, t *domain.Trade, mid float64, now time.Time, reason domain.ExitReason) error {
	if err := t.TransitionState(domain.StatusExiting, string(reason)); err != nil {
		return err
	}
	res, err := s.Broker.PlaceOrder(ctx, broker.OrderRequest{
		Symbol: t.OptionSymbol, Side: broker.SideSellToClose, Type: broker.OrderTypeMarket, Quantity: t.RemainingQuantity(),
	})
	if err != nil {
		return err
	}
	t.ExitOrderID = res.OrderID
	t.ExitPrice = mid
	t.ExitFilledAt = now
	t.ExitReason = reason
	t.PnLDollars = (mid - t.EntryPrice) * float64(t.RemainingQuantity()) * 100
	t.PnLPercent = (mid - t.EntryPrice) / t.EntryPrice
	if err := t.TransitionState(domain.StatusClosed, "exit order filled"); err != nil {
		return err
	}

	s.Daily.RecordClosed(underlyingOfSymbol(t.OptionSymbol), t.PnLDollars, now)
	metrics.TradesClosed.WithLabelValues(string(reason)).Inc()
	metrics.OpenPositions.Dec()
	if err := s.Store.SaveTrade(ctx, t); err != nil {
		return err
	}
	_ = s.Store.AppendEvent(ctx, &domain.TradeEvent{TradeID: t.ID, Timestamp: now, Kind: "exit", Message: string(reason)})
	s.hub.broadcast(wsEvent{Type: "trade_closed", Trade: t})
	return nil
}
