// Package httpapi exposes the agent's webhook, trade CRUD,
// backtest-trigger, metrics, and dashboard surface over HTTP (spec §6),
// grounded on the teacher's cmd/option-replay/main.go REST mode: a
// plain net/http.ServeMux with one handler per route, no framework.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zerodte/optionagent/internal/admission"
	"github.com/zerodte/optionagent/internal/broker"
	"github.com/zerodte/optionagent/internal/config"
	"github.com/zerodte/optionagent/internal/entry"
	"github.com/zerodte/optionagent/internal/logger"
	"github.com/zerodte/optionagent/internal/metrics"
	"github.com/zerodte/optionagent/internal/store"
)

// Server wires the dependencies every handler needs. It holds no
// business logic itself beyond request/response translation; the
// admission, entry, exit, and backtest packages own the semantics.
type Server struct {
	Config *config.Config
	Broker broker.Broker
	Store  store.Store
	Entry  *entry.Manager
	Daily  *admission.DailyState

	// ImpliedVol feeds option.Select's delta calculation for webhook-
	// originated alerts, mirroring scheduler.Agent.ImpliedVol since a
	// webhook payload carries a price but no vol surface of its own.
	ImpliedVol float64

	hub *hub
	mux *http.ServeMux
}

// NewServer builds a Server with every route registered.
func NewServer(cfg *config.Config, br broker.Broker, st store.Store) *Server {
	s := &Server{
		Config: cfg,
		Broker: br,
		Store:  st,
		Entry:  entry.NewManager(cfg, br),
		Daily:  admission.NewDailyState(),
		hub:    newHub(),
	}
	s.mux = http.NewServeMux()
	s.routes()
	go s.hub.run()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/metrics", s.handleMetrics)
	s.mux.Handle("/webhook", s.authenticated(http.HandlerFunc(s.handleWebhook)))
	s.mux.Handle("/trades", s.authenticated(http.HandlerFunc(s.handleListTrades)))
	s.mux.Handle("/trades/", s.authenticated(http.HandlerFunc(s.handleTradeSubroute)))
	s.mux.Handle("/backtest/run", s.authenticated(http.HandlerFunc(s.handleBacktestRun)))
	s.mux.Handle("/backtest/optimize", s.authenticated(http.HandlerFunc(s.handleBacktestOptimize)))
	s.mux.Handle("/backtest/spread", s.authenticated(http.HandlerFunc(s.handleBacktestSpread)))
	s.mux.HandleFunc("/ws", s.handleWebSocket)
}

// Handler exposes the configured mux for tests and for callers that
// want to embed the agent's routes behind their own listener.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe starts the HTTP server on cfg.HTTP.Port and blocks
// until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := ":" + itoa(s.Config.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("httpapi: listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.hub.close()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// upgrader is package-level because gorilla/websocket recommends
// sharing one Upgrader across requests rather than allocating per call.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}
