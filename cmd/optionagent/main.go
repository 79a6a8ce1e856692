package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/zerodte/optionagent/internal/broker"
	"github.com/zerodte/optionagent/internal/config"
	"github.com/zerodte/optionagent/internal/httpapi"
	"github.com/zerodte/optionagent/internal/logger"
	"github.com/zerodte/optionagent/internal/scheduler"
	"github.com/zerodte/optionagent/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config")
	underlying := flag.String("underlying", "SPY", "underlying ticker the strategy loop trades")
	impliedVol := flag.Float64("implied-vol", 0.25, "implied volatility fed to option selection and the synthetic broker")
	verbosity := flag.Int("v", 1, "log verbosity (0=error, 1=info, 2=debug, 3=trace)")
	flag.Parse()

	logger.SetVerbosity(*verbosity)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	br, err := newBroker(cfg, *impliedVol)
	if err != nil {
		log.Fatalf("constructing broker: %v", err)
	}

	st, err := newStore(cfg)
	if err != nil {
		log.Fatalf("constructing store: %v", err)
	}
	if closer, ok := st.(*store.Memory); ok {
		defer closer.Close()
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	agent := scheduler.NewAgent(cfg, br, st)
	agent.Underlying = *underlying
	agent.ImpliedVol = *impliedVol

	var server *httpapi.Server
	if cfg.HTTP.Enabled {
		server = httpapi.NewServer(cfg, br, st)
		server.ImpliedVol = *impliedVol
	}

	running := 1
	errCh := make(chan error, 2)
	go func() {
		errCh <- agent.Run(ctx)
	}()
	if server != nil {
		running++
		go func() {
			errCh <- server.ListenAndServe(ctx)
		}()
	}

	// The first loop to stop (signal-driven or errored) cancels ctx so
	// the other unwinds too; then drain both before exiting.
	for i := 0; i < running; i++ {
		if err := <-errCh; err != nil {
			logger.Errorf("optionagent: %v", err)
		}
		cancel()
	}
}

func newBroker(cfg *config.Config, impliedVol float64) (broker.Broker, error) {
	switch cfg.Broker.Provider {
	case "massive":
		return broker.NewMassiveBroker(cfg.Broker.APIKey), nil
	default:
		return broker.NewSyntheticBroker(cfg.Backtest.Seed, cfg.Option.RiskFreeRate, impliedVol), nil
	}
}

func newStore(cfg *config.Config) (store.Store, error) {
	if cfg.Storage.Path == "" {
		return store.NewMemory(), nil
	}
	return store.NewMemoryWithWAL(cfg.Storage.Path)
}
