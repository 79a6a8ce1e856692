package report

import (
	"os"
	"testing"
	"time"

	"github.com/zerodte/optionagent/internal/backtest"
	"github.com/zerodte/optionagent/internal/domain"
	tests "github.com/zerodte/optionagent/internal/testutil"
)

func TestWriteSimulationJSONAndCSV(t *testing.T) {
	dir, err := os.MkdirTemp("", "report-test")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)

	res := &backtest.SimulationResult{
		Trades: []*domain.Trade{{
			ID: 1, Direction: domain.DirectionCall, OptionSymbol: "SPY260320C00500000", Strike: 500,
			EntryPrice: 2.0, EntryFilledAt: time.Now(), ExitPrice: 2.5, ExitFilledAt: time.Now(),
			PnLDollars: 50, PnLPercent: 0.25, ExitReason: domain.ExitProfitTarget, Status: domain.StatusClosed,
		}},
		TotalPnL: 50, Wins: 1,
	}

	if err := WriteSimulationJSON(res, dir); err != nil {
		t.Fatalf("WriteSimulationJSON: %v", err)
	}
	if err := WriteSimulationCSV(res, dir); err != nil {
		t.Fatalf("WriteSimulationCSV: %v", err)
	}
	for _, name := range []string{"simulation.json", "simulation.csv"} {
		if _, err := os.Stat(dir + "/" + name); err != nil {
			t.Fatalf("expected %s to exist: %v", name, err)
		}
	}
}

func TestSpreadResultJSONMatchesGolden(t *testing.T) {
	closeTime := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	res := &backtest.Result{
		Trades: []backtest.Trade{{
			ID:                1,
			OpenTime:          time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
			CloseTime:         &closeTime,
			UnderlyingAtOpen:  580,
			UnderlyingAtClose: 585,
			Legs: []backtest.TradeLeg{{
				Spec:         backtest.LegSpec{Side: "buy", OptionType: "call", StrikeRule: "ATM", Qty: 1},
				Strike:       580,
				OptType:      "call",
				Qty:          1,
				Expiration:   time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC),
				OpenPremium:  500,
				ClosePremium: 750,
			}},
			OpenPremium:  500,
			ClosePremium: 750,
			HighPremium:  800,
			LowPremium:   450,
			ClosedBy:     "profit_target_50.00%",
		}},
	}

	tests.CompareWithGolden(t, "trade", res)
}
