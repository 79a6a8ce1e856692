// Package report writes backtest output to disk, for both the legacy
// multi-leg spread engine's Result/Trade and the signal-driven
// SimulationResult produced by backtest.Run.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zerodte/optionagent/internal/backtest"
)

// WriteSpreadJSON writes the multi-leg engine's result as indented JSON.
func WriteSpreadJSON(res *backtest.Result, outdir string) error {
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outdir, "trades.json"), b, 0644)
}

// WriteSpreadCSV writes the multi-leg engine's trades as CSV.
func WriteSpreadCSV(trades []backtest.Trade, outdir string) error {
	f, err := os.Create(filepath.Join(outdir, "trades.csv"))
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()
	headers := []string{"id", "open_time", "open_underlying", "open_premium", "close_time", "close_underlying", "close_premium", "pnl", "strategy_high", "strategy_low", "closed_by", "legs_json"}
	if err := w.Write(headers); err != nil {
		return err
	}
	for _, t := range trades {
		closeTime := ""
		if t.CloseTime != nil {
			closeTime = t.CloseTime.Format("2006-01-02")
		}
		pnl := t.ClosePremium - t.OpenPremium
		legsJSON, _ := json.Marshal(t.Legs)
		row := []string{fmt.Sprintf("%d", t.ID), t.OpenTime.Format("2006-01-02"), fmt.Sprintf("%.2f", t.UnderlyingAtOpen), fmt.Sprintf("%.2f", t.OpenPremium), closeTime, fmt.Sprintf("%.2f", t.UnderlyingAtClose), fmt.Sprintf("%.2f", t.ClosePremium), fmt.Sprintf("%.2f", pnl), fmt.Sprintf("%.2f", t.HighPremium), fmt.Sprintf("%.2f", t.LowPremium), t.ClosedBy, string(legsJSON)}
		_ = w.Write(row)
	}
	return nil
}

// WriteSimulationJSON writes a signal-driven simulation result as indented JSON.
func WriteSimulationJSON(res *backtest.SimulationResult, outdir string) error {
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outdir, "simulation.json"), b, 0644)
}

// WriteSimulationCSV writes a signal-driven simulation's trades as CSV,
// one row per domain.Trade.
func WriteSimulationCSV(res *backtest.SimulationResult, outdir string) error {
	f, err := os.Create(filepath.Join(outdir, "simulation.csv"))
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()
	headers := []string{"id", "direction", "symbol", "strike", "entry_price", "entry_filled_at", "exit_price", "exit_filled_at", "pnl_dollars", "pnl_percent", "exit_reason", "status"}
	if err := w.Write(headers); err != nil {
		return err
	}
	for _, t := range res.Trades {
		row := []string{
			fmt.Sprintf("%d", t.ID), string(t.Direction), t.OptionSymbol, fmt.Sprintf("%.2f", t.Strike),
			fmt.Sprintf("%.2f", t.EntryPrice), t.EntryFilledAt.Format("2006-01-02 15:04"),
			fmt.Sprintf("%.2f", t.ExitPrice), t.ExitFilledAt.Format("2006-01-02 15:04"),
			fmt.Sprintf("%.2f", t.PnLDollars), fmt.Sprintf("%.4f", t.PnLPercent), string(t.ExitReason), string(t.Status),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}
