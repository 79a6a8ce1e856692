package store

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zerodte/optionagent/internal/domain"
)

func TestSaveAndGetTradeAssignsID(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	tr := &domain.Trade{Direction: domain.DirectionCall, Status: domain.StatusInit}
	if err := m.SaveTrade(ctx, tr); err != nil {
		t.Fatalf("SaveTrade: %v", err)
	}
	if tr.ID == 0 {
		t.Fatalf("expected assigned trade ID")
	}

	got, err := m.GetTrade(ctx, tr.ID)
	if err != nil {
		t.Fatalf("GetTrade: %v", err)
	}
	if got.Direction != domain.DirectionCall {
		t.Fatalf("direction mismatch")
	}
}

func TestListOpenTradesExcludesTerminal(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	open := &domain.Trade{Status: domain.StatusFilled}
	closed := &domain.Trade{Status: domain.StatusClosed}
	m.SaveTrade(ctx, open)
	m.SaveTrade(ctx, closed)

	trades, err := m.ListOpenTrades(ctx)
	if err != nil {
		t.Fatalf("ListOpenTrades: %v", err)
	}
	if len(trades) != 1 || trades[0].ID != open.ID {
		t.Fatalf("expected only the open trade, got %+v", trades)
	}
}

func TestAppendEventAssignsSequentialIDs(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	tr := &domain.Trade{}
	m.SaveTrade(ctx, tr)

	e1 := &domain.TradeEvent{TradeID: tr.ID, Kind: "entry"}
	e2 := &domain.TradeEvent{TradeID: tr.ID, Kind: "exit"}
	m.AppendEvent(ctx, e1)
	m.AppendEvent(ctx, e2)

	events, err := m.ListEvents(ctx, tr.ID)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 2 || events[0].ID == events[1].ID {
		t.Fatalf("expected two distinctly-ID'd events, got %+v", events)
	}
}

func TestDailySummaryRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	date := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	s := &domain.DailySummary{Date: date, TradesOpened: 3, Wins: 2, Losses: 1}

	if err := m.SaveDailySummary(ctx, s); err != nil {
		t.Fatalf("SaveDailySummary: %v", err)
	}
	got, err := m.GetDailySummary(ctx, date)
	if err != nil {
		t.Fatalf("GetDailySummary: %v", err)
	}
	if got.TradesOpened != 3 {
		t.Fatalf("round-tripped summary mismatch: %+v", got)
	}
}

func TestNewMemoryWithWALAppendsOneLinePerMutation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.jsonl")
	m, err := NewMemoryWithWAL(path)
	if err != nil {
		t.Fatalf("NewMemoryWithWAL: %v", err)
	}
	ctx := context.Background()

	tr := &domain.Trade{Direction: domain.DirectionCall, Status: domain.StatusInit}
	if err := m.SaveTrade(ctx, tr); err != nil {
		t.Fatalf("SaveTrade: %v", err)
	}
	if err := m.AppendEvent(ctx, &domain.TradeEvent{TradeID: tr.ID, Kind: "entry"}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening WAL: %v", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 WAL lines, got %d: %v", len(lines), lines)
	}
	if !strings.Contains(lines[0], `"kind":"trade"`) {
		t.Fatalf("expected first WAL line to be a trade record, got %s", lines[0])
	}
	if !strings.Contains(lines[1], `"kind":"event"`) {
		t.Fatalf("expected second WAL line to be an event record, got %s", lines[1])
	}
}

func TestNewMemoryWithWALRejectsUnwritablePath(t *testing.T) {
	if _, err := NewMemoryWithWAL(filepath.Join(t.TempDir(), "nope", "wal.jsonl")); err == nil {
		t.Fatalf("expected error opening WAL under a missing directory")
	}
}
