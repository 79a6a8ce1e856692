// Package store persists alerts, trades, and their audit trail. The
// only implementation right now is in-memory, backed by an optional
// append-only JSON-lines WAL file so a crashed process doesn't silently
// lose the day's trade history; a real database can satisfy the same
// interface later without touching callers.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/zerodte/optionagent/internal/domain"
	"github.com/zerodte/optionagent/internal/logger"
)

// Store is the persistence surface the agent depends on (spec §6).
type Store interface {
	SaveAlert(ctx context.Context, a *domain.Alert) error
	GetAlert(ctx context.Context, id int64) (*domain.Alert, error)

	SaveTrade(ctx context.Context, t *domain.Trade) error
	GetTrade(ctx context.Context, id int64) (*domain.Trade, error)
	ListOpenTrades(ctx context.Context) ([]*domain.Trade, error)
	ListTradesByDate(ctx context.Context, date time.Time) ([]*domain.Trade, error)

	AppendEvent(ctx context.Context, e *domain.TradeEvent) error
	ListEvents(ctx context.Context, tradeID int64) ([]*domain.TradeEvent, error)

	AppendPriceSnapshot(ctx context.Context, p *domain.PriceSnapshot) error

	SaveDailySummary(ctx context.Context, s *domain.DailySummary) error
	GetDailySummary(ctx context.Context, date time.Time) (*domain.DailySummary, error)
}

// walRecord is one line of the WAL file: a mutation kind plus its
// payload, written in the same order the in-memory maps were mutated.
type walRecord struct {
	Kind      string      `json:"kind"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// Memory is an in-process Store backed by plain maps guarded by one
// mutex; good enough for paper trading and tests, not for multi-process
// deployment. If WAL is non-nil every mutation except AppendPriceSnapshot
// is additionally appended to it as a JSON line after the in-memory map
// is updated.
type Memory struct {
	mu sync.RWMutex

	alerts    map[int64]*domain.Alert
	trades    map[int64]*domain.Trade
	events    map[int64][]*domain.TradeEvent
	snapshots map[int64][]*domain.PriceSnapshot
	summaries map[string]*domain.DailySummary

	nextAlertID int64
	nextTradeID int64
	nextEventID int64

	wal *os.File
}

// NewMemory builds an empty in-memory store with no WAL file.
func NewMemory() *Memory {
	return &Memory{
		alerts:    make(map[int64]*domain.Alert),
		trades:    make(map[int64]*domain.Trade),
		events:    make(map[int64][]*domain.TradeEvent),
		snapshots: make(map[int64][]*domain.PriceSnapshot),
		summaries: make(map[string]*domain.DailySummary),
	}
}

// NewMemoryWithWAL builds an in-memory store that additionally appends
// every mutation to walPath as a JSON-lines log, opened in append mode
// so a restart never truncates prior history.
func NewMemoryWithWAL(walPath string) (*Memory, error) {
	m := NewMemory()
	f, err := os.OpenFile(walPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("store: opening WAL %s: %w", walPath, err)
	}
	m.wal = f
	return m, nil
}

// Close flushes and closes the WAL file, if one is open.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.wal == nil {
		return nil
	}
	return m.wal.Close()
}

// appendWAL writes one record to the WAL file. Errors are logged, not
// returned, since the WAL is a durability aid, not the source of truth
// for a running process — the in-memory map always wins.
func (m *Memory) appendWAL(kind string, payload interface{}) {
	if m.wal == nil {
		return
	}
	rec := walRecord{Kind: kind, Timestamp: time.Now().UTC(), Payload: payload}
	b, err := json.Marshal(rec)
	if err != nil {
		logger.Errorf("store: marshaling WAL record %s: %v", kind, err)
		return
	}
	b = append(b, '\n')
	if _, err := m.wal.Write(b); err != nil {
		logger.Errorf("store: writing WAL record %s: %v", kind, err)
	}
}

func (m *Memory) SaveAlert(ctx context.Context, a *domain.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == 0 {
		m.nextAlertID++
		a.ID = m.nextAlertID
	}
	cp := *a
	m.alerts[a.ID] = &cp
	m.appendWAL("alert", &cp)
	return nil
}

func (m *Memory) GetAlert(ctx context.Context, id int64) (*domain.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.alerts[id]
	if !ok {
		return nil, fmt.Errorf("store: alert %d not found", id)
	}
	cp := *a
	return &cp, nil
}

func (m *Memory) SaveTrade(ctx context.Context, t *domain.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == 0 {
		m.nextTradeID++
		t.ID = m.nextTradeID
	}
	cp := *t
	m.trades[t.ID] = &cp
	m.appendWAL("trade", &cp)
	return nil
}

func (m *Memory) GetTrade(ctx context.Context, id int64) (*domain.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trades[id]
	if !ok {
		return nil, fmt.Errorf("store: trade %d not found", id)
	}
	cp := *t
	return &cp, nil
}

func (m *Memory) ListOpenTrades(ctx context.Context) ([]*domain.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Trade
	for _, t := range m.trades {
		if !t.Status.IsTerminal() {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ListTradesByDate(ctx context.Context, date time.Time) ([]*domain.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Trade
	for _, t := range m.trades {
		if sameDate(t.TradeDate, date) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) AppendEvent(ctx context.Context, e *domain.TradeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextEventID++
	e.ID = m.nextEventID
	cp := *e
	m.events[e.TradeID] = append(m.events[e.TradeID], &cp)
	m.appendWAL("event", &cp)
	return nil
}

func (m *Memory) ListEvents(ctx context.Context, tradeID int64) ([]*domain.TradeEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.events[tradeID]
	out := make([]*domain.TradeEvent, len(src))
	for i, e := range src {
		cp := *e
		out[i] = &cp
	}
	return out, nil
}

func (m *Memory) AppendPriceSnapshot(ctx context.Context, p *domain.PriceSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.snapshots[p.TradeID] = append(m.snapshots[p.TradeID], &cp)
	// Price snapshots are high-frequency and reconstructable from the
	// broker's quote history, so they are not durable in the WAL.
	return nil
}

func (m *Memory) SaveDailySummary(ctx context.Context, s *domain.DailySummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.summaries[dateKey(s.Date)] = &cp
	m.appendWAL("daily_summary", &cp)
	return nil
}

func (m *Memory) GetDailySummary(ctx context.Context, date time.Time) (*domain.DailySummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.summaries[dateKey(date)]
	if !ok {
		return nil, fmt.Errorf("store: no summary for %s", dateKey(date))
	}
	cp := *s
	return &cp, nil
}

func sameDate(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
