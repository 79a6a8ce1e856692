// Package entry turns an admitted signal into a placed order: it picks
// the entry limit price, submits the order, and arms the protective
// stop once filled (spec §4.1 / C5).
package entry

import (
	"context"
	"fmt"
	"time"

	"github.com/zerodte/optionagent/internal/broker"
	"github.com/zerodte/optionagent/internal/config"
	"github.com/zerodte/optionagent/internal/domain"
	"github.com/zerodte/optionagent/internal/logger"
	"github.com/zerodte/optionagent/internal/option"
	"github.com/zerodte/optionagent/internal/regime"
)

// Manager places entries and arms stops for newly admitted trades.
type Manager struct {
	cfg *config.Config
	br  broker.Broker
}

// NewManager builds an entry Manager.
func NewManager(cfg *config.Config, br broker.Broker) *Manager {
	return &Manager{cfg: cfg, br: br}
}

// Open places a limit-buy for the selected contract, slightly below
// the quoted mid, and returns the initialized Trade in PENDING status.
// The caller is responsible for persisting it and polling for a fill.
func (m *Manager) Open(ctx context.Context, alert *domain.Alert, candidate *option.Candidate, now time.Time) (*domain.Trade, error) {
	mid := candidate.Quote.Mid()
	if mid <= 0 {
		return nil, fmt.Errorf("entry: candidate %s has no usable quote", candidate.Symbol)
	}

	limitPrice := roundToCent(mid * (1 - m.cfg.Entry.EntryLimitBelowPercent))
	qty := regime.ResolveQuantity(m.cfg.Regime, m.cfg.Entry.DefaultQuantity, alert.ConfluenceScore, alert.RelativeVolume)

	res, err := m.br.PlaceOrder(ctx, broker.OrderRequest{
		Symbol: candidate.Symbol, Side: broker.SideBuyToOpen, Type: broker.OrderTypeLimit,
		Quantity: qty, LimitPrice: limitPrice,
	})
	if err != nil {
		return nil, fmt.Errorf("entry: placing order for %s: %w", candidate.Symbol, err)
	}

	trade := &domain.Trade{
		CorrelationID:    alert.CorrelationID,
		TradeDate:        now,
		Direction:        alert.Direction,
		OptionSymbol:     candidate.Symbol,
		Strike:           candidate.Strike,
		Expiration:       candidate.Expiration,
		Source:           alert.Source,
		EntryOrderID:      res.OrderID,
		EntryQuantity:     qty,
		AlertOptionPrice:  mid,
		Status:            domain.StatusInit,
		CreatedAt:         now,
	}
	if err := trade.TransitionState(domain.StatusPending, "entry limit submitted"); err != nil {
		return nil, err
	}

	logger.Infof("entry: submitted %s qty=%d limit=%.2f order=%s", candidate.Symbol, trade.EntryQuantity, limitPrice, res.OrderID)
	return trade, nil
}

// PollFill checks the broker for a fill on trade's entry order. If the
// entry limit has gone unfilled past the configured timeout and
// fallback is allowed, the caller should cancel and resubmit at market
// (EntryIsFallback marks that path); PollFill itself only reports state.
func (m *Manager) PollFill(ctx context.Context, trade *domain.Trade, now time.Time) (filled bool, err error) {
	state, err := m.br.GetOrderStatus(ctx, trade.EntryOrderID)
	if err != nil {
		return false, fmt.Errorf("entry: polling order %s: %w", trade.EntryOrderID, err)
	}

	switch state.Status {
	case broker.OrderStatusFilled:
		trade.EntryPrice = state.FilledPrice
		trade.EntryFilledAt = state.FilledAt
		if trade.EntryFilledAt.IsZero() {
			trade.EntryFilledAt = now
		}
		if err := trade.TransitionState(domain.StatusFilled, "broker reports entry filled"); err != nil {
			return false, err
		}
		return true, nil
	case broker.OrderStatusCancelled, broker.OrderStatusRejected:
		if err := trade.TransitionState(domain.StatusCancelled, "broker reports entry "+string(state.Status)); err != nil {
			return false, err
		}
		return false, nil
	default:
		return false, nil
	}
}

// TimedOut reports whether the entry order has been open past the
// configured timeout window.
func (m *Manager) TimedOut(trade *domain.Trade, now time.Time) bool {
	timeout := time.Duration(m.cfg.Entry.EntryLimitTimeoutMinutes) * time.Minute
	return now.Sub(trade.CreatedAt) >= timeout
}

// ArmStop records the initial protective stop once a trade is filled.
// It places no broker stop order: it sets the trade's StopLossPrice and
// marks the stop app-managed, so the exit ladder's app-managed branch
// enforces it.
func (m *Manager) ArmStop(trade *domain.Trade) {
	stopLossPercent := m.cfg.Exit.StopLossPercent
	if trade.ExitOverride != nil {
		stopLossPercent = trade.ExitOverride.StopLossPercent
	}
	stopPrice := roundToCent(trade.EntryPrice * (1 - stopLossPercent))
	trade.StopLossPrice = stopPrice
	trade.StopLossAppManaged = true
	trade.HighestPriceSeen = trade.EntryPrice
}

func roundToCent(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
