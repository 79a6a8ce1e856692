// Package broker defines the trading-venue abstraction and its two
// implementations: a Massive-backed REST adapter and an in-memory
// synthetic broker for tests and paper trading (spec §6).
package broker

import (
	"context"
	"time"

	"github.com/zerodte/optionagent/internal/domain"
)

// OrderSide is buy or sell, always "to open"/"to close" a single-leg
// option position for this agent's purposes.
type OrderSide string

const (
	SideBuyToOpen   OrderSide = "BUY_TO_OPEN"
	SideSellToClose OrderSide = "SELL_TO_CLOSE"
)

// OrderType is the resting-order style the broker should place.
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

// OrderStatus mirrors the broker's own lifecycle vocabulary.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "OPEN"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
)

// OrderRequest places one option order.
type OrderRequest struct {
	Symbol   string
	Side     OrderSide
	Type     OrderType
	Quantity int
	LimitPrice float64
}

// OrderResult is what the broker returns immediately on submission.
type OrderResult struct {
	OrderID string
	Status  OrderStatus
}

// OrderState is the broker's current view of a previously placed order.
type OrderState struct {
	OrderID     string
	Status      OrderStatus
	FilledPrice float64
	FilledQty   int
	FilledAt    time.Time
}

// Chain is a snapshot of an option chain for one underlying/expiration.
type Chain struct {
	Underlying string
	Expiration time.Time
	Contracts  []domain.OptionChainContract
}

// Broker is the capability surface the trading agent needs from a
// venue: chain/quote/history reads and order writes (spec §6).
type Broker interface {
	GetOptionChain(ctx context.Context, underlying string, expiration time.Time) (Chain, error)
	GetQuote(ctx context.Context, symbol string) (domain.Quote, error)
	GetPriceHistory(ctx context.Context, underlying string, from, to time.Time, timeframe time.Duration) ([]domain.Bar, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	GetOrderStatus(ctx context.Context, orderID string) (OrderState, error)
	CancelOrder(ctx context.Context, orderID string) error
}
