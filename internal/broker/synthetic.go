package broker

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/zerodte/optionagent/internal/domain"
	"github.com/zerodte/optionagent/internal/option"
	"github.com/zerodte/optionagent/internal/pricing"
)

// SyntheticBroker is an in-memory broker for tests and paper trading:
// orders fill immediately (or after a configured delay) against a
// parametric option chain built from the pricer, rather than a live
// venue connection.
type SyntheticBroker struct {
	mu sync.Mutex

	RiskFreeRate   float64
	ImpliedVol     float64
	FillDelay      time.Duration
	UnderlyingSpot map[string]float64
	rng            *rand.Rand

	orders map[string]*syntheticOrder
	nextID int64
}

type syntheticOrder struct {
	req       OrderRequest
	status    OrderStatus
	placedAt  time.Time
	filledAt  time.Time
	fillPrice float64
}

// NewSyntheticBroker builds a SyntheticBroker seeded for deterministic
// backtest replay.
func NewSyntheticBroker(seed int64, riskFreeRate, impliedVol float64) *SyntheticBroker {
	return &SyntheticBroker{
		RiskFreeRate:   riskFreeRate,
		ImpliedVol:     impliedVol,
		UnderlyingSpot: make(map[string]float64),
		rng:            rand.New(rand.NewSource(seed)),
		orders:         make(map[string]*syntheticOrder),
	}
}

// SetSpot seeds the underlying price the chain is priced off of for
// symbol's underlying ticker.
func (s *SyntheticBroker) SetSpot(underlying string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UnderlyingSpot[underlying] = price
}

func (s *SyntheticBroker) GetOptionChain(ctx context.Context, underlying string, expiration time.Time) (Chain, error) {
	s.mu.Lock()
	spot := s.UnderlyingSpot[underlying]
	s.mu.Unlock()
	if spot <= 0 {
		return Chain{}, fmt.Errorf("broker: no spot seeded for %s", underlying)
	}

	now := time.Now()
	candidates := option.SyntheticChain(spot, s.ImpliedVol, s.RiskFreeRate, expiration, now, 1, 20)
	contracts := make([]domain.OptionChainContract, len(candidates))
	for i, c := range candidates {
		delta := pricing.Delta(true, spot, c.Strike, expiration.Sub(now).Hours()/24/365, s.RiskFreeRate, s.ImpliedVol)
		contracts[i] = domain.OptionChainContract{
			Symbol: c.Symbol, Strike: c.Strike, ContractType: "call",
			Bid: c.Quote.Bid, Ask: c.Quote.Ask, Delta: delta,
		}
	}
	return Chain{Underlying: underlying, Expiration: expiration, Contracts: contracts}, nil
}

func (s *SyntheticBroker) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.findOrderBySymbol(symbol)
	if ok && o.fillPrice > 0 {
		jitter := 1 + (s.rng.Float64()-0.5)*0.02
		mid := o.fillPrice * jitter
		return domain.Quote{Bid: mid * 0.98, Ask: mid * 1.02, Last: mid}, nil
	}
	return domain.Quote{}, fmt.Errorf("broker: unknown synthetic symbol %s", symbol)
}

func (s *SyntheticBroker) findOrderBySymbol(symbol string) (*syntheticOrder, bool) {
	for _, o := range s.orders {
		if o.req.Symbol == symbol {
			return o, true
		}
	}
	return nil, false
}

func (s *SyntheticBroker) GetPriceHistory(ctx context.Context, underlying string, from, to time.Time, timeframe time.Duration) ([]domain.Bar, error) {
	s.mu.Lock()
	spot := s.UnderlyingSpot[underlying]
	s.mu.Unlock()
	if spot <= 0 {
		spot = 100
	}

	var bars []domain.Bar
	for t := from; t.Before(to); t = t.Add(timeframe) {
		move := s.rng.NormFloat64() * spot * 0.0005
		spot = math.Max(1, spot+move)
		bars = append(bars, domain.Bar{
			Timestamp: t, Open: spot, High: spot * 1.001, Low: spot * 0.999, Close: spot, Volume: 10000,
		})
	}
	return bars, nil
}

func (s *SyntheticBroker) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := fmt.Sprintf("SYN-%d", s.nextID)
	o := &syntheticOrder{req: req, status: OrderStatusOpen, placedAt: time.Now()}

	fillPrice := req.LimitPrice
	if req.Type == OrderTypeMarket || fillPrice <= 0 {
		fillPrice = req.LimitPrice
	}
	if s.FillDelay <= 0 {
		o.status = OrderStatusFilled
		o.filledAt = time.Now()
		o.fillPrice = fillPrice
	}

	s.orders[id] = o
	return OrderResult{OrderID: id, Status: o.status}, nil
}

func (s *SyntheticBroker) GetOrderStatus(ctx context.Context, orderID string) (OrderState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return OrderState{}, fmt.Errorf("broker: unknown order %s", orderID)
	}

	if o.status == OrderStatusOpen && time.Since(o.placedAt) >= s.FillDelay {
		o.status = OrderStatusFilled
		o.filledAt = time.Now()
		o.fillPrice = o.req.LimitPrice
	}

	return OrderState{
		OrderID: orderID, Status: o.status, FilledPrice: o.fillPrice,
		FilledQty: boolToQty(o.status == OrderStatusFilled, o.req.Quantity), FilledAt: o.filledAt,
	}, nil
}

func (s *SyntheticBroker) CancelOrder(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("broker: unknown order %s", orderID)
	}
	if o.status == OrderStatusFilled {
		return fmt.Errorf("broker: order %s already filled", orderID)
	}
	o.status = OrderStatusCancelled
	return nil
}

func boolToQty(filled bool, qty int) int {
	if filled {
		return qty
	}
	return 0
}
