package broker

import (
	"context"
	"testing"
	"time"
)

func TestSyntheticBrokerPlaceAndFillImmediately(t *testing.T) {
	b := NewSyntheticBroker(1, 0.03, 0.20)
	b.SetSpot("SPY", 500)

	res, err := b.PlaceOrder(context.Background(), OrderRequest{Symbol: "SPY250101C00500000", Side: SideBuyToOpen, Type: OrderTypeLimit, Quantity: 1, LimitPrice: 2.50})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if res.Status != OrderStatusFilled {
		t.Fatalf("expected immediate fill, got status %s", res.Status)
	}

	state, err := b.GetOrderStatus(context.Background(), res.OrderID)
	if err != nil {
		t.Fatalf("GetOrderStatus: %v", err)
	}
	if state.FilledQty != 1 || state.FilledPrice != 2.50 {
		t.Fatalf("unexpected fill state: %+v", state)
	}
}

func TestSyntheticBrokerFillDelay(t *testing.T) {
	b := NewSyntheticBroker(1, 0.03, 0.20)
	b.FillDelay = 50 * time.Millisecond
	b.SetSpot("SPY", 500)

	res, err := b.PlaceOrder(context.Background(), OrderRequest{Symbol: "SPY250101C00500000", Type: OrderTypeLimit, Quantity: 2, LimitPrice: 1.00})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if res.Status != OrderStatusOpen {
		t.Fatalf("expected order to remain open before fill delay elapses, got %s", res.Status)
	}

	time.Sleep(60 * time.Millisecond)
	state, err := b.GetOrderStatus(context.Background(), res.OrderID)
	if err != nil {
		t.Fatalf("GetOrderStatus: %v", err)
	}
	if state.Status != OrderStatusFilled {
		t.Fatalf("expected fill after delay, got %s", state.Status)
	}
}

func TestSyntheticBrokerCancelAlreadyFilledFails(t *testing.T) {
	b := NewSyntheticBroker(1, 0.03, 0.20)
	b.SetSpot("SPY", 500)
	res, _ := b.PlaceOrder(context.Background(), OrderRequest{Symbol: "X", Type: OrderTypeLimit, Quantity: 1, LimitPrice: 1})
	if err := b.CancelOrder(context.Background(), res.OrderID); err == nil {
		t.Fatalf("expected error cancelling already-filled order")
	}
}

func TestSyntheticBrokerGetOptionChain(t *testing.T) {
	b := NewSyntheticBroker(1, 0.03, 0.20)
	b.SetSpot("SPY", 500)
	chain, err := b.GetOptionChain(context.Background(), "SPY", time.Now().Add(5*24*time.Hour))
	if err != nil {
		t.Fatalf("GetOptionChain: %v", err)
	}
	if len(chain.Contracts) == 0 {
		t.Fatalf("expected non-empty synthetic chain")
	}
}
