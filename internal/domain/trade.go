// Package domain holds the core entities of the trade lifecycle: alerts,
// trades, their audit trail, and the daily rollups derived from them.
//
// Design notes:
//   - Entities relate to each other only by opaque int64 id; nothing here
//     holds a pointer back to another entity, so joins happen at query
//     time in the store, never in memory.
//   - Trade carries its own state machine so that every mutation is
//     checked against the legal transition table instead of being a bare
//     field assignment.
package domain

import (
	"fmt"
	"time"

	"github.com/zerodte/optionagent/internal/config"
)

// TradeStatus is the state of a Trade's order lifecycle (spec §4.1).
type TradeStatus string

const (
	StatusInit            TradeStatus = "INIT"
	StatusPending         TradeStatus = "PENDING"
	StatusFilled          TradeStatus = "FILLED"
	StatusStopLossPlaced  TradeStatus = "STOP_LOSS_PLACED"
	StatusExiting         TradeStatus = "EXITING"
	StatusClosed          TradeStatus = "CLOSED"
	StatusCancelled       TradeStatus = "CANCELLED"
	StatusError           TradeStatus = "ERROR"
)

// validTransitions enumerates the legal next-states for each status.
// FILLED and STOP_LOSS_PLACED point at each other because the stop is
// cancelled and re-placed whenever breakeven promotion or a scale-out
// changes the protected quantity (spec §4.1).
var validTransitions = map[TradeStatus]map[TradeStatus]bool{
	StatusInit: {
		StatusPending: true,
	},
	StatusPending: {
		StatusFilled:    true,
		StatusCancelled: true,
		StatusError:     true,
	},
	StatusFilled: {
		StatusStopLossPlaced: true,
		StatusExiting:        true,
		StatusClosed:         true, // directly-observed stop-loss fill
		StatusError:          true,
	},
	StatusStopLossPlaced: {
		StatusFilled:  true, // stop cancelled for re-placement
		StatusExiting: true,
		StatusClosed:  true,
		StatusError:   true,
	},
	StatusExiting: {
		StatusClosed: true,
		StatusError:  true,
	},
	StatusClosed:    {},
	StatusCancelled: {},
	StatusError:     {},
}

// IsTerminal reports whether no further transitions are legal.
func (s TradeStatus) IsTerminal() bool {
	return s == StatusClosed || s == StatusCancelled || s == StatusError
}

// Direction is the option side implied by a signal or alert.
type Direction string

const (
	DirectionCall Direction = "CALL"
	DirectionPut  Direction = "PUT"
	DirectionNone Direction = ""
)

// Opposite returns the other directional side; DirectionNone maps to itself.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionCall:
		return DirectionPut
	case DirectionPut:
		return DirectionCall
	default:
		return DirectionNone
	}
}

// ExitReason tags why a trade's position was closed or partially closed.
type ExitReason string

const (
	ExitTimeBased     ExitReason = "TIME_BASED"
	ExitMaxHoldTime   ExitReason = "MAX_HOLD_TIME"
	ExitStopLoss      ExitReason = "STOP_LOSS"
	ExitScaleOut      ExitReason = "SCALE_OUT"
	ExitProfitTarget  ExitReason = "PROFIT_TARGET"
	ExitTrailingStop  ExitReason = "TRAILING_STOP"
	ExitSignalReverse ExitReason = "SIGNAL"
	ExitManual        ExitReason = "MANUAL"
	ExitDataEnded     ExitReason = "DATA_ENDED"
)

// Trade is one position lifecycle (spec §3).
type Trade struct {
	ID             int64
	CorrelationID  string
	TradeDate      time.Time
	Direction      Direction
	OptionSymbol   string
	Strike         float64
	Expiration     time.Time
	Source         string

	EntryOrderID     string
	EntryPrice       float64
	EntryQuantity    int
	EntryFilledAt    time.Time
	AlertOptionPrice float64
	EntryIsFallback  bool

	StopLossOrderID   string
	StopLossPrice     float64
	StopLossAppManaged bool
	TrailingStopPrice float64
	HighestPriceSeen  float64
	BreakevenApplied  bool

	ScaledOut        bool
	ScaledOutQty      int
	ScaledOutPrice    float64
	ScaleOutCount     int

	ExitOrderID   string
	ExitPrice     float64
	ExitFilledAt  time.Time
	ExitReason    ExitReason
	PnLDollars    float64
	PnLPercent    float64

	Status    TradeStatus
	CreatedAt time.Time
	UpdatedAt time.Time

	// ExitOverride, when set, is a per-trade exit parameter set the
	// regime/VIX/confidence adapter derived at entry time; the exit
	// loop consults it instead of the agent's static ExitConfig.
	ExitOverride *config.ExitConfig
}

// RemainingQuantity is the number of contracts still held (invariant:
// entry_quantity - scaled_out_quantity, never less than 1 while open).
func (t *Trade) RemainingQuantity() int {
	return t.EntryQuantity - t.ScaledOutQty
}

// TransitionState validates and applies a status change, recording the
// triggering reason for the caller to attach to a TradeEvent. It is the
// single mutation point every loop must funnel through so that the
// per-trade ordering guarantee of spec §5 holds even when two loops
// observe the same trade in the same tick.
func (t *Trade) TransitionState(next TradeStatus, reason string) error {
	allowed, ok := validTransitions[t.Status]
	if !ok {
		return fmt.Errorf("domain: unknown trade status %q", t.Status)
	}
	if !allowed[next] {
		return fmt.Errorf("domain: illegal trade transition %s -> %s (reason=%s)", t.Status, next, reason)
	}
	t.Status = next
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// RaiseStopLoss moves the stop-loss price up, never down, per the
// invariant that a stop once set is never lowered after fill.
func (t *Trade) RaiseStopLoss(price float64) {
	if price > t.StopLossPrice {
		t.StopLossPrice = price
	}
}

// ObserveMid folds a new option mid observation into the high-water mark.
func (t *Trade) ObserveMid(mid float64) {
	if mid > t.HighestPriceSeen {
		t.HighestPriceSeen = mid
	}
}
