package domain

import "time"

// TradeEvent is an append-only audit entry for a trade.
type TradeEvent struct {
	ID        int64
	TradeID   int64
	Timestamp time.Time
	Kind      string
	Message   string
	Detail    map[string]any
}

// PriceSnapshot is an append-only observation of a trade's option mid.
type PriceSnapshot struct {
	TradeID          int64
	Timestamp        time.Time
	Mid              float64
	HighWaterMark    float64
}

// DailySummary is the end-of-session rollup for one trading date.
type DailySummary struct {
	Date             time.Time
	TradesOpened     int
	TradesClosed     int
	Wins             int
	Losses           int
	TotalPnLDollars  float64
	AvgHoldMinutes   float64
	ExitReasonCounts map[ExitReason]int
}

// OptionChainSnapshot is an optional archived view of the day's chain.
type OptionChainSnapshot struct {
	ID         int64
	Underlying string
	Expiration time.Time
	Timestamp  time.Time
	Contracts  []OptionChainContract
}

// OptionChainContract is one strike/type row of an OptionChainSnapshot.
type OptionChainContract struct {
	SnapshotID      int64
	Symbol          string
	Strike          float64
	ContractType    string // "call" or "put"
	Bid             float64
	Ask             float64
	Delta           float64
	OpenInterest    int64
	Volume          int64
}
