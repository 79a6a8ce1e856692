package domain

import "time"

// Bar is one OHLCV sample of the underlying, generalized from the
// teacher's daily-only data.Bar to carry arbitrary intraday timeframes.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Signal is one directional trading signal emitted by the signal engine
// (spec §4.4).
type Signal struct {
	Timestamp        time.Time
	Direction        Direction
	UnderlyingPrice  float64
	Reason           string
	ORBRange         *float64
	ORBEntryLevel    *float64
	ConfluenceScore  *int
	ConfluenceMax    *int
	RelativeVolume   *float64
}

// Quote is a bid/ask/last snapshot for an option contract.
type Quote struct {
	Bid  float64
	Ask  float64
	Last float64
}

// Mid returns (bid+ask)/2, falling back to Last when either side is
// non-positive, as spec §4.2 step 1 requires.
func (q Quote) Mid() float64 {
	if q.Bid > 0 && q.Ask > 0 {
		return (q.Bid + q.Ask) / 2
	}
	return q.Last
}

// OptionType is call or put, lower-cased for wire compatibility with the
// broker adapter's OCC-style symbol construction.
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// FromDirection maps a Direction onto its option type.
func FromDirection(d Direction) OptionType {
	if d == DirectionPut {
		return Put
	}
	return Call
}
