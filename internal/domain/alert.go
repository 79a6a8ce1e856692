package domain

import "time"

// AlertStatus is the lifecycle status of an inbound signal event.
type AlertStatus string

const (
	AlertReceived  AlertStatus = "RECEIVED"
	AlertAccepted  AlertStatus = "ACCEPTED"
	AlertRejected  AlertStatus = "REJECTED"
	AlertProcessed AlertStatus = "PROCESSED"
	AlertError     AlertStatus = "ERROR"
)

// IsTerminal reports whether the alert will never change status again.
func (s AlertStatus) IsTerminal() bool {
	return s == AlertRejected || s == AlertProcessed || s == AlertError
}

// Action is the inbound webhook action, mapped onto a Direction by the
// webhook handler (BUY_CALL -> CALL, BUY_PUT -> PUT, CLOSE -> none).
type Action string

const (
	ActionBuyCall Action = "BUY_CALL"
	ActionBuyPut  Action = "BUY_PUT"
	ActionClose   Action = "CLOSE"
)

// Alert is one inbound signal event (spec §3).
type Alert struct {
	ID              int64
	CorrelationID   string
	ReceivedAt      time.Time
	RawBody         string
	Ticker          string
	Direction       Direction
	SignalPrice     float64
	Source          string
	Status          AlertStatus
	RejectionReason string
	TradeID         *int64

	// ConfluenceScore, ConfluenceMax and RelativeVolume carry a
	// strategy's multi-indicator confluence context (when the
	// originating Signal reported one) through to entry sizing.
	ConfluenceScore *int
	ConfluenceMax   *int
	RelativeVolume  *float64
}

// MarkRejected transitions the alert to REJECTED with a human reason.
// Alerts are immutable once terminal, so this is a no-op past that point.
func (a *Alert) MarkRejected(reason string) {
	if a.Status.IsTerminal() {
		return
	}
	a.Status = AlertRejected
	a.RejectionReason = reason
}

// MarkProcessed links the alert to the trade it produced.
func (a *Alert) MarkProcessed(tradeID int64) {
	if a.Status.IsTerminal() {
		return
	}
	a.Status = AlertProcessed
	a.TradeID = &tradeID
}
