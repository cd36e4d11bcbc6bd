package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// EventKind classifies the observable events emitted by the vault engine.
type EventKind string

const (
	EventStrategyAdded          EventKind = "strategy_added"
	EventStrategyRemoved        EventKind = "strategy_removed"
	EventStrategyChanged        EventKind = "strategy_changed"
	EventWithdrawFailed         EventKind = "withdraw_failed"
	EventDepositFailed          EventKind = "deposit_failed"
	EventDepositQueueChanged    EventKind = "deposit_queue_changed"
	EventWithdrawQueueChanged   EventKind = "withdraw_queue_changed"
	EventRebalanceExecuted      EventKind = "rebalance_executed"
	EventOutflowLimitConfigured EventKind = "outflow_limit_configured"
	EventDeltaChanged           EventKind = "delta_changed"
)

// Event is a structured record of something the vault did or observed.
// Not every field is meaningful for every kind; unused numeric fields are
// zero, unused strings empty.
type Event struct {
	ID        string    `json:"id"`
	Kind      EventKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`

	Slot      int       `json:"slot"`
	AdapterID AdapterID `json:"adapter_id,omitempty"`

	Amount sdkmath.Int `json:"amount"`

	// Before/After carry the old and new delta for delta_changed events.
	Before sdkmath.Int `json:"before"`
	After  sdkmath.Int `json:"after"`

	Note string `json:"note,omitempty"`
}

// NewEvent returns an Event with all amount fields initialized so that JSON
// marshalling never sees a nil big.Int.
func NewEvent(kind EventKind) Event {
	return Event{
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Amount:    sdkmath.ZeroInt(),
		Before:    sdkmath.ZeroInt(),
		After:     sdkmath.ZeroInt(),
	}
}
