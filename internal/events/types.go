// Package events defines event types for the event sourcing system.
//
// Event Sourcing Pattern:
// Instead of storing current state, we store all state changes (events).
// Current state can be reconstructed by replaying events from the beginning.
//
// Benefits:
// 1. Audit Trail: Complete history of every action (regulatory requirement)
// 2. Replay: Rebuild state after crash by replaying events
// 3. Debugging: Reproduce any bug by replaying to that point
// 4. Time Travel: Query historical state at any point in time
//
// In financial systems, event sourcing is often mandatory for regulatory
// compliance (MiFID II, SEC Rule 613 CAT).
package events

import (
	"encoding/gob"

	"github.com/rishav/matching-engine/internal/orders"
)

// EventType identifies the type of event.
//
// This is the full six-event-family model: the taker and maker sides of a
// fill are reported separately (OrderFilled/OrderPartiallyFilled for the
// taker, MakerOrderFilled/MakerOrderPartiallyFilled for the resting order),
// rather than collapsing both into one generic "Fill" event.
type EventType uint8

const (
	EventTypeOrderAccepted EventType = iota + 1
	EventTypeOrderRejected
	EventTypeOrderFilled
	EventTypeOrderPartiallyFilled
	EventTypeMakerOrderFilled
	EventTypeMakerOrderPartiallyFilled
	EventTypeOrderCancelled
	EventTypeTradeExecuted
)

func (t EventType) String() string {
	switch t {
	case EventTypeOrderAccepted:
		return "ORDER_ACCEPTED"
	case EventTypeOrderRejected:
		return "ORDER_REJECTED"
	case EventTypeOrderFilled:
		return "ORDER_FILLED"
	case EventTypeOrderPartiallyFilled:
		return "ORDER_PARTIALLY_FILLED"
	case EventTypeMakerOrderFilled:
		return "MAKER_ORDER_FILLED"
	case EventTypeMakerOrderPartiallyFilled:
		return "MAKER_ORDER_PARTIALLY_FILLED"
	case EventTypeOrderCancelled:
		return "ORDER_CANCELLED"
	case EventTypeTradeExecuted:
		return "TRADE_EXECUTED"
	default:
		return "UNKNOWN"
	}
}

// Event is the base event structure. All events share these common fields.
type Event struct {
	SequenceNum uint64    // Global sequence number
	Timestamp   int64     // Nanoseconds since epoch
	Type        EventType // Event type
}

// OrderAcceptedEvent records an order (or its residual) resting on the book.
type OrderAcceptedEvent struct {
	Event
	OrderID string
	Symbol  string
	Side    orders.Side
	Price   int64
	Size    int64 // resting quantity, not the original order quantity
}

// OrderRejectedEvent records an order the matching engine refused: wrong
// symbol, non-positive quantity or price, a non-limit order type, or an
// empty order_id.
type OrderRejectedEvent struct {
	Event
	OrderID string
	Symbol  string
	Reason  string
}

// OrderFilledEvent indicates the taker order matched to completion.
type OrderFilledEvent struct {
	Event
	OrderID    string
	Symbol     string
	FilledSize int64
}

// OrderPartiallyFilledEvent indicates the taker order matched partially.
type OrderPartiallyFilledEvent struct {
	Event
	OrderID       string
	Symbol        string
	FilledSize    int64
	RemainingSize int64
}

// MakerOrderFilledEvent indicates a resting order was matched to completion.
type MakerOrderFilledEvent struct {
	Event
	OrderID    string
	Symbol     string
	FilledSize int64
}

// MakerOrderPartiallyFilledEvent indicates a resting order absorbed part of
// an incoming order's size without being exhausted.
type MakerOrderPartiallyFilledEvent struct {
	Event
	OrderID       string
	Symbol        string
	FilledSize    int64
	RemainingSize int64
}

// OrderCancelledEvent indicates a resting order was cancelled and removed
// from the book.
type OrderCancelledEvent struct {
	Event
	OrderID       string
	Symbol        string
	RemainingSize int64
}

// TradeExecuted carries the trade itself, separate from either side's
// completion bookkeeping.
type TradeExecutedEvent struct {
	Event
	Trade orders.Trade
}

// SetSequence stamps the sequence number the matching loop assigned onto
// event. The matching loop (internal/matching.Engine.NextEventSeq) is the
// only assigner of sequence numbers in this system; every downstream
// consumer — Event Storage, the Recovery Coordinator's replay cursor, a
// snapshot's EventSeq — reads back the number stamped here rather than
// minting its own.
func SetSequence(event interface{}, seq uint64) {
	switch e := event.(type) {
	case *OrderAcceptedEvent:
		e.SequenceNum = seq
	case *OrderRejectedEvent:
		e.SequenceNum = seq
	case *OrderFilledEvent:
		e.SequenceNum = seq
	case *OrderPartiallyFilledEvent:
		e.SequenceNum = seq
	case *MakerOrderFilledEvent:
		e.SequenceNum = seq
	case *MakerOrderPartiallyFilledEvent:
		e.SequenceNum = seq
	case *OrderCancelledEvent:
		e.SequenceNum = seq
	case *TradeExecutedEvent:
		e.SequenceNum = seq
	}
}

// SequenceOf reads back the sequence number SetSequence stamped onto
// event. Returns 0 for an event type this package does not define.
func SequenceOf(event interface{}) uint64 {
	switch e := event.(type) {
	case *OrderAcceptedEvent:
		return e.SequenceNum
	case *OrderRejectedEvent:
		return e.SequenceNum
	case *OrderFilledEvent:
		return e.SequenceNum
	case *OrderPartiallyFilledEvent:
		return e.SequenceNum
	case *MakerOrderFilledEvent:
		return e.SequenceNum
	case *MakerOrderPartiallyFilledEvent:
		return e.SequenceNum
	case *OrderCancelledEvent:
		return e.SequenceNum
	case *TradeExecutedEvent:
		return e.SequenceNum
	default:
		return 0
	}
}

// Register gob types for encoding/decoding.
func init() {
	gob.Register(&OrderAcceptedEvent{})
	gob.Register(&OrderRejectedEvent{})
	gob.Register(&OrderFilledEvent{})
	gob.Register(&OrderPartiallyFilledEvent{})
	gob.Register(&MakerOrderFilledEvent{})
	gob.Register(&MakerOrderPartiallyFilledEvent{})
	gob.Register(&OrderCancelledEvent{})
	gob.Register(&TradeExecutedEvent{})
}
