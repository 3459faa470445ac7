package matching

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/rishav/matching-engine/internal/events"
	"github.com/rishav/matching-engine/internal/orderbook"
	"github.com/rishav/matching-engine/internal/orders"
)

// ControlMessageType identifies the kind of out-of-band request sent to
// the matching loop's control channel. Control messages are interleaved
// between order commands rather than timed against them — the matching
// loop checks its control channel while it waits for the next order
// command to arrive and services a pending message there, never in the
// middle of a command.
//
// Grounded on the original source's engine/control.rs EngineControlMessage
// enum; translated here to a tagged struct over a Go channel in the
// teacher's idiom of keeping small protocol types alongside the component
// that exclusively owns them (see orders.Side/OrderType). The enum carries
// all four message kinds the original defines: (a) snapshot requests, (b)
// snapshot restore, (c) event replay, (d) shutdown.
type ControlMessageType int

const (
	// ControlSnapshot asks the engine to serialize its current state.
	ControlSnapshot ControlMessageType = iota

	// ControlRestore asks the engine to replace its current state with the
	// supplied snapshot bytes. Used only during recovery, before the engine
	// starts accepting order commands.
	ControlRestore

	// ControlReplay asks the engine to apply a single already-committed
	// event to its book, per ApplyReplayEvent's rules. The Recovery
	// Coordinator calls ApplyReplayEvent directly rather than through this
	// channel (Recover runs before the matching loop starts, so nothing is
	// reading the channel yet); this message type exists so the same
	// replay path is reachable through the control channel too, for any
	// caller that needs to interleave a replay with live order processing
	// after startup.
	ControlReplay

	// ControlShutdown asks the matching loop to stop after servicing any
	// commands already admitted.
	ControlShutdown
)

// ControlMessage is a request sent to the matching loop's control channel.
type ControlMessage struct {
	Type     ControlMessageType
	Snapshot []byte      // payload for ControlRestore
	Event    interface{} // payload for ControlReplay
	Reply    chan ControlReply
}

// ControlReply carries the result of servicing a ControlMessage.
type ControlReply struct {
	Snapshot []byte // result for ControlSnapshot
	Err      error
}

// engineSnapshot is the full serialized state of the engine: its book's
// resting orders, plus the sequence number and trade ID counters so
// replay resumes numbering from where the snapshot left off.
type engineSnapshot struct {
	Symbol      string
	SequenceNum uint64
	TradeID     uint64
	Orders      []*orders.Order
}

// Snapshot serializes the engine's full state.
//
// Grounded on the original source's snapshot/snapshotter.rs SnapshotProvider
// contract, which the matching loop implements; gob chosen for consistency
// with the Event Storage encoding (internal/events/log.go).
func (e *Engine) Snapshot() ([]byte, error) {
	snap := engineSnapshot{
		Symbol:      e.symbol,
		SequenceNum: e.sequenceNum,
		TradeID:     e.tradeID,
		Orders:      e.book.AllOrders(),
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, fmt.Errorf("failed to encode engine snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// Restore replaces the engine's current book with the state encoded in
// data, as produced by Snapshot. Intended to run before the matching loop
// starts accepting order commands — it does not re-match restored orders
// against each other, it re-inserts them directly.
func (e *Engine) Restore(data []byte) error {
	var snap engineSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode engine snapshot: %w", err)
	}

	e.book = orderbook.NewOrderBook(e.symbol)
	e.sequenceNum = snap.SequenceNum
	e.tradeID = snap.TradeID

	for _, order := range snap.Orders {
		if err := e.book.AddOrder(order); err != nil {
			return fmt.Errorf("failed to restore order %s: %w", order.ID, err)
		}
	}

	return nil
}

// ApplyReplayEvent reconstructs book state from a single already-committed
// event. Used by the Recovery Coordinator to catch the book up to the
// instant of a crash: restore the latest snapshot, then ApplyReplayEvent
// every event committed after that snapshot's EventSeq, in order.
//
// Event replay rules:
//   - OrderAccepted: add an Order resting on the book with remaining
//     quantity equal to the event's Size.
//   - OrderFilled / MakerOrderFilled: remove the order from the book. A
//     blind removal is correct either way — the book's order map is keyed
//     by order_id regardless of side, and a taker that filled in full was
//     never resting in the first place, so removing it is a harmless
//     no-op.
//   - OrderPartiallyFilled / MakerOrderPartiallyFilled: set the order's
//     remaining quantity to the event's RemainingSize directly. A taker's
//     partial fill is often a no-op here too, since the residual gets
//     added to the book by the OrderAccepted event that follows it in the
//     same batch.
//   - OrderCancelled: remove the order from the book.
//   - TradeExecuted, OrderRejected: no book effect — a trade's size deltas
//     are already captured by the maker/taker completion events around it,
//     and a rejected order never touched the book to begin with.
func (e *Engine) ApplyReplayEvent(event interface{}) error {
	switch ev := event.(type) {
	case *events.OrderAcceptedEvent:
		return e.book.AddOrder(&orders.Order{
			ID:        ev.OrderID,
			Symbol:    ev.Symbol,
			Side:      ev.Side,
			Type:      orders.OrderTypeLimit,
			Price:     ev.Price,
			Quantity:  ev.Size,
			Status:    orders.OrderStatusNew,
			Timestamp: ev.Timestamp,
		})

	case *events.OrderFilledEvent:
		e.book.CancelOrder(ev.OrderID)

	case *events.MakerOrderFilledEvent:
		e.book.CancelOrder(ev.OrderID)

	case *events.OrderPartiallyFilledEvent:
		// Best-effort: absent (not yet added) is expected for a taker's
		// own partial, not an error worth aborting replay over.
		_ = e.book.SetRemainingQty(ev.OrderID, ev.RemainingSize)

	case *events.MakerOrderPartiallyFilledEvent:
		_ = e.book.SetRemainingQty(ev.OrderID, ev.RemainingSize)

	case *events.OrderCancelledEvent:
		e.book.CancelOrder(ev.OrderID)

	case *events.TradeExecutedEvent, *events.OrderRejectedEvent:
		// Informational only.

	default:
		return fmt.Errorf("unknown replay event type: %T", event)
	}

	return nil
}

// LastEventSeq reports the engine's own notion of sequence progress: the
// highest per-event sequence number NextEventSeq has handed out. The
// Snapshotter stores it as the snapshot's EventSeq, and the Recovery
// Coordinator replays only events after that sequence once it has loaded
// the snapshot.
func (e *Engine) LastEventSeq() uint64 {
	return e.sequenceNum
}

// HandleControl services a single control message and replies on its
// Reply channel, if any. It is NOT safe to call concurrently with
// ProcessOrder; callers that need both order and control traffic should
// select over both channels in one loop (as EventProcessor.processLoop
// does) rather than running control handling on its own goroutine.
func (e *Engine) HandleControl(msg ControlMessage) {
	var reply ControlReply

	switch msg.Type {
	case ControlSnapshot:
		reply.Snapshot, reply.Err = e.Snapshot()
	case ControlRestore:
		reply.Err = e.Restore(msg.Snapshot)
	case ControlReplay:
		reply.Err = e.ApplyReplayEvent(msg.Event)
	case ControlShutdown:
		// No engine-side state to tear down; the caller's loop exits on
		// seeing this message type.
	default:
		reply.Err = fmt.Errorf("unknown control message type: %d", msg.Type)
	}

	if msg.Reply != nil {
		msg.Reply <- reply
	}
}
