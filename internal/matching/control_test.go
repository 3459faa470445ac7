package matching

import (
	"testing"

	"github.com/rishav/matching-engine/internal/events"
	"github.com/rishav/matching-engine/internal/orders"
)

// TestEngine_SnapshotRestore verifies that a snapshot taken of an engine
// with resting orders can rebuild an equivalent book in a fresh engine.
func TestEngine_SnapshotRestore(t *testing.T) {
	e := NewEngine("AAPL")

	buy := &orders.Order{ID: "buy-1", Symbol: "AAPL", Side: orders.SideBuy, Type: orders.OrderTypeLimit, Price: 15000, Quantity: 100}
	result := e.ProcessOrder(buy)
	if !result.Accepted {
		t.Fatalf("expected order to be accepted, got reject reason %q", result.RejectReason)
	}

	data, err := e.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	restored := NewEngine("AAPL")
	if err := restored.Restore(data); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	book := restored.Book()
	if book.TotalOrders() != 1 {
		t.Fatalf("expected 1 resting order after restore, got %d", book.TotalOrders())
	}

	got := book.GetOrder("buy-1")
	if got == nil {
		t.Fatal("expected buy-1 to be present after restore")
	}
	if got.RemainingQty() != 100 {
		t.Fatalf("expected remaining qty 100, got %d", got.RemainingQty())
	}

	if restored.LastEventSeq() != e.sequenceNum {
		t.Fatalf("expected restored sequence %d, got %d", e.sequenceNum, restored.LastEventSeq())
	}
}

// TestEngine_ApplyReplayEvent_RebuildsBook exercises each replay rule
// against a book built from scratch (the snapshot-less recovery case),
// confirming the result matches what live processing would have produced.
func TestEngine_ApplyReplayEvent_RebuildsBook(t *testing.T) {
	e := NewEngine("AAPL")

	if err := e.ApplyReplayEvent(&events.OrderAcceptedEvent{
		OrderID: "buy-1", Symbol: "AAPL", Side: orders.SideBuy, Price: 15000, Size: 100,
	}); err != nil {
		t.Fatalf("ApplyReplayEvent(accepted) failed: %v", err)
	}
	if e.Book().GetOrder("buy-1") == nil {
		t.Fatal("expected buy-1 to be resting after an accepted replay")
	}

	if err := e.ApplyReplayEvent(&events.OrderPartiallyFilledEvent{
		OrderID: "buy-1", Symbol: "AAPL", RemainingSize: 40,
	}); err != nil {
		t.Fatalf("ApplyReplayEvent(partial fill) failed: %v", err)
	}
	if got := e.Book().GetOrder("buy-1").RemainingQty(); got != 40 {
		t.Fatalf("expected remaining qty 40 after partial-fill replay, got %d", got)
	}

	if err := e.ApplyReplayEvent(&events.OrderCancelledEvent{OrderID: "buy-1", Symbol: "AAPL"}); err != nil {
		t.Fatalf("ApplyReplayEvent(cancelled) failed: %v", err)
	}
	if e.Book().GetOrder("buy-1") != nil {
		t.Fatal("expected buy-1 to be gone after a cancelled replay")
	}

	// A fill/maker-fill/trade/reject event for an order the book has
	// never seen is a harmless no-op, not an error.
	if err := e.ApplyReplayEvent(&events.OrderFilledEvent{OrderID: "ghost", Symbol: "AAPL"}); err != nil {
		t.Fatalf("expected a blind remove of an absent order to be a no-op, got: %v", err)
	}
	if err := e.ApplyReplayEvent(&events.TradeExecutedEvent{}); err != nil {
		t.Fatalf("expected TradeExecutedEvent replay to be a no-op, got: %v", err)
	}
}

// TestEngine_HandleControl_Replay routes a replay event through the
// control channel path, the path a caller running after startup (rather
// than the Recovery Coordinator, which calls ApplyReplayEvent directly)
// would use.
func TestEngine_HandleControl_Replay(t *testing.T) {
	e := NewEngine("AAPL")
	reply := make(chan ControlReply, 1)

	e.HandleControl(ControlMessage{
		Type:  ControlReplay,
		Event: &events.OrderAcceptedEvent{OrderID: "buy-1", Symbol: "AAPL", Side: orders.SideBuy, Price: 15000, Size: 100},
		Reply: reply,
	})

	r := <-reply
	if r.Err != nil {
		t.Fatalf("unexpected error: %v", r.Err)
	}
	if e.Book().GetOrder("buy-1") == nil {
		t.Fatal("expected buy-1 to be resting after a ControlReplay")
	}
}

// TestEngine_HandleControl_Shutdown exercises the default ack path for a
// control message with no payload.
func TestEngine_HandleControl_Shutdown(t *testing.T) {
	e := NewEngine("AAPL")
	reply := make(chan ControlReply, 1)

	e.HandleControl(ControlMessage{Type: ControlShutdown, Reply: reply})

	r := <-reply
	if r.Err != nil {
		t.Fatalf("unexpected error: %v", r.Err)
	}
}

// TestEngine_HandleControl_UnknownType verifies an unrecognized control
// message type surfaces as an error rather than being silently ignored.
func TestEngine_HandleControl_UnknownType(t *testing.T) {
	e := NewEngine("AAPL")
	reply := make(chan ControlReply, 1)

	e.HandleControl(ControlMessage{Type: ControlMessageType(99), Reply: reply})

	r := <-reply
	if r.Err == nil {
		t.Fatal("expected an error for an unknown control message type")
	}
}
