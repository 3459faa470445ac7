package disruptor

import (
	"fmt"
	"log"
	"runtime"
	"sync/atomic"

	"github.com/rishav/matching-engine/internal/events"
	"github.com/rishav/matching-engine/internal/matching"
	"github.com/rishav/matching-engine/internal/orders"
)

// EventProcessor processes orders from the ring buffer in a single thread.
//
// Design:
// - Single goroutine for deterministic, sequential processing
// - Reads from ring buffer using spin-wait
// - Calls matching engine (single-threaded, no locks needed)
// - Queues events for batched async logging
// - Sends responses back to HTTP handlers via channels
type EventProcessor struct {
	rb           *RingBuffer
	engine       *matching.Engine
	eventBuffer  *events.EventBuffer
	controlCh    chan matching.ControlMessage
	running      atomic.Bool
	shutdownCh   chan struct{}
	shutdownDone chan struct{}
}

// NewEventProcessor creates a new event processor. Every event the engine
// emits is pushed onto eventBuffer; batching it into durable storage,
// sweeping the journal, and projecting trades downstream is the Event
// Writer's job (internal/events.Writer), not the processor's.
func NewEventProcessor(rb *RingBuffer, engine *matching.Engine, eventBuffer *events.EventBuffer) *EventProcessor {
	return &EventProcessor{
		rb:           rb,
		engine:       engine,
		eventBuffer:  eventBuffer,
		controlCh:    make(chan matching.ControlMessage, 1),
		shutdownCh:   make(chan struct{}),
		shutdownDone: make(chan struct{}),
	}
}

// ControlChan returns the channel that interleaves snapshot/restore/replay/
// shutdown requests with order processing. Sends should always include a
// buffered Reply channel. The processor reads this channel only while it
// waits for the next ring buffer slot to be published, so a pending message
// is serviced between order commands, never during one.
func (p *EventProcessor) ControlChan() chan<- matching.ControlMessage {
	return p.controlCh
}

// RequestSnapshot asks the matching loop to snapshot its state and blocks
// until the processor services the request between order commands. Safe
// to call concurrently with order submission since the engine itself is
// only ever touched from the single processing goroutine.
func (p *EventProcessor) RequestSnapshot() ([]byte, error) {
	reply := make(chan matching.ControlReply, 1)
	p.controlCh <- matching.ControlMessage{Type: matching.ControlSnapshot, Reply: reply}
	r := <-reply
	return r.Snapshot, r.Err
}

// RequestRestore asks the matching loop to replace its state with data, as
// produced by RequestSnapshot. Intended for use only during startup
// recovery, before the Gateway begins admitting order commands.
func (p *EventProcessor) RequestRestore(data []byte) error {
	reply := make(chan matching.ControlReply, 1)
	p.controlCh <- matching.ControlMessage{Type: matching.ControlRestore, Snapshot: data, Reply: reply}
	r := <-reply
	return r.Err
}

// LastEventSeq reports the engine's sequence progress. Not synchronized
// through the control channel since it is only read, never mutated, and a
// stale read by one sequence number is harmless for the Snapshotter's
// logging/metrics use.
func (p *EventProcessor) LastEventSeq() uint64 {
	return p.engine.LastEventSeq()
}

// Start begins processing events from the ring buffer.
func (p *EventProcessor) Start() {
	p.running.Store(true)
	go p.processLoop()
}

// processLoop is the main event processing loop (single goroutine).
//
// This loop maintains determinism by processing orders sequentially
// in sequence number order. It never uses locks, relying on the
// single-threaded nature for correctness.
func (p *EventProcessor) processLoop() {
	defer close(p.shutdownDone)

	nextSequence := uint64(1) // Start at 1 (0 is initial state)

	for p.running.Load() {
		// Calculate slot index
		index := nextSequence & p.rb.indexMask
		slot := &p.rb.slots[index]

		// Spin-wait for publisher to finish writing
		// The slot is ready when its SequenceNum matches our expected sequence
		for {
			available := atomic.LoadUint64(&slot.SequenceNum)
			if available == nextSequence {
				break
			}

			// Check for shutdown or a pending control message (snapshot,
			// restore, shutdown) before spinning again. Control messages
			// are serviced here, between order commands, rather than on
			// their own goroutine, since Engine.HandleControl is not safe
			// to call concurrently with ProcessOrder.
			select {
			case <-p.shutdownCh:
				return
			case msg := <-p.controlCh:
				p.engine.HandleControl(msg)
				if msg.Type == matching.ControlShutdown {
					return
				}
			default:
				// Yield to other goroutines to avoid busy loop
				runtime.Gosched()
			}
		}

		// Process the request
		p.processRequest(slot)

		// Update gating sequence to allow this slot to be reused
		atomic.StoreUint64(&p.rb.gatingSequence, nextSequence)

		nextSequence++
	}
}

// processRequest processes a single request from the ring buffer.
func (p *EventProcessor) processRequest(slot *RingBufferSlot) {
	req := slot.Request
	responseCh := slot.ResponseCh

	// Panic recovery to prevent processor crash
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: Event processor panic: %v", r)
			// Send error response
			select {
			case responseCh <- &OrderResponse{
				Success: false,
				Error:   fmt.Errorf("internal error: %v", r),
			}:
			default:
			}
		}
	}()

	// Route based on request type
	switch req.Type {
	case RequestTypeNewOrder:
		p.processNewOrder(req, responseCh)
	case RequestTypeCancelOrder:
		p.processCancelOrder(req, responseCh)
	default:
		// Unknown request type
		select {
		case responseCh <- &OrderResponse{
			Success: false,
			Error:   fmt.Errorf("unknown request type: %d", req.Type),
		}:
		default:
		}
	}
}

// processNewOrder processes a new order submission.
func (p *EventProcessor) processNewOrder(req *OrderRequest, responseCh chan *OrderResponse) {
	order := req.Order

	// Process order through matching engine (single-threaded, deterministic)
	result := p.engine.ProcessOrder(order)

	// Translate the result into the ordered event stream (trades, maker
	// fills, then the taker's own completion event), stamp each one with
	// the next sequence number in emission order, and queue it for
	// batched, durable logging.
	for _, evt := range events.FromExecutionResult(order, result) {
		events.SetSequence(evt, p.engine.NextEventSeq())
		p.pushEvent(evt)
	}

	// Send response back to HTTP handler
	select {
	case responseCh <- &OrderResponse{
		Success: result.Accepted,
		Result:  result,
		Order:   order,
	}:
	default:
		// Handler timed out or channel closed, drop response
		log.Printf("Warning: Failed to send order response for order %s", order.ID)
	}
}

// processCancelOrder processes an order cancellation.
func (p *EventProcessor) processCancelOrder(req *OrderRequest, responseCh chan *OrderResponse) {
	if req.Symbol != "" && req.Symbol != p.engine.Symbol() {
		err := fmt.Errorf("unknown symbol: %s", req.Symbol)
		select {
		case responseCh <- &OrderResponse{Success: false, Error: err}:
		default:
		}
		return
	}

	// Cancel the order
	order, err := p.engine.CancelOrder(req.OrderID)

	// Queue cancellation event if successful
	if err == nil && order != nil {
		evt := &events.OrderCancelledEvent{
			Event: events.Event{
				Timestamp: orders.Now(),
				Type:      events.EventTypeOrderCancelled,
			},
			OrderID:       order.ID,
			Symbol:        order.Symbol,
			RemainingSize: order.RemainingQty(),
		}
		events.SetSequence(evt, p.engine.NextEventSeq())
		p.pushEvent(evt)
	}

	// Send response
	select {
	case responseCh <- &OrderResponse{
		Success: err == nil,
		Order:   order,
		Error:   err,
	}:
	default:
		log.Printf("Warning: Failed to send cancel response for order %s", req.OrderID)
	}
}

// pushEvent spins until the Event Buffer accepts evt. The matching loop's
// durability contract does not allow dropping or reordering an event: a
// full buffer means the Event Writer is falling behind, which must back
// the matching loop up rather than silently lose history. A buffer that
// stays full is an operational problem (a stalled Event Writer) to page
// on, not something this loop can paper over by discarding events.
func (p *EventProcessor) pushEvent(evt interface{}) {
	for !p.eventBuffer.Push(evt) {
		runtime.Gosched()
	}
}

// Shutdown gracefully shuts down the event processor.
//
// It stops the processing loop the next time the loop waits for a ring
// buffer slot, and returns once the loop has exited. Requests still in the
// ring buffer are not drained here, and events already pushed to the Event
// Buffer are flushed by the Event Writer's own Shutdown, not by this one.
func (p *EventProcessor) Shutdown() {
	log.Println("Shutting down event processor...")

	// Signal shutdown
	p.running.Store(false)
	close(p.shutdownCh)

	// Wait for processor loop to finish
	<-p.shutdownDone

	log.Println("Event processor shutdown complete")
}
