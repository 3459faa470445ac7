// Package queue implements the Ingress Queue: a bounded, multi-producer
// single-consumer channel that sits between the Gateway (many HTTP
// goroutines submitting commands) and the single-threaded matching loop.
//
// Grounded on the teacher's ring-buffer disruptor (internal/disruptor),
// but the Ingress Queue is a simpler MPSC stage upstream of it: Gateway
// goroutines call TryEnqueue (non-blocking, bounded) and the matching
// loop's single consumer goroutine calls Recv (also non-blocking, so it
// can interleave with control-channel commands rather than blocking
// forever on an empty queue).
package queue

import (
	"github.com/pkg/errors"
)

// ErrQueueFull is returned by TryEnqueue when the queue has reached its
// configured capacity. The Gateway surfaces this to the client as
// backpressure rather than blocking the HTTP goroutine indefinitely.
var ErrQueueFull = errors.New("ingress queue full")

// Command is the unit of work carried through the Ingress Queue. It is
// intentionally opaque to the queue itself — the matching loop decides
// how to interpret it (new order, cancel, control command).
type Command interface{}

// QueueSender is the producer-side handle, held by Gateway goroutines.
type QueueSender struct {
	ch chan Command
}

// QueueReceiver is the consumer-side handle, held by the matching loop.
type QueueReceiver struct {
	ch chan Command
}

// New creates a bounded Ingress Queue with the given capacity and returns
// its sender and receiver halves.
func New(capacity int) (*QueueSender, *QueueReceiver) {
	ch := make(chan Command, capacity)
	return &QueueSender{ch: ch}, &QueueReceiver{ch: ch}
}

// TryEnqueue attempts to place cmd on the queue without blocking. Returns
// ErrQueueFull if the queue is at capacity.
func (s *QueueSender) TryEnqueue(cmd Command) error {
	select {
	case s.ch <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// Recv attempts to pull the next command without blocking. The second
// return value is false if the queue was empty, letting the matching loop
// fall through to check its control channel or ring buffer instead of
// stalling.
func (r *QueueReceiver) Recv() (Command, bool) {
	select {
	case cmd := <-r.ch:
		return cmd, true
	default:
		return nil, false
	}
}

// Len reports the number of commands currently buffered. Intended for
// metrics/backpressure signals, not for control flow — the count can be
// stale the instant it's read.
func (r *QueueReceiver) Len() int {
	return len(r.ch)
}

// Close closes the underlying channel. Callers must ensure no further
// TryEnqueue calls occur after Close, or they will panic — the matching
// loop should only call Close during an orderly shutdown after the
// Gateway has stopped admitting new commands.
func (s *QueueSender) Close() {
	close(s.ch)
}
