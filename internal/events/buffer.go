package events

// EventBuffer is the bounded SPSC channel sitting between the matching
// loop (single producer) and the Event Writer (single consumer).
//
// Grounded on the original source's crates/matching/src/event/buffer.rs
// EventProducer/EventConsumer split over a bounded channel with a
// drain(max) consumer operation; implemented here as a Go buffered
// channel plus a Drain helper, the same primitive the Ingress Queue uses
// one stage upstream.
type EventBuffer struct {
	ch chan interface{}
}

// NewEventBuffer creates a buffer with the given capacity.
func NewEventBuffer(capacity int) *EventBuffer {
	return &EventBuffer{ch: make(chan interface{}, capacity)}
}

// Push attempts to enqueue event without blocking and reports whether it
// succeeded. A false return means the buffer is full; it is a
// backpressure signal, not permission to discard the event. The matching
// loop (internal/disruptor.EventProcessor) retries Push until it
// succeeds rather than dropping — losing an event here would make the
// book unreconstructable from the log, so Push itself stays non-blocking
// only so the caller can observe and log the backpressure while it spins.
func (b *EventBuffer) Push(event interface{}) bool {
	select {
	case b.ch <- event:
		return true
	default:
		return false
	}
}

// Drain pulls up to max queued events without blocking. It returns fewer
// than max if the buffer empties first, and an empty slice if nothing was
// queued.
func (b *EventBuffer) Drain(max int) []interface{} {
	out := make([]interface{}, 0, max)
	for len(out) < max {
		select {
		case event := <-b.ch:
			out = append(out, event)
		default:
			return out
		}
	}
	return out
}

// Len reports the number of events currently buffered.
func (b *EventBuffer) Len() int {
	return len(b.ch)
}

// Chan exposes the underlying channel for consumers that want to select
// on it directly (the Event Writer's batch loop) rather than polling Drain.
func (b *EventBuffer) Chan() <-chan interface{} {
	return b.ch
}
