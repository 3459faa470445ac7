// Package journal implements the Order Journal: a durable idempotency
// record the Gateway consults before an order_id is allowed to enter the
// Ingress Queue, and the Event Writer updates once the order's fate is
// committed to Event Storage.
//
// Modeled on the original Rust source's crates/matching/src/journal trait
// (append/is_active/mark_completed/replay/compact), translated into a Go
// interface plus an in-memory implementation guarded by the teacher's own
// locking idiom (sync.RWMutex over plain maps, as in internal/risk/checker.go).
package journal

import (
	"sync"

	"github.com/pkg/errors"
)

// Status is the lifecycle state of a journaled order_id.
type Status uint8

const (
	// StatusActive means the order has been admitted but its terminal event
	// (rejected, filled, or cancelled) has not yet been committed to Event
	// Storage.
	StatusActive Status = iota

	// StatusCompleted means the order's terminal event has been durably
	// written; the entry is retained only for idempotency replay.
	StatusCompleted
)

// ErrDuplicateOrderID is returned by Append when order_id has already been
// journaled, active or completed. The Gateway surfaces this as a duplicate
// rejection rather than re-admitting the command.
var ErrDuplicateOrderID = errors.New("duplicate order ID")

// ErrNotFound is returned by MarkCompleted when the order_id was never
// journaled.
var ErrNotFound = errors.New("order ID not journaled")

// Entry is a single journaled order_id and its current lifecycle state.
type Entry struct {
	OrderID string
	Status  Status
}

// OrderJournal is the interface the Gateway and Event Writer depend on.
type OrderJournal interface {
	// Append records a new order_id as Active. Returns ErrDuplicateOrderID
	// if the order_id already exists in any state.
	Append(orderID string) error

	// IsActive reports whether order_id is currently Active (used by the
	// Gateway's idempotency check before enqueueing).
	IsActive(orderID string) bool

	// MarkCompleted transitions an Active entry to Completed. Called by the
	// Event Writer after a batch containing that order_id's terminal event
	// has committed to Event Storage.
	MarkCompleted(orderID string) error

	// Replay returns every journaled entry, in append order. Used by the
	// Recovery Coordinator to find orders left Active by a crash.
	Replay() []Entry

	// Compact drops Completed entries older than the retention the caller
	// enforces; the in-memory implementation simply removes all Completed
	// entries, since nothing needs them once Event Storage holds the
	// terminal event durably.
	Compact()
}

// MemoryOrderJournal is an in-memory OrderJournal. Durable only as long as
// the process lives: a restarted process starts with an empty journal, so
// the Recovery Coordinator's sweep of Replay finds no Active entries left
// over from before the restart.
type MemoryOrderJournal struct {
	mu      sync.RWMutex
	entries map[string]Status
	order   []string // append order, for deterministic Replay
}

// NewMemoryOrderJournal creates an empty journal.
func NewMemoryOrderJournal() *MemoryOrderJournal {
	return &MemoryOrderJournal{
		entries: make(map[string]Status),
	}
}

func (j *MemoryOrderJournal) Append(orderID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, exists := j.entries[orderID]; exists {
		return ErrDuplicateOrderID
	}
	j.entries[orderID] = StatusActive
	j.order = append(j.order, orderID)
	return nil
}

func (j *MemoryOrderJournal) IsActive(orderID string) bool {
	j.mu.RLock()
	defer j.mu.RUnlock()

	status, exists := j.entries[orderID]
	return exists && status == StatusActive
}

func (j *MemoryOrderJournal) MarkCompleted(orderID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, exists := j.entries[orderID]; !exists {
		return ErrNotFound
	}
	j.entries[orderID] = StatusCompleted
	return nil
}

func (j *MemoryOrderJournal) Replay() []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]Entry, 0, len(j.order))
	for _, id := range j.order {
		out = append(out, Entry{OrderID: id, Status: j.entries[id]})
	}
	return out
}

func (j *MemoryOrderJournal) Compact() {
	j.mu.Lock()
	defer j.mu.Unlock()

	kept := j.order[:0]
	for _, id := range j.order {
		if j.entries[id] == StatusCompleted {
			delete(j.entries, id)
			continue
		}
		kept = append(kept, id)
	}
	j.order = kept
}
