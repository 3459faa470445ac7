// Package snapshot implements periodic state snapshots of the matching
// engine, so the Recovery Coordinator can bound how much of the event log
// it needs to replay after a restart to a window since the last snapshot
// rather than the whole history.
//
// Grounded on the original source's snapshot/storage.rs (sorted-by-seq
// slice, load_at_seq reverse search, cleanup_before retain) and
// snapshot/snapshotter.rs (ticker-driven loop calling a SnapshotProvider,
// logging duration/size, pruning after save).
package snapshot

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SnapshotProvider is implemented by whatever owns the matching engine's
// state — in this repo, internal/disruptor.EventProcessor, which
// interleaves snapshot requests with order processing over its control
// channel so the engine is never touched from two goroutines at once.
type SnapshotProvider interface {
	RequestSnapshot() ([]byte, error)
	LastEventSeq() uint64
}

// Record is one stored snapshot.
type Record struct {
	EventSeq  uint64
	Data      []byte
	TakenAt   time.Time
	SizeBytes int
}

// Storage persists snapshots and retrieves the most recent one at or
// before a given event sequence number.
type Storage interface {
	Save(rec Record) error
	LoadAtSeq(seq uint64) (*Record, bool, error)
	LoadLatest() (*Record, bool, error)
	CleanupBefore(seq uint64) error
}

// MemoryStorage is an in-process Storage, grounded on the original
// source's snapshot/storage.rs in-memory backend (a sorted Vec<Snapshot>).
type MemoryStorage struct {
	mu      sync.Mutex
	records []Record // kept sorted ascending by EventSeq
}

// NewMemoryStorage creates an empty in-memory snapshot store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) Save(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, rec)
	sort.Slice(s.records, func(i, j int) bool { return s.records[i].EventSeq < s.records[j].EventSeq })
	return nil
}

// LoadAtSeq returns the most recent snapshot with EventSeq <= seq, found
// via reverse search since records are kept sorted ascending.
func (s *MemoryStorage) LoadAtSeq(seq uint64) (*Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].EventSeq <= seq {
			rec := s.records[i]
			return &rec, true, nil
		}
	}
	return nil, false, nil
}

func (s *MemoryStorage) LoadLatest() (*Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.records) == 0 {
		return nil, false, nil
	}
	rec := s.records[len(s.records)-1]
	return &rec, true, nil
}

// CleanupBefore drops every snapshot with EventSeq < seq, retaining seq
// and anything newer (retain->=seq, per the original source's semantics).
func (s *MemoryStorage) CleanupBefore(seq uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	for _, rec := range s.records {
		if rec.EventSeq >= seq {
			kept = append(kept, rec)
		}
	}
	s.records = kept
	return nil
}

// SeqsDescending returns every stored EventSeq, most recent first. Used by
// the Snapshotter to compute a retention floor without the Storage
// interface needing to expose record count directly.
func (s *MemoryStorage) SeqsDescending() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	seqs := make([]uint64, len(s.records))
	for i, rec := range s.records {
		seqs[len(s.records)-1-i] = rec.EventSeq
	}
	return seqs
}

// Config controls the Snapshotter's cadence and retention.
type Config struct {
	Interval       time.Duration
	RetainSnapshots int // keep at least this many most-recent snapshots
}

// DefaultConfig returns a conservative default cadence.
func DefaultConfig() Config {
	return Config{Interval: 5 * time.Minute, RetainSnapshots: 10}
}

// Snapshotter periodically asks a SnapshotProvider for state and persists
// it to Storage, pruning old snapshots past the retention window.
type Snapshotter struct {
	provider SnapshotProvider
	storage  Storage
	cfg      Config
	log      zerolog.Logger
	metrics  MetricsSink
	stop     chan struct{}
	done     chan struct{}
}

// MetricsSink receives a snapshot's duration and size once it is saved.
// Optional — a nil sink (the default) just skips instrumentation.
type MetricsSink interface {
	ObserveSnapshot(duration time.Duration, sizeBytes int)
}

// NewSnapshotter creates a Snapshotter. Call Start to begin the ticker loop.
func NewSnapshotter(provider SnapshotProvider, storage Storage, cfg Config, log zerolog.Logger) *Snapshotter {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.RetainSnapshots <= 0 {
		cfg.RetainSnapshots = 10
	}
	return &Snapshotter{
		provider: provider,
		storage:  storage,
		cfg:      cfg,
		log:      log.With().Str("component", "snapshotter").Logger(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// SetMetrics attaches a metrics sink. Must be called before Start.
func (s *Snapshotter) SetMetrics(sink MetricsSink) {
	s.metrics = sink
}

// Start begins the periodic snapshot loop in its own goroutine.
func (s *Snapshotter) Start() {
	go s.loop()
}

func (s *Snapshotter) loop() {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.snapshotOnce()
		case <-s.stop:
			return
		}
	}
}

// snapshotOnce takes and persists a single snapshot, then prunes anything
// older than the retention window allows.
func (s *Snapshotter) snapshotOnce() {
	start := time.Now()

	data, err := s.provider.RequestSnapshot()
	if err != nil {
		s.log.Error().Err(err).Msg("snapshot request failed")
		return
	}

	rec := Record{
		EventSeq:  s.provider.LastEventSeq(),
		Data:      data,
		TakenAt:   start,
		SizeBytes: len(data),
	}

	if err := s.storage.Save(rec); err != nil {
		s.log.Error().Err(err).Msg("snapshot save failed")
		return
	}

	duration := time.Since(start)
	s.log.Info().
		Uint64("event_seq", rec.EventSeq).
		Int("size_bytes", rec.SizeBytes).
		Dur("duration", duration).
		Msg("snapshot saved")

	if s.metrics != nil {
		s.metrics.ObserveSnapshot(duration, rec.SizeBytes)
	}

	// Retention is relative to the sequence of the Nth-from-latest
	// snapshot we want to keep; a memory store with fewer records than
	// that is a no-op cleanup.
	retainSeq, ok := s.retainFloor()
	if ok {
		if err := s.storage.CleanupBefore(retainSeq); err != nil {
			s.log.Warn().Err(err).Msg("snapshot cleanup failed")
		}
	}
}

// retainableStorage is implemented by Storage backends that can report
// their stored sequence numbers, letting the Snapshotter compute a
// retention floor without pruning more than it should.
type retainableStorage interface {
	SeqsDescending() []uint64
}

// retainFloor determines the EventSeq below which snapshots may be
// pruned, keeping at least cfg.RetainSnapshots of the most recent ones.
// Storage backends that don't implement retainableStorage skip pruning.
func (s *Snapshotter) retainFloor() (uint64, bool) {
	withSeqs, ok := s.storage.(retainableStorage)
	if !ok {
		return 0, false
	}
	seqs := withSeqs.SeqsDescending()
	if len(seqs) < s.cfg.RetainSnapshots {
		return 0, false
	}
	return seqs[s.cfg.RetainSnapshots-1], true
}

// Shutdown stops the snapshot loop.
func (s *Snapshotter) Shutdown() {
	close(s.stop)
	<-s.done
}

func (c Config) String() string {
	return fmt.Sprintf("Config{Interval:%s, RetainSnapshots:%d}", c.Interval, c.RetainSnapshots)
}
