package snapshot

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// FileSnapshotStorage persists each snapshot as its own gzip-compressed
// file under a directory, named by EventSeq so LoadAtSeq/LoadLatest can
// list the directory instead of keeping an in-memory index.
//
// Adapted from the same gzip-over-gob shape as internal/events.EventLog's
// optional compression, per the DOMAIN STACK note that klauspost/compress
// gets a second home here alongside Event Storage.
type FileSnapshotStorage struct {
	mu  sync.Mutex
	dir string
}

// NewFileSnapshotStorage creates (if necessary) dir and returns a Storage
// backed by it.
func NewFileSnapshotStorage(dir string) (*FileSnapshotStorage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	return &FileSnapshotStorage{dir: dir}, nil
}

func (f *FileSnapshotStorage) pathFor(seq uint64) string {
	return filepath.Join(f.dir, fmt.Sprintf("%020d.snap.gz", seq))
}

func (f *FileSnapshotStorage) Save(rec Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return fmt.Errorf("failed to encode snapshot record: %w", err)
	}

	file, err := os.Create(f.pathFor(rec.EventSeq))
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer file.Close()

	gz := gzip.NewWriter(file)
	if _, err := gz.Write(buf.Bytes()); err != nil {
		gz.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return gz.Close()
}

func (f *FileSnapshotStorage) load(seq uint64) (*Record, error) {
	file, err := os.Open(f.pathFor(seq))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer gz.Close()

	var rec Record
	if err := gob.NewDecoder(gz).Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot record: %w", err)
	}
	return &rec, nil
}

func (f *FileSnapshotStorage) LoadAtSeq(seq uint64) (*Record, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	seqs, err := f.listSeqsLocked()
	if err != nil {
		return nil, false, err
	}

	for i := len(seqs) - 1; i >= 0; i-- {
		if seqs[i] <= seq {
			rec, err := f.load(seqs[i])
			if err != nil {
				return nil, false, err
			}
			return rec, true, nil
		}
	}
	return nil, false, nil
}

func (f *FileSnapshotStorage) LoadLatest() (*Record, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	seqs, err := f.listSeqsLocked()
	if err != nil {
		return nil, false, err
	}
	if len(seqs) == 0 {
		return nil, false, nil
	}

	rec, err := f.load(seqs[len(seqs)-1])
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

func (f *FileSnapshotStorage) CleanupBefore(seq uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	seqs, err := f.listSeqsLocked()
	if err != nil {
		return err
	}

	for _, s := range seqs {
		if s < seq {
			if err := os.Remove(f.pathFor(s)); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to remove snapshot %d: %w", s, err)
			}
		}
	}
	return nil
}

// SeqsDescending satisfies retainableStorage.
func (f *FileSnapshotStorage) SeqsDescending() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	seqs, err := f.listSeqsLocked()
	if err != nil {
		return nil
	}
	out := make([]uint64, len(seqs))
	for i, s := range seqs {
		out[len(seqs)-1-i] = s
	}
	return out
}

// listSeqsLocked returns stored sequence numbers ascending. Caller must
// hold f.mu.
func (f *FileSnapshotStorage) listSeqsLocked() ([]uint64, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot dir: %w", err)
	}

	var seqs []uint64
	for _, entry := range entries {
		name := entry.Name()
		const suffix = ".snap.gz"
		if entry.IsDir() || len(name) <= len(suffix) || name[len(name)-len(suffix):] != suffix {
			continue
		}
		seq, err := strconv.ParseUint(name[:len(name)-len(suffix)], 10, 64)
		if err != nil {
			continue
		}
		seqs = append(seqs, seq)
	}

	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs, nil
}
