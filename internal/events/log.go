package events

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// EventLog is an append-only, durable event log.
//
// Design Decisions:
//
// 1. Binary Format: We use gob encoding for simplicity, but production systems
//    would use a more compact format (protobuf, flatbuffers, or custom binary).
//
// 2. Checksums: Each event has a CRC32 checksum to detect corruption.
//
// 3. Sync Options: We support both synchronous (fsync per write) and asynchronous
//    modes. Sync mode guarantees durability but is slower.
//
// 4. Sequence Numbers: Each event carries the monotonically increasing
//    sequence number the matching loop stamped onto it before it ever
//    reached this log; Append validates the ordering, it does not assign it.
//
// Production Considerations:
// - Real systems use write-ahead logs (WAL) with battery-backed RAM
// - Segment files (rotate when size limit reached) for easy cleanup
// - Compression for storage efficiency
// - Replication for fault tolerance
type EventLog struct {
	file        *os.File
	writer      *bufio.Writer
	gzWriter    *gzip.Writer // nil unless Compress is set
	encoder     *gob.Encoder
	mu          sync.Mutex
	sequenceNum uint64
	syncMode    bool // If true, fsync after every write
	compress    bool
	path        string
}

// EventLogConfig configures the event log.
type EventLogConfig struct {
	Path     string
	SyncMode bool // If true, fsync after every write (slower but durable)
	Compress bool // If true, gzip-compress the on-disk stream
}

// NewEventLog creates a new event log.
func NewEventLog(config EventLogConfig) (*EventLog, error) {
	file, err := os.OpenFile(config.Path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}

	writer := bufio.NewWriter(file)

	log := &EventLog{
		file:     file,
		writer:   writer,
		syncMode: config.SyncMode,
		compress: config.Compress,
		path:     config.Path,
	}

	if config.Compress {
		log.gzWriter = gzip.NewWriter(writer)
		log.encoder = gob.NewEncoder(log.gzWriter)
	} else {
		log.encoder = gob.NewEncoder(writer)
	}

	// Read existing events to get last sequence number
	if err := log.recover(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to recover event log: %w", err)
	}

	return log, nil
}

// openReader opens the log file for replay/recovery, transparently
// decompressing when the log was opened with Compress.
func (l *EventLog) openReader() (io.ReadCloser, *gob.Decoder, error) {
	file, err := os.Open(l.path)
	if err != nil {
		return nil, nil, err
	}

	if !l.compress {
		return file, gob.NewDecoder(file), nil
	}

	gz, err := gzip.NewReader(file)
	if err != nil {
		if err == io.EOF {
			// Empty file never got a gzip header written.
			return file, gob.NewDecoder(file), nil
		}
		file.Close()
		return nil, nil, err
	}
	return readCloserPair{file, gz}, gob.NewDecoder(gz), nil
}

// readCloserPair closes both the gzip reader and the underlying file.
type readCloserPair struct {
	file *os.File
	gz   *gzip.Reader
}

func (p readCloserPair) Read(b []byte) (int, error) { return p.gz.Read(b) }
func (p readCloserPair) Close() error {
	gzErr := p.gz.Close()
	fileErr := p.file.Close()
	if gzErr != nil {
		return gzErr
	}
	return fileErr
}

// eventRecord is the on-disk format for events.
type eventRecord struct {
	SequenceNum uint64
	Type        EventType
	Data        interface{}
	Checksum    uint32
}

// Append writes an event to the log under the sequence number already
// stamped on it by the matching loop (events.SetSequence). The log is a
// durability boundary, not a sequencer: assigning its own number here
// would let it disagree with the number the Recovery Coordinator and the
// snapshot's EventSeq already use, so Append instead validates that the
// stamped number is the next one expected.
func (l *EventLog) Append(event interface{}) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	seqNum := SequenceOf(event)
	if seqNum != l.sequenceNum+1 {
		return 0, fmt.Errorf("out-of-order event commit: expected sequence %d, got %d", l.sequenceNum+1, seqNum)
	}
	l.sequenceNum = seqNum

	// Create record
	record := eventRecord{
		SequenceNum: seqNum,
		Data:        event,
	}

	// Calculate checksum (simplified - real impl would checksum encoded bytes)
	record.Checksum = crc32.ChecksumIEEE([]byte(fmt.Sprintf("%v", event)))

	// Encode the record; gob's own framing delimits records, no separate
	// length prefix is written.
	// In production, we'd write: [length][type][data][checksum]
	if err := l.encoder.Encode(record); err != nil {
		return 0, fmt.Errorf("failed to encode event: %w", err)
	}

	// Flush the gzip stream first (if compressing) so its frame reaches the
	// bufio writer, then flush that to the file.
	if l.gzWriter != nil {
		if err := l.gzWriter.Flush(); err != nil {
			return 0, fmt.Errorf("failed to flush gzip stream: %w", err)
		}
	}
	if err := l.writer.Flush(); err != nil {
		return 0, fmt.Errorf("failed to flush: %w", err)
	}

	// Sync to disk if in sync mode
	if l.syncMode {
		if err := l.file.Sync(); err != nil {
			return 0, fmt.Errorf("failed to sync: %w", err)
		}
	}

	return seqNum, nil
}

// Replay reads all events and calls the handler for each.
// Used to rebuild state after restart.
func (l *EventLog) Replay(handler func(seqNum uint64, event interface{}) error) error {
	// Open a separate handle for reading
	reader, decoder, err := l.openReader()
	if err != nil {
		if os.IsNotExist(err) {
			return nil // Empty log
		}
		return fmt.Errorf("failed to open for replay: %w", err)
	}
	defer reader.Close()

	var lastSeq uint64

	for {
		var record eventRecord
		if err := decoder.Decode(&record); err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("failed to decode event: %w", err)
		}

		// Check for gaps
		if lastSeq > 0 && record.SequenceNum != lastSeq+1 {
			return fmt.Errorf("sequence gap detected: expected %d, got %d",
				lastSeq+1, record.SequenceNum)
		}
		lastSeq = record.SequenceNum

		// Verify checksum (simplified)
		expectedChecksum := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%v", record.Data)))
		if record.Checksum != expectedChecksum {
			return fmt.Errorf("checksum mismatch at sequence %d", record.SequenceNum)
		}

		if err := handler(record.SequenceNum, record.Data); err != nil {
			return fmt.Errorf("handler error at sequence %d: %w", record.SequenceNum, err)
		}
	}

	return nil
}

// recover reads the log to find the last sequence number.
func (l *EventLog) recover() error {
	reader, decoder, err := l.openReader()
	if err != nil {
		if os.IsNotExist(err) {
			return nil // New log
		}
		return err
	}
	defer reader.Close()

	for {
		var record eventRecord
		if err := decoder.Decode(&record); err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		l.sequenceNum = record.SequenceNum
	}

	return nil
}

// GetLastSequence returns the last sequence number.
func (l *EventLog) GetLastSequence() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sequenceNum
}

// Sync forces a flush to disk.
func (l *EventLog) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.gzWriter != nil {
		if err := l.gzWriter.Flush(); err != nil {
			return err
		}
	}
	if err := l.writer.Flush(); err != nil {
		return err
	}
	return l.file.Sync()
}

// Close closes the event log.
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.gzWriter != nil {
		if err := l.gzWriter.Close(); err != nil {
			return err
		}
	}
	if err := l.writer.Flush(); err != nil {
		return err
	}
	return l.file.Close()
}

