package policy

import (
	"context"
	"errors"
	"sync"

	"github.com/pithecene-io/ghostwriter/log"
	"github.com/pithecene-io/ghostwriter/types"
)

// BufferedConfig configures a BufferedPolicy.
type BufferedConfig struct {
	// MaxBufferRecords is the maximum number of records to buffer.
	MaxBufferRecords int

	// Logger is an optional logger for policy observability.
	// If nil, no logging is emitted.
	Logger *log.Logger
}

// DefaultBufferedConfig returns sensible defaults for buffered policy.
func DefaultBufferedConfig() BufferedConfig {
	return BufferedConfig{MaxBufferRecords: 1000}
}

// ErrBufferFull is returned when the buffer is full and the record is non-droppable.
var ErrBufferFull = errors.New("buffer full: cannot accept non-droppable record")

// ErrInvalidConfig is returned when BufferedConfig is invalid.
var ErrInvalidConfig = errors.New("invalid config: MaxBufferRecords must be positive")

// BufferedPolicy batches journal records and writes them on Flush and
// whenever the buffer reaches its threshold.
//
//   - Bounded buffer (MaxBufferRecords), flushed when full
//   - May drop: step records for replayed batches (IsDroppable)
//   - Must NOT drop: everything else
//   - Flush is at-least-once: the buffer is kept intact on sink failure,
//     so a retried flush may write records twice but never loses one
//
// Records are written in ingestion order.
type BufferedPolicy struct {
	sink   Sink
	config BufferedConfig
	logger *log.Logger

	mu     sync.Mutex // guards buffer and stats
	buffer []*types.JournalRecord
	stats  *statsRecorder
}

// NewBufferedPolicy creates a new buffered policy.
func NewBufferedPolicy(sink Sink, config BufferedConfig) (*BufferedPolicy, error) {
	if config.MaxBufferRecords <= 0 {
		return nil, ErrInvalidConfig
	}
	return &BufferedPolicy{
		sink:   sink,
		config: config,
		logger: config.Logger,
		buffer: make([]*types.JournalRecord, 0, min(config.MaxBufferRecords, 256)),
		stats:  newStatsRecorder(),
	}, nil
}

// Ingest buffers the record. A full buffer is flushed to the sink before
// the record is added, so runs longer than MaxBufferRecords keep every
// record.
//
// Drop strategy when the threshold flush fails:
//   - If the incoming record is droppable: drop it
//   - If it is not and the buffer holds a droppable record: evict the oldest one
//   - Otherwise: return ErrBufferFull
func (p *BufferedPolicy) Ingest(ctx context.Context, record *types.JournalRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.incTotalLocked()

	if len(p.buffer) >= p.config.MaxBufferRecords {
		p.flushFullLocked(ctx)
	}
	if len(p.buffer) < p.config.MaxBufferRecords {
		p.buffer = append(p.buffer, record)
		return nil
	}

	if IsDroppable(record) {
		p.stats.incDroppedLocked(record.RecordKind)
		p.logDrop(record, "buffer_full")
		return nil
	}

	if p.dropOldestDroppable() {
		p.buffer = append(p.buffer, record)
		return nil
	}

	p.stats.incErrorsLocked()
	p.logBufferOverflow(record)
	return ErrBufferFull
}

// flushFullLocked writes the full buffer to the sink. On failure the buffer
// is left as it was. Caller must hold mu.
func (p *BufferedPolicy) flushFullLocked(ctx context.Context) {
	p.stats.incFlushLocked()
	if err := p.sink.WriteRecords(ctx, p.buffer); err != nil {
		p.stats.incErrorsLocked()
		p.logFlushFailure(len(p.buffer), err)
		return
	}
	p.stats.incPersistedLocked(int64(len(p.buffer)))
	p.buffer = make([]*types.JournalRecord, 0, cap(p.buffer))
}

// Flush writes all buffered records to the sink in one batch.
// On failure the records are put back ahead of anything ingested meanwhile.
func (p *BufferedPolicy) Flush(ctx context.Context) error {
	p.mu.Lock()
	p.stats.incFlushLocked()
	records := p.buffer
	p.buffer = make([]*types.JournalRecord, 0, cap(records))
	p.mu.Unlock()

	if len(records) == 0 {
		return nil
	}

	if err := p.sink.WriteRecords(ctx, records); err != nil {
		p.mu.Lock()
		p.stats.incErrorsLocked()
		p.buffer = append(records, p.buffer...)
		p.mu.Unlock()
		p.logFlushFailure(len(records), err)
		return err
	}

	p.mu.Lock()
	p.stats.incPersistedLocked(int64(len(records)))
	p.mu.Unlock()
	return nil
}

// Close flushes remaining records and closes the sink.
func (p *BufferedPolicy) Close() error {
	flushErr := p.Flush(context.Background())
	closeErr := p.sink.Close()
	return errors.Join(flushErr, closeErr)
}

// Stats returns an atomic snapshot of counters and buffer occupancy.
func (p *BufferedPolicy) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats.snapshotLocked(int64(len(p.buffer)))
}

// dropOldestDroppable removes the oldest droppable record from the buffer.
// Caller must hold mu.
func (p *BufferedPolicy) dropOldestDroppable() bool {
	for i, rec := range p.buffer {
		if IsDroppable(rec) {
			p.buffer = append(p.buffer[:i], p.buffer[i+1:]...)
			p.stats.incDroppedLocked(rec.RecordKind)
			p.logDrop(rec, "evicted_for_non_droppable")
			return true
		}
	}
	return false
}

func (p *BufferedPolicy) logDrop(record *types.JournalRecord, reason string) {
	if p.logger == nil {
		return
	}
	p.logger.Warn("journal record dropped", map[string]any{
		"record_kind": string(record.RecordKind),
		"event":       record.Event,
		"step_index":  record.StepIndex,
		"reason":      reason,
		"policy":      "buffered",
	})
}

func (p *BufferedPolicy) logBufferOverflow(record *types.JournalRecord) {
	if p.logger == nil {
		return
	}
	p.logger.Error("journal buffer overflow", map[string]any{
		"record_kind": string(record.RecordKind),
		"event":       record.Event,
		"policy":      "buffered",
	})
}

func (p *BufferedPolicy) logFlushFailure(n int, err error) {
	if p.logger == nil {
		return
	}
	p.logger.Error("journal flush failed", map[string]any{
		"records": n,
		"error":   err.Error(),
		"policy":  "buffered",
	})
}
