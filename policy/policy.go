// Package policy controls how completion journal records reach storage.
//
// A run emits one journal record per coordinator transition plus a summary
// and a metrics record at the end. The journal is an audit trail: a policy
// failure is reported and counted by the runtime but never changes the
// outcome of the completion run itself.
package policy

import (
	"context"
	"sync"

	"github.com/pithecene-io/ghostwriter/types"
)

// Policy defines the journal policy interface.
type Policy interface {
	// Ingest handles one journal record.
	// May drop droppable records (see IsDroppable) under buffer pressure.
	Ingest(ctx context.Context, record *types.JournalRecord) error

	// Flush writes any buffered records.
	// Called at run end and on shutdown.
	Flush(ctx context.Context) error

	// Close cleans up policy resources.
	Close() error

	// Stats returns a consistent point-in-time snapshot of policy counters.
	Stats() Stats
}

// Stats represents policy observability counters.
type Stats struct {
	// TotalRecords is the total number of records received.
	TotalRecords int64 `json:"total_records"`
	// RecordsPersisted is the number of records written to the sink.
	RecordsPersisted int64 `json:"records_persisted"`
	// RecordsDropped is the number of records dropped.
	RecordsDropped int64 `json:"records_dropped"`
	// DroppedByKind maps record kinds to drop counts.
	DroppedByKind map[types.RecordKind]int64 `json:"dropped_by_kind,omitempty"`
	// BufferedRecords is the number of records currently buffered.
	BufferedRecords int64 `json:"buffered_records"`
	// FlushCount is the number of flush operations.
	FlushCount int64 `json:"flush_count"`
	// Errors is the count of sink errors encountered.
	Errors int64 `json:"errors"`
}

// IsDroppable reports whether a record may be dropped under buffer pressure.
// Only step records for replayed batches (no ledger change) qualify; every
// other record is part of the audit trail.
func IsDroppable(record *types.JournalRecord) bool {
	return record.RecordKind == types.RecordKindStep &&
		record.Event == "batch_committed" &&
		!record.Applied
}

// statsRecorder is an internal helper for thread-safe stats management.
//
// Lock discipline:
//   - StrictPolicy uses the locking methods (incTotal, snapshot, etc.)
//   - BufferedPolicy uses the Locked methods only while holding
//     BufferedPolicy.mu, keeping buffer state and counters consistent.
type statsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

func newStatsRecorder() *statsRecorder {
	return &statsRecorder{
		stats: Stats{
			DroppedByKind: make(map[types.RecordKind]int64),
		},
	}
}

func (r *statsRecorder) incTotal() {
	r.mu.Lock()
	r.stats.TotalRecords++
	r.mu.Unlock()
}

func (r *statsRecorder) incPersisted(n int64) {
	r.mu.Lock()
	r.stats.RecordsPersisted += n
	r.mu.Unlock()
}

func (r *statsRecorder) incErrors() {
	r.mu.Lock()
	r.stats.Errors++
	r.mu.Unlock()
}

func (r *statsRecorder) incFlush() {
	r.mu.Lock()
	r.stats.FlushCount++
	r.mu.Unlock()
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyLocked()
}

// --- Locked methods for BufferedPolicy ---
// Caller must hold BufferedPolicy.mu.

func (r *statsRecorder) incTotalLocked() {
	r.stats.TotalRecords++
}

func (r *statsRecorder) incPersistedLocked(n int64) {
	r.stats.RecordsPersisted += n
}

func (r *statsRecorder) incDroppedLocked(kind types.RecordKind) {
	r.stats.RecordsDropped++
	r.stats.DroppedByKind[kind]++
}

func (r *statsRecorder) incErrorsLocked() {
	r.stats.Errors++
}

func (r *statsRecorder) incFlushLocked() {
	r.stats.FlushCount++
}

// snapshotLocked returns a snapshot with the given buffer occupancy.
func (r *statsRecorder) snapshotLocked(buffered int64) Stats {
	s := r.copyLocked()
	s.BufferedRecords = buffered
	return s
}

func (r *statsRecorder) copyLocked() Stats {
	s := r.stats
	s.DroppedByKind = make(map[types.RecordKind]int64, len(r.stats.DroppedByKind))
	for k, v := range r.stats.DroppedByKind {
		s.DroppedByKind[k] = v
	}
	return s
}
