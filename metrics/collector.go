// Package metrics collects per-run completion metrics.
//
// The Collector accumulates counters during a single run. It is a leaf package
// with no internal dependencies. Journal policy counters are absorbed from
// policy.Stats at run end rather than recorded live, avoiding double-counting.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of a run's metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Run lifecycle
	RunsStarted   int64 `json:"runs_started"`
	RunsCompleted int64 `json:"runs_completed"`
	RunsFailed    int64 `json:"runs_failed"`

	// Gateway steps
	BatchesCommitted int64 `json:"batches_committed"`
	BatchesNoop      int64 `json:"batches_noop"`
	BatchesFailed    int64 `json:"batches_failed"`
	SlotsProcessed   int64 `json:"slots_processed"`
	FinalizeSuccess  int64 `json:"finalize_success"`
	FinalizeFailure  int64 `json:"finalize_failure"`

	// Journal (records absorbed from policy.Stats at run end)
	JournalRecords       int64            `json:"journal_records"`
	JournalPersisted     int64            `json:"journal_persisted"`
	JournalDropped       int64            `json:"journal_dropped"`
	JournalDroppedByKind map[string]int64 `json:"journal_dropped_by_kind,omitempty"`
	JournalWriteSuccess  int64            `json:"journal_write_success"`
	JournalWriteFailure  int64            `json:"journal_write_failure"`

	// Notification
	NotifySuccess int64 `json:"notify_success"`
	NotifyFailure int64 `json:"notify_failure"`

	// Dimensions (informational, set at construction)
	Gateway        string `json:"gateway"`
	Policy         string `json:"policy"`
	StorageBackend string `json:"storage_backend"`
	StoryID        string `json:"story_id,omitempty"`
	RunID          string `json:"run_id,omitempty"`
}

// Dimensions labels a Collector.
type Dimensions struct {
	Gateway        string
	Policy         string
	StorageBackend string
	StoryID        string
	RunID          string
}

// Collector accumulates metrics during a single run.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type Collector struct {
	mu   sync.Mutex
	snap Snapshot
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(dims Dimensions) *Collector {
	return &Collector{
		snap: Snapshot{
			JournalDroppedByKind: make(map[string]int64),
			Gateway:              dims.Gateway,
			Policy:               dims.Policy,
			StorageBackend:       dims.StorageBackend,
			StoryID:              dims.StoryID,
			RunID:                dims.RunID,
		},
	}
}

func (c *Collector) add(field func(*Snapshot) *int64, n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	*field(&c.snap) += n
	c.mu.Unlock()
}

// --- Run lifecycle ---

// IncRunStarted records a run start.
func (c *Collector) IncRunStarted() {
	c.add(func(s *Snapshot) *int64 { return &s.RunsStarted }, 1)
}

// IncRunCompleted records a run that finalized its story.
func (c *Collector) IncRunCompleted() {
	c.add(func(s *Snapshot) *int64 { return &s.RunsCompleted }, 1)
}

// IncRunFailed records a run that ended in any non-completed outcome.
func (c *Collector) IncRunFailed() {
	c.add(func(s *Snapshot) *int64 { return &s.RunsFailed }, 1)
}

// --- Gateway steps ---

// RecordBatchCommitted records a committed batch of the given size.
// Replayed batches (applied=false) count as no-ops.
func (c *Collector) RecordBatchCommitted(slots int, applied bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.BatchesCommitted++
	c.snap.SlotsProcessed += int64(slots)
	if !applied {
		c.snap.BatchesNoop++
	}
}

// IncBatchFailed records a failed batch step.
func (c *Collector) IncBatchFailed() {
	c.add(func(s *Snapshot) *int64 { return &s.BatchesFailed }, 1)
}

// IncFinalizeSuccess records a successful finalize step.
func (c *Collector) IncFinalizeSuccess() {
	c.add(func(s *Snapshot) *int64 { return &s.FinalizeSuccess }, 1)
}

// IncFinalizeFailure records a failed finalize step.
func (c *Collector) IncFinalizeFailure() {
	c.add(func(s *Snapshot) *int64 { return &s.FinalizeFailure }, 1)
}

// --- Journal storage ---

// IncJournalWriteSuccess records a successful journal sink write.
func (c *Collector) IncJournalWriteSuccess() {
	c.add(func(s *Snapshot) *int64 { return &s.JournalWriteSuccess }, 1)
}

// IncJournalWriteFailure records a failed journal sink write.
func (c *Collector) IncJournalWriteFailure() {
	c.add(func(s *Snapshot) *int64 { return &s.JournalWriteFailure }, 1)
}

// --- Notification ---

// IncNotifySuccess records a delivered completion notification.
func (c *Collector) IncNotifySuccess() {
	c.add(func(s *Snapshot) *int64 { return &s.NotifySuccess }, 1)
}

// IncNotifyFailure records a notification that exhausted its retries.
func (c *Collector) IncNotifyFailure() {
	c.add(func(s *Snapshot) *int64 { return &s.NotifyFailure }, 1)
}

// AbsorbPolicyStats copies journal policy counters into the collector.
// Called once at run end. Overwrites rather than accumulates so that a
// repeated call cannot double-count.
func (c *Collector) AbsorbPolicyStats(total, persisted, dropped int64, droppedByKind map[string]int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.JournalRecords = total
	c.snap.JournalPersisted = persisted
	c.snap.JournalDropped = dropped
	c.snap.JournalDroppedByKind = make(map[string]int64, len(droppedByKind))
	for k, v := range droppedByKind {
		c.snap.JournalDroppedByKind[k] = v
	}
}

// Snapshot returns a point-in-time copy of all counters.
// A nil Collector yields the zero Snapshot.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.snap
	s.JournalDroppedByKind = make(map[string]int64, len(c.snap.JournalDroppedByKind))
	for k, v := range c.snap.JournalDroppedByKind {
		s.JournalDroppedByKind[k] = v
	}
	return s
}

// Map renders the snapshot as a generic map for journal payloads.
func (s Snapshot) Map() map[string]any {
	dropped := make(map[string]any, len(s.JournalDroppedByKind))
	for k, v := range s.JournalDroppedByKind {
		dropped[k] = v
	}
	return map[string]any{
		"runs_started":            s.RunsStarted,
		"runs_completed":          s.RunsCompleted,
		"runs_failed":             s.RunsFailed,
		"batches_committed":       s.BatchesCommitted,
		"batches_noop":            s.BatchesNoop,
		"batches_failed":          s.BatchesFailed,
		"slots_processed":         s.SlotsProcessed,
		"finalize_success":        s.FinalizeSuccess,
		"finalize_failure":        s.FinalizeFailure,
		"journal_records":         s.JournalRecords,
		"journal_persisted":       s.JournalPersisted,
		"journal_dropped":         s.JournalDropped,
		"journal_dropped_by_kind": dropped,
		"journal_write_success":   s.JournalWriteSuccess,
		"journal_write_failure":   s.JournalWriteFailure,
		"notify_success":          s.NotifySuccess,
		"notify_failure":          s.NotifyFailure,
		"gateway":                 s.Gateway,
		"policy":                  s.Policy,
		"storage_backend":         s.StorageBackend,
	}
}
