package metrics

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	c.IncRunStarted()
	c.RecordBatchCommitted(50, true)
	c.IncFinalizeFailure()
	c.AbsorbPolicyStats(1, 1, 0, nil)

	if diff := cmp.Diff(Snapshot{}, c.Snapshot()); diff != "" {
		t.Errorf("nil collector snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestCollector_CountsCompletionRun(t *testing.T) {
	c := NewCollector(Dimensions{
		Gateway:        "memory",
		Policy:         "strict",
		StorageBackend: "fs",
		StoryID:        "story-1",
		RunID:          "run-1",
	})

	c.IncRunStarted()
	c.RecordBatchCommitted(50, true)
	c.RecordBatchCommitted(50, false)
	c.RecordBatchCommitted(20, true)
	c.IncFinalizeSuccess()
	c.IncRunCompleted()
	c.IncJournalWriteSuccess()
	c.IncJournalWriteFailure()
	c.IncNotifySuccess()
	c.AbsorbPolicyStats(7, 6, 1, map[string]int64{"step": 1})

	want := Snapshot{
		RunsStarted:          1,
		RunsCompleted:        1,
		BatchesCommitted:     3,
		BatchesNoop:          1,
		SlotsProcessed:       120,
		FinalizeSuccess:      1,
		JournalRecords:       7,
		JournalPersisted:     6,
		JournalDropped:       1,
		JournalDroppedByKind: map[string]int64{"step": 1},
		JournalWriteSuccess:  1,
		JournalWriteFailure:  1,
		NotifySuccess:        1,
		Gateway:              "memory",
		Policy:               "strict",
		StorageBackend:       "fs",
		StoryID:              "story-1",
		RunID:                "run-1",
	}
	if diff := cmp.Diff(want, c.Snapshot()); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestCollector_AbsorbOverwrites(t *testing.T) {
	c := NewCollector(Dimensions{})
	c.AbsorbPolicyStats(5, 5, 0, nil)
	c.AbsorbPolicyStats(8, 6, 2, map[string]int64{"step": 2})

	s := c.Snapshot()
	if s.JournalRecords != 8 || s.JournalPersisted != 6 || s.JournalDropped != 2 {
		t.Errorf("expected second absorb to win, got %+v", s)
	}
}

func TestCollector_SnapshotIsolation(t *testing.T) {
	c := NewCollector(Dimensions{})
	c.AbsorbPolicyStats(1, 0, 1, map[string]int64{"step": 1})

	s := c.Snapshot()
	s.JournalDroppedByKind["step"] = 100

	if got := c.Snapshot().JournalDroppedByKind["step"]; got != 1 {
		t.Errorf("snapshot mutation leaked into collector: %d", got)
	}
}

func TestCollector_Concurrent(t *testing.T) {
	c := NewCollector(Dimensions{})

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				c.RecordBatchCommitted(1, true)
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	if s.BatchesCommitted != 1000 || s.SlotsProcessed != 1000 {
		t.Errorf("expected 1000 batches and slots, got %d/%d", s.BatchesCommitted, s.SlotsProcessed)
	}
}

func TestSnapshot_Map(t *testing.T) {
	c := NewCollector(Dimensions{Gateway: "relay", Policy: "buffered", StorageBackend: "s3"})
	c.RecordBatchCommitted(10, true)

	m := c.Snapshot().Map()
	if m["batches_committed"] != int64(1) {
		t.Errorf("batches_committed = %v", m["batches_committed"])
	}
	if m["gateway"] != "relay" || m["storage_backend"] != "s3" {
		t.Errorf("dimensions missing from map: %v", m)
	}
}
