package policy_test

import (
	"errors"
	"testing"

	"github.com/pithecene-io/ghostwriter/policy"
	"github.com/pithecene-io/ghostwriter/types"
)

func stepRecord(seq int64, event string, applied bool) *types.JournalRecord {
	return &types.JournalRecord{
		RecordKind: types.RecordKindStep,
		Seq:        seq,
		RunID:      "run-1",
		StoryID:    "42",
		Attempt:    1,
		Event:      event,
		StepIndex:  int(seq),
		Applied:    applied,
	}
}

func summaryRecord(seq int64) *types.JournalRecord {
	return &types.JournalRecord{
		RecordKind: types.RecordKindRunSummary,
		Seq:        seq,
		RunID:      "run-1",
		StoryID:    "42",
		Attempt:    1,
		Payload:    map[string]any{"status": "completed"},
	}
}

func TestIsDroppable(t *testing.T) {
	tests := []struct {
		name   string
		record *types.JournalRecord
		want   bool
	}{
		{"replayed batch", stepRecord(1, "batch_committed", false), true},
		{"applied batch", stepRecord(1, "batch_committed", true), false},
		{"batch failure", stepRecord(1, "batch_failed", false), false},
		{"run started", stepRecord(1, "run_started", false), false},
		{"finalized", stepRecord(1, "finalized", false), false},
		{"summary", summaryRecord(1), false},
		{"metrics", &types.JournalRecord{RecordKind: types.RecordKindMetrics}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policy.IsDroppable(tt.record); got != tt.want {
				t.Errorf("IsDroppable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStats_SnapshotIsIndependent(t *testing.T) {
	sink := policy.NewStubSink()
	sink.SetError(errors.New("unavailable"))
	pol, err := policy.NewBufferedPolicy(sink, policy.BufferedConfig{MaxBufferRecords: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_ = pol.Ingest(t.Context(), stepRecord(1, "batch_committed", true))
	_ = pol.Ingest(t.Context(), stepRecord(2, "batch_committed", false))

	stats := pol.Stats()
	stats.DroppedByKind[types.RecordKindStep] = 99

	if got := pol.Stats().DroppedByKind[types.RecordKindStep]; got != 1 {
		t.Errorf("expected snapshot isolation, got DroppedByKind[step]=%d", got)
	}
}
