package lode

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/ghostwriter/types"
)

// sharedFactory returns a StoreFactory that always returns the given store,
// letting write and read datasets share the same in-memory state.
func sharedFactory(store lode.Store) lode.StoreFactory {
	return func() (lode.Store, error) { return store, nil }
}

func testConfig(storyID, runID string) Config {
	return Config{
		Dataset: "ghostwriter",
		StoryID: storyID,
		Day:     DeriveDay(time.Date(2026, 10, 17, 23, 30, 0, 0, time.FixedZone("X", -3*3600))),
		RunID:   runID,
	}
}

func runRecords(storyID, runID string) []*types.JournalRecord {
	return []*types.JournalRecord{
		{RecordKind: types.RecordKindStep, Seq: 1, RunID: runID, StoryID: types.StoryID(storyID), Attempt: 1, Event: "run_started", Ts: "2026-10-17T12:00:00Z"},
		{RecordKind: types.RecordKindStep, Seq: 2, RunID: runID, StoryID: types.StoryID(storyID), Attempt: 1, Event: "batch_committed", StepIndex: 0, Start: 1, End: 50, TxHash: "0xaa", Applied: true, Progress: 50, Ts: "2026-10-17T12:00:01Z"},
		{RecordKind: types.RecordKindStep, Seq: 3, RunID: runID, StoryID: types.StoryID(storyID), Attempt: 1, Event: "finalized", StepIndex: 1, TxHash: "0xbb", Applied: true, Progress: 100, Ts: "2026-10-17T12:00:02Z"},
		{RecordKind: types.RecordKindRunSummary, Seq: 4, RunID: runID, StoryID: types.StoryID(storyID), Attempt: 1, Status: "completed", Progress: 100, Ts: "2026-10-17T12:00:02Z", Payload: map[string]any{"total_slots": float64(50)}},
	}
}

func TestDeriveDay_UsesUTC(t *testing.T) {
	day := DeriveDay(time.Date(2026, 10, 17, 23, 30, 0, 0, time.FixedZone("X", -3*3600)))
	if day != "2026-10-18" {
		t.Errorf("DeriveDay() = %q, want 2026-10-18", day)
	}
}

func TestNewLodeClient_RequiresPartitionKeys(t *testing.T) {
	_, err := NewLodeClientWithFactory(Config{StoryID: "s"}, lode.NewMemoryFactory())
	if err == nil {
		t.Fatal("expected error for missing run_id and day")
	}
}

func TestLodeClient_WriteAndQueryHistory(t *testing.T) {
	store := lode.NewMemory()
	factory := sharedFactory(store)

	client, err := NewLodeClientWithFactory(testConfig("story-1", "run-1"), factory)
	if err != nil {
		t.Fatalf("NewLodeClientWithFactory failed: %v", err)
	}

	want := runRecords("story-1", "run-1")
	if err := client.WriteRecords(t.Context(), want); err != nil {
		t.Fatalf("WriteRecords failed: %v", err)
	}

	ds, err := NewReadDataset("ghostwriter", factory)
	if err != nil {
		t.Fatalf("NewReadDataset failed: %v", err)
	}

	got, err := QueryHistory(t.Context(), ds, "story-1", "")
	if err != nil {
		t.Fatalf("QueryHistory failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestQueryHistory_FiltersStoryAndRun(t *testing.T) {
	store := lode.NewMemory()
	factory := sharedFactory(store)

	for _, w := range []struct{ story, run string }{
		{"story-1", "run-1"},
		{"story-1", "run-10"},
		{"story-2", "run-2"},
	} {
		client, err := NewLodeClientWithFactory(testConfig(w.story, w.run), factory)
		if err != nil {
			t.Fatalf("NewLodeClientWithFactory failed: %v", err)
		}
		if err := client.WriteRecords(t.Context(), runRecords(w.story, w.run)); err != nil {
			t.Fatalf("WriteRecords failed: %v", err)
		}
	}

	ds, err := NewReadDataset("", factory)
	if err != nil {
		t.Fatalf("NewReadDataset failed: %v", err)
	}

	all, err := QueryHistory(t.Context(), ds, "story-1", "")
	if err != nil {
		t.Fatalf("QueryHistory failed: %v", err)
	}
	if len(all) != 8 {
		t.Errorf("expected 8 records for story-1, got %d", len(all))
	}

	one, err := QueryHistory(t.Context(), ds, "story-1", "run-1")
	if err != nil {
		t.Fatalf("QueryHistory failed: %v", err)
	}
	if len(one) != 4 {
		t.Fatalf("expected 4 records for run-1, got %d", len(one))
	}
	for _, rec := range one {
		if rec.RunID != "run-1" {
			t.Errorf("unexpected run %q in filtered history", rec.RunID)
		}
	}

	none, err := QueryHistory(t.Context(), ds, "story-3", "")
	if err != nil {
		t.Fatalf("QueryHistory failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no records for unknown story, got %d", len(none))
	}
}

func TestQueryHistory_OrdersRunsThenSeq(t *testing.T) {
	store := lode.NewMemory()
	factory := sharedFactory(store)

	for _, run := range []string{"run-2", "run-1"} {
		client, err := NewLodeClientWithFactory(testConfig("story-1", run), factory)
		if err != nil {
			t.Fatalf("NewLodeClientWithFactory failed: %v", err)
		}
		recs := runRecords("story-1", run)
		// Summary first, steps reversed.
		shuffled := []*types.JournalRecord{recs[3], recs[2], recs[1], recs[0]}
		if err := client.WriteRecords(t.Context(), shuffled); err != nil {
			t.Fatalf("WriteRecords failed: %v", err)
		}
	}

	ds, err := NewReadDataset("", factory)
	if err != nil {
		t.Fatalf("NewReadDataset failed: %v", err)
	}
	got, err := QueryHistory(t.Context(), ds, "story-1", "")
	if err != nil {
		t.Fatalf("QueryHistory failed: %v", err)
	}
	if len(got) != 8 {
		t.Fatalf("expected 8 records, got %d", len(got))
	}

	for i, rec := range got {
		if rec.RunID != got[i-i%4].RunID {
			t.Errorf("record %d belongs to %s, runs must not interleave", i, rec.RunID)
		}
		if rec.Seq != int64(i%4+1) {
			t.Errorf("record %d seq = %d, want %d", i, rec.Seq, i%4+1)
		}
	}
	if got[0].RunID == got[4].RunID {
		t.Errorf("expected both runs, got %s twice", got[0].RunID)
	}
	for _, i := range []int{3, 7} {
		if got[i].RecordKind != types.RecordKindRunSummary {
			t.Errorf("record %d kind = %s, run summary should close its run", i, got[i].RecordKind)
		}
	}
}

func TestQueryLatestMetrics(t *testing.T) {
	store := lode.NewMemory()
	factory := sharedFactory(store)

	for i, run := range []string{"run-1", "run-2"} {
		client, err := NewLodeClientWithFactory(testConfig("story-1", run), factory)
		if err != nil {
			t.Fatalf("NewLodeClientWithFactory failed: %v", err)
		}
		rec := &types.JournalRecord{
			RecordKind: types.RecordKindMetrics,
			Seq:        1,
			RunID:      run,
			StoryID:    "story-1",
			Attempt:    i + 1,
			Payload:    map[string]any{"batches_committed": float64(i + 3)},
		}
		if err := client.WriteRecords(t.Context(), []*types.JournalRecord{rec}); err != nil {
			t.Fatalf("WriteRecords failed: %v", err)
		}
	}

	ds, err := NewReadDataset("ghostwriter", factory)
	if err != nil {
		t.Fatalf("NewReadDataset failed: %v", err)
	}

	latest, err := QueryLatestMetrics(t.Context(), ds, "story-1", "")
	if err != nil {
		t.Fatalf("QueryLatestMetrics failed: %v", err)
	}
	if latest.RunID != "run-2" {
		t.Errorf("expected latest run-2, got %q", latest.RunID)
	}
	if latest.Payload["batches_committed"] != float64(4) {
		t.Errorf("unexpected payload: %v", latest.Payload)
	}

	first, err := QueryLatestMetrics(t.Context(), ds, "story-1", "run-1")
	if err != nil {
		t.Fatalf("QueryLatestMetrics failed: %v", err)
	}
	if first.Attempt != 1 {
		t.Errorf("expected attempt 1, got %d", first.Attempt)
	}

	if _, err := QueryLatestMetrics(t.Context(), ds, "story-2", ""); !errors.Is(err, ErrNoMetricsFound) {
		t.Errorf("expected ErrNoMetricsFound, got %v", err)
	}
}

func TestLodeClient_FSRoundTrip(t *testing.T) {
	root := t.TempDir()

	client, err := NewLodeClient(testConfig("story-fs", "run-fs"), root)
	if err != nil {
		t.Fatalf("NewLodeClient failed: %v", err)
	}
	if err := client.WriteRecords(t.Context(), runRecords("story-fs", "run-fs")); err != nil {
		t.Fatalf("WriteRecords failed: %v", err)
	}

	ds, err := NewReadDatasetFS("ghostwriter", root)
	if err != nil {
		t.Fatalf("NewReadDatasetFS failed: %v", err)
	}
	got, err := QueryHistory(t.Context(), ds, "story-fs", "run-fs")
	if err != nil {
		t.Fatalf("QueryHistory failed: %v", err)
	}
	if len(got) != 4 {
		t.Errorf("expected 4 records from fs, got %d", len(got))
	}
}

func TestLodeClient_EmptyBatch(t *testing.T) {
	client, err := NewLodeClientWithFactory(testConfig("s", "r"), lode.NewMemoryFactory())
	if err != nil {
		t.Fatalf("NewLodeClientWithFactory failed: %v", err)
	}
	if err := client.WriteRecords(t.Context(), nil); err != nil {
		t.Errorf("empty batch should be a no-op, got %v", err)
	}
}

func TestMatchesPartitionValue(t *testing.T) {
	tests := []struct {
		path  string
		key   string
		value string
		want  bool
	}{
		{"ghostwriter/story_id=s/day=d/run_id=run-1/record_kind=step/x.jsonl", "run_id", "run-1", true},
		{"ghostwriter/story_id=s/day=d/run_id=run-10/record_kind=step/x.jsonl", "run_id", "run-1", false},
		{"ghostwriter/story_id=s/day=d/run_id=r/record_kind=metrics/x.jsonl", "record_kind", "metrics", true},
	}
	for _, tt := range tests {
		if got := matchesPartitionValue(tt.path, tt.key, tt.value); got != tt.want {
			t.Errorf("matchesPartitionValue(%q, %q, %q) = %v, want %v", tt.path, tt.key, tt.value, got, tt.want)
		}
	}
}

func TestParseS3Path(t *testing.T) {
	tests := []struct {
		in, bucket, prefix string
	}{
		{"bucket", "bucket", ""},
		{"bucket/journal", "bucket", "journal"},
		{"bucket/a/b", "bucket", "a/b"},
		{"s3://bucket/journal/", "bucket", "journal"},
	}
	for _, tt := range tests {
		b, p := ParseS3Path(tt.in)
		if b != tt.bucket || p != tt.prefix {
			t.Errorf("ParseS3Path(%q) = (%q, %q), want (%q, %q)", tt.in, b, p, tt.bucket, tt.prefix)
		}
	}
}

func TestS3Config_Validate(t *testing.T) {
	cfg := S3Config{}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing bucket")
	}
	for _, bad := range []string{"b", "Upper-Case", "under_score", strings.Repeat("a", 64)} {
		cfg.Bucket = bad
		if err := cfg.Validate(); err == nil {
			t.Errorf("expected error for bucket %q", bad)
		}
	}
	cfg.Bucket = "ghostwriter-journal.v2"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestS3Config_URI(t *testing.T) {
	tests := []struct {
		cfg  S3Config
		want string
	}{
		{S3Config{Bucket: "bucket"}, "s3://bucket"},
		{S3Config{Bucket: "bucket", Prefix: "runs/gw"}, "s3://bucket/runs/gw"},
	}
	for _, tt := range tests {
		if got := tt.cfg.URI(); got != tt.want {
			t.Errorf("URI() = %q, want %q", got, tt.want)
		}
	}
}
