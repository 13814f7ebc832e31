package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/pithecene-io/ghostwriter/gateway/memory"
	"github.com/pithecene-io/ghostwriter/lode"
	"github.com/pithecene-io/ghostwriter/log"
	"github.com/pithecene-io/ghostwriter/policy"
	"github.com/pithecene-io/ghostwriter/runtime"
	"github.com/pithecene-io/ghostwriter/types"
)

func TestServerHistory_NotConfigured(t *testing.T) {
	srv := newTestServer(t, memory.New())

	rec := do(t, srv, http.MethodGet, "/stories/s1/history", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestServerHistory_ReadsJournal(t *testing.T) {
	gw := memory.New()
	gw.RegisterStory("s1", 60)

	factory := lode.NewSharedMemoryFactory()
	ds, err := lode.NewReadDataset("", factory)
	if err != nil {
		t.Fatalf("NewReadDataset: %v", err)
	}

	srv, err := New(Config{
		Logger:  log.Nop(),
		Journal: ds,
		NewRunConfig: func(meta *types.RunMeta, _ int) (*runtime.RunConfig, error) {
			client, err := lode.NewLodeClientWithFactory(lode.Config{
				StoryID: string(meta.StoryID),
				Day:     lode.DeriveDay(time.Now()),
				RunID:   meta.RunID,
			}, factory)
			if err != nil {
				return nil, err
			}
			return &runtime.RunConfig{
				Gateway: gw,
				Policy:  policy.NewStrictPolicy(lode.NewSink(client)),
				Logger:  log.Nop(),
			}, nil
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv.newRunID = func() string { return "run-1" }
	t.Cleanup(srv.Close)

	rec := do(t, srv, http.MethodGet, "/stories/s1/history", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 before any run, got %d", rec.Code)
	}
	if records := decode[[]types.JournalRecord](t, rec); len(records) != 0 {
		t.Errorf("expected empty history, got %d records", len(records))
	}

	if rec := do(t, srv, http.MethodPost, "/stories/s1/completion", `{"total_slots":60}`); rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	srv.Wait()

	rec = do(t, srv, http.MethodGet, "/stories/s1/history?run_id=run-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	records := decode[[]types.JournalRecord](t, rec)

	kinds := map[types.RecordKind]int{}
	for _, r := range records {
		if r.RunID != "run-1" || r.StoryID != "s1" {
			t.Errorf("record from wrong run: %+v", r)
		}
		kinds[r.RecordKind]++
	}
	if kinds[types.RecordKindRunSummary] != 1 {
		t.Errorf("expected one run_summary record, got %d", kinds[types.RecordKindRunSummary])
	}
	if kinds[types.RecordKindMetrics] != 1 {
		t.Errorf("expected one metrics record, got %d", kinds[types.RecordKindMetrics])
	}

	rec = do(t, srv, http.MethodGet, "/stories/other/history", "")
	if records := decode[[]types.JournalRecord](t, rec); len(records) != 0 {
		t.Errorf("expected no records for another story, got %d", len(records))
	}
}
