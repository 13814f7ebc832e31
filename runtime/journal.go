package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/pithecene-io/ghostwriter/completion"
	"github.com/pithecene-io/ghostwriter/lode"
	"github.com/pithecene-io/ghostwriter/log"
	"github.com/pithecene-io/ghostwriter/policy"
	"github.com/pithecene-io/ghostwriter/types"
)

// journal turns coordinator events into journal records and hands them to
// the policy. Writes are best-effort: a failure is logged and counted, and
// the run carries on.
type journal struct {
	ctx    context.Context
	policy policy.Policy
	meta   *types.RunMeta
	logger *log.Logger

	mu     sync.Mutex
	seq    int64
	errors int64
}

func newJournal(ctx context.Context, pol policy.Policy, meta *types.RunMeta, logger *log.Logger) *journal {
	return &journal{ctx: ctx, policy: pol, meta: meta, logger: logger}
}

// observe is registered as a coordinator observer.
// run_completed and run_failed are covered by the summary record.
func (j *journal) observe(e completion.Event) {
	if e.Type == completion.EventRunCompleted || e.Type == completion.EventRunFailed {
		return
	}
	rec := &types.JournalRecord{
		RecordKind: types.RecordKindStep,
		Ts:         e.At.UTC().Format(time.RFC3339Nano),
		Event:      string(e.Type),
		StepIndex:  e.StepIndex,
		Start:      e.Range.Start,
		End:        e.Range.End,
		TxHash:     e.Receipt.TxHash,
		Applied:    e.Receipt.Applied,
		Progress:   e.State.Progress,
		Status:     string(e.State.Status),
	}
	if e.Err != nil {
		rec.Error = e.Err.Error()
	}
	if e.Type == completion.EventRunStarted {
		rec.Payload = map[string]any{
			"total_slots":    e.Plan.TotalSlots,
			"max_batch_size": e.Plan.MaxBatchSize,
			"batches":        e.Plan.BatchCount(),
		}
	}
	j.write(rec)
}

// write stamps lineage and sequence onto rec and ingests it.
func (j *journal) write(rec *types.JournalRecord) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.seq++
	rec.Seq = j.seq
	rec.RunID = j.meta.RunID
	rec.StoryID = j.meta.StoryID
	rec.Attempt = j.meta.Attempt
	rec.ParentRunID = j.meta.ParentRunID
	if rec.Ts == "" {
		rec.Ts = time.Now().UTC().Format(time.RFC3339Nano)
	}

	if err := j.policy.Ingest(j.ctx, rec); err != nil {
		j.errors++
		j.logger.Warn("journal write failed (best effort)", map[string]any{
			"record_kind": string(rec.RecordKind),
			"event":       rec.Event,
			"seq":         rec.Seq,
			"storage":     lode.Class(err),
			"retryable":   lode.Retryable(err),
			"error":       err.Error(),
		})
	}
}

func (j *journal) countError() {
	j.mu.Lock()
	j.errors++
	j.mu.Unlock()
}

func (j *journal) errorCount() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.errors
}
