// Package runtime orchestrates a single story completion run: coordinator,
// journal, metrics and completion notification.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/ghostwriter/adapter"
	"github.com/pithecene-io/ghostwriter/completion"
	"github.com/pithecene-io/ghostwriter/lode"
	"github.com/pithecene-io/ghostwriter/log"
	"github.com/pithecene-io/ghostwriter/metrics"
	"github.com/pithecene-io/ghostwriter/policy"
	"github.com/pithecene-io/ghostwriter/types"
)

const (
	flushTimeout   = 30 * time.Second
	publishTimeout = 30 * time.Second
)

// RunConfig configures a single completion run.
type RunConfig struct {
	// RunMeta is the run identity and lineage metadata.
	RunMeta *types.RunMeta
	// TotalSlots is the story's slot count, snapshotted at plan time.
	TotalSlots int
	// BatchSize overrides the coordinator batch size. Zero uses the default.
	BatchSize int
	// Gateway performs the ledger mutations.
	Gateway completion.Gateway
	// Policy is the journal policy. If nil, the journal is disabled.
	Policy policy.Policy
	// Adapter publishes the completion notification. Optional.
	Adapter adapter.Adapter
	// Collector is the metrics collector for this run.
	// If nil, no metrics are recorded (all Collector methods are nil-safe).
	Collector *metrics.Collector
	// Logger overrides the run logger. If nil, one is built from RunMeta.
	Logger *log.Logger
	// Observer receives coordinator events after the journal. Optional.
	Observer completion.Observer
	// JournalPath is reported in the completion notification. Optional.
	JournalPath string
}

// RunResult represents the result of a completion run.
type RunResult struct {
	RunMeta     *types.RunMeta
	StoryID     types.StoryID
	Plan        types.CompletionPlan
	State       types.CompletionState
	Outcome     *types.RunOutcome
	Err         error
	FinalTxHash string
	Duration    time.Duration
	Metrics     metrics.Snapshot
	PolicyStats policy.Stats
	// JournalErrors counts records or flushes the journal failed to persist.
	JournalErrors int64
	// Notified reports whether the completion notification was delivered.
	Notified bool
}

// CompletionRun orchestrates a single completion run.
type CompletionRun struct {
	config      *RunConfig
	logger      *log.Logger
	coordinator *completion.Coordinator
	journal     *journal
	startTime   time.Time

	// Populated by the coordinator observer; only touched on the run goroutine.
	plan        types.CompletionPlan
	finalTxHash string
}

// NewCompletionRun creates a new completion run.
// Returns error if run metadata is invalid or no gateway is configured.
func NewCompletionRun(config *RunConfig) (*CompletionRun, error) {
	if config.RunMeta == nil {
		return nil, errors.New("run metadata is required")
	}
	if err := config.RunMeta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run metadata: %w", err)
	}
	if config.Gateway == nil {
		return nil, errors.New("gateway is required")
	}
	if config.Policy == nil {
		config.Policy = policy.NewNoopPolicy()
	}

	logger := config.Logger
	if logger == nil {
		logger = log.NewLogger(config.RunMeta)
	}

	r := &CompletionRun{config: config, logger: logger}

	opts := []completion.Option{
		completion.WithLogger(logger),
		completion.WithObserver(r.track),
	}
	if config.BatchSize != 0 {
		opts = append(opts, completion.WithBatchSize(config.BatchSize))
	}
	if config.Observer != nil {
		opts = append(opts, completion.WithObserver(config.Observer))
	}
	r.coordinator = completion.New(config.Gateway, opts...)
	return r, nil
}

// State returns the coordinator's current state. Safe from any goroutine.
func (r *CompletionRun) State() types.CompletionState {
	return r.coordinator.State()
}

// Planned returns the state the run enters once Execute starts: running,
// with the step count of its plan. Invalid input leaves TotalSteps at zero.
func (r *CompletionRun) Planned() types.CompletionState {
	st := types.CompletionState{
		StoryID:      r.config.RunMeta.StoryID,
		Status:       types.StatusRunning,
		IsProcessing: true,
	}
	if plan, err := completion.Plan(r.config.TotalSlots, r.coordinator.BatchSize()); err == nil {
		st.TotalSteps = plan.TotalSteps()
	}
	return st
}

// Reset returns the coordinator to idle. Fails while the run is in flight.
func (r *CompletionRun) Reset() error {
	return r.coordinator.Reset()
}

// Execute runs the completion end-to-end.
//
// Execution flow:
//  1. Drive the coordinator (journal and metrics follow its events)
//  2. Classify the outcome
//  3. Write the run summary
//  4. Publish the completion notification (completed runs only)
//  5. Flush the journal and append the metrics record
//
// Journal and notification failures are reported in the result; they never
// change the outcome.
func (r *CompletionRun) Execute(ctx context.Context) (*RunResult, error) {
	r.startTime = time.Now()
	r.journal = newJournal(context.WithoutCancel(ctx), r.config.Policy, r.config.RunMeta, r.logger)
	r.config.Collector.IncRunStarted()

	r.logger.Info("starting completion run", map[string]any{
		"total_slots": r.config.TotalSlots,
		"batch_size":  r.coordinator.BatchSize(),
	})

	state, runErr := r.coordinator.CompleteStoryFull(ctx, r.config.RunMeta.StoryID, r.config.TotalSlots)
	if errors.Is(runErr, completion.ErrRunInProgress) {
		return nil, runErr
	}
	outcome := DetermineOutcome(runErr)

	if outcome.Status == types.OutcomeCompleted {
		r.config.Collector.IncRunCompleted()
	} else {
		r.config.Collector.IncRunFailed()
	}

	r.journal.write(&types.JournalRecord{
		RecordKind: types.RecordKindRunSummary,
		Status:     string(outcome.Status),
		Error:      state.Error,
		Progress:   state.Progress,
		Payload: map[string]any{
			"message":         outcome.Message,
			"total_slots":     r.config.TotalSlots,
			"batches":         r.plan.BatchCount(),
			"completed_steps": state.CompletedSteps,
			"total_steps":     state.TotalSteps,
			"duration_ms":     time.Since(r.startTime).Milliseconds(),
		},
	})

	notified := false
	if outcome.Status == types.OutcomeCompleted && r.config.Adapter != nil {
		notified = r.publish(ctx)
	}

	r.flush(ctx)
	r.absorbPolicyStats()
	r.journal.write(&types.JournalRecord{
		RecordKind: types.RecordKindMetrics,
		Payload:    r.config.Collector.Snapshot().Map(),
	})
	r.flush(ctx)

	r.logger.Info("completion run finished", map[string]any{
		"outcome":  string(outcome.Status),
		"progress": state.Progress,
		"duration": time.Since(r.startTime).String(),
	})

	return &RunResult{
		RunMeta:       r.config.RunMeta,
		StoryID:       r.config.RunMeta.StoryID,
		Plan:          r.plan,
		State:         state,
		Outcome:       outcome,
		Err:           runErr,
		FinalTxHash:   r.finalTxHash,
		Duration:      time.Since(r.startTime),
		Metrics:       r.config.Collector.Snapshot(),
		PolicyStats:   r.config.Policy.Stats(),
		JournalErrors: r.journal.errorCount(),
		Notified:      notified,
	}, nil
}

// track feeds the journal and metrics from coordinator events.
func (r *CompletionRun) track(e completion.Event) {
	switch e.Type {
	case completion.EventRunStarted:
		r.plan = e.Plan
	case completion.EventBatchCommitted:
		r.config.Collector.RecordBatchCommitted(e.Range.Size(), e.Receipt.Applied)
	case completion.EventBatchFailed:
		r.config.Collector.IncBatchFailed()
	case completion.EventFinalized:
		r.finalTxHash = e.Receipt.TxHash
		r.config.Collector.IncFinalizeSuccess()
	case completion.EventFinalizeFailed:
		r.config.Collector.IncFinalizeFailure()
	}
	r.journal.observe(e)
}

// publish sends the story_completed notification. Best effort.
func (r *CompletionRun) publish(ctx context.Context) bool {
	meta := r.config.RunMeta
	event := &adapter.StoryCompletedEvent{
		ContractVersion: types.ContractVersion,
		EventType:       adapter.EventTypeStoryCompleted,
		RunID:           meta.RunID,
		StoryID:         string(meta.StoryID),
		Attempt:         meta.Attempt,
		TotalSlots:      r.plan.TotalSlots,
		Batches:         r.plan.BatchCount(),
		FinalTxHash:     r.finalTxHash,
		JournalPath:     r.config.JournalPath,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		DurationMs:      time.Since(r.startTime).Milliseconds(),
	}
	if meta.ParentRunID != nil {
		event.ParentRunID = *meta.ParentRunID
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := r.config.Adapter.Publish(pubCtx, event); err != nil {
		r.config.Collector.IncNotifyFailure()
		r.logger.Warn("completion notification failed (best effort)", map[string]any{
			"error": err.Error(),
		})
		return false
	}
	r.config.Collector.IncNotifySuccess()
	return true
}

// flush flushes the journal policy, ignoring parent cancellation.
func (r *CompletionRun) flush(ctx context.Context) {
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()

	if err := r.config.Policy.Flush(flushCtx); err != nil {
		r.journal.countError()
		r.logger.Warn("journal flush failed (best effort)", map[string]any{
			"storage": lode.Class(err),
			"error":   err.Error(),
		})
	}
}

func (r *CompletionRun) absorbPolicyStats() {
	ps := r.config.Policy.Stats()
	dropped := make(map[string]int64, len(ps.DroppedByKind))
	for k, v := range ps.DroppedByKind {
		dropped[string(k)] = v
	}
	r.config.Collector.AbsorbPolicyStats(ps.TotalRecords, ps.RecordsPersisted, ps.RecordsDropped, dropped)
}
