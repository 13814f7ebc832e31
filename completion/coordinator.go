package completion

import (
	"context"
	"sync"
	"time"

	"github.com/pithecene-io/ghostwriter/log"
	"github.com/pithecene-io/ghostwriter/types"
)

// Coordinator drives one story completion run at a time against a Gateway.
//
// State machine: idle -> running -> {completed | failed}, back to idle on
// Reset. The run loop is the only writer of state; State may be read from
// any goroutine. Sharing a Coordinator between call sites requires an
// external mutex per story (see server.Registry); overlapping runs are
// rejected with ErrRunInProgress rather than interleaved.
type Coordinator struct {
	gateway   Gateway
	batchSize int
	logger    *log.Logger
	observers []Observer
	now       func() time.Time

	mu    sync.RWMutex
	state types.CompletionState
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithBatchSize overrides the batch size (default MaxBatchSize).
// Values outside [1, MaxBatchSize] are rejected when a run is invoked.
func WithBatchSize(n int) Option {
	return func(c *Coordinator) { c.batchSize = n }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver registers an observer. May be given more than once.
func WithObserver(o Observer) Option {
	return func(c *Coordinator) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// withClock is used by tests to pin event timestamps.
func withClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New creates an idle Coordinator over the given gateway.
func New(gw Gateway, opts ...Option) *Coordinator {
	c := &Coordinator{
		gateway:   gw,
		batchSize: MaxBatchSize,
		logger:    log.Nop(),
		now:       time.Now,
		state:     types.CompletionState{Status: types.StatusIdle},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BatchSize returns the configured batch size.
func (c *Coordinator) BatchSize() int {
	return c.batchSize
}

// State returns a snapshot of the observable state.
func (c *Coordinator) State() types.CompletionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Reset clears progress and error and returns to idle.
// Returns ErrRunInProgress while a run is in flight.
func (c *Coordinator) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.IsProcessing {
		return ErrRunInProgress
	}
	c.state = types.CompletionState{Status: types.StatusIdle}
	return nil
}

// CompleteStoryFull reveals every slot of the story in planned batches and
// then finalizes it.
//
// Input errors (ErrInvalidStoryID, ErrInvalidSlotCount, ErrInvalidBatchSize,
// ErrBatchSizeExceeded) and ErrRunInProgress are returned before any gateway
// call and leave the state unchanged. A gateway failure halts the run: the
// state records the failure text and the progress of the steps that had
// settled, and the returned error is a *StepError wrapping the failure.
//
// totalSlots is snapshotted at plan time; slots added elsewhere during the
// run are not picked up until the next run.
func (c *Coordinator) CompleteStoryFull(ctx context.Context, storyID types.StoryID, totalSlots int) (types.CompletionState, error) {
	if storyID == "" {
		return c.State(), ErrInvalidStoryID
	}
	if totalSlots < 1 {
		return c.State(), ErrInvalidSlotCount
	}
	if err := ValidateBatchSize(c.batchSize); err != nil {
		return c.State(), err
	}

	plan, err := Plan(totalSlots, c.batchSize)
	if err != nil {
		return c.State(), err
	}

	c.mu.Lock()
	if c.state.IsProcessing {
		c.mu.Unlock()
		return c.State(), ErrRunInProgress
	}
	c.state = types.CompletionState{
		StoryID:      storyID,
		Status:       types.StatusRunning,
		IsProcessing: true,
		TotalSteps:   plan.TotalSteps(),
	}
	started := c.state
	c.mu.Unlock()

	c.logger.Info("completion run started", map[string]any{
		"total_slots": totalSlots,
		"batch_size":  c.batchSize,
		"batches":     plan.BatchCount(),
	})
	c.emit(Event{Type: EventRunStarted, StoryID: storyID, State: started, Plan: plan})

	for i, r := range plan.Ranges {
		if err := ctx.Err(); err != nil {
			return c.fail(storyID, plan, StepBatch, i, r, err)
		}

		receipt, err := c.gateway.ProcessCompletionBatch(ctx, storyID, r)
		if err != nil {
			return c.fail(storyID, plan, StepBatch, i, r, err)
		}

		state := c.commitStep(i + 1)
		c.logger.Debug("batch committed", map[string]any{
			"step":     i + 1,
			"start":    r.Start,
			"end":      r.End,
			"applied":  receipt.Applied,
			"tx_hash":  receipt.TxHash,
			"progress": state.Progress,
		})
		c.emit(Event{
			Type:      EventBatchCommitted,
			StoryID:   storyID,
			StepIndex: i,
			Range:     r,
			Receipt:   receipt,
			State:     state,
			Plan:      plan,
		})
	}

	finalIndex := plan.BatchCount()
	if err := ctx.Err(); err != nil {
		return c.fail(storyID, plan, StepFinalize, finalIndex, types.SlotRange{}, err)
	}

	receipt, err := c.gateway.FinalizeStory(ctx, storyID)
	if err != nil {
		return c.fail(storyID, plan, StepFinalize, finalIndex, types.SlotRange{}, err)
	}

	c.mu.Lock()
	c.state.CompletedSteps = c.state.TotalSteps
	c.state.Progress = 100
	c.state.Status = types.StatusCompleted
	c.state.IsProcessing = false
	final := c.state
	c.mu.Unlock()

	c.logger.Info("completion run finished", map[string]any{
		"applied": receipt.Applied,
		"tx_hash": receipt.TxHash,
	})
	c.emit(Event{
		Type:      EventFinalized,
		StoryID:   storyID,
		StepIndex: finalIndex,
		Receipt:   receipt,
		State:     final,
		Plan:      plan,
	})
	c.emit(Event{Type: EventRunCompleted, StoryID: storyID, State: final, Plan: plan})

	return final, nil
}

// commitStep records a settled step and returns the new state.
func (c *Coordinator) commitStep(completed int) types.CompletionState {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.CompletedSteps = completed
	c.state.Progress = Project(completed, c.state.TotalSteps)
	return c.state
}

// fail halts the run on its first failure.
func (c *Coordinator) fail(
	storyID types.StoryID,
	plan types.CompletionPlan,
	kind StepKind,
	index int,
	r types.SlotRange,
	cause error,
) (types.CompletionState, error) {
	c.mu.Lock()
	c.state.Error = cause.Error()
	c.state.Status = types.StatusFailed
	c.state.IsProcessing = false
	state := c.state
	c.mu.Unlock()

	stepErr := &StepError{Kind: kind, Index: index, Range: r, Err: cause}

	c.logger.Warn("completion run halted", map[string]any{
		"step_kind":       string(kind),
		"step":            index + 1,
		"start":           r.Start,
		"end":             r.End,
		"error":           cause.Error(),
		"progress":        state.Progress,
		"completed_steps": state.CompletedSteps,
	})

	eventType := EventBatchFailed
	if kind == StepFinalize {
		eventType = EventFinalizeFailed
	}
	c.emit(Event{
		Type:      eventType,
		StoryID:   storyID,
		StepIndex: index,
		Range:     r,
		Err:       cause,
		State:     state,
		Plan:      plan,
	})
	c.emit(Event{Type: EventRunFailed, StoryID: storyID, Err: stepErr, State: state, Plan: plan})

	return state, stepErr
}

func (c *Coordinator) emit(e Event) {
	if len(c.observers) == 0 {
		return
	}
	e.At = c.now()
	for _, o := range c.observers {
		o(e)
	}
}
