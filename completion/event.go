package completion

import (
	"time"

	"github.com/pithecene-io/ghostwriter/types"
)

// EventType discriminates coordinator events.
type EventType string

const (
	EventRunStarted     EventType = "run_started"
	EventBatchCommitted EventType = "batch_committed"
	EventBatchFailed    EventType = "batch_failed"
	EventFinalized      EventType = "finalized"
	EventFinalizeFailed EventType = "finalize_failed"
	EventRunCompleted   EventType = "run_completed"
	EventRunFailed      EventType = "run_failed"
)

// Event describes one coordinator transition.
// State is the coordinator state after the transition.
type Event struct {
	Type      EventType
	StoryID   types.StoryID
	StepIndex int
	Range     types.SlotRange
	Receipt   Receipt
	Err       error
	State     types.CompletionState
	Plan      types.CompletionPlan
	At        time.Time
}

// Observer receives coordinator events synchronously on the run goroutine,
// in order. Observers must not call back into the coordinator's run methods.
type Observer func(Event)
