package completion

import (
	"errors"
	"fmt"

	"github.com/pithecene-io/ghostwriter/types"
)

// Input validation failures, reported before any gateway call.
var (
	// ErrInvalidSlotCount is returned when totalSlots < 1.
	ErrInvalidSlotCount = errors.New("invalid slot count: must be >= 1")
	// ErrInvalidBatchSize is returned when maxBatchSize < 1.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be >= 1")
	// ErrBatchSizeExceeded is returned when maxBatchSize exceeds MaxBatchSize.
	ErrBatchSizeExceeded = fmt.Errorf("batch size exceeds ceiling of %d slots", MaxBatchSize)
	// ErrInvalidStoryID is returned for an empty story identifier.
	ErrInvalidStoryID = errors.New("invalid story id: must be non-empty")
	// ErrRunInProgress is returned when a run is already in flight on the coordinator.
	ErrRunInProgress = errors.New("completion run already in progress")
)

// Gateway failure classes. Gateway implementations wrap these so callers can
// use errors.Is regardless of transport.
var (
	// ErrRangeTooLarge is returned when a batch range exceeds MaxBatchSize slots.
	ErrRangeTooLarge = errors.New("slot range too large")
	// ErrTransient marks a network or chain failure. Safe to retry through
	// Reset and a new run.
	ErrTransient = errors.New("transient gateway failure")
	// ErrStoryNotReady is returned by finalize while slots remain unfilled.
	ErrStoryNotReady = errors.New("story not ready")
)

// TransientError classes a transport failure as ErrTransient. Error returns
// the failure's own message so callers see what actually went wrong.
type TransientError struct {
	Err error
}

// Transient wraps err as a *TransientError. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the failure and ErrTransient.
func (e *TransientError) Unwrap() []error {
	return []error{e.Err, ErrTransient}
}

// StepKind identifies a step of a completion plan.
type StepKind string

const (
	// StepBatch is a processCompletionBatch call.
	StepBatch StepKind = "batch"
	// StepFinalize is the terminal finalizeStory call.
	StepFinalize StepKind = "finalize"
)

// StepError reports the step that halted a run.
// The wrapped error is the gateway failure, unchanged.
type StepError struct {
	Kind StepKind
	// Index is the 0-based step index within the plan (finalize = batch count).
	Index int
	// Range is the batch range; zero for finalize.
	Range types.SlotRange
	Err   error
}

func (e *StepError) Error() string {
	if e.Kind == StepFinalize {
		return fmt.Sprintf("finalize failed: %v", e.Err)
	}
	return fmt.Sprintf("batch %d %s failed: %v", e.Index+1, e.Range, e.Err)
}

// Unwrap returns the underlying gateway error.
func (e *StepError) Unwrap() error {
	return e.Err
}

// IsInputError reports whether err is an input validation failure raised
// before any gateway call.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidSlotCount) ||
		errors.Is(err, ErrInvalidBatchSize) ||
		errors.Is(err, ErrBatchSizeExceeded) ||
		errors.Is(err, ErrInvalidStoryID)
}
