//nolint:revive // types is a common Go package naming convention
package types

import "fmt"

// StoryID identifies a story instance. Owned by the external story storage;
// the coordinator only references it.
type StoryID string

// String implements fmt.Stringer.
func (s StoryID) String() string { return string(s) }

// SlotRange is an inclusive range of slot positions processed by one batch call.
type SlotRange struct {
	// Start is the first slot position, 1-based.
	Start int `json:"start" yaml:"start" msgpack:"start"`
	// End is the last slot position, inclusive.
	End int `json:"end" yaml:"end" msgpack:"end"`
}

// Size returns the number of slots in the range.
func (r SlotRange) Size() int {
	return r.End - r.Start + 1
}

// Valid reports whether the range is well formed (Start >= 1, End >= Start).
func (r SlotRange) Valid() bool {
	return r.Start >= 1 && r.End >= r.Start
}

func (r SlotRange) String() string {
	return fmt.Sprintf("[%d,%d]", r.Start, r.End)
}

// CompletionPlan is the ordered batch sequence covering [1, TotalSlots],
// followed implicitly by one finalize step.
//
// Plans are derived from (TotalSlots, MaxBatchSize) on every run and are
// never persisted.
type CompletionPlan struct {
	TotalSlots   int         `json:"total_slots" yaml:"total_slots"`
	MaxBatchSize int         `json:"max_batch_size" yaml:"max_batch_size"`
	Ranges       []SlotRange `json:"ranges" yaml:"ranges"`
}

// BatchCount returns the number of batch steps.
func (p CompletionPlan) BatchCount() int {
	return len(p.Ranges)
}

// TotalSteps returns batch steps plus the finalize step.
func (p CompletionPlan) TotalSteps() int {
	return len(p.Ranges) + 1
}

// CompletionStatus is the coordinator state machine position.
type CompletionStatus string

const (
	// StatusIdle is the initial state and the state after a reset.
	StatusIdle CompletionStatus = "idle"
	// StatusRunning means a run is in flight.
	StatusRunning CompletionStatus = "running"
	// StatusCompleted means every batch and the finalize step succeeded.
	StatusCompleted CompletionStatus = "completed"
	// StatusFailed means the run halted on its first failure.
	StatusFailed CompletionStatus = "failed"
)

// CompletionState is the observable coordinator state.
type CompletionState struct {
	StoryID      StoryID          `json:"story_id,omitempty" yaml:"story_id,omitempty"`
	Status       CompletionStatus `json:"status" yaml:"status"`
	IsProcessing bool             `json:"is_processing" yaml:"is_processing"`
	// Progress is in [0, 100] and never decreases within a run.
	Progress float64 `json:"progress" yaml:"progress"`
	// Error is the description of the failure that halted the run, if any.
	Error          string `json:"error,omitempty" yaml:"error,omitempty"`
	CompletedSteps int    `json:"completed_steps" yaml:"completed_steps"`
	TotalSteps     int    `json:"total_steps" yaml:"total_steps"`
}

// HasError reports whether the run halted on a failure.
func (s CompletionState) HasError() bool {
	return s.Error != ""
}
