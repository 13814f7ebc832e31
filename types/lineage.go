// Package types defines core domain types for Ghost Writer story completion.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"fmt"
)

// RunMeta contains completion run identity and lineage metadata.
//
// A completion run is one CompleteStoryFull invocation. A retry after a
// failed run (reset + re-run) is a new run that names its predecessor.
type RunMeta struct {
	// RunID is the canonical run identifier. Must be globally unique.
	RunID string
	// StoryID is the story being completed.
	StoryID StoryID
	// ParentRunID links retry runs to their predecessor. Nil for initial runs.
	ParentRunID *string
	// Attempt is the attempt number. Starts at 1 for initial runs.
	Attempt int
}

// Validate validates lineage rules:
//   - run_id and story_id non-empty
//   - attempt >= 1
//   - attempt == 1 => parent_run_id must be nil (initial run)
//   - attempt > 1 => parent_run_id must be present (retry run)
func (r *RunMeta) Validate() error {
	if r.RunID == "" {
		return errors.New("run_id must be non-empty")
	}

	if r.StoryID == "" {
		return errors.New("story_id must be non-empty")
	}

	if r.Attempt < 1 {
		return fmt.Errorf("attempt must be >= 1, got %d", r.Attempt)
	}

	if r.Attempt == 1 && r.ParentRunID != nil {
		return errors.New("initial run (attempt=1) must not have parent_run_id")
	}

	if r.Attempt > 1 && r.ParentRunID == nil {
		return fmt.Errorf("retry run (attempt=%d) must have parent_run_id", r.Attempt)
	}

	return nil
}

// OutcomeStatus represents the final status of a completion run.
type OutcomeStatus string

const (
	// OutcomeCompleted indicates every batch and the finalize step succeeded.
	OutcomeCompleted OutcomeStatus = "completed"
	// OutcomeStepFailed indicates a batch or finalize call failed.
	OutcomeStepFailed OutcomeStatus = "step_failed"
	// OutcomeStoryNotReady indicates finalize was rejected because slots
	// remain unfilled on the gateway side.
	OutcomeStoryNotReady OutcomeStatus = "story_not_ready"
	// OutcomeInvalidInput indicates the run was rejected before any gateway call.
	OutcomeInvalidInput OutcomeStatus = "invalid_input"
)

// RunOutcome represents the final outcome of a completion run.
type RunOutcome struct {
	// Status is the outcome classification.
	Status OutcomeStatus `json:"status" yaml:"status"`
	// Message is a human-readable description.
	Message string `json:"message" yaml:"message"`
}
