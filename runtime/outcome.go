package runtime

import (
	"errors"

	"github.com/pithecene-io/ghostwriter/completion"
	"github.com/pithecene-io/ghostwriter/types"
)

// Process exit codes for the complete command.
const (
	ExitCodeCompleted     = 0 // story finalized
	ExitCodeStepFailed    = 1 // a batch or finalize call failed
	ExitCodeInvalidInput  = 2 // rejected before any gateway call
	ExitCodeStoryNotReady = 3 // finalize rejected: slots remain unfilled
)

// DetermineOutcome classifies the error returned by CompleteStoryFull.
//
//   - nil: completed
//   - input validation error: invalid_input
//   - ErrStoryNotReady anywhere in the chain: story_not_ready
//   - anything else: step_failed
func DetermineOutcome(err error) *types.RunOutcome {
	switch {
	case err == nil:
		return &types.RunOutcome{
			Status:  types.OutcomeCompleted,
			Message: "story completed",
		}
	case completion.IsInputError(err):
		return &types.RunOutcome{
			Status:  types.OutcomeInvalidInput,
			Message: err.Error(),
		}
	case errors.Is(err, completion.ErrStoryNotReady):
		return &types.RunOutcome{
			Status:  types.OutcomeStoryNotReady,
			Message: err.Error(),
		}
	default:
		return &types.RunOutcome{
			Status:  types.OutcomeStepFailed,
			Message: err.Error(),
		}
	}
}

// ExitCode maps an outcome status to a process exit code.
func ExitCode(status types.OutcomeStatus) int {
	switch status {
	case types.OutcomeCompleted:
		return ExitCodeCompleted
	case types.OutcomeInvalidInput:
		return ExitCodeInvalidInput
	case types.OutcomeStoryNotReady:
		return ExitCodeStoryNotReady
	default:
		return ExitCodeStepFailed
	}
}
