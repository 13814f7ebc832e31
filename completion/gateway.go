package completion

import (
	"context"

	"github.com/pithecene-io/ghostwriter/types"
)

// Receipt is the settled result of a gateway mutation.
type Receipt struct {
	// TxHash identifies the transaction that carried the mutation, if any.
	TxHash string `json:"tx_hash,omitempty"`
	// Applied is false when the call was an idempotent no-op (range already
	// revealed, story already finalized).
	Applied bool `json:"applied"`
}

// Gateway performs the state-changing story operations.
//
// Implementations must be idempotent: processing a range that was already
// processed is a no-op, and finalizing a finalized story either no-ops or
// fails cleanly with ErrStoryNotReady. Calls must return only once the
// mutation has settled.
type Gateway interface {
	// ProcessCompletionBatch reveals slots r.Start..r.End of the story.
	// Fails with ErrRangeTooLarge when r.Size() > MaxBatchSize and with
	// ErrTransient on network or chain errors.
	ProcessCompletionBatch(ctx context.Context, storyID types.StoryID, r types.SlotRange) (Receipt, error)

	// FinalizeStory marks the story complete.
	// Fails with ErrStoryNotReady while any slot remains unfilled.
	FinalizeStory(ctx context.Context, storyID types.StoryID) (Receipt, error)
}
