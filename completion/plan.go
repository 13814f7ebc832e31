// Package completion implements the story completion coordinator.
//
// A story is completed by revealing its slots in bounded batches through a
// Gateway, strictly one call at a time, followed by one finalize call.
// Progress reflects committed gateway work only. The first failure halts
// the run; retry is Reset followed by a new run, which relies on gateway
// idempotence.
package completion

import (
	"github.com/pithecene-io/ghostwriter/types"
)

// MaxBatchSize is the hard ceiling on slots per batch call.
// It bounds per-call gas and latency.
const MaxBatchSize = 50

// ValidateBatchSize checks maxBatchSize against [1, MaxBatchSize].
func ValidateBatchSize(maxBatchSize int) error {
	if maxBatchSize < 1 {
		return ErrInvalidBatchSize
	}
	if maxBatchSize > MaxBatchSize {
		return ErrBatchSizeExceeded
	}
	return nil
}

// Plan computes the ordered batch ranges covering [1, totalSlots].
//
// The result has exactly ceil(totalSlots/maxBatchSize) ranges, contiguous and
// non-overlapping; only the last may be smaller than maxBatchSize.
func Plan(totalSlots, maxBatchSize int) (types.CompletionPlan, error) {
	if totalSlots < 1 {
		return types.CompletionPlan{}, ErrInvalidSlotCount
	}
	if err := ValidateBatchSize(maxBatchSize); err != nil {
		return types.CompletionPlan{}, err
	}

	count := (totalSlots + maxBatchSize - 1) / maxBatchSize
	ranges := make([]types.SlotRange, 0, count)
	for start := 1; start <= totalSlots; start += maxBatchSize {
		end := min(start+maxBatchSize-1, totalSlots)
		ranges = append(ranges, types.SlotRange{Start: start, End: end})
	}

	return types.CompletionPlan{
		TotalSlots:   totalSlots,
		MaxBatchSize: maxBatchSize,
		Ranges:       ranges,
	}, nil
}
