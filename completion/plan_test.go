package completion

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pithecene-io/ghostwriter/types"
)

func TestPlan_Scenario120(t *testing.T) {
	plan, err := Plan(120, 50)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	want := []types.SlotRange{{Start: 1, End: 50}, {Start: 51, End: 100}, {Start: 101, End: 120}}
	if diff := cmp.Diff(want, plan.Ranges); diff != "" {
		t.Errorf("ranges mismatch (-want +got):\n%s", diff)
	}
	if plan.TotalSteps() != 4 {
		t.Errorf("TotalSteps() = %d, want 4", plan.TotalSteps())
	}
}

func TestPlan_SingleSmallBatch(t *testing.T) {
	plan, err := Plan(10, 50)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if diff := cmp.Diff([]types.SlotRange{{Start: 1, End: 10}}, plan.Ranges); diff != "" {
		t.Errorf("ranges mismatch (-want +got):\n%s", diff)
	}
	if plan.TotalSteps() != 2 {
		t.Errorf("TotalSteps() = %d, want 2", plan.TotalSteps())
	}
}

func TestPlan_InvalidInput(t *testing.T) {
	tests := []struct {
		name       string
		totalSlots int
		batchSize  int
		wantErr    error
	}{
		{"zero slots", 0, 50, ErrInvalidSlotCount},
		{"negative slots", -3, 50, ErrInvalidSlotCount},
		{"zero batch size", 10, 0, ErrInvalidBatchSize},
		{"negative batch size", 10, -1, ErrInvalidBatchSize},
		{"batch size above ceiling", 10, 51, ErrBatchSizeExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Plan(tt.totalSlots, tt.batchSize)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Plan(%d, %d) error = %v, want %v", tt.totalSlots, tt.batchSize, err, tt.wantErr)
			}
		})
	}
}

// TestPlan_Coverage checks that every plan covers [1, totalSlots] exactly
// once with contiguous ranges no larger than the batch size.
func TestPlan_Coverage(t *testing.T) {
	maxSlots := 10000
	if testing.Short() {
		maxSlots = 500
	}

	for batch := 1; batch <= MaxBatchSize; batch++ {
		for total := 1; total <= maxSlots; total++ {
			plan, err := Plan(total, batch)
			if err != nil {
				t.Fatalf("Plan(%d, %d): %v", total, batch, err)
			}

			wantCount := (total + batch - 1) / batch
			if len(plan.Ranges) != wantCount {
				t.Fatalf("Plan(%d, %d): %d ranges, want %d", total, batch, len(plan.Ranges), wantCount)
			}

			next := 1
			for i, r := range plan.Ranges {
				if r.Start != next {
					t.Fatalf("Plan(%d, %d): range %d starts at %d, want %d", total, batch, i, r.Start, next)
				}
				if r.End < r.Start {
					t.Fatalf("Plan(%d, %d): range %d is empty: %s", total, batch, i, r)
				}
				if r.Size() > batch {
					t.Fatalf("Plan(%d, %d): range %d size %d exceeds batch", total, batch, i, r.Size())
				}
				if i < len(plan.Ranges)-1 && r.Size() != batch {
					t.Fatalf("Plan(%d, %d): non-final range %d has size %d", total, batch, i, r.Size())
				}
				next = r.End + 1
			}
			if next != total+1 {
				t.Fatalf("Plan(%d, %d): coverage ends at %d, want %d", total, batch, next-1, total)
			}
		}
	}
}

func TestValidateBatchSize(t *testing.T) {
	if err := ValidateBatchSize(MaxBatchSize); err != nil {
		t.Errorf("ceiling should be accepted: %v", err)
	}
	if err := ValidateBatchSize(1); err != nil {
		t.Errorf("1 should be accepted: %v", err)
	}
	if err := ValidateBatchSize(MaxBatchSize + 1); !errors.Is(err, ErrBatchSizeExceeded) {
		t.Errorf("expected ErrBatchSizeExceeded, got %v", err)
	}
}
