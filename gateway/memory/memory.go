// Package memory implements an in-memory, idempotent story ledger that
// satisfies completion.Gateway.
//
// It is the reference implementation of the gateway contract: re-processing
// a revealed range is a no-op, finalizing a finalized story is a no-op, and
// finalize fails with completion.ErrStoryNotReady while any slot is hidden.
// Scripted failures can be injected for tests and simulations.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/pithecene-io/ghostwriter/completion"
	"github.com/pithecene-io/ghostwriter/types"
)

// Op names a gateway operation.
type Op string

const (
	OpBatch    Op = "batch"
	OpFinalize Op = "finalize"
)

// Failure is a scripted gateway failure.
type Failure struct {
	// Op selects the operation to fail.
	Op Op
	// Start restricts batch failures to the range starting at this slot.
	// Zero matches any range.
	Start int
	// Times is how many matching calls fail. Zero fails every matching call.
	Times int
	// AfterApply applies the mutation before failing, simulating a call
	// whose effect landed but whose response was lost.
	AfterApply bool
	// Err is returned to the caller.
	Err error
}

// Call records one gateway invocation.
type Call struct {
	Op      Op
	StoryID types.StoryID
	Range   types.SlotRange
	Applied bool
	Err     error
}

type story struct {
	totalSlots int
	revealed   map[int]bool
	finalized  bool
}

// Gateway is the in-memory ledger.
type Gateway struct {
	mu       sync.Mutex
	stories  map[types.StoryID]*story
	failures []*Failure
	calls    []Call
	txSeq    uint64
}

var _ completion.Gateway = (*Gateway)(nil)

// New creates an empty ledger.
func New() *Gateway {
	return &Gateway{stories: make(map[types.StoryID]*story)}
}

// RegisterStory adds a story whose slots 1..totalSlots are filled and await
// reveal. Registering an existing story resizes it.
func (g *Gateway) RegisterStory(id types.StoryID, totalSlots int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if s, ok := g.stories[id]; ok {
		s.totalSlots = totalSlots
		return
	}
	g.stories[id] = &story{totalSlots: totalSlots, revealed: make(map[int]bool)}
}

func (s *story) revealedCount() int {
	n := 0
	for slot := 1; slot <= s.totalSlots; slot++ {
		if s.revealed[slot] {
			n++
		}
	}
	return n
}

// InjectFailure scripts a failure. Failures are matched in insertion order.
func (g *Gateway) InjectFailure(f Failure) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fc := f
	g.failures = append(g.failures, &fc)
}

// ClearFailures removes all scripted failures.
func (g *Gateway) ClearFailures() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures = nil
}

// ProcessCompletionBatch implements completion.Gateway.
func (g *Gateway) ProcessCompletionBatch(ctx context.Context, storyID types.StoryID, r types.SlotRange) (completion.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return completion.Receipt{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	call := Call{Op: OpBatch, StoryID: storyID, Range: r}

	if !r.Valid() {
		return g.record(call, fmt.Errorf("memory gateway: invalid range %s", r))
	}
	if r.Size() > completion.MaxBatchSize {
		return g.record(call, fmt.Errorf("%w: %d slots (max %d)", completion.ErrRangeTooLarge, r.Size(), completion.MaxBatchSize))
	}

	s, ok := g.stories[storyID]
	if !ok {
		return g.record(call, fmt.Errorf("memory gateway: unknown story %q", storyID))
	}
	if r.End > s.totalSlots {
		return g.record(call, fmt.Errorf("memory gateway: range %s exceeds story slots (%d)", r, s.totalSlots))
	}

	f := g.matchFailure(OpBatch, r.Start)
	if f != nil && !f.AfterApply {
		return g.record(call, f.Err)
	}

	applied := false
	for slot := r.Start; slot <= r.End; slot++ {
		if !s.revealed[slot] {
			s.revealed[slot] = true
			applied = true
		}
	}
	call.Applied = applied

	if f != nil {
		return g.record(call, f.Err)
	}
	return g.record(call, nil)
}

// FinalizeStory implements completion.Gateway.
func (g *Gateway) FinalizeStory(ctx context.Context, storyID types.StoryID) (completion.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return completion.Receipt{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	call := Call{Op: OpFinalize, StoryID: storyID}

	s, ok := g.stories[storyID]
	if !ok {
		return g.record(call, fmt.Errorf("memory gateway: unknown story %q", storyID))
	}

	f := g.matchFailure(OpFinalize, 0)
	if f != nil && !f.AfterApply {
		return g.record(call, f.Err)
	}

	if !s.finalized {
		if hidden := s.totalSlots - s.revealedCount(); hidden > 0 {
			return g.record(call, fmt.Errorf("%w: %d slots unrevealed", completion.ErrStoryNotReady, hidden))
		}
		s.finalized = true
		call.Applied = true
	}

	if f != nil {
		return g.record(call, f.Err)
	}
	return g.record(call, nil)
}

// record appends the call and builds the receipt. Caller holds g.mu.
func (g *Gateway) record(call Call, err error) (completion.Receipt, error) {
	call.Err = err
	g.calls = append(g.calls, call)
	if err != nil {
		return completion.Receipt{}, err
	}
	g.txSeq++
	return completion.Receipt{
		TxHash:  fmt.Sprintf("0x%064x", g.txSeq),
		Applied: call.Applied,
	}, nil
}

// matchFailure consumes the first scripted failure matching op and start.
// Caller holds g.mu.
func (g *Gateway) matchFailure(op Op, start int) *Failure {
	for i, f := range g.failures {
		if f.Op != op {
			continue
		}
		if op == OpBatch && f.Start != 0 && f.Start != start {
			continue
		}
		if f.Times > 0 {
			f.Times--
			if f.Times == 0 {
				g.failures = append(g.failures[:i], g.failures[i+1:]...)
			}
		}
		return f
	}
	return nil
}

// Calls returns a copy of the call log.
func (g *Gateway) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Call, len(g.calls))
	copy(out, g.calls)
	return out
}

// RevealedSlots returns how many slots in 1..totalSlots are revealed.
// Reveals beyond a shrunk story's slot count are not included.
func (g *Gateway) RevealedSlots(id types.StoryID) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.stories[id]; ok {
		return s.revealedCount()
	}
	return 0
}

// Finalized reports whether the story has been finalized.
func (g *Gateway) Finalized(id types.StoryID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.stories[id]
	return ok && s.finalized
}
