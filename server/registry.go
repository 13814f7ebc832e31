package server

import (
	"errors"
	"sync"

	"github.com/pithecene-io/ghostwriter/runtime"
	"github.com/pithecene-io/ghostwriter/types"
)

// ErrRunning is returned when a story already has a run in flight.
var ErrRunning = errors.New("completion run already in progress for story")

// entry is the per-story slot of the registry.
type entry struct {
	run     *runtime.CompletionRun
	running bool
	runID   string
	attempt int
	result  *runtime.RunResult
}

// state is the run's observable state. A run that has been accepted but
// whose coordinator has not started yet reads as running.
func (e *entry) state() types.CompletionState {
	st := e.run.State()
	if e.running && st.Status == types.StatusIdle {
		return e.run.Planned()
	}
	return st
}

// Registry tracks the latest completion run per story.
//
// The registry mutex is the external per-story lock the coordinator
// requires: a story gets at most one run in flight, and starting a run and
// marking it running happen atomically.
type Registry struct {
	mu      sync.Mutex
	entries map[types.StoryID]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[types.StoryID]*entry)}
}

// Snapshot is a read-only view of a story's latest run.
type Snapshot struct {
	RunID   string                `json:"run_id,omitempty"`
	Attempt int                   `json:"attempt,omitempty"`
	State   types.CompletionState `json:"state"`
	Outcome *types.RunOutcome     `json:"outcome,omitempty"`
}

// Get returns the story's latest run view. Unknown stories are idle.
func (r *Registry) Get(storyID types.StoryID) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[storyID]
	if !ok || e.run == nil {
		return Snapshot{State: types.CompletionState{Status: types.StatusIdle}}
	}
	snap := Snapshot{RunID: e.runID, Attempt: e.attempt, State: e.state()}
	if e.result != nil {
		snap.Outcome = e.result.Outcome
	}
	return snap
}

// Begin reserves the story for a new run and returns its lineage.
// The first run of a story is attempt 1; each later run names its
// predecessor as parent. newRun builds the run once the lineage is known.
func (r *Registry) Begin(storyID types.StoryID, runID string, newRun func(meta *types.RunMeta) (*runtime.CompletionRun, error)) (*runtime.CompletionRun, *types.RunMeta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[storyID]
	if !ok {
		e = &entry{}
		r.entries[storyID] = e
	}
	if e.running {
		return nil, nil, ErrRunning
	}

	meta := &types.RunMeta{RunID: runID, StoryID: storyID, Attempt: e.attempt + 1}
	if e.runID != "" {
		parent := e.runID
		meta.ParentRunID = &parent
	}

	run, err := newRun(meta)
	if err != nil {
		return nil, nil, err
	}

	e.run = run
	e.running = true
	e.runID = runID
	e.attempt = meta.Attempt
	e.result = nil
	return run, meta, nil
}

// Finish records a run's result and releases the story.
func (r *Registry) Finish(storyID types.StoryID, result *runtime.RunResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[storyID]; ok {
		e.running = false
		e.result = result
	}
}

// Reset returns the story's coordinator to idle.
// Returns ErrRunning while a run is in flight.
func (r *Registry) Reset(storyID types.StoryID) (Snapshot, error) {
	r.mu.Lock()
	e, ok := r.entries[storyID]
	if ok && e.running {
		r.mu.Unlock()
		return Snapshot{}, ErrRunning
	}
	if ok && e.run != nil {
		if err := e.run.Reset(); err != nil {
			r.mu.Unlock()
			return Snapshot{}, err
		}
		e.result = nil
	}
	r.mu.Unlock()
	return r.Get(storyID), nil
}
