package policy

import (
	"context"
	"sync"

	"github.com/pithecene-io/ghostwriter/types"
)

// Sink abstracts journal persistence for policies.
// Batch-oriented: strict writes batches of 1, buffered writes whole buffers.
type Sink interface {
	// WriteRecords persists a batch of records, preserving order.
	WriteRecords(ctx context.Context, records []*types.JournalRecord) error

	// Close releases any resources held by the sink.
	Close() error
}

// StubSink is a test sink that accepts writes without persisting.
type StubSink struct {
	mu sync.Mutex

	// Batches is the number of WriteRecords calls that succeeded.
	Batches int64
	// Written stores all written records in order.
	Written []*types.JournalRecord
	// Closed indicates whether Close was called.
	Closed bool
	// ErrorOnWrite, if non-nil, is returned by WriteRecords.
	ErrorOnWrite error
}

// NewStubSink creates a new stub sink for testing.
func NewStubSink() *StubSink {
	return &StubSink{}
}

// WriteRecords records the batch without persisting.
func (s *StubSink) WriteRecords(_ context.Context, records []*types.JournalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ErrorOnWrite != nil {
		return s.ErrorOnWrite
	}
	s.Batches++
	s.Written = append(s.Written, records...)
	return nil
}

// SetError sets or clears the write error.
func (s *StubSink) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ErrorOnWrite = err
}

// Records returns a copy of the written records.
func (s *StubSink) Records() []*types.JournalRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.JournalRecord, len(s.Written))
	copy(out, s.Written)
	return out
}

// Close marks the sink as closed.
func (s *StubSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (s *StubSink) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Closed
}
