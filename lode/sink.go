// Package lode persists the completion journal in a Lode dataset.
//
// Records are Hive-partitioned by story_id/day/run_id/record_kind so that a
// story's history can be read back without scanning unrelated runs.
package lode

import (
	"context"
	"sync"
	"time"

	"github.com/pithecene-io/ghostwriter/policy"
	"github.com/pithecene-io/ghostwriter/types"
)

// DefaultDataset is the Lode dataset ID used when none is configured.
const DefaultDataset = "ghostwriter"

// DeriveDay computes the partition day from run start time.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(startTime time.Time) string {
	return startTime.UTC().Format("2006-01-02")
}

// Config holds journal sink configuration.
// All partition keys are required.
type Config struct {
	// Dataset is the Lode dataset ID.
	Dataset string
	// StoryID is the partition key for the story being completed.
	StoryID string
	// Day is the partition key derived from run start time (YYYY-MM-DD UTC).
	Day string
	// RunID is the partition key for the run identifier.
	RunID string
}

// Client abstracts the Lode storage client.
type Client interface {
	// WriteRecords writes a batch of journal records.
	// Must preserve ordering within the batch.
	WriteRecords(ctx context.Context, records []*types.JournalRecord) error

	// Close releases client resources.
	Close() error
}

// Sink is a Lode-backed implementation of policy.Sink.
type Sink struct {
	client Client
}

// NewSink creates a new journal sink.
func NewSink(client Client) *Sink {
	return &Sink{client: client}
}

// WriteRecords implements policy.Sink.
func (s *Sink) WriteRecords(ctx context.Context, records []*types.JournalRecord) error {
	return s.client.WriteRecords(ctx, records)
}

// Close implements policy.Sink.
func (s *Sink) Close() error {
	return s.client.Close()
}

// Verify Sink implements policy.Sink.
var _ policy.Sink = (*Sink)(nil)

// StubClient is a test client that accepts writes without persisting.
type StubClient struct {
	mu      sync.Mutex
	Batches [][]*types.JournalRecord
	Closed  bool
	// Err, if non-nil, is returned by WriteRecords.
	Err error
}

// NewStubClient creates a new stub client.
func NewStubClient() *StubClient {
	return &StubClient{}
}

// WriteRecords implements Client.
func (c *StubClient) WriteRecords(_ context.Context, records []*types.JournalRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.Batches = append(c.Batches, records)
	return nil
}

// Close implements Client.
func (c *StubClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}

// Verify StubClient implements Client.
var _ Client = (*StubClient)(nil)
