package policy

import (
	"context"

	"github.com/pithecene-io/ghostwriter/types"
)

// StrictPolicy writes every record immediately.
//
//   - No buffering: each record is written as it arrives
//   - No drops
//   - Backpressure: the caller blocks on sink latency
type StrictPolicy struct {
	sink  Sink
	stats *statsRecorder
}

// NewStrictPolicy creates a new strict policy writing to the given sink.
func NewStrictPolicy(sink Sink) *StrictPolicy {
	return &StrictPolicy{sink: sink, stats: newStatsRecorder()}
}

// Ingest writes the record to the sink (batch of 1).
func (p *StrictPolicy) Ingest(ctx context.Context, record *types.JournalRecord) error {
	p.stats.incTotal()

	if err := p.sink.WriteRecords(ctx, []*types.JournalRecord{record}); err != nil {
		p.stats.incErrors()
		return err
	}
	p.stats.incPersisted(1)
	return nil
}

// Flush is a no-op for strict policy (nothing is buffered).
func (p *StrictPolicy) Flush(_ context.Context) error {
	p.stats.incFlush()
	return nil
}

// Close closes the underlying sink.
func (p *StrictPolicy) Close() error {
	return p.sink.Close()
}

// Stats returns policy statistics.
func (p *StrictPolicy) Stats() Stats {
	return p.stats.snapshot()
}
