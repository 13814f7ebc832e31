package policy

import (
	"context"

	"github.com/pithecene-io/ghostwriter/types"
)

// NoopPolicy discards every record. Used when the journal is disabled.
// Records are counted as received but neither persisted nor dropped.
type NoopPolicy struct {
	stats *statsRecorder
}

// NewNoopPolicy creates a new no-op policy.
func NewNoopPolicy() *NoopPolicy {
	return &NoopPolicy{stats: newStatsRecorder()}
}

// Ingest accepts the record without persisting it.
func (p *NoopPolicy) Ingest(_ context.Context, _ *types.JournalRecord) error {
	p.stats.incTotal()
	return nil
}

// Flush is a no-op.
func (p *NoopPolicy) Flush(_ context.Context) error {
	p.stats.incFlush()
	return nil
}

// Close is a no-op.
func (p *NoopPolicy) Close() error {
	return nil
}

// Stats returns the policy statistics.
func (p *NoopPolicy) Stats() Stats {
	return p.stats.snapshot()
}
