package lode

import (
	"context"

	"github.com/pithecene-io/ghostwriter/metrics"
	"github.com/pithecene-io/ghostwriter/policy"
	"github.com/pithecene-io/ghostwriter/types"
)

// InstrumentedSink wraps a policy.Sink and counts journal writes.
// Each WriteRecords call increments journal_write_success or
// journal_write_failure on the collector.
type InstrumentedSink struct {
	inner     policy.Sink
	collector *metrics.Collector
}

// NewInstrumentedSink wraps a sink with metrics instrumentation.
func NewInstrumentedSink(inner policy.Sink, collector *metrics.Collector) *InstrumentedSink {
	return &InstrumentedSink{inner: inner, collector: collector}
}

// WriteRecords delegates to the inner sink and records success or failure.
func (s *InstrumentedSink) WriteRecords(ctx context.Context, records []*types.JournalRecord) error {
	err := s.inner.WriteRecords(ctx, records)
	if err != nil {
		s.collector.IncJournalWriteFailure()
	} else {
		s.collector.IncJournalWriteSuccess()
	}
	return err
}

// Close delegates to the inner sink.
func (s *InstrumentedSink) Close() error {
	return s.inner.Close()
}

// Verify InstrumentedSink implements policy.Sink.
var _ policy.Sink = (*InstrumentedSink)(nil)
