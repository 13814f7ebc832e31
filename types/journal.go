package types

// RecordKind discriminates journal records.
type RecordKind string

const (
	// RecordKindStep records one coordinator transition (run start, batch
	// commit or failure, finalize).
	RecordKindStep RecordKind = "step"
	// RecordKindRunSummary records the terminal outcome of a run.
	RecordKindRunSummary RecordKind = "run_summary"
	// RecordKindMetrics records the run's metrics snapshot.
	RecordKindMetrics RecordKind = "metrics"
)

// JournalRecord is one entry of the completion journal.
//
// Step records carry the coordinator event fields; run_summary and metrics
// records carry their body in Payload.
type JournalRecord struct {
	RecordKind  RecordKind `json:"record_kind"`
	Seq         int64      `json:"seq"`
	RunID       string     `json:"run_id"`
	StoryID     StoryID    `json:"story_id"`
	Attempt     int        `json:"attempt"`
	ParentRunID *string    `json:"parent_run_id,omitempty"`
	Ts          string     `json:"ts"`

	// Step fields
	Event     string  `json:"event,omitempty"`
	StepIndex int     `json:"step_index"`
	Start     int     `json:"start,omitempty"`
	End       int     `json:"end,omitempty"`
	TxHash    string  `json:"tx_hash,omitempty"`
	Applied   bool    `json:"applied"`
	Error     string  `json:"error,omitempty"`
	Progress  float64 `json:"progress"`
	Status    string  `json:"status,omitempty"`

	Payload map[string]any `json:"payload,omitempty"`
}
