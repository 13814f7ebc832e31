// Package adapter defines the notification boundary.
//
// Adapters publish story completion notifications to downstream systems
// (readers' feeds, indexers, moderation queues). The runtime owns adapter
// lifecycle; users provide configuration only.
package adapter

import "context"

// EventTypeStoryCompleted is the only event type adapters publish.
const EventTypeStoryCompleted = "story_completed"

// StoryCompletedEvent is the payload published when a story is finalized.
type StoryCompletedEvent struct {
	ContractVersion string `json:"contract_version"`
	EventType       string `json:"event_type"` // always "story_completed"
	RunID           string `json:"run_id"`
	StoryID         string `json:"story_id"`
	Attempt         int    `json:"attempt"`
	ParentRunID     string `json:"parent_run_id,omitempty"`
	TotalSlots      int    `json:"total_slots"`
	Batches         int    `json:"batches"`
	FinalTxHash     string `json:"final_tx_hash,omitempty"`
	JournalPath     string `json:"journal_path,omitempty"`
	Timestamp       string `json:"timestamp"` // ISO 8601
	DurationMs      int64  `json:"duration_ms"`
}

// Adapter publishes story completion events to a downstream system.
type Adapter interface {
	// Publish sends a story completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *StoryCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}
