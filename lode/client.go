package lode

import (
	"context"
	"fmt"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/ghostwriter/types"
)

// LodeClient is a Lode-backed implementation of Client.
type LodeClient struct {
	dataset lode.Dataset
	config  Config
}

// NewLodeClient creates a new Lode client with filesystem storage.
// The root parameter is the base directory for Hive-partitioned storage.
func NewLodeClient(cfg Config, root string) (*LodeClient, error) {
	return NewLodeClientWithFactory(cfg, lode.NewFSFactory(root))
}

// NewLodeClientWithFactory creates a new Lode client with a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewLodeClientWithFactory(cfg Config, factory lode.StoreFactory) (*LodeClient, error) {
	if cfg.Dataset == "" {
		cfg.Dataset = DefaultDataset
	}
	if cfg.StoryID == "" || cfg.RunID == "" || cfg.Day == "" {
		return nil, fmt.Errorf("lode config: story_id, run_id and day are required")
	}

	ds, err := newDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return &LodeClient{dataset: ds, config: cfg}, nil
}

// WriteRecords writes a batch of journal records as one Lode snapshot.
func (c *LodeClient) WriteRecords(ctx context.Context, records []*types.JournalRecord) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, toRecordMap(r, c.config))
	}

	if _, err := c.dataset.Write(ctx, rows, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.partitionPath())
	}
	return nil
}

// Close releases client resources.
func (c *LodeClient) Close() error {
	// Dataset doesn't require explicit close in current Lode API
	return nil
}

func (c *LodeClient) partitionPath() string {
	return fmt.Sprintf("%s/story_id=%s/day=%s/run_id=%s",
		c.config.Dataset, c.config.StoryID, c.config.Day, c.config.RunID)
}

// newDataset opens a dataset with the journal layout and codec.
func newDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// Verify LodeClient implements Client.
var _ Client = (*LodeClient)(nil)
