package lode

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/ghostwriter/types"
)

// ErrNoMetricsFound is returned when no metrics records exist for the filter.
var ErrNoMetricsFound = errors.New("no metrics records found")

// QueryHistory reads every journal record for a story. Runs appear in the
// order they were first written and each run's records are ordered by Seq,
// whatever partition layout the snapshot used. A non-empty runID narrows
// the result to one run.
func QueryHistory(ctx context.Context, ds lode.Dataset, storyID types.StoryID, runID string) ([]*types.JournalRecord, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, "snapshots")
	}

	var out []*types.JournalRecord
	runOrder := make(map[string]int)
	for _, snap := range snapshots {
		if !snapshotMatchesFilter(snap, "story_id", string(storyID)) ||
			!snapshotMatchesFilter(snap, "run_id", runID) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("snapshot/%s", snap.ID))
		}

		// Manifest paths are a coarse pre-filter; record fields are authoritative.
		for _, item := range data {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			rec := fromRecordMap(m)
			if rec.StoryID != storyID {
				continue
			}
			if runID != "" && rec.RunID != runID {
				continue
			}
			if _, seen := runOrder[rec.RunID]; !seen {
				runOrder[rec.RunID] = len(runOrder)
			}
			out = append(out, rec)
		}
	}

	slices.SortStableFunc(out, func(a, b *types.JournalRecord) int {
		return cmp.Or(
			cmp.Compare(runOrder[a.RunID], runOrder[b.RunID]),
			cmp.Compare(a.Seq, b.Seq),
		)
	})
	return out, nil
}

// QueryLatestMetrics finds the most recent metrics record for a story.
// A non-empty runID narrows the search to one run.
func QueryLatestMetrics(ctx context.Context, ds lode.Dataset, storyID types.StoryID, runID string) (*types.JournalRecord, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, "snapshots")
	}

	// Snapshots are ordered by creation time.
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotMatchesFilter(snap, "record_kind", string(types.RecordKindMetrics)) ||
			!snapshotMatchesFilter(snap, "story_id", string(storyID)) ||
			!snapshotMatchesFilter(snap, "run_id", runID) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("snapshot/%s", snap.ID))
		}

		for j := len(data) - 1; j >= 0; j-- {
			m, ok := data[j].(map[string]any)
			if !ok {
				continue
			}
			rec := fromRecordMap(m)
			if rec.RecordKind != types.RecordKindMetrics || rec.StoryID != storyID {
				continue
			}
			if runID != "" && rec.RunID != runID {
				continue
			}
			return rec, nil
		}
	}
	return nil, ErrNoMetricsFound
}
