package lode

import (
	"github.com/pithecene-io/ghostwriter/types"
)

// partitionKeys is the Hive layout shared by the write and read paths.
var partitionKeys = []string{"story_id", "day", "run_id", "record_kind"}

// toRecordMap converts a journal record to a map for Lode storage.
// Lode HiveLayout requires records as map[string]any with string partition
// values; the partition keys come from the sink config, not the record.
func toRecordMap(r *types.JournalRecord, cfg Config) map[string]any {
	m := map[string]any{
		"record_kind": string(r.RecordKind),
		"seq":         r.Seq,
		"run_id":      cfg.RunID,
		"story_id":    cfg.StoryID,
		"day":         cfg.Day,
		"attempt":     r.Attempt,
		"ts":          r.Ts,
		"step_index":  r.StepIndex,
		"applied":     r.Applied,
		"progress":    r.Progress,
	}
	if r.ParentRunID != nil {
		m["parent_run_id"] = *r.ParentRunID
	}
	if r.Event != "" {
		m["event"] = r.Event
	}
	if r.Start != 0 || r.End != 0 {
		m["start"] = r.Start
		m["end"] = r.End
	}
	if r.TxHash != "" {
		m["tx_hash"] = r.TxHash
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	if r.Status != "" {
		m["status"] = r.Status
	}
	if r.Payload != nil {
		m["payload"] = r.Payload
	}
	return m
}

// fromRecordMap rebuilds a journal record from a stored map.
// Numbers decoded from JSONL arrive as float64.
func fromRecordMap(m map[string]any) *types.JournalRecord {
	r := &types.JournalRecord{
		RecordKind: types.RecordKind(toString(m["record_kind"])),
		Seq:        toInt64(m["seq"]),
		RunID:      toString(m["run_id"]),
		StoryID:    types.StoryID(toString(m["story_id"])),
		Attempt:    int(toInt64(m["attempt"])),
		Ts:         toString(m["ts"]),
		Event:      toString(m["event"]),
		StepIndex:  int(toInt64(m["step_index"])),
		Start:      int(toInt64(m["start"])),
		End:        int(toInt64(m["end"])),
		TxHash:     toString(m["tx_hash"]),
		Error:      toString(m["error"]),
		Status:     toString(m["status"]),
	}
	if v, ok := m["applied"].(bool); ok {
		r.Applied = v
	}
	if v, ok := m["progress"].(float64); ok {
		r.Progress = v
	}
	if v, ok := m["parent_run_id"].(string); ok {
		r.ParentRunID = &v
	}
	if v, ok := m["payload"].(map[string]any); ok {
		r.Payload = v
	}
	return r
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
