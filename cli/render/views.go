package render

import (
	"strconv"

	"github.com/pithecene-io/ghostwriter/types"
)

// PlanView is the rendered form of a completion plan.
type PlanView struct {
	TotalSlots   int               `json:"total_slots" yaml:"total_slots"`
	MaxBatchSize int               `json:"max_batch_size" yaml:"max_batch_size"`
	Batches      int               `json:"batches" yaml:"batches"`
	TotalSteps   int               `json:"total_steps" yaml:"total_steps"`
	Ranges       []types.SlotRange `json:"ranges" yaml:"ranges"`
}

// NewPlanView builds the view for plan.
func NewPlanView(plan types.CompletionPlan) PlanView {
	return PlanView{
		TotalSlots:   plan.TotalSlots,
		MaxBatchSize: plan.MaxBatchSize,
		Batches:      plan.BatchCount(),
		TotalSteps:   plan.TotalSteps(),
		Ranges:       plan.Ranges,
	}
}

// Header implements Table.
func (PlanView) Header() []string {
	return []string{"step", "kind", "range", "slots"}
}

// Rows implements Table. The finalize step is the last row.
func (v PlanView) Rows() [][]string {
	rows := make([][]string, 0, len(v.Ranges)+1)
	for i, r := range v.Ranges {
		rows = append(rows, []string{strconv.Itoa(i + 1), "batch", r.String(), strconv.Itoa(r.Size())})
	}
	if len(v.Ranges) > 0 {
		rows = append(rows, []string{strconv.Itoa(len(v.Ranges) + 1), "finalize", "", ""})
	}
	return rows
}

// HistoryView renders journal records, one row per record.
type HistoryView []*types.JournalRecord

// Header implements Table.
func (HistoryView) Header() []string {
	return []string{"run_id", "attempt", "seq", "kind", "event", "range", "applied", "progress", "tx_hash", "detail"}
}

// Rows implements Table.
func (v HistoryView) Rows() [][]string {
	rows := make([][]string, 0, len(v))
	for _, rec := range v {
		var rng, applied string
		if rec.Start > 0 {
			rng = types.SlotRange{Start: rec.Start, End: rec.End}.String()
		}
		if rec.RecordKind == types.RecordKindStep && rec.Event != "run_started" {
			applied = strconv.FormatBool(rec.Applied)
		}
		detail := rec.Error
		if detail == "" {
			detail = rec.Status
		}
		rows = append(rows, []string{
			rec.RunID,
			strconv.Itoa(rec.Attempt),
			strconv.FormatInt(rec.Seq, 10),
			string(rec.RecordKind),
			rec.Event,
			rng,
			applied,
			formatFloat(rec.Progress),
			rec.TxHash,
			detail,
		})
	}
	return rows
}
