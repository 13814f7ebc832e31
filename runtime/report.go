package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pithecene-io/ghostwriter/metrics"
	"github.com/pithecene-io/ghostwriter/types"
)

// RunReport is the structured JSON report written by complete --report.
type RunReport struct {
	RunID       string              `json:"run_id"`
	StoryID     string              `json:"story_id"`
	Attempt     int                 `json:"attempt"`
	ParentRunID string              `json:"parent_run_id,omitempty"`
	Outcome     types.OutcomeStatus `json:"outcome"`
	Message     string              `json:"message"`
	ExitCode    int                 `json:"exit_code"`
	DurationMs  int64               `json:"duration_ms"`

	Plan        *ReportPlan       `json:"plan"`
	Progress    float64           `json:"progress"`
	FinalTxHash string            `json:"final_tx_hash,omitempty"`
	Journal     *ReportJournal    `json:"journal"`
	Metrics     *metrics.Snapshot `json:"metrics"`
	Notified    bool              `json:"notified"`
}

// ReportPlan summarizes the executed plan.
type ReportPlan struct {
	TotalSlots     int `json:"total_slots"`
	MaxBatchSize   int `json:"max_batch_size"`
	Batches        int `json:"batches"`
	CompletedSteps int `json:"completed_steps"`
	TotalSteps     int `json:"total_steps"`
}

// ReportJournal holds journal policy stats in the report.
type ReportJournal struct {
	Policy    string `json:"policy"`
	Records   int64  `json:"records"`
	Persisted int64  `json:"persisted"`
	Dropped   int64  `json:"dropped"`
	Errors    int64  `json:"errors"`
}

// BuildRunReport composes a RunReport from a RunResult.
// policyName is the journal policy name ("strict", "buffered", "none").
func BuildRunReport(result *RunResult, policyName string) *RunReport {
	snap := result.Metrics
	report := &RunReport{
		RunID:      result.RunMeta.RunID,
		StoryID:    string(result.StoryID),
		Attempt:    result.RunMeta.Attempt,
		Outcome:    result.Outcome.Status,
		Message:    result.Outcome.Message,
		ExitCode:   ExitCode(result.Outcome.Status),
		DurationMs: result.Duration.Milliseconds(),
		Plan: &ReportPlan{
			TotalSlots:     result.Plan.TotalSlots,
			MaxBatchSize:   result.Plan.MaxBatchSize,
			Batches:        result.Plan.BatchCount(),
			CompletedSteps: result.State.CompletedSteps,
			TotalSteps:     result.State.TotalSteps,
		},
		Progress:    result.State.Progress,
		FinalTxHash: result.FinalTxHash,
		Journal: &ReportJournal{
			Policy:    policyName,
			Records:   result.PolicyStats.TotalRecords,
			Persisted: result.PolicyStats.RecordsPersisted,
			Dropped:   result.PolicyStats.RecordsDropped,
			Errors:    result.JournalErrors,
		},
		Metrics:  &snap,
		Notified: result.Notified,
	}
	if result.RunMeta.ParentRunID != nil {
		report.ParentRunID = *result.RunMeta.ParentRunID
	}
	return report
}

// WriteRunReport writes the report as JSON to the specified path.
// If path is "-", writes to stderr.
func WriteRunReport(report *RunReport, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}

	if path == "-" {
		if err := writeRunReportTo(report, os.Stderr); err != nil {
			return fmt.Errorf("failed to write report to stderr: %w", err)
		}
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	if err := writeRunReportTo(report, f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return f.Close()
}

// writeRunReportTo writes indented report JSON to any writer.
func writeRunReportTo(report *RunReport, w io.Writer) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
