package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ghostwriter/cli/config"
	"github.com/pithecene-io/ghostwriter/cli/tui"
	"github.com/pithecene-io/ghostwriter/log"
	"github.com/pithecene-io/ghostwriter/metrics"
	"github.com/pithecene-io/ghostwriter/policy"
	"github.com/pithecene-io/ghostwriter/runtime"
	"github.com/pithecene-io/ghostwriter/types"
)

// CompleteCommand returns the complete command.
// It is the only command that mutates a story.
func CompleteCommand() *cli.Command {
	return &cli.Command{
		Name:  "complete",
		Usage: "Complete a story's remaining slots in batches, then finalize",
		Description: `Plans the story's slots into batches, submits one fill transaction per
batch and a finalize transaction, and reports progress as steps commit.

Exit codes:
  0  completed
  1  a step failed (or an internal error)
  2  invalid input
  3  story not ready`,
		Flags: concatFlags(
			[]cli.Flag{
				&cli.StringFlag{
					Name:  "story",
					Usage: "Story identifier",
				},
				&cli.IntFlag{
					Name:  "slots",
					Usage: "Total slots in the story (snapshotted at plan time)",
				},
				&cli.IntFlag{
					Name:  "batch-size",
					Usage: "Max slots per batch (default 50)",
				},
				&cli.StringFlag{
					Name:  "run-id",
					Usage: "Run identifier (default: random UUID)",
				},
				&cli.IntFlag{
					Name:  "attempt",
					Usage: "Attempt number (1 for an initial run)",
					Value: 1,
				},
				&cli.StringFlag{
					Name:  "parent-run-id",
					Usage: "Previous run ID (required when --attempt > 1)",
				},
				&cli.StringFlag{
					Name:  "report",
					Usage: "Write a JSON run report to this path ('-' for stderr)",
				},
				&cli.BoolFlag{
					Name:  "quiet",
					Usage: "Suppress the result summary",
				},
				&cli.BoolFlag{
					Name:  "tui",
					Usage: "Show live progress in an interactive view",
				},
				ConfigFlag,
			},
			gatewayFlags(),
			journalFlags(),
			adapterFlags(),
		),
		Action: completeAction,
	}
}

func completeAction(c *cli.Context) error {
	if c.String("story") == "" {
		return cli.Exit("--story is required", runtime.ExitCodeInvalidInput)
	}
	if !c.IsSet("slots") {
		return cli.Exit("--slots is required", runtime.ExitCodeInvalidInput)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), runtime.ExitCodeInvalidInput)
	}

	gwChoice, err := parseGatewayConfigWithPrecedence(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), runtime.ExitCodeInvalidInput)
	}
	journal, err := parseJournalConfigWithPrecedence(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), runtime.ExitCodeInvalidInput)
	}
	adapterCfg, err := resolveAdapter(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), runtime.ExitCodeInvalidInput)
	}

	runMeta := &types.RunMeta{
		RunID:   c.String("run-id"),
		StoryID: types.StoryID(c.String("story")),
		Attempt: c.Int("attempt"),
	}
	if runMeta.RunID == "" {
		runMeta.RunID = uuid.NewString()
	}
	if parent := c.String("parent-run-id"); parent != "" {
		runMeta.ParentRunID = &parent
	}
	if err := runMeta.Validate(); err != nil {
		return cli.Exit(fmt.Sprintf("invalid run metadata: %v", err), runtime.ExitCodeInvalidInput)
	}

	totalSlots := c.Int("slots")
	batchSize := resolveInt(c, "batch-size", configVal(cfg, func(c *config.Config) int { return c.Completion.BatchSize }))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	useTUI := c.Bool("tui")
	logger := log.NewLogger(runMeta)
	if useTUI {
		// The progress view owns the terminal.
		logger = log.Nop()
	}
	defer func() { _ = logger.Sync() }()

	gw, err := openGateway(ctx, gwChoice, logger)
	if err != nil {
		return fmt.Errorf("failed to open gateway: %w", err)
	}
	defer func() { _ = gw.Close() }()
	simulate(gw.Gateway, runMeta.StoryID, totalSlots)

	collector := metrics.NewCollector(metrics.Dimensions{
		Gateway:        gwChoice.gatewayType,
		Policy:         journal.policyName(),
		StorageBackend: journal.backend,
		StoryID:        string(runMeta.StoryID),
		RunID:          runMeta.RunID,
	})

	startTime := time.Now()
	var pol policy.Policy = policy.NewNoopPolicy()
	if journal.enabled() {
		factory, err := journal.storeFactory(ctx)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		pol, err = buildJournalPolicy(journal, factory, runMeta, startTime, collector, logger)
		if err != nil {
			return fmt.Errorf("failed to create journal policy: %w", err)
		}
	}
	defer func() { _ = pol.Close() }()

	notifier, err := buildAdapter(adapterCfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid adapter config: %v", err), runtime.ExitCodeInvalidInput)
	}
	if notifier != nil {
		defer func() { _ = notifier.Close() }()
	}

	runCfg := &runtime.RunConfig{
		RunMeta:     runMeta,
		TotalSlots:  totalSlots,
		BatchSize:   batchSize,
		Gateway:     gw,
		Policy:      pol,
		Adapter:     notifier,
		Collector:   collector,
		Logger:      logger,
		JournalPath: journal.location(),
	}

	var result *runtime.RunResult
	if useTUI {
		result, err = executeWithProgress(ctx, runCfg)
	} else {
		result, err = execute(ctx, runCfg)
	}
	if err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}

	exitCode := runtime.ExitCode(result.Outcome.Status)
	if path := c.String("report"); path != "" {
		if err := runtime.WriteRunReport(runtime.BuildRunReport(result, journal.policyName()), path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to write run report: %v\n", err)
		}
	}
	if !c.Bool("quiet") {
		printCompleteResult(c.App.Writer, result, journal)
	}

	return cli.Exit("", exitCode)
}

func execute(ctx context.Context, cfg *runtime.RunConfig) (*runtime.RunResult, error) {
	run, err := runtime.NewCompletionRun(cfg)
	if err != nil {
		return nil, err
	}
	return run.Execute(ctx)
}

// executeWithProgress runs the completion on a goroutine while the progress
// view runs on this one. Quitting the view cancels the run.
func executeWithProgress(ctx context.Context, cfg *runtime.RunConfig) (*runtime.RunResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	view := tui.NewProgress(cfg.RunMeta.StoryID, cfg.RunMeta.RunID, cancel)
	cfg.Observer = view.Observe

	run, err := runtime.NewCompletionRun(cfg)
	if err != nil {
		return nil, err
	}

	type outcome struct {
		result *runtime.RunResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := run.Execute(ctx)
		msg := tui.DoneMsg{Err: err}
		if result != nil {
			msg.State = result.State
			msg.Outcome = result.Outcome
		}
		view.Finish(msg)
		done <- outcome{result: result, err: err}
	}()

	if _, err := view.Run(); err != nil {
		cancel()
		res := <-done
		return res.result, errors.Join(res.err, fmt.Errorf("progress view: %w", err))
	}
	res := <-done
	return res.result, res.err
}

func printCompleteResult(w io.Writer, result *runtime.RunResult, journal journalChoice) {
	if w == nil {
		w = os.Stdout
	}
	fmt.Fprintf(w, "\nrun_id=%s, attempt=%d, outcome=%s, duration=%s\n",
		result.RunMeta.RunID,
		result.RunMeta.Attempt,
		result.Outcome.Status,
		result.Duration.Round(time.Millisecond),
	)

	fmt.Fprintf(w, "\n=== Completion Result ===\n")
	fmt.Fprintf(w, "Story:        %s\n", result.StoryID)
	fmt.Fprintf(w, "Run ID:       %s\n", result.RunMeta.RunID)
	if result.RunMeta.ParentRunID != nil {
		fmt.Fprintf(w, "Parent Run:   %s\n", *result.RunMeta.ParentRunID)
	}
	fmt.Fprintf(w, "Attempt:      %d\n", result.RunMeta.Attempt)
	fmt.Fprintf(w, "Outcome:      %s\n", result.Outcome.Status)
	fmt.Fprintf(w, "Message:      %s\n", result.Outcome.Message)
	fmt.Fprintf(w, "Status:       %s\n", result.State.Status)
	fmt.Fprintf(w, "Progress:     %.2f%%\n", result.State.Progress)
	fmt.Fprintf(w, "Steps:        %d/%d\n", result.State.CompletedSteps, result.State.TotalSteps)
	if result.FinalTxHash != "" {
		fmt.Fprintf(w, "Final Tx:     %s\n", result.FinalTxHash)
	}
	if result.State.Error != "" {
		fmt.Fprintf(w, "Error:        %s\n", result.State.Error)
	}

	fmt.Fprintf(w, "\n=== Journal ===\n")
	fmt.Fprintf(w, "Policy:            %s\n", journal.policyName())
	if loc := journal.location(); loc != "" {
		fmt.Fprintf(w, "Location:          %s\n", loc)
	}
	fmt.Fprintf(w, "Records Total:     %d\n", result.PolicyStats.TotalRecords)
	fmt.Fprintf(w, "Records Persisted: %d\n", result.PolicyStats.RecordsPersisted)
	fmt.Fprintf(w, "Records Dropped:   %d\n", result.PolicyStats.RecordsDropped)
	fmt.Fprintf(w, "Journal Errors:    %d\n", result.JournalErrors)
	if result.Notified {
		fmt.Fprintf(w, "Notified:          yes\n")
	}
}
