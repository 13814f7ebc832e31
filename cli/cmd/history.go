package cmd

import (
	"errors"
	"fmt"
	"os"

	lodelib "github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ghostwriter/cli/render"
	"github.com/pithecene-io/ghostwriter/lode"
	"github.com/pithecene-io/ghostwriter/types"
)

// HistoryCommand returns the history command.
// It reads the completion journal and never contacts a gateway.
func HistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show journal records for a story",
		Flags: concatFlags(
			ReadOnlyFlags(),
			[]cli.Flag{
				&cli.StringFlag{
					Name:     "story",
					Usage:    "Story identifier",
					Required: true,
				},
				&cli.StringFlag{
					Name:  "run-id",
					Usage: "Only show records from this run",
				},
				&cli.BoolFlag{
					Name:  "latest-metrics",
					Usage: "Show only the most recent metrics record",
				},
				ConfigFlag,
			},
			journalFlags(),
		),
		Action: historyAction,
	}
}

func historyAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for history command", 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	journal, err := parseJournalConfigWithPrecedence(c, cfg)
	if err != nil {
		return err
	}
	if journal.backend == "memory" {
		return errors.New("history requires a durable journal backend (fs or s3)")
	}
	if journal.path == "" {
		return errors.New("--journal-path is required")
	}

	if journal.backend == "fs" {
		if _, err := os.Stat(journal.path); err != nil {
			return fmt.Errorf("journal not found: %w", err)
		}
	}
	factory, err := journal.storeFactory(c.Context)
	if err != nil {
		return err
	}
	ds, err := lode.NewReadDataset(journal.dataset, factory)
	if err != nil {
		return err
	}

	storyID := types.StoryID(c.String("story"))
	if c.Bool("latest-metrics") {
		return renderLatestMetrics(c, r, ds, storyID)
	}

	records, err := lode.QueryHistory(c.Context, ds, storyID, c.String("run-id"))
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}
	return r.Render(render.HistoryView(records))
}

func renderLatestMetrics(c *cli.Context, r *render.Renderer, ds lodelib.Dataset, storyID types.StoryID) error {
	rec, err := lode.QueryLatestMetrics(c.Context, ds, storyID, c.String("run-id"))
	if errors.Is(err, lode.ErrNoMetricsFound) {
		return cli.Exit(fmt.Sprintf("no metrics recorded for story %s", storyID), 1)
	}
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}
	if r.Format() == render.FormatTable {
		return r.Render(rec.Payload)
	}
	return r.Render(rec)
}
