package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ghostwriter/cli/render"
	"github.com/pithecene-io/ghostwriter/gateway/process"
	"github.com/pithecene-io/ghostwriter/gateway/sqlite"
	"github.com/pithecene-io/ghostwriter/log"
	"github.com/pithecene-io/ghostwriter/runtime"
	"github.com/pithecene-io/ghostwriter/types"
)

// LedgerCommand returns the ledger command group for the local SQLite ledger.
func LedgerCommand() *cli.Command {
	pathFlag := &cli.StringFlag{
		Name:  "path",
		Usage: "Ledger database path",
		Value: "ghostwriter.db",
	}
	storyFlag := &cli.StringFlag{
		Name:     "story",
		Usage:    "Story identifier",
		Required: true,
	}

	return &cli.Command{
		Name:  "ledger",
		Usage: "Manage the local SQLite ledger",
		Subcommands: []*cli.Command{
			{
				Name:  "register",
				Usage: "Register a story with its filled slot count",
				Flags: []cli.Flag{
					pathFlag,
					storyFlag,
					&cli.IntFlag{
						Name:     "slots",
						Usage:    "Total slots in the story",
						Required: true,
					},
				},
				Action: ledgerRegisterAction,
			},
			{
				Name:   "status",
				Usage:  "Show a story's reveal and finalize status",
				Flags:  append(ReadOnlyFlags(), pathFlag, storyFlag),
				Action: ledgerStatusAction,
			},
			{
				Name:   "sign",
				Usage:  "Serve the ledger to a process gateway over stdin/stdout",
				Hidden: true,
				Flags:  []cli.Flag{pathFlag},
				Action: ledgerSignAction,
			},
		},
	}
}

func ledgerRegisterAction(c *cli.Context) error {
	ledger, err := sqlite.Open(c.String("path"))
	if err != nil {
		return err
	}
	defer func() { _ = ledger.Close() }()

	storyID := types.StoryID(c.String("story"))
	if err := ledger.RegisterStory(c.Context, storyID, c.Int("slots")); err != nil {
		return cli.Exit(fmt.Sprintf("register failed: %v", err), runtime.ExitCodeInvalidInput)
	}
	fmt.Fprintf(c.App.Writer, "registered story %s with %d slots\n", storyID, c.Int("slots"))
	return nil
}

func ledgerStatusAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for ledger status command", 1)
	}

	if _, err := os.Stat(c.String("path")); err != nil {
		return fmt.Errorf("ledger not found: %w", err)
	}
	ledger, err := sqlite.Open(c.String("path"))
	if err != nil {
		return err
	}
	defer func() { _ = ledger.Close() }()

	status, err := ledger.Status(c.Context, types.StoryID(c.String("story")))
	if errors.Is(err, sqlite.ErrUnknownStory) {
		return cli.Exit(err.Error(), 1)
	}
	if err != nil {
		return err
	}
	return r.Render(status)
}

// ledgerSignAction is the signer end of the process gateway. Diagnostics go
// to stderr; stdout carries only protocol frames.
func ledgerSignAction(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ledger, err := sqlite.Open(c.String("path"))
	if err != nil {
		return err
	}
	defer func() { _ = ledger.Close() }()

	logger := log.NewComponentLogger("signer")
	defer func() { _ = logger.Sync() }()

	return serveSigner(ctx, c, ledger, logger)
}

func serveSigner(ctx context.Context, c *cli.Context, ledger *sqlite.Ledger, logger *log.Logger) error {
	in := c.App.Reader
	if in == nil {
		in = os.Stdin
	}
	out := c.App.Writer
	if out == nil {
		out = os.Stdout
	}
	return process.Serve(ctx, in, out, ledger, logger)
}
