// Package main provides the ghostwriter CLI entrypoint.
//
// Usage:
//
//	ghostwriter <command> [subcommand] [options]
//
// Exit codes for `complete`:
//   - 0: story completed and finalized
//   - 1: a step failed
//   - 2: invalid input
//   - 3: story not ready for finalization
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ghostwriter/cli/cmd"
	"github.com/pithecene-io/ghostwriter/log"
	"github.com/pithecene-io/ghostwriter/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "ghostwriter",
		Usage:          "Batch completion for collaborative stories",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Minimum log level: debug, info, warn, or error",
				Value:   "info",
				EnvVars: []string{"GHOSTWRITER_LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			if err := log.SetLevel(c.String("log-level")); err != nil {
				return cli.Exit(err.Error(), 2)
			}
			return nil
		},
		Commands: []*cli.Command{
			cmd.CompleteCommand(),
			cmd.PlanCommand(),
			cmd.HistoryCommand(),
			cmd.ServeCommand(),
			cmd.LedgerCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already handled the exit for cli.ExitCoder errors.
		os.Exit(1)
	}
}

// exitErrHandler preserves exit codes from cli.Exit().
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() returns "exit status N"; skip those.
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
