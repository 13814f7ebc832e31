// Package cmd provides CLI commands for the ghostwriter binary.
package cmd

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ghostwriter/adapter/webhook"
)

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Registered on read-only commands so they can reject it explicitly.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (complete only)",
	}

	// ConfigFlag selects the YAML config file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to config file (default ./ghostwriter.yaml if present)",
		EnvVars: []string{"GHOSTWRITER_CONFIG"},
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// gatewayFlags select and configure the mutation gateway.
func gatewayFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "gateway",
			Usage: "Mutation gateway: memory, sqlite, relay, or process",
			Value: "memory",
		},
		&cli.StringFlag{
			Name:  "gateway-url",
			Usage: "Relayer base URL (relay gateway)",
		},
		&cli.StringFlag{
			Name:  "gateway-path",
			Usage: "Ledger database path (sqlite gateway)",
			Value: "ghostwriter.db",
		},
		&cli.StringFlag{
			Name:  "gateway-command",
			Usage: "Signer executable (process gateway)",
		},
		&cli.StringSliceFlag{
			Name:  "gateway-arg",
			Usage: "Signer argument, repeatable (process gateway)",
		},
		&cli.StringSliceFlag{
			Name:  "gateway-header",
			Usage: "Relayer request header as key=value, repeatable (relay gateway)",
		},
		&cli.DurationFlag{
			Name:  "gateway-timeout",
			Usage: "Relayer request timeout (relay gateway)",
			Value: 30 * time.Second,
		},
		&cli.IntFlag{
			Name:  "gateway-retries",
			Usage: "Transport retries on transient relayer failures (relay gateway)",
			Value: 2,
		},
	}
}

// journalFlags configure the completion journal.
func journalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "journal-policy",
			Usage: "Journal policy: strict, buffered, or noop",
			Value: "strict",
		},
		&cli.StringFlag{
			Name:  "journal-backend",
			Usage: "Journal storage backend: fs, s3, or memory",
			Value: "fs",
		},
		&cli.StringFlag{
			Name:  "journal-path",
			Usage: "Journal storage path (fs: directory, s3: bucket/prefix); empty disables the journal",
		},
		&cli.StringFlag{
			Name:  "journal-dataset",
			Usage: "Lode dataset ID",
			Value: "ghostwriter",
		},
		&cli.StringFlag{
			Name:  "journal-region",
			Usage: "AWS region for S3 backend (optional, uses default chain)",
		},
		&cli.StringFlag{
			Name:  "journal-endpoint",
			Usage: "Custom S3 endpoint (e.g. MinIO, R2)",
		},
		&cli.BoolFlag{
			Name:  "journal-s3-path-style",
			Usage: "Use path-style S3 addressing",
		},
		&cli.IntFlag{
			Name:  "journal-buffer-records",
			Usage: "Max buffered records (buffered policy)",
			Value: 1000,
		},
	}
}

// adapterFlags configure the completion notification adapter.
func adapterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "adapter",
			Usage: "Notification adapter: webhook or redis (optional)",
		},
		&cli.StringFlag{
			Name:  "adapter-url",
			Usage: "Adapter endpoint (webhook URL or redis://host:port/db)",
		},
		&cli.StringFlag{
			Name:  "adapter-channel",
			Usage: "Redis pub/sub channel (redis adapter)",
		},
		&cli.StringSliceFlag{
			Name:  "adapter-header",
			Usage: "Webhook header as key=value, repeatable (webhook adapter)",
		},
		&cli.DurationFlag{
			Name:  "adapter-timeout",
			Usage: "Per-attempt publish timeout",
			Value: webhook.DefaultTimeout,
		},
		&cli.IntFlag{
			Name:  "adapter-retries",
			Usage: "Publish retry attempts",
			Value: 3,
		},
	}
}

func concatFlags(groups ...[]cli.Flag) []cli.Flag {
	var out []cli.Flag
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
