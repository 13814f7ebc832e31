package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	lodelib "github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ghostwriter/cli/config"
	"github.com/pithecene-io/ghostwriter/lode"
	"github.com/pithecene-io/ghostwriter/log"
	"github.com/pithecene-io/ghostwriter/metrics"
	"github.com/pithecene-io/ghostwriter/runtime"
	"github.com/pithecene-io/ghostwriter/server"
	"github.com/pithecene-io/ghostwriter/types"
)

// ServeCommand returns the serve command.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve story completion over HTTP",
		Flags: concatFlags(
			[]cli.Flag{
				&cli.StringFlag{
					Name:  "addr",
					Usage: "Listen address",
					Value: server.DefaultAddr,
				},
				&cli.IntFlag{
					Name:  "batch-size",
					Usage: "Max slots per batch (default 50)",
				},
				ConfigFlag,
			},
			gatewayFlags(),
			journalFlags(),
			adapterFlags(),
		),
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := log.NewComponentLogger("serve")
	defer func() { _ = logger.Sync() }()

	gw, err := openGateway(ctx, gwChoice, logger)
	if err != nil {
		return fmt.Errorf("failed to open gateway: %w", err)
	}
	defer func() { _ = gw.Close() }()

	var (
		factory lodelib.StoreFactory
		history lodelib.Dataset
	)
	if journal.enabled() {
		if factory, err = journal.storeFactory(ctx); err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		if history, err = lode.NewReadDataset(journal.dataset, factory); err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
	}

	batchSize := resolveInt(c, "batch-size", configVal(cfg, func(c *config.Config) int { return c.Completion.BatchSize }))
	srv, err := server.New(server.Config{
		Addr:         resolveString(c, "addr", configVal(cfg, func(c *config.Config) string { return c.Server.Addr })),
		BatchSize:    batchSize,
		NewRunConfig: newServeRunConfig(gw, gwChoice, journal, factory, adapterCfg, batchSize),
		Journal:      history,
		Logger:       log.NewComponentLogger("server"),
	})
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx)
}

// newServeRunConfig wires each API-started run to the shared gateway and
// journal store, with its own policy, adapter and metrics.
func newServeRunConfig(gw *openedGateway, gwChoice gatewayChoice, journal journalChoice, factory lodelib.StoreFactory, adapterCfg *adapterChoice, batchSize int) server.RunConfigFunc {
	return func(meta *types.RunMeta, totalSlots int) (*runtime.RunConfig, error) {
		simulate(gw.Gateway, meta.StoryID, totalSlots)

		logger := log.NewLogger(meta)
		collector := metrics.NewCollector(metrics.Dimensions{
			Gateway:        gwChoice.gatewayType,
			Policy:         journal.policyName(),
			StorageBackend: journal.backend,
			StoryID:        string(meta.StoryID),
			RunID:          meta.RunID,
		})

		pol, err := buildJournalPolicy(journal, factory, meta, time.Now(), collector, logger)
		if err != nil {
			return nil, err
		}
		notifier, err := buildAdapter(adapterCfg)
		if err != nil {
			_ = pol.Close()
			return nil, err
		}

		return &runtime.RunConfig{
			BatchSize:   batchSize,
			Gateway:     gw,
			Policy:      pol,
			Adapter:     notifier,
			Collector:   collector,
			Logger:      logger,
			JournalPath: journal.location(),
		}, nil
	}
}
