package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	lodelib "github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ghostwriter/adapter"
	"github.com/pithecene-io/ghostwriter/adapter/redis"
	"github.com/pithecene-io/ghostwriter/adapter/webhook"
	"github.com/pithecene-io/ghostwriter/cli/config"
	"github.com/pithecene-io/ghostwriter/completion"
	"github.com/pithecene-io/ghostwriter/gateway/memory"
	"github.com/pithecene-io/ghostwriter/gateway/process"
	"github.com/pithecene-io/ghostwriter/gateway/relay"
	"github.com/pithecene-io/ghostwriter/gateway/sqlite"
	"github.com/pithecene-io/ghostwriter/lode"
	"github.com/pithecene-io/ghostwriter/log"
	"github.com/pithecene-io/ghostwriter/metrics"
	"github.com/pithecene-io/ghostwriter/policy"
	"github.com/pithecene-io/ghostwriter/types"
)

// --- gateway ---

// gatewayChoice holds resolved gateway configuration.
type gatewayChoice struct {
	gatewayType string
	url         string
	path        string
	command     string
	args        []string
	env         map[string]string
	headers     map[string]string
	timeout     time.Duration
	retries     int
}

func parseGatewayConfigWithPrecedence(c *cli.Context, cfg *config.Config) (gatewayChoice, error) {
	gc := configVal(cfg, func(c *config.Config) config.GatewayConfig { return c.Gateway })

	headers, err := resolveHeaders(c, "gateway-header", gc.Headers)
	if err != nil {
		return gatewayChoice{}, err
	}
	choice := gatewayChoice{
		gatewayType: resolveString(c, "gateway", gc.Type),
		url:         resolveString(c, "gateway-url", gc.URL),
		path:        resolveString(c, "gateway-path", gc.Path),
		command:     resolveString(c, "gateway-command", gc.Command),
		args:        resolveSlice(c, "gateway-arg", gc.Args),
		env:         gc.Env,
		headers:     headers,
		timeout:     resolveDuration(c, "gateway-timeout", gc.Timeout.Duration),
		retries:     resolveIntPtr(c, "gateway-retries", gc.Retries),
	}

	switch choice.gatewayType {
	case config.GatewayMemory, config.GatewaySQLite:
	case config.GatewayRelay:
		if choice.url == "" {
			return gatewayChoice{}, errors.New("--gateway-url is required when --gateway=relay")
		}
	case config.GatewayProcess:
		if choice.command == "" {
			return gatewayChoice{}, errors.New("--gateway-command is required when --gateway=process")
		}
	default:
		return gatewayChoice{}, fmt.Errorf("unknown gateway type %q (must be memory, sqlite, relay, or process)", choice.gatewayType)
	}
	return choice, nil
}

// openedGateway is a gateway plus its release function.
type openedGateway struct {
	completion.Gateway
	close func() error
}

func (g *openedGateway) Close() error {
	if g.close == nil {
		return nil
	}
	return g.close()
}

// openGateway constructs the configured gateway. The process gateway's
// signer is bound to ctx.
func openGateway(ctx context.Context, choice gatewayChoice, logger *log.Logger) (*openedGateway, error) {
	switch choice.gatewayType {
	case config.GatewayMemory:
		return &openedGateway{Gateway: memory.New()}, nil

	case config.GatewaySQLite:
		ledger, err := sqlite.Open(choice.path)
		if err != nil {
			return nil, err
		}
		return &openedGateway{Gateway: ledger, close: ledger.Close}, nil

	case config.GatewayRelay:
		gw, err := relay.New(relay.Config{
			URL:     choice.url,
			Headers: choice.headers,
			Timeout: choice.timeout,
			Retries: choice.retries,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		return &openedGateway{Gateway: gw, close: gw.Close}, nil

	case config.GatewayProcess:
		gw, err := process.Start(ctx, process.Config{
			Path:   choice.command,
			Args:   choice.args,
			Env:    choice.env,
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
		return &openedGateway{Gateway: gw, close: gw.Close}, nil

	default:
		return nil, fmt.Errorf("unknown gateway type %q", choice.gatewayType)
	}
}

// simulate registers the story on an in-memory gateway so a memory run
// exercises the full plan.
func simulate(gw completion.Gateway, storyID types.StoryID, totalSlots int) {
	if mem, ok := gw.(*memory.Gateway); ok {
		mem.RegisterStory(storyID, totalSlots)
	}
}

// --- journal ---

// journalChoice holds resolved journal configuration.
type journalChoice struct {
	policy        string
	backend       string
	path          string
	dataset       string
	region        string
	endpoint      string
	pathStyle     bool
	bufferRecords int
}

func parseJournalConfigWithPrecedence(c *cli.Context, cfg *config.Config) (journalChoice, error) {
	jc := configVal(cfg, func(c *config.Config) config.JournalConfig { return c.Journal })

	choice := journalChoice{
		policy:        resolveString(c, "journal-policy", jc.Policy),
		backend:       resolveString(c, "journal-backend", jc.Backend),
		path:          resolveString(c, "journal-path", jc.Path),
		dataset:       resolveString(c, "journal-dataset", jc.Dataset),
		region:        resolveString(c, "journal-region", jc.Region),
		endpoint:      resolveString(c, "journal-endpoint", jc.Endpoint),
		pathStyle:     resolveBool(c, "journal-s3-path-style", jc.S3PathStyle),
		bufferRecords: resolveInt(c, "journal-buffer-records", jc.BufferRecords),
	}
	if choice.dataset == "" {
		choice.dataset = lode.DefaultDataset
	}

	switch choice.policy {
	case "strict", "noop":
	case "buffered":
		if choice.bufferRecords <= 0 {
			return journalChoice{}, errors.New("buffered policy requires --journal-buffer-records > 0")
		}
	default:
		return journalChoice{}, fmt.Errorf("invalid journal policy: %s (must be strict, buffered, or noop)", choice.policy)
	}
	switch choice.backend {
	case "fs", "memory":
	case "s3":
		if bucket, _ := lode.ParseS3Path(choice.path); bucket == "" && choice.enabled() {
			return journalChoice{}, errors.New("--journal-path must name a bucket for the s3 backend")
		}
	default:
		return journalChoice{}, fmt.Errorf("invalid journal backend: %s (must be fs, s3, or memory)", choice.backend)
	}
	return choice, nil
}

// enabled reports whether records are persisted at all. A journal with no
// path on a durable backend is disabled.
func (j journalChoice) enabled() bool {
	if j.policy == "noop" {
		return false
	}
	return j.backend == "memory" || j.path != ""
}

// location describes where the journal lives, for notifications and reports.
func (j journalChoice) location() string {
	switch {
	case !j.enabled():
		return ""
	case j.backend == "s3":
		cfg := j.s3Config()
		return cfg.URI() + "/" + j.dataset
	case j.backend == "memory":
		return "memory://" + j.dataset
	default:
		return filepath.Join(j.path, j.dataset)
	}
}

func (j journalChoice) s3Config() lode.S3Config {
	bucket, prefix := lode.ParseS3Path(j.path)
	return lode.S3Config{
		Bucket:       bucket,
		Prefix:       prefix,
		Region:       j.region,
		Endpoint:     j.endpoint,
		UsePathStyle: j.pathStyle,
	}
}

// storeFactory resolves the Lode store factory for the backend.
func (j journalChoice) storeFactory(ctx context.Context) (lodelib.StoreFactory, error) {
	switch j.backend {
	case "fs":
		if err := os.MkdirAll(j.path, 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
		return lodelib.NewFSFactory(j.path), nil
	case "s3":
		return lode.NewS3Factory(ctx, j.s3Config())
	case "memory":
		return lode.NewSharedMemoryFactory(), nil
	default:
		return nil, fmt.Errorf("unknown journal backend: %s", j.backend)
	}
}

// policyName is the name reported in metrics and run reports.
func (j journalChoice) policyName() string {
	if !j.enabled() {
		return "none"
	}
	return j.policy
}

// buildJournalPolicy creates the run's journal policy writing through a
// Lode sink partitioned for this run. Returns a noop policy when the
// journal is disabled.
func buildJournalPolicy(j journalChoice, factory lodelib.StoreFactory, meta *types.RunMeta, startTime time.Time, collector *metrics.Collector, logger *log.Logger) (policy.Policy, error) {
	if !j.enabled() || factory == nil {
		return policy.NewNoopPolicy(), nil
	}

	client, err := lode.NewLodeClientWithFactory(lode.Config{
		Dataset: j.dataset,
		StoryID: string(meta.StoryID),
		Day:     lode.DeriveDay(startTime),
		RunID:   meta.RunID,
	}, factory)
	if err != nil {
		return nil, fmt.Errorf("failed to create journal client: %w", err)
	}
	sink := lode.NewInstrumentedSink(lode.NewSink(client), collector)

	switch j.policy {
	case "strict":
		return policy.NewStrictPolicy(sink), nil
	case "buffered":
		return policy.NewBufferedPolicy(sink, policy.BufferedConfig{
			MaxBufferRecords: j.bufferRecords,
			Logger:           logger,
		})
	default:
		return nil, fmt.Errorf("unknown journal policy: %s", j.policy)
	}
}

// --- adapter ---

// adapterChoice holds resolved adapter configuration.
type adapterChoice struct {
	adapterType string
	url         string
	channel     string
	headers     map[string]string
	timeout     time.Duration
	retries     int
}

// parseAdapterConfigWithPrecedence resolves adapter settings for the given
// type. CLI flags override config values.
func parseAdapterConfigWithPrecedence(c *cli.Context, cfg *config.Config, adapterType string) (adapterChoice, error) {
	ac := configVal(cfg, func(c *config.Config) config.AdapterConfig { return c.Adapter })

	headers, err := resolveHeaders(c, "adapter-header", ac.Headers)
	if err != nil {
		return adapterChoice{}, err
	}
	choice := adapterChoice{
		adapterType: adapterType,
		url:         resolveString(c, "adapter-url", ac.URL),
		channel:     resolveString(c, "adapter-channel", ac.Channel),
		headers:     headers,
		timeout:     resolveDuration(c, "adapter-timeout", ac.Timeout.Duration),
		retries:     resolveIntPtr(c, "adapter-retries", ac.Retries),
	}

	switch adapterType {
	case "webhook":
		if choice.url == "" {
			return adapterChoice{}, errors.New("--adapter-url is required when --adapter=webhook")
		}
	case "redis":
		if choice.url == "" {
			return adapterChoice{}, errors.New("--adapter-url is required when --adapter=redis")
		}
	default:
		return adapterChoice{}, fmt.Errorf("unknown adapter type %q (must be webhook or redis)", adapterType)
	}
	return choice, nil
}

// resolveAdapter returns nil when no adapter is configured.
func resolveAdapter(c *cli.Context, cfg *config.Config) (*adapterChoice, error) {
	adapterType := resolveString(c, "adapter", configVal(cfg, func(c *config.Config) string { return c.Adapter.Type }))
	if adapterType == "" {
		return nil, nil
	}
	choice, err := parseAdapterConfigWithPrecedence(c, cfg, adapterType)
	if err != nil {
		return nil, err
	}
	return &choice, nil
}

func buildAdapter(choice *adapterChoice) (adapter.Adapter, error) {
	if choice == nil {
		return nil, nil
	}
	switch choice.adapterType {
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     choice.url,
			Headers: choice.headers,
			Timeout: choice.timeout,
			Retries: choice.retries,
		})
	case "redis":
		return redis.New(redis.Config{
			URL:     choice.url,
			Channel: choice.channel,
			Timeout: choice.timeout,
			Retries: choice.retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter type %q", choice.adapterType)
	}
}
