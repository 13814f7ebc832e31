package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ghostwriter/cli/config"
	"github.com/pithecene-io/ghostwriter/gateway/memory"
	"github.com/pithecene-io/ghostwriter/gateway/sqlite"
	"github.com/pithecene-io/ghostwriter/lode"
	"github.com/pithecene-io/ghostwriter/log"
	"github.com/pithecene-io/ghostwriter/types"
)

// --- gateway ---

func TestParseGatewayConfig_Defaults(t *testing.T) {
	withFlags(t, gatewayFlags(), nil, func(c *cli.Context) {
		gc, err := parseGatewayConfigWithPrecedence(c, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gc.gatewayType != config.GatewayMemory {
			t.Errorf("gatewayType = %q, want memory", gc.gatewayType)
		}
		if gc.timeout != 30*time.Second || gc.retries != 2 {
			t.Errorf("unexpected defaults: timeout=%s retries=%d", gc.timeout, gc.retries)
		}
	})
}

func TestParseGatewayConfig_RelayRequiresURL(t *testing.T) {
	withFlags(t, gatewayFlags(), []string{"--gateway", "relay"}, func(c *cli.Context) {
		_, err := parseGatewayConfigWithPrecedence(c, nil)
		if err == nil || !strings.Contains(err.Error(), "--gateway-url is required when --gateway=relay") {
			t.Errorf("expected relay URL error, got: %v", err)
		}
	})
}

func TestParseGatewayConfig_ProcessRequiresCommand(t *testing.T) {
	withFlags(t, gatewayFlags(), []string{"--gateway", "process"}, func(c *cli.Context) {
		_, err := parseGatewayConfigWithPrecedence(c, nil)
		if err == nil || !strings.Contains(err.Error(), "--gateway-command is required") {
			t.Errorf("expected command error, got: %v", err)
		}
	})
}

func TestParseGatewayConfig_UnknownType(t *testing.T) {
	withFlags(t, gatewayFlags(), []string{"--gateway", "chain"}, func(c *cli.Context) {
		_, err := parseGatewayConfigWithPrecedence(c, nil)
		if err == nil || !strings.Contains(err.Error(), `unknown gateway type "chain"`) {
			t.Errorf("expected unknown type error, got: %v", err)
		}
	})
}

func TestParseGatewayConfig_ConfigProvidesRelay(t *testing.T) {
	retries := 0
	cfg := &config.Config{Gateway: config.GatewayConfig{
		Type:    config.GatewayRelay,
		URL:     "http://relayer.internal",
		Headers: map[string]string{"Authorization": "Bearer t"},
		Timeout: config.Duration{Duration: 5 * time.Second},
		Retries: &retries,
	}}

	withFlags(t, gatewayFlags(), []string{"--gateway-header", "X-Trace=1"}, func(c *cli.Context) {
		gc, err := parseGatewayConfigWithPrecedence(c, cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gc.gatewayType != config.GatewayRelay || gc.url != "http://relayer.internal" {
			t.Errorf("unexpected gateway choice: %+v", gc)
		}
		if gc.timeout != 5*time.Second || gc.retries != 0 {
			t.Errorf("config timeout/retries not applied: %+v", gc)
		}
		if gc.headers["Authorization"] != "Bearer t" || gc.headers["X-Trace"] != "1" {
			t.Errorf("headers not merged: %v", gc.headers)
		}
	})
}

func TestOpenGateway_Memory(t *testing.T) {
	gw, err := openGateway(t.Context(), gatewayChoice{gatewayType: config.GatewayMemory}, log.Nop())
	if err != nil {
		t.Fatalf("openGateway: %v", err)
	}
	defer func() { _ = gw.Close() }()

	simulate(gw.Gateway, "s1", 10)
	mem, ok := gw.Gateway.(*memory.Gateway)
	if !ok {
		t.Fatalf("expected memory gateway, got %T", gw.Gateway)
	}
	if _, err := mem.ProcessCompletionBatch(t.Context(), "s1", types.SlotRange{Start: 1, End: 10}); err != nil {
		t.Errorf("registered story should accept a batch: %v", err)
	}
}

func TestOpenGateway_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	gw, err := openGateway(t.Context(), gatewayChoice{gatewayType: config.GatewaySQLite, path: path}, log.Nop())
	if err != nil {
		t.Fatalf("openGateway: %v", err)
	}
	if _, ok := gw.Gateway.(*sqlite.Ledger); !ok {
		t.Errorf("expected sqlite ledger, got %T", gw.Gateway)
	}
	// simulate only touches the memory gateway.
	simulate(gw.Gateway, "s1", 10)
	if err := gw.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

// --- journal ---

func TestParseJournalConfig_Defaults(t *testing.T) {
	withFlags(t, journalFlags(), nil, func(c *cli.Context) {
		j, err := parseJournalConfigWithPrecedence(c, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if j.policy != "strict" || j.backend != "fs" || j.dataset != "ghostwriter" {
			t.Errorf("unexpected defaults: %+v", j)
		}
		if j.enabled() {
			t.Error("journal without a path should be disabled")
		}
		if j.policyName() != "none" || j.location() != "" {
			t.Errorf("disabled journal: policyName=%q location=%q", j.policyName(), j.location())
		}
	})
}

func TestParseJournalConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"invalid policy", []string{"--journal-policy", "eventual"}, "invalid journal policy: eventual"},
		{"invalid backend", []string{"--journal-backend", "gcs"}, "invalid journal backend: gcs"},
		{"buffered without capacity", []string{"--journal-policy", "buffered", "--journal-buffer-records", "0"}, "requires --journal-buffer-records"},
		{"s3 without bucket", []string{"--journal-backend", "s3", "--journal-path", "/"}, "must name a bucket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withFlags(t, journalFlags(), tt.args, func(c *cli.Context) {
				_, err := parseJournalConfigWithPrecedence(c, nil)
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("expected error containing %q, got: %v", tt.wantErr, err)
				}
			})
		})
	}
}

func TestJournalChoice_Location(t *testing.T) {
	tests := []struct {
		name   string
		choice journalChoice
		want   string
	}{
		{"fs", journalChoice{policy: "strict", backend: "fs", path: "/data", dataset: "gw"}, filepath.Join("/data", "gw")},
		{"s3", journalChoice{policy: "strict", backend: "s3", path: "bucket/prefix", dataset: "gw"}, "s3://bucket/prefix/gw"},
		{"memory", journalChoice{policy: "strict", backend: "memory", dataset: "gw"}, "memory://gw"},
		{"noop", journalChoice{policy: "noop", backend: "fs", path: "/data", dataset: "gw"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.choice.location(); got != tt.want {
				t.Errorf("location() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestJournalChoice_S3Config(t *testing.T) {
	j := journalChoice{backend: "s3", path: "bucket/runs/gw", region: "us-east-1", endpoint: "http://minio:9000", pathStyle: true}
	got := j.s3Config()
	want := lode.S3Config{Bucket: "bucket", Prefix: "runs/gw", Region: "us-east-1", Endpoint: "http://minio:9000", UsePathStyle: true}
	if got != want {
		t.Errorf("s3Config() = %+v, want %+v", got, want)
	}
}

func TestBuildJournalPolicy(t *testing.T) {
	meta := &types.RunMeta{RunID: "run-1", StoryID: "s1", Attempt: 1}
	factory := lode.NewSharedMemoryFactory()

	tests := []struct {
		name   string
		choice journalChoice
		want   string
	}{
		{"strict", journalChoice{policy: "strict", backend: "memory", dataset: "gw"}, "*policy.StrictPolicy"},
		{"buffered", journalChoice{policy: "buffered", backend: "memory", dataset: "gw", bufferRecords: 10}, "*policy.BufferedPolicy"},
		{"noop", journalChoice{policy: "noop", backend: "memory", dataset: "gw"}, "*policy.NoopPolicy"},
		{"disabled", journalChoice{policy: "strict", backend: "fs", dataset: "gw"}, "*policy.NoopPolicy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pol, err := buildJournalPolicy(tt.choice, factory, meta, time.Now(), nil, log.Nop())
			if err != nil {
				t.Fatalf("buildJournalPolicy: %v", err)
			}
			defer func() { _ = pol.Close() }()
			if got := fmt.Sprintf("%T", pol); got != tt.want {
				t.Errorf("policy type = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBuildJournalPolicy_WritesThroughLode(t *testing.T) {
	meta := &types.RunMeta{RunID: "run-1", StoryID: "s1", Attempt: 1}
	factory := lode.NewSharedMemoryFactory()
	j := journalChoice{policy: "strict", backend: "memory", dataset: "gw"}

	pol, err := buildJournalPolicy(j, factory, meta, time.Now(), nil, log.Nop())
	if err != nil {
		t.Fatalf("buildJournalPolicy: %v", err)
	}
	rec := &types.JournalRecord{RecordKind: types.RecordKindStep, Seq: 1, RunID: "run-1", StoryID: "s1", Attempt: 1, Event: "run_started"}
	if err := pol.Ingest(context.Background(), rec); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	_ = pol.Close()

	ds, err := lode.NewReadDataset("gw", factory)
	if err != nil {
		t.Fatalf("NewReadDataset: %v", err)
	}
	records, err := lode.QueryHistory(t.Context(), ds, "s1", "run-1")
	if err != nil {
		t.Fatalf("QueryHistory: %v", err)
	}
	if len(records) != 1 || records[0].Event != "run_started" {
		t.Errorf("expected the ingested record back, got %+v", records)
	}
}

// --- adapter ---

func TestParseAdapterConfig_WebhookValid(t *testing.T) {
	withFlags(t, adapterFlags(), []string{"--adapter-url", "https://hooks.example.com/ghostwriter"}, func(c *cli.Context) {
		ac, err := parseAdapterConfigWithPrecedence(c, nil, "webhook")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ac.adapterType != "webhook" {
			t.Errorf("adapterType = %q, want %q", ac.adapterType, "webhook")
		}
		if ac.url != "https://hooks.example.com/ghostwriter" {
			t.Errorf("url = %q", ac.url)
		}
		if ac.retries != 3 {
			t.Errorf("retries = %d, want flag default 3", ac.retries)
		}
	})
}

func TestParseAdapterConfig_MissingURL(t *testing.T) {
	for _, typ := range []string{"webhook", "redis"} {
		t.Run(typ, func(t *testing.T) {
			withFlags(t, adapterFlags(), nil, func(c *cli.Context) {
				_, err := parseAdapterConfigWithPrecedence(c, nil, typ)
				want := "--adapter-url is required when --adapter=" + typ
				if err == nil || !strings.Contains(err.Error(), want) {
					t.Errorf("expected %q, got: %v", want, err)
				}
			})
		})
	}
}

func TestParseAdapterConfig_UnknownType(t *testing.T) {
	withFlags(t, adapterFlags(), []string{"--adapter-url", "https://example.com"}, func(c *cli.Context) {
		_, err := parseAdapterConfigWithPrecedence(c, nil, "kafka")
		if err == nil {
			t.Fatal("expected error for unknown adapter type")
		}
		if !strings.Contains(err.Error(), "unknown adapter type") || !strings.Contains(err.Error(), "kafka") {
			t.Errorf("error should name the bad type, got: %v", err)
		}
	})
}

func TestParseAdapterConfig_ConfigPrecedence(t *testing.T) {
	retries := 5
	cfg := &config.Config{Adapter: config.AdapterConfig{
		Type:    "redis",
		URL:     "redis://config:6379",
		Channel: "stories",
		Retries: &retries,
	}}

	withFlags(t, adapterFlags(), nil, func(c *cli.Context) {
		choice, err := resolveAdapter(c, cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if choice == nil || choice.adapterType != "redis" || choice.channel != "stories" || choice.retries != 5 {
			t.Errorf("config values not applied: %+v", choice)
		}
	})
	withFlags(t, adapterFlags(), []string{"--adapter-url", "redis://cli:6379"}, func(c *cli.Context) {
		choice, err := resolveAdapter(c, cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if choice.url != "redis://cli:6379" {
			t.Errorf("CLI should override config URL, got %q", choice.url)
		}
	})
}

func TestResolveAdapter_NoneConfigured(t *testing.T) {
	withFlags(t, adapterFlags(), nil, func(c *cli.Context) {
		choice, err := resolveAdapter(c, nil)
		if err != nil || choice != nil {
			t.Errorf("expected no adapter, got %+v, %v", choice, err)
		}
		a, err := buildAdapter(choice)
		if err != nil || a != nil {
			t.Errorf("buildAdapter(nil) = %v, %v", a, err)
		}
	})
}
