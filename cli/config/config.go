package config

import (
	"fmt"
	"time"
)

// Config represents a ghostwriter.yaml configuration file.
// All values are optional and act as defaults for command flags.
// CLI flags always override config values.
type Config struct {
	Gateway    GatewayConfig    `yaml:"gateway"`
	Completion CompletionConfig `yaml:"completion"`
	Journal    JournalConfig    `yaml:"journal"`
	Adapter    AdapterConfig    `yaml:"adapter"`
	Server     ServerConfig     `yaml:"server"`
}

// GatewayConfig selects and configures the mutation gateway.
type GatewayConfig struct {
	// Type is one of memory, sqlite, relay, process.
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url,omitempty"`
	Path    string            `yaml:"path,omitempty"`
	Command string            `yaml:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// CompletionConfig holds coordinator defaults.
type CompletionConfig struct {
	BatchSize int `yaml:"batch_size"`
}

// JournalConfig holds journal storage and policy defaults.
type JournalConfig struct {
	Policy        string `yaml:"policy"`
	Backend       string `yaml:"backend"`
	Path          string `yaml:"path"`
	Dataset       string `yaml:"dataset"`
	Region        string `yaml:"region"`
	Endpoint      string `yaml:"endpoint"`
	S3PathStyle   bool   `yaml:"s3_path_style"`
	BufferRecords int    `yaml:"buffer_records"`
}

// AdapterConfig holds adapter defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// ServerConfig holds HTTP API defaults.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML renders the duration in the form UnmarshalYAML accepts.
func (d Duration) MarshalYAML() (any, error) {
	if d.Duration == 0 {
		return "", nil
	}
	return d.String(), nil
}

// Gateway types.
const (
	GatewayMemory  = "memory"
	GatewaySQLite  = "sqlite"
	GatewayRelay   = "relay"
	GatewayProcess = "process"
)

// Validate checks enumerated values. Empty values are allowed and resolved
// to command defaults later.
func (c *Config) Validate() error {
	switch c.Gateway.Type {
	case "", GatewayMemory, GatewaySQLite, GatewayRelay, GatewayProcess:
	default:
		return fmt.Errorf("gateway.type: unknown gateway %q", c.Gateway.Type)
	}
	switch c.Journal.Policy {
	case "", "strict", "buffered", "noop":
	default:
		return fmt.Errorf("journal.policy: unknown policy %q", c.Journal.Policy)
	}
	switch c.Journal.Backend {
	case "", "fs", "s3", "memory":
	default:
		return fmt.Errorf("journal.backend: unknown backend %q", c.Journal.Backend)
	}
	switch c.Adapter.Type {
	case "", "webhook", "redis":
	default:
		return fmt.Errorf("adapter.type: unknown adapter %q", c.Adapter.Type)
	}
	if c.Completion.BatchSize < 0 {
		return fmt.Errorf("completion.batch_size: must be >= 0, got %d", c.Completion.BatchSize)
	}
	if c.Journal.BufferRecords < 0 {
		return fmt.Errorf("journal.buffer_records: must be >= 0, got %d", c.Journal.BufferRecords)
	}
	return nil
}
