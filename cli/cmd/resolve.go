package cmd

import (
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ghostwriter/cli/config"
)

// Precedence for every resolved value: explicit CLI flag, then config file,
// then the flag default.

// loadConfig loads --config, or ./ghostwriter.yaml when present.
func loadConfig(c *cli.Context) (*config.Config, error) {
	return config.LoadOrDefault(c.String("config"))
}

// configVal reads a field from cfg, tolerating a nil config.
func configVal[T any](cfg *config.Config, get func(*config.Config) T) T {
	if cfg == nil {
		var zero T
		return zero
	}
	return get(cfg)
}

func resolveString(c *cli.Context, name, cfgVal string) string {
	if c.IsSet(name) {
		return c.String(name)
	}
	if cfgVal != "" {
		return cfgVal
	}
	return c.String(name)
}

func resolveInt(c *cli.Context, name string, cfgVal int) int {
	if c.IsSet(name) {
		return c.Int(name)
	}
	if cfgVal != 0 {
		return cfgVal
	}
	return c.Int(name)
}

// resolveIntPtr distinguishes an explicit zero in config from an unset value.
func resolveIntPtr(c *cli.Context, name string, cfgVal *int) int {
	if c.IsSet(name) || cfgVal == nil {
		return c.Int(name)
	}
	return *cfgVal
}

func resolveBool(c *cli.Context, name string, cfgVal bool) bool {
	if c.IsSet(name) {
		return c.Bool(name)
	}
	return cfgVal || c.Bool(name)
}

func resolveDuration(c *cli.Context, name string, cfgVal time.Duration) time.Duration {
	if c.IsSet(name) {
		return c.Duration(name)
	}
	if cfgVal > 0 {
		return cfgVal
	}
	return c.Duration(name)
}

func resolveSlice(c *cli.Context, name string, cfgVal []string) []string {
	if c.IsSet(name) || len(cfgVal) == 0 {
		return c.StringSlice(name)
	}
	return cfgVal
}

// resolveHeaders merges config headers with repeatable key=value flags.
// Flag values win on key conflicts.
func resolveHeaders(c *cli.Context, name string, cfgVal map[string]string) (map[string]string, error) {
	headers := make(map[string]string, len(cfgVal))
	maps.Copy(headers, cfgVal)
	for _, h := range c.StringSlice(name) {
		k, v, ok := strings.Cut(h, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid --%s %q: expected key=value", name, h)
		}
		headers[strings.TrimSpace(k)] = v
	}
	if len(headers) == 0 {
		return nil, nil
	}
	return headers, nil
}
