package cmd

import (
	"flag"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ghostwriter/cli/config"
)

// newTestCLIContext builds a context whose string flags carry defaults;
// only flagValues count as explicitly set.
func newTestCLIContext(t *testing.T, flagValues map[string]string, defaultFlags map[string]string) *cli.Context {
	t.Helper()
	app := cli.NewApp()

	allFlags := make(map[string]string)
	for k, v := range defaultFlags {
		allFlags[k] = v
	}
	for k, v := range flagValues {
		allFlags[k] = v
	}

	var cliFlags []cli.Flag
	for name, val := range allFlags {
		cliFlags = append(cliFlags, &cli.StringFlag{Name: name, Value: val})
	}
	app.Flags = cliFlags

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	for name, val := range allFlags {
		fs.String(name, val, "")
	}
	for name, val := range flagValues {
		if err := fs.Set(name, val); err != nil {
			t.Fatalf("failed to set flag %s: %v", name, err)
		}
	}

	return cli.NewContext(app, fs, nil)
}

// withFlags runs fn inside a real app invocation so slice and duration
// flags behave as they do in production.
func withFlags(t *testing.T, flags []cli.Flag, args []string, fn func(c *cli.Context)) {
	t.Helper()
	app := cli.NewApp()
	app.Flags = flags
	app.ExitErrHandler = func(*cli.Context, error) {}
	app.Action = func(c *cli.Context) error {
		fn(c)
		return nil
	}
	if err := app.Run(append([]string{"test"}, args...)); err != nil {
		t.Fatalf("app.Run: %v", err)
	}
}

func TestResolveString_CLIWins(t *testing.T) {
	c := newTestCLIContext(t, map[string]string{"gateway": "relay"}, nil)
	if got := resolveString(c, "gateway", "sqlite"); got != "relay" {
		t.Errorf("expected CLI to win, got %q", got)
	}
}

func TestResolveString_ConfigFallback(t *testing.T) {
	c := newTestCLIContext(t, nil, map[string]string{"gateway": "memory"})
	if got := resolveString(c, "gateway", "sqlite"); got != "sqlite" {
		t.Errorf("expected config value, got %q", got)
	}
}

func TestResolveString_FlagDefault(t *testing.T) {
	c := newTestCLIContext(t, nil, map[string]string{"gateway": "memory"})
	if got := resolveString(c, "gateway", ""); got != "memory" {
		t.Errorf("expected flag default, got %q", got)
	}
}

func TestConfigVal_NilConfig(t *testing.T) {
	got := configVal(nil, func(c *config.Config) int { return c.Completion.BatchSize })
	if got != 0 {
		t.Errorf("expected zero value for nil config, got %d", got)
	}
}

func TestConfigVal_NonNil(t *testing.T) {
	cfg := &config.Config{Completion: config.CompletionConfig{BatchSize: 25}}
	got := configVal(cfg, func(c *config.Config) int { return c.Completion.BatchSize })
	if got != 25 {
		t.Errorf("expected 25, got %d", got)
	}
}

func TestResolveInt_CLIWins(t *testing.T) {
	c := newTestCLIContext(t, map[string]string{"batch-size": "10"}, nil)
	if got := resolveInt(c, "batch-size", 25); got != 10 {
		t.Errorf("expected CLI to win, got %d", got)
	}
}

func TestResolveInt_ConfigFallback(t *testing.T) {
	c := newTestCLIContext(t, nil, map[string]string{"batch-size": "0"})
	if got := resolveInt(c, "batch-size", 25); got != 25 {
		t.Errorf("expected config value, got %d", got)
	}
}

func TestResolveIntPtr(t *testing.T) {
	zero := 0
	flags := []cli.Flag{&cli.IntFlag{Name: "retries", Value: 3}}

	withFlags(t, flags, nil, func(c *cli.Context) {
		if got := resolveIntPtr(c, "retries", nil); got != 3 {
			t.Errorf("unset config: got %d, want flag default 3", got)
		}
		if got := resolveIntPtr(c, "retries", &zero); got != 0 {
			t.Errorf("explicit zero in config: got %d, want 0", got)
		}
	})
	withFlags(t, flags, []string{"--retries", "5"}, func(c *cli.Context) {
		if got := resolveIntPtr(c, "retries", &zero); got != 5 {
			t.Errorf("CLI should win: got %d, want 5", got)
		}
	})
}

func TestResolveBool(t *testing.T) {
	flags := []cli.Flag{&cli.BoolFlag{Name: "path-style"}}

	withFlags(t, flags, nil, func(c *cli.Context) {
		if !resolveBool(c, "path-style", true) {
			t.Error("expected config true to apply when flag unset")
		}
	})
	withFlags(t, flags, []string{"--path-style=false"}, func(c *cli.Context) {
		if resolveBool(c, "path-style", true) {
			t.Error("expected explicit CLI false to win")
		}
	})
}

func TestResolveDuration(t *testing.T) {
	flags := []cli.Flag{&cli.DurationFlag{Name: "timeout", Value: 30 * time.Second}}

	withFlags(t, flags, nil, func(c *cli.Context) {
		if got := resolveDuration(c, "timeout", 5*time.Second); got != 5*time.Second {
			t.Errorf("expected config value, got %s", got)
		}
		if got := resolveDuration(c, "timeout", 0); got != 30*time.Second {
			t.Errorf("expected flag default, got %s", got)
		}
	})
	withFlags(t, flags, []string{"--timeout", "2s"}, func(c *cli.Context) {
		if got := resolveDuration(c, "timeout", 5*time.Second); got != 2*time.Second {
			t.Errorf("expected CLI to win, got %s", got)
		}
	})
}

func TestResolveSlice(t *testing.T) {
	flags := []cli.Flag{&cli.StringSliceFlag{Name: "arg"}}

	withFlags(t, flags, nil, func(c *cli.Context) {
		got := resolveSlice(c, "arg", []string{"sign", "--path", "x.db"})
		if strings.Join(got, " ") != "sign --path x.db" {
			t.Errorf("expected config args, got %v", got)
		}
	})
	withFlags(t, flags, []string{"--arg", "a", "--arg", "b"}, func(c *cli.Context) {
		got := resolveSlice(c, "arg", []string{"sign"})
		if strings.Join(got, " ") != "a b" {
			t.Errorf("expected CLI args, got %v", got)
		}
	})
}

func TestResolveHeaders(t *testing.T) {
	flags := []cli.Flag{&cli.StringSliceFlag{Name: "header"}}

	withFlags(t, flags, []string{"--header", "X-Key=cli", "--header", "X-Extra=a=b"}, func(c *cli.Context) {
		got, err := resolveHeaders(c, "header", map[string]string{"X-Key": "config", "X-Source": "ghostwriter"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got["X-Key"] != "cli" {
			t.Errorf("flag header should win, got %q", got["X-Key"])
		}
		if got["X-Source"] != "ghostwriter" {
			t.Errorf("config header not merged, got %v", got)
		}
		if got["X-Extra"] != "a=b" {
			t.Errorf("value should keep everything after the first '=', got %q", got["X-Extra"])
		}
	})

	withFlags(t, flags, nil, func(c *cli.Context) {
		got, err := resolveHeaders(c, "header", nil)
		if err != nil || got != nil {
			t.Errorf("expected nil headers, got %v, %v", got, err)
		}
	})
}

func TestResolveHeaders_Malformed(t *testing.T) {
	flags := []cli.Flag{&cli.StringSliceFlag{Name: "adapter-header"}}

	withFlags(t, flags, []string{"--adapter-header", "no-equals-sign"}, func(c *cli.Context) {
		_, err := resolveHeaders(c, "adapter-header", nil)
		if err == nil {
			t.Fatal("expected error for malformed header")
		}
		if !strings.Contains(err.Error(), "invalid --adapter-header") {
			t.Errorf("error should mention invalid header, got: %v", err)
		}
		if !strings.Contains(err.Error(), "key=value") {
			t.Errorf("error should suggest key=value format, got: %v", err)
		}
	})
}
