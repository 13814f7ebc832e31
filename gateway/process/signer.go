package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/pithecene-io/ghostwriter/log"
)

// Config configures a signer subprocess.
type Config struct {
	// Path is the signer executable.
	Path string
	// Args are passed to the signer.
	Args []string
	// Env is added to the inherited environment; entries here win.
	Env map[string]string
	// Stderr receives the signer's diagnostics. Defaults to os.Stderr.
	Stderr io.Writer
	// Logger defaults to a no-op logger.
	Logger *log.Logger
}

type signer struct {
	cmd *exec.Cmd
}

// Start launches the signer and returns a gateway speaking to it.
// The process is killed if ctx is canceled.
func Start(ctx context.Context, cfg Config) (*Gateway, error) {
	if cfg.Path == "" {
		return nil, errors.New("signer path is required")
	}

	cmd := exec.CommandContext(ctx, cfg.Path, cfg.Args...)
	if len(cfg.Env) > 0 {
		env := os.Environ()
		for k, v := range cfg.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = deduplicateEnv(env)
	}
	cmd.Stderr = cfg.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start signer: %w", err)
	}

	gw := New(stdout, stdin, cfg.Logger)
	gw.signer = &signer{cmd: cmd}
	gw.logger.Info("signer started", map[string]any{
		"path": cfg.Path,
		"pid":  cmd.Process.Pid,
	})
	return gw, nil
}

// wait reaps the process and reports a non-zero exit.
func (s *signer) wait() error {
	err := s.cmd.Wait()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("signer exited with code %d", exitErr.ExitCode())
	}
	return fmt.Errorf("signer wait failed: %w", err)
}

func (s *signer) kill() error {
	if s.cmd.Process != nil {
		return s.cmd.Process.Kill()
	}
	return nil
}

// deduplicateEnv keeps the last occurrence of each env var key.
func deduplicateEnv(env []string) []string {
	seen := make(map[string]int, len(env))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		seen[key] = i
	}
	result := make([]string, 0, len(seen))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		if seen[key] == i {
			result = append(result, entry)
		}
	}
	return result
}
