// Package server exposes story completion over HTTP.
//
// Runs started through the API execute in the background; clients poll the
// completion endpoint for progress.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	lodelib "github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/ghostwriter/iox"
	"github.com/pithecene-io/ghostwriter/log"
	"github.com/pithecene-io/ghostwriter/runtime"
	"github.com/pithecene-io/ghostwriter/types"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = "127.0.0.1:8547"

// RunConfigFunc builds the run configuration for a run the API starts.
// The server fills in RunMeta and TotalSlots on the returned config.
type RunConfigFunc func(meta *types.RunMeta, totalSlots int) (*runtime.RunConfig, error)

// Config configures the HTTP server.
type Config struct {
	// Addr is the listen address (default DefaultAddr).
	Addr string
	// BatchSize is the default batch size for plan previews. Zero uses the
	// coordinator default.
	BatchSize int
	// NewRunConfig builds per-run wiring (gateway, journal, adapter).
	NewRunConfig RunConfigFunc
	// Journal is the dataset the history endpoint reads. Optional; without
	// it the endpoint answers 404.
	Journal lodelib.Dataset
	// Logger is the server logger. Defaults to a component logger.
	Logger *log.Logger
}

// Server is the completion HTTP API.
type Server struct {
	config   Config
	logger   *log.Logger
	registry *Registry
	router   chi.Router

	// runCtx parents background runs; canceled by Close.
	runCtx    context.Context
	cancelRun context.CancelFunc
	runs      sync.WaitGroup

	newRunID func() string
}

// New creates a server with all routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.NewRunConfig == nil {
		return nil, errors.New("server: NewRunConfig is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewComponentLogger("server")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:    cfg,
		logger:    logger,
		registry:  NewRegistry(),
		runCtx:    ctx,
		cancelRun: cancel,
		newRunID:  uuid.NewString,
	}
	s.router = s.buildRouter()
	return s, nil
}

// ServeHTTP delegates to the chi router, satisfying http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Route("/stories/{storyID}", func(r chi.Router) {
		r.Get("/plan", s.handlePlan)
		r.Get("/completion", s.handleGetCompletion)
		r.Post("/completion", s.handleStartCompletion)
		r.Post("/completion/reset", s.handleReset)
		r.Get("/history", s.handleHistory)
	})
	return r
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully
// and waits for background runs to settle.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", map[string]any{"addr": s.config.Addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	if err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// Close cancels in-flight runs and waits for them to return.
func (s *Server) Close() {
	s.cancelRun()
	s.runs.Wait()
}

// Wait blocks until every background run has returned.
func (s *Server) Wait() {
	s.runs.Wait()
}

// startRun launches a run in the background. The registry entry is
// released when the run returns.
func (s *Server) startRun(storyID types.StoryID, totalSlots int) (*types.RunMeta, types.CompletionState, error) {
	var cfg *runtime.RunConfig
	run, meta, err := s.registry.Begin(storyID, s.newRunID(), func(meta *types.RunMeta) (*runtime.CompletionRun, error) {
		c, err := s.config.NewRunConfig(meta, totalSlots)
		if err != nil {
			return nil, err
		}
		c.RunMeta = meta
		c.TotalSlots = totalSlots
		run, err := runtime.NewCompletionRun(c)
		if err != nil {
			releaseRunConfig(c)
			return nil, err
		}
		cfg = c
		return run, nil
	})
	if err != nil {
		return nil, types.CompletionState{}, err
	}

	// Read before the goroutine starts so the response shows the accepted run.
	state := s.registry.Get(storyID).State

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		defer releaseRunConfig(cfg)
		result, err := run.Execute(s.runCtx)
		if err != nil {
			s.logger.Error("completion run failed to execute", map[string]any{
				"story_id": string(storyID),
				"run_id":   meta.RunID,
				"error":    err.Error(),
			})
		}
		s.registry.Finish(storyID, result)
	}()

	return meta, state, nil
}

// releaseRunConfig closes the per-run journal policy and adapter.
// The gateway is shared across runs and stays open.
func releaseRunConfig(cfg *runtime.RunConfig) {
	_ = iox.CloseAll(cfg.Policy, cfg.Adapter)
}
