// Package redis implements a Redis notification adapter.
//
// A story_completed event is PUBLISHed as JSON on a channel and also
// stored under a per-story key, so consumers that were not subscribed at
// the time can still read the latest completion of a story.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/ghostwriter/adapter"
)

const (
	DefaultChannel   = "ghostwriter:story_completed"
	DefaultKeyPrefix = "ghostwriter:story:"
	DefaultTimeout   = 5 * time.Second
	DefaultRetries   = 3
	DefaultBackoff   = 500 * time.Millisecond
)

// Config configures the Redis adapter.
type Config struct {
	// URL is required. Format: redis://[:password@]host:port[/db]
	URL       string
	Channel   string
	KeyPrefix string
	// KeyTTL expires the per-story key. Zero keeps it forever.
	KeyTTL  time.Duration
	Timeout time.Duration // per attempt
	Retries int
	Backoff time.Duration
}

// Adapter publishes story completion events to Redis.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New creates a Redis adapter. The URL must parse as a Redis URL.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	return &Adapter{
		config: cfg,
		client: goredis.NewClient(opts),
	}, nil
}

// Key returns the per-story key holding the latest completion event.
func (a *Adapter) Key(storyID string) string {
	return a.config.KeyPrefix + storyID
}

// Publish stores the event under the story key and publishes it on the
// channel in one pipeline. A closed client is not retried.
func (a *Adapter) Publish(ctx context.Context, event *adapter.StoryCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}
	policy := adapter.RetryPolicy{Retries: a.config.Retries, Backoff: a.config.Backoff}
	err = adapter.Retry(ctx, policy, func(ctx context.Context) (time.Duration, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()

		_, err := a.client.Pipelined(attemptCtx, func(p goredis.Pipeliner) error {
			p.Set(attemptCtx, a.Key(event.StoryID), body, a.config.KeyTTL)
			p.Publish(attemptCtx, a.config.Channel, body)
			return nil
		})
		if errors.Is(err, goredis.ErrClosed) {
			return 0, &adapter.Permanent{Err: err}
		}
		return 0, err
	})
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

// Close closes the client.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
