// Package webhook implements an HTTP POST notification adapter.
//
// Each story_completed event is POSTed as JSON. Deliveries carry the run ID
// as an idempotency key so receivers can drop the duplicates that retries
// produce.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/pithecene-io/ghostwriter/adapter"
	"github.com/pithecene-io/ghostwriter/iox"
)

const (
	DefaultTimeout = 10 * time.Second
	DefaultRetries = 3
	DefaultBackoff = 500 * time.Millisecond

	// EventHeader carries the event type so receivers can route without parsing.
	EventHeader = "X-Ghostwriter-Event"
	// IdempotencyHeader carries the run ID of the completed story.
	IdempotencyHeader = "Idempotency-Key"

	maxRetryAfter = time.Minute
)

// Config configures the webhook adapter.
type Config struct {
	URL     string            // required
	Headers map[string]string // added to every request
	Timeout time.Duration     // per request
	Retries int
	Backoff time.Duration // first retry delay, doubled per retry
}

// Adapter publishes story completion events via HTTP POST.
type Adapter struct {
	config Config
	client *http.Client
}

// New creates a webhook adapter. The URL is required.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook adapter requires a URL")
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	return &Adapter{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Publish POSTs the event. 5xx, 408 and 429 responses and transport
// errors are retried; any other 4xx fails at once. A Retry-After header
// on a retriable response stretches the next backoff.
func (a *Adapter) Publish(ctx context.Context, event *adapter.StoryCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}
	policy := adapter.RetryPolicy{Retries: a.config.Retries, Backoff: a.config.Backoff}
	err = adapter.Retry(ctx, policy, func(ctx context.Context) (time.Duration, error) {
		return a.deliver(ctx, event, body)
	})
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

func retriable(code int) bool {
	return code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}

func (a *Adapter) deliver(ctx context.Context, event *adapter.StoryCompletedEvent, body []byte) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.URL, bytes.NewReader(body))
	if err != nil {
		return 0, &adapter.Permanent{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if event.EventType != "" {
		req.Header.Set(EventHeader, event.EventType)
	}
	if event.RunID != "" {
		req.Header.Set(IdempotencyHeader, event.RunID)
	}
	for k, v := range a.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer iox.DrainClose(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return 0, nil
	}
	statusErr := &StatusError{Code: resp.StatusCode}
	if !retriable(resp.StatusCode) {
		return 0, &adapter.Permanent{Err: statusErr}
	}
	return parseRetryAfter(resp.Header.Get("Retry-After")), statusErr
}

// parseRetryAfter reads a delay-seconds Retry-After value, capped at a
// minute. HTTP-date values and garbage yield zero.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, maxRetryAfter)
}

// Close releases idle connections.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
