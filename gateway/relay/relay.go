// Package relay implements completion.Gateway over a transaction relayer's
// HTTP API.
//
// The relayer signs and submits the story contract calls:
//
//	POST {base}/stories/{id}/batches   {"start":1,"end":50}
//	POST {base}/stories/{id}/finalize
//
// and answers 2xx with {"tx_hash":"0x…","applied":true}. Both calls are
// idempotent on the relayer side, so 5xx responses and network errors are
// retried here with exponential backoff before a step is reported failed.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pithecene-io/ghostwriter/adapter"
	"github.com/pithecene-io/ghostwriter/completion"
	"github.com/pithecene-io/ghostwriter/iox"
	"github.com/pithecene-io/ghostwriter/log"
	"github.com/pithecene-io/ghostwriter/types"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// DefaultBackoff is the delay before the first retry; it doubles per retry.
const DefaultBackoff = 500 * time.Millisecond

// maxErrorBody bounds how much of an error response is kept for the message.
const maxErrorBody = 4 << 10

// Config configures the relay gateway.
type Config struct {
	// URL is the relayer base URL (required).
	URL string
	// Headers are added to every request (e.g. Authorization).
	Headers map[string]string
	// Timeout is the per-request timeout (default 30s).
	Timeout time.Duration
	// Retries is the number of retry attempts on transient failure.
	// Zero disables retries.
	Retries int
	// Backoff is the initial retry delay (default 500ms).
	Backoff time.Duration
	// Logger defaults to a no-op logger.
	Logger *log.Logger
}

// Gateway talks to a relayer.
type Gateway struct {
	base   *url.URL
	config Config
	client *http.Client
	logger *log.Logger
}

var _ completion.Gateway = (*Gateway)(nil)

// New creates a relay gateway from the given config.
func New(cfg Config) (*Gateway, error) {
	if cfg.URL == "" {
		return nil, errors.New("relay gateway requires a URL")
	}
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("relay gateway: invalid URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("relay gateway: unsupported scheme %q", base.Scheme)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}

	return &Gateway{
		base:   base,
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

type batchRequest struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type receiptResponse struct {
	TxHash  string `json:"tx_hash"`
	Applied bool   `json:"applied"`
}

// ProcessCompletionBatch implements completion.Gateway.
func (g *Gateway) ProcessCompletionBatch(ctx context.Context, storyID types.StoryID, r types.SlotRange) (completion.Receipt, error) {
	body, err := json.Marshal(batchRequest{Start: r.Start, End: r.End})
	if err != nil {
		return completion.Receipt{}, fmt.Errorf("relay: marshal batch: %w", err)
	}
	return g.post(ctx, g.endpoint(storyID, "batches"), body)
}

// FinalizeStory implements completion.Gateway.
func (g *Gateway) FinalizeStory(ctx context.Context, storyID types.StoryID) (completion.Receipt, error) {
	return g.post(ctx, g.endpoint(storyID, "finalize"), nil)
}

func (g *Gateway) endpoint(storyID types.StoryID, action string) string {
	return g.base.JoinPath("stories", string(storyID), action).String()
}

// post sends body, retrying 5xx responses and network errors. Errors come
// back as the relayer or transport reported them.
func (g *Gateway) post(ctx context.Context, endpoint string, body []byte) (completion.Receipt, error) {
	policy := adapter.RetryPolicy{Retries: g.config.Retries, Backoff: g.config.Backoff}

	var (
		receipt completion.Receipt
		lastErr error
		attempt int
	)
	err := adapter.Retry(ctx, policy, func(ctx context.Context) (time.Duration, error) {
		attempt++
		if attempt > 1 {
			g.logger.Debug("retrying relay request", map[string]any{
				"endpoint": endpoint,
				"attempt":  attempt,
				"backoff":  policy.Delay(attempt - 1).String(),
				"error":    lastErr.Error(),
			})
		}

		receipt, lastErr = g.doRequest(ctx, endpoint, body)
		if lastErr != nil && !errors.Is(lastErr, completion.ErrTransient) {
			// Only transient failures are retried.
			return 0, &adapter.Permanent{Err: lastErr}
		}
		return 0, lastErr
	})
	switch {
	case err == nil:
		return receipt, nil
	case ctx.Err() != nil:
		return completion.Receipt{}, ctx.Err()
	case !errors.Is(lastErr, completion.ErrTransient):
		return completion.Receipt{}, lastErr
	}
	return completion.Receipt{}, fmt.Errorf("relay: failed after %d attempts: %w", attempt, lastErr)
}

// StatusError is returned for non-2xx HTTP responses. It unwraps to the
// completion error class the status maps to.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Message)
}

// Unwrap maps the status onto a completion error class.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Code == http.StatusConflict:
		return completion.ErrStoryNotReady
	case e.Code == http.StatusRequestEntityTooLarge, e.Code == http.StatusUnprocessableEntity:
		return completion.ErrRangeTooLarge
	case e.Code == http.StatusTooManyRequests, e.Code >= 500:
		return completion.ErrTransient
	default:
		return nil
	}
}

// doRequest performs a single POST and decodes the receipt on 2xx.
func (g *Gateway) doRequest(ctx context.Context, endpoint string, body []byte) (completion.Receipt, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, reader)
	if err != nil {
		return completion.Receipt{}, fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range g.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return completion.Receipt{}, ctx.Err()
		}
		return completion.Receipt{}, completion.Transient(fmt.Errorf("request failed: %w", err))
	}
	defer iox.DrainClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		// Drain body to allow connection reuse
		_, _ = io.Copy(io.Discard, resp.Body)
		return completion.Receipt{}, &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	var out receiptResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		return completion.Receipt{}, fmt.Errorf("relay: decode receipt: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return completion.Receipt{TxHash: out.TxHash, Applied: out.Applied}, nil
}

// Close releases idle connections.
func (g *Gateway) Close() error {
	g.client.CloseIdleConnections()
	return nil
}
