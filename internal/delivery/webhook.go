// Package delivery implements the bounded-retry webhook POST used to hand
// conversation context to agents. Exhausted retries are a logged outcome, not
// an error: the caller only learns success or failure as a bool.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultMaxAttempts = 3
	defaultRetryDelay  = 5 * time.Second
	defaultTimeout     = 30 * time.Second
)

// Deliverer posts JSON payloads with retries. Safe for concurrent use.
type Deliverer struct {
	client      *http.Client
	maxAttempts int
	retryDelay  time.Duration
}

// Option tweaks a Deliverer. Defaults match the agent webhook contract:
// 3 attempts, 5s apart, 30s per-attempt timeout.
type Option func(*Deliverer)

// WithMaxAttempts overrides the attempt budget.
func WithMaxAttempts(n int) Option {
	return func(d *Deliverer) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

// WithRetryDelay overrides the fixed delay between attempts.
func WithRetryDelay(delay time.Duration) Option {
	return func(d *Deliverer) { d.retryDelay = delay }
}

// WithHTTPClient substitutes the HTTP client (tests use httptest clients).
func WithHTTPClient(client *http.Client) Option {
	return func(d *Deliverer) { d.client = client }
}

// New creates a Deliverer with the default retry policy.
func New(opts ...Option) *Deliverer {
	d := &Deliverer{
		client:      &http.Client{Timeout: defaultTimeout},
		maxAttempts: defaultMaxAttempts,
		retryDelay:  defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deliver posts payload to url, retrying on any non-2xx status or transport
// error. Returns true on the first 2xx, false once attempts are exhausted or
// ctx is cancelled. Never returns an error; the webhook pipeline absorbs
// delivery failures as state.
func (d *Deliverer) Deliver(ctx context.Context, url string, payload any) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("webhook payload not serializable", "url", url, "error", err)
		return false
	}

	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if ok, retryable := d.post(ctx, url, body, attempt); ok {
			return true
		} else if !retryable {
			return false
		}

		if attempt < d.maxAttempts {
			select {
			case <-ctx.Done():
				slog.Warn("webhook delivery cancelled", "url", url, "attempt", attempt)
				return false
			case <-time.After(d.retryDelay):
			}
		}
	}

	slog.Error("webhook delivery failed, attempts exhausted",
		"url", url, "attempts", d.maxAttempts)
	return false
}

// post performs one attempt. retryable is false only when the context is done.
func (d *Deliverer) post(ctx context.Context, url string, body []byte, attempt int) (ok, retryable bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		slog.Error("build webhook request", "url", url, "error", err)
		return false, false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, false
		}
		slog.Warn("webhook attempt failed", "url", url, "attempt", attempt, "error", err)
		return false, true
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return true, true
	}
	slog.Warn("webhook attempt rejected", "url", url, "attempt", attempt, "status", resp.StatusCode)
	return false, true
}
