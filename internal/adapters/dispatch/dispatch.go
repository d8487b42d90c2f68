// Package dispatch posts one-way completion signals to a downstream endpoint.
// Delivery is fire and forget: the caller never learns the outcome and a
// failed post is logged, not retried.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"histshard/internal/platform/logger"
)

const defaultTimeout = 10 * time.Second

// Client posts JSON payloads to a fixed URL
type Client struct {
	url    string
	client *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.client = h }
}

// New builds a client; an empty url disables dispatch entirely
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:    url,
		client: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Enabled reports whether a target URL is configured
func (c *Client) Enabled() bool { return c.url != "" }

// Send posts the payload in a detached goroutine and returns immediately.
// The post carries its own timeout so a slow endpoint cannot hold the
// goroutine open past it.
func (c *Client) Send(payload any) {
	if !c.Enabled() {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		logger.Named("dispatch").Warn().Err(err).Msg("dispatch: payload marshal failed")
		return
	}
	go c.post(body)
}

func (c *Client) post(body []byte) {
	l := logger.Named("dispatch")

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		l.Warn().Err(err).Msg("dispatch: request build failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		l.Warn().Err(err).Str("url", c.url).Msg("dispatch: post failed")
		return
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		l.Warn().Int("status", resp.StatusCode).Str("url", c.url).Msg("dispatch: non-success status")
	}
}
