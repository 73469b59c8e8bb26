// Package webhook performs webhook node calls over HTTP with resty.
package webhook

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/botaas/flowengine/pkg/ports"
)

const (
	DefaultUserAgent = "botaas-flowengine/1"
	// DefaultTimeout bounds a call when ctx carries no deadline.
	DefaultTimeout = 30 * time.Second
)

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the client-wide timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRetries retries transport failures count times, waiting wait between attempts.
func WithRetries(count int, wait time.Duration) Option {
	return func(c *Client) {
		c.retries = count
		c.retryWait = wait
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// Client implements ports.WebhookClient.
type Client struct {
	http      *resty.Client
	timeout   time.Duration
	retries   int
	retryWait time.Duration
	userAgent string
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		timeout:   DefaultTimeout,
		retryWait: 100 * time.Millisecond,
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http = resty.New().
		SetTimeout(c.timeout).
		SetRetryCount(c.retries).
		SetRetryWaitTime(c.retryWait).
		SetHeader("User-Agent", c.userAgent)
	return c
}

// Do sends the request. Non-2xx responses are returned, not treated as errors.
func (c *Client) Do(ctx context.Context, req ports.WebhookRequest) (*ports.WebhookResponse, error) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	r := c.http.R().
		SetContext(ctx).
		SetHeaders(req.Headers)
	if req.Body != nil && method != http.MethodGet && method != http.MethodHead {
		r.SetBody(req.Body)
		if _, ok := req.Body.(string); !ok && r.Header.Get("Content-Type") == "" {
			r.SetHeader("Content-Type", "application/json")
		}
	}

	resp, err := r.Execute(method, req.URL)
	if err != nil {
		return nil, fmt.Errorf("webhook %s %s: %w", method, req.URL, err)
	}
	return &ports.WebhookResponse{
		StatusCode: resp.StatusCode(),
		Body:       resp.Body(),
	}, nil
}
