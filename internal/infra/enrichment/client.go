// Package enrichment implements the remote cover sources and the HTTP client
// they are fetched with.
package enrichment

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-coverfetch/internal/domain/cover"
	"github.com/edumarques81/stellar-coverfetch/internal/version"
)

const (
	// DefaultRateLimit is 1 request per second (MusicBrainz guideline)
	DefaultRateLimit = 1

	// DefaultTimeout for HTTP requests
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize caps buffered responses (10MB)
	MaxResponseSize = 10 * 1024 * 1024
)

// DefaultUserAgent follows MusicBrainz guidelines.
func DefaultUserAgent() string {
	return version.GetInfo().UserAgent()
}

// Client performs the GET requests of every remote source.
type Client struct {
	userAgent  string
	httpClient *http.Client
	limiter    *rateLimiter
}

var _ cover.Fetcher = (*Client)(nil)

// ClientOption is a functional option for configuring the client
type ClientOption func(*Client)

// WithUserAgent sets a custom User-Agent header
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithRateLimit sets the rate limit in requests per second. Zero disables it.
func WithRateLimit(rps int) ClientOption {
	return func(c *Client) {
		c.limiter = newRateLimiter(rps)
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// NewClient creates a remote client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		userAgent: DefaultUserAgent(),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: newRateLimiter(DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Get performs the request and buffers the body.
func (c *Client) Get(ctx context.Context, url string) (*cover.Response, error) {
	resp, err := c.do(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("%w: response too large (over %d bytes)", cover.ErrRemoteRejected, MaxResponseSize)
	}

	return &cover.Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   body,
	}, nil
}

// Open performs the request and returns the body unread.
func (c *Client) Open(ctx context.Context, url string) (int, io.ReadCloser, error) {
	resp, err := c.do(ctx, url)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, resp.Body, nil
}

func (c *Client) do(ctx context.Context, url string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}

	log.Debug().
		Str("url", url).
		Int("status", resp.StatusCode).
		Msg("Remote request completed")

	return resp, nil
}

// rateLimiter spaces requests by a fixed interval
type rateLimiter struct {
	mu          sync.Mutex
	interval    time.Duration
	lastRequest time.Time
}

func newRateLimiter(requestsPerSecond int) *rateLimiter {
	if requestsPerSecond <= 0 {
		return &rateLimiter{}
	}
	return &rateLimiter{
		interval: time.Second / time.Duration(requestsPerSecond),
	}
}

// Wait blocks until a request can be made
func (r *rateLimiter) Wait(ctx context.Context) error {
	if r == nil || r.interval == 0 {
		return ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	nextAllowed := r.lastRequest.Add(r.interval)

	if now.Before(nextAllowed) {
		timer := time.NewTimer(nextAllowed.Sub(now))
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.lastRequest = time.Now()
	return nil
}
