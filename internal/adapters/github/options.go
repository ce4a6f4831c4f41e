package github

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/time/rate"

	"github.com/okian/ghpulse/internal/adapters/ratelimit"
	"github.com/okian/ghpulse/pkg/logger"
)

var (
	ErrMissingToken = errors.New("github token is required")
	ErrInvalidURL   = errors.New("invalid github base url")
)

// Option configures the Client.
type Option func(*Client) error

// WithBaseURL points the client at another API root, e.g. GitHub Enterprise or a test server.
func WithBaseURL(raw string) Option {
	return func(c *Client) error {
		if raw == "" {
			return nil
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
		}
		c.baseURL = u
		return nil
	}
}

// WithTransport sets the round tripper under the auth transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) error {
		c.transport = rt
		return nil
	}
}

// WithRateLimit sets the client side token bucket.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) error {
		if rps > 0 && burst > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
		return nil
	}
}

// WithRetry sets the retry policy.
func WithRetry(r *ratelimit.Client) Option {
	return func(c *Client) error {
		c.retry = r
		return nil
	}
}

// WithPageSize sets per_page for list endpoints (max 100).
func WithPageSize(n int) Option {
	return func(c *Client) error {
		if n > 0 && n <= 100 {
			c.pageSize = n
		}
		return nil
	}
}

// WithSearchMaxPages caps search pagination.
func WithSearchMaxPages(n int) Option {
	return func(c *Client) error {
		if n > 0 {
			c.searchMaxPages = n
		}
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) error {
		c.log = l
		return nil
	}
}
