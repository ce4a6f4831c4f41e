package ratelimit

import (
	"context"
	"time"

	"github.com/okian/ghpulse/pkg/logger"
)

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithMaxAttempts sets the total number of attempts per call.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBaseDelay sets the delay before the first retry.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.baseDelay = d
		}
	}
}

// WithMaxDelay caps the exponential delay.
func WithMaxDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.maxDelay = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithShutdown sets the context whose cancellation interrupts backoff sleeps.
func WithShutdown(ctx context.Context) Option {
	return func(c *Client) {
		if ctx != nil {
			c.shutdown = ctx
		}
	}
}

// WithSleeper replaces the backoff sleep, mainly for tests.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

// WithClock replaces the time source used for rate limit resets.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}
