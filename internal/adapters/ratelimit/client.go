// Package ratelimit retries platform calls with exponential backoff and
// rate limit awareness.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/okian/ghpulse/pkg/logger"
	"github.com/okian/ghpulse/pkg/metrics"
)

const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = time.Second
	defaultMaxDelay    = 60 * time.Second
)

// Client holds the retry policy shared by all platform calls.
type Client struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	log         logger.Logger
	shutdown    context.Context
	sleep       func(ctx context.Context, d time.Duration) error
	now         func() time.Time
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		maxDelay:    defaultMaxDelay,
		shutdown:    context.Background(),
		sleep:       sleepCtx,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Get().Named("ratelimit")
	}
	if c.maxDelay < c.baseDelay {
		c.maxDelay = c.baseDelay
	}
	return c
}

// MaxAttempts returns the configured attempt budget.
func (c *Client) MaxAttempts() int { return c.maxAttempts }

// Delay returns the backoff after the given zero-based attempt:
// base doubled per attempt, capped at the ceiling. It never decreases.
func (c *Client) Delay(attempt int) time.Duration {
	d := c.baseDelay
	for i := 0; i < attempt && d < c.maxDelay; i++ {
		d *= 2
	}
	if d > c.maxDelay {
		d = c.maxDelay
	}
	return d
}

// rateLimitWait prefers Retry-After, then the reset hint, then backoff.
// Secondary limits send Retry-After next to the primary window's reset, which
// may be close to an hour away.
func (c *Client) rateLimitWait(err error, attempt int) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		if e.RetryAfter > 0 {
			return e.RetryAfter
		}
		if !e.ResetAt.IsZero() {
			wait := e.ResetAt.Sub(c.now())
			if wait < 0 {
				return 0
			}
			return wait
		}
	}
	return c.Delay(attempt)
}

// Call runs fn until it succeeds or the policy gives up.
//
// Rate limited and server errors are retried. A server error on the last
// attempt returns the zero value and a nil error so that paginated callers
// treat the page as empty. Any other error is returned at once. Backoff sleeps
// end early only when the shutdown context is cancelled.
func Call[T any](ctx context.Context, c *Client, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			metrics.RecordAPICall(op, metrics.OutcomeOK)
			return v, nil
		}
		last := attempt == c.maxAttempts-1
		kind := KindLabel(err)

		var wait time.Duration
		switch {
		case errors.Is(err, ErrRateLimited):
			if last {
				metrics.RecordAPICall(op, metrics.OutcomeError)
				c.log.Error(ctx, "rate limit retries exhausted", logger.String("op", op), logger.Error(err))
				return zero, err
			}
			wait = c.rateLimitWait(err, attempt)
		case errors.Is(err, ErrServerError):
			if last {
				metrics.RecordAPICall(op, metrics.OutcomeDegraded)
				c.log.Warn(ctx, "server errors exhausted retries, returning empty result",
					logger.String("op", op), logger.Int("attempts", c.maxAttempts), logger.Error(err))
				return zero, nil
			}
			wait = c.Delay(attempt)
		default:
			metrics.RecordAPICall(op, metrics.OutcomeError)
			c.log.Warn(ctx, "platform call failed", logger.String("op", op), logger.String("kind", kind), logger.Error(err))
			return zero, err
		}

		metrics.RecordAPICall(op, metrics.OutcomeRetry)
		metrics.RecordRetryDelay(wait.Seconds())
		c.log.Debug(ctx, "retrying platform call",
			logger.String("op", op),
			logger.String("kind", kind),
			logger.Int("attempt", attempt+1),
			logger.Duration("wait", wait),
		)
		if err := c.sleep(c.shutdown, wait); err != nil {
			return zero, err
		}
	}
	return zero, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
