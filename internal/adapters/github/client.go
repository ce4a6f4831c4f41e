// Package github implements the platform capability on the GitHub REST API.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/okian/ghpulse/internal/adapters/ratelimit"
	"github.com/okian/ghpulse/pkg/logger"
)

const (
	defaultBaseURL        = "https://api.github.com"
	defaultPageSize       = 100
	defaultSearchMaxPages = 10
	defaultTimeout        = 30 * time.Second
	apiVersion            = "2022-11-28"
	maxErrorBody          = 512
)

// Client talks to the GitHub REST API. Every request passes the token bucket
// limiter first and every operation runs under the retry policy.
type Client struct {
	baseURL        *url.URL
	httpClient     *http.Client
	transport      http.RoundTripper
	limiter        *rate.Limiter
	retry          *ratelimit.Client
	pageSize       int
	searchMaxPages int
	userAgent      string
	log            logger.Logger
}

// New creates a Client authenticated with token.
func New(token string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}
	base, _ := url.Parse(defaultBaseURL)
	c := &Client{
		baseURL:        base,
		limiter:        rate.NewLimiter(rate.Limit(10), 5),
		pageSize:       defaultPageSize,
		searchMaxPages: defaultSearchMaxPages,
		userAgent:      "ghpulse/1.0",
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.log == nil {
		c.log = logger.Get().Named("github")
	}
	if c.retry == nil {
		c.retry = ratelimit.New(ratelimit.WithLogger(c.log))
	}
	transport := c.transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	c.httpClient = &http.Client{
		Timeout: defaultTimeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
			Base:   transport,
		},
	}
	return c, nil
}

// response is one decoded page or object.
type response struct {
	body []byte
	next string
}

// do performs one attempt against an absolute URL and classifies failures.
func (c *Client) do(ctx context.Context, op, rawURL string) (*response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &ratelimit.Error{Op: op, Kind: ratelimit.ErrClientError, Err: err}
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ratelimit.Error{Op: op, Kind: ratelimit.ErrServerError, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ratelimit.Error{Op: op, Status: resp.StatusCode, Kind: ratelimit.ErrServerError, Err: err}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, classify(op, resp, body)
	}
	return &response{body: body, next: nextLink(resp.Header.Get("Link"))}, nil
}

// endpoint resolves a path and query against the base URL.
func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = q.Encode()
	return u.String()
}

// getOne fetches a single object. A degraded result is reported as nil.
func getOne[T any](ctx context.Context, c *Client, op, path string) (*T, error) {
	return ratelimit.Call(ctx, c.retry, op, func(ctx context.Context) (*T, error) {
		resp, err := c.do(ctx, op, c.endpoint(path, nil))
		if err != nil {
			return nil, err
		}
		out := new(T)
		if err := json.Unmarshal(resp.body, out); err != nil {
			return nil, &ratelimit.Error{Op: op, Kind: ratelimit.ErrClientError, Err: fmt.Errorf("decode: %w", err)}
		}
		return out, nil
	})
}

type page[T any] struct {
	items []T
	next  string
	ok    bool
}

func decodeArray[T any](body []byte) ([]T, error) {
	var out []T
	err := json.Unmarshal(body, &out)
	return out, err
}

type searchEnvelope[T any] struct {
	TotalCount        int  `json:"total_count"`
	IncompleteResults bool `json:"incomplete_results"`
	Items             []T  `json:"items"`
}

func decodeSearch[T any](body []byte) ([]T, error) {
	var env searchEnvelope[T]
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	return env.Items, nil
}

// list follows Link pagination from path. Each page runs under the retry
// policy; a degraded page ends pagination with what was collected so far.
// maxPages <= 0 means no page limit.
func list[T any](ctx context.Context, c *Client, op, path string, q url.Values, maxPages int, decode func(body []byte) ([]T, error)) ([]T, error) {
	if q == nil {
		q = url.Values{}
	}
	q.Set("per_page", fmt.Sprintf("%d", c.pageSize))
	next := c.endpoint(path, q)

	var out []T
	for n := 0; next != "" && (maxPages <= 0 || n < maxPages); n++ {
		target := next
		p, err := ratelimit.Call(ctx, c.retry, op, func(ctx context.Context) (page[T], error) {
			resp, err := c.do(ctx, op, target)
			if err != nil {
				return page[T]{}, err
			}
			items, err := decode(resp.body)
			if err != nil {
				return page[T]{}, &ratelimit.Error{Op: op, Kind: ratelimit.ErrClientError, Err: fmt.Errorf("decode: %w", err)}
			}
			return page[T]{items: items, next: resp.next, ok: true}, nil
		})
		if err != nil {
			return out, err
		}
		if !p.ok {
			c.log.Warn(ctx, "degraded page, stopping pagination",
				logger.String("op", op), logger.Int("page", n+1), logger.Int("collected", len(out)))
			return out, nil
		}
		out = append(out, p.items...)
		next = p.next
	}
	return out, nil
}

// IsNotFound reports whether err is a not-found platform error.
func IsNotFound(err error) bool { return errors.Is(err, ratelimit.ErrNotFound) }
