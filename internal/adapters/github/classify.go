package github

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/okian/ghpulse/internal/adapters/ratelimit"
)

// classify maps an error response to the ratelimit taxonomy.
func classify(op string, resp *http.Response, body []byte) error {
	e := &ratelimit.Error{Op: op, Status: resp.StatusCode, Err: errors.New(snippet(body))}

	if reset := resp.Header.Get("X-RateLimit-Reset"); reset != "" {
		if sec, err := strconv.ParseInt(reset, 10, 64); err == nil && sec > 0 {
			e.ResetAt = time.Unix(sec, 0).UTC()
		}
	}
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter != "" {
		if sec, err := strconv.Atoi(retryAfter); err == nil && sec >= 0 {
			e.RetryAfter = time.Duration(sec) * time.Second
		}
	}

	switch code := resp.StatusCode; {
	case code == http.StatusTooManyRequests:
		e.Kind = ratelimit.ErrRateLimited
	case code == http.StatusForbidden && (resp.Header.Get("X-RateLimit-Remaining") == "0" || retryAfter != "" ||
		strings.Contains(strings.ToLower(string(body)), "rate limit")):
		e.Kind = ratelimit.ErrRateLimited
	case code == http.StatusUnauthorized:
		e.Kind = ratelimit.ErrUnauthorized
	case code == http.StatusNotFound || code == http.StatusGone:
		e.Kind = ratelimit.ErrNotFound
	case code == http.StatusUnprocessableEntity:
		e.Kind = ratelimit.ErrValidation
	case code >= http.StatusInternalServerError:
		e.Kind = ratelimit.ErrServerError
	default:
		e.Kind = ratelimit.ErrClientError
	}
	if e.Kind != ratelimit.ErrRateLimited {
		e.ResetAt = time.Time{}
		e.RetryAfter = 0
	}
	return e
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody]
	}
	if s == "" {
		return "empty response body"
	}
	return s
}

var linkNextRe = regexp.MustCompile(`<([^>]+)>\s*;\s*rel="next"`)

// nextLink extracts the rel="next" URL from a Link header.
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		if m := linkNextRe.FindStringSubmatch(part); m != nil {
			return m[1]
		}
	}
	return ""
}
