// Package watermark decides from when each tracked account is fetched.
package watermark

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	DefaultNewLookback      = 180 * 24 * time.Hour
	DefaultExistingLookback = 48 * time.Hour
)

// Policy holds the lookback windows for unseen and already curated accounts.
type Policy struct {
	NewLookback      time.Duration
	ExistingLookback time.Duration
}

// DefaultPolicy returns the 180 day / 48 hour policy.
func DefaultPolicy() Policy {
	return Policy{NewLookback: DefaultNewLookback, ExistingLookback: DefaultExistingLookback}
}

// Since returns the lower bound for an account.
func (p Policy) Since(now time.Time, known bool) time.Time {
	if known {
		return now.Add(-p.ExistingLookback).UTC()
	}
	return now.Add(-p.NewLookback).UTC()
}

// AccountWatermark is the resolved lower bound of one account.
type AccountWatermark struct {
	Account string
	Since   time.Time
	Known   bool
}

// KnownChecker reports which logins already have curated data.
type KnownChecker interface {
	KnownAccounts(ctx context.Context, logins []string) (map[string]bool, error)
}

// Resolve computes one watermark per distinct account. Logins are matched
// case-insensitively and returned lowercased in sorted order.
func (p Policy) Resolve(ctx context.Context, accounts []string, now time.Time, checker KnownChecker) ([]AccountWatermark, error) {
	logins := Normalize(accounts)
	known := map[string]bool{}
	if checker != nil && len(logins) > 0 {
		k, err := checker.KnownAccounts(ctx, logins)
		if err != nil {
			return nil, fmt.Errorf("check known accounts: %w", err)
		}
		known = k
	}
	out := make([]AccountWatermark, 0, len(logins))
	for _, l := range logins {
		out = append(out, AccountWatermark{Account: l, Since: p.Since(now, known[l]), Known: known[l]})
	}
	return out, nil
}

// Normalize trims, lowercases, drops blanks and duplicates, and sorts logins.
func Normalize(accounts []string) []string {
	seen := make(map[string]struct{}, len(accounts))
	out := make([]string, 0, len(accounts))
	for _, a := range accounts {
		a = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(a), "@")))
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Earliest returns the smallest Since, or the zero time for no watermarks.
func Earliest(ws []AccountWatermark) time.Time {
	var earliest time.Time
	for i, w := range ws {
		if i == 0 || w.Since.Before(earliest) {
			earliest = w.Since
		}
	}
	return earliest
}
