package discovery

import (
	"errors"
	"time"

	"github.com/okian/ghpulse/pkg/logger"
)

var ErrDiscoveryFailed = errors.New("repository discovery failed")

// Option configures a Discovery.
type Option func(*Discovery)

// WithOrgLister enables the organization listing fallback for accounts with no search results.
func WithOrgLister(l OrgLister) Option {
	return func(d *Discovery) {
		d.orgs = l
	}
}

// WithTimeout bounds how long BuildRepoAccountMap waits for all accounts.
func WithTimeout(t time.Duration) Option {
	return func(d *Discovery) {
		if t > 0 {
			d.timeout = t
		}
	}
}

// WithConcurrency caps the number of accounts discovered at once.
func WithConcurrency(n int) Option {
	return func(d *Discovery) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Discovery) {
		d.log = l
	}
}
