package repository

import (
	"time"

	"github.com/okian/ghpulse/internal/domain/dedupe"
	"github.com/okian/ghpulse/pkg/logger"
)

// Option applies a configuration option to the RawStore.
type Option func(*RawStore)

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *RawStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// WithDeduper sets the seen-id fast path used by UpsertEvent.
func WithDeduper(d dedupe.Deduper) Option {
	return func(s *RawStore) {
		if d != nil {
			s.dedupe = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *RawStore) {
		s.log = l
	}
}
