package ingest

import (
	"errors"
	"time"

	"github.com/okian/ghpulse/pkg/logger"
)

var (
	ErrNoMetadata = errors.New("repository metadata missing")
	ErrRawWrite   = errors.New("raw writes failed")
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetadataBatch sets how many repositories are resolved at once and the
// pause between batches.
func WithMetadataBatch(size int, delay time.Duration) Option {
	return func(o *Orchestrator) {
		if size > 0 {
			o.batchSize = size
		}
		if delay >= 0 {
			o.batchDelay = delay
		}
	}
}

// WithClock sets the receive time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		o.log = l
	}
}
