// Package service wires discovery, ingestion, normalization and aggregation
// into the pipeline behind the HTTP API.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/okian/ghpulse/internal/adapters/database"
	"github.com/okian/ghpulse/internal/adapters/mq/queue"
	"github.com/okian/ghpulse/internal/adapters/mq/worker"
	"github.com/okian/ghpulse/internal/adapters/repository"
	"github.com/okian/ghpulse/internal/domain/canonical"
	"github.com/okian/ghpulse/internal/domain/discovery"
	"github.com/okian/ghpulse/internal/domain/ingest"
	"github.com/okian/ghpulse/internal/domain/model"
	"github.com/okian/ghpulse/internal/domain/silver"
	"github.com/okian/ghpulse/internal/domain/types"
	"github.com/okian/ghpulse/internal/domain/watermark"
	"github.com/okian/ghpulse/pkg/logger"
)

const tracerName = "github.com/okian/ghpulse/internal/app"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotStarted   = errors.New("service not started")
	ErrPersist      = errors.New("persist curated data")
)

// Platform is every platform operation the pipeline uses.
type Platform interface {
	ingest.Platform
	discovery.Searcher
	GetUser(ctx context.Context, login string) (*model.UserPayload, error)
}

// Curated is the gold layer store.
type Curated interface {
	watermark.KnownChecker
	SaveCurated(ctx context.Context, c canonical.Curated) error
	Activities(ctx context.Context, userID string) ([]canonical.ActivityCounter, error)
	MarkTracked(ctx context.Context, logins []string, userIDs map[string]string, t time.Time) error
	TrackedAccounts(ctx context.Context) ([]database.TrackedAccount, error)
}

// Service runs the ingestion pipeline.
type Service struct {
	mu    sync.RWMutex
	runMu sync.Mutex

	store    repository.Store
	curated  Curated
	platform Platform

	discovery *discovery.Discovery
	ingest    *ingest.Orchestrator
	silver    *silver.Orchestrator
	policy    watermark.Policy

	queue *queue.InMemoryQueue
	pool  *worker.Pool

	workerCount int
	queueSize   int
	now         func() time.Time

	started bool
	lastRun *types.PipelineResult

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets how many repositories are ingested in parallel.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the repository job queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithPolicy sets the watermark policy.
func WithPolicy(p watermark.Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

// WithDiscovery replaces the default discovery.
func WithDiscovery(d *discovery.Discovery) Option {
	return func(s *Service) {
		if d != nil {
			s.discovery = d
		}
	}
}

// WithIngest replaces the default ingestion orchestrator.
func WithIngest(o *ingest.Orchestrator) Option {
	return func(s *Service) {
		if o != nil {
			s.ingest = o
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service over the raw store, the curated store and the platform.
func New(store repository.Store, curated Curated, platform Platform, opts ...Option) *Service {
	s := &Service{
		store:       store,
		curated:     curated,
		platform:    platform,
		policy:      watermark.DefaultPolicy(),
		workerCount: 4,
		queueSize:   10_000,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.discovery == nil {
		s.discovery = discovery.New(platform)
	}
	if s.ingest == nil {
		s.ingest = ingest.New(platform, store)
	}
	s.silver = silver.New(store)
	return s
}

// Start creates the job queue and starts the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s.ingest)
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "pipeline service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
	)
	return nil
}

// Stop closes the queue and waits for the workers.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Error(ctx, "worker pool shutdown failed", logger.Error(err))
	}
	s.started = false
	s.logger.Info(ctx, "pipeline service stopped")
}

// Bundle builds the canonical bundle for w without persisting anything.
func (s *Service) Bundle(ctx context.Context, w silver.Window) (canonical.Bundle, error) {
	return s.silver.BuildBundle(ctx, w)
}

// Activity returns the stored counters of userID.
func (s *Service) Activity(ctx context.Context, userID string) ([]canonical.ActivityCounter, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	return s.curated.Activities(ctx, userID)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) types.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := types.Stats{
		Raw:     s.store.Stats(),
		Workers: s.workerCount,
		LastRun: s.lastRun,
	}
	if s.started {
		st.QueueLength = s.queue.Len(ctx)
		st.ReposProcessed = s.pool.Processed()
	}
	if tracked, err := s.curated.TrackedAccounts(ctx); err == nil {
		st.TrackedAccounts = len(tracked)
	} else {
		s.logger.Warn(ctx, "list tracked accounts failed", logger.Error(err))
	}
	return st
}

func (s *Service) running() (*queue.InMemoryQueue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queue, s.started
}

func (s *Service) setLastRun(r types.PipelineResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun = &r
}
