package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/okian/ghpulse/internal/adapters/database"
	"github.com/okian/ghpulse/internal/adapters/github"
	"github.com/okian/ghpulse/internal/adapters/http/api"
	"github.com/okian/ghpulse/internal/adapters/http/swagger"
	"github.com/okian/ghpulse/internal/adapters/ratelimit"
	"github.com/okian/ghpulse/internal/adapters/repository"
	app "github.com/okian/ghpulse/internal/app"
	"github.com/okian/ghpulse/internal/config"
	"github.com/okian/ghpulse/internal/domain/dedupe"
	"github.com/okian/ghpulse/internal/domain/discovery"
	"github.com/okian/ghpulse/internal/domain/ingest"
	"github.com/okian/ghpulse/internal/domain/watermark"
	"github.com/okian/ghpulse/pkg/logger"
	"github.com/okian/ghpulse/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	writeTimeoutSlack      = 30 * time.Second
	shutdownTimeout        = 30 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "ghpulse exited", logger.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

// run starts every component and blocks until ctx is done.
func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	registerRuntimeCollectors()

	shutdownTracing, err := initTracing(ctx, cfg.OTelEndpoint, cfg.OTelServiceName)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn(ctx, "tracer shutdown failed", logger.Error(err))
		}
	}()

	db, err := database.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return err
	}

	store := repository.NewRawStore(ctx, db,
		repository.WithDeduper(dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize))))
	defer store.Close()
	if err := store.Hydrate(ctx); err != nil {
		return err
	}

	gh, err := newGitHubClient(ctx, cfg)
	if err != nil {
		return err
	}

	svc := newService(cfg, store, db, gh)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	go startServiceMetricsUpdater(ctx, svc)

	mux := http.NewServeMux()
	api.NewServer(svc, svc, db, cfg.BundleMaxLimit, cfg.RunTimeout()).Register(mux)
	swagger.Register(mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      cfg.RunTimeout() + writeTimeoutSlack,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

func newGitHubClient(ctx context.Context, cfg *config.Config) (*github.Client, error) {
	retry := ratelimit.New(
		ratelimit.WithMaxAttempts(cfg.RetryMaxAttempts),
		ratelimit.WithBaseDelay(cfg.RetryBaseDelay()),
		ratelimit.WithMaxDelay(cfg.RetryMaxDelay()),
		ratelimit.WithShutdown(ctx),
	)
	return github.New(cfg.GitHubToken,
		github.WithBaseURL(cfg.GitHubBaseURL),
		github.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		github.WithRetry(retry),
		github.WithPageSize(cfg.PageSize),
		github.WithSearchMaxPages(cfg.SearchMaxPages),
	)
}

func newService(cfg *config.Config, store repository.Store, curated app.Curated, gh *github.Client) *app.Service {
	disc := discovery.New(gh,
		discovery.WithOrgLister(gh),
		discovery.WithTimeout(cfg.DiscoveryTimeout()),
	)
	ing := ingest.New(gh, store, ingest.WithMetadataBatch(cfg.MetadataBatchSize, cfg.MetadataBatchDelay()))
	return app.New(store, curated, gh,
		app.WithDiscovery(disc),
		app.WithIngest(ing),
		app.WithPolicy(watermark.Policy{
			NewLookback:      cfg.NewAccountLookback(),
			ExistingLookback: cfg.ExistingAccountLookback(),
		}),
		app.WithWorkerCount(cfg.RepoWorkers),
		app.WithQueueSize(cfg.QueueSize),
	)
}

// registerRuntimeCollectors adds Go runtime and process metrics to the
// service registry. Registering twice is ignored.
func registerRuntimeCollectors() {
	reg := metrics.GetRegistry()
	_ = reg.Register(collectors.NewGoCollector())
	_ = reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// startServiceMetricsUpdater publishes queue depth until ctx is done.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateQueueSize(svc.GetStats(ctx).QueueLength)
		}
	}
}
