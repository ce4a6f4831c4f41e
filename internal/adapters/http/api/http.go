// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/okian/ghpulse/internal/domain/canonical"
	"github.com/okian/ghpulse/internal/domain/silver"
	"github.com/okian/ghpulse/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Run ingests and aggregates the given accounts synchronously.
	Run(ctx context.Context, accounts []string) (types.PipelineResult, error)
	RemoveAccounts(ctx context.Context, accounts []string) (types.RemovalResult, error)

	// Read operations expose normalized and curated data.
	Bundle(ctx context.Context, w silver.Window) (canonical.Bundle, error)
	Activity(ctx context.Context, userID string) ([]canonical.ActivityCounter, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	runsHandler     *RunsHandler
	accountsHandler *AccountsHandler
	bundleHandler   *BundleHandler
	activityHandler *ActivityHandler
}

// NewServer creates a new API server with all handlers. runTimeout bounds a
// single POST /runs; zero leaves it to the client.
func NewServer(deps Dependencies, statsProvider StatsProvider, pinger Pinger, maxLimit int, runTimeout time.Duration) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(pinger),
		statsHandler:    NewStatsHandler(statsProvider),
		runsHandler:     NewRunsHandler(deps, runTimeout),
		accountsHandler: NewAccountsHandler(deps),
		bundleHandler:   NewBundleHandler(deps, maxLimit),
		activityHandler: NewActivityHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/runs", MetricsMiddleware(s.runsHandler.HandlePostRun, "runs"))
	mux.HandleFunc("/accounts/remove", MetricsMiddleware(s.accountsHandler.HandleRemove, "accounts_remove"))
	mux.HandleFunc("/bundle", MetricsMiddleware(s.bundleHandler.HandleGetBundle, "bundle"))
	mux.HandleFunc("/activity/", MetricsMiddleware(s.activityHandler.HandleGetActivity, "activity"))
}
