package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/ghpulse/internal/adapters/mq/queue"
	"github.com/okian/ghpulse/internal/domain/aggregate"
	"github.com/okian/ghpulse/internal/domain/canonical"
	"github.com/okian/ghpulse/internal/domain/model"
	"github.com/okian/ghpulse/internal/domain/silver"
	"github.com/okian/ghpulse/internal/domain/types"
	"github.com/okian/ghpulse/internal/domain/watermark"
	"github.com/okian/ghpulse/pkg/logger"
	"github.com/okian/ghpulse/pkg/metrics"
)

// Run ingests, normalizes and aggregates activity for accounts. One repository
// or account failing degrades the result instead of failing the run; the
// result lists what failed. Runs are serialized.
//
// Counters are recomputed from the full raw snapshot over whole UTC days,
// starting at the day of the earliest watermark, and replace stored values.
func (s *Service) Run(ctx context.Context, accounts []string) (types.PipelineResult, error) {
	logins := watermark.Normalize(accounts)
	if len(logins) == 0 {
		return types.PipelineResult{}, fmt.Errorf("%w: no accounts", ErrInvalidInput)
	}
	q, started := s.running()
	if !started {
		return types.PipelineResult{}, ErrNotStarted
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	start := time.Now()
	now := s.now().UTC()
	res := types.PipelineResult{
		RunID:          uuid.NewString(),
		Accounts:       logins,
		Until:          now,
		ReposFailed:    []string{},
		AccountsFailed: []string{},
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "pipeline.run")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", res.RunID), attribute.StringSlice("accounts", logins))
	log := s.logger.With(logger.String("run_id", res.RunID))

	ws, err := s.policy.Resolve(ctx, logins, now, s.curated)
	if err != nil {
		log.Warn(ctx, "known account lookup failed, using the new account lookback", logger.Error(err))
		ws, _ = s.policy.Resolve(ctx, logins, now, nil)
	}
	res.Since = canonical.StartOfDay(watermark.Earliest(ws))

	repoMap, failedAccounts := s.discovery.BuildRepoAccountMap(ctx, ws)
	res.AccountsFailed = append(res.AccountsFailed, failedAccounts...)
	targets := repoMap.Sorted()
	res.ReposDiscovered = len(targets)

	jobs := s.ingest.ResolveRepos(ctx, targets)
	resolved := make(map[model.RepoKey]bool, len(jobs))
	for _, j := range jobs {
		resolved[j.Repo] = true
	}
	for _, t := range targets {
		if !resolved[t.Repo] {
			res.ReposFailed = append(res.ReposFailed, t.Repo.String())
		}
	}

	if err := s.ingestAll(ctx, q, res.RunID, jobs, &res); err != nil {
		s.finish(ctx, span, &res, start, err)
		return res, err
	}

	bundle, err := s.silver.BuildBundle(ctx, silver.Window{Since: res.Since, Until: now})
	if err != nil {
		err = fmt.Errorf("build bundle: %w", err)
		s.finish(ctx, span, &res, start, err)
		return res, err
	}
	res.Entities = bundle.Counts()

	curated := aggregate.Curate(bundle)
	if err := s.curated.SaveCurated(ctx, curated); err != nil {
		err = fmt.Errorf("%w: %w", ErrPersist, err)
		s.finish(ctx, span, &res, start, err)
		return res, err
	}
	metrics.RecordCountersWritten(len(curated.Activities))
	res.Profiles = len(curated.Profiles)
	res.Repos = len(curated.Repos)
	res.Activities = len(curated.Activities)

	s.markTracked(ctx, logins, res.AccountsFailed, now)

	sort.Strings(res.ReposFailed)
	s.finish(ctx, span, &res, start, nil)
	return res, nil
}

// ingestAll queues every job and waits for all outcomes.
func (s *Service) ingestAll(ctx context.Context, q *queue.InMemoryQueue, runID string, jobs []model.RepoJob, res *types.PipelineResult) error {
	done := make(chan model.RepoOutcome, len(jobs))
	pending := 0
	for _, j := range jobs {
		j.RunID = runID
		j.Done = done
		if !q.Enqueue(ctx, j) {
			s.logger.Warn(ctx, "repository job rejected", logger.String("repo", j.Repo.String()))
			res.ReposFailed = append(res.ReposFailed, j.Repo.String())
			continue
		}
		pending++
	}

	for ; pending > 0; pending-- {
		select {
		case out := <-done:
			res.EventsSeen += out.Seen
			res.EventsWritten += out.Written
			if out.Err != nil {
				res.ReposFailed = append(res.ReposFailed, out.Repo.String())
				continue
			}
			res.ReposIngested++
		case <-ctx.Done():
			return fmt.Errorf("waiting for %d repositories: %w", pending, ctx.Err())
		}
	}
	return nil
}

// markTracked records every account that did not fail discovery.
func (s *Service) markTracked(ctx context.Context, logins, failed []string, now time.Time) {
	skip := make(map[string]bool, len(failed))
	for _, f := range failed {
		skip[f] = true
	}
	var ok []string
	ids := make(map[string]string, len(logins))
	for _, l := range logins {
		if skip[l] {
			continue
		}
		ok = append(ok, l)
		if u, found := s.store.UserByLogin(l); found {
			ids[l] = u.UserID
		}
	}
	if len(ok) == 0 {
		return
	}
	if err := s.curated.MarkTracked(ctx, ok, ids, now); err != nil {
		s.logger.Warn(ctx, "mark tracked accounts failed", logger.Error(err))
	}
}

func (s *Service) finish(ctx context.Context, span trace.Span, res *types.PipelineResult, start time.Time, err error) {
	took := time.Since(start)
	res.Duration = took.Round(time.Millisecond).String()

	status := "ok"
	switch {
	case err != nil:
		status = "failed"
		span.SetStatus(codes.Error, err.Error())
	case len(res.ReposFailed) > 0 || len(res.AccountsFailed) > 0:
		status = "partial"
	}
	metrics.RecordRun(status, took.Seconds())
	span.SetAttributes(
		attribute.Int("repos", res.ReposDiscovered),
		attribute.Int("events_written", res.EventsWritten),
		attribute.Int("activities", res.Activities),
	)

	fields := []logger.Field{
		logger.String("run_id", res.RunID),
		logger.String("status", status),
		logger.Time("since", res.Since),
		logger.Int("repos", res.ReposDiscovered),
		logger.Int("ingested", res.ReposIngested),
		logger.Strings("repos_failed", res.ReposFailed),
		logger.Strings("accounts_failed", res.AccountsFailed),
		logger.Int("written", res.EventsWritten),
		logger.Int("activities", res.Activities),
		logger.Duration("took", took),
	}
	if err != nil {
		s.logger.Error(ctx, "pipeline run failed", append(fields, logger.Error(err))...)
	} else {
		s.logger.Info(ctx, "pipeline run finished", fields...)
	}
	s.setLastRun(*res)
}
