// Package ingest fetches every activity item of a repository since a
// watermark and writes it to the raw store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/okian/ghpulse/internal/domain/discovery"
	"github.com/okian/ghpulse/internal/domain/model"
	"github.com/okian/ghpulse/pkg/logger"
	"github.com/okian/ghpulse/pkg/metrics"
)

const (
	tracerName = "github.com/okian/ghpulse/internal/domain/ingest"

	defaultBatchSize  = 3
	defaultBatchDelay = time.Second
)

// Platform is the subset of the platform API used to ingest a repository.
type Platform interface {
	GetRepo(ctx context.Context, repo model.RepoKey) (*model.RepoPayload, error)
	ListIssues(ctx context.Context, repo model.RepoKey, since time.Time, creator string) ([]model.IssuePayload, error)
	GetIssue(ctx context.Context, repo model.RepoKey, number int) (*model.IssuePayload, error)
	GetPull(ctx context.Context, repo model.RepoKey, number int) (*model.PullPayload, error)
	ListIssueComments(ctx context.Context, repo model.RepoKey, since time.Time) ([]model.CommentPayload, error)
	ListReviewComments(ctx context.Context, repo model.RepoKey, since time.Time) ([]model.CommentPayload, error)
	ListPullCommits(ctx context.Context, repo model.RepoKey, number int) ([]model.CommitPayload, error)
	ListRepoCommits(ctx context.Context, repo model.RepoKey, since time.Time, author string) ([]model.CommitPayload, error)
}

// Sink receives raw records.
type Sink interface {
	UpsertEvent(ctx context.Context, ev model.RawEvent) (bool, error)
	UpsertUserRef(ctx context.Context, u model.RawUser) error
	UpsertRepo(ctx context.Context, r model.RawRepo) error
}

// Orchestrator resolves repository metadata and runs the per-repository fetch phases.
type Orchestrator struct {
	platform   Platform
	sink       Sink
	batchSize  int
	batchDelay time.Duration
	now        func() time.Time
	log        logger.Logger
}

// New creates an Orchestrator.
func New(platform Platform, sink Sink, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		platform:   platform,
		sink:       sink,
		batchSize:  defaultBatchSize,
		batchDelay: defaultBatchDelay,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logger.Get().Named("ingest")
	}
	return o
}

// ResolveRepos fetches metadata for each target in fixed-size batches with a
// pause between batches. A repository whose metadata cannot be fetched is
// left out; the others are returned as jobs in target order.
func (o *Orchestrator) ResolveRepos(ctx context.Context, targets []discovery.RepoTarget) []model.RepoJob {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ingest.resolve")
	defer span.End()

	resolved := make([]*model.RepoJob, len(targets))
	for start := 0; start < len(targets); start += o.batchSize {
		if start > 0 && !o.pause(ctx) {
			o.log.Warn(ctx, "metadata resolution interrupted", logger.Int("remaining", len(targets)-start))
			break
		}
		end := min(start+o.batchSize, len(targets))

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				resolved[i] = o.resolve(ctx, targets[i])
				return nil
			})
		}
		_ = g.Wait()
	}

	jobs := make([]model.RepoJob, 0, len(targets))
	for _, j := range resolved {
		if j != nil {
			jobs = append(jobs, *j)
		}
	}
	span.SetAttributes(attribute.Int("targets", len(targets)), attribute.Int("resolved", len(jobs)))
	return jobs
}

func (o *Orchestrator) pause(ctx context.Context) bool {
	if o.batchDelay <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(o.batchDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (o *Orchestrator) resolve(ctx context.Context, t discovery.RepoTarget) *model.RepoJob {
	meta, err := o.platform.GetRepo(ctx, t.Repo)
	if err == nil && (meta == nil || meta.ID == 0) {
		err = ErrNoMetadata
	}
	if err != nil {
		metrics.RecordRepoIngested(metrics.ResultExcluded)
		o.log.Warn(ctx, "repository metadata unavailable, skipping",
			logger.String("repo", t.Repo.String()), logger.Error(err))
		return nil
	}

	if raw, ok := model.RepoFromPayload(meta, o.now()); ok {
		if err := o.sink.UpsertRepo(ctx, raw); err != nil {
			o.log.Error(ctx, "store repository failed", logger.String("repo", t.Repo.String()), logger.Error(err))
		}
	}
	return &model.RepoJob{
		Repo:     t.Repo,
		RepoID:   strconv.FormatInt(meta.ID, 10),
		Private:  meta.Private,
		Accounts: append([]string(nil), t.Accounts...),
		Since:    t.Since,
	}
}

// IngestRepo runs the four fetch phases of one repository in order: issues and
// pull requests (with their commits), issue comments, review comments, and
// repository commits. Platform failures are logged and the next phase still
// runs. The outcome error reports raw writes that did not reach the store.
func (o *Orchestrator) IngestRepo(ctx context.Context, job model.RepoJob) model.RepoOutcome {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ingest.repo")
	defer span.End()
	span.SetAttributes(
		attribute.String("repo", job.Repo.String()),
		attribute.String("since", job.Since.UTC().Format(time.RFC3339)),
	)

	r := &repoRun{
		o:       o,
		job:     job,
		log:     o.log.With(logger.String("repo", job.Repo.String()), logger.String("run_id", job.RunID)),
		numbers: make(map[int]string),
		lookups: make(map[int]string),
	}
	r.issuesAndPulls(ctx)
	r.issueComments(ctx)
	r.reviewComments(ctx)
	r.commits(ctx)

	out := model.RepoOutcome{Repo: job.Repo, Written: r.written, Seen: r.seen}
	if len(r.failures) > 0 {
		out.Err = fmt.Errorf("%w: %s: %w", ErrRawWrite, job.Repo, errors.Join(r.failures...))
	}
	span.SetAttributes(attribute.Int("written", r.written), attribute.Int("seen", r.seen))
	return out
}
