// Package silver builds the canonical entity bundle for a time window from
// the raw snapshot.
package silver

import (
	"context"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/okian/ghpulse/internal/domain/canonical"
	"github.com/okian/ghpulse/internal/domain/mapper"
	"github.com/okian/ghpulse/internal/domain/model"
	"github.com/okian/ghpulse/pkg/logger"
	"github.com/okian/ghpulse/pkg/metrics"
)

const tracerName = "github.com/okian/ghpulse/internal/domain/silver"

// Source is a read-only raw snapshot.
type Source interface {
	Events(kinds ...model.Kind) []model.RawEvent
	Users() []model.RawUser
	Repos() []model.RawRepo
}

// Window bounds the events of a bundle to createdAt in [Since, Until).
// A zero bound is open. Limit caps each entity list after sorting; 0 means no cap.
type Window struct {
	Since time.Time
	Until time.Time
	Limit int
}

func (w Window) unbounded() bool {
	return w.Since.IsZero() && w.Until.IsZero()
}

// contains reports whether t falls in the window. Items without a creation
// time only belong to an unbounded window.
func (w Window) contains(t *time.Time) bool {
	if t == nil {
		return w.unbounded()
	}
	if !w.Since.IsZero() && t.Before(w.Since) {
		return false
	}
	if !w.Until.IsZero() && !t.Before(w.Until) {
		return false
	}
	return true
}

// Orchestrator builds bundles from a Source.
type Orchestrator struct {
	src Source
	log logger.Logger
}

// New creates an Orchestrator over src.
func New(src Source, opts ...Option) *Orchestrator {
	o := &Orchestrator{src: src}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logger.Get().Named("silver")
	}
	return o
}

// BuildBundle runs the six entity loaders concurrently. Each maps every raw
// row, folds snapshots of one id through the kind's merge, and returns the
// entities sorted by id. The same snapshot always yields the same bundle.
// Commits linked to a pull request that is not merged are left out.
func (o *Orchestrator) BuildBundle(ctx context.Context, w Window) (canonical.Bundle, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "silver.bundle")
	defer span.End()

	var b canonical.Bundle
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b.Users = limit(o.loadUsers(), w.Limit)
		return gctx.Err()
	})
	g.Go(func() error {
		b.Repos = limit(o.loadRepos(), w.Limit)
		return gctx.Err()
	})
	g.Go(func() error {
		b.Issues = limit(o.loadIssues(w), w.Limit)
		return gctx.Err()
	})
	g.Go(func() error {
		b.PullRequests = limit(o.loadPullRequests(w), w.Limit)
		return gctx.Err()
	})
	g.Go(func() error {
		b.Comments = limit(o.loadComments(w), w.Limit)
		return gctx.Err()
	})
	g.Go(func() error {
		b.Commits = limit(o.loadCommits(w), w.Limit)
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		return canonical.Bundle{}, err
	}

	counts := b.Counts()
	for kind, n := range counts {
		metrics.UpdateSilverEntities(kind, n)
		span.SetAttributes(attribute.Int(kind, n))
	}
	o.log.Debug(ctx, "bundle built",
		logger.Time("since", w.Since), logger.Time("until", w.Until),
		logger.Int("issues", counts["issues"]), logger.Int("prs", counts["prs"]),
		logger.Int("comments", counts["comments"]), logger.Int("commits", counts["commits"]))
	return b, nil
}

// ordered returns the events of kinds in fold order: receive time, then id.
func (o *Orchestrator) ordered(kinds ...model.Kind) []model.RawEvent {
	evs := o.src.Events(kinds...)
	sort.SliceStable(evs, func(i, j int) bool {
		if !evs[i].ReceivedAt.Equal(evs[j].ReceivedAt) {
			return evs[i].ReceivedAt.Before(evs[j].ReceivedAt)
		}
		return evs[i].ID < evs[j].ID
	})
	return evs
}

// fold merges values sharing an id in input order and returns them sorted by id.
func fold[T any](items []*T, id func(*T) string, merge func(prev, next T) T) []T {
	byID := make(map[string]T, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		k := id(it)
		if prev, ok := byID[k]; ok {
			byID[k] = merge(prev, *it)
			continue
		}
		byID[k] = *it
	}
	keys := make([]string, 0, len(byID))
	for k := range byID {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, byID[k])
	}
	return out
}

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}

func (o *Orchestrator) loadUsers() []canonical.User {
	raws := o.src.Users()
	sort.SliceStable(raws, func(i, j int) bool { return raws[i].ReceivedAt.Before(raws[j].ReceivedAt) })
	mapped := make([]*canonical.User, 0, len(raws))
	for _, r := range raws {
		mapped = append(mapped, mapper.MapUser(r))
	}
	return fold(mapped, func(u *canonical.User) string { return u.UserID }, mapper.MergeUser)
}

func (o *Orchestrator) loadRepos() []canonical.Repository {
	raws := o.src.Repos()
	sort.SliceStable(raws, func(i, j int) bool { return raws[i].ReceivedAt.Before(raws[j].ReceivedAt) })
	mapped := make([]*canonical.Repository, 0, len(raws))
	for _, r := range raws {
		mapped = append(mapped, mapper.MapRepository(r))
	}
	return fold(mapped, func(r *canonical.Repository) string { return r.RepoID }, mapper.MergeRepository)
}

func (o *Orchestrator) loadIssues(w Window) []canonical.Issue {
	var mapped []*canonical.Issue
	for _, ev := range o.ordered(model.KindIssue) {
		if it := mapper.MapIssue(ev); it != nil && w.contains(it.CreatedAt) {
			mapped = append(mapped, it)
		}
	}
	return fold(mapped, func(i *canonical.Issue) string { return i.IssueID }, mapper.MergeIssue)
}

func (o *Orchestrator) loadPullRequests(w Window) []canonical.PullRequest {
	var mapped []*canonical.PullRequest
	for _, ev := range o.ordered(model.KindPullRequest) {
		if pr := mapper.MapPullRequest(ev); pr != nil && w.contains(pr.CreatedAt) {
			mapped = append(mapped, pr)
		}
	}
	return fold(mapped, func(p *canonical.PullRequest) string { return p.PRID }, mapper.MergePullRequest)
}

func (o *Orchestrator) loadComments(w Window) []canonical.Comment {
	var mapped []*canonical.Comment
	for _, ev := range o.ordered(model.KindIssueComment, model.KindReviewComment) {
		if c := mapper.MapComment(ev); c != nil && w.contains(c.CreatedAt) {
			mapped = append(mapped, c)
		}
	}
	return fold(mapped, func(c *canonical.Comment) string { return c.CommentID }, mapper.MergeComment)
}

// loadCommits checks eligibility against every pull request in the snapshot,
// not only those inside the window.
func (o *Orchestrator) loadCommits(w Window) []canonical.Commit {
	merged := o.mergedPulls()
	var mapped []*canonical.Commit
	for _, ev := range o.ordered(model.KindCommit) {
		if c := mapper.MapCommit(ev); c != nil && w.contains(c.CreatedAt) {
			mapped = append(mapped, c)
		}
	}
	folded := fold(mapped, func(c *canonical.Commit) string { return c.CommitID }, mapper.MergeCommit)
	out := folded[:0]
	for _, c := range folded {
		if mapper.CommitEligible(c, merged) {
			out = append(out, c)
		}
	}
	return out
}

func (o *Orchestrator) mergedPulls() map[string]bool {
	var mapped []*canonical.PullRequest
	for _, ev := range o.ordered(model.KindPullRequest) {
		mapped = append(mapped, mapper.MapPullRequest(ev))
	}
	merged := make(map[string]bool)
	for _, pr := range fold(mapped, func(p *canonical.PullRequest) string { return p.PRID }, mapper.MergePullRequest) {
		if pr.Merged {
			merged[pr.PRID] = true
		}
	}
	return merged
}
