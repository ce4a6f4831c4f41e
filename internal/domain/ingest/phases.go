package ingest

import (
	"context"
	"time"

	"github.com/okian/ghpulse/internal/domain/mapper"
	"github.com/okian/ghpulse/internal/domain/model"
	"github.com/okian/ghpulse/pkg/logger"
)

// repoRun is the state of one IngestRepo call. It is used by a single goroutine.
type repoRun struct {
	o   *Orchestrator
	job model.RepoJob
	log logger.Logger

	// numbers maps issue and pull numbers listed in phase one to platform ids.
	numbers map[int]string
	// lookups caches point lookups for numbers outside the listing. "" marks a failed lookup.
	lookups map[int]string

	written  int
	seen     int
	failures []error
}

func (r *repoRun) issuesAndPulls(ctx context.Context) {
	issues, err := r.o.platform.ListIssues(ctx, r.job.Repo, r.job.Since, "")
	if err != nil {
		r.log.Warn(ctx, "list issues failed", logger.Error(err))
		return
	}
	for i := range issues {
		it := &issues[i]
		if !it.IsPull() {
			if id := r.write(ctx, model.KindIssue, it, it.User, "", it.CreatedAt); id != "" {
				r.numbers[it.Number] = id
			}
			continue
		}
		r.pull(ctx, it)
	}
}

// pull writes one pull request with its commit list, then its commits linked to it.
func (r *repoRun) pull(ctx context.Context, it *model.IssuePayload) {
	pr, err := r.o.platform.GetPull(ctx, r.job.Repo, it.Number)
	if err != nil {
		r.log.Warn(ctx, "get pull failed, using listing entry", logger.Int("number", it.Number), logger.Error(err))
	}
	if pr == nil {
		pr = model.PullFromIssue(it)
	}

	commits, err := r.o.platform.ListPullCommits(ctx, r.job.Repo, it.Number)
	if err != nil {
		r.log.Warn(ctx, "list pull commits failed", logger.Int("number", it.Number), logger.Error(err))
	}
	pr.CommitSHAs = nil
	for _, c := range commits {
		if c.SHA != "" {
			pr.CommitSHAs = append(pr.CommitSHAs, c.SHA)
		}
	}

	id := r.write(ctx, model.KindPullRequest, pr, pr.User, "", pr.CreatedAt)
	if id == "" {
		return
	}
	r.numbers[it.Number] = id
	for i := range commits {
		c := &commits[i]
		r.write(ctx, model.KindCommit, c, c.Author, id, c.AuthoredAt())
	}
}

func (r *repoRun) issueComments(ctx context.Context) {
	comments, err := r.o.platform.ListIssueComments(ctx, r.job.Repo, r.job.Since)
	if err != nil {
		r.log.Warn(ctx, "list issue comments failed", logger.Error(err))
		return
	}
	for i := range comments {
		c := &comments[i]
		parent := r.parent(ctx, c.IssueURL, r.lookupIssue)
		r.write(ctx, model.KindIssueComment, c, c.User, parent, c.CreatedAt)
	}
}

func (r *repoRun) reviewComments(ctx context.Context) {
	comments, err := r.o.platform.ListReviewComments(ctx, r.job.Repo, r.job.Since)
	if err != nil {
		r.log.Warn(ctx, "list review comments failed", logger.Error(err))
		return
	}
	for i := range comments {
		c := &comments[i]
		parent := r.parent(ctx, c.PullRequestURL, r.lookupPull)
		r.write(ctx, model.KindReviewComment, c, c.User, parent, c.CreatedAt)
	}
}

func (r *repoRun) commits(ctx context.Context) {
	commits, err := r.o.platform.ListRepoCommits(ctx, r.job.Repo, r.job.Since, "")
	if err != nil {
		r.log.Warn(ctx, "list repository commits failed", logger.Error(err))
		return
	}
	for i := range commits {
		c := &commits[i]
		r.write(ctx, model.KindCommit, c, c.Author, "", c.AuthoredAt())
	}
}

// parent resolves the issue or pull referenced by u to its platform id. Numbers
// not seen in the listing fall back to a cached point lookup. "" means unknown.
func (r *repoRun) parent(ctx context.Context, u string, lookup func(context.Context, int) (string, error)) string {
	n, ok := mapper.ParseParentNumber(u)
	if !ok {
		return ""
	}
	if id, ok := r.numbers[n]; ok {
		return id
	}
	if id, ok := r.lookups[n]; ok {
		return id
	}
	id, err := lookup(ctx, n)
	if err != nil {
		r.log.Warn(ctx, "parent lookup failed", logger.Int("number", n), logger.Error(err))
	}
	r.lookups[n] = id
	return id
}

func (r *repoRun) lookupIssue(ctx context.Context, n int) (string, error) {
	it, err := r.o.platform.GetIssue(ctx, r.job.Repo, n)
	if err != nil || it == nil {
		return "", err
	}
	return it.NativeID(), nil
}

func (r *repoRun) lookupPull(ctx context.Context, n int) (string, error) {
	pr, err := r.o.platform.GetPull(ctx, r.job.Repo, n)
	if err != nil || pr == nil {
		return "", err
	}
	return pr.NativeID(), nil
}

// write stores one raw event and its actor. It returns the platform id of the
// item, or "" when the item has none.
func (r *repoRun) write(ctx context.Context, kind model.Kind, p model.Payload, actor *model.UserRef, parentID string, createdAt *time.Time) string {
	now := r.o.now()
	ev, err := model.NewRawEvent(kind, p, now)
	if err != nil {
		r.log.Debug(ctx, "skipping item without id", logger.String("kind", string(kind)))
		return ""
	}
	private := r.job.Private
	ev.ActorID = actor.StringID()
	ev.RepoID = r.job.RepoID
	ev.ParentID = parentID
	ev.CreatedAt = createdAt
	ev.IsPrivate = &private

	r.seen++
	inserted, err := r.o.sink.UpsertEvent(ctx, ev)
	switch {
	case err != nil:
		r.failures = append(r.failures, err)
		r.log.Error(ctx, "raw event write failed",
			logger.String("kind", string(kind)), logger.String("native_id", p.NativeID()), logger.Error(err))
	case inserted:
		r.written++
	}

	if u, ok := model.UserFromRef(actor, now); ok {
		if err := r.o.sink.UpsertUserRef(ctx, u); err != nil {
			r.log.Warn(ctx, "user reference write failed", logger.String("login", u.Login), logger.Error(err))
		}
	}
	return p.NativeID()
}
