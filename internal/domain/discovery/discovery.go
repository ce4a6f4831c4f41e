// Package discovery finds the repositories tracked accounts touched and
// inverts them into one fetch target per repository.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/okian/ghpulse/internal/adapters/ratelimit"
	"github.com/okian/ghpulse/internal/domain/model"
	"github.com/okian/ghpulse/internal/domain/watermark"
	"github.com/okian/ghpulse/pkg/logger"
	"github.com/okian/ghpulse/pkg/metrics"
)

const tracerName = "github.com/okian/ghpulse/internal/domain/discovery"

// Searcher runs the two platform searches discovery relies on.
type Searcher interface {
	SearchIssues(ctx context.Context, query string) ([]model.IssuePayload, error)
	SearchCommits(ctx context.Context, query string) ([]model.CommitPayload, error)
}

// OrgLister lists an organization's repositories. Optional.
type OrgLister interface {
	ListOrgRepos(ctx context.Context, org string) ([]model.RepoPayload, error)
}

// RepoSet is a set of repositories.
type RepoSet map[model.RepoKey]struct{}

// Sorted returns the keys ordered by "owner/name".
func (s RepoSet) Sorted() []model.RepoKey {
	out := make([]model.RepoKey, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// RepoTarget is one repository to fetch, scoped to the earliest watermark of
// the accounts that touched it.
type RepoTarget struct {
	Repo     model.RepoKey
	Accounts []string
	Since    time.Time
}

// RepoAccountMap maps each repository to its fetch target.
type RepoAccountMap map[model.RepoKey]*RepoTarget

// Sorted returns the targets ordered by repository.
func (m RepoAccountMap) Sorted() []RepoTarget {
	out := make([]RepoTarget, 0, len(m))
	for _, t := range m {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Repo.String() < out[j].Repo.String() })
	return out
}

// Discovery runs repository discovery for accounts.
type Discovery struct {
	search      Searcher
	orgs        OrgLister
	timeout     time.Duration
	concurrency int
	log         logger.Logger
}

// New creates a Discovery over search.
func New(search Searcher, opts ...Option) *Discovery {
	d := &Discovery{
		search:      search,
		timeout:     5 * time.Minute,
		concurrency: 8,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = logger.Get().Named("discovery")
	}
	return d
}

// IssueQuery is the involvement search for account since t.
func IssueQuery(account string, since time.Time) string {
	return fmt.Sprintf("involves:%s created:>=%s", account, since.UTC().Format(time.RFC3339))
}

// CommitQuery is the authorship search for account since t.
func CommitQuery(account string, since time.Time) string {
	return fmt.Sprintf("author:%s committer-date:>=%s", account, since.UTC().Format(time.RFC3339))
}

// DiscoverReposForAccount unions the repositories referenced by the involvement
// and authorship searches. Either search may fail on its own; a rejected query
// counts as no results. An error is returned only when both searches failed.
func (d *Discovery) DiscoverReposForAccount(ctx context.Context, account string, since time.Time) (RepoSet, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "discovery.account")
	defer span.End()
	span.SetAttributes(attribute.String("account", account))

	set := RepoSet{}
	var failures []error

	issues, err := d.search.SearchIssues(ctx, IssueQuery(account, since))
	if err != nil {
		if failed := d.searchFailed(ctx, "issues", account, err); failed != nil {
			failures = append(failures, failed)
		}
	}
	for _, it := range issues {
		if k, ok := repoOfIssue(it); ok {
			set[k] = struct{}{}
		}
	}

	commits, err := d.search.SearchCommits(ctx, CommitQuery(account, since))
	if err != nil {
		if failed := d.searchFailed(ctx, "commits", account, err); failed != nil {
			failures = append(failures, failed)
		}
	}
	for _, c := range commits {
		if c.Repository == nil {
			continue
		}
		if k, ok := model.ParseRepoKey(c.Repository.FullName); ok {
			set[k] = struct{}{}
		}
	}

	if len(set) == 0 && d.orgs != nil {
		d.discoverOrgRepos(ctx, account, since, set)
	}

	span.SetAttributes(attribute.Int("repos", len(set)))
	if len(failures) == 2 {
		return set, fmt.Errorf("%w: %s: %w", ErrDiscoveryFailed, account, errors.Join(failures...))
	}
	return set, nil
}

// searchFailed logs a failed search. Validation rejections are not failures.
func (d *Discovery) searchFailed(ctx context.Context, search, account string, err error) error {
	if errors.Is(err, ratelimit.ErrValidation) {
		d.log.Warn(ctx, "search rejected, treating as empty",
			logger.String("search", search), logger.String("account", account), logger.Error(err))
		return nil
	}
	metrics.RecordDiscoveryFailure(search)
	d.log.Warn(ctx, "search failed",
		logger.String("search", search), logger.String("account", account), logger.Error(err))
	return err
}

// discoverOrgRepos treats account as an organization and adds repositories
// pushed since the watermark. Accounts that are not organizations are skipped.
func (d *Discovery) discoverOrgRepos(ctx context.Context, account string, since time.Time, set RepoSet) {
	repos, err := d.orgs.ListOrgRepos(ctx, account)
	if err != nil {
		if !errors.Is(err, ratelimit.ErrNotFound) {
			metrics.RecordDiscoveryFailure("orgs")
			d.log.Warn(ctx, "organization listing failed", logger.String("account", account), logger.Error(err))
		}
		return
	}
	for _, r := range repos {
		if r.PushedAt != nil && r.PushedAt.Before(since) {
			continue
		}
		if k, ok := model.ParseRepoKey(r.FullName); ok {
			set[k] = struct{}{}
		}
	}
}

func repoOfIssue(it model.IssuePayload) (model.RepoKey, bool) {
	if k, ok := model.RepoKeyFromAPIURL(it.RepositoryURL); ok {
		return k, true
	}
	// https://github.com/{owner}/{name}/issues/{n}
	if _, rest, ok := strings.Cut(it.HTMLURL, "://"); ok {
		parts := strings.Split(rest, "/")
		if len(parts) >= 3 {
			return model.ParseRepoKey(parts[1] + "/" + parts[2])
		}
	}
	return model.RepoKey{}, false
}

// BuildRepoAccountMap discovers every account concurrently and inverts the
// result so each repository appears once. A target's Since is the earliest
// watermark among its accounts. Accounts whose discovery failed or did not
// finish within the timeout are returned in failed; siblings keep running.
func (d *Discovery) BuildRepoAccountMap(ctx context.Context, ws []watermark.AccountWatermark) (RepoAccountMap, []string) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "discovery.build")
	defer span.End()

	tctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var (
		mu     sync.Mutex
		closed bool
		found  = make(map[string]RepoSet, len(ws))
		failed = make(map[string]bool, len(ws))
	)

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, w := range ws {
			g.Go(func() error {
				set, err := d.DiscoverReposForAccount(tctx, w.Account, w.Since)
				mu.Lock()
				defer mu.Unlock()
				if closed {
					return nil
				}
				if err != nil {
					failed[w.Account] = true
				}
				found[w.Account] = set
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-done:
	case <-tctx.Done():
		d.log.Warn(ctx, "discovery timed out, continuing with finished accounts", logger.Duration("timeout", d.timeout))
	}

	mu.Lock()
	closed = true
	out := make(RepoAccountMap)
	var failedList []string
	for _, w := range ws {
		set, ok := found[w.Account]
		if !ok || failed[w.Account] {
			failedList = append(failedList, w.Account)
		}
		for repo := range set {
			t, exists := out[repo]
			if !exists {
				t = &RepoTarget{Repo: repo, Since: w.Since}
				out[repo] = t
			}
			t.Accounts = append(t.Accounts, w.Account)
			if w.Since.Before(t.Since) {
				t.Since = w.Since
			}
		}
	}
	mu.Unlock()

	for _, t := range out {
		sort.Strings(t.Accounts)
	}
	sort.Strings(failedList)

	span.SetAttributes(attribute.Int("accounts", len(ws)), attribute.Int("repos", len(out)), attribute.Int("failed", len(failedList)))
	d.log.Info(ctx, "discovery finished",
		logger.Int("accounts", len(ws)), logger.Int("repos", len(out)), logger.Strings("failed", failedList))
	return out, failedList
}
