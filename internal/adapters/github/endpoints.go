package github

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/okian/ghpulse/internal/domain/model"
)

// Operation names used for logs, metrics and errors.
const (
	OpGetRepo            = "get-repo"
	OpListOrgRepos       = "list-org-repos"
	OpListRepoCommits    = "list-repo-commits"
	OpListIssues         = "list-issues"
	OpGetIssue           = "get-issue"
	OpGetPull            = "get-pull"
	OpListIssueComments  = "list-issue-comments"
	OpListReviewComments = "list-review-comments"
	OpListPullCommits    = "list-pull-commits"
	OpSearchIssues       = "search-issues"
	OpSearchCommits      = "search-commits"
	OpGetUser            = "get-user"
)

func repoPath(repo model.RepoKey, suffix string) string {
	return "/repos/" + url.PathEscape(repo.Owner) + "/" + url.PathEscape(repo.Name) + suffix
}

func isoTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// GetRepo returns repository metadata. A degraded lookup yields nil, nil.
func (c *Client) GetRepo(ctx context.Context, repo model.RepoKey) (*model.RepoPayload, error) {
	return getOne[model.RepoPayload](ctx, c, OpGetRepo, repoPath(repo, ""))
}

// ListOrgRepos lists an organization's repositories, most recently pushed first.
func (c *Client) ListOrgRepos(ctx context.Context, org string) ([]model.RepoPayload, error) {
	q := url.Values{"type": {"all"}, "sort": {"pushed"}, "direction": {"desc"}}
	return list(ctx, c, OpListOrgRepos, "/orgs/"+url.PathEscape(org)+"/repos", q, 0, decodeArray[model.RepoPayload])
}

// ListRepoCommits lists commits on the default branch since the watermark, optionally by author.
func (c *Client) ListRepoCommits(ctx context.Context, repo model.RepoKey, since time.Time, author string) ([]model.CommitPayload, error) {
	q := url.Values{}
	if !since.IsZero() {
		q.Set("since", isoTime(since))
	}
	if author != "" {
		q.Set("author", author)
	}
	return list(ctx, c, OpListRepoCommits, repoPath(repo, "/commits"), q, 0, decodeArray[model.CommitPayload])
}

// ListIssues lists issues and pull requests updated since the watermark.
func (c *Client) ListIssues(ctx context.Context, repo model.RepoKey, since time.Time, creator string) ([]model.IssuePayload, error) {
	q := url.Values{"state": {"all"}, "sort": {"updated"}, "direction": {"asc"}}
	if !since.IsZero() {
		q.Set("since", isoTime(since))
	}
	if creator != "" {
		q.Set("creator", creator)
	}
	return list(ctx, c, OpListIssues, repoPath(repo, "/issues"), q, 0, decodeArray[model.IssuePayload])
}

// GetIssue fetches one issue or pull request by number through the issues endpoint.
func (c *Client) GetIssue(ctx context.Context, repo model.RepoKey, number int) (*model.IssuePayload, error) {
	return getOne[model.IssuePayload](ctx, c, OpGetIssue, repoPath(repo, fmt.Sprintf("/issues/%d", number)))
}

// GetPull fetches pull request detail.
func (c *Client) GetPull(ctx context.Context, repo model.RepoKey, number int) (*model.PullPayload, error) {
	return getOne[model.PullPayload](ctx, c, OpGetPull, repoPath(repo, fmt.Sprintf("/pulls/%d", number)))
}

// ListIssueComments lists conversation comments across the repository.
func (c *Client) ListIssueComments(ctx context.Context, repo model.RepoKey, since time.Time) ([]model.CommentPayload, error) {
	q := url.Values{"sort": {"updated"}, "direction": {"asc"}}
	if !since.IsZero() {
		q.Set("since", isoTime(since))
	}
	return list(ctx, c, OpListIssueComments, repoPath(repo, "/issues/comments"), q, 0, decodeArray[model.CommentPayload])
}

// ListReviewComments lists pull request review comments across the repository.
func (c *Client) ListReviewComments(ctx context.Context, repo model.RepoKey, since time.Time) ([]model.CommentPayload, error) {
	q := url.Values{"sort": {"updated"}, "direction": {"asc"}}
	if !since.IsZero() {
		q.Set("since", isoTime(since))
	}
	return list(ctx, c, OpListReviewComments, repoPath(repo, "/pulls/comments"), q, 0, decodeArray[model.CommentPayload])
}

// ListPullCommits lists the commits of one pull request.
func (c *Client) ListPullCommits(ctx context.Context, repo model.RepoKey, number int) ([]model.CommitPayload, error) {
	return list(ctx, c, OpListPullCommits, repoPath(repo, fmt.Sprintf("/pulls/%d/commits", number)), nil, 0, decodeArray[model.CommitPayload])
}

// SearchIssues runs an issue and pull request search.
func (c *Client) SearchIssues(ctx context.Context, query string) ([]model.IssuePayload, error) {
	q := url.Values{"q": {query}, "sort": {"created"}, "order": {"desc"}}
	return list(ctx, c, OpSearchIssues, "/search/issues", q, c.searchMaxPages, decodeSearch[model.IssuePayload])
}

// SearchCommits runs a commit search.
func (c *Client) SearchCommits(ctx context.Context, query string) ([]model.CommitPayload, error) {
	q := url.Values{"q": {query}, "sort": {"committer-date"}, "order": {"desc"}}
	return list(ctx, c, OpSearchCommits, "/search/commits", q, c.searchMaxPages, decodeSearch[model.CommitPayload])
}

// GetUser fetches an account by login.
func (c *Client) GetUser(ctx context.Context, login string) (*model.UserPayload, error) {
	return getOne[model.UserPayload](ctx, c, OpGetUser, "/users/"+url.PathEscape(login))
}
