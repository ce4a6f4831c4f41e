// Package aggregate folds canonical entities into curated rows.
package aggregate

import (
	"sort"
	"time"

	"github.com/okian/ghpulse/internal/domain/canonical"
)

type bucketKey struct {
	userID string
	day    string
	repoID string
	kind   canonical.ActivityType
}

// Aggregator accumulates activity counts. Each entity adds exactly one to its
// bucket. It is not safe for concurrent use.
type Aggregator struct {
	buckets map[bucketKey]int
	skipped int
}

// NewAggregator returns an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{buckets: make(map[bucketKey]int)}
}

func (a *Aggregator) add(userID, repoID string, createdAt *time.Time, kind canonical.ActivityType) {
	if userID == "" || repoID == "" || createdAt == nil || createdAt.IsZero() {
		a.skipped++
		return
	}
	a.buckets[bucketKey{userID: userID, day: canonical.Day(*createdAt), repoID: repoID, kind: kind}]++
}

func (a *Aggregator) AddIssue(i canonical.Issue) {
	a.add(i.AuthorID, i.RepoID, i.CreatedAt, canonical.ActivityIssue)
}

func (a *Aggregator) AddPullRequest(pr canonical.PullRequest) {
	a.add(pr.AuthorID, pr.RepoID, pr.CreatedAt, canonical.ActivityPR)
}

// AddComment buckets by the comment's parent type.
func (a *Aggregator) AddComment(c canonical.Comment) {
	kind := canonical.ActivityIssueComment
	if c.ParentType == canonical.ParentPullRequest {
		kind = canonical.ActivityPRComment
	}
	a.add(c.AuthorID, c.RepoID, c.CreatedAt, kind)
}

func (a *Aggregator) AddCommit(c canonical.Commit) {
	a.add(c.AuthorID, c.RepoID, c.CreatedAt, canonical.ActivityCommit)
}

// Skipped returns how many entities lacked a user, repo or creation time.
func (a *Aggregator) Skipped() int { return a.skipped }

// Rows re-keys the buckets by persistence key, sums collisions and returns
// the counters sorted by key. No key appears twice in the result.
func (a *Aggregator) Rows() []canonical.ActivityCounter {
	byKey := make(map[string]*canonical.ActivityCounter, len(a.buckets))
	for k, n := range a.buckets {
		row := canonical.ActivityCounter{UserID: k.userID, Day: k.day, RepoID: k.repoID, ActivityType: k.kind}
		if existing, ok := byKey[row.Key()]; ok {
			existing.Count += n
			continue
		}
		row.Count = n
		byKey[row.Key()] = &row
	}
	out := make([]canonical.ActivityCounter, 0, len(byKey))
	for _, row := range byKey {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Curate derives profiles, repository summaries and activity counters from a bundle.
func Curate(b canonical.Bundle) canonical.Curated {
	out := canonical.Curated{
		Profiles:   []canonical.Profile{},
		Repos:      []canonical.RepoSummary{},
		Activities: []canonical.ActivityCounter{},
	}
	for _, u := range b.Users {
		if u.UserID == "" || u.Login == "" {
			continue
		}
		out.Profiles = append(out.Profiles, canonical.Profile{
			UserID:    u.UserID,
			Login:     u.Login,
			Name:      u.Name,
			AvatarURL: u.AvatarURL,
			Company:   u.Company,
			Location:  u.Location,
			UpdatedAt: u.UpdatedAt,
		})
	}
	for _, r := range b.Repos {
		if r.RepoID == "" {
			continue
		}
		out.Repos = append(out.Repos, canonical.RepoSummary{
			RepoID:    r.RepoID,
			FullName:  r.FullName,
			Owner:     r.Owner,
			Private:   r.Private,
			Language:  r.Language,
			Stars:     r.Stars,
			Forks:     r.Forks,
			UpdatedAt: r.UpdatedAt,
		})
	}

	agg := NewAggregator()
	for _, i := range b.Issues {
		agg.AddIssue(i)
	}
	for _, pr := range b.PullRequests {
		agg.AddPullRequest(pr)
	}
	for _, c := range b.Comments {
		agg.AddComment(c)
	}
	for _, c := range b.Commits {
		agg.AddCommit(c)
	}
	out.Activities = append(out.Activities, agg.Rows()...)
	return out
}
