package mapper

import (
	"time"

	"github.com/okian/ghpulse/internal/domain/canonical"
)

// incomingWins reports whether the next snapshot is at least as fresh as prev.
// Freshness is updatedAt falling back to createdAt. A missing signal on either
// side, or a tie, counts in favour of the incoming snapshot.
func incomingWins(prevUpdated, prevCreated, nextUpdated, nextCreated *time.Time) bool {
	p := firstTime(prevUpdated, prevCreated)
	n := firstTime(nextUpdated, nextCreated)
	if p == nil || n == nil {
		return true
	}
	return !n.Before(*p)
}

// keepText returns primary unless it is nil.
func keepText(primary, fallback *string) *string {
	if primary != nil {
		return primary
	}
	return fallback
}

func keepTime(primary, fallback *time.Time) *time.Time {
	if primary != nil {
		return primary
	}
	return fallback
}

// MergeIssue reconciles two snapshots of one issue.
func MergeIssue(prev, next canonical.Issue) canonical.Issue {
	base, other := next, prev
	if !incomingWins(prev.UpdatedAt, prev.CreatedAt, next.UpdatedAt, next.CreatedAt) {
		base, other = prev, next
	}
	base.Title = keepText(base.Title, other.Title)
	base.Body = keepText(base.Body, other.Body)
	base.CreatedAt = keepTime(base.CreatedAt, other.CreatedAt)
	base.UpdatedAt = keepTime(base.UpdatedAt, other.UpdatedAt)
	base.RepoID = firstNonEmpty(base.RepoID, other.RepoID)
	base.AuthorID = firstNonEmpty(base.AuthorID, other.AuthorID)
	return base
}

// MergePullRequest reconciles two snapshots of one pull request. A snapshot
// carrying commit shas beats one without, whatever the timestamps say.
func MergePullRequest(prev, next canonical.PullRequest) canonical.PullRequest {
	var base, other canonical.PullRequest
	switch {
	case len(prev.CommitSHAs) > 0 && len(next.CommitSHAs) == 0:
		base, other = prev, next
	case len(next.CommitSHAs) > 0 && len(prev.CommitSHAs) == 0:
		base, other = next, prev
	case incomingWins(prev.UpdatedAt, prev.CreatedAt, next.UpdatedAt, next.CreatedAt):
		base, other = next, prev
	default:
		base, other = prev, next
	}
	base.Title = keepText(base.Title, other.Title)
	base.Body = keepText(base.Body, other.Body)
	base.CreatedAt = keepTime(base.CreatedAt, other.CreatedAt)
	base.UpdatedAt = keepTime(base.UpdatedAt, other.UpdatedAt)
	base.MergedAt = keepTime(base.MergedAt, other.MergedAt)
	base.Merged = base.Merged || base.MergedAt != nil
	base.RepoID = firstNonEmpty(base.RepoID, other.RepoID)
	base.AuthorID = firstNonEmpty(base.AuthorID, other.AuthorID)
	return base
}

// MergeComment reconciles two snapshots of one comment. A resolved parent is
// never dropped.
func MergeComment(prev, next canonical.Comment) canonical.Comment {
	base, other := next, prev
	if !incomingWins(prev.UpdatedAt, prev.CreatedAt, next.UpdatedAt, next.CreatedAt) {
		base, other = prev, next
	}
	base.Body = keepText(base.Body, other.Body)
	base.Path = keepText(base.Path, other.Path)
	base.CreatedAt = keepTime(base.CreatedAt, other.CreatedAt)
	base.UpdatedAt = keepTime(base.UpdatedAt, other.UpdatedAt)
	base.ParentID = firstNonEmpty(base.ParentID, other.ParentID)
	base.RepoID = firstNonEmpty(base.RepoID, other.RepoID)
	base.AuthorID = firstNonEmpty(base.AuthorID, other.AuthorID)
	return base
}

// MergeCommit reconciles two observations of one sha. Commits are immutable,
// so the merge only fills gaps; a pull request link is kept once known.
func MergeCommit(prev, next canonical.Commit) canonical.Commit {
	base, other := next, prev
	base.Message = keepText(base.Message, other.Message)
	base.CreatedAt = keepTime(base.CreatedAt, other.CreatedAt)
	base.ParentPRID = firstNonEmpty(base.ParentPRID, other.ParentPRID)
	base.RepoID = firstNonEmpty(base.RepoID, other.RepoID)
	base.AuthorID = firstNonEmpty(base.AuthorID, other.AuthorID)
	base.URL = firstNonEmpty(base.URL, other.URL)
	return base
}

// MergeUser reconciles two snapshots of one user.
func MergeUser(prev, next canonical.User) canonical.User {
	base, other := next, prev
	if !incomingWins(prev.UpdatedAt, prev.CreatedAt, next.UpdatedAt, next.CreatedAt) {
		base, other = prev, next
	}
	base.Name = keepText(base.Name, other.Name)
	base.Company = keepText(base.Company, other.Company)
	base.Location = keepText(base.Location, other.Location)
	base.Bio = keepText(base.Bio, other.Bio)
	base.Login = firstNonEmpty(base.Login, other.Login)
	base.NodeID = firstNonEmpty(base.NodeID, other.NodeID)
	base.AvatarURL = firstNonEmpty(base.AvatarURL, other.AvatarURL)
	base.CreatedAt = keepTime(base.CreatedAt, other.CreatedAt)
	base.UpdatedAt = keepTime(base.UpdatedAt, other.UpdatedAt)
	return base
}

// MergeRepository reconciles two snapshots of one repository.
func MergeRepository(prev, next canonical.Repository) canonical.Repository {
	base, other := next, prev
	if !incomingWins(prev.UpdatedAt, prev.CreatedAt, next.UpdatedAt, next.CreatedAt) {
		base, other = prev, next
	}
	base.Description = keepText(base.Description, other.Description)
	base.Language = keepText(base.Language, other.Language)
	base.FullName = firstNonEmpty(base.FullName, other.FullName)
	base.Owner = firstNonEmpty(base.Owner, other.Owner)
	base.Name = firstNonEmpty(base.Name, other.Name)
	base.NodeID = firstNonEmpty(base.NodeID, other.NodeID)
	base.CreatedAt = keepTime(base.CreatedAt, other.CreatedAt)
	base.UpdatedAt = keepTime(base.UpdatedAt, other.UpdatedAt)
	return base
}

// CommitEligible reports whether a commit counts as integrated work.
// Unlinked commits are direct pushes; linked ones need their pull request merged.
func CommitEligible(c canonical.Commit, mergedPRs map[string]bool) bool {
	if c.ParentPRID == "" {
		return true
	}
	return mergedPRs[c.ParentPRID]
}
