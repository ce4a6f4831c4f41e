// Package mapper converts raw records into canonical entities and reconciles
// multiple snapshots of the same entity.
//
// Map functions return nil when the raw record has no resolvable id. Callers
// skip those records.
package mapper

import (
	"strings"

	"github.com/okian/ghpulse/internal/domain/canonical"
	"github.com/okian/ghpulse/internal/domain/model"
)

// MapIssue maps an issue raw event.
func MapIssue(ev model.RawEvent) *canonical.Issue {
	p, ok := ev.Payload.(*model.IssuePayload)
	if !ok || p == nil || p.NativeID() == "" {
		return nil
	}
	out := &canonical.Issue{
		IssueID:   p.NativeID(),
		RepoID:    ev.RepoID,
		AuthorID:  firstNonEmpty(ev.ActorID, p.User.StringID()),
		Number:    p.Number,
		Title:     p.Title,
		Body:      p.Body,
		State:     p.State,
		URL:       p.HTMLURL,
		CreatedAt: firstTime(p.CreatedAt, ev.CreatedAt),
		UpdatedAt: p.UpdatedAt,
		ClosedAt:  p.ClosedAt,
	}
	for _, l := range p.Labels {
		if l.Name != "" {
			out.Labels = append(out.Labels, l.Name)
		}
	}
	return out
}

// MapPullRequest maps a pull request raw event.
func MapPullRequest(ev model.RawEvent) *canonical.PullRequest {
	p, ok := ev.Payload.(*model.PullPayload)
	if !ok || p == nil || p.NativeID() == "" {
		return nil
	}
	return &canonical.PullRequest{
		PRID:         p.NativeID(),
		RepoID:       ev.RepoID,
		AuthorID:     firstNonEmpty(ev.ActorID, p.User.StringID()),
		Number:       p.Number,
		Title:        p.Title,
		Body:         p.Body,
		State:        p.State,
		Draft:        p.Draft,
		Merged:       p.IsMerged(),
		MergedAt:     p.MergedAt,
		Additions:    p.Additions,
		Deletions:    p.Deletions,
		ChangedFiles: p.ChangedFiles,
		CommitSHAs:   append([]string(nil), p.CommitSHAs...),
		URL:          p.HTMLURL,
		CreatedAt:    firstTime(p.CreatedAt, ev.CreatedAt),
		UpdatedAt:    p.UpdatedAt,
		ClosedAt:     p.ClosedAt,
	}
}

// MapComment maps an issue comment or review comment raw event. The parent
// type follows the feed recorded in the event kind.
func MapComment(ev model.RawEvent) *canonical.Comment {
	p, ok := ev.Payload.(*model.CommentPayload)
	if !ok || p == nil || p.NativeID() == "" {
		return nil
	}
	var parentType canonical.ParentType
	switch ev.Kind {
	case model.KindIssueComment:
		parentType = canonical.ParentIssue
	case model.KindReviewComment:
		parentType = canonical.ParentPullRequest
	default:
		return nil
	}
	return &canonical.Comment{
		CommentID:  p.NativeID(),
		RepoID:     ev.RepoID,
		AuthorID:   firstNonEmpty(ev.ActorID, p.User.StringID()),
		ParentID:   ev.ParentID,
		ParentType: parentType,
		Body:       p.Body,
		Path:       p.Path,
		URL:        p.HTMLURL,
		CreatedAt:  firstTime(p.CreatedAt, ev.CreatedAt),
		UpdatedAt:  p.UpdatedAt,
	}
}

// MapCommit maps a commit raw event. The parent pull request comes from the
// event's parent reference.
func MapCommit(ev model.RawEvent) *canonical.Commit {
	p, ok := ev.Payload.(*model.CommitPayload)
	if !ok || p == nil || p.SHA == "" {
		return nil
	}
	out := &canonical.Commit{
		CommitID:   p.SHA,
		RepoID:     ev.RepoID,
		AuthorID:   firstNonEmpty(ev.ActorID, p.Author.StringID()),
		ParentPRID: ev.ParentID,
		URL:        p.HTMLURL,
		CreatedAt:  firstTime(p.AuthoredAt(), ev.CreatedAt),
	}
	if p.Commit != nil {
		out.Message = p.Commit.Message
	}
	return out
}

// MapUser maps a raw user snapshot.
func MapUser(u model.RawUser) *canonical.User {
	id := firstNonEmpty(u.UserID, idOf(u.Payload.ID))
	if id == "" {
		return nil
	}
	return &canonical.User{
		UserID:    id,
		NodeID:    u.NodeID,
		Login:     firstNonEmpty(u.Payload.Login, u.Login),
		Name:      nonBlank(u.Payload.Name),
		Company:   nonBlank(u.Payload.Company),
		Location:  nonBlank(u.Payload.Location),
		Bio:       nonBlank(u.Payload.Bio),
		AvatarURL: u.Payload.AvatarURL,
		CreatedAt: u.Payload.CreatedAt,
		UpdatedAt: u.Payload.UpdatedAt,
	}
}

// MapRepository maps a raw repository snapshot.
func MapRepository(r model.RawRepo) *canonical.Repository {
	id := firstNonEmpty(r.RepoID, idOf(r.Payload.ID))
	if id == "" {
		return nil
	}
	full := firstNonEmpty(r.Payload.FullName, r.FullName)
	owner, name, _ := strings.Cut(full, "/")
	if r.Payload.Owner != nil && r.Payload.Owner.Login != "" {
		owner = r.Payload.Owner.Login
	}
	if r.Payload.Name != "" {
		name = r.Payload.Name
	}
	return &canonical.Repository{
		RepoID:      id,
		NodeID:      r.NodeID,
		FullName:    full,
		Owner:       owner,
		Name:        name,
		Private:     r.Payload.Private,
		Description: nonBlank(r.Payload.Description),
		Language:    nonBlank(r.Payload.Language),
		Stars:       r.Payload.StargazersCount,
		Forks:       r.Payload.ForksCount,
		CreatedAt:   r.Payload.CreatedAt,
		UpdatedAt:   r.Payload.UpdatedAt,
		PushedAt:    r.Payload.PushedAt,
	}
}
