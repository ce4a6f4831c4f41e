package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Payload is the typed body of a RawEvent. The set of implementations is closed.
type Payload interface {
	// NativeID is the platform identifier the raw id is derived from.
	NativeID() string
	isPayload()
}

// updatedAt returns the version stamp of mutable payloads, nil for the rest.
func updatedAt(p Payload) *time.Time {
	switch v := p.(type) {
	case *IssuePayload:
		return v.UpdatedAt
	case *PullPayload:
		return v.UpdatedAt
	case *CommentPayload:
		return v.UpdatedAt
	}
	return nil
}

// UserRef is the abbreviated account object embedded in most platform items.
type UserRef struct {
	ID     int64  `json:"id"`
	NodeID string `json:"node_id"`
	Login  string `json:"login"`
	Type   string `json:"type,omitempty"`
}

// StringID returns the numeric account id as a string, or "" for a nil or empty ref.
func (u *UserRef) StringID() string {
	if u == nil || u.ID == 0 {
		return ""
	}
	return fmt.Sprintf("%d", u.ID)
}

// PullMarker is present on issue listings when the item is a pull request.
type PullMarker struct {
	URL      string     `json:"url"`
	MergedAt *time.Time `json:"merged_at,omitempty"`
}

// Label is an issue label.
type Label struct {
	Name string `json:"name"`
}

// IssuePayload is an issue as returned by the issues endpoints.
type IssuePayload struct {
	ID            int64       `json:"id"`
	NodeID        string      `json:"node_id"`
	Number        int         `json:"number"`
	Title         *string     `json:"title"`
	Body          *string     `json:"body"`
	State         string      `json:"state"`
	User          *UserRef    `json:"user"`
	Labels        []Label     `json:"labels,omitempty"`
	Comments      int         `json:"comments"`
	HTMLURL       string      `json:"html_url"`
	RepositoryURL string      `json:"repository_url,omitempty"`
	PullRequest   *PullMarker `json:"pull_request,omitempty"`
	CreatedAt     *time.Time  `json:"created_at"`
	UpdatedAt     *time.Time  `json:"updated_at"`
	ClosedAt      *time.Time  `json:"closed_at"`
}

func (p *IssuePayload) NativeID() string { return idString(p.ID) }
func (*IssuePayload) isPayload()         {}

// IsPull reports whether the issue listing entry is a pull request.
func (p *IssuePayload) IsPull() bool { return p.PullRequest != nil }

// BranchRef is the head or base of a pull request.
type BranchRef struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

// PullPayload is a pull request. CommitSHAs is filled by the ingestion pass
// from the pull commits listing and is not part of the platform response.
type PullPayload struct {
	ID           int64      `json:"id"`
	NodeID       string     `json:"node_id"`
	Number       int        `json:"number"`
	Title        *string    `json:"title"`
	Body         *string    `json:"body"`
	State        string     `json:"state"`
	Draft        bool       `json:"draft"`
	Merged       bool       `json:"merged"`
	MergedAt     *time.Time `json:"merged_at"`
	User         *UserRef   `json:"user"`
	Head         *BranchRef `json:"head,omitempty"`
	Base         *BranchRef `json:"base,omitempty"`
	Additions    int        `json:"additions"`
	Deletions    int        `json:"deletions"`
	ChangedFiles int        `json:"changed_files"`
	HTMLURL      string     `json:"html_url"`
	CreatedAt    *time.Time `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at"`
	ClosedAt     *time.Time `json:"closed_at"`
	CommitSHAs   []string   `json:"commit_shas,omitempty"`
}

func (p *PullPayload) NativeID() string { return idString(p.ID) }
func (*PullPayload) isPayload()         {}

// IsMerged reports the merged state carried by the snapshot.
func (p *PullPayload) IsMerged() bool { return p.Merged || p.MergedAt != nil }

// PullFromIssue builds a pull request snapshot from its issue listing entry.
// Detail-only fields stay empty until a pull lookup fills them.
func PullFromIssue(i *IssuePayload) *PullPayload {
	p := &PullPayload{
		ID:        i.ID,
		NodeID:    i.NodeID,
		Number:    i.Number,
		Title:     i.Title,
		Body:      i.Body,
		State:     i.State,
		User:      i.User,
		HTMLURL:   i.HTMLURL,
		CreatedAt: i.CreatedAt,
		UpdatedAt: i.UpdatedAt,
		ClosedAt:  i.ClosedAt,
	}
	if i.PullRequest != nil && i.PullRequest.MergedAt != nil {
		p.MergedAt = i.PullRequest.MergedAt
		p.Merged = true
	}
	return p
}

// CommentPayload covers both issue comments and pull request review comments.
// Which feed produced it is recorded by the RawEvent kind.
type CommentPayload struct {
	ID             int64      `json:"id"`
	NodeID         string     `json:"node_id"`
	Body           *string    `json:"body"`
	User           *UserRef   `json:"user"`
	HTMLURL        string     `json:"html_url"`
	IssueURL       string     `json:"issue_url,omitempty"`
	PullRequestURL string     `json:"pull_request_url,omitempty"`
	Path           *string    `json:"path,omitempty"`
	CommitID       string     `json:"commit_id,omitempty"`
	CreatedAt      *time.Time `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at"`
}

func (p *CommentPayload) NativeID() string { return idString(p.ID) }
func (*CommentPayload) isPayload()         {}

// GitSignature is the git level author or committer.
type GitSignature struct {
	Name  string     `json:"name"`
	Email string     `json:"email"`
	Date  *time.Time `json:"date"`
}

// GitCommit is the git level commit object.
type GitCommit struct {
	Message   *string       `json:"message"`
	Author    *GitSignature `json:"author"`
	Committer *GitSignature `json:"committer"`
}

// RepoRef names a repository inside search results.
type RepoRef struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
}

// CommitPayload is a commit from the commits or pull commits listings.
type CommitPayload struct {
	SHA        string     `json:"sha"`
	NodeID     string     `json:"node_id"`
	Commit     *GitCommit `json:"commit"`
	Author     *UserRef   `json:"author"`
	Committer  *UserRef   `json:"committer"`
	HTMLURL    string     `json:"html_url"`
	Repository *RepoRef   `json:"repository,omitempty"`
}

func (p *CommitPayload) NativeID() string { return p.SHA }
func (*CommitPayload) isPayload()         {}

// AuthoredAt returns the git author date, falling back to the committer date.
func (p *CommitPayload) AuthoredAt() *time.Time {
	if p.Commit == nil {
		return nil
	}
	if p.Commit.Author != nil && p.Commit.Author.Date != nil {
		return p.Commit.Author.Date
	}
	if p.Commit.Committer != nil {
		return p.Commit.Committer.Date
	}
	return nil
}

// UserPayload is a full account object.
type UserPayload struct {
	ID        int64      `json:"id"`
	NodeID    string     `json:"node_id"`
	Login     string     `json:"login"`
	Type      string     `json:"type"`
	Name      *string    `json:"name"`
	Company   *string    `json:"company"`
	Location  *string    `json:"location"`
	Bio       *string    `json:"bio"`
	Email     *string    `json:"email"`
	AvatarURL string     `json:"avatar_url"`
	HTMLURL   string     `json:"html_url"`
	CreatedAt *time.Time `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

// RepoPayload is a repository object.
type RepoPayload struct {
	ID              int64      `json:"id"`
	NodeID          string     `json:"node_id"`
	Name            string     `json:"name"`
	FullName        string     `json:"full_name"`
	Owner           *UserRef   `json:"owner"`
	Private         bool       `json:"private"`
	Fork            bool       `json:"fork"`
	Archived        bool       `json:"archived"`
	Description     *string    `json:"description"`
	Language        *string    `json:"language"`
	StargazersCount int        `json:"stargazers_count"`
	ForksCount      int        `json:"forks_count"`
	DefaultBranch   string     `json:"default_branch"`
	HTMLURL         string     `json:"html_url"`
	CreatedAt       *time.Time `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at"`
	PushedAt        *time.Time `json:"pushed_at"`
}

// EncodePayload serializes a payload for the durable store.
func EncodePayload(p Payload) ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	return json.Marshal(p)
}

// DecodePayload decodes a stored payload into the variant selected by kind.
func DecodePayload(kind Kind, data []byte) (Payload, error) {
	var p Payload
	switch kind {
	case KindIssue:
		p = &IssuePayload{}
	case KindPullRequest:
		p = &PullPayload{}
	case KindIssueComment, KindReviewComment:
		p = &CommentPayload{}
	case KindCommit:
		p = &CommitPayload{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecodePayload, kind, err)
	}
	return p, nil
}

func idString(id int64) string {
	if id == 0 {
		return ""
	}
	return fmt.Sprintf("%d", id)
}
