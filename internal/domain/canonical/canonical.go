// Package canonical holds the normalized (silver) entities and the curated
// (gold) rows derived from them. Canonical entities are rebuilt on every
// normalization run and carry no persisted identity.
package canonical

import "time"

// ParentType tells whether a comment hangs off an issue or a pull request.
type ParentType string

const (
	ParentIssue       ParentType = "Issue"
	ParentPullRequest ParentType = "PullRequest"
)

type Issue struct {
	IssueID   string     `json:"issueId"`
	RepoID    string     `json:"repoId,omitempty"`
	AuthorID  string     `json:"authorId,omitempty"`
	Number    int        `json:"number"`
	Title     *string    `json:"title"`
	Body      *string    `json:"body"`
	State     string     `json:"state"`
	Labels    []string   `json:"labels,omitempty"`
	URL       string     `json:"url,omitempty"`
	CreatedAt *time.Time `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt"`
	ClosedAt  *time.Time `json:"closedAt"`
}

type PullRequest struct {
	PRID         string     `json:"prId"`
	RepoID       string     `json:"repoId,omitempty"`
	AuthorID     string     `json:"authorId,omitempty"`
	Number       int        `json:"number"`
	Title        *string    `json:"title"`
	Body         *string    `json:"body"`
	State        string     `json:"state"`
	Draft        bool       `json:"draft"`
	Merged       bool       `json:"merged"`
	MergedAt     *time.Time `json:"mergedAt"`
	Additions    int        `json:"additions"`
	Deletions    int        `json:"deletions"`
	ChangedFiles int        `json:"changedFiles"`
	CommitSHAs   []string   `json:"commitShas"`
	URL          string     `json:"url,omitempty"`
	CreatedAt    *time.Time `json:"createdAt"`
	UpdatedAt    *time.Time `json:"updatedAt"`
	ClosedAt     *time.Time `json:"closedAt"`
}

type Comment struct {
	CommentID  string     `json:"commentId"`
	RepoID     string     `json:"repoId,omitempty"`
	AuthorID   string     `json:"authorId,omitempty"`
	ParentID   string     `json:"parentId,omitempty"`
	ParentType ParentType `json:"parentType"`
	Body       *string    `json:"body"`
	Path       *string    `json:"path,omitempty"`
	URL        string     `json:"url,omitempty"`
	CreatedAt  *time.Time `json:"createdAt"`
	UpdatedAt  *time.Time `json:"updatedAt"`
}

// Commit is keyed by sha. ParentPRID links it to the pull request it arrived through.
type Commit struct {
	CommitID   string     `json:"commitId"`
	RepoID     string     `json:"repoId,omitempty"`
	AuthorID   string     `json:"authorId,omitempty"`
	ParentPRID string     `json:"parentPrId,omitempty"`
	Message    *string    `json:"message"`
	URL        string     `json:"url,omitempty"`
	CreatedAt  *time.Time `json:"createdAt"`
}

type User struct {
	UserID    string     `json:"userId"`
	NodeID    string     `json:"nodeId"`
	Login     string     `json:"login"`
	Name      *string    `json:"name"`
	Company   *string    `json:"company"`
	Location  *string    `json:"location"`
	Bio       *string    `json:"bio"`
	AvatarURL string     `json:"avatarUrl,omitempty"`
	CreatedAt *time.Time `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt"`
}

type Repository struct {
	RepoID      string     `json:"repoId"`
	NodeID      string     `json:"nodeId"`
	FullName    string     `json:"fullName"`
	Owner       string     `json:"owner"`
	Name        string     `json:"name"`
	Private     bool       `json:"private"`
	Description *string    `json:"description"`
	Language    *string    `json:"language"`
	Stars       int        `json:"stars"`
	Forks       int        `json:"forks"`
	CreatedAt   *time.Time `json:"createdAt"`
	UpdatedAt   *time.Time `json:"updatedAt"`
	PushedAt    *time.Time `json:"pushedAt"`
}

// Bundle is one consistent set of canonical entities for a time window.
// Every list is deduplicated by id and sorted by id.
type Bundle struct {
	Users        []User        `json:"users"`
	Repos        []Repository  `json:"repos"`
	Issues       []Issue       `json:"issues"`
	PullRequests []PullRequest `json:"prs"`
	Comments     []Comment     `json:"comments"`
	Commits      []Commit      `json:"commits"`
}

// Counts returns the entity count per kind.
func (b Bundle) Counts() map[string]int {
	return map[string]int{
		"users":    len(b.Users),
		"repos":    len(b.Repos),
		"issues":   len(b.Issues),
		"prs":      len(b.PullRequests),
		"comments": len(b.Comments),
		"commits":  len(b.Commits),
	}
}
