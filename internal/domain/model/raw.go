// Package model contains the raw (bronze) records written by ingestion.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind identifies which platform feed produced a RawEvent.
type Kind string

const (
	KindIssue         Kind = "issue"
	KindPullRequest   Kind = "pull_request"
	KindIssueComment  Kind = "issue_comment"
	KindReviewComment Kind = "pr_review_comment"
	KindCommit        Kind = "commit"
)

// Kinds lists every event kind in a fixed order.
var Kinds = []Kind{KindIssue, KindPullRequest, KindIssueComment, KindReviewComment, KindCommit}

// rawNamespace seeds the name based UUIDs of raw events.
var rawNamespace = uuid.MustParse("6f1c7a52-3d1e-5b8e-9a0c-2f4e8d7b1c90")

// RawID derives the stable raw event id for a platform item.
// The same (kind, nativeID) pair always yields the same id.
func RawID(kind Kind, nativeID string) string {
	return uuid.NewSHA1(rawNamespace, []byte(string(kind)+":"+nativeID)).String()
}

// SnapshotID derives the raw id of one version of a mutable item. Fetching
// the same version again gives the same id; a later updatedAt gives a new
// one. A nil updatedAt falls back to RawID.
func SnapshotID(kind Kind, nativeID string, updatedAt *time.Time) string {
	if updatedAt == nil {
		return RawID(kind, nativeID)
	}
	return RawID(kind, nativeID+"@"+updatedAt.UTC().Format(time.RFC3339Nano))
}

// RawEvent is an immutable fetched item. Empty ActorID, RepoID and ParentID mean unknown.
type RawEvent struct {
	ID         string
	Kind       Kind
	ActorID    string
	RepoID     string
	ParentID   string
	CreatedAt  *time.Time
	ReceivedAt time.Time
	IsPrivate  *bool
	Payload    Payload
}

// NewRawEvent builds a RawEvent with its id derived from the payload. Issues,
// pull requests and comments are keyed per updated_at so that every observed
// version lands in the raw store; commits never change and keep one id.
func NewRawEvent(kind Kind, p Payload, receivedAt time.Time) (RawEvent, error) {
	if p == nil || p.NativeID() == "" {
		return RawEvent{}, fmt.Errorf("%w: %s", ErrMissingNativeID, kind)
	}
	return RawEvent{
		ID:         SnapshotID(kind, p.NativeID(), updatedAt(p)),
		Kind:       kind,
		ReceivedAt: receivedAt.UTC(),
		Payload:    p,
	}, nil
}

// RawUser is an account snapshot keyed by node id. Complete is false for
// references taken from an embedded user object rather than a user lookup.
type RawUser struct {
	NodeID     string
	UserID     string
	Login      string
	ReceivedAt time.Time
	Complete   bool
	Payload    UserPayload
}

// UserFromRef builds a partial RawUser from an embedded account reference.
func UserFromRef(ref *UserRef, receivedAt time.Time) (RawUser, bool) {
	if ref == nil || ref.NodeID == "" || ref.ID == 0 {
		return RawUser{}, false
	}
	return RawUser{
		NodeID:     ref.NodeID,
		UserID:     ref.StringID(),
		Login:      ref.Login,
		ReceivedAt: receivedAt.UTC(),
		Payload: UserPayload{
			ID:     ref.ID,
			NodeID: ref.NodeID,
			Login:  ref.Login,
			Type:   ref.Type,
		},
	}, true
}

// UserFromPayload builds a complete RawUser from a user lookup.
func UserFromPayload(p *UserPayload, receivedAt time.Time) (RawUser, bool) {
	if p == nil || p.NodeID == "" || p.ID == 0 {
		return RawUser{}, false
	}
	return RawUser{
		NodeID:     p.NodeID,
		UserID:     idString(p.ID),
		Login:      p.Login,
		ReceivedAt: receivedAt.UTC(),
		Complete:   true,
		Payload:    *p,
	}, true
}

// RawRepo is a repository snapshot keyed by node id.
type RawRepo struct {
	NodeID     string
	RepoID     string
	FullName   string
	ReceivedAt time.Time
	Payload    RepoPayload
}

// RepoFromPayload builds a RawRepo from repository metadata.
func RepoFromPayload(p *RepoPayload, receivedAt time.Time) (RawRepo, bool) {
	if p == nil || p.NodeID == "" || p.ID == 0 {
		return RawRepo{}, false
	}
	return RawRepo{
		NodeID:     p.NodeID,
		RepoID:     idString(p.ID),
		FullName:   p.FullName,
		ReceivedAt: receivedAt.UTC(),
		Payload:    *p,
	}, true
}

// RepoKey names a repository by owner and name.
type RepoKey struct {
	Owner string
	Name  string
}

func (k RepoKey) String() string { return k.Owner + "/" + k.Name }

// ParseRepoKey parses "owner/name". Matching is case-insensitive on the platform,
// so both parts are lowercased to give one key per repository.
func ParseRepoKey(fullName string) (RepoKey, bool) {
	owner, name, ok := strings.Cut(strings.TrimSpace(fullName), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return RepoKey{}, false
	}
	return RepoKey{Owner: strings.ToLower(owner), Name: strings.ToLower(name)}, true
}

// RepoKeyFromAPIURL extracts the key from ".../repos/{owner}/{name}".
func RepoKeyFromAPIURL(u string) (RepoKey, bool) {
	_, rest, ok := strings.Cut(u, "/repos/")
	if !ok {
		return RepoKey{}, false
	}
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 2 {
		return RepoKey{}, false
	}
	return ParseRepoKey(parts[0] + "/" + parts[1])
}
