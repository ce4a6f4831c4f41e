package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/ghpulse/internal/adapters/ratelimit"
	"github.com/okian/ghpulse/internal/domain/discovery"
	"github.com/okian/ghpulse/internal/domain/model"
	"github.com/okian/ghpulse/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

const apiBase = "https://api.github.com/repos/acme/widgets"

var (
	widgets = model.RepoKey{Owner: "acme", Name: "widgets"}
	t0      = time.Date(2024, 1, 7, 10, 0, 0, 0, time.UTC)
	alice   = &model.UserRef{ID: 11, NodeID: "U_alice", Login: "alice"}
	bob     = &model.UserRef{ID: 12, NodeID: "U_bob", Login: "bob"}
)

type fakePlatform struct {
	mu sync.Mutex

	repos       map[model.RepoKey]*model.RepoPayload
	repoErr     map[model.RepoKey]error
	issues      []model.IssuePayload
	issuesErr   error
	issueByNum  map[int]*model.IssuePayload
	issueErr    map[int]error
	pulls       map[int]*model.PullPayload
	pullErr     map[int]error
	pullCommits map[int][]model.CommitPayload
	comments    []model.CommentPayload
	reviews     []model.CommentPayload
	commits     []model.CommitPayload

	issueLookups map[int]int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		repos:        map[model.RepoKey]*model.RepoPayload{},
		repoErr:      map[model.RepoKey]error{},
		issueByNum:   map[int]*model.IssuePayload{},
		issueErr:     map[int]error{},
		pulls:        map[int]*model.PullPayload{},
		pullErr:      map[int]error{},
		pullCommits:  map[int][]model.CommitPayload{},
		issueLookups: map[int]int{},
	}
}

func (f *fakePlatform) GetRepo(_ context.Context, repo model.RepoKey) (*model.RepoPayload, error) {
	return f.repos[repo], f.repoErr[repo]
}

func (f *fakePlatform) ListIssues(context.Context, model.RepoKey, time.Time, string) ([]model.IssuePayload, error) {
	return f.issues, f.issuesErr
}

func (f *fakePlatform) GetIssue(_ context.Context, _ model.RepoKey, n int) (*model.IssuePayload, error) {
	f.mu.Lock()
	f.issueLookups[n]++
	f.mu.Unlock()
	return f.issueByNum[n], f.issueErr[n]
}

func (f *fakePlatform) GetPull(_ context.Context, _ model.RepoKey, n int) (*model.PullPayload, error) {
	if p := f.pulls[n]; p != nil {
		cp := *p
		return &cp, nil
	}
	return nil, f.pullErr[n]
}

func (f *fakePlatform) ListIssueComments(context.Context, model.RepoKey, time.Time) ([]model.CommentPayload, error) {
	return f.comments, nil
}

func (f *fakePlatform) ListReviewComments(context.Context, model.RepoKey, time.Time) ([]model.CommentPayload, error) {
	return f.reviews, nil
}

func (f *fakePlatform) ListPullCommits(_ context.Context, _ model.RepoKey, n int) ([]model.CommitPayload, error) {
	return f.pullCommits[n], nil
}

func (f *fakePlatform) ListRepoCommits(context.Context, model.RepoKey, time.Time, string) ([]model.CommitPayload, error) {
	return f.commits, nil
}

type fakeSink struct {
	mu     sync.Mutex
	events map[string]model.RawEvent
	users  map[string]model.RawUser
	repos  map[string]model.RawRepo
	fail   error
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		events: map[string]model.RawEvent{},
		users:  map[string]model.RawUser{},
		repos:  map[string]model.RawRepo{},
	}
}

func (s *fakeSink) UpsertEvent(_ context.Context, ev model.RawEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return false, s.fail
	}
	if _, ok := s.events[ev.ID]; ok {
		return false, nil
	}
	s.events[ev.ID] = ev
	return true, nil
}

func (s *fakeSink) UpsertUserRef(_ context.Context, u model.RawUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.NodeID]; !ok {
		s.users[u.NodeID] = u
	}
	return nil
}

func (s *fakeSink) UpsertRepo(_ context.Context, r model.RawRepo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repos[r.NodeID] = r
	return nil
}

// event returns the latest received snapshot of one platform item.
func (s *fakeSink) event(kind model.Kind, nativeID string) (model.RawEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		found model.RawEvent
		ok    bool
	)
	for _, ev := range s.events {
		if ev.Kind != kind || ev.Payload.NativeID() != nativeID {
			continue
		}
		if !ok || ev.ReceivedAt.After(found.ReceivedAt) {
			found, ok = ev, true
		}
	}
	return found, ok
}

func (s *fakeSink) snapshots(kind model.Kind, nativeID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if ev.Kind == kind && ev.Payload.NativeID() == nativeID {
			n++
		}
	}
	return n
}

func ts(d time.Duration) *time.Time {
	t := t0.Add(d)
	return &t
}

func issue(id int64, n int, user *model.UserRef) model.IssuePayload {
	return model.IssuePayload{ID: id, NodeID: fmt.Sprintf("I_%d", id), Number: n, State: "open", User: user, CreatedAt: ts(0)}
}

func commit(sha string, user *model.UserRef) model.CommitPayload {
	return model.CommitPayload{SHA: sha, Author: user, Commit: &model.GitCommit{Author: &model.GitSignature{Date: ts(time.Hour)}}}
}

func comment(id int64, user *model.UserRef, issueURL, pullURL string) model.CommentPayload {
	return model.CommentPayload{ID: id, User: user, IssueURL: issueURL, PullRequestURL: pullURL, CreatedAt: ts(2 * time.Hour)}
}

func newTestOrchestrator(p Platform, s Sink, opts ...Option) *Orchestrator {
	opts = append([]Option{WithMetadataBatch(2, 0), WithClock(func() time.Time { return t0.Add(24 * time.Hour) })}, opts...)
	return New(p, s, opts...)
}

func TestResolveRepos(t *testing.T) {
	Convey("Given targets whose metadata partly fails", t, func() {
		p := newFakePlatform()
		s := newFakeSink()
		gears := model.RepoKey{Owner: "acme", Name: "gears"}
		gone := model.RepoKey{Owner: "acme", Name: "gone"}
		p.repos[widgets] = &model.RepoPayload{ID: 42, NodeID: "R_w", FullName: "acme/widgets", Private: true}
		p.repoErr[gone] = &ratelimit.Error{Kind: ratelimit.ErrNotFound, Status: 404}
		p.repos[model.RepoKey{Owner: "acme", Name: "degraded"}] = nil
		p.repos[gears] = &model.RepoPayload{ID: 43, NodeID: "R_g", FullName: "acme/gears"}

		since := t0.Add(-48 * time.Hour)
		targets := []discovery.RepoTarget{
			{Repo: widgets, Accounts: []string{"alice", "bob"}, Since: since},
			{Repo: gone, Accounts: []string{"alice"}, Since: since},
			{Repo: model.RepoKey{Owner: "acme", Name: "degraded"}, Since: since},
			{Repo: gears, Accounts: []string{"bob"}, Since: since},
		}

		Convey("When resolved", func() {
			jobs := newTestOrchestrator(p, s).ResolveRepos(context.Background(), targets)

			Convey("Then only the failing repositories are left out", func() {
				So(jobs, ShouldHaveLength, 2)
				So(jobs[0].Repo, ShouldResemble, widgets)
				So(jobs[0].RepoID, ShouldEqual, "42")
				So(jobs[0].Private, ShouldBeTrue)
				So(jobs[0].Accounts, ShouldResemble, []string{"alice", "bob"})
				So(jobs[0].Since, ShouldEqual, since)
				So(jobs[1].Repo, ShouldResemble, gears)
			})

			Convey("Then resolved metadata is stored", func() {
				So(s.repos, ShouldHaveLength, 2)
				So(s.repos["R_w"].RepoID, ShouldEqual, "42")
			})
		})

		Convey("When the context ends between batches", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			jobs := newTestOrchestrator(p, s, WithMetadataBatch(1, time.Hour)).ResolveRepos(ctx, targets)

			Convey("Then only the first batch is resolved", func() {
				So(jobs, ShouldHaveLength, 1)
				So(jobs[0].Repo, ShouldResemble, widgets)
			})
		})
	})
}

func TestIngestRepo(t *testing.T) {
	job := model.RepoJob{RunID: "run-1", Repo: widgets, RepoID: "42", Private: true, Since: t0.Add(-48 * time.Hour)}

	Convey("Given a repository with issues, a pull request, comments and commits", t, func() {
		p := newFakePlatform()
		s := newFakeSink()

		pullEntry := issue(200, 2, bob)
		pullEntry.PullRequest = &model.PullMarker{URL: apiBase + "/pulls/2"}
		p.issues = []model.IssuePayload{issue(100, 1, alice), pullEntry}
		p.pulls[2] = &model.PullPayload{ID: 200, Number: 2, State: "closed", Merged: true, MergedAt: ts(3 * time.Hour), User: bob, CreatedAt: ts(0)}
		p.pullCommits[2] = []model.CommitPayload{commit("aaa", bob), commit("bbb", bob)}

		p.issueByNum[7] = &model.IssuePayload{ID: 700, Number: 7}
		p.issueErr[8] = &ratelimit.Error{Kind: ratelimit.ErrNotFound, Status: 404}
		p.comments = []model.CommentPayload{
			comment(1001, alice, apiBase+"/issues/1", ""),
			comment(1002, bob, apiBase+"/issues/7", ""),
			comment(1003, alice, apiBase+"/issues/8", ""),
			comment(1004, alice, apiBase+"/issues/8", ""),
		}
		p.pulls[9] = &model.PullPayload{ID: 900, Number: 9}
		p.reviews = []model.CommentPayload{
			comment(2001, alice, "", apiBase+"/pulls/2"),
			comment(2002, bob, "", apiBase+"/pulls/9"),
		}
		p.commits = []model.CommitPayload{commit("bbb", bob), commit("ccc", alice), {SHA: ""}}

		out := newTestOrchestrator(p, s).IngestRepo(context.Background(), job)

		Convey("Then every item is written once", func() {
			So(out.Err, ShouldBeNil)
			So(out.Repo, ShouldResemble, widgets)
			So(out.Written, ShouldEqual, 11)
			So(out.Seen, ShouldEqual, 12)
			So(s.events, ShouldHaveLength, 11)
		})

		Convey("Then events carry actor, repository and privacy", func() {
			ev, ok := s.event(model.KindIssue, "100")
			So(ok, ShouldBeTrue)
			So(ev.ActorID, ShouldEqual, "11")
			So(ev.RepoID, ShouldEqual, "42")
			So(*ev.IsPrivate, ShouldBeTrue)
			So(*ev.CreatedAt, ShouldEqual, t0)
		})

		Convey("Then the pull request carries its details and commit list", func() {
			ev, ok := s.event(model.KindPullRequest, "200")
			So(ok, ShouldBeTrue)
			pr := ev.Payload.(*model.PullPayload)
			So(pr.IsMerged(), ShouldBeTrue)
			So(pr.CommitSHAs, ShouldResemble, []string{"aaa", "bbb"})
		})

		Convey("Then pull commits link to the pull request and keep the link", func() {
			for _, sha := range []string{"aaa", "bbb"} {
				ev, _ := s.event(model.KindCommit, sha)
				So(ev.ParentID, ShouldEqual, "200")
				So(*ev.CreatedAt, ShouldEqual, t0.Add(time.Hour))
			}
			ev, _ := s.event(model.KindCommit, "ccc")
			So(ev.ParentID, ShouldBeEmpty)
		})

		Convey("Then comment parents resolve from the listing or a lookup", func() {
			ev, _ := s.event(model.KindIssueComment, "1001")
			So(ev.ParentID, ShouldEqual, "100")
			ev, _ = s.event(model.KindIssueComment, "1002")
			So(ev.ParentID, ShouldEqual, "700")
			ev, _ = s.event(model.KindReviewComment, "2001")
			So(ev.ParentID, ShouldEqual, "200")
			ev, _ = s.event(model.KindReviewComment, "2002")
			So(ev.ParentID, ShouldEqual, "900")
		})

		Convey("Then a failed lookup leaves the parent empty and is not repeated", func() {
			ev, ok := s.event(model.KindIssueComment, "1003")
			So(ok, ShouldBeTrue)
			So(ev.ParentID, ShouldBeEmpty)
			So(p.issueLookups[8], ShouldEqual, 1)
			So(p.issueLookups[1], ShouldEqual, 0)
		})

		Convey("Then actors are recorded as partial users", func() {
			So(s.users, ShouldHaveLength, 2)
			So(s.users["U_alice"].Complete, ShouldBeFalse)
			So(s.users["U_alice"].UserID, ShouldEqual, "11")
		})

		Convey("When the same repository is ingested again", func() {
			again := newTestOrchestrator(p, s).IngestRepo(context.Background(), job)

			Convey("Then nothing new is written", func() {
				So(again.Err, ShouldBeNil)
				So(again.Written, ShouldEqual, 0)
				So(s.events, ShouldHaveLength, 11)
			})
		})
	})

	Convey("Given a pull request ingested while open", t, func() {
		p := newFakePlatform()
		s := newFakeSink()
		entry := issue(400, 4, bob)
		entry.PullRequest = &model.PullMarker{URL: apiBase + "/pulls/4"}
		entry.UpdatedAt = ts(0)
		p.issues = []model.IssuePayload{entry}
		p.pulls[4] = &model.PullPayload{ID: 400, Number: 4, State: "open", User: bob, CreatedAt: ts(0), UpdatedAt: ts(0)}
		p.pullCommits[4] = []model.CommitPayload{commit("ddd", bob)}

		first := newTestOrchestrator(p, s).IngestRepo(context.Background(), job)
		So(first.Written, ShouldEqual, 2)

		Convey("When it is merged and ingested again", func() {
			p.issues[0].UpdatedAt = ts(5 * time.Hour)
			p.pulls[4] = &model.PullPayload{ID: 400, Number: 4, State: "closed", Merged: true, MergedAt: ts(5 * time.Hour), User: bob, CreatedAt: ts(0), UpdatedAt: ts(5 * time.Hour)}
			later := WithClock(func() time.Time { return t0.Add(48 * time.Hour) })
			again := newTestOrchestrator(p, s, later).IngestRepo(context.Background(), job)

			Convey("Then the merged version is stored next to the open one", func() {
				So(again.Err, ShouldBeNil)
				So(again.Written, ShouldEqual, 1)
				So(s.snapshots(model.KindPullRequest, "400"), ShouldEqual, 2)
				ev, _ := s.event(model.KindPullRequest, "400")
				So(ev.Payload.(*model.PullPayload).IsMerged(), ShouldBeTrue)
				So(s.snapshots(model.KindCommit, "ddd"), ShouldEqual, 1)
			})
		})

		Convey("When the unchanged version is fetched again", func() {
			again := newTestOrchestrator(p, s).IngestRepo(context.Background(), job)

			Convey("Then nothing new is written", func() {
				So(again.Written, ShouldEqual, 0)
				So(s.snapshots(model.KindPullRequest, "400"), ShouldEqual, 1)
			})
		})
	})

	Convey("Given a pull request whose details cannot be fetched", t, func() {
		p := newFakePlatform()
		s := newFakeSink()
		entry := issue(300, 3, bob)
		entry.PullRequest = &model.PullMarker{MergedAt: ts(time.Hour)}
		p.issues = []model.IssuePayload{entry}
		p.pullErr[3] = &ratelimit.Error{Kind: ratelimit.ErrServerError, Status: 502}

		out := newTestOrchestrator(p, s).IngestRepo(context.Background(), job)

		Convey("Then the listing entry is stored as the pull request", func() {
			So(out.Err, ShouldBeNil)
			ev, ok := s.event(model.KindPullRequest, "300")
			So(ok, ShouldBeTrue)
			So(ev.Payload.(*model.PullPayload).IsMerged(), ShouldBeTrue)
			_, asIssue := s.event(model.KindIssue, "300")
			So(asIssue, ShouldBeFalse)
		})
	})

	Convey("Given the issue listing fails", t, func() {
		p := newFakePlatform()
		s := newFakeSink()
		p.issuesErr = errors.New("listing down")
		p.issueByNum[1] = &model.IssuePayload{ID: 100, Number: 1}
		p.comments = []model.CommentPayload{comment(1001, alice, apiBase+"/issues/1", "")}
		p.commits = []model.CommitPayload{commit("ccc", alice)}

		out := newTestOrchestrator(p, s).IngestRepo(context.Background(), job)

		Convey("Then the later phases still run", func() {
			So(out.Err, ShouldBeNil)
			So(out.Written, ShouldEqual, 2)
			ev, _ := s.event(model.KindIssueComment, "1001")
			So(ev.ParentID, ShouldEqual, "100")
		})
	})

	Convey("Given the raw store rejects writes", t, func() {
		p := newFakePlatform()
		s := newFakeSink()
		s.fail = errors.New("disk full")
		p.issues = []model.IssuePayload{issue(100, 1, alice)}
		p.commits = []model.CommitPayload{commit("ccc", alice)}

		out := newTestOrchestrator(p, s).IngestRepo(context.Background(), job)

		Convey("Then the outcome reports the failed writes", func() {
			So(errors.Is(out.Err, ErrRawWrite), ShouldBeTrue)
			So(out.Written, ShouldEqual, 0)
			So(out.Seen, ShouldEqual, 2)
		})
	})
}
