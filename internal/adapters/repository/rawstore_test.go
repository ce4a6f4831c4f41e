package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/ghpulse/internal/domain/model"
	"github.com/okian/ghpulse/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// memBackend is an in-memory Backend with injectable failures.
type memBackend struct {
	mu      sync.Mutex
	events  map[string]model.RawEvent
	users   map[string]model.RawUser
	repos   map[string]model.RawRepo
	failAll error
	deleted []string
}

func newMemBackend() *memBackend {
	return &memBackend{
		events: make(map[string]model.RawEvent),
		users:  make(map[string]model.RawUser),
		repos:  make(map[string]model.RawRepo),
	}
}

func (b *memBackend) InsertEvent(_ context.Context, ev model.RawEvent) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failAll != nil {
		return false, b.failAll
	}
	if _, ok := b.events[ev.ID]; ok {
		return false, nil
	}
	b.events[ev.ID] = ev
	return true, nil
}

func (b *memBackend) UpsertUser(_ context.Context, u model.RawUser) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failAll != nil {
		return b.failAll
	}
	b.users[u.NodeID] = u
	return nil
}

func (b *memBackend) UpsertUserRef(_ context.Context, u model.RawUser) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failAll != nil {
		return b.failAll
	}
	if cur, ok := b.users[u.NodeID]; !ok || !cur.Complete {
		b.users[u.NodeID] = u
	}
	return nil
}

func (b *memBackend) UpsertRepo(_ context.Context, r model.RawRepo) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failAll != nil {
		return b.failAll
	}
	b.repos[r.NodeID] = r
	return nil
}

func (b *memBackend) LoadEvents(context.Context) ([]model.RawEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.RawEvent, 0, len(b.events))
	for _, ev := range b.events {
		out = append(out, ev)
	}
	return out, b.failAll
}

func (b *memBackend) LoadUsers(context.Context) ([]model.RawUser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.RawUser, 0, len(b.users))
	for _, u := range b.users {
		out = append(out, u)
	}
	return out, nil
}

func (b *memBackend) LoadRepos(context.Context) ([]model.RawRepo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.RawRepo, 0, len(b.repos))
	for _, r := range b.repos {
		out = append(out, r)
	}
	return out, nil
}

func (b *memBackend) DeleteAccountData(_ context.Context, userID, _, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failAll != nil {
		return b.failAll
	}
	b.deleted = append(b.deleted, userID)
	for id, ev := range b.events {
		if ev.ActorID == userID {
			delete(b.events, id)
		}
	}
	return nil
}

func (b *memBackend) setFail(err error) {
	b.mu.Lock()
	b.failAll = err
	b.mu.Unlock()
}

func commitEvent(t *testing.T, sha, actor string) model.RawEvent {
	t.Helper()
	ev, err := model.NewRawEvent(model.KindCommit, &model.CommitPayload{SHA: sha}, time.Now())
	if err != nil {
		t.Fatalf("new raw event: %v", err)
	}
	ev.ActorID = actor
	return ev
}

func newTestStore(t *testing.T, b Backend) *RawStore {
	t.Helper()
	s := NewRawStore(context.Background(), b, WithMetricsUpdateInterval(time.Hour))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRawStore_UpsertEventIsIdempotent(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	s := newTestStore(t, b)
	ev := commitEvent(t, "abc", "5")

	inserted, err := s.UpsertEvent(ctx, ev)
	if err != nil || !inserted {
		t.Fatalf("first write: inserted=%v err=%v", inserted, err)
	}
	for i := 0; i < 3; i++ {
		inserted, err = s.UpsertEvent(ctx, ev)
		if err != nil {
			t.Fatalf("rewrite %d: %v", i, err)
		}
		if inserted {
			t.Errorf("rewrite %d reported an insert", i)
		}
	}

	if got := len(s.Events()); got != 1 {
		t.Errorf("expected 1 mirrored event, got %d", got)
	}
	if got := len(b.events); got != 1 {
		t.Errorf("expected 1 durable event, got %d", got)
	}
}

func TestRawStore_EvictedIDFallsBackToDurableCheck(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	s := newTestStore(t, b)
	ev := commitEvent(t, "abc", "5")

	if _, err := s.UpsertEvent(ctx, ev); err != nil {
		t.Fatal(err)
	}
	// simulate eviction from the seen set
	s.dedupe.Unrecord(ctx, ev.ID)

	inserted, err := s.UpsertEvent(ctx, ev)
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Error("expected the durable conflict to report no insert")
	}
	if got := len(s.Events()); got != 1 {
		t.Errorf("expected 1 mirrored event, got %d", got)
	}
}

func TestRawStore_DurableFailureLeavesMirrorUntouched(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	s := newTestStore(t, b)
	ev := commitEvent(t, "abc", "5")

	boom := errors.New("disk full")
	b.setFail(boom)
	inserted, err := s.UpsertEvent(ctx, ev)
	if !errors.Is(err, ErrDurableWrite) || !errors.Is(err, boom) {
		t.Fatalf("expected wrapped durable error, got %v", err)
	}
	if inserted {
		t.Error("failed write reported an insert")
	}
	if got := len(s.Events()); got != 0 {
		t.Errorf("mirror should be empty after a failed write, got %d", got)
	}

	b.setFail(nil)
	inserted, err = s.UpsertEvent(ctx, ev)
	if err != nil || !inserted {
		t.Fatalf("retry after failure: inserted=%v err=%v", inserted, err)
	}
	if len(s.Events()) != 1 || len(b.events) != 1 {
		t.Errorf("expected both sides to hold the event, mirror=%d durable=%d", len(s.Events()), len(b.events))
	}
}

// gatedBackend holds the first event insert until release delivers its result.
type gatedBackend struct {
	*memBackend
	entered chan struct{}
	release chan error
	calls   atomic.Int32
}

func (g *gatedBackend) InsertEvent(ctx context.Context, ev model.RawEvent) (bool, error) {
	if g.calls.Add(1) == 1 {
		close(g.entered)
		if err := <-g.release; err != nil {
			return false, err
		}
	}
	return g.memBackend.InsertEvent(ctx, ev)
}

type upsertResult struct {
	inserted bool
	err      error
}

func TestRawStore_RacingWriterWaitsForInFlightWrite(t *testing.T) {
	for _, tc := range []struct {
		name        string
		firstErr    error
		wantFirst   bool
		wantSecond  bool
		wantInserts int32
	}{
		{name: "first write fails", firstErr: errors.New("disk full"), wantFirst: false, wantSecond: true, wantInserts: 2},
		{name: "first write succeeds", firstErr: nil, wantFirst: true, wantSecond: false, wantInserts: 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			b := &gatedBackend{memBackend: newMemBackend(), entered: make(chan struct{}), release: make(chan error, 1)}
			s := newTestStore(t, b)
			ev := commitEvent(t, "abc", "5")

			first := make(chan upsertResult, 1)
			go func() {
				ok, err := s.UpsertEvent(ctx, ev)
				first <- upsertResult{ok, err}
			}()
			<-b.entered

			second := make(chan upsertResult, 1)
			go func() {
				ok, err := s.UpsertEvent(ctx, ev)
				second <- upsertResult{ok, err}
			}()
			time.Sleep(50 * time.Millisecond)
			b.release <- tc.firstErr

			r1, r2 := <-first, <-second
			if r1.inserted != tc.wantFirst || (tc.firstErr != nil) != (r1.err != nil) {
				t.Errorf("first writer: inserted=%v err=%v", r1.inserted, r1.err)
			}
			if r2.err != nil || r2.inserted != tc.wantSecond {
				t.Errorf("second writer: inserted=%v err=%v, want inserted=%v", r2.inserted, r2.err, tc.wantSecond)
			}
			if got := b.calls.Load(); got != tc.wantInserts {
				t.Errorf("expected %d durable inserts, got %d", tc.wantInserts, got)
			}
			if len(s.Events()) != 1 || len(b.events) != 1 {
				t.Errorf("expected the event on both sides, mirror=%d durable=%d", len(s.Events()), len(b.events))
			}
		})
	}
}

func TestRawStore_RejectsEventWithoutID(t *testing.T) {
	s := newTestStore(t, newMemBackend())
	if _, err := s.UpsertEvent(context.Background(), model.RawEvent{}); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("expected ErrInvalidEvent, got %v", err)
	}
}

func TestRawStore_Users(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newMemBackend())
	now := time.Now()

	name := "Octo Cat"
	full, _ := model.UserFromPayload(&model.UserPayload{ID: 5, NodeID: "U_5", Login: "Octo", Name: &name}, now)
	if err := s.UpsertUser(ctx, full); err != nil {
		t.Fatal(err)
	}
	ref, _ := model.UserFromRef(&model.UserRef{ID: 5, NodeID: "U_5", Login: "octo"}, now.Add(time.Minute))
	if err := s.UpsertUserRef(ctx, ref); err != nil {
		t.Fatal(err)
	}

	u, ok := s.UserByLogin("OCTO")
	if !ok {
		t.Fatal("expected user by login")
	}
	if !u.Complete || u.Payload.Name == nil || *u.Payload.Name != name {
		t.Errorf("partial reference replaced a complete snapshot: %+v", u)
	}

	other, _ := model.UserFromRef(&model.UserRef{ID: 6, NodeID: "U_6", Login: "hubot"}, now)
	if err := s.UpsertUserRef(ctx, other); err != nil {
		t.Fatal(err)
	}
	if got := len(s.Users()); got != 2 {
		t.Errorf("expected 2 users, got %d", got)
	}
	if _, ok := s.UserByLogin("nobody"); ok {
		t.Error("unexpected match for unknown login")
	}
}

func TestRawStore_RemoveAccountData(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	s := newTestStore(t, b)

	u, _ := model.UserFromRef(&model.UserRef{ID: 5, NodeID: "U_5", Login: "octo"}, time.Now())
	if err := s.UpsertUserRef(ctx, u); err != nil {
		t.Fatal(err)
	}
	mine := commitEvent(t, "a1", "5")
	for _, ev := range []model.RawEvent{mine, commitEvent(t, "a2", "5"), commitEvent(t, "b1", "6")} {
		if _, err := s.UpsertEvent(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := s.RemoveAccountData(ctx, u)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Errorf("expected 2 removed events, got %d", removed)
	}
	if got := len(s.Events()); got != 1 {
		t.Errorf("expected 1 remaining event, got %d", got)
	}
	if _, ok := s.UserByLogin("octo"); ok {
		t.Error("user still present after removal")
	}

	// a removed id can be ingested again
	inserted, err := s.UpsertEvent(ctx, mine)
	if err != nil || !inserted {
		t.Errorf("re-ingest after removal: inserted=%v err=%v", inserted, err)
	}

	b.setFail(errors.New("locked"))
	if _, err := s.RemoveAccountData(ctx, u); !errors.Is(err, ErrDurableWrite) {
		t.Errorf("expected ErrDurableWrite, got %v", err)
	}
}

func TestRawStore_Hydrate(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	ev := commitEvent(t, "abc", "5")
	b.events[ev.ID] = ev
	repo, _ := model.RepoFromPayload(&model.RepoPayload{ID: 7, NodeID: "R_7", FullName: "acme/widgets"}, time.Now())
	b.repos[repo.NodeID] = repo

	s := newTestStore(t, b)
	if err := s.Hydrate(ctx); err != nil {
		t.Fatal(err)
	}

	st := s.Stats()
	if st.Events != 1 || st.Repos != 1 || st.EventsByKind["commit"] != 1 || st.Seen != 1 {
		t.Errorf("unexpected stats after hydrate: %+v", st)
	}
	inserted, err := s.UpsertEvent(ctx, ev)
	if err != nil || inserted {
		t.Errorf("hydrated id should be a duplicate: inserted=%v err=%v", inserted, err)
	}

	b.setFail(errors.New("unreachable"))
	if err := newTestStore(t, b).Hydrate(ctx); !errors.Is(err, ErrHydrate) {
		t.Errorf("expected ErrHydrate, got %v", err)
	}
}

func TestRawStore_EventsFilterAndOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newMemBackend())

	for i := 0; i < 5; i++ {
		if _, err := s.UpsertEvent(ctx, commitEvent(t, fmt.Sprintf("sha%d", i), "1")); err != nil {
			t.Fatal(err)
		}
	}
	issue, err := model.NewRawEvent(model.KindIssue, &model.IssuePayload{ID: 1}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.UpsertEvent(ctx, issue); err != nil {
		t.Fatal(err)
	}

	commits := s.Events(model.KindCommit)
	if len(commits) != 5 {
		t.Fatalf("expected 5 commits, got %d", len(commits))
	}
	for i := 1; i < len(commits); i++ {
		if commits[i-1].ID >= commits[i].ID {
			t.Errorf("events not ordered by id at %d", i)
		}
	}
	if got := len(s.Events()); got != 6 {
		t.Errorf("expected 6 events, got %d", got)
	}
}

func TestRawStore_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	s := newTestStore(t, b)

	events := make([]model.RawEvent, 50)
	for i := range events {
		events[i] = commitEvent(t, fmt.Sprintf("sha%d", i), "1")
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	inserts := 0
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, ev := range events {
				ok, err := s.UpsertEvent(ctx, ev)
				if err != nil {
					t.Errorf("upsert: %v", err)
					return
				}
				if ok {
					mu.Lock()
					inserts++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	if inserts != 50 {
		t.Errorf("expected 50 inserts across writers, got %d", inserts)
	}
	if got := len(s.Events()); got != 50 {
		t.Errorf("expected 50 mirrored events, got %d", got)
	}
}
