package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/okian/ghpulse/internal/domain/dedupe"
	"github.com/okian/ghpulse/internal/domain/model"
	"github.com/okian/ghpulse/pkg/logger"
	"github.com/okian/ghpulse/pkg/metrics"
)

// RawStore implements Store on a durable Backend plus an in-process mirror.
// A write returns only after both sides reflect it. Repo workers write
// concurrently, so the mirror is guarded by mu.
type RawStore struct {
	backend Backend
	dedupe  dedupe.Deduper
	log     logger.Logger

	mu     sync.RWMutex
	events map[string]model.RawEvent
	users  map[string]model.RawUser // by node id
	repos  map[string]model.RawRepo // by node id

	// inflight holds event writes whose durable insert has not returned yet.
	flightMu sync.Mutex
	inflight map[string]*pendingWrite

	metricsUpdateInterval time.Duration
	stopChan              chan struct{}
	stopOnce              sync.Once
	wg                    sync.WaitGroup
}

var _ Store = (*RawStore)(nil)

// pendingWrite is one durable insert in progress. err is set before done closes.
type pendingWrite struct {
	done chan struct{}
	err  error
}

// NewRawStore constructs a store over backend. The background metrics
// updater stops when ctx is done or Close is called.
func NewRawStore(ctx context.Context, backend Backend, opts ...Option) *RawStore {
	s := &RawStore{
		backend:               backend,
		events:                make(map[string]model.RawEvent),
		users:                 make(map[string]model.RawUser),
		repos:                 make(map[string]model.RawRepo),
		inflight:              make(map[string]*pendingWrite),
		metricsUpdateInterval: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dedupe == nil {
		s.dedupe = dedupe.NewInMemoryDeduper()
	}
	if s.log == nil {
		s.log = logger.Get().Named("rawstore")
	}

	s.stopChan = make(chan struct{})
	s.startMetricsUpdater(ctx)
	return s
}

// Close stops the metrics updater.
func (s *RawStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

// Hydrate loads the durable contents into the mirror and the seen-id set.
// It runs once at startup, before any writer.
func (s *RawStore) Hydrate(ctx context.Context) error {
	events, err := s.backend.LoadEvents(ctx)
	if err != nil {
		return fmt.Errorf("%w: events: %w", ErrHydrate, err)
	}
	users, err := s.backend.LoadUsers(ctx)
	if err != nil {
		return fmt.Errorf("%w: users: %w", ErrHydrate, err)
	}
	repos, err := s.backend.LoadRepos(ctx)
	if err != nil {
		return fmt.Errorf("%w: repos: %w", ErrHydrate, err)
	}

	s.mu.Lock()
	for _, ev := range events {
		s.events[ev.ID] = ev
		s.dedupe.SeenAndRecord(ctx, ev.ID)
	}
	for _, u := range users {
		s.users[u.NodeID] = u
	}
	for _, r := range repos {
		s.repos[r.NodeID] = r
	}
	s.mu.Unlock()

	s.log.Info(ctx, "raw store hydrated",
		logger.Int("events", len(events)), logger.Int("users", len(users)), logger.Int("repos", len(repos)))
	s.updateMetrics()
	return nil
}

// UpsertEvent implements Store.UpsertEvent. A writer racing another write of
// the same id waits for it; if that write fails, the waiter writes itself.
func (s *RawStore) UpsertEvent(ctx context.Context, ev model.RawEvent) (bool, error) {
	if ev.ID == "" {
		return false, ErrInvalidEvent
	}
	kind := string(ev.Kind)

	var pw *pendingWrite
	for pw == nil {
		s.flightMu.Lock()
		if other, ok := s.inflight[ev.ID]; ok {
			s.flightMu.Unlock()
			select {
			case <-other.done:
			case <-ctx.Done():
				return false, ctx.Err()
			}
			if other.err != nil {
				continue
			}
			metrics.RecordRawWrite(kind, metrics.ResultDuplicate)
			return false, nil
		}
		if s.dedupe.SeenAndRecord(ctx, ev.ID) {
			s.flightMu.Unlock()
			metrics.RecordRawWrite(kind, metrics.ResultDuplicate)
			return false, nil
		}
		pw = &pendingWrite{done: make(chan struct{})}
		s.inflight[ev.ID] = pw
		s.flightMu.Unlock()
	}

	durable, err := s.backend.InsertEvent(ctx, ev)
	if err != nil {
		s.dedupe.Unrecord(ctx, ev.ID)
		s.settle(ev.ID, pw, err)
		metrics.RecordRawWrite(kind, metrics.ResultFailed)
		return false, fmt.Errorf("%w: %w", ErrDurableWrite, err)
	}

	s.mu.Lock()
	_, exists := s.events[ev.ID]
	if !exists {
		s.events[ev.ID] = ev
	}
	s.mu.Unlock()
	s.settle(ev.ID, pw, nil)

	if durable || !exists {
		metrics.RecordRawWrite(kind, metrics.ResultInserted)
		return true, nil
	}
	metrics.RecordRawWrite(kind, metrics.ResultDuplicate)
	return false, nil
}

// settle releases writers waiting on pw.
func (s *RawStore) settle(id string, pw *pendingWrite, err error) {
	s.flightMu.Lock()
	delete(s.inflight, id)
	pw.err = err
	s.flightMu.Unlock()
	close(pw.done)
}

// UpsertUser implements Store.UpsertUser.
func (s *RawStore) UpsertUser(ctx context.Context, u model.RawUser) error {
	if err := s.backend.UpsertUser(ctx, u); err != nil {
		return fmt.Errorf("%w: %w", ErrDurableWrite, err)
	}
	s.mu.Lock()
	s.users[u.NodeID] = u
	s.mu.Unlock()
	return nil
}

// UpsertUserRef implements Store.UpsertUserRef.
func (s *RawStore) UpsertUserRef(ctx context.Context, u model.RawUser) error {
	u.Complete = false
	if err := s.backend.UpsertUserRef(ctx, u); err != nil {
		return fmt.Errorf("%w: %w", ErrDurableWrite, err)
	}
	s.mu.Lock()
	if cur, ok := s.users[u.NodeID]; !ok || !cur.Complete {
		s.users[u.NodeID] = u
	}
	s.mu.Unlock()
	return nil
}

// UpsertRepo implements Store.UpsertRepo.
func (s *RawStore) UpsertRepo(ctx context.Context, r model.RawRepo) error {
	if err := s.backend.UpsertRepo(ctx, r); err != nil {
		return fmt.Errorf("%w: %w", ErrDurableWrite, err)
	}
	s.mu.Lock()
	s.repos[r.NodeID] = r
	s.mu.Unlock()
	return nil
}

// Events implements Store.Events. The result is ordered by id.
func (s *RawStore) Events(kinds ...model.Kind) []model.RawEvent {
	want := make(map[model.Kind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}

	s.mu.RLock()
	out := make([]model.RawEvent, 0, len(s.events))
	for _, ev := range s.events {
		if len(want) == 0 || want[ev.Kind] {
			out = append(out, ev)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Users implements Store.Users. The result is ordered by node id.
func (s *RawStore) Users() []model.RawUser {
	s.mu.RLock()
	out := make([]model.RawUser, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}

// Repos implements Store.Repos. The result is ordered by node id.
func (s *RawStore) Repos() []model.RawRepo {
	s.mu.RLock()
	out := make([]model.RawRepo, 0, len(s.repos))
	for _, r := range s.repos {
		out = append(out, r)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}

// UserByLogin implements Store.UserByLogin. A complete snapshot is preferred
// over a partial reference when a login maps to both.
func (s *RawStore) UserByLogin(login string) (model.RawUser, bool) {
	login = strings.ToLower(strings.TrimSpace(login))
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		found model.RawUser
		ok    bool
	)
	for _, u := range s.users {
		if strings.ToLower(u.Login) != login {
			continue
		}
		if !ok || (u.Complete && !found.Complete) {
			found, ok = u, true
		}
	}
	return found, ok
}

// RemoveAccountData implements Store.RemoveAccountData. It returns the number
// of events removed from the mirror.
func (s *RawStore) RemoveAccountData(ctx context.Context, u model.RawUser) (int, error) {
	if err := s.backend.DeleteAccountData(ctx, u.UserID, u.NodeID, u.Login); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDurableWrite, err)
	}

	s.mu.Lock()
	removed := 0
	for id, ev := range s.events {
		if u.UserID != "" && ev.ActorID == u.UserID {
			delete(s.events, id)
			s.dedupe.Unrecord(ctx, id)
			removed++
		}
	}
	for node, cur := range s.users {
		if node == u.NodeID || (u.UserID != "" && cur.UserID == u.UserID) {
			delete(s.users, node)
		}
	}
	s.mu.Unlock()

	s.log.Info(ctx, "account data removed",
		logger.String("login", u.Login), logger.String("user_id", u.UserID), logger.Int("events", removed))
	return removed, nil
}

// Stats implements Store.Stats.
func (s *RawStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byKind := make(map[string]int, len(model.Kinds))
	for _, ev := range s.events {
		byKind[string(ev.Kind)]++
	}
	return Stats{
		Events:       len(s.events),
		Users:        len(s.users),
		Repos:        len(s.repos),
		EventsByKind: byKind,
		Seen:         s.dedupe.Size(),
	}
}

// startMetricsUpdater publishes mirror sizes until ctx is done or Close is called.
func (s *RawStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.updateMetrics()
			}
		}
	}()
}

func (s *RawStore) updateMetrics() {
	s.mu.RLock()
	events, users, repos := len(s.events), len(s.users), len(s.repos)
	s.mu.RUnlock()

	metrics.UpdateRawRecords("events", events)
	metrics.UpdateRawRecords("users", users)
	metrics.UpdateRawRecords("repos", repos)
}
