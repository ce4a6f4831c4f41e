// Package repository holds the raw event store: every write goes to a durable
// backend and to an in-process mirror that the normalization pass reads.
package repository

import (
	"context"

	"github.com/okian/ghpulse/internal/domain/model"
)

// Backend is the durable side of the raw store.
type Backend interface {
	// InsertEvent writes ev unless its id exists and reports whether it did.
	InsertEvent(ctx context.Context, ev model.RawEvent) (bool, error)
	UpsertUser(ctx context.Context, u model.RawUser) error
	// UpsertUserRef writes u unless a complete snapshot of the same node exists.
	UpsertUserRef(ctx context.Context, u model.RawUser) error
	UpsertRepo(ctx context.Context, r model.RawRepo) error

	LoadEvents(ctx context.Context) ([]model.RawEvent, error)
	LoadUsers(ctx context.Context) ([]model.RawUser, error)
	LoadRepos(ctx context.Context) ([]model.RawRepo, error)

	// DeleteAccountData removes raw and curated rows of one account.
	DeleteAccountData(ctx context.Context, userID, nodeID, login string) error
}

// Store provides read/write access to raw records.
type Store interface {
	// UpsertEvent writes ev once. Re-writing an id is a no-op that returns false.
	UpsertEvent(ctx context.Context, ev model.RawEvent) (bool, error)
	// UpsertUser writes a user snapshot; the latest write wins.
	UpsertUser(ctx context.Context, u model.RawUser) error
	// UpsertUserRef writes a partial user reference without replacing a complete snapshot.
	UpsertUserRef(ctx context.Context, u model.RawUser) error
	// UpsertRepo writes a repository snapshot; the latest write wins.
	UpsertRepo(ctx context.Context, r model.RawRepo) error

	// Events returns a snapshot of stored events of the given kinds, or all when none are given.
	Events(kinds ...model.Kind) []model.RawEvent
	Users() []model.RawUser
	Repos() []model.RawRepo
	// UserByLogin finds a stored user by login, case-insensitively.
	UserByLogin(login string) (model.RawUser, bool)

	// RemoveAccountData deletes an account and every event it authored.
	RemoveAccountData(ctx context.Context, u model.RawUser) (int, error)

	Stats() Stats
}

// Stats describes the mirror contents.
type Stats struct {
	Events       int            `json:"events"`
	Users        int            `json:"users"`
	Repos        int            `json:"repos"`
	EventsByKind map[string]int `json:"eventsByKind"`
	Seen         int64          `json:"dedupeSize"`
}
