package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/okian/ghpulse/internal/domain/model"
)

// InsertEvent writes ev unless its id is already stored. It reports whether a row was inserted.
func (d *DB) InsertEvent(ctx context.Context, ev model.RawEvent) (bool, error) {
	payload, err := model.EncodePayload(ev.Payload)
	if err != nil {
		return false, err
	}
	res, err := d.exec(ctx, `INSERT INTO raw_events
		(id, kind, actor_id, repo_id, parent_id, created_at, received_at, is_private, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		ev.ID, string(ev.Kind), ev.ActorID, ev.RepoID, ev.ParentID,
		formatTimePtr(ev.CreatedAt), formatTime(ev.ReceivedAt), boolPtrToNull(ev.IsPrivate), string(payload))
	if err != nil {
		return false, fmt.Errorf("insert raw event %s: %w", ev.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpsertUser stores u, replacing any previous snapshot.
func (d *DB) UpsertUser(ctx context.Context, u model.RawUser) error {
	payload, err := json.Marshal(u.Payload)
	if err != nil {
		return err
	}
	_, err = d.exec(ctx, `INSERT INTO raw_users (node_id, user_id, login, complete, received_at, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			user_id = excluded.user_id,
			login = excluded.login,
			complete = excluded.complete,
			received_at = excluded.received_at,
			payload = excluded.payload`,
		u.NodeID, u.UserID, u.Login, boolInt(u.Complete), formatTime(u.ReceivedAt), string(payload))
	if err != nil {
		return fmt.Errorf("upsert raw user %s: %w", u.NodeID, err)
	}
	return nil
}

// UpsertUserRef stores a partial reference only when no complete snapshot exists.
func (d *DB) UpsertUserRef(ctx context.Context, u model.RawUser) error {
	payload, err := json.Marshal(u.Payload)
	if err != nil {
		return err
	}
	_, err = d.exec(ctx, `INSERT INTO raw_users (node_id, user_id, login, complete, received_at, payload)
		VALUES (?, ?, ?, 0, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			user_id = excluded.user_id,
			login = excluded.login,
			received_at = excluded.received_at,
			payload = excluded.payload
		WHERE raw_users.complete = 0`,
		u.NodeID, u.UserID, u.Login, formatTime(u.ReceivedAt), string(payload))
	if err != nil {
		return fmt.Errorf("upsert raw user ref %s: %w", u.NodeID, err)
	}
	return nil
}

// UpsertRepo stores r, replacing any previous snapshot.
func (d *DB) UpsertRepo(ctx context.Context, r model.RawRepo) error {
	payload, err := json.Marshal(r.Payload)
	if err != nil {
		return err
	}
	_, err = d.exec(ctx, `INSERT INTO raw_repos (node_id, repo_id, full_name, received_at, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			repo_id = excluded.repo_id,
			full_name = excluded.full_name,
			received_at = excluded.received_at,
			payload = excluded.payload`,
		r.NodeID, r.RepoID, r.FullName, formatTime(r.ReceivedAt), string(payload))
	if err != nil {
		return fmt.Errorf("upsert raw repo %s: %w", r.NodeID, err)
	}
	return nil
}

// LoadEvents reads every stored raw event.
func (d *DB) LoadEvents(ctx context.Context) ([]model.RawEvent, error) {
	rows, err := d.query(ctx, `SELECT id, kind, actor_id, repo_id, parent_id, created_at, received_at, is_private, payload
		FROM raw_events ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RawEvent
	for rows.Next() {
		var (
			ev                  model.RawEvent
			kind, received, raw string
			created             sql.NullString
			private             sql.NullInt64
		)
		if err := rows.Scan(&ev.ID, &kind, &ev.ActorID, &ev.RepoID, &ev.ParentID, &created, &received, &private, &raw); err != nil {
			return nil, err
		}
		ev.Kind = model.Kind(kind)
		if ev.CreatedAt, err = parseTimePtr(created); err != nil {
			return nil, fmt.Errorf("%w: raw event %s created_at: %v", ErrCorruptRow, ev.ID, err)
		}
		if ev.ReceivedAt, err = parseTime(received); err != nil {
			return nil, fmt.Errorf("%w: raw event %s received_at: %v", ErrCorruptRow, ev.ID, err)
		}
		ev.IsPrivate = nullToBoolPtr(private)
		if ev.Payload, err = model.DecodePayload(ev.Kind, []byte(raw)); err != nil {
			return nil, fmt.Errorf("%w: raw event %s: %v", ErrCorruptRow, ev.ID, err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// LoadUsers reads every stored user snapshot.
func (d *DB) LoadUsers(ctx context.Context) ([]model.RawUser, error) {
	rows, err := d.query(ctx, `SELECT node_id, user_id, login, complete, received_at, payload FROM raw_users ORDER BY node_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RawUser
	for rows.Next() {
		var (
			u             model.RawUser
			complete      int
			received, raw string
		)
		if err := rows.Scan(&u.NodeID, &u.UserID, &u.Login, &complete, &received, &raw); err != nil {
			return nil, err
		}
		u.Complete = complete != 0
		if u.ReceivedAt, err = parseTime(received); err != nil {
			return nil, fmt.Errorf("%w: raw user %s: %v", ErrCorruptRow, u.NodeID, err)
		}
		if err := json.Unmarshal([]byte(raw), &u.Payload); err != nil {
			return nil, fmt.Errorf("%w: raw user %s: %v", ErrCorruptRow, u.NodeID, err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// LoadRepos reads every stored repository snapshot.
func (d *DB) LoadRepos(ctx context.Context) ([]model.RawRepo, error) {
	rows, err := d.query(ctx, `SELECT node_id, repo_id, full_name, received_at, payload FROM raw_repos ORDER BY node_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RawRepo
	for rows.Next() {
		var (
			r             model.RawRepo
			received, raw string
		)
		if err := rows.Scan(&r.NodeID, &r.RepoID, &r.FullName, &received, &raw); err != nil {
			return nil, err
		}
		if r.ReceivedAt, err = parseTime(received); err != nil {
			return nil, fmt.Errorf("%w: raw repo %s: %v", ErrCorruptRow, r.NodeID, err)
		}
		if err := json.Unmarshal([]byte(raw), &r.Payload); err != nil {
			return nil, fmt.Errorf("%w: raw repo %s: %v", ErrCorruptRow, r.NodeID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteAccountData removes every raw and curated row tied to one account
// in a single transaction. The tracked row is matched by login as well, since
// it may have been recorded before the account id was resolved.
func (d *DB) DeleteAccountData(ctx context.Context, userID, nodeID, login string) error {
	stmts := []struct {
		query string
		args  []any
	}{
		{`DELETE FROM raw_events WHERE actor_id = ?`, []any{userID}},
		{`DELETE FROM raw_users WHERE node_id = ? OR user_id = ?`, []any{nodeID, userID}},
		{`DELETE FROM profiles WHERE user_id = ?`, []any{userID}},
		{`DELETE FROM activity_counters WHERE user_id = ?`, []any{userID}},
		{`DELETE FROM tracked_accounts WHERE login = ? OR (user_id <> '' AND user_id = ?)`, []any{strings.ToLower(login), userID}},
	}
	return d.inTx(ctx, func(tx *sql.Tx) error {
		for _, s := range stmts {
			if _, err := tx.ExecContext(ctx, d.rebind(s.query), s.args...); err != nil {
				return fmt.Errorf("delete account %s: %w", userID, err)
			}
		}
		return nil
	})
}
