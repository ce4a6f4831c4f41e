package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/okian/ghpulse/internal/domain/canonical"
)

// SaveCurated writes profiles, repository summaries and activity counters in
// one transaction. Every row is replaced on conflict, so saving the same rows
// twice leaves the store unchanged.
func (d *DB) SaveCurated(ctx context.Context, c canonical.Curated) error {
	return d.inTx(ctx, func(tx *sql.Tx) error {
		for _, p := range c.Profiles {
			if _, err := tx.ExecContext(ctx, d.rebind(`INSERT INTO profiles
				(user_id, login, name, avatar_url, company, location, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(user_id) DO UPDATE SET
					login = excluded.login,
					name = excluded.name,
					avatar_url = excluded.avatar_url,
					company = excluded.company,
					location = excluded.location,
					updated_at = excluded.updated_at`),
				p.UserID, strings.ToLower(p.Login), nullString(p.Name), p.AvatarURL,
				nullString(p.Company), nullString(p.Location), formatTimePtr(p.UpdatedAt)); err != nil {
				return fmt.Errorf("upsert profile %s: %w", p.UserID, err)
			}
		}
		for _, r := range c.Repos {
			if _, err := tx.ExecContext(ctx, d.rebind(`INSERT INTO repositories
				(repo_id, full_name, owner, private, language, stars, forks, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(repo_id) DO UPDATE SET
					full_name = excluded.full_name,
					owner = excluded.owner,
					private = excluded.private,
					language = excluded.language,
					stars = excluded.stars,
					forks = excluded.forks,
					updated_at = excluded.updated_at`),
				r.RepoID, r.FullName, r.Owner, boolInt(r.Private), nullString(r.Language),
				r.Stars, r.Forks, formatTimePtr(r.UpdatedAt)); err != nil {
				return fmt.Errorf("upsert repository %s: %w", r.RepoID, err)
			}
		}
		for _, a := range c.Activities {
			if _, err := tx.ExecContext(ctx, d.rebind(`INSERT INTO activity_counters
				(user_id, day, repo_id, activity_type, count)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(user_id, day, repo_id, activity_type) DO UPDATE SET
					count = excluded.count`),
				a.UserID, a.Day, a.RepoID, string(a.ActivityType), a.Count); err != nil {
				return fmt.Errorf("upsert activity %s: %w", a.Key(), err)
			}
		}
		return nil
	})
}

// Activities returns the stored counters of one user ordered by day, repo and type.
func (d *DB) Activities(ctx context.Context, userID string) ([]canonical.ActivityCounter, error) {
	rows, err := d.query(ctx, `SELECT user_id, day, repo_id, activity_type, count
		FROM activity_counters WHERE user_id = ?
		ORDER BY day, repo_id, activity_type`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []canonical.ActivityCounter{}
	for rows.Next() {
		var (
			a   canonical.ActivityCounter
			typ string
		)
		if err := rows.Scan(&a.UserID, &a.Day, &a.RepoID, &typ, &a.Count); err != nil {
			return nil, err
		}
		a.ActivityType = canonical.ActivityType(typ)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Profile returns the curated profile of a login, or nil when absent.
func (d *DB) Profile(ctx context.Context, login string) (*canonical.Profile, error) {
	rows, err := d.query(ctx, `SELECT user_id, login, name, avatar_url, company, location, updated_at
		FROM profiles WHERE login = ?`, strings.ToLower(login))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	var (
		p                       canonical.Profile
		name, company, location sql.NullString
		updated                 sql.NullString
	)
	if err := rows.Scan(&p.UserID, &p.Login, &name, &p.AvatarURL, &company, &location, &updated); err != nil {
		return nil, err
	}
	p.Name, p.Company, p.Location = stringPtr(name), stringPtr(company), stringPtr(location)
	if p.UpdatedAt, err = parseTimePtr(updated); err != nil {
		return nil, fmt.Errorf("%w: profile %s: %v", ErrCorruptRow, p.UserID, err)
	}
	return &p, nil
}

// KnownAccounts reports which logins completed a run before. Curated
// profiles do not count: every actor in a bundle gets one.
func (d *DB) KnownAccounts(ctx context.Context, logins []string) (map[string]bool, error) {
	known := make(map[string]bool, len(logins))
	if len(logins) == 0 {
		return known, nil
	}
	args := make([]any, len(logins))
	for i, l := range logins {
		args[i] = strings.ToLower(l)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(logins)), ", ")
	rows, err := d.query(ctx, `SELECT login FROM tracked_accounts WHERE login IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var login string
		if err := rows.Scan(&login); err != nil {
			return nil, err
		}
		known[login] = true
	}
	return known, rows.Err()
}

// TrackedAccount is one account that finished a pipeline run.
type TrackedAccount struct {
	Login         string
	UserID        string
	FirstSyncedAt time.Time
	LastSyncedAt  time.Time
}

// MarkTracked records that logins completed a run at t. userIDs may be
// missing entries for accounts without a resolved id.
func (d *DB) MarkTracked(ctx context.Context, logins []string, userIDs map[string]string, t time.Time) error {
	return d.inTx(ctx, func(tx *sql.Tx) error {
		for _, login := range logins {
			login = strings.ToLower(login)
			if _, err := tx.ExecContext(ctx, d.rebind(`INSERT INTO tracked_accounts
				(login, user_id, first_synced_at, last_synced_at)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(login) DO UPDATE SET
					user_id = CASE WHEN excluded.user_id <> '' THEN excluded.user_id ELSE tracked_accounts.user_id END,
					last_synced_at = excluded.last_synced_at`),
				login, userIDs[login], formatTime(t), formatTime(t)); err != nil {
				return fmt.Errorf("mark tracked %s: %w", login, err)
			}
		}
		return nil
	})
}

// TrackedAccounts lists tracked accounts ordered by login.
func (d *DB) TrackedAccounts(ctx context.Context) ([]TrackedAccount, error) {
	rows, err := d.query(ctx, `SELECT login, user_id, first_synced_at, last_synced_at FROM tracked_accounts ORDER BY login`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TrackedAccount
	for rows.Next() {
		var (
			a           TrackedAccount
			first, last string
		)
		if err := rows.Scan(&a.Login, &a.UserID, &first, &last); err != nil {
			return nil, err
		}
		if a.FirstSyncedAt, err = parseTime(first); err != nil {
			return nil, fmt.Errorf("%w: tracked account %s: %v", ErrCorruptRow, a.Login, err)
		}
		if a.LastSyncedAt, err = parseTime(last); err != nil {
			return nil, fmt.Errorf("%w: tracked account %s: %v", ErrCorruptRow, a.Login, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
