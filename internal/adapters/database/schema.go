package database

// schema is portable between SQLite and PostgreSQL. Timestamps are RFC 3339
// text in UTC and booleans are integers.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS raw_events (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	actor_id TEXT NOT NULL DEFAULT '',
	repo_id TEXT NOT NULL DEFAULT '',
	parent_id TEXT NOT NULL DEFAULT '',
	created_at TEXT,
	received_at TEXT NOT NULL,
	is_private INTEGER,
	payload TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_raw_events_actor ON raw_events(actor_id)`,
	`CREATE INDEX IF NOT EXISTS idx_raw_events_kind_created ON raw_events(kind, created_at)`,

	`CREATE TABLE IF NOT EXISTS raw_users (
	node_id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	login TEXT NOT NULL,
	complete INTEGER NOT NULL DEFAULT 0,
	received_at TEXT NOT NULL,
	payload TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_raw_users_login ON raw_users(login)`,

	`CREATE TABLE IF NOT EXISTS raw_repos (
	node_id TEXT PRIMARY KEY,
	repo_id TEXT NOT NULL,
	full_name TEXT NOT NULL,
	received_at TEXT NOT NULL,
	payload TEXT NOT NULL
)`,

	`CREATE TABLE IF NOT EXISTS profiles (
	user_id TEXT PRIMARY KEY,
	login TEXT NOT NULL,
	name TEXT,
	avatar_url TEXT NOT NULL DEFAULT '',
	company TEXT,
	location TEXT,
	updated_at TEXT
)`,
	`CREATE INDEX IF NOT EXISTS idx_profiles_login ON profiles(login)`,

	`CREATE TABLE IF NOT EXISTS repositories (
	repo_id TEXT PRIMARY KEY,
	full_name TEXT NOT NULL,
	owner TEXT NOT NULL,
	private INTEGER NOT NULL DEFAULT 0,
	language TEXT,
	stars INTEGER NOT NULL DEFAULT 0,
	forks INTEGER NOT NULL DEFAULT 0,
	updated_at TEXT
)`,

	`CREATE TABLE IF NOT EXISTS activity_counters (
	user_id TEXT NOT NULL,
	day TEXT NOT NULL,
	repo_id TEXT NOT NULL,
	activity_type TEXT NOT NULL,
	count INTEGER NOT NULL,
	PRIMARY KEY (user_id, day, repo_id, activity_type)
)`,

	`CREATE TABLE IF NOT EXISTS tracked_accounts (
	login TEXT PRIMARY KEY,
	user_id TEXT NOT NULL DEFAULT '',
	first_synced_at TEXT NOT NULL,
	last_synced_at TEXT NOT NULL
)`,
}
