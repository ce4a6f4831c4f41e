package model

import "time"

// RepoJob asks a worker to ingest one repository from Since onward.
type RepoJob struct {
	RunID    string
	Repo     RepoKey
	RepoID   string
	Private  bool
	Accounts []string
	Since    time.Time

	// Done receives exactly one outcome when set. The submitter must drain it.
	Done chan<- RepoOutcome
}

// RepoOutcome is the result of one RepoJob.
type RepoOutcome struct {
	Repo    RepoKey
	Written int
	Seen    int
	Err     error
}
