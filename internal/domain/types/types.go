// Package types contains the request and response shapes of the service API.
package types

import (
	"time"

	"github.com/okian/ghpulse/internal/adapters/repository"
	"github.com/okian/ghpulse/internal/domain/canonical"
)

// AccountsRequest names the accounts a run or removal applies to.
type AccountsRequest struct {
	Accounts []string `json:"accounts"`
}

// PipelineResult reports what one run did. Failed lists are sorted and never nil.
type PipelineResult struct {
	RunID    string    `json:"runId"`
	Accounts []string  `json:"accounts"`
	Since    time.Time `json:"since"`
	Until    time.Time `json:"until"`

	ReposDiscovered int      `json:"reposDiscovered"`
	ReposIngested   int      `json:"reposIngested"`
	ReposFailed     []string `json:"reposFailed"`
	AccountsFailed  []string `json:"accountsFailed"`

	EventsSeen    int `json:"eventsSeen"`
	EventsWritten int `json:"eventsWritten"`

	Entities   map[string]int `json:"entities"`
	Profiles   int            `json:"profiles"`
	Repos      int            `json:"repos"`
	Activities int            `json:"activities"`

	Duration string `json:"duration"`
}

// RemovalResult reports account removal per account. Lists are sorted and never nil.
type RemovalResult struct {
	Removed  []string `json:"removed"`
	NotFound []string `json:"notFound"`
	Failed   []string `json:"failed"`
}

// ActivityResponse lists the stored counters of one user.
type ActivityResponse struct {
	UserID     string                      `json:"userId"`
	Activities []canonical.ActivityCounter `json:"activities"`
}

// Stats is a point-in-time view of the service.
type Stats struct {
	Raw             repository.Stats `json:"raw"`
	QueueLength     int              `json:"queueLength"`
	Workers         int              `json:"workers"`
	ReposProcessed  int64            `json:"reposProcessed"`
	TrackedAccounts int              `json:"trackedAccounts"`
	LastRun         *PipelineResult  `json:"lastRun,omitempty"`
}
