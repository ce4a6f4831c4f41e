package canonical

import "time"

// ActivityType is the bucket dimension of an ActivityCounter.
type ActivityType string

const (
	ActivityIssue        ActivityType = "issue"
	ActivityPR           ActivityType = "pr"
	ActivityIssueComment ActivityType = "issue_comment"
	ActivityPRComment    ActivityType = "pr_comment"
	ActivityCommit       ActivityType = "commit"
)

// DayLayout formats the UTC calendar day of an ActivityCounter.
const DayLayout = "2006-01-02"

// Day truncates t to its UTC calendar date.
func Day(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// StartOfDay returns midnight UTC of the day containing t.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ActivityCounter counts entities per (user, day, repo, type).
type ActivityCounter struct {
	UserID       string       `json:"userId"`
	Day          string       `json:"day"`
	RepoID       string       `json:"repoId"`
	ActivityType ActivityType `json:"activityType"`
	Count        int          `json:"activityCount"`
}

// Key is the persistence primary key of the counter.
func (c ActivityCounter) Key() string {
	return c.UserID + "|" + c.Day + "|" + c.RepoID + "|" + string(c.ActivityType)
}

// Profile is the curated view of a user.
type Profile struct {
	UserID    string     `json:"userId"`
	Login     string     `json:"login"`
	Name      *string    `json:"name"`
	AvatarURL string     `json:"avatarUrl,omitempty"`
	Company   *string    `json:"company"`
	Location  *string    `json:"location"`
	UpdatedAt *time.Time `json:"updatedAt"`
}

// RepoSummary is the curated view of a repository.
type RepoSummary struct {
	RepoID    string     `json:"repoId"`
	FullName  string     `json:"fullName"`
	Owner     string     `json:"owner"`
	Private   bool       `json:"private"`
	Language  *string    `json:"language"`
	Stars     int        `json:"stars"`
	Forks     int        `json:"forks"`
	UpdatedAt *time.Time `json:"updatedAt"`
}

// Curated is everything written to the curated store after one run.
type Curated struct {
	Profiles   []Profile         `json:"profiles"`
	Repos      []RepoSummary     `json:"repos"`
	Activities []ActivityCounter `json:"activities"`
}
