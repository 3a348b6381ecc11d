package history

import "time"

// Run statuses.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// FetchRun is one recorded fetch.
type FetchRun struct {
	ID        string
	Endpoint  string
	Category  string
	Variant   string
	Status    string
	Rows      int
	Path      string
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}

// MergeRun is one recorded merge.
type MergeRun struct {
	ID        string
	Endpoint  string
	Category  string
	Status    string
	Entities  int
	Sources   int
	Skipped   int
	Path      string
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}
