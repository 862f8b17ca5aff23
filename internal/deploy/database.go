package deploy

import "time"

// Database stores local state that survives between runs: a cache of
// content hashes and the history of deploy runs.
type Database interface {
	// Hash cache

	// LookupHash returns the cached hash of the file at absPath, valid only
	// while its stamp is unchanged.
	LookupHash(absPath string, stamp FileStamp) (string, bool, error)

	// StoreHash caches hash for the file at absPath in the state stamp.
	StoreHash(absPath string, stamp FileStamp, hash string) error

	// Run history

	// CreateRun records the start of a run and assigns it an ID.
	CreateRun(runID string, operation string, startedAt time.Time) (*Run, error)

	// FinishRun stores the final status and counts of run.
	FinishRun(run *Run) error

	// ListRuns returns the most recent runs, newest first.
	ListRuns(limit int) ([]*Run, error)

	// Close closes the database connection.
	Close() error
}

// Run is one recorded invocation of a mutating command.
type Run struct {
	ID          int64
	RunID       string
	Operation   string
	StartedAt   time.Time
	FinishedAt  *time.Time
	Status      string // "running", "success" or "error"
	Uploaded    int
	Overwritten int
	Omitted     int
	Excluded    int
	Deleted     int
	Error       string
}
