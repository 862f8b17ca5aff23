package app

import (
	"fmt"

	"cdnsync/internal/deploy"
)

// RunRecorder tracks a CLI operation in the run history. The run ID exists
// from construction so log lines can carry it, but nothing is written to
// the database until Start: read-only commands leave no record.
type RunRecorder struct {
	db        deploy.Database
	clock     deploy.Clock
	runID     string
	operation string
	run       *deploy.Run
}

// NewRunRecorder creates a recorder for operation (e.g. "deploy").
func NewRunRecorder(db deploy.Database, clock deploy.Clock, ids deploy.IDGenerator, operation string) *RunRecorder {
	return &RunRecorder{
		db:        db,
		clock:     clock,
		runID:     ids.New(),
		operation: operation,
	}
}

// RunID returns the identifier of this run.
func (r *RunRecorder) RunID() string { return r.runID }

// Started reports whether the run has been persisted.
func (r *RunRecorder) Started() bool { return r.run != nil }

// Start persists the run with status "running". Calling it again is a no-op.
func (r *RunRecorder) Start() error {
	if r.run != nil {
		return nil
	}
	run, err := r.db.CreateRun(r.runID, r.operation, r.clock.Now())
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	r.run = run
	return nil
}

// Finish stores the counts of plan and result and the outcome of the run.
// result may be nil when the run failed before applying anything.
func (r *RunRecorder) Finish(plan *deploy.Plan, result *deploy.Result, runErr error) error {
	if r.run == nil {
		return fmt.Errorf("run %s was never started", r.runID)
	}

	now := r.clock.Now()
	r.run.FinishedAt = &now
	r.run.Status = "success"
	r.run.Error = ""
	if runErr != nil {
		r.run.Status = "error"
		r.run.Error = runErr.Error()
	}

	if plan != nil {
		c := plan.Classification
		r.run.Uploaded = len(c.Upload)
		r.run.Overwritten = len(c.Overwrite)
		r.run.Omitted = len(c.Omit)
		r.run.Excluded = len(c.Excluded)
	}
	if result != nil {
		r.run.Deleted = len(result.Deleted)
	}

	if err := r.db.FinishRun(r.run); err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	return nil
}
