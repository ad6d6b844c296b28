// Package store persists runs and their export-job lists. The saved job
// states back the resume contract: a suspended run re-enters processing at
// the first non-terminal job without re-scheduling or re-polling anything
// already terminal.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/lorenzlk/impactreportingapi-sub002/internal/model"
)

// ErrNotFound is returned when a run id does not exist.
var ErrNotFound = eris.New("store: run not found")

// Store defines the persistence interface for pipeline runs.
type Store interface {
	// CreateRun inserts a new run in the given initial status.
	CreateRun(ctx context.Context, status model.RunStatus) (*model.Run, error)
	// UpdateRunStatus moves a run to a new status.
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	// SaveJobs replaces the run's job list, preserving order.
	SaveJobs(ctx context.Context, runID string, jobs []model.ExportJob) error
	// UpdateJob persists one job's current state, matched by job id.
	UpdateJob(ctx context.Context, runID string, job model.ExportJob) error
	// SaveSummary stores the run summary produced at finalize (or suspend).
	SaveSummary(ctx context.Context, runID string, summary *model.RunSummary) error
	// GetRun loads a run with its ordered job list.
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	// ListRuns returns the most recent runs, newest first, without job lists.
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)

	// Migrate creates or updates the schema.
	Migrate(ctx context.Context) error
	Close() error
}

// Open selects a driver from config: "sqlite" (default) or "postgres".
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "", "sqlite":
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, dsn)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}
