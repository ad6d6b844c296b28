package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/lorenzlk/impactreportingapi-sub002/internal/model"
)

// pgPool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it
// in tests.
type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    pgPool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 5
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'discovering',
	summary    JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_jobs (
	run_id          TEXT NOT NULL REFERENCES runs(id),
	position        INTEGER NOT NULL,
	report_id       TEXT NOT NULL,
	report_name     TEXT,
	job_id          TEXT NOT NULL,
	status          TEXT NOT NULL,
	result_location TEXT,
	error           TEXT,
	scheduled_at    TIMESTAMPTZ,
	date_range      JSONB,
	PRIMARY KEY (run_id, position)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_run_jobs_job_id ON run_jobs(run_id, job_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, status model.RunStatus) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		id, string(status), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create run")
	}
	return &model.Run{ID: id, Status: status, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: update run status")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SaveJobs(ctx context.Context, runID string, jobs []model.ExportJob) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save jobs")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM run_jobs WHERE run_id = $1`, runID); err != nil {
		return eris.Wrap(err, "postgres: clear jobs")
	}

	for i, job := range jobs {
		dateRange, err := dateRangeJSON(job.DateRange)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO run_jobs (run_id, position, report_id, report_name, job_id, status, result_location, error, scheduled_at, date_range)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			runID, i, job.ReportID, job.ReportName, job.JobID, string(job.Status),
			job.ResultLocation, job.Error, job.ScheduledAt, dateRange,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert job %s", job.JobID)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit save jobs")
}

func (s *PostgresStore) UpdateJob(ctx context.Context, runID string, job model.ExportJob) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE run_jobs SET status = $1, result_location = $2, error = $3 WHERE run_id = $4 AND job_id = $5`,
		string(job.Status), job.ResultLocation, job.Error, runID, job.JobID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: update job")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: job %s not found in run %s", job.JobID, runID)
	}
	return nil
}

func (s *PostgresStore) SaveSummary(ctx context.Context, runID string, summary *model.RunSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET summary = $1, updated_at = $2 WHERE id = $3`,
		data, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: save summary")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var run model.Run
	var summary []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, status, summary, created_at, updated_at FROM runs WHERE id = $1`, runID,
	).Scan(&run.ID, &run.Status, &summary, &run.CreatedAt, &run.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get run")
	}
	if len(summary) > 0 {
		if err := json.Unmarshal(summary, &run.Summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
	}

	rows, err := s.pool.Query(ctx,
		`SELECT report_id, report_name, job_id, status, result_location, error, scheduled_at, date_range
		 FROM run_jobs WHERE run_id = $1 ORDER BY position`, runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get run jobs")
	}
	defer rows.Close()

	for rows.Next() {
		var job model.ExportJob
		var status string
		var reportName, resultLocation, jobErr *string
		var scheduledAt *time.Time
		var dateRange []byte
		if err := rows.Scan(&job.ReportID, &reportName, &job.JobID, &status,
			&resultLocation, &jobErr, &scheduledAt, &dateRange); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		job.Status = model.JobStatus(status)
		if reportName != nil {
			job.ReportName = *reportName
		}
		if resultLocation != nil {
			job.ResultLocation = *resultLocation
		}
		if jobErr != nil {
			job.Error = *jobErr
		}
		if scheduledAt != nil {
			job.ScheduledAt = *scheduledAt
		}
		if len(dateRange) > 0 {
			if err := json.Unmarshal(dateRange, &job.DateRange); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal date range")
			}
		}
		run.Jobs = append(run.Jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate jobs")
	}

	return &run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, status, summary, created_at, updated_at FROM runs ORDER BY created_at DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var run model.Run
		var summary []byte
		if err := rows.Scan(&run.ID, &run.Status, &summary, &run.CreatedAt, &run.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if len(summary) > 0 {
			if err := json.Unmarshal(summary, &run.Summary); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal summary")
			}
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

func dateRangeJSON(dr *model.DateRange) ([]byte, error) {
	if dr == nil {
		return nil, nil
	}
	data, err := json.Marshal(dr)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal date range")
	}
	return data, nil
}
