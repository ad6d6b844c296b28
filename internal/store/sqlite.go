package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/lorenzlk/impactreportingapi-sub002/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'discovering',
	summary    TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
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
	scheduled_at    DATETIME,
	date_range      TEXT,
	PRIMARY KEY (run_id, position)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_run_jobs_job_id ON run_jobs(run_id, job_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, status model.RunStatus) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, string(status), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: create run")
	}
	return &model.Run{ID: id, Status: status, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: update run status")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) SaveJobs(ctx context.Context, runID string, jobs []model.ExportJob) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save jobs")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_jobs WHERE run_id = ?`, runID); err != nil {
		return eris.Wrap(err, "sqlite: clear jobs")
	}

	for i, job := range jobs {
		dateRange, err := marshalDateRange(job.DateRange)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_jobs (run_id, position, report_id, report_name, job_id, status, result_location, error, scheduled_at, date_range)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, i, job.ReportID, job.ReportName, job.JobID, string(job.Status),
			job.ResultLocation, job.Error, job.ScheduledAt, dateRange,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert job %s", job.JobID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit save jobs")
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, runID string, job model.ExportJob) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE run_jobs SET status = ?, result_location = ?, error = ? WHERE run_id = ? AND job_id = ?`,
		string(job.Status), job.ResultLocation, job.Error, runID, job.JobID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: update job")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Errorf("sqlite: job %s not found in run %s", job.JobID, runID)
	}
	return nil
}

func (s *SQLiteStore) SaveSummary(ctx context.Context, runID string, summary *model.RunSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET summary = ?, updated_at = ? WHERE id = ?`,
		string(data), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: save summary")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var run model.Run
	var summary sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, status, summary, created_at, updated_at FROM runs WHERE id = ?`, runID,
	).Scan(&run.ID, &run.Status, &summary, &run.CreatedAt, &run.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get run")
	}
	if summary.Valid {
		if err := json.Unmarshal([]byte(summary.String), &run.Summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal summary")
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT report_id, report_name, job_id, status, result_location, error, scheduled_at, date_range
		 FROM run_jobs WHERE run_id = ? ORDER BY position`, runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get run jobs")
	}
	defer rows.Close()

	for rows.Next() {
		var job model.ExportJob
		var status string
		var resultLocation, jobErr, dateRange sql.NullString
		var scheduledAt sql.NullTime
		if err := rows.Scan(&job.ReportID, &job.ReportName, &job.JobID, &status,
			&resultLocation, &jobErr, &scheduledAt, &dateRange); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		job.Status = model.JobStatus(status)
		job.ResultLocation = resultLocation.String
		job.Error = jobErr.String
		if scheduledAt.Valid {
			job.ScheduledAt = scheduledAt.Time
		}
		if job.DateRange, err = unmarshalDateRange(dateRange.String); err != nil {
			return nil, err
		}
		run.Jobs = append(run.Jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate jobs")
	}

	return &run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, summary, created_at, updated_at FROM runs ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var run model.Run
		var summary sql.NullString
		if err := rows.Scan(&run.ID, &run.Status, &summary, &run.CreatedAt, &run.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		if summary.Valid {
			if err := json.Unmarshal([]byte(summary.String), &run.Summary); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal summary")
			}
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func marshalDateRange(dr *model.DateRange) (sql.NullString, error) {
	if dr == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(dr)
	if err != nil {
		return sql.NullString{}, eris.Wrap(err, "store: marshal date range")
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalDateRange(raw string) (*model.DateRange, error) {
	if raw == "" {
		return nil, nil
	}
	var dr model.DateRange
	if err := json.Unmarshal([]byte(raw), &dr); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal date range")
	}
	return &dr, nil
}
