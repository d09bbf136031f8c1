package joblog

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/ironsheep/image-studio/internal/imgerr"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS batch_jobs (
  job_id TEXT PRIMARY KEY,
  operation TEXT NOT NULL,
  params TEXT,
  total INTEGER NOT NULL,
  succeeded INTEGER NOT NULL,
  failures TEXT,
  started_at TIMESTAMP NOT NULL,
  finished_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_batch_jobs_finished_at ON batch_jobs(finished_at);
`

// SQLite records entries in an embedded database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at dsn. ":memory:"
// gives a private in-memory database.
func OpenSQLite(ctx context.Context, dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %s", dsn)
	}
	// One connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create joblog schema")
	}
	return &SQLite{db: db}, nil
}

// Record inserts e, replacing an earlier entry with the same job ID.
func (s *SQLite) Record(ctx context.Context, e Entry) error {
	params, err := json.Marshal(e.Params)
	if err != nil {
		return errors.Wrap(err, "encode params")
	}
	failures, err := json.Marshal(e.Failures)
	if err != nil {
		return errors.Wrap(err, "encode failures")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO batch_jobs
		   (job_id, operation, params, total, succeeded, failures, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.JobID, e.Operation, string(params), e.Total, e.Succeeded, string(failures),
		e.StartedAt.UTC(), e.FinishedAt.UTC(),
	)
	if err != nil {
		return errors.Wrapf(ErrWriteFailed, "sqlite insert job %s: %v", e.JobID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *SQLite) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, operation, params, total, succeeded, failures, started_at, finished_at
		   FROM batch_jobs ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrapf(ErrReadFailed, "sqlite query: %v", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                Entry
			params, failures sql.NullString
			started, done    time.Time
		)
		if err := rows.Scan(&e.JobID, &e.Operation, &params, &e.Total, &e.Succeeded, &failures, &started, &done); err != nil {
			return nil, errors.Wrapf(ErrReadFailed, "sqlite scan: %v", err)
		}
		if params.Valid {
			if err := json.Unmarshal([]byte(params.String), &e.Params); err != nil {
				return nil, errors.Wrapf(ErrReadFailed, "job %s params: %v", e.JobID, err)
			}
		}
		if failures.Valid {
			var fs []imgerr.Failure
			if err := json.Unmarshal([]byte(failures.String), &fs); err != nil {
				return nil, errors.Wrapf(ErrReadFailed, "job %s failures: %v", e.JobID, err)
			}
			e.Failures = fs
		}
		e.StartedAt, e.FinishedAt = started, done
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(ErrReadFailed, "sqlite rows: %v", err)
	}
	return entries, nil
}

// Close closes the database.
func (s *SQLite) Close(context.Context) error {
	return s.db.Close()
}
