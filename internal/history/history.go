// internal/history/history.go

// Package history keeps a PostgreSQL record of finished runs. The
// store is optional; runs work identically without it.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/gantryhq/gantry/internal/connector"
	"github.com/gantryhq/gantry/internal/harness"
)

// DBPool abstracts pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const (
	sqlCreateRuns = `
        CREATE TABLE IF NOT EXISTS runs (
            run_id TEXT PRIMARY KEY,
            connector TEXT NOT NULL,
            source TEXT NOT NULL,
            captured BOOLEAN NOT NULL,
            output_path TEXT NOT NULL DEFAULT '',
            failure TEXT NOT NULL DEFAULT '',
            started_at TIMESTAMPTZ NOT NULL,
            duration_ms BIGINT NOT NULL
        );
    `
	sqlCreateRunsIndex = `
        CREATE INDEX IF NOT EXISTS runs_started_at_idx ON runs (started_at DESC);
    `
	sqlInsertRun = `
        INSERT INTO runs (run_id, connector, source, captured, output_path, failure, started_at, duration_ms)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
    `
	sqlRecentRuns = `
        SELECT run_id, connector, source, captured, output_path, failure, started_at, duration_ms
        FROM runs
        ORDER BY started_at DESC
        LIMIT $1;
    `
)

// Store provides the PostgreSQL implementation of harness.Recorder.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

var _ harness.Recorder = (*Store)(nil)

// New verifies the connection and ensures the runs table exists.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging history database: %w", err)
	}

	s := &Store{
		pool: pool,
		log:  logger.Named("history"),
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, sqlCreateRuns); err != nil {
		return fmt.Errorf("creating runs table: %w", err)
	}
	if _, err := s.pool.Exec(ctx, sqlCreateRunsIndex); err != nil {
		return fmt.Errorf("creating runs index: %w", err)
	}
	return nil
}

// Record inserts one finished run. Timestamps are stored in UTC.
func (s *Store) Record(ctx context.Context, rec harness.RunRecord) error {
	_, err := s.pool.Exec(ctx, sqlInsertRun,
		rec.RunID, rec.Connector, string(rec.Source), rec.Captured,
		rec.OutputPath, rec.Failure, rec.StartedAt.UTC(), rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("inserting run record: %w", err)
	}

	s.log.Debug("run recorded",
		zap.String("run_id", rec.RunID),
		zap.Bool("captured", rec.Captured),
	)
	return nil
}

// RecentRuns returns up to limit runs, newest first. A non-positive
// limit defaults to 20.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]harness.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx, sqlRecentRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("querying run history: %w", err)
	}
	defer rows.Close()

	var runs []harness.RunRecord
	for rows.Next() {
		var rec harness.RunRecord
		var source string
		var durationMS int64

		if err := rows.Scan(
			&rec.RunID, &rec.Connector, &source, &rec.Captured,
			&rec.OutputPath, &rec.Failure, &rec.StartedAt, &durationMS,
		); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}

		rec.Source = connector.Source(source)
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating run rows: %w", err)
	}
	return runs, nil
}
