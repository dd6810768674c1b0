// Package postgres provides PostgreSQL-backed implementations of repository interfaces.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"
	"github.com/nadmax/nexdag/internal/notify"
	"github.com/nadmax/nexdag/internal/repository"
	"github.com/nadmax/nexdag/internal/repository/models"
)

const schema = `
	CREATE TABLE IF NOT EXISTS runs (
		run_id      TEXT PRIMARY KEY,
		outcome     TEXT,
		task_order  TEXT[] NOT NULL DEFAULT '{}',
		task_count  INTEGER NOT NULL DEFAULT 0,
		completed   INTEGER NOT NULL DEFAULT 0,
		failed      INTEGER NOT NULL DEFAULT 0,
		skipped     INTEGER NOT NULL DEFAULT 0,
		unresolved  TEXT[] NOT NULL DEFAULT '{}',
		started_at  TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ
	);
	CREATE TABLE IF NOT EXISTS task_transitions (
		id             BIGSERIAL PRIMARY KEY,
		run_id         TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		task_id        TEXT NOT NULL,
		status         TEXT NOT NULL,
		retry_count    INTEGER NOT NULL DEFAULT 0,
		skipped_due_to TEXT,
		occurred_at    TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_task_transitions_run ON task_transitions (run_id, id);
`

const runColumns = `
	run_id, COALESCE(outcome, ''), task_order, task_count,
	completed, failed, skipped, unresolved, started_at, finished_at
`

type PostgresRunRepository struct {
	db *sql.DB
}

var _ repository.RunRepository = (*PostgresRunRepository)(nil)

func NewPostgresRunRepository(connectionString string) (*PostgresRunRepository, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresRunRepository{db: db}, nil
}

// EnsureSchema creates the history tables when they do not exist.
func (r *PostgresRunRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (r *PostgresRunRepository) SaveRun(ctx context.Context, info notify.RunInfo) error {
	query := `
		INSERT INTO runs (run_id, task_order, task_count, started_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query, info.RunID, pq.Array(info.Order), len(info.Order), info.StartedAt)
	return err
}

func (r *PostgresRunRepository) FinishRun(ctx context.Context, report notify.RunReport) error {
	query := `
		UPDATE runs
		SET outcome = $1,
		    completed = $2,
		    failed = $3,
		    skipped = $4,
		    unresolved = $5,
		    finished_at = $6
		WHERE run_id = $7
	`

	unresolved := report.Unresolved
	if unresolved == nil {
		unresolved = []string{}
	}

	_, err := r.db.ExecContext(
		ctx,
		query,
		report.Outcome,
		report.Stats.Completed,
		report.Stats.Failed,
		report.Stats.Skipped,
		pq.Array(unresolved),
		report.FinishedAt,
		report.RunID,
	)

	return err
}

func (r *PostgresRunRepository) LogTransition(ctx context.Context, e notify.Event) error {
	query := `
		INSERT INTO task_transitions (
			run_id, task_id, status, retry_count, skipped_due_to, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	var causeVal any
	if e.SkippedDueTo == "" {
		causeVal = nil
	} else {
		causeVal = e.SkippedDueTo
	}

	_, err := r.db.ExecContext(
		ctx,
		query,
		e.RunID,
		e.TaskID,
		string(e.Status),
		e.RetryCount,
		causeVal,
		e.At,
	)

	return err
}

func (r *PostgresRunRepository) GetRun(ctx context.Context, runID string) (*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE run_id = $1`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", repository.ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}

	return run, nil
}

func (r *PostgresRunRepository) GetRunTransitions(ctx context.Context, runID string) ([]models.Transition, error) {
	query := `
		SELECT
			id, run_id, task_id, status, retry_count,
			COALESCE(skipped_due_to, ''), occurred_at
		FROM task_transitions
		WHERE run_id = $1
		ORDER BY id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("failed to close rows: %v", err)
		}
	}()

	var transitions []models.Transition
	for rows.Next() {
		var t models.Transition
		if err := rows.Scan(
			&t.ID,
			&t.RunID,
			&t.TaskID,
			&t.Status,
			&t.RetryCount,
			&t.SkippedDueTo,
			&t.OccurredAt,
		); err != nil {
			return nil, err
		}

		transitions = append(transitions, t)
	}

	return transitions, rows.Err()
}

func (r *PostgresRunRepository) GetRecentRuns(ctx context.Context, limit int) ([]models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("failed to close rows: %v", err)
		}
	}()

	var runs []models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}

		runs = append(runs, *run)
	}

	return runs, rows.Err()
}

func (r *PostgresRunRepository) GetTaskStats(ctx context.Context, hours int) ([]models.TaskStats, error) {
	query := `
		SELECT
			task_id, status, COUNT(*) as count,
			COALESCE(AVG(retry_count), 0) as avg_retries
		FROM task_transitions
		WHERE status IN ('completed', 'failed', 'skipped')
		  AND occurred_at > NOW() - INTERVAL '1 hour' * $1
		GROUP BY task_id, status
		ORDER BY task_id, status
	`
	rows, err := r.db.QueryContext(ctx, query, hours)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("failed to close rows: %v", err)
		}
	}()

	var stats []models.TaskStats
	for rows.Next() {
		var s models.TaskStats
		if err := rows.Scan(&s.TaskID, &s.Status, &s.Count, &s.AvgRetries); err != nil {
			return nil, err
		}

		stats = append(stats, s)
	}

	return stats, rows.Err()
}

func (r *PostgresRunRepository) DB() *sql.DB {
	return r.db
}

func (r *PostgresRunRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.Run, error) {
	var run models.Run
	var finishedAt sql.NullTime

	if err := row.Scan(
		&run.RunID,
		&run.Outcome,
		pq.Array(&run.Order),
		&run.TaskCount,
		&run.Completed,
		&run.Failed,
		&run.Skipped,
		pq.Array(&run.Unresolved),
		&run.StartedAt,
		&finishedAt,
	); err != nil {
		return nil, err
	}

	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}

	return &run, nil
}
