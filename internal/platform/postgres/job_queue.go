package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-deckgen/internal/jobqueue"
)

const jobColumns = `id, queue, name, payload, status, attempts, max_attempts, backoff_ms,
	run_at, last_error, created_at, updated_at`

// JobQueue implements jobqueue.Queue on a PostgreSQL jobs table. Several
// queues share one table, separated by the queue column.
type JobQueue struct {
	db     *sql.DB
	name   string
	logger *slog.Logger
	now    func() time.Time
}

var _ jobqueue.Queue = (*JobQueue)(nil)

// NewJobQueue creates a queue named name backed by db. The schema must
// already be migrated.
func NewJobQueue(db *sql.DB, name string, logger *slog.Logger) *JobQueue {
	return &JobQueue{
		db:     db,
		name:   name,
		logger: logger.With("component", "postgres_job_queue", "queue", name),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Name implements jobqueue.Queue.
func (q *JobQueue) Name() string {
	return q.name
}

// AddJob implements jobqueue.Queue.
func (q *JobQueue) AddJob(ctx context.Context, name string, payload any, opts jobqueue.JobOptions) (*jobqueue.Job, error) {
	jobs, err := q.AddJobsBulk(ctx, []jobqueue.NewJob{{Name: name, Payload: payload, Options: opts}})
	if err != nil {
		return nil, err
	}
	return jobs[0], nil
}

// AddJobsBulk implements jobqueue.Queue. All jobs are inserted in one transaction.
func (q *JobQueue) AddJobsBulk(ctx context.Context, specs []jobqueue.NewJob) ([]*jobqueue.Job, error) {
	jobs, err := jobqueue.BuildJobs(q.name, specs, q.now())
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return jobs, nil
	}

	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL, $10, $11)
	`

	err = RunInTransaction(ctx, q.db, q.logger, func(ctx context.Context, tx *sql.Tx) error {
		for _, job := range jobs {
			_, err := tx.ExecContext(ctx, query,
				job.ID,
				job.Queue,
				job.Name,
				[]byte(job.Payload),
				string(job.Status),
				job.Attempts,
				job.MaxAttempts,
				job.Backoff.Milliseconds(),
				job.RunAt,
				job.CreatedAt,
				job.UpdatedAt,
			)
			if err != nil {
				return MapError(err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add jobs: %w", err)
	}

	q.logger.Debug("jobs added", "count", len(jobs))
	return jobs, nil
}

// GetJobs implements jobqueue.Queue.
func (q *JobQueue) GetJobs(ctx context.Context, statuses ...jobqueue.Status) ([]*jobqueue.Job, error) {
	if err := q.promoteDelayed(ctx, q.db); err != nil {
		return nil, err
	}

	query := `SELECT ` + jobColumns + ` FROM jobs WHERE queue = $1`
	args := []any{q.name}
	if len(statuses) > 0 {
		names := make([]string, len(statuses))
		for i, status := range statuses {
			names[i] = string(status)
		}
		query += ` AND status = ANY($2)`
		args = append(args, names)
	}
	query += ` ORDER BY created_at, id`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var jobs []*jobqueue.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}
	return jobs, nil
}

// GetJobCounts implements jobqueue.Queue.
func (q *JobQueue) GetJobCounts(ctx context.Context) (jobqueue.Counts, error) {
	if err := q.promoteDelayed(ctx, q.db); err != nil {
		return nil, err
	}

	rows, err := q.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM jobs WHERE queue = $1 GROUP BY status`,
		q.name)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	counts := jobqueue.NewCounts()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan job count: %w", err)
		}
		counts[jobqueue.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate job counts: %w", err)
	}
	return counts, nil
}

// Claim implements jobqueue.Queue. Concurrent claimers never receive the same
// job: the candidate row is locked with FOR UPDATE SKIP LOCKED.
func (q *JobQueue) Claim(ctx context.Context) (*jobqueue.Job, error) {
	query := `
		UPDATE jobs SET status = 'active', updated_at = $2
		WHERE id = (
			SELECT id FROM jobs
			WHERE queue = $1
			  AND (status = 'waiting' OR (status = 'delayed' AND run_at <= $2))
			ORDER BY created_at, id
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING ` + jobColumns

	job, err := scanJob(q.db.QueryRowContext(ctx, query, q.name, q.now()))
	if err != nil {
		if IsNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return job, nil
}

// Complete implements jobqueue.Queue.
func (q *JobQueue) Complete(ctx context.Context, id uuid.UUID) error {
	result, err := q.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'completed', attempts = attempts + 1, last_error = NULL, updated_at = $3
		WHERE id = $1 AND queue = $2
	`, id, q.name, q.now())
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", MapError(err))
	}
	return CheckRowsAffected(result)
}

// Fail implements jobqueue.Queue.
func (q *JobQueue) Fail(ctx context.Context, id uuid.UUID, reason error) error {
	return RunInTransaction(ctx, q.db, q.logger, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+jobColumns+` FROM jobs WHERE id = $1 AND queue = $2 FOR UPDATE`,
			id, q.name)
		job, err := scanJob(row)
		if err != nil {
			return err
		}

		now := q.now()
		job.Attempts++
		job.LastError = jobqueue.FailureMessage(reason)
		job.Status, job.RunAt = jobqueue.NextState(job, now)

		_, err = tx.ExecContext(ctx, `
			UPDATE jobs
			SET status = $2, attempts = $3, last_error = $4, run_at = $5, updated_at = $6
			WHERE id = $1
		`, job.ID, string(job.Status), job.Attempts, job.LastError, job.RunAt, now)
		if err != nil {
			return fmt.Errorf("failed to record job failure: %w", MapError(err))
		}

		q.logger.Debug("job attempt failed",
			"job_id", id,
			"attempts", job.Attempts,
			"max_attempts", job.MaxAttempts,
			"status", job.Status)
		return nil
	})
}

// RequeueActive implements jobqueue.Queue.
func (q *JobQueue) RequeueActive(ctx context.Context, olderThan time.Duration) (int, error) {
	now := q.now()
	result, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'waiting', run_at = $2, updated_at = $2
		WHERE queue = $1 AND status = 'active' AND updated_at <= $3
	`, q.name, now, now.Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to requeue active jobs: %w", MapError(err))
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// Close implements jobqueue.Queue. The *sql.DB belongs to the caller and is
// left open, so several queues can share it.
func (q *JobQueue) Close() error {
	return nil
}

// promoteDelayed moves delayed jobs whose run time has passed back to waiting
func (q *JobQueue) promoteDelayed(ctx context.Context, db DBTX) error {
	_, err := db.ExecContext(ctx, `
		UPDATE jobs SET status = 'waiting'
		WHERE queue = $1 AND status = 'delayed' AND run_at <= $2
	`, q.name, q.now())
	if err != nil {
		return fmt.Errorf("failed to promote delayed jobs: %w", MapError(err))
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*jobqueue.Job, error) {
	var (
		job       jobqueue.Job
		status    string
		payload   []byte
		backoffMS int64
		lastError sql.NullString
	)

	err := row.Scan(
		&job.ID,
		&job.Queue,
		&job.Name,
		&payload,
		&status,
		&job.Attempts,
		&job.MaxAttempts,
		&backoffMS,
		&job.RunAt,
		&lastError,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, MapError(err)
	}

	job.Status = jobqueue.Status(status)
	job.Payload = payload
	job.Backoff = time.Duration(backoffMS) * time.Millisecond
	job.LastError = lastError.String
	return &job, nil
}
