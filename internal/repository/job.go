package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Bessima/gift-fulfillment/internal/config/db"
	"github.com/Bessima/gift-fulfillment/internal/customerror"
	"github.com/Bessima/gift-fulfillment/internal/models"
	"github.com/Bessima/gift-fulfillment/internal/retry"
	"github.com/jackc/pgx/v5"
)

type JobRepository struct {
	db *db.DB
}

type JobStorageRepositoryI interface {
	// Enqueue stores the job unless one with the same dedupe key exists; created reports which happened.
	Enqueue(ctx context.Context, job models.Job) (created bool, err error)
	// ClaimDue marks up to limit due jobs as running until now+lease and returns them.
	ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]models.Job, error)
	Complete(ctx context.Context, id string, at time.Time) error
	// Fail schedules another attempt at retryAt, or marks the job failed once attempts are spent.
	Fail(ctx context.Context, id string, errMessage string, retryAt time.Time, at time.Time) (models.JobStatus, error)
	// RequeueStale returns running jobs whose lease expired to the queue.
	RequeueStale(ctx context.Context, now time.Time) (int, error)
}

func NewJobRepository(dbObj *db.DB) *JobRepository {
	return &JobRepository{db: dbObj}
}

const jobColumns = `id, kind, order_id, dedupe_key, status, attempts, max_attempts, run_at, last_error, payload, created_at, updated_at`

func (repository *JobRepository) Enqueue(ctx context.Context, job models.Job) (bool, error) {
	query := `INSERT INTO jobs (id, kind, order_id, dedupe_key, status, attempts, max_attempts, run_at, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $8, $9, $9)
		ON CONFLICT (dedupe_key) DO NOTHING`

	var payload []byte
	if len(job.Payload) > 0 {
		payload = job.Payload
	}

	return retry.DoRetryWithResult(ctx, func() (bool, error) {
		row, err := repository.db.Pool.Exec(ctx, query,
			job.ID, job.Kind, job.OrderID, job.DedupeKey, models.JobPending, job.MaxAttempts, job.RunAt, payload, job.CreatedAt)
		if err != nil {
			return false, pgError(err, fmt.Sprintf("job %s", job.ID))
		}
		return row.RowsAffected() == 1, nil
	})
}

// ClaimDue захватывает готовые задачи через FOR UPDATE SKIP LOCKED и продлевает их аренду.
func (repository *JobRepository) ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]models.Job, error) {
	query := `UPDATE jobs SET status = $1, attempts = attempts + 1, run_at = $2, updated_at = $3
		WHERE id IN (
			SELECT id FROM jobs WHERE status = $4 AND run_at <= $3 ORDER BY run_at, created_at LIMIT $5 FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	return retry.DoRetryWithResult(ctx, func() ([]models.Job, error) {
		rows, err := repository.db.Pool.Query(ctx, query, models.JobRunning, now.Add(lease), now, models.JobPending, limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		jobs := []models.Job{}
		for rows.Next() {
			var job models.Job
			var payload []byte
			err = rows.Scan(
				&job.ID, &job.Kind, &job.OrderID, &job.DedupeKey, &job.Status, &job.Attempts, &job.MaxAttempts,
				&job.RunAt, &job.LastError, &payload, &job.CreatedAt, &job.UpdatedAt,
			)
			if err != nil {
				return nil, err
			}
			if len(payload) > 0 {
				job.Payload = payload
			}
			jobs = append(jobs, job)
		}

		return jobs, rows.Err()
	})
}

func (repository *JobRepository) Complete(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE jobs SET status = $1, last_error = '', updated_at = $2 WHERE id = $3`

	return retry.DoRetry(ctx, func() error {
		row, err := repository.db.Pool.Exec(ctx, query, models.JobDone, at, id)
		if err != nil {
			return err
		}
		if row.RowsAffected() == 0 {
			return customerror.NewNotFoundError(fmt.Sprintf("job %s", id))
		}
		return nil
	})
}

func (repository *JobRepository) Fail(ctx context.Context, id string, errMessage string, retryAt time.Time, at time.Time) (models.JobStatus, error) {
	query := `UPDATE jobs SET status = CASE WHEN attempts >= max_attempts THEN $1 ELSE $2 END,
		run_at = $3, last_error = $4, updated_at = $5
		WHERE id = $6
		RETURNING status`

	return retry.DoRetryWithResult(ctx, func() (models.JobStatus, error) {
		var status models.JobStatus
		err := repository.db.Pool.QueryRow(ctx, query, models.JobFailed, models.JobPending, retryAt, errMessage, at, id).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return status, customerror.NewNotFoundError(fmt.Sprintf("job %s", id))
		}
		return status, err
	})
}

// RequeueStale возвращает в очередь задачи с истекшей арендой. Исчерпавшие попытки помечаются failed.
func (repository *JobRepository) RequeueStale(ctx context.Context, now time.Time) (int, error) {
	query := `UPDATE jobs SET status = CASE WHEN attempts >= max_attempts THEN $1 ELSE $2 END, updated_at = $3
		WHERE status = $4 AND run_at < $3`

	return retry.DoRetryWithResult(ctx, func() (int, error) {
		row, err := repository.db.Pool.Exec(ctx, query, models.JobFailed, models.JobPending, now, models.JobRunning)
		if err != nil {
			return 0, err
		}
		return int(row.RowsAffected()), nil
	})
}
