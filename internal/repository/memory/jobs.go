package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Bessima/gift-fulfillment/internal/customerror"
	"github.com/Bessima/gift-fulfillment/internal/models"
)

type JobRepo struct {
	mu    sync.Mutex
	m     map[string]*models.Job
	byKey map[string]string
}

func NewJobRepo() *JobRepo {
	return &JobRepo{m: make(map[string]*models.Job), byKey: make(map[string]string)}
}

func (r *JobRepo) Enqueue(_ context.Context, job models.Job) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[job.DedupeKey]; ok {
		return false, nil
	}
	job.Status = models.JobPending
	job.Attempts = 0
	job.UpdatedAt = job.CreatedAt
	r.m[job.ID] = &job
	r.byKey[job.DedupeKey] = job.ID
	return true, nil
}

func (r *JobRepo) ClaimDue(_ context.Context, now time.Time, limit int, lease time.Duration) ([]models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	due := make([]*models.Job, 0)
	for _, job := range r.m {
		if job.Status == models.JobPending && !job.RunAt.After(now) {
			due = append(due, job)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].RunAt.Equal(due[j].RunAt) {
			return due[i].CreatedAt.Before(due[j].CreatedAt)
		}
		return due[i].RunAt.Before(due[j].RunAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]models.Job, 0, len(due))
	for _, job := range due {
		job.Status = models.JobRunning
		job.Attempts++
		job.RunAt = now.Add(lease)
		job.UpdatedAt = now
		claimed = append(claimed, *job)
	}
	return claimed, nil
}

func (r *JobRepo) Complete(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.m[id]
	if !ok {
		return customerror.NewNotFoundError(fmt.Sprintf("job %s", id))
	}
	job.Status = models.JobDone
	job.LastError = ""
	job.UpdatedAt = at
	return nil
}

func (r *JobRepo) Fail(_ context.Context, id string, errMessage string, retryAt time.Time, at time.Time) (models.JobStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.m[id]
	if !ok {
		return "", customerror.NewNotFoundError(fmt.Sprintf("job %s", id))
	}
	job.Status = models.JobPending
	if job.Attempts >= job.MaxAttempts {
		job.Status = models.JobFailed
	}
	job.RunAt = retryAt
	job.LastError = errMessage
	job.UpdatedAt = at
	return job.Status, nil
}

func (r *JobRepo) RequeueStale(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, job := range r.m {
		if job.Status == models.JobRunning && job.RunAt.Before(now) {
			job.Status = models.JobPending
			if job.Attempts >= job.MaxAttempts {
				job.Status = models.JobFailed
			}
			job.UpdatedAt = now
			count++
		}
	}
	return count, nil
}

// Jobs returns a snapshot of every stored job.
func (r *JobRepo) Jobs() []models.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := make([]models.Job, 0, len(r.m))
	for _, job := range r.m {
		list = append(list, *job)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].DedupeKey < list[j].DedupeKey })
	return list
}
