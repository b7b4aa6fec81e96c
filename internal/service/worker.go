package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Bessima/gift-fulfillment/internal/middlewares/logger"
	"github.com/Bessima/gift-fulfillment/internal/models"
	"github.com/Bessima/gift-fulfillment/internal/repository"
	"go.uber.org/zap"
)

type JobHandler func(ctx context.Context, job models.Job) error

type WorkerConfig struct {
	Workers      int
	BatchSize    int
	PollInterval time.Duration
	// Lease is how long a claimed job stays running before it counts as abandoned.
	Lease time.Duration
	// Backoff is multiplied by the attempt number to schedule the next attempt.
	Backoff time.Duration
}

var DefaultWorkerConfig = WorkerConfig{
	Workers:      4,
	BatchSize:    16,
	PollInterval: time.Second,
	Lease:        2 * time.Minute,
	Backoff:      10 * time.Second,
}

// Worker drains the jobs table with a fixed pool of goroutines.
type Worker struct {
	jobs     repository.JobStorageRepositoryI
	handlers map[models.JobKind]JobHandler
	config   WorkerConfig
	now      func() time.Time
}

func NewWorker(jobs repository.JobStorageRepositoryI, config WorkerConfig) *Worker {
	if config.Workers <= 0 {
		config.Workers = DefaultWorkerConfig.Workers
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultWorkerConfig.BatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultWorkerConfig.PollInterval
	}
	if config.Lease <= 0 {
		config.Lease = DefaultWorkerConfig.Lease
	}
	if config.Backoff <= 0 {
		config.Backoff = DefaultWorkerConfig.Backoff
	}
	return &Worker{
		jobs:     jobs,
		handlers: make(map[models.JobKind]JobHandler),
		config:   config,
		now:      time.Now,
	}
}

func (w *Worker) Handle(kind models.JobKind, handler JobHandler) {
	w.handlers[kind] = handler
}

// Run опрашивает очередь задач и передает их в пул, пока не отменен ctx.
func (w *Worker) Run(ctx context.Context) {
	queue := make(chan models.Job, w.config.BatchSize)

	var wg sync.WaitGroup
	for i := 0; i < w.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range queue {
				w.process(ctx, job)
			}
		}()
	}

	logger.Log.Info("job worker started", zap.Int("workers", w.config.Workers))
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()
	for {
		w.feed(ctx, queue)
		select {
		case <-ctx.Done():
			close(queue)
			wg.Wait()
			logger.Log.Info("job worker stopped")
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) feed(ctx context.Context, queue chan<- models.Job) {
	claimed, err := w.jobs.ClaimDue(ctx, w.now(), w.config.BatchSize, w.config.Lease)
	if err != nil {
		if ctx.Err() == nil {
			logger.Log.Warn("could not claim jobs", zap.Error(err))
		}
		return
	}
	for _, job := range claimed {
		select {
		case queue <- job:
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce забирает готовые к запуску задачи и выполняет их в текущей горутине.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	claimed, err := w.jobs.ClaimDue(ctx, w.now(), w.config.BatchSize, w.config.Lease)
	if err != nil {
		return 0, err
	}
	for _, job := range claimed {
		w.process(ctx, job)
	}
	return len(claimed), nil
}

func (w *Worker) process(ctx context.Context, job models.Job) {
	var err error
	handler, ok := w.handlers[job.Kind]
	if ok {
		err = handler(ctx, job)
	} else {
		err = fmt.Errorf("no handler for job kind %s", job.Kind)
	}

	now := w.now()
	if err == nil {
		if completeErr := w.jobs.Complete(ctx, job.ID, now); completeErr != nil {
			logger.Log.Error("could not complete job", zap.String("job_id", job.ID), zap.Error(completeErr))
		}
		return
	}

	retryAt := now.Add(time.Duration(job.Attempts) * w.config.Backoff)
	status, failErr := w.jobs.Fail(ctx, job.ID, err.Error(), retryAt, now)
	if failErr != nil {
		logger.Log.Error("could not record job failure", zap.String("job_id", job.ID), zap.Error(failErr))
		return
	}
	fields := []zap.Field{
		zap.String("job_id", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.String("order_id", job.OrderID),
		zap.Int("attempt", job.Attempts),
		zap.Error(err),
	}
	if status == models.JobFailed {
		logger.Log.Error("job failed permanently", fields...)
		return
	}
	logger.Log.Warn("job failed, will retry", append(fields, zap.Time("retry_at", retryAt))...)
}
