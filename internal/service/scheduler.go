package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Bessima/gift-fulfillment/internal/middlewares/logger"
	"github.com/Bessima/gift-fulfillment/internal/models"
	"github.com/Bessima/gift-fulfillment/internal/repository"
	"go.uber.org/zap"
)

const maxSchedulerTick = time.Minute

// Scheduler enqueues the periodic jobs. Dedupe keys are derived from the interval bucket,
// so several replicas ticking at once still produce one job per interval.
type Scheduler struct {
	ledger          *Ledger
	jobs            repository.JobStorageRepositoryI
	orders          repository.OrderStorageRepositoryI
	fundsRetryEvery time.Duration
	syncEvery       time.Duration
	now             func() time.Time
}

func NewScheduler(ledger *Ledger, jobs repository.JobStorageRepositoryI, orders repository.OrderStorageRepositoryI, fundsRetryEvery, syncEvery time.Duration) *Scheduler {
	return &Scheduler{
		ledger:          ledger,
		jobs:            jobs,
		orders:          orders,
		fundsRetryEvery: fundsRetryEvery,
		syncEvery:       syncEvery,
		now:             time.Now,
	}
}

func bucketKey(kind models.JobKind, at time.Time, every time.Duration) string {
	return fmt.Sprintf("%s:%d", kind, at.Truncate(every).Unix())
}

// Tick re-queues abandoned jobs, enqueues the periodic work that is due and queues dispatch
// for confirmed orders that have none.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.now()
	var errs []error

	requeued, err := s.jobs.RequeueStale(ctx, now)
	if err != nil {
		errs = append(errs, err)
	} else if requeued > 0 {
		logger.Log.Info("abandoned jobs re-queued", zap.Int("count", requeued))
	}

	if s.fundsRetryEvery > 0 {
		key := bucketKey(models.JobFundsRetry, now, s.fundsRetryEvery)
		errs = append(errs, s.ledger.Enqueue(ctx, models.JobFundsRetry, "", key, nil, now))
	}
	if s.syncEvery > 0 {
		key := bucketKey(models.JobSync, now, s.syncEvery)
		errs = append(errs, s.ledger.Enqueue(ctx, models.JobSync, "", key, nil, now))
	}

	confirmed, err := s.orders.ListByStatus(ctx, []models.OrderStatus{models.StatusPaymentConfirmed}, 0)
	if err != nil {
		errs = append(errs, err)
	}
	for i := range confirmed {
		if confirmed[i].FulfillmentRequestID == "" {
			errs = append(errs, s.ledger.EnqueueDispatch(ctx, &confirmed[i]))
		}
	}

	return errors.Join(errs...)
}

func (s *Scheduler) interval() time.Duration {
	tick := maxSchedulerTick
	for _, every := range []time.Duration{s.fundsRetryEvery, s.syncEvery} {
		if every > 0 && every < tick {
			tick = every
		}
	}
	return tick
}

func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval())
	defer ticker.Stop()
	for {
		if err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			logger.Log.Warn("scheduler tick failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
