package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Bessima/gift-fulfillment/internal/middlewares/logger"
	"github.com/Bessima/gift-fulfillment/internal/models"
	"github.com/Bessima/gift-fulfillment/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ledger is the single writer of order status. Every status change goes through
// models.Order.Transition inside a locked repository update.
type Ledger struct {
	orders repository.OrderStorageRepositoryI
	jobs   repository.JobStorageRepositoryI
	now    func() time.Time
}

func NewLedger(orders repository.OrderStorageRepositoryI, jobs repository.JobStorageRepositoryI) *Ledger {
	return &Ledger{orders: orders, jobs: jobs, now: time.Now}
}

func (l *Ledger) Get(ctx context.Context, orderID string) (*models.Order, error) {
	return l.orders.GetByID(ctx, orderID)
}

// Transition moves the order to target. Missing edges and admin-only edges taken by a
// non-admin cause fail with a ConflictError and leave the order untouched.
func (l *Ledger) Transition(ctx context.Context, orderID string, target models.OrderStatus, cause models.Cause) (*models.Order, error) {
	if cause.At.IsZero() {
		cause.At = l.now()
	}
	return l.orders.Update(ctx, orderID, func(order *models.Order) error {
		if err := order.Transition(target, cause); err != nil {
			return err
		}
		order.UpdatedAt = cause.At
		return nil
	})
}

// Update применяет fn к заказу под блокировкой репозитория.
func (l *Ledger) Update(ctx context.Context, orderID string, fn func(order *models.Order) error) (*models.Order, error) {
	return l.orders.Update(ctx, orderID, fn)
}

// Enqueue stores a job for the worker pool. Work with an existing dedupe key is not
// enqueued twice.
func (l *Ledger) Enqueue(ctx context.Context, kind models.JobKind, orderID string, dedupeKey string, payload any, runAt time.Time) error {
	now := l.now()
	if runAt.IsZero() {
		runAt = now
	}
	job := models.Job{
		ID:          uuid.NewString(),
		Kind:        kind,
		OrderID:     orderID,
		DedupeKey:   dedupeKey,
		Status:      models.JobPending,
		MaxAttempts: models.DefaultJobMaxAttempts,
		RunAt:       runAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s job payload: %w", kind, err)
		}
		job.Payload = raw
	}

	created, err := l.jobs.Enqueue(ctx, job)
	if err != nil {
		return fmt.Errorf("enqueue %s job: %w", kind, err)
	}
	if created {
		logger.Log.Debug("job enqueued", zap.String("kind", string(kind)), zap.String("dedupe_key", dedupeKey))
	}
	return nil
}

// EnqueueDispatch ставит в очередь допуск и отправку заказа для текущего поколения отправки.
func (l *Ledger) EnqueueDispatch(ctx context.Context, order *models.Order) error {
	return l.Enqueue(ctx, models.JobDispatch, order.ID, "dispatch:"+order.DispatchKey(), nil, time.Time{})
}

// EnqueueNotify ставит в очередь одно уведомление покупателю на каждую пару заказ-статус.
func (l *Ledger) EnqueueNotify(ctx context.Context, order *models.Order) error {
	key := fmt.Sprintf("notify:%s:%s", order.ID, order.Status)
	return l.Enqueue(ctx, models.JobNotify, order.ID, key, models.NotifyPayload{
		Status:   order.Status,
		Tracking: order.Tracking,
	}, time.Time{})
}
