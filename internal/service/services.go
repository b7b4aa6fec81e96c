package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Bessima/gift-fulfillment/internal/clients/fulfillment"
	"github.com/Bessima/gift-fulfillment/internal/clients/notification"
	"github.com/Bessima/gift-fulfillment/internal/clients/payment"
	"github.com/Bessima/gift-fulfillment/internal/customerror"
	"github.com/Bessima/gift-fulfillment/internal/middlewares/logger"
	"github.com/Bessima/gift-fulfillment/internal/models"
	"github.com/Bessima/gift-fulfillment/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Clients struct {
	Payment      payment.PaymentClientI
	Fulfillment  fulfillment.FulfillmentClientI
	Notification notification.NotificationClientI
}

type Options struct {
	FundingAccountID    string
	CostBuffer          decimal.Decimal
	FundsRetryInterval  time.Duration
	SyncInterval        time.Duration
	FundsRetryMaxOrders int
	Worker              WorkerConfig
}

// Services is the wired engine: every component shares one ledger and one set of repositories.
type Services struct {
	Repositories repository.Repositories
	Ledger       *Ledger
	Capture      *CaptureCoordinator
	Dispatcher   *Dispatcher
	Admission    *AdmissionController
	Reconciler   *Reconciler
	Admin        *AdminService
	Worker       *Worker
	Scheduler    *Scheduler

	notifier            notification.NotificationClientI
	fundsRetryMaxOrders int
}

func NewServices(repos repository.Repositories, clients Clients, opts Options) *Services {
	ledger := NewLedger(repos.Orders, repos.Jobs)
	capture := NewCaptureCoordinator(ledger, repos.Orders, repos.Contributions, clients.Payment)
	dispatcher := NewDispatcher(ledger, repos.Contributions, clients.Fulfillment)
	admission := NewAdmissionController(ledger, repos.Orders, repos.Funding, dispatcher, clients.Fulfillment, AdmissionConfig{
		AccountID: opts.FundingAccountID,
		Buffer:    opts.CostBuffer,
		HoldFor:   opts.FundsRetryInterval,
	})

	services := &Services{
		Repositories:        repos,
		Ledger:              ledger,
		Capture:             capture,
		Dispatcher:          dispatcher,
		Admission:           admission,
		Reconciler:          NewReconciler(ledger, repos.Orders, clients.Fulfillment),
		Admin:               NewAdminService(ledger, repos.Orders, repos.Audit, capture, admission, clients.Payment, clients.Fulfillment, opts.FundsRetryMaxOrders),
		Worker:              NewWorker(repos.Jobs, opts.Worker),
		Scheduler:           NewScheduler(ledger, repos.Jobs, repos.Orders, opts.FundsRetryInterval, opts.SyncInterval),
		notifier:            clients.Notification,
		fundsRetryMaxOrders: opts.FundsRetryMaxOrders,
	}
	services.Worker.Handle(models.JobDispatch, services.handleDispatch)
	services.Worker.Handle(models.JobSync, services.handleSync)
	services.Worker.Handle(models.JobNotify, services.handleNotify)
	services.Worker.Handle(models.JobFundsRetry, services.handleFundsRetry)
	return services
}

// Start запускает пул воркеров и планировщик до отмены ctx.
func (s *Services) Start(ctx context.Context) {
	go s.Worker.Run(ctx)
	go s.Scheduler.Run(ctx)
}

func (s *Services) handleDispatch(ctx context.Context, job models.Job) error {
	_, err := s.Admission.AdmitAndDispatch(ctx, job.OrderID)
	if err == nil || customerror.IsInsufficientFunds(err) {
		return nil
	}

	order, getErr := s.Ledger.Get(ctx, job.OrderID)
	if getErr == nil && order.Status != models.StatusPaymentConfirmed && order.Status != models.StatusAwaitingFunds {
		logger.Log.Warn("dispatch job finished without dispatch",
			zap.String("order_id", job.OrderID), zap.String("status", string(order.Status)), zap.Error(err))
		return nil
	}
	return err
}

func (s *Services) handleSync(ctx context.Context, job models.Job) error {
	if job.OrderID != "" {
		_, err := s.Reconciler.Sync(ctx, job.OrderID)
		return err
	}
	synced, err := s.Reconciler.SyncActive(ctx, 0)
	logger.Log.Debug("status sync finished", zap.Int("orders", synced))
	return err
}

func (s *Services) handleNotify(ctx context.Context, job models.Job) error {
	var payload models.NotifyPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode notify payload: %w", err)
	}
	return s.notifier.Notify(ctx, job.DedupeKey, notification.Notification{
		OrderID:  job.OrderID,
		Status:   payload.Status,
		Tracking: payload.Tracking,
	})
}

func (s *Services) handleFundsRetry(ctx context.Context, _ models.Job) error {
	_, err := s.Admission.RetryAwaitingFunds(ctx, s.fundsRetryMaxOrders)
	return err
}
