package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/Bessima/gift-fulfillment/internal/clients/fulfillment"
	"github.com/Bessima/gift-fulfillment/internal/clients/notification"
	"github.com/Bessima/gift-fulfillment/internal/clients/payment"
	"github.com/Bessima/gift-fulfillment/internal/config"
	"github.com/Bessima/gift-fulfillment/internal/config/db"
	"github.com/Bessima/gift-fulfillment/internal/handlers"
	"github.com/Bessima/gift-fulfillment/internal/middlewares/logger"
	"github.com/Bessima/gift-fulfillment/internal/repository"
	"github.com/Bessima/gift-fulfillment/internal/repository/memory"
	"github.com/Bessima/gift-fulfillment/internal/service"
	"go.uber.org/zap"
)

func main() {
	err := initLogger("info")
	if err != nil {
		logger.Log.Warn(err.Error())
	}

	if err := run(); err != nil {
		panic(err)
	}
}

func run() error {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conf := config.InitConfig()
	if conf.LogLevel != "" {
		if err := initLogger(conf.LogLevel); err != nil {
			logger.Log.Warn("invalid log level", zap.String("level", conf.LogLevel), zap.Error(err))
		}
	}

	repos, closeStorage, err := openStorage(rootCtx, conf.DatabaseDNS)
	if err != nil {
		return err
	}
	defer closeStorage()

	if _, err = service.EnsureFundingAccount(rootCtx, repos.Funding, conf.FundingAccountID,
		conf.InitialBalanceAmount(), conf.SafetyMarginAmount()); err != nil {
		return err
	}
	if err = service.BootstrapAdmin(rootCtx, repos.Operators, conf.AdminUsername, conf.AdminPassword); err != nil {
		return err
	}

	workerConfig := service.DefaultWorkerConfig
	if conf.WorkerCount > 0 {
		workerConfig.Workers = conf.WorkerCount
	}
	services := service.NewServices(repos, newClients(conf), service.Options{
		FundingAccountID:    conf.FundingAccountID,
		CostBuffer:          conf.Buffer(),
		FundsRetryInterval:  conf.FundsRetryInterval,
		SyncInterval:        conf.SyncInterval,
		FundsRetryMaxOrders: conf.FundsRetryMaxOrders,
		Worker:              workerConfig,
	})
	services.Start(rootCtx)

	serverService := service.NewServerService(rootCtx, conf.Address, services, conf.WebhookToken)
	serverService.SetRouter(&handlers.JWTConfig{
		SecretKey:       conf.JWTSecret,
		AccessTokenTTL:  config.AccessTokenTTL,
		RefreshTokenTTL: config.RefreshTokenTTL,
	})

	serverErr := make(chan error, 1)
	logger.Log.Info("Running Server on", zap.String("address", conf.Address))
	go serverService.RunServer(&serverErr)

	// Ждем сигнал завершения или ошибку сервера
	select {
	case <-rootCtx.Done():
		logger.Log.Info("Received shutdown signal, shutting down.")
	case err = <-serverErr:
		logger.Log.Error("Server error", zap.Error(err))
	}

	if shutdownErr := serverService.Shutdown(); shutdownErr != nil {
		logger.Log.Error("Server shutdown error", zap.Error(shutdownErr))
	}

	return err
}

// openStorage подключает PostgreSQL, а без DSN работает в памяти.
func openStorage(ctx context.Context, databaseDNS string) (repository.Repositories, func(), error) {
	if databaseDNS == "" {
		logger.Log.Warn("DATABASE_URI is not set, using in-memory storage")
		storage := memory.NewStorage()
		return storage.Repositories(), func() { _ = storage.Close() }, nil
	}

	dbObj, err := db.NewDB(ctx, databaseDNS)
	if err != nil {
		return repository.Repositories{}, nil, err
	}
	storage := repository.NewStorage(dbObj)
	return storage.Repositories(), func() {
		if closeErr := storage.Close(); closeErr != nil {
			logger.Log.Warn("closing storage", zap.Error(closeErr))
		}
	}, nil
}

func newClients(conf *config.Config) service.Clients {
	clients := service.Clients{
		Payment:     payment.NewPaymentClient(conf.PaymentAddress),
		Fulfillment: fulfillment.NewFulfillmentClient(conf.FulfillmentAddress),
	}
	if conf.NotificationAddress == "" {
		clients.Notification = notification.LogNotifier{}
	} else {
		clients.Notification = notification.NewNotificationClient(conf.NotificationAddress)
	}
	return clients
}

func initLogger(level string) error {
	return logger.Initialize(level)
}
