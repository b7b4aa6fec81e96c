package config

import (
	"time"

	"github.com/Bessima/gift-fulfillment/internal/middlewares/logger"
	"github.com/caarlos0/env"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	AccessTokenTTL  = 15 * time.Minute
	RefreshTokenTTL = 7 * 24 * time.Hour
)

type Config struct {
	Address string `env:"RUN_ADDRESS"`

	DatabaseDNS         string `env:"DATABASE_URI"`
	PaymentAddress      string `env:"PAYMENT_ADDRESS"`
	FulfillmentAddress  string `env:"FULFILLMENT_ADDRESS"`
	NotificationAddress string `env:"NOTIFICATION_ADDRESS"`

	JWTSecret    string `env:"JWT_SECRET"`
	WebhookToken string `env:"WEBHOOK_TOKEN"`

	FundingAccountID string  `env:"FUNDING_ACCOUNT_ID"`
	CostBuffer       float64 `env:"COST_BUFFER"`
	SafetyMargin     string  `env:"SAFETY_MARGIN"`
	InitialBalance   string  `env:"INITIAL_BALANCE"`

	FundsRetryInterval  time.Duration `env:"FUNDS_RETRY_INTERVAL"`
	SyncInterval        time.Duration `env:"SYNC_INTERVAL"`
	WorkerCount         int           `env:"WORKER_COUNT"`
	FundsRetryMaxOrders int           `env:"FUNDS_RETRY_MAX_ORDERS"`

	AdminUsername string `env:"ADMIN_USERNAME"`
	AdminPassword string `env:"ADMIN_PASSWORD"`

	LogLevel string `env:"LOG_LEVEL"`
}

func InitConfig() *Config {
	flags := Flags{}
	flags.Init()

	cfg := Config{
		Address:             flags.address,
		DatabaseDNS:         flags.dbDNS,
		PaymentAddress:      flags.paymentAddress,
		FulfillmentAddress:  flags.fulfillmentAddress,
		NotificationAddress: flags.notificationAddress,
		JWTSecret:           flags.jwtSecret,
		WebhookToken:        flags.webhookToken,
		FundingAccountID:    flags.fundingAccountID,
		CostBuffer:          flags.costBuffer,
		SafetyMargin:        flags.safetyMargin,
		InitialBalance:      flags.initialBalance,
		FundsRetryInterval:  flags.fundsRetryInterval,
		SyncInterval:        flags.syncInterval,
		WorkerCount:         flags.workerCount,
		FundsRetryMaxOrders: flags.fundsRetryMaxOrders,
		LogLevel:            flags.logLevel,
	}
	cfg.parseEnv()

	return &cfg
}

func (cfg *Config) parseEnv() {
	err := env.Parse(cfg)
	if err != nil {
		logger.Log.Warn("Getting an error while parsing the configuration", zap.String("err", err.Error()))
	}
}

// Buffer returns the cost buffer as a decimal fraction.
func (cfg *Config) Buffer() decimal.Decimal {
	return decimal.NewFromFloat(cfg.CostBuffer)
}

func (cfg *Config) SafetyMarginAmount() decimal.Decimal {
	return parseAmount("SAFETY_MARGIN", cfg.SafetyMargin)
}

func (cfg *Config) InitialBalanceAmount() decimal.Decimal {
	return parseAmount("INITIAL_BALANCE", cfg.InitialBalance)
}

func parseAmount(name, raw string) decimal.Decimal {
	if raw == "" {
		return decimal.Zero
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		logger.Log.Warn("Invalid amount in configuration, using 0", zap.String("name", name), zap.String("value", raw))
		return decimal.Zero
	}
	return amount
}
