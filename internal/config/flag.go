package config

import (
	"flag"
	"time"
)

const (
	defaultDBDNS            = ""
	defaultFundingAccountID = "zma"
)

type Flags struct {
	address string

	dbDNS               string
	paymentAddress      string
	fulfillmentAddress  string
	notificationAddress string

	jwtSecret    string
	webhookToken string

	fundingAccountID string
	costBuffer       float64
	safetyMargin     string
	initialBalance   string

	fundsRetryInterval  time.Duration
	syncInterval        time.Duration
	workerCount         int
	fundsRetryMaxOrders int

	logLevel string
}

func (flags *Flags) Init() {
	flag.StringVar(&flags.address, "a", ":8080", "Address and port to run server")

	flag.StringVar(&flags.dbDNS, "d", defaultDBDNS, "db dns")
	flag.StringVar(&flags.paymentAddress, "p", "", "payment processor address")
	flag.StringVar(&flags.fulfillmentAddress, "f", "", "fulfillment provider address")
	flag.StringVar(&flags.notificationAddress, "n", "", "notification service address")

	flag.StringVar(&flags.jwtSecret, "s", "change-me", "jwt secret key")
	flag.StringVar(&flags.webhookToken, "w", "", "shared token expected in X-Webhook-Token")

	flag.StringVar(&flags.fundingAccountID, "account", defaultFundingAccountID, "funding account id")
	flag.Float64Var(&flags.costBuffer, "buffer", 0.1, "fraction added to the estimated fulfillment cost")
	flag.StringVar(&flags.safetyMargin, "margin", "0", "amount kept on the funding account")
	flag.StringVar(&flags.initialBalance, "balance", "0", "balance for a newly created funding account")

	flag.DurationVar(&flags.fundsRetryInterval, "funds-retry", 15*time.Minute, "interval between awaiting_funds batches")
	flag.DurationVar(&flags.syncInterval, "sync", 5*time.Minute, "interval between provider status polls")
	flag.IntVar(&flags.workerCount, "workers", 4, "number of job workers")
	flag.IntVar(&flags.fundsRetryMaxOrders, "funds-retry-max", 50, "max orders per awaiting_funds batch")

	flag.StringVar(&flags.logLevel, "l", "info", "log level")

	flag.Parse()
}
