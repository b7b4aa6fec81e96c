package payment

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Bessima/gift-fulfillment/internal/clients/transport"
	"github.com/Bessima/gift-fulfillment/internal/middlewares/logger"
	"github.com/Bessima/gift-fulfillment/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type IntentStatus string

const (
	IntentRequiresCapture IntentStatus = "requires_capture"
	IntentSucceeded       IntentStatus = "succeeded"
	IntentCanceled        IntentStatus = "canceled"
)

// Intent is the processor's view of one authorization. Amounts are in minor units.
type Intent struct {
	ID             string       `json:"id"`
	Status         IntentStatus `json:"status"`
	Amount         int64        `json:"amount"`
	AmountReceived int64        `json:"amount_received"`
	Currency       string       `json:"currency"`
	Metadata       Metadata     `json:"metadata"`
}

// Metadata is what checkout stored on the intent; recovery rebuilds orders from it.
type Metadata struct {
	LineItems       []models.LineItem      `json:"line_items"`
	ShippingAddress models.ShippingAddress `json:"shipping_address"`
	GroupGiftID     string                 `json:"group_gift_id,omitempty"`
}

func (intent *Intent) AmountDecimal() decimal.Decimal {
	return models.FromCents(intent.Amount)
}

func (intent *Intent) ReceivedDecimal() decimal.Decimal {
	return models.FromCents(intent.AmountReceived)
}

type PaymentClientI interface {
	Capture(ctx context.Context, paymentRef string, amount decimal.Decimal) (*Intent, error)
	Void(ctx context.Context, paymentRef string) error
	Refund(ctx context.Context, paymentRef string, amount decimal.Decimal) error
	Retrieve(ctx context.Context, paymentRef string) (*Intent, error)
}

type PaymentClient struct {
	transport *transport.Client
}

func NewPaymentClient(address string) *PaymentClient {
	return &PaymentClient{transport: transport.NewClient("payment", address)}
}

func intentPath(paymentRef string, suffix string) string {
	return fmt.Sprintf("/v1/payment_intents/%s%s", url.PathEscape(paymentRef), suffix)
}

func (client *PaymentClient) Capture(ctx context.Context, paymentRef string, amount decimal.Decimal) (*Intent, error) {
	var intent Intent
	err := client.transport.Do(ctx, transport.Request{
		Method:         http.MethodPost,
		Path:           intentPath(paymentRef, "/capture"),
		IdempotencyKey: "capture-" + paymentRef,
		Body:           map[string]int64{"amount_to_capture": models.ToCents(amount)},
		Out:            &intent,
	})
	if err != nil {
		return nil, err
	}
	logger.Log.Info("payment captured", zap.String("payment_ref", paymentRef), zap.String("amount", amount.StringFixed(2)))
	return &intent, nil
}

func (client *PaymentClient) Void(ctx context.Context, paymentRef string) error {
	return client.transport.Do(ctx, transport.Request{
		Method:         http.MethodPost,
		Path:           intentPath(paymentRef, "/cancel"),
		IdempotencyKey: "void-" + paymentRef,
	})
}

func (client *PaymentClient) Refund(ctx context.Context, paymentRef string, amount decimal.Decimal) error {
	return client.transport.Do(ctx, transport.Request{
		Method:         http.MethodPost,
		Path:           "/v1/refunds",
		IdempotencyKey: "refund-" + paymentRef,
		Body: map[string]any{
			"payment_intent": paymentRef,
			"amount":         models.ToCents(amount),
		},
	})
}

func (client *PaymentClient) Retrieve(ctx context.Context, paymentRef string) (*Intent, error) {
	var intent Intent
	err := client.transport.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   intentPath(paymentRef, ""),
		Out:    &intent,
	})
	if err != nil {
		return nil, err
	}
	return &intent, nil
}
