package fulfillment

import (
	"context"
	"net/http"
	"net/url"

	"github.com/Bessima/gift-fulfillment/internal/clients/transport"
	"github.com/Bessima/gift-fulfillment/internal/middlewares/logger"
	"github.com/Bessima/gift-fulfillment/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type SubmitRequest struct {
	OrderID         string                 `json:"order_id"`
	LineItems       []models.LineItem      `json:"line_items"`
	ShippingAddress models.ShippingAddress `json:"shipping_address"`
	EstimatedCost   decimal.Decimal        `json:"estimated_cost"`
	Currency        string                 `json:"currency"`
}

type SubmitResponse struct {
	RequestID string `json:"request_id"`
}

type BalanceResponse struct {
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
}

type FulfillmentClientI interface {
	Submit(ctx context.Context, idempotencyKey string, req SubmitRequest) (*SubmitResponse, error)
	GetStatus(ctx context.Context, requestID string) (*models.ProviderReport, error)
	GetBalance(ctx context.Context) (decimal.Decimal, error)
	Cancel(ctx context.Context, requestID string) error
}

type FulfillmentClient struct {
	transport *transport.Client
}

func NewFulfillmentClient(address string) *FulfillmentClient {
	return &FulfillmentClient{transport: transport.NewClient("fulfillment", address)}
}

// Submit places a fulfillment request. The provider returns the original request for a
// repeated idempotency key.
func (client *FulfillmentClient) Submit(ctx context.Context, idempotencyKey string, req SubmitRequest) (*SubmitResponse, error) {
	var answer SubmitResponse
	err := client.transport.Do(ctx, transport.Request{
		Method:         http.MethodPost,
		Path:           "/requests",
		IdempotencyKey: idempotencyKey,
		Body:           req,
		Out:            &answer,
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("Successful fulfillment request for order",
		zap.String("order_id", req.OrderID), zap.String("request_id", answer.RequestID))
	return &answer, nil
}

func (client *FulfillmentClient) GetStatus(ctx context.Context, requestID string) (*models.ProviderReport, error) {
	var report models.ProviderReport
	err := client.transport.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   "/requests/" + url.PathEscape(requestID),
		Out:    &report,
	})
	if err != nil {
		return nil, err
	}
	if report.RequestID == "" {
		report.RequestID = requestID
	}
	return &report, nil
}

func (client *FulfillmentClient) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	var answer BalanceResponse
	err := client.transport.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   "/balance",
		Out:    &answer,
	})
	if err != nil {
		return decimal.Zero, err
	}
	return answer.Balance, nil
}

func (client *FulfillmentClient) Cancel(ctx context.Context, requestID string) error {
	return client.transport.Do(ctx, transport.Request{
		Method:         http.MethodPost,
		Path:           "/requests/" + url.PathEscape(requestID) + "/cancel",
		IdempotencyKey: "cancel-" + requestID,
	})
}
