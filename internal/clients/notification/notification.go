package notification

import (
	"context"
	"net/http"

	"github.com/Bessima/gift-fulfillment/internal/clients/transport"
	"github.com/Bessima/gift-fulfillment/internal/middlewares/logger"
	"github.com/Bessima/gift-fulfillment/internal/models"
	"go.uber.org/zap"
)

type Notification struct {
	OrderID  string                `json:"order_id"`
	Status   models.OrderStatus    `json:"status"`
	Tracking []models.TrackingInfo `json:"tracking,omitempty"`
}

type NotificationClientI interface {
	Notify(ctx context.Context, key string, notification Notification) error
}

type NotificationClient struct {
	transport *transport.Client
}

func NewNotificationClient(address string) *NotificationClient {
	return &NotificationClient{transport: transport.NewClient("notification", address)}
}

// Notify sends one status notification; key deduplicates redeliveries on the receiving side.
func (client *NotificationClient) Notify(ctx context.Context, key string, notification Notification) error {
	return client.transport.Do(ctx, transport.Request{
		Method:         http.MethodPost,
		Path:           "/notifications",
		IdempotencyKey: key,
		Body:           notification,
	})
}

// LogNotifier is used when no notification service is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, key string, notification Notification) error {
	logger.Log.Info("order notification",
		zap.String("key", key),
		zap.String("order_id", notification.OrderID),
		zap.String("status", string(notification.Status)),
		zap.Int("tracking", len(notification.Tracking)),
	)
	return nil
}
