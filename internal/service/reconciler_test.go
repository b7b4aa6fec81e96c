package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Bessima/gift-fulfillment/internal/customerror"
	"github.com/Bessima/gift-fulfillment/internal/middlewares/logger"
	"github.com/Bessima/gift-fulfillment/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func (f *fixture) seedDispatched(t *testing.T, id string, status models.OrderStatus) *models.Order {
	t.Helper()
	f.seed(t, id, status, "40", testNow)
	order, err := f.storage.Orders.Update(context.Background(), id, func(o *models.Order) error {
		o.FulfillmentRequestID = "req-" + id
		return nil
	})
	require.NoError(t, err)
	return order
}

func report(requestID string, updates ...models.ProviderStatusUpdate) models.ProviderReport {
	return models.ProviderReport{RequestID: requestID, StatusUpdates: updates}
}

func update(eventType string, at time.Time) models.ProviderStatusUpdate {
	return models.ProviderStatusUpdate{Timestamp: at, Type: eventType, Message: eventType}
}

func providerEvents(order *models.Order) []models.TimelineEvent {
	var events []models.TimelineEvent
	for _, event := range order.Timeline {
		if event.Source == models.SourceProvider && !strings.HasPrefix(event.Type, "status.") {
			events = append(events, event)
		}
	}
	return events
}

func TestReconciler_DuplicateDeliveryIsIdempotent(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.seedDispatched(t, "o1", models.StatusProcessing)
	payload := report("req-o1", update("request.placed", testNow))

	first, err := f.services.Reconciler.Apply(context.Background(), payload)
	require.NoError(t, err)
	second, err := f.services.Reconciler.Apply(context.Background(), payload)
	require.NoError(t, err)

	assert.Len(t, providerEvents(first), 1)
	assert.Len(t, providerEvents(second), 1)
	assert.Equal(t, first.Timeline, second.Timeline)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, models.StatusProcessing, second.Status)
}

func TestReconciler_StatusNeverRegresses(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.seedDispatched(t, "o1", models.StatusProcessing)

	delivered, err := f.services.Reconciler.Apply(context.Background(),
		report("req-o1", update("shipment.delivered", testNow.Add(2*time.Hour))))
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, delivered.Status)

	late, err := f.services.Reconciler.Apply(context.Background(),
		report("req-o1", update("request.placed", testNow)))
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, late.Status)
	assert.Len(t, providerEvents(late), 2)
}

func TestReconciler_LatestUpdateDecidesStatus(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.seedDispatched(t, "o1", models.StatusProcessing)
	payload := report("req-o1",
		update("tracking.obtained", testNow.Add(time.Hour)),
		update("request.placed", testNow),
	)
	payload.MerchantOrderIDs = []models.MerchantOrderRef{{
		Merchant: "acme", MerchantOrderID: "A-1", TrackingURL: "https://track.example.com/A-1",
	}}

	order, err := f.services.Reconciler.Apply(context.Background(), payload)

	require.NoError(t, err)
	assert.Equal(t, models.StatusShipped, order.Status)
	require.Len(t, order.Tracking, 1)
	assert.Equal(t, "https://track.example.com/A-1", order.Tracking[0].TrackingURL)

	notifyJobs := f.jobs(models.JobNotify)
	require.Len(t, notifyJobs, 1)
	assert.Equal(t, "notify:o1:shipped", notifyJobs[0].DedupeKey)

	// redelivery does not queue a second notification
	_, err = f.services.Reconciler.Apply(context.Background(), payload)
	require.NoError(t, err)
	assert.Len(t, f.jobs(models.JobNotify), 1)
}

func TestReconciler_LateOlderReportKeepsNewerStatus(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.seedDispatched(t, "o1", models.StatusProcessing)

	shipped, err := f.services.Reconciler.Apply(context.Background(),
		report("req-o1", update("shipment.shipped", testNow.Add(2*time.Hour))))
	require.NoError(t, err)
	require.Equal(t, models.StatusShipped, shipped.Status)

	late, err := f.services.Reconciler.Apply(context.Background(),
		report("req-o1", update("request.failed", testNow.Add(time.Hour))))

	require.NoError(t, err)
	assert.Equal(t, models.StatusShipped, late.Status)
	events := providerEvents(late)
	require.Len(t, events, 2)
	assert.Equal(t, "request.failed", events[1].Type)

	// a failure newer than the shipment still applies
	failed, err := f.services.Reconciler.Apply(context.Background(),
		report("req-o1", update("request.failed", testNow.Add(3*time.Hour))))
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, failed.Status)
}

func TestReconciler_ConcurrentRedeliveries(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.seedDispatched(t, "o1", models.StatusProcessing)
	payload := report("req-o1",
		update("request.placed", testNow),
		update("shipment.shipped", testNow.Add(time.Hour)),
	)

	const deliveries = 16
	var wg sync.WaitGroup
	errs := make(chan error, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.services.Reconciler.Apply(context.Background(), payload)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	order := f.order(t, "o1")
	assert.Equal(t, models.StatusShipped, order.Status)
	events := providerEvents(order)
	require.Len(t, events, 2)
	assert.Equal(t, "request.placed", events[0].Type)
	assert.Equal(t, "shipment.shipped", events[1].Type)

	notifyJobs := f.jobs(models.JobNotify)
	require.Len(t, notifyJobs, 1)
	assert.Equal(t, "notify:o1:shipped", notifyJobs[0].DedupeKey)
}

func TestReconciler_ProviderFailureFailsOrder(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.seedDispatched(t, "o1", models.StatusProcessing)

	order, err := f.services.Reconciler.Apply(context.Background(), report("req-o1", update("request.failed", testNow)))

	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, order.Status)
	assert.Empty(t, f.jobs(models.JobNotify))
}

func TestReconciler_UnknownEventIsObservable(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	previous := logger.Log
	logger.Log = zap.New(core)
	defer func() { logger.Log = previous }()

	f := newFixture(t, fixtureOptions{})
	f.seedDispatched(t, "o1", models.StatusProcessing)

	order, err := f.services.Reconciler.Apply(context.Background(), report("req-o1", update("refund.issued", testNow)))

	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, order.Status)
	events := providerEvents(order)
	require.Len(t, events, 1)
	assert.Equal(t, "refund.issued", events[0].Type)

	warnings := logs.FilterMessage("unknown provider event, defaulting to processing").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "refund.issued", warnings[0].ContextMap()["type"])
}

func TestReconciler_RejectsInvalidReport(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	tests := []struct {
		name   string
		report models.ProviderReport
	}{
		{name: "no request id", report: report("", update("request.placed", testNow))},
		{name: "no updates", report: report("req-1")},
		{name: "update without type", report: report("req-1", update("", testNow))},
		{name: "update without timestamp", report: report("req-1", update("request.placed", time.Time{}))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.services.Reconciler.Apply(context.Background(), tt.report)
			assert.True(t, customerror.IsValidation(err), "got %v", err)
		})
	}
}

func TestReconciler_UnknownRequest(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	_, err := f.services.Reconciler.Apply(context.Background(), report("req-missing", update("request.placed", testNow)))

	assert.True(t, customerror.IsNotFound(err))
}

func TestReconciler_SyncPollsProvider(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.seedDispatched(t, "o1", models.StatusProcessing)
	f.seedDispatched(t, "o2", models.StatusDelivered)
	polled := report("req-o1", update("shipment.shipped", testNow))
	f.fulfillment.On("GetStatus", mock.Anything, "req-o1").Return(&polled, nil).Once()

	synced, err := f.services.Reconciler.SyncActive(context.Background(), 0)

	require.NoError(t, err)
	assert.Equal(t, 1, synced)
	assert.Equal(t, models.StatusShipped, f.order(t, "o1").Status)
	f.fulfillment.AssertNotCalled(t, "GetStatus", mock.Anything, "req-o2")
}
