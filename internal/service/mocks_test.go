package service

import (
	"context"
	"testing"
	"time"

	"github.com/Bessima/gift-fulfillment/internal/clients/fulfillment"
	"github.com/Bessima/gift-fulfillment/internal/clients/notification"
	"github.com/Bessima/gift-fulfillment/internal/clients/payment"
	"github.com/Bessima/gift-fulfillment/internal/models"
	"github.com/Bessima/gift-fulfillment/internal/repository/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockPaymentClient - мок для PaymentClient
type MockPaymentClient struct {
	mock.Mock
}

func (m *MockPaymentClient) Capture(ctx context.Context, paymentRef string, amount decimal.Decimal) (*payment.Intent, error) {
	args := m.Called(ctx, paymentRef, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Intent), args.Error(1)
}

func (m *MockPaymentClient) Void(ctx context.Context, paymentRef string) error {
	args := m.Called(ctx, paymentRef)
	return args.Error(0)
}

func (m *MockPaymentClient) Refund(ctx context.Context, paymentRef string, amount decimal.Decimal) error {
	args := m.Called(ctx, paymentRef, amount)
	return args.Error(0)
}

func (m *MockPaymentClient) Retrieve(ctx context.Context, paymentRef string) (*payment.Intent, error) {
	args := m.Called(ctx, paymentRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Intent), args.Error(1)
}

// MockFulfillmentClient - мок для FulfillmentClient
type MockFulfillmentClient struct {
	mock.Mock
}

func (m *MockFulfillmentClient) Submit(ctx context.Context, idempotencyKey string, req fulfillment.SubmitRequest) (*fulfillment.SubmitResponse, error) {
	args := m.Called(ctx, idempotencyKey, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fulfillment.SubmitResponse), args.Error(1)
}

func (m *MockFulfillmentClient) GetStatus(ctx context.Context, requestID string) (*models.ProviderReport, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProviderReport), args.Error(1)
}

func (m *MockFulfillmentClient) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	args := m.Called(ctx)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockFulfillmentClient) Cancel(ctx context.Context, requestID string) error {
	args := m.Called(ctx, requestID)
	return args.Error(0)
}

// MockNotificationClient - мок для NotificationClient
type MockNotificationClient struct {
	mock.Mock
}

func (m *MockNotificationClient) Notify(ctx context.Context, key string, n notification.Notification) error {
	args := m.Called(ctx, key, n)
	return args.Error(0)
}

const testAccount = "zma"

var (
	testNow    = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rootAdmin  = &models.Operator{ID: 1, Username: "root", Role: models.RoleAdmin}
	checkoutOp = &models.Operator{ID: 2, Username: "checkout", Role: models.RoleService}
)

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sameAmount(want decimal.Decimal) any {
	return mock.MatchedBy(func(got decimal.Decimal) bool { return got.Equal(want) })
}

type fixture struct {
	storage     *memory.Storage
	payment     *MockPaymentClient
	fulfillment *MockFulfillmentClient
	notifier    *MockNotificationClient
	services    *Services
}

type fixtureOptions struct {
	balance string
	margin  string
	buffer  string
}

func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()
	if opts.balance == "" {
		opts.balance = "1000"
	}
	if opts.margin == "" {
		opts.margin = "0"
	}
	if opts.buffer == "" {
		opts.buffer = "0"
	}

	storage := memory.NewStorage()
	_, err := EnsureFundingAccount(context.Background(), storage.Funding, testAccount, amount(opts.balance), amount(opts.margin))
	require.NoError(t, err)

	f := &fixture{
		storage:     storage,
		payment:     new(MockPaymentClient),
		fulfillment: new(MockFulfillmentClient),
		notifier:    new(MockNotificationClient),
	}
	f.services = NewServices(storage.Repositories(), Clients{
		Payment:      f.payment,
		Fulfillment:  f.fulfillment,
		Notification: f.notifier,
	}, Options{
		FundingAccountID:    testAccount,
		CostBuffer:          amount(opts.buffer),
		FundsRetryInterval:  time.Hour,
		SyncInterval:        5 * time.Minute,
		FundsRetryMaxOrders: 50,
		Worker:              WorkerConfig{Workers: 1, BatchSize: 10, Backoff: time.Second},
	})
	return f
}

// seed stores an order directly, bypassing capture.
func (f *fixture) seed(t *testing.T, id string, status models.OrderStatus, total string, createdAt time.Time) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:              id,
		Status:          status,
		TotalAmount:     amount(total),
		Currency:        "USD",
		LineItems:       []models.LineItem{{ProductID: "sku-1", Quantity: 1, Price: amount(total)}},
		ShippingAddress: models.ShippingAddress{FirstName: "Ann", LastName: "Lee", AddressLine1: "1 Main St", City: "Austin", ZipCode: "78701", Country: "US"},
		PaymentRef:      "pi_" + id,
		PaymentStatus:   models.PaymentPaid,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
	require.NoError(t, f.storage.Orders.Create(context.Background(), order))
	return order
}

func (f *fixture) order(t *testing.T, id string) *models.Order {
	t.Helper()
	order, err := f.storage.Orders.GetByID(context.Background(), id)
	require.NoError(t, err)
	return order
}

func (f *fixture) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	account, err := f.storage.Funding.Get(context.Background(), testAccount)
	require.NoError(t, err)
	return account.Balance
}

func (f *fixture) expectSubmit(orderID, requestID string) *mock.Call {
	return f.fulfillment.On("Submit", mock.Anything, mock.Anything,
		mock.MatchedBy(func(req fulfillment.SubmitRequest) bool { return req.OrderID == orderID })).
		Return(&fulfillment.SubmitResponse{RequestID: requestID}, nil)
}

func (f *fixture) jobs(kind models.JobKind) []models.Job {
	var jobs []models.Job
	for _, job := range f.storage.Jobs.Jobs() {
		if job.Kind == kind {
			jobs = append(jobs, job)
		}
	}
	return jobs
}
