package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Bessima/gift-fulfillment/internal/customerror"
	"github.com/Bessima/gift-fulfillment/internal/models"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var orderColumnNames = []string{
	"id", "status", "funding_status", "funding_hold_reason", "expected_funding_date", "fulfillment_request_id",
	"retry_count", "total_amount", "currency", "line_items", "shipping_address", "tracking", "payment_ref",
	"payment_status", "group_gift_id", "needs_review", "notes", "created_at", "updated_at",
}

var timelineColumnNames = []string{"event_id", "type", "timestamp", "source", "message", "data"}

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func addOrderRow(rows *pgxmock.Rows, id string, status models.OrderStatus, requestID *string) *pgxmock.Rows {
	return rows.AddRow(
		id, status, models.FundingNone, "", (*time.Time)(nil), requestID,
		0, int64(10050), "USD", []byte(`[{"product_id":"p1","quantity":1,"price":"100.5"}]`),
		[]byte(`{"first_name":"Ann","country":"US"}`), []byte(`[]`), "pi_"+id,
		models.PaymentPaid, "", false, "", testNow, testNow,
	)
}

func TestOrderRepository_Create_Success(t *testing.T) {
	// Arrange
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepository(NewTestDB(mock))

	order := &models.Order{
		ID:            "order-1",
		Status:        models.StatusCreated,
		TotalAmount:   decimal.RequireFromString("100.50"),
		Currency:      "USD",
		PaymentRef:    "pi_1",
		PaymentStatus: models.PaymentAuthorized,
		CreatedAt:     testNow,
		UpdatedAt:     testNow,
	}
	order.Record("order.created", models.SourceMerchant, testNow, "", nil)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WithArgs(
			"order-1", models.StatusCreated, models.FundingNone, "", pgxmock.AnyArg(), pgxmock.AnyArg(), 0,
			int64(10050), "USD", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "pi_1",
			models.PaymentAuthorized, "", false, "", testNow, testNow,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO timeline_events").
		WithArgs("order-1", order.Timeline[0].ID, "order.created", testNow, models.SourceMerchant, "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	// Act
	err = repo.Create(context.Background(), order)

	// Assert
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_Create_DuplicatePaymentRef(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepository(NewTestDB(mock))
	order := &models.Order{ID: "order-1", Status: models.StatusCreated, PaymentRef: "pi_1"}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
	mock.ExpectRollback()

	err = repo.Create(context.Background(), order)

	assert.True(t, customerror.IsConflict(err))
	assert.Contains(t, err.Error(), "pi_1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_GetByID_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepository(NewTestDB(mock))
	requestID := "req-1"

	mock.ExpectQuery("SELECT (.+) FROM orders WHERE id").
		WithArgs("order-1").
		WillReturnRows(addOrderRow(pgxmock.NewRows(orderColumnNames), "order-1", models.StatusProcessing, &requestID))
	mock.ExpectQuery("SELECT (.+) FROM timeline_events WHERE order_id").
		WithArgs("order-1").
		WillReturnRows(pgxmock.NewRows(timelineColumnNames).
			AddRow("request.placed:2026-03-01T10:00:00Z", "request.placed", testNow, models.SourceProvider, "", []byte(nil)))

	order, err := repo.GetByID(context.Background(), "order-1")

	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, order.Status)
	assert.Equal(t, "req-1", order.FulfillmentRequestID)
	assert.True(t, decimal.RequireFromString("100.50").Equal(order.TotalAmount))
	require.Len(t, order.LineItems, 1)
	assert.Equal(t, "p1", order.LineItems[0].ProductID)
	assert.Equal(t, "Ann", order.ShippingAddress.FirstName)
	require.Len(t, order.Timeline, 1)
	assert.Equal(t, "request.placed", order.Timeline[0].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepository(NewTestDB(mock))

	mock.ExpectQuery("SELECT (.+) FROM orders WHERE id").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(orderColumnNames))

	order, err := repo.GetByID(context.Background(), "missing")

	assert.Nil(t, order)
	assert.True(t, customerror.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_Update_PersistsNewEventsOnly(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepository(NewTestDB(mock))
	requestID := "req-1"

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM orders WHERE id = (.+) FOR UPDATE").
		WithArgs("order-1").
		WillReturnRows(addOrderRow(pgxmock.NewRows(orderColumnNames), "order-1", models.StatusProcessing, &requestID))
	mock.ExpectQuery("SELECT (.+) FROM timeline_events").
		WithArgs("order-1").
		WillReturnRows(pgxmock.NewRows(timelineColumnNames).
			AddRow("request.placed:2026-03-01T10:00:00Z", "request.placed", testNow, models.SourceProvider, "", []byte(nil)))
	mock.ExpectExec("UPDATE orders SET").
		WithArgs(
			"order-1", models.StatusShipped, models.FundingNone, "", pgxmock.AnyArg(), &requestID, 0,
			pgxmock.AnyArg(), models.PaymentPaid, false, "", pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO timeline_events").
		WithArgs("order-1", pgxmock.AnyArg(), "status.shipped", pgxmock.AnyArg(), models.SourceProvider, "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	order, err := repo.Update(context.Background(), "order-1", func(order *models.Order) error {
		return order.Transition(models.StatusShipped, models.Cause{Source: models.SourceProvider, At: testNow.Add(time.Hour)})
	})

	require.NoError(t, err)
	assert.Equal(t, models.StatusShipped, order.Status)
	assert.Len(t, order.Timeline, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_Update_RollsBackOnRejectedChange(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepository(NewTestDB(mock))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM orders WHERE id = (.+) FOR UPDATE").
		WithArgs("order-1").
		WillReturnRows(addOrderRow(pgxmock.NewRows(orderColumnNames), "order-1", models.StatusDelivered, nil))
	mock.ExpectQuery("SELECT (.+) FROM timeline_events").
		WithArgs("order-1").
		WillReturnRows(pgxmock.NewRows(timelineColumnNames))
	mock.ExpectRollback()

	order, err := repo.Update(context.Background(), "order-1", func(order *models.Order) error {
		return order.Transition(models.StatusCancelled, models.Cause{Source: models.SourceAdmin})
	})

	assert.Nil(t, order)
	assert.True(t, customerror.IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_ListByStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepository(NewTestDB(mock))

	rows := pgxmock.NewRows(orderColumnNames)
	addOrderRow(rows, "order-1", models.StatusAwaitingFunds, nil)
	addOrderRow(rows, "order-2", models.StatusAwaitingFunds, nil)

	mock.ExpectQuery("SELECT (.+) FROM orders WHERE status = ANY").
		WithArgs([]string{"awaiting_funds"}, 10).
		WillReturnRows(rows)

	orders, err := repo.ListByStatus(context.Background(), []models.OrderStatus{models.StatusAwaitingFunds}, 10)

	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "order-1", orders[0].ID)
	assert.Equal(t, "order-2", orders[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_ListByStatus_ZeroLimitIsUnbounded(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepository(NewTestDB(mock))

	rows := pgxmock.NewRows(orderColumnNames)
	addOrderRow(rows, "order-1", models.StatusFailed, nil)
	addOrderRow(rows, "order-2", models.StatusFailed, nil)
	addOrderRow(rows, "order-3", models.StatusFailed, nil)

	mock.ExpectQuery("SELECT (.+) FROM orders WHERE status = ANY").
		WithArgs([]string{"failed"}, nil).
		WillReturnRows(rows)

	orders, err := repo.ListByStatus(context.Background(), []models.OrderStatus{models.StatusFailed}, 0)

	require.NoError(t, err)
	assert.Len(t, orders, 3)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_ListByStatus_DatabaseError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepository(NewTestDB(mock))

	mock.ExpectQuery("SELECT (.+) FROM orders WHERE status = ANY").
		WillReturnError(errors.New("syntax error"))

	orders, err := repo.ListByStatus(context.Background(), []models.OrderStatus{models.StatusProcessing}, 10)

	assert.Error(t, err)
	assert.Nil(t, orders)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_CountByStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepository(NewTestDB(mock))

	mock.ExpectQuery("SELECT count").
		WithArgs(models.StatusAwaitingFunds).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountByStatus(context.Background(), models.StatusAwaitingFunds)

	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
