package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Bessima/gift-fulfillment/internal/config/db"
	"github.com/Bessima/gift-fulfillment/internal/customerror"
	"github.com/Bessima/gift-fulfillment/internal/models"
	"github.com/Bessima/gift-fulfillment/internal/retry"
	"github.com/jackc/pgx/v5"
)

type OrderRepository struct {
	db *db.DB
}

type OrderStorageRepositoryI interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	GetByPaymentRef(ctx context.Context, paymentRef string) (*models.Order, error)
	GetByFulfillmentRequestID(ctx context.Context, requestID string) (*models.Order, error)
	// Update loads the order under a row lock, applies fn and persists the result together
	// with the timeline events fn appended. fn may run more than once and must not have
	// side effects outside the order.
	Update(ctx context.Context, id string, fn func(order *models.Order) error) (*models.Order, error)
	// ListByStatus returns orders oldest first, without their timelines.
	ListByStatus(ctx context.Context, statuses []models.OrderStatus, limit int) ([]models.Order, error)
	CountByStatus(ctx context.Context, status models.OrderStatus) (int, error)
}

func NewOrderRepository(dbObj *db.DB) *OrderRepository {
	return &OrderRepository{db: dbObj}
}

const orderColumns = `id, status, funding_status, funding_hold_reason, expected_funding_date, fulfillment_request_id, retry_count,
	total_amount, currency, line_items, shipping_address, tracking, payment_ref, payment_status, group_gift_id,
	needs_review, notes, created_at, updated_at`

const timelineColumns = `event_id, type, timestamp, source, message, data`

func scanOrder(row pgx.Row) (*models.Order, error) {
	order := models.Order{}
	var (
		requestID        *string
		totalInCents     int64
		lineItems        []byte
		shippingAddress  []byte
		tracking         []byte
		expectedFundings *time.Time
	)
	err := row.Scan(
		&order.ID, &order.Status, &order.FundingStatus, &order.FundingHoldReason, &expectedFundings, &requestID,
		&order.RetryCount, &totalInCents, &order.Currency, &lineItems, &shippingAddress, &tracking, &order.PaymentRef,
		&order.PaymentStatus, &order.GroupGiftID, &order.NeedsReview, &order.Notes, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	order.ExpectedFundingDate = expectedFundings
	if requestID != nil {
		order.FulfillmentRequestID = *requestID
	}
	order.TotalAmount = models.FromCents(totalInCents)
	if err = unmarshalColumn(lineItems, &order.LineItems); err != nil {
		return nil, err
	}
	if err = unmarshalColumn(shippingAddress, &order.ShippingAddress); err != nil {
		return nil, err
	}
	if err = unmarshalColumn(tracking, &order.Tracking); err != nil {
		return nil, err
	}
	return &order, nil
}

func unmarshalColumn(raw []byte, dest any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode column: %w", err)
	}
	return nil
}

func nullableString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func (repository *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	query := `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	lineItems, err := json.Marshal(order.LineItems)
	if err != nil {
		return err
	}
	shippingAddress, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return err
	}
	tracking, err := json.Marshal(order.Tracking)
	if err != nil {
		return err
	}

	return retry.DoRetry(ctx, func() (err error) {
		tx, err := repository.db.Pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err != nil {
				tx.Rollback(ctx)
			}
		}()

		_, err = tx.Exec(ctx, query,
			order.ID, order.Status, order.FundingStatus, order.FundingHoldReason, order.ExpectedFundingDate,
			nullableString(order.FulfillmentRequestID), order.RetryCount, models.ToCents(order.TotalAmount), order.Currency,
			lineItems, shippingAddress, tracking, order.PaymentRef, order.PaymentStatus, order.GroupGiftID,
			order.NeedsReview, order.Notes, order.CreatedAt, order.UpdatedAt,
		)
		if err != nil {
			return pgError(err, fmt.Sprintf("order with payment_ref %s already exists", order.PaymentRef))
		}

		if err = insertTimeline(ctx, tx, order.ID, order.Timeline); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
}

func insertTimeline(ctx context.Context, tx pgx.Tx, orderID string, events []models.TimelineEvent) error {
	query := `INSERT INTO timeline_events (order_id, ` + timelineColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (order_id, event_id) DO NOTHING`

	for _, event := range events {
		var data []byte
		if len(event.Data) > 0 {
			data = event.Data
		}
		_, err := tx.Exec(ctx, query, orderID, event.ID, event.Type, event.Timestamp, event.Source, event.Message, data)
		if err != nil {
			return pgError(err, fmt.Sprintf("timeline event %s", event.ID))
		}
	}
	return nil
}

func (repository *OrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return repository.getOne(ctx, query, id, fmt.Sprintf("order %s", id))
}

func (repository *OrderRepository) GetByPaymentRef(ctx context.Context, paymentRef string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE payment_ref = $1`
	return repository.getOne(ctx, query, paymentRef, fmt.Sprintf("order with payment_ref %s", paymentRef))
}

func (repository *OrderRepository) GetByFulfillmentRequestID(ctx context.Context, requestID string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE fulfillment_request_id = $1`
	return repository.getOne(ctx, query, requestID, fmt.Sprintf("order with fulfillment request %s", requestID))
}

func (repository *OrderRepository) getOne(ctx context.Context, query string, arg any, what string) (*models.Order, error) {
	return retry.DoRetryWithResult(ctx, func() (*models.Order, error) {
		order, err := scanOrder(repository.db.Pool.QueryRow(ctx, query, arg))
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customerror.NewNotFoundError(what)
		}
		if err != nil {
			return nil, err
		}

		order.Timeline, err = repository.loadTimeline(ctx, repository.db.Pool, order.ID)
		if err != nil {
			return nil, err
		}
		return order, nil
	})
}

type querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

func (repository *OrderRepository) loadTimeline(ctx context.Context, q querier, orderID string) ([]models.TimelineEvent, error) {
	query := `SELECT ` + timelineColumns + ` FROM timeline_events WHERE order_id = $1 ORDER BY seq`

	rows, err := q.Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []models.TimelineEvent{}
	for rows.Next() {
		var event models.TimelineEvent
		var data []byte
		err = rows.Scan(&event.ID, &event.Type, &event.Timestamp, &event.Source, &event.Message, &data)
		if err != nil {
			return nil, err
		}
		if len(data) > 0 {
			event.Data = data
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

func (repository *OrderRepository) Update(ctx context.Context, id string, fn func(order *models.Order) error) (*models.Order, error) {
	selectQuery := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	updateQuery := `UPDATE orders SET status = $2, funding_status = $3, funding_hold_reason = $4, expected_funding_date = $5,
		fulfillment_request_id = $6, retry_count = $7, tracking = $8, payment_status = $9, needs_review = $10, notes = $11,
		updated_at = $12
		WHERE id = $1`

	return retry.DoRetryWithResult(ctx, func() (result *models.Order, err error) {
		tx, err := repository.db.Pool.Begin(ctx)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err != nil {
				tx.Rollback(ctx)
			}
		}()

		order, err := scanOrder(tx.QueryRow(ctx, selectQuery, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customerror.NewNotFoundError(fmt.Sprintf("order %s", id))
		}
		if err != nil {
			return nil, err
		}
		order.Timeline, err = repository.loadTimeline(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		known := len(order.Timeline)

		if err = fn(order); err != nil {
			return nil, err
		}

		tracking, err := json.Marshal(order.Tracking)
		if err != nil {
			return nil, err
		}
		_, err = tx.Exec(ctx, updateQuery,
			order.ID, order.Status, order.FundingStatus, order.FundingHoldReason, order.ExpectedFundingDate,
			nullableString(order.FulfillmentRequestID), order.RetryCount, tracking, order.PaymentStatus,
			order.NeedsReview, order.Notes, order.UpdatedAt,
		)
		if err != nil {
			return nil, pgError(err, fmt.Sprintf("fulfillment request %s is attached to another order", order.FulfillmentRequestID))
		}

		if err = insertTimeline(ctx, tx, order.ID, order.Timeline[known:]); err != nil {
			return nil, err
		}
		if err = tx.Commit(ctx); err != nil {
			return nil, err
		}
		return order, nil
	})
}

func (repository *OrderRepository) ListByStatus(ctx context.Context, statuses []models.OrderStatus, limit int) ([]models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE status = ANY($1) ORDER BY created_at, id LIMIT $2`

	names := make([]string, 0, len(statuses))
	for _, status := range statuses {
		names = append(names, string(status))
	}

	// LIMIT NULL в Postgres означает выборку без ограничения
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}

	return retry.DoRetryWithResult(ctx, func() ([]models.Order, error) {
		rows, err := repository.db.Pool.Query(ctx, query, names, limitArg)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		orders := []models.Order{}
		for rows.Next() {
			order, err := scanOrder(rows)
			if err != nil {
				return nil, err
			}
			orders = append(orders, *order)
		}

		return orders, rows.Err()
	})
}

func (repository *OrderRepository) CountByStatus(ctx context.Context, status models.OrderStatus) (int, error) {
	query := `SELECT count(*) FROM orders WHERE status = $1`
	return retry.DoRetryWithResult(ctx, func() (int, error) {
		var count int
		err := repository.db.Pool.QueryRow(ctx, query, status).Scan(&count)
		return count, err
	})
}
