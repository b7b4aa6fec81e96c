package retry

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/Bessima/gift-fulfillment/internal/customerror"
	"github.com/Bessima/gift-fulfillment/internal/middlewares/logger"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Config describes a bounded retry budget: the call is made once and then
// once more after each of Delays.
type Config struct {
	Name   string
	Delays []time.Duration
}

func (c Config) Attempts() int {
	return len(c.Delays) + 1
}

// DefaultRetryConfig is used for database calls.
var DefaultRetryConfig = Config{
	Name:   "db",
	Delays: []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second},
}

// ExternalRetryConfig is used for the payment processor, the fulfillment provider and notifications.
var ExternalRetryConfig = Config{
	Name:   "external",
	Delays: []time.Duration{500 * time.Millisecond, 2 * time.Second},
}

// NoRetryConfig makes a single attempt.
var NoRetryConfig = Config{Name: "none"}

func DoRetry(ctx context.Context, fn func() error, configs ...Config) error {
	_, err := DoRetryWithResult(ctx, func() (struct{}, error) {
		return struct{}{}, fn()
	}, configs...)
	return err
}

// DoRetryWithResult calls fn until it succeeds, returns a non-retryable error or the
// budget is spent. On failure the zero value of T is returned.
func DoRetryWithResult[T any](ctx context.Context, fn func() (T, error), configs ...Config) (T, error) {
	config := DefaultRetryConfig
	if len(configs) > 0 {
		config = configs[0]
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt < config.Attempts(); attempt++ {
		if attempt > 0 {
			delay := config.Delays[attempt-1]
			logger.Log.Debug("retrying call",
				zap.String("config", config.Name),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, errors.Join(lastErr, ctx.Err())
			case <-timer.C:
			}
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return zero, err
		}
	}

	return zero, lastErr
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var externalErr *customerror.ExternalServiceError
	if errors.As(err, &externalErr) {
		return externalErr.Transient
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgerrcode.IsConnectionException(pgErr.Code) ||
			pgErr.Code == pgerrcode.SerializationFailure ||
			pgErr.Code == pgerrcode.DeadlockDetected
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
