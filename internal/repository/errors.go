package repository

import (
	"errors"

	"github.com/Bessima/gift-fulfillment/internal/customerror"
	"github.com/Bessima/gift-fulfillment/internal/retry"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrVersionMismatch is returned by CompareAndSetBalance when the account was written since it was read.
var ErrVersionMismatch = customerror.NewConflictError("funding account was changed concurrently")

// pgError keeps retryable errors as is, maps unique violations to ConflictError and
// everything else to CommonPGError.
func pgError(err error, what string) error {
	if err == nil || retry.IsRetryable(err) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return customerror.NewUniqueViolationError(what)
	}
	var customErr customerror.CustomError
	if errors.As(err, &customErr) {
		return err
	}
	return customerror.NewCommonPGError(err.Error())
}
