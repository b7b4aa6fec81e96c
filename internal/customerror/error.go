package customerror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

type CustomError interface {
	Error() string
	GetHTTPCode() int
}

// HTTPCode returns the status code carried by err, or 500 for foreign errors.
func HTTPCode(err error) int {
	var customErr CustomError
	if errors.As(err, &customErr) {
		return customErr.GetHTTPCode()
	}
	return http.StatusInternalServerError
}

type ValidationError struct {
	httpCode int
	message  string
}

func NewValidationError(msg string) *ValidationError {
	return &ValidationError{httpCode: http.StatusBadRequest, message: msg}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.message)
}

func (e *ValidationError) GetHTTPCode() int {
	return e.httpCode
}

type NotFoundError struct {
	httpCode int
	message  string
}

func NewNotFoundError(msg string) *NotFoundError {
	return &NotFoundError{httpCode: http.StatusNotFound, message: msg}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.message)
}

func (e *NotFoundError) GetHTTPCode() int {
	return e.httpCode
}

type AuthorizationError struct {
	httpCode int
	message  string
}

func NewAuthorizationError(msg string) *AuthorizationError {
	return &AuthorizationError{httpCode: http.StatusForbidden, message: msg}
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("not authorized: %s", e.message)
}

func (e *AuthorizationError) GetHTTPCode() int {
	return e.httpCode
}

// ConflictError reports an illegal state transition or a duplicate record.
type ConflictError struct {
	httpCode int
	message  string
}

func NewConflictError(msg string) *ConflictError {
	return &ConflictError{httpCode: http.StatusConflict, message: msg}
}

// NewUniqueViolationError is returned by repositories when a unique constraint rejects an insert.
func NewUniqueViolationError(msg string) *ConflictError {
	return &ConflictError{httpCode: http.StatusConflict, message: fmt.Sprintf("unique violation: %s", msg)}
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s", e.message)
}

func (e *ConflictError) GetHTTPCode() int {
	return e.httpCode
}

// ExternalServiceError wraps a failed call to the payment processor, the fulfillment
// provider or the notification service. Transient errors are retried within the budget.
type ExternalServiceError struct {
	httpCode   int
	Service    string
	StatusCode int
	Transient  bool
	err        error
}

func NewExternalServiceError(service string, statusCode int, transient bool, err error) *ExternalServiceError {
	return &ExternalServiceError{
		httpCode:   http.StatusBadGateway,
		Service:    service,
		StatusCode: statusCode,
		Transient:  transient,
		err:        err,
	}
}

func (e *ExternalServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s responded with status %d: %v", e.Service, e.StatusCode, e.err)
	}
	return fmt.Sprintf("%s call failed: %v", e.Service, e.err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.err
}

func (e *ExternalServiceError) GetHTTPCode() int {
	return e.httpCode
}

// InsufficientFundsError is not a failure: the order is parked in awaiting_funds.
type InsufficientFundsError struct {
	httpCode int
	Required decimal.Decimal
	Balance  decimal.Decimal
}

func NewInsufficientFundsError(required, balance decimal.Decimal) *InsufficientFundsError {
	return &InsufficientFundsError{httpCode: http.StatusPaymentRequired, Required: required, Balance: balance}
}

func (e *InsufficientFundsError) Shortfall() decimal.Decimal {
	return e.Required.Sub(e.Balance)
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: required %s, balance %s, shortfall %s",
		e.Required.StringFixed(2), e.Balance.StringFixed(2), e.Shortfall().StringFixed(2))
}

func (e *InsufficientFundsError) GetHTTPCode() int {
	return e.httpCode
}

type CommonPGError struct {
	httpCode int
	message  string
}

func NewCommonPGError(msg string) *CommonPGError {
	return &CommonPGError{httpCode: http.StatusInternalServerError, message: msg}
}

func (e *CommonPGError) Error() string {
	return e.message
}

func (e *CommonPGError) GetHTTPCode() int {
	return e.httpCode
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsAuthorization(err error) bool {
	var target *AuthorizationError
	return errors.As(err, &target)
}

func IsInsufficientFunds(err error) bool {
	var target *InsufficientFundsError
	return errors.As(err, &target)
}

func IsExternalService(err error) bool {
	var target *ExternalServiceError
	return errors.As(err, &target)
}
