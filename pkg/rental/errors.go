package rental

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the rental service and workflow.
var (
	ErrInvalidDateRange      = errors.New("invalid date range")
	ErrStartDateInPast       = errors.New("start date in the past")
	ErrItemNotFound          = errors.New("item not found")
	ErrBookingNotFound       = errors.New("booking not found")
	ErrItemNotActive         = errors.New("item not active")
	ErrSelfRental            = errors.New("cannot rent own item")
	ErrForbidden             = errors.New("actor not permitted")
	ErrDatesUnavailable      = errors.New("dates unavailable")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrBookingNotPending     = errors.New("booking not pending")
	ErrBookingNotCompletable = errors.New("booking cannot be completed")
)

// Validation error values for ingested values.
var (
	ErrInvalidDate          = errors.New("invalid date")
	ErrInvalidBookingID     = errors.New("invalid booking id")
	ErrInvalidItemID        = errors.New("invalid item id")
	ErrInvalidUserID        = errors.New("invalid user id")
	ErrInvalidPriceCents    = errors.New("invalid price cents")
	ErrInvalidBookingStatus = errors.New("invalid booking status")
	ErrInvalidRole          = errors.New("invalid role")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
