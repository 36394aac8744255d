package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrNotFound           = errors.New("not found")
	ErrTicketTypeNotFound = fmt.Errorf("ticket type %w", ErrNotFound)
	ErrSaleNotFound       = fmt.Errorf("sale %w", ErrNotFound)

	ErrValidation             = errors.New("validation failed")
	ErrInsufficientInventory  = errors.New("insufficient inventory")
	ErrPaymentDeclined        = errors.New("payment declined")
	ErrInfrastructure         = errors.New("infrastructure error")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrInvalidTransition      = errors.New("invalid status transition")

	ErrCapacityBelowReserved = errors.New("capacity cannot be set below reserved count")
	ErrTicketTypeInUse       = errors.New("ticket type has sales and cannot be deleted")
	ErrSaleCodeConflict      = errors.New("sale code already exists")
)

// ValidationError names the offending field
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError creates a ValidationError
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// InsufficientInventoryError carries the count that was available when the
// reservation was refused
type InsufficientInventoryError struct {
	Available int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory: %d available", e.Available)
}

func (e *InsufficientInventoryError) Is(target error) bool { return target == ErrInsufficientInventory }

// PaymentDeclinedError is a business decline returned by a payment backend
type PaymentDeclinedError struct {
	Reason string
	Code   string
}

func (e *PaymentDeclinedError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payment declined (%s): %s", e.Code, e.Reason)
	}
	return "payment declined: " + e.Reason
}

func (e *PaymentDeclinedError) Is(target error) bool { return target == ErrPaymentDeclined }

// InfrastructureError wraps a failure of a store, broker or payment backend
type InfrastructureError struct {
	Op  string
	Err error
}

// NewInfrastructureError wraps err; it returns nil for a nil err
func NewInfrastructureError(op string, err error) error {
	if err == nil {
		return nil
	}
	var infra *InfrastructureError
	if errors.As(err, &infra) {
		return err
	}
	return &InfrastructureError{Op: op, Err: err}
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error { return e.Err }

func (e *InfrastructureError) Is(target error) bool { return target == ErrInfrastructure }

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConflictError checks if the error should surface as a conflict
func IsConflictError(err error) bool {
	return errors.Is(err, ErrInsufficientInventory) ||
		errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrCapacityBelowReserved) ||
		errors.Is(err, ErrTicketTypeInUse)
}
