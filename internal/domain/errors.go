package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("not found")
	ErrSignature     = errors.New("signature mismatch")
	ErrStateConflict = errors.New("invalid state transition")
	ErrTransientIO   = errors.New("storage or delivery unavailable")

	ErrInvoiceNotFound     = fmt.Errorf("invoice %w", ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("payment transaction %w", ErrNotFound)
	ErrCustomerNotFound    = fmt.Errorf("customer %w", ErrNotFound)
	ErrPolicyNotFound      = fmt.Errorf("policy %w", ErrNotFound)
	ErrInvoiceAlreadyPaid  = fmt.Errorf("invoice already paid: %w", ErrStateConflict)
	ErrInvoiceChanged      = fmt.Errorf("invoice changed concurrently: %w", ErrStateConflict)
	ErrUnknownGateway      = fmt.Errorf("gateway %w", ErrNotFound)
)

// ValidationError reports a rejected input field. It matches ErrValidation.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// TransientError wraps a storage or delivery failure that may succeed on retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func (e *TransientError) Is(target error) bool {
	return target == ErrTransientIO
}
