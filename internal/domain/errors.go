package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthorization is returned when the tenant may not perform the operation.
	ErrAuthorization = errors.New("not authorized")
	// ErrSubscription is returned when the tenant's subscription does not allow issuance.
	ErrSubscription = errors.New("subscription inactive")
	// ErrValidation is returned for malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound covers both missing records and records owned by another tenant.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique code collides at the storage layer.
	ErrConflict = errors.New("conflict")
)

// Validationf wraps ErrValidation with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
