package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the application. Services wrap them with fmt.Errorf("%w: ...")
// and the HTTP layer maps them to status codes with errors.Is.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized access")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("resource already exists")
	ErrInvalidState = errors.New("invalid state")
	ErrValidation   = errors.New("validation error")
	ErrInternal     = errors.New("internal server error")
)

// Internal wraps a store or transport fault as ErrInternal while keeping the
// original error in the chain.
func Internal(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInternal, op, err)
}

// Invalid builds an ErrValidation with a human readable reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
