package domain

import "errors"

var (
	ErrUnauthenticated    = errors.New("authentication required")
	ErrForbidden          = errors.New("forbidden")
	ErrListingNotFound    = errors.New("listing not found")
	ErrAccountNotFound    = errors.New("account not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrTransport marks a network or decoding failure talking to an external service.
	ErrTransport = errors.New("transport failure")

	ErrProtectedField = errors.New("field is not editable")
	ErrUnknownField   = errors.New("unknown field")
)

// ValidationError rejects one user-supplied field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Reason
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
