package transfer

import (
	"errors"
	"fmt"
)

var (
	// ErrSelfTransfer is returned when the source and destination wallet coincide.
	ErrSelfTransfer = errors.New("cannot transfer to yourself")
	// ErrRecipientNotFound is returned when the counterparty cannot be resolved.
	ErrRecipientNotFound = errors.New("recipient not found")
)

// ValidationError reports a malformed input detected before any state is touched.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
