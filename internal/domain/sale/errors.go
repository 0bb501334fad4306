package sale

import (
	"fmt"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested transaction does not exist.
var ErrNotFound = errors.New("transaction not found")

// ValidationError indicates malformed input. The caller must correct the
// input; the operation is never retried automatically.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidTransitionError indicates an illegal payment-status move.
type InvalidTransitionError struct {
	From PaymentStatus
	To   PaymentStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition payment status from %q to %q", e.From, e.To)
}

func validationErrorf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
