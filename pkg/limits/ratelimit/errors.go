package ratelimit

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by any operation invoked on a limiter (or a store
// built on top of limiters) after it has been closed. Closing is terminal:
// state is never resurrected.
var ErrClosed = errors.New("ratelimit: closed")

// ArgumentError reports an invalid constructor parameter or call argument.
// These are programmer errors: they surface immediately and are never
// retried by the engine.
type ArgumentError struct {
	// Argument is the name of the offending parameter (e.g. "PermitLimit").
	Argument string

	// Message describes the violated constraint.
	Message string
}

// Error returns the formatted error message.
func (e *ArgumentError) Error() string {
	return fmt.Sprintf("ratelimit: invalid %s: %s", e.Argument, e.Message)
}

// validateCount checks the permit count passed to an acquire call.
func validateCount(count int64) error {
	if count < 1 {
		return &ArgumentError{Argument: "count", Message: "must be at least 1"}
	}
	return nil
}
