package domain

import (
	"errors"
	"fmt"
)

// ErrNotReady means the session is not connected; callers map it to 503.
var ErrNotReady = errors.New("session is not ready, scan the pairing code first")

// ValidationError reports a missing or malformed request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s %s", e.Field, e.Reason)
	}
	return e.Field + " is required"
}
