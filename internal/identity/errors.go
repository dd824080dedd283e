package identity

import (
	"errors"
	"fmt"
)

var (
	// ErrServiceUnavailable covers transport failures, timeouts, non-2xx
	// responses and undecodable bodies.
	ErrServiceUnavailable = errors.New("identity: service unavailable")
	// ErrLookupRejected is matched by RejectedError.
	ErrLookupRejected = errors.New("identity: lookup rejected")
)

// RejectedError is returned when the service answers 2xx with an error code.
type RejectedError struct {
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("identity: lookup rejected (code %s)", e.Code)
	}
	return fmt.Sprintf("identity: lookup rejected (code %s): %s", e.Code, e.Message)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrLookupRejected
}
