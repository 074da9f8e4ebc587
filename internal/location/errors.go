package location

import (
	"errors"
	"fmt"
)

// ErrUnavailable matches every LocationUnavailable error via errors.Is.
var ErrUnavailable = errors.New("location unavailable")

// Reason classifies why a location could not be obtained.
type Reason string

const (
	ReasonPermissionDenied    Reason = "permission-denied"
	ReasonPositionUnavailable Reason = "position-unavailable"
	ReasonTimeout             Reason = "timeout"
)

// Geolocation error codes as reported by browsers and mobile clients.
const (
	CodePermissionDenied    = 1
	CodePositionUnavailable = 2
	CodeTimeout             = 3
)

// UnavailableError reports a failed position fix.
type UnavailableError struct {
	Reason  Reason
	Message string
}

func (e *UnavailableError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("location unavailable: %s", e.Reason)
	}
	return fmt.Sprintf("location unavailable: %s: %s", e.Reason, e.Message)
}

// Is makes errors.Is(err, ErrUnavailable) true for every UnavailableError.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

// Terminal reports whether tracking cannot proceed for the session.
// Only a permission denial is terminal; everything else is retryable.
func (e *UnavailableError) Terminal() bool {
	return e.Reason == ReasonPermissionDenied
}

// FromCode maps a geolocation error code onto an UnavailableError.
// Unknown codes are treated as a missing fix.
func FromCode(code int, message string) *UnavailableError {
	reason := ReasonPositionUnavailable
	switch code {
	case CodePermissionDenied:
		reason = ReasonPermissionDenied
	case CodeTimeout:
		reason = ReasonTimeout
	}
	return &UnavailableError{Reason: reason, Message: message}
}

// IsTerminal reports whether err is a LocationUnavailable that ends tracking.
func IsTerminal(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue) && ue.Terminal()
}
