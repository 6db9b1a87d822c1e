package ssh

import (
	"errors"
	"fmt"
)

// TransportError classifies connection and session failures so callers can
// distinguish unreachable hosts from authentication problems.
type TransportError struct {
	// Op names the operation that failed (connect, session, upload).
	Op string

	// Err is the underlying error.
	Err error

	// IsAuthError is true when the failure was an authentication rejection.
	IsAuthError bool

	// IsTemporary is true when retrying might succeed.
	IsTemporary bool
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("ssh %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err is (or wraps) a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsAuthFailure reports whether err was an authentication rejection.
func IsAuthFailure(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.IsAuthError
	}
	return false
}
