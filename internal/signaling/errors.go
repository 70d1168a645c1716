package signaling

import (
	"errors"
	"fmt"

	"github.com/BioHazard786/huddle/internal/protocol"
)

var (
	ErrClosed        = errors.New("signaling connection closed")
	ErrNotConnected  = errors.New("not connected")
	ErrRejected      = errors.New("rejected by relay")
	ErrInvalidServer = errors.New("invalid server URL")
)

// Error is a failure reported by the relay, or a local failure tied to an
// operation.
type Error struct {
	Op      string
	Code    string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Op, e.Details, e.Code)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// FromFailure converts a fail frame into an *Error wrapping ErrRejected.
func FromFailure(op string, f protocol.Failure) *Error {
	return &Error{Op: op, Code: f.Code, Err: ErrRejected, Details: f.Message}
}

func wrapError(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}
