package relay

import (
	"errors"
	"fmt"

	"github.com/BioHazard786/huddle/internal/protocol"
)

var (
	ErrAlreadyLoggedIn = errors.New("already logged in")
	ErrNotLoggedIn     = errors.New("not logged in")
	ErrAlreadyInRoom   = errors.New("already in room")
	ErrNotInRoom       = errors.New("not in room")
	ErrMessageNotFound = errors.New("message not found")
	ErrInvalidPayload  = errors.New("invalid payload")
	ErrUnknownEvent    = errors.New("unknown event")
	ErrRateLimited     = errors.New("rate limited")

	// errDuplicateMessage is expected under client retries and is dropped
	// without telling the sender.
	errDuplicateMessage = errors.New("duplicate message")
)

// failures maps each reportable sentinel to what the client is told. The
// message strings are what existing clients match on.
var failures = []struct {
	err     error
	failure protocol.Failure
}{
	{ErrAlreadyLoggedIn, protocol.Failure{Code: protocol.CodeAlreadyLoggedIn, Message: "User already login"}},
	{ErrNotLoggedIn, protocol.Failure{Code: protocol.CodeNotLoggedIn, Message: "User not login"}},
	{ErrAlreadyInRoom, protocol.Failure{Code: protocol.CodeAlreadyInRoom, Message: "User already in room"}},
	{ErrNotInRoom, protocol.Failure{Code: protocol.CodeNotInRoom, Message: "User not in room"}},
	{ErrMessageNotFound, protocol.Failure{Code: protocol.CodeMessageNotFound, Message: "Message not found"}},
	{ErrInvalidPayload, protocol.Failure{Code: protocol.CodeInvalidPayload, Message: "Invalid payload"}},
	{ErrUnknownEvent, protocol.Failure{Code: protocol.CodeUnknownEvent, Message: "Unknown event"}},
	{ErrRateLimited, protocol.Failure{Code: protocol.CodeRateLimited, Message: "Too many events"}},
}

// Error is a rejected event. It becomes a single fail frame sent back to the
// connection that caused it and is never broadcast.
type Error struct {
	Event   string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Event, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Event, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Failure renders the error as a fail payload. Details stay in the logs.
func (e *Error) Failure() protocol.Failure {
	for _, f := range failures {
		if errors.Is(e.Err, f.err) {
			return f.failure
		}
	}
	return protocol.Failure{Code: protocol.CodeInvalidPayload, Message: e.Err.Error()}
}

func newError(event string, err error) *Error {
	return &Error{Event: event, Err: err}
}

func wrapError(event string, err error, details string) *Error {
	return &Error{Event: event, Err: err, Details: details}
}
