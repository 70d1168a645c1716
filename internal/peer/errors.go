package peer

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownPeer    = errors.New("unknown peer")
	ErrUnexpectedSDP  = errors.New("unexpected session description type")
	ErrChannelNotOpen = errors.New("channel not open")
	ErrInvalidFrame   = errors.New("invalid data channel frame")
	ErrManagerClosed  = errors.New("peer manager closed")
	ErrInvalidSignal  = errors.New("invalid signaling payload")
)

// PeerError ties a failure to the operation and remote socket id.
type PeerError struct {
	Op      string
	PeerID  string
	Err     error
	Details string
}

func (e *PeerError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s %s: %v (%s)", e.Op, e.PeerID, e.Err, e.Details)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.PeerID, e.Err)
}

func (e *PeerError) Unwrap() error {
	return e.Err
}

func newError(op, peerID string, err error) *PeerError {
	return &PeerError{Op: op, PeerID: peerID, Err: err}
}

func wrapError(op, peerID string, err error, details string) *PeerError {
	return &PeerError{Op: op, PeerID: peerID, Err: err, Details: details}
}
