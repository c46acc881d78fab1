package client

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrEngineClosed      = errors.New("engine closed")
	ErrNotConnected      = errors.New("not connected to relay")
	ErrNotInRoom         = errors.New("not in a room")
	ErrAlreadyInRoom     = errors.New("already in a room")
	ErrJoinTimeout       = errors.New("join timed out")
	ErrApprovalTimeout   = errors.New("approval timed out")
	ErrPermissionDenied  = errors.New("device permission denied")
	ErrDeviceUnavailable = errors.New("device unavailable")
	ErrNoDisplayDevice   = errors.New("no display device configured")
	ErrBusyOperation     = errors.New("another room operation in flight")
)

// NegotiationError marks a WebRTC failure against one remote. The link is
// torn down and rebuilt on the next roster event; other links are untouched.
type NegotiationError struct {
	Remote uuid.UUID
	Op     string
	Err    error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("%s with %s: %v", e.Op, e.Remote, e.Err)
}

func (e *NegotiationError) Unwrap() error {
	return e.Err
}

func newNegotiationError(remote uuid.UUID, op string, err error) *NegotiationError {
	return &NegotiationError{Remote: remote, Op: op, Err: err}
}

// DeviceError wraps capture device failures.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

func newDeviceError(op string, err error) *DeviceError {
	return &DeviceError{Op: op, Err: err}
}
