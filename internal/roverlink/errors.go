package roverlink

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyRunning    = errors.New("rover session already running")
	ErrNotConnected      = errors.New("rover not connected")
	ErrWriteFailed       = errors.New("failed to write to rover connection")
	ErrCommandNotAllowed = errors.New("command not allowed")
	ErrInvalidText       = errors.New("received bytes are not valid UTF-8")
	ErrReadTimeout       = errors.New("read timed out")
)

// ConnectionError reports a failure to open a session with the rover. The
// manager stays Disconnected.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("could not connect to %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SendError reports a command that could not be written to the rover.
type SendError struct {
	Command string
	Err     error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("could not send %s command: %v", e.Command, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// ReceiveError ends a session. It wraps any read or decode failure other
// than a read timeout.
type ReceiveError struct {
	SessionID string
	Err       error
}

func (e *ReceiveError) Error() string {
	return fmt.Sprintf("receive failed: %v", e.Err)
}

func (e *ReceiveError) Unwrap() error { return e.Err }

// MalformedMessageError describes an inbound line that is not a position
// update. It never ends a session.
type MalformedMessageError struct {
	Line   string
	Reason string
}

func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("unexpected data format %q: %s", e.Line, e.Reason)
}
