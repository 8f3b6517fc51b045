package roverlink

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"time"
)

// Conn is the minimal connection the manager needs. Both the TCP and the
// serial transport implement it, as do the test doubles.
type Conn interface {
	io.ReadWriteCloser
	// SetReadTimeout bounds every subsequent Read. A Read that times out
	// returns an error for which IsTimeout reports true.
	SetReadTimeout(timeout time.Duration) error
}

// Dialer opens a connection to the rover.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
	// String names the endpoint for error messages.
	String() string
}

// IsTimeout reports whether err is a read timeout rather than a failure.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrReadTimeout) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
