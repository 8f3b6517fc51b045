package roverlink

import (
	"context"
	"net"
	"sync"
	"time"

	"go.bug.st/serial"
)

// TCPDialer connects to the rover over WiFi.
type TCPDialer struct {
	opts Options
}

// NewTCPDialer validates opts and returns a dialer for them.
func NewTCPDialer(opts Options) (*TCPDialer, error) {
	o, err := opts.Normalise()
	if err != nil {
		return nil, err
	}
	return &TCPDialer{opts: o}, nil
}

func (d *TCPDialer) String() string { return d.opts.Addr() }

// Dial opens the TCP stream, giving up after the connect timeout.
func (d *TCPDialer) Dial(ctx context.Context) (Conn, error) {
	nd := net.Dialer{Timeout: d.opts.ConnectTimeout}
	c, err := nd.DialContext(ctx, "tcp", d.opts.Addr())
	if err != nil {
		return nil, err
	}
	return &tcpConn{Conn: c, timeout: d.opts.ReadTimeout}, nil
}

// tcpConn applies the timeout as a fresh deadline before every read and
// write, the way a socket-level timeout behaves.
type tcpConn struct {
	net.Conn
	mu      sync.Mutex
	timeout time.Duration
}

func (c *tcpConn) SetReadTimeout(timeout time.Duration) error {
	c.mu.Lock()
	c.timeout = timeout
	c.mu.Unlock()
	return nil
}

func (c *tcpConn) deadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.timeout)
}

func (c *tcpConn) Read(p []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(c.deadline()); err != nil {
		return 0, err
	}
	return c.Conn.Read(p)
}

func (c *tcpConn) Write(p []byte) (int, error) {
	if err := c.Conn.SetWriteDeadline(c.deadline()); err != nil {
		return 0, err
	}
	return c.Conn.Write(p)
}

// SerialDialer connects to a rover on a local serial device.
type SerialDialer struct {
	opts SerialOptions
	open func(path string, mode *serial.Mode) (serial.Port, error)
}

// NewSerialDialer validates opts and returns a dialer for them.
func NewSerialDialer(opts SerialOptions) (*SerialDialer, error) {
	o, err := opts.Normalise()
	if err != nil {
		return nil, err
	}
	return &SerialDialer{opts: o, open: serial.Open}, nil
}

func (d *SerialDialer) String() string { return d.opts.Path }

// Dial opens the serial device. Opening a local device does not block, so
// the context is only checked up front.
func (d *SerialDialer) Dial(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mode, err := d.opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := d.open(d.opts.Path, mode)
	if err != nil {
		return nil, err
	}
	return &serialConn{Port: port}, nil
}

// serialConn maps the zero-byte read go.bug.st/serial returns on timeout to
// ErrReadTimeout.
type serialConn struct {
	serial.Port
}

func (c *serialConn) Read(p []byte) (int, error) {
	n, err := c.Port.Read(p)
	if n == 0 && err == nil {
		return 0, ErrReadTimeout
	}
	return n, err
}
