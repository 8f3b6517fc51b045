package roverlink

import (
	"bytes"
	"context"
	"net"
	"sync"
	"time"
)

// TestablePort implements Conn with scripted reads for tests. Reads block
// until data arrives, the port is closed, or the read timeout expires.
type TestablePort struct {
	mu       sync.Mutex
	readBuf  bytes.Buffer
	writeBuf bytes.Buffer
	readErr  error
	writeErr error
	closeErr error
	timeout  time.Duration
	closed   bool

	// ReadCalls and WriteCalls count calls for assertions.
	ReadCalls  int
	WriteCalls int

	notify   chan struct{}
	closedCh chan struct{}
}

// NewTestablePort returns an open port with nothing to read.
func NewTestablePort() *TestablePort {
	return &TestablePort{
		notify:   make(chan struct{}, 1),
		closedCh: make(chan struct{}),
	}
}

func (t *TestablePort) wake() {
	select {
	case t.notify <- struct{}{}:
	default:
	}
}

// AddReadData queues data for subsequent reads.
func (t *TestablePort) AddReadData(data string) {
	t.mu.Lock()
	t.readBuf.WriteString(data)
	t.mu.Unlock()
	t.wake()
}

// FailRead makes the next read that finds no buffered data return err.
func (t *TestablePort) FailRead(err error) {
	t.mu.Lock()
	t.readErr = err
	t.mu.Unlock()
	t.wake()
}

// SetWriteError makes every subsequent write fail with err.
func (t *TestablePort) SetWriteError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeErr = err
}

// SetCloseError makes Close return err.
func (t *TestablePort) SetCloseError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeErr = err
}

// Written returns everything written to the port.
func (t *TestablePort) Written() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writeBuf.String()
}

// Closed reports whether Close was called.
func (t *TestablePort) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Timeout returns the configured read timeout.
func (t *TestablePort) Timeout() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timeout
}

func (t *TestablePort) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = timeout
	return nil
}

func (t *TestablePort) Read(p []byte) (int, error) {
	t.mu.Lock()
	t.ReadCalls++
	t.mu.Unlock()

	for {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return 0, net.ErrClosed
		}
		if t.readBuf.Len() > 0 {
			n, _ := t.readBuf.Read(p)
			t.mu.Unlock()
			return n, nil
		}
		if t.readErr != nil {
			err := t.readErr
			t.readErr = nil
			t.mu.Unlock()
			return 0, err
		}
		timeout := t.timeout
		t.mu.Unlock()

		var timer *time.Timer
		var expired <-chan time.Time
		if timeout > 0 {
			timer = time.NewTimer(timeout)
			expired = timer.C
		}
		select {
		case <-t.notify:
		case <-t.closedCh:
		case <-expired:
			return 0, ErrReadTimeout
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

func (t *TestablePort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.WriteCalls++
	if t.closed {
		return 0, net.ErrClosed
	}
	if t.writeErr != nil {
		return 0, t.writeErr
	}
	return t.writeBuf.Write(p)
}

func (t *TestablePort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.closedCh)
	}
	return t.closeErr
}

// MockDialer hands out scripted connections.
type MockDialer struct {
	mu sync.Mutex

	// Ports are returned by successive Dial calls; the last one repeats.
	Ports []Conn
	// Error is returned by Dial if set.
	Error error
	// Calls counts Dial calls.
	Calls int
}

// NewMockDialer returns a dialer that yields the given ports in order.
func NewMockDialer(ports ...Conn) *MockDialer {
	return &MockDialer{Ports: ports}
}

func (d *MockDialer) String() string { return "mock-rover:80" }

func (d *MockDialer) Dial(ctx context.Context) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls++
	if d.Error != nil {
		return nil, d.Error
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(d.Ports) == 0 {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: net.ErrClosed}
	}
	idx := d.Calls - 1
	if idx >= len(d.Ports) {
		idx = len(d.Ports) - 1
	}
	return d.Ports[idx], nil
}

// DialCount returns the number of Dial calls so far.
func (d *MockDialer) DialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Calls
}
