package roverlink

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"go.bug.st/serial"
)

// fakeSerialPort implements serial.Port. Reads return whatever is queued, or
// the zero-byte timeout read go.bug.st/serial produces.
type fakeSerialPort struct {
	data    []byte
	timeout time.Duration
	written []byte
}

func (p *fakeSerialPort) Read(b []byte) (int, error) {
	n := copy(b, p.data)
	p.data = p.data[n:]
	return n, nil
}
func (p *fakeSerialPort) Write(b []byte) (int, error) {
	p.written = append(p.written, b...)
	return len(b), nil
}
func (p *fakeSerialPort) SetMode(mode *serial.Mode) error                      { return nil }
func (p *fakeSerialPort) Drain() error                                         { return nil }
func (p *fakeSerialPort) ResetInputBuffer() error                              { return nil }
func (p *fakeSerialPort) ResetOutputBuffer() error                             { return nil }
func (p *fakeSerialPort) SetDTR(dtr bool) error                                { return nil }
func (p *fakeSerialPort) SetRTS(rts bool) error                                { return nil }
func (p *fakeSerialPort) GetModemStatusBits() (*serial.ModemStatusBits, error) { return nil, nil }
func (p *fakeSerialPort) SetReadTimeout(t time.Duration) error                 { p.timeout = t; return nil }
func (p *fakeSerialPort) Close() error                                         { return nil }
func (p *fakeSerialPort) Break(time.Duration) error                            { return nil }

func TestSerialDialer_TimeoutReadMapsToErrReadTimeout(t *testing.T) {
	fake := &fakeSerialPort{data: []byte("COORD,1,2\n")}
	d, err := NewSerialDialer(SerialOptions{Path: "/dev/ttyUSB0"})
	if err != nil {
		t.Fatalf("NewSerialDialer: %v", err)
	}
	var gotMode *serial.Mode
	d.open = func(path string, mode *serial.Mode) (serial.Port, error) {
		gotMode = mode
		return fake, nil
	}

	conn, err := d.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if gotMode.BaudRate != DefaultBaudRate {
		t.Errorf("opened with baud %d, want %d", gotMode.BaudRate, DefaultBaudRate)
	}
	if err := conn.SetReadTimeout(time.Second); err != nil {
		t.Fatalf("SetReadTimeout: %v", err)
	}
	if fake.timeout != time.Second {
		t.Errorf("port timeout = %v, want 1s", fake.timeout)
	}

	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	if err != nil || string(buf[:n]) != "COORD,1,2\n" {
		t.Fatalf("Read = %q, %v", buf[:n], err)
	}
	_, err = conn.Read(buf)
	if !IsTimeout(err) {
		t.Errorf("empty read error = %v, want timeout", err)
	}
	if d.String() != "/dev/ttyUSB0" {
		t.Errorf("String() = %q", d.String())
	}
}

func TestSerialDialer_OpenError(t *testing.T) {
	d, err := NewSerialDialer(SerialOptions{Path: "/dev/missing"})
	if err != nil {
		t.Fatalf("NewSerialDialer: %v", err)
	}
	openErr := errors.New("no such device")
	d.open = func(string, *serial.Mode) (serial.Port, error) { return nil, openErr }

	if _, err := d.Dial(context.Background()); !errors.Is(err, openErr) {
		t.Errorf("Dial error = %v, want %v", err, openErr)
	}
}

func TestTCPDialer_ReadTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		time.Sleep(200 * time.Millisecond)
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	d, err := NewTCPDialer(Options{Host: host, Port: port, ReadTimeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewTCPDialer: %v", err)
	}

	conn, err := d.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	_, err = conn.Read(make([]byte, 8))
	if !IsTimeout(err) {
		t.Errorf("Read error = %v, want timeout", err)
	}
}

func TestTCPDialer_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	d, err := NewTCPDialer(Options{Host: "127.0.0.1", Port: addr.Port, ConnectTimeout: time.Second})
	if err != nil {
		t.Fatalf("NewTCPDialer: %v", err)
	}
	if _, err := d.Dial(context.Background()); err == nil {
		t.Error("expected dial to a closed port to fail")
	}
}

func TestNewTCPDialer_InvalidPort(t *testing.T) {
	if _, err := NewTCPDialer(Options{Port: 99999}); err == nil {
		t.Error("expected error for invalid port")
	}
}
