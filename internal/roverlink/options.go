package roverlink

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"
)

const (
	// DefaultHost is the address the rover's access point hands itself.
	DefaultHost           = "192.168.147.159"
	DefaultPort           = 80
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 10 * time.Second
	DefaultBaudRate       = 115200
)

// Options describes the TCP endpoint of the rover and the socket timeouts.
type Options struct {
	Host           string
	Port           int
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// Normalise validates the options and fills in defaults for unset values.
func (o Options) Normalise() (Options, error) {
	opts := o
	opts.Host = strings.TrimSpace(opts.Host)
	if opts.Host == "" {
		opts.Host = DefaultHost
	}
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	if opts.Port < 1 || opts.Port > 65535 {
		return opts, fmt.Errorf("invalid port %d: must be between 1 and 65535", opts.Port)
	}
	if opts.ConnectTimeout < 0 || opts.ReadTimeout < 0 {
		return opts, fmt.Errorf("timeouts must not be negative")
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	return opts, nil
}

// Addr returns host:port.
func (o Options) Addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// SerialOptions describes a rover attached over a USB serial adapter instead
// of WiFi.
type SerialOptions struct {
	Path     string
	BaudRate int
	DataBits int
	StopBits int
	Parity   string
}

// Normalise validates the serial options and applies 8N1 at DefaultBaudRate.
func (o SerialOptions) Normalise() (SerialOptions, error) {
	opts := o
	if strings.TrimSpace(opts.Path) == "" {
		return opts, fmt.Errorf("serial port path is required")
	}
	if opts.BaudRate <= 0 {
		opts.BaudRate = DefaultBaudRate
	}
	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}
	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}
	switch strings.ToUpper(strings.TrimSpace(opts.Parity)) {
	case "", "N", "NONE":
		opts.Parity = "N"
	case "E", "EVEN":
		opts.Parity = "E"
	case "O", "ODD":
		opts.Parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}
	return opts, nil
}

// SerialMode converts the options into the mode go.bug.st/serial opens with.
func (o SerialOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalise()
	if err != nil {
		return nil, err
	}
	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}
	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	}
	return mode, nil
}
