// Package config loads the optional JSON settings file for the rover panel.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/rovermap/internal/render"
	"github.com/banshee-data/rovermap/internal/roverlink"
)

// ExampleConfigPath is the checked-in sample configuration.
const ExampleConfigPath = "config/rover.example.json"

// DefaultListen is where the control panel serves HTTP.
const DefaultListen = "localhost:8080"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// RoverConfig holds every setting the panel reads from file. Fields left out
// of the JSON stay nil and the Get* accessors supply the defaults, so a
// partial file is always safe.
type RoverConfig struct {
	// Rover endpoint
	Host           *string `json:"host,omitempty"`
	Port           *int    `json:"port,omitempty"`
	ConnectTimeout *string `json:"connect_timeout,omitempty"` // duration string like "10s"
	ReadTimeout    *string `json:"read_timeout,omitempty"`

	// Serial transport, used instead of TCP when serial_port is set
	SerialPort *string `json:"serial_port,omitempty"`
	BaudRate   *int    `json:"baud_rate,omitempty"`

	// Panel
	Listen       *string `json:"listen,omitempty"`
	OutputFile   *string `json:"output_file,omitempty"`
	CanvasSize   *int    `json:"canvas_size,omitempty"`
	ResetOnStart *bool   `json:"reset_on_start,omitempty"`
}

// Helper functions to create pointers
func ptrBool(v bool) *bool       { return &v }
func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// LoadRoverConfig reads and validates a JSON config file. The path must end
// in .json and the file must be under 1MB.
func LoadRoverConfig(path string) (*RoverConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &RoverConfig{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the values that are set.
func (c *RoverConfig) Validate() error {
	if c.Host != nil && strings.TrimSpace(*c.Host) == "" {
		return fmt.Errorf("host must not be empty")
	}
	if c.Port != nil && (*c.Port < 1 || *c.Port > 65535) {
		return fmt.Errorf("port must be between 1 and 65535, got %d", *c.Port)
	}

	for name, v := range map[string]*string{
		"connect_timeout": c.ConnectTimeout,
		"read_timeout":    c.ReadTimeout,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if c.BaudRate != nil && *c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", *c.BaudRate)
	}
	if c.CanvasSize != nil && (*c.CanvasSize < 50 || *c.CanvasSize > 4096) {
		return fmt.Errorf("canvas_size must be between 50 and 4096, got %d", *c.CanvasSize)
	}
	if c.OutputFile != nil && !strings.EqualFold(filepath.Ext(*c.OutputFile), ".png") {
		return fmt.Errorf("output_file must be a .png file, got %q", *c.OutputFile)
	}
	return nil
}

func parseDurationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// GetHost returns the rover address or the default.
func (c *RoverConfig) GetHost() string {
	if c.Host == nil {
		return roverlink.DefaultHost
	}
	return *c.Host
}

// GetPort returns the rover TCP port or the default.
func (c *RoverConfig) GetPort() int {
	if c.Port == nil {
		return roverlink.DefaultPort
	}
	return *c.Port
}

// GetConnectTimeout returns the dial timeout, 10s by default.
func (c *RoverConfig) GetConnectTimeout() time.Duration {
	return parseDurationOr(c.ConnectTimeout, roverlink.DefaultConnectTimeout)
}

// GetReadTimeout returns the socket read timeout, 10s by default.
func (c *RoverConfig) GetReadTimeout() time.Duration {
	return parseDurationOr(c.ReadTimeout, roverlink.DefaultReadTimeout)
}

// GetSerialPort returns the serial device, empty when TCP is used.
func (c *RoverConfig) GetSerialPort() string {
	if c.SerialPort == nil {
		return ""
	}
	return *c.SerialPort
}

// GetBaudRate returns the serial baud rate or the default.
func (c *RoverConfig) GetBaudRate() int {
	if c.BaudRate == nil {
		return roverlink.DefaultBaudRate
	}
	return *c.BaudRate
}

// GetListen returns the panel HTTP listen address or the default.
func (c *RoverConfig) GetListen() string {
	if c.Listen == nil {
		return DefaultListen
	}
	return *c.Listen
}

// GetOutputFile returns the export file name or the default.
func (c *RoverConfig) GetOutputFile() string {
	if c.OutputFile == nil {
		return render.DefaultOutputFile
	}
	return *c.OutputFile
}

// GetCanvasSize returns the live canvas side in pixels or the default.
func (c *RoverConfig) GetCanvasSize() int {
	if c.CanvasSize == nil {
		return render.DefaultCanvasSize
	}
	return *c.CanvasSize
}

// GetResetOnStart reports whether Start clears the path. Off by default.
func (c *RoverConfig) GetResetOnStart() bool {
	if c.ResetOnStart == nil {
		return false
	}
	return *c.ResetOnStart
}

// Apply copies each value set on override into c.
func (c *RoverConfig) Apply(override *RoverConfig) {
	if override == nil {
		return
	}
	if override.Host != nil {
		c.Host = override.Host
	}
	if override.Port != nil {
		c.Port = override.Port
	}
	if override.ConnectTimeout != nil {
		c.ConnectTimeout = override.ConnectTimeout
	}
	if override.ReadTimeout != nil {
		c.ReadTimeout = override.ReadTimeout
	}
	if override.SerialPort != nil {
		c.SerialPort = override.SerialPort
	}
	if override.BaudRate != nil {
		c.BaudRate = override.BaudRate
	}
	if override.Listen != nil {
		c.Listen = override.Listen
	}
	if override.OutputFile != nil {
		c.OutputFile = override.OutputFile
	}
	if override.CanvasSize != nil {
		c.CanvasSize = override.CanvasSize
	}
	if override.ResetOnStart != nil {
		c.ResetOnStart = override.ResetOnStart
	}
}
