package roverlink

import "strings"

const (
	CommandStart = "START" // begin streaming position updates
	CommandStop  = "STOP"  // halt the rover and the stream
)

// Define allow list of commands the rover firmware understands
var allowedCommands = []string{
	CommandStart,
	CommandStop,
}

// IsAllowedCommand reports whether command (with or without its trailing
// newline) may be written to the rover.
func IsAllowedCommand(command string) bool {
	command = strings.TrimRight(command, "\r\n")
	for _, c := range allowedCommands {
		if c == command {
			return true
		}
	}
	return false
}
