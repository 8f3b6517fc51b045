// Package monitoring holds the diagnostic logger and the line counters shared
// by the rover link and the control panel.
package monitoring

import (
	"log"
	"sync/atomic"
)

// Logf is the package-level diagnostic logger used by library packages. It
// defaults to log.Printf; SetLogger redirects or mutes it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Counters tracks what the receive loop has seen since process start.
type Counters struct {
	Accepted  atomic.Int64
	Malformed atomic.Int64
	Sessions  atomic.Int64
	Errors    atomic.Int64
}

// Snapshot returns the counters as a plain map for debug pages and JSON.
func (c *Counters) Snapshot() map[string]int64 {
	return map[string]int64{
		"accepted":  c.Accepted.Load(),
		"malformed": c.Malformed.Load(),
		"sessions":  c.Sessions.Load(),
		"errors":    c.Errors.Load(),
	}
}
