// Package httputil holds the small response helpers shared by the panel and
// debug handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"slices"
	"strings"
)

// ErrStreamingUnsupported is returned when the ResponseWriter cannot flush.
var ErrStreamingUnsupported = errors.New("streaming unsupported")

// WriteJSONError writes {"error": msg} with the given status code.
func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode json response: %v", err)
	}
}

// AllowMethods writes a 405 listing the allowed methods and returns false
// when r uses any other method.
func AllowMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	if slices.Contains(methods, r.Method) {
		return true
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

// EventStream writes Server-Sent Events.
type EventStream struct {
	w http.ResponseWriter
	f http.Flusher
}

// NewEventStream sets the SSE headers and sends an initial comment so the
// client sees the stream open straight away.
func NewEventStream(w http.ResponseWriter) (*EventStream, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	s := &EventStream{w: w, f: f}
	if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
		return nil, err
	}
	f.Flush()
	return s, nil
}

// Send writes one event. An empty name sends an unnamed message. Multi-line
// data is split over several data fields.
func (s *EventStream) Send(name, data string) error {
	var b strings.Builder
	if name != "" {
		fmt.Fprintf(&b, "event: %s\n", name)
	}
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")
	if _, err := fmt.Fprint(s.w, b.String()); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

// SendJSON sends data encoded as JSON.
func (s *EventStream) SendJSON(name string, data any) error {
	buf, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return s.Send(name, string(buf))
}
