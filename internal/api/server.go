// Package api serves the control panel page and its JSON and SSE endpoints.
package api

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/rovermap/internal/httputil"
	"github.com/banshee-data/rovermap/internal/panel"
	"github.com/banshee-data/rovermap/internal/render"
	"github.com/banshee-data/rovermap/internal/version"
)

//go:embed index.html
var pageFS embed.FS

var pageTemplate = template.Must(template.ParseFS(pageFS, "index.html"))

// ANSI escape codes for log colouring
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server exposes a Panel over HTTP.
type Server struct {
	panel *panel.Panel
	size  int

	// ChartAssetsHost overrides where /api/chart loads echarts from.
	ChartAssetsHost string
}

// NewServer returns a server for p. size is the canvas side in pixels.
func NewServer(p *panel.Panel, size int) *Server {
	return &Server{panel: p, size: size}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
	bytes      int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	n, err := lrw.ResponseWriter.Write(b)
	lrw.bytes += n
	return n, err
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	code := strconv.Itoa(statusCode)
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + code + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + code + colorReset
	case statusCode >= 400:
		return colorBoldRed + code + colorReset
	default:
		return code
	}
}

// LoggingMiddleware logs method, path, status, size and duration. Canvas
// fetches are skipped; the page reloads the image on every redraw.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)
		if r.URL.Path == "/api/canvas.png" && lrw.statusCode == http.StatusOK {
			return
		}
		log.Printf(
			"[%s] %s %s%s%s %dB %.1fms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			lrw.bytes, float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the panel routes. Debug routes are attached separately.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.showPage)
	mux.HandleFunc("/api/start", s.command(s.panel.Start))
	mux.HandleFunc("/api/stop", s.command(s.panel.Stop))
	mux.HandleFunc("/api/save", s.command(s.panel.Save))
	mux.HandleFunc("/api/canvas.png", s.showCanvas)
	mux.HandleFunc("/api/path", s.showPath)
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/events", s.streamEvents)
	mux.HandleFunc("/api/chart", s.showChart)
	return mux
}

func (s *Server) showPage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		httputil.WriteJSONError(w, http.StatusNotFound, "not found")
		return
	}
	if !httputil.AllowMethods(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	st := s.panel.Status()
	data := struct {
		Size     int
		State    string
		Endpoint string
		Samples  int
		Version  string
	}{s.size, st.State, st.Endpoint, st.Samples, version.String()}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// command adapts a panel action to a POST endpoint returning the
// Notification. Failures are reported inside the Notification, so the
// status is always 200.
func (s *Server) command(action func(ctx context.Context) panel.Notification) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !httputil.AllowMethods(w, r, http.MethodPost) {
			return
		}
		httputil.WriteJSON(w, http.StatusOK, action(r.Context()))
	}
}

func (s *Server) showCanvas(w http.ResponseWriter, r *http.Request) {
	if !httputil.AllowMethods(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	frame := s.panel.Canvas()
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(frame)))
	_, _ = w.Write(frame)
}

func (s *Server) showPath(w http.ResponseWriter, r *http.Request) {
	if !httputil.AllowMethods(w, r, http.MethodGet) {
		return
	}
	samples := s.panel.Samples()
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"count":   len(samples),
		"samples": samples,
	})
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if !httputil.AllowMethods(w, r, http.MethodGet) {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.panel.Status())
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	if !httputil.AllowMethods(w, r, http.MethodGet) {
		return
	}
	id, events := s.panel.Subscribe()
	defer s.panel.Unsubscribe(id)

	stream, err := httputil.NewEventStream(w)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := stream.SendJSON(panel.EventState, s.panel.Status()); err != nil {
		return
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := stream.SendJSON(ev.Name, ev.Data); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) showChart(w http.ResponseWriter, r *http.Request) {
	if !httputil.AllowMethods(w, r, http.MethodGet) {
		return
	}
	var buf bytes.Buffer
	err := render.WriteChart(&buf, s.panel.Samples(), render.ChartOptions{AssetsHost: s.ChartAssetsHost})
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
