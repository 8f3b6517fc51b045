package roverlink

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"

	"tailscale.com/tsweb"

	"github.com/banshee-data/rovermap/internal/httputil"
)

var sendCommandTemplate = template.Must(template.New("send-command").Parse(`<!doctype html>
<html>
<head><title>rover link</title></head>
<body>
<h1>Rover link: {{.Endpoint}}</h1>
<p>State: {{.State}}</p>
<form method="post" action="rover-send-command-api">
  <select name="command">{{range .Commands}}<option>{{.}}</option>{{end}}</select>
  <button type="submit">Send</button>
</form>
<h2>Tail</h2>
<pre id="tail"></pre>
<script>
const tail = document.getElementById("tail");
const es = new EventSource("rover-tail");
es.onmessage = (e) => { tail.textContent = e.data + "\n" + tail.textContent.slice(0, 20000); };
</script>
</body>
</html>
`))

// AttachAdminRoutes mounts rover link debugging endpoints under /debug/.
// tsweb restricts them to localhost and tailnet peers.
func (m *Manager) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.KVFunc("Rover endpoint", func() any { return m.Endpoint() })
	debug.KVFunc("Rover state", func() any { return m.State().String() })
	debug.KVFunc("Rover lines", func() any { return m.counters.Snapshot() })

	debug.HandleFunc("rover-send-command", "send a command to the rover and tail its output", func(w http.ResponseWriter, r *http.Request) {
		data := struct {
			Endpoint string
			State    string
			Commands []string
		}{m.Endpoint(), m.State().String(), allowedCommands}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := sendCommandTemplate.Execute(w, data); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
		}
	})

	debug.HandleSilentFunc("rover-send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		if err := m.SendCommand(command); err != nil {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, ErrCommandNotAllowed):
				status = http.StatusBadRequest
			case errors.Is(err, ErrNotConnected):
				status = http.StatusConflict
			}
			http.Error(w, fmt.Sprintf("Failed to write command: %v", err), status)
			return
		}
		io.WriteString(w, fmt.Sprintf("Wrote command %q to rover", command))
	})

	// Server-Sent Events stream of raw lines from the rover
	debug.HandleSilentFunc("rover-tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		id, c := m.Subscribe()
		defer m.Unsubscribe(id)

		stream, err := httputil.NewEventStream(w)
		if err != nil {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		for {
			select {
			case line, ok := <-c:
				if !ok {
					return
				}
				if err := stream.Send("", line); err != nil {
					return
				}
			case <-r.Context().Done():
				return
			}
		}
	})
}
