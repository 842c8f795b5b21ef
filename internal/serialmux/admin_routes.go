package serialmux

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"tailscale.com/tsweb"
)

var consolePage = template.Must(template.New("console").Parse(`<!doctype html>
<title>hub console</title>
<form method="post" action="send-command-api">
  <input name="command" placeholder="SYNC 101530250" autofocus>
  <button>send</button>
</form>
<p>Commands: {{range .}}<code>{{.}}</code> {{end}}</p>
<p>Live lines: <a href="tail">tail</a>.</p>
`))

var consoleHints = []string{"SYNC HHMMSSmmm", "FMT JSON", "RATE hz", "STATUS"}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	AttachAdminRoutesForMux(mux, s)
}

// AttachAdminRoutesForMux mounts the hub console on the tsweb debug page
// of mux, sending commands through s. Wrappers pass themselves so the
// console follows port reloads.
func AttachAdminRoutesForMux(mux *http.ServeMux, s SerialMuxInterface) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("send-command", "send a command to the receiver hub", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := consolePage.Execute(w, consoleHints); err != nil {
			hubLogf("render console: %v", err)
		}
	})
	debug.HandleSilentFunc("send-command-api", postOnly(func(w http.ResponseWriter, r *http.Request) {
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		if err := s.SendCommand(command); err != nil {
			hubLogf("console command %q: %v", command, err)
			http.Error(w, "Failed to write command", http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "Wrote command %q to serial port", command)
	}))
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		tail(w, r, s)
	})
}

func postOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

// tail streams hub lines as server-sent events named after ClassifyLine,
// so a browser can listen for "reading" or "ack" separately.
func tail(w http.ResponseWriter, r *http.Request, s SerialMuxInterface) {
	rc := http.NewResponseController(w)
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")

	id, lines := s.Subscribe()
	defer s.Unsubscribe(id)

	fmt.Fprint(w, ": ping\n\n")
	if err := rc.Flush(); err != nil {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ClassifyLine(line), line); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
