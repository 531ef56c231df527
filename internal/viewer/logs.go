package viewer

import (
	"encoding/json"
	"net/http"

	"github.com/addonbox/addonbox/internal/diag"
)

// GET /api/logs
func (v Viewer) serveLogsJSON(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, v.Logs.Snapshot())
}

// GET /api/logs/stream  (Server-Sent Events) - tail only (no snapshot)
func (v Viewer) serveLogsSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := v.Logs.Subscribe()
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, e)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, e diag.Entry) {
	b, _ := json.Marshal(e)
	_, _ = w.Write([]byte("event: message\n"))
	_, _ = w.Write([]byte("data: " + string(b) + "\n\n"))
}
