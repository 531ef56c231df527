// Package viewer is the local HTTP surface over a running host: diagnostic
// log tailing, frame and addon inspection, slash-command input, and the
// live-rendering websocket canvas.
package viewer

import (
	"net/http"

	"github.com/addonbox/addonbox/internal/config"
	"github.com/addonbox/addonbox/internal/diag"
	"github.com/addonbox/addonbox/internal/host"
)

type Viewer struct {
	// Host returns the current host. An accessor rather than a pointer:
	// the addon watcher replaces the host wholesale on reload.
	Host   func() *host.Host
	Logs   *diag.Buffer
	Canvas *Hub

	CfgPath string
	Cfg     config.Config
}

// Start serves the viewer on addr. Blocks; run it on its own goroutine.
func Start(addr string, v Viewer) error {
	return http.ListenAndServe(addr, Handler(v))
}

// Handler builds the viewer's HTTP surface.
func Handler(v Viewer) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", serveHome)

	if v.Logs != nil {
		mux.HandleFunc("/api/logs", v.serveLogsJSON)
		mux.HandleFunc("/api/logs/stream", v.serveLogsSSE)
	}

	if v.Host != nil {
		registerHostRoutes(mux, v)
	}

	if v.Canvas != nil {
		mux.HandleFunc("/ws/canvas", v.Canvas.ServeWS)
	}

	return noCache(mux)
}

// noCache disables browser caching so the inspection views always show the
// live state.
func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		next.ServeHTTP(w, r)
	})
}
