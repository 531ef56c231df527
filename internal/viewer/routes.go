package viewer

import (
	"bytes"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// registerHostRoutes wires the host-inspection endpoints.
//
//	GET  /api/frames          — every frame snapshot, creation order
//	GET  /api/addons          — loaded addon metadata
//	GET  /api/addons/readme   — addon README rendered to HTML (?name=X)
//	GET  /api/libraries       — registered library names and minors
//	GET  /api/chunks          — executed chunk identities
//	POST /api/frames/click    — fire a frame's OnClick script
//	POST /api/slash           — run a slash command
func registerHostRoutes(mux *http.ServeMux, v Viewer) {
	handleGet(mux, "/api/frames", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, v.Host().Frames().List())
	})

	handleGet(mux, "/api/addons", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, v.Host().Addons())
	})

	handleGet(mux, "/api/addons/readme", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		if name == "" {
			http.Error(w, "missing name", http.StatusBadRequest)
			return
		}
		for _, info := range v.Host().Addons() {
			if info.Name != name {
				continue
			}
			out, err := renderAddonReadme(info.Dir)
			if err != nil {
				http.Error(w, "no readme", http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write(out)
			return
		}
		http.Error(w, "no such addon", http.StatusNotFound)
	})

	handleGet(mux, "/api/libraries", func(w http.ResponseWriter, r *http.Request) {
		type lib struct {
			Name  string `json:"name"`
			Minor int    `json:"minor"`
		}
		libs := v.Host().Libraries()
		out := make([]lib, 0)
		for _, name := range libs.Names() {
			minor, _ := libs.Minor(name)
			out = append(out, lib{Name: name, Minor: minor})
		}
		writeJSON(w, out)
	})

	handleGet(mux, "/api/chunks", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, v.Host().LoadedChunks())
	})

	handlePost(mux, "/api/frames/click", func(w http.ResponseWriter, r *http.Request, req struct {
		ID string `json:"id"`
	}) {
		if req.ID == "" {
			http.Error(w, "missing id", http.StatusBadRequest)
			return
		}
		v.Host().ClickFrame(req.ID)
		writeJSON(w, map[string]string{"status": "ok"})
	})

	handlePost(mux, "/api/slash", func(w http.ResponseWriter, r *http.Request, req struct {
		Input string `json:"input"`
	}) {
		matched := v.Host().RunSlashCommand(req.Input)
		writeJSON(w, map[string]any{"matched": matched})
	})
}

// renderAddonReadme renders the addon's README.md (any casing) to HTML.
func renderAddonReadme(dir string) ([]byte, error) {
	md := goldmark.New(
		goldmark.WithExtensions(extension.Table),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	// README.md wins; any other markdown file is the fallback.
	candidate := ""
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".md") {
			continue
		}
		if strings.EqualFold(e.Name(), "readme.md") {
			candidate = e.Name()
			break
		}
		if candidate == "" {
			candidate = e.Name()
		}
	}
	if candidate == "" {
		return nil, os.ErrNotExist
	}

	data, err := os.ReadFile(filepath.Join(dir, candidate))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := md.Convert(data, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
