package viewer

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/addonbox/addonbox/internal/config"
	"github.com/addonbox/addonbox/internal/diag"
	"github.com/addonbox/addonbox/internal/host"
	"github.com/addonbox/addonbox/internal/render"
)

func newTestViewer(t *testing.T) (Viewer, *host.Host) {
	t.Helper()
	logs := diag.NewBuffer(100)
	hub := NewHub(800, 600)
	h, err := host.New(host.Options{
		Cfg:    config.Default().Lua,
		Canvas: hub,
		Diag:   logs,
	})
	require.NoError(t, err)
	t.Cleanup(h.Shutdown)

	return Viewer{
		Host:   func() *host.Host { return h },
		Logs:   logs,
		Canvas: hub,
		Cfg:    config.Default(),
	}, h
}

func getJSON(t *testing.T, srv *httptest.Server, path string, out any) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestFramesEndpoint(t *testing.T) {
	v, h := newTestViewer(t)
	srv := httptest.NewServer(Handler(v))
	defer srv.Close()

	require.True(t, h.RunAddonChunk(`
		local f = CreateFrame("Frame", "ApiFrame")
		f:SetPoint(5, 6)
		f:SetText("hello")
	`, "T", "inline:api"))

	var frames []render.FrameSnapshot
	getJSON(t, srv, "/api/frames", &frames)

	var found *render.FrameSnapshot
	for i := range frames {
		if frames[i].Name == "ApiFrame" {
			found = &frames[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, 5.0, found.X)
	assert.Equal(t, "hello", found.Text)
}

func TestLogsEndpoint(t *testing.T) {
	v, h := newTestViewer(t)
	srv := httptest.NewServer(Handler(v))
	defer srv.Close()

	require.True(t, h.RunAddonChunk(`print("log marker")`, "T", "inline:log"))

	var entries []diag.Entry
	getJSON(t, srv, "/api/logs", &entries)

	joined := ""
	for _, e := range entries {
		joined += e.Msg + "\n"
	}
	assert.Contains(t, joined, "log marker")
}

func TestSlashEndpoint(t *testing.T) {
	v, h := newTestViewer(t)
	srv := httptest.NewServer(Handler(v))
	defer srv.Close()

	require.True(t, h.RunAddonChunk(`
		SLASH_PING1 = "/ping"
		SlashCmdList["PING"] = function(msg) pongMsg = msg end
	`, "T", "inline:slash"))

	body, _ := json.Marshal(map[string]string{"input": "/ping hello"})
	resp, err := http.Post(srv.URL+"/api/slash", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, true, out["matched"])
}

func TestAddonsAndReadmeEndpoints(t *testing.T) {
	v, h := newTestViewer(t)
	srv := httptest.NewServer(Handler(v))
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "Documented")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Documented.toc"),
		[]byte("## Title: Documented\nCore.lua\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Core.lua"),
		[]byte("-- nothing"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"),
		[]byte("# Documented\n\nSome *markdown*.\n"), 0o644))
	require.NoError(t, h.LoadAddon(dir))

	var addons []host.AddonInfo
	getJSON(t, srv, "/api/addons", &addons)
	require.Len(t, addons, 1)
	assert.Equal(t, "Documented", addons[0].Title)

	resp, err := http.Get(srv.URL + "/api/addons/readme?name=Documented")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	assert.Contains(t, buf.String(), "<em>markdown</em>")

	resp2, err := http.Get(srv.URL + "/api/addons/readme?name=NoSuch")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestMethodEnforcement(t *testing.T) {
	v, _ := newTestViewer(t)
	srv := httptest.NewServer(Handler(v))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/frames", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp2, err := http.Get(srv.URL + "/api/slash")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp2.StatusCode)
}

func TestHubAllocateAndSnapshot(t *testing.T) {
	hub := NewHub(640, 480)

	id1 := hub.Allocate(render.FrameSnapshot{Kind: "Frame"})
	id2 := hub.Allocate(render.FrameSnapshot{Kind: "Button"})
	assert.NotEmpty(t, id1)
	assert.NotEqual(t, id1, id2)

	w, h := hub.Size()
	assert.Equal(t, 640.0, w)
	assert.Equal(t, 480.0, h)

	hub.Invalidate(render.FrameSnapshot{ID: id1, Kind: "Frame", X: 9})
	// Unknown identities are ignored.
	hub.Invalidate(render.FrameSnapshot{ID: "nope", X: 1})

	snaps := hub.Snapshot()
	require.Len(t, snaps, 2)
	assert.Equal(t, id1, snaps[0].ID)
	assert.Equal(t, 9.0, snaps[0].X)
	assert.Equal(t, id2, snaps[1].ID)
}

func TestCanvasWebsocketSync(t *testing.T) {
	v, h := newTestViewer(t)
	srv := httptest.NewServer(Handler(v))
	defer srv.Close()

	require.True(t, h.RunAddonChunk(`
		CreateFrame("Frame", "WsFrame")
	`, "T", "inline:ws"))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/canvas"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var msg canvasMsg
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "sync", msg.Type)
	assert.Equal(t, 800.0, msg.Width)

	names := make([]string, 0, len(msg.Frames))
	for _, f := range msg.Frames {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "WsFrame")
	assert.Contains(t, names, "UIParent")
}
