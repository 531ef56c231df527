package viewer

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/addonbox/addonbox/internal/render"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 65536,
	// Viewer is loopback-only; the browser may connect from any local origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const wsWriteTimeout = 5 * time.Second

// canvasMsg is the wire form pushed to connected canvas clients.
type canvasMsg struct {
	Type   string                 `json:"type"` // "sync" or "frame"
	Width  float64                `json:"width,omitempty"`
	Height float64                `json:"height,omitempty"`
	Frames []render.FrameSnapshot `json:"frames,omitempty"`
	Frame  *render.FrameSnapshot  `json:"frame,omitempty"`
}

// Hub is the render.Canvas implementation backing the browser canvas. It
// retains every frame snapshot so late-joining clients get a full sync, and
// pushes incremental updates to connected websockets.
type Hub struct {
	w, h float64

	mu     sync.Mutex
	frames map[string]render.FrameSnapshot
	order  []string
	conns  map[*websocket.Conn]struct{}
}

func NewHub(w, h float64) *Hub {
	if w <= 0 || h <= 0 {
		w, h = 1024, 768
	}
	return &Hub{
		w:      w,
		h:      h,
		frames: make(map[string]render.FrameSnapshot),
		conns:  make(map[*websocket.Conn]struct{}),
	}
}

func (hub *Hub) Allocate(snap render.FrameSnapshot) string {
	id := uuid.NewString()
	snap.ID = id

	hub.mu.Lock()
	hub.frames[id] = snap
	hub.order = append(hub.order, id)
	hub.broadcastLocked(canvasMsg{Type: "frame", Frame: &snap})
	hub.mu.Unlock()
	return id
}

func (hub *Hub) Invalidate(snap render.FrameSnapshot) {
	hub.mu.Lock()
	if _, known := hub.frames[snap.ID]; known {
		hub.frames[snap.ID] = snap
		hub.broadcastLocked(canvasMsg{Type: "frame", Frame: &snap})
	}
	hub.mu.Unlock()
}

func (hub *Hub) Size() (float64, float64) {
	return hub.w, hub.h
}

// Snapshot returns every known frame in allocation order.
func (hub *Hub) Snapshot() []render.FrameSnapshot {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	out := make([]render.FrameSnapshot, 0, len(hub.order))
	for _, id := range hub.order {
		out = append(out, hub.frames[id])
	}
	return out
}

// ServeWS upgrades the connection, sends a full sync, then streams frame
// updates until the client goes away.
func (hub *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	hub.mu.Lock()
	full := canvasMsg{Type: "sync", Width: hub.w, Height: hub.h}
	for _, id := range hub.order {
		full.Frames = append(full.Frames, hub.frames[id])
	}
	if err := hub.writeLocked(conn, full); err != nil {
		hub.mu.Unlock()
		conn.Close()
		return
	}
	hub.conns[conn] = struct{}{}
	hub.mu.Unlock()

	// Read loop only detects disconnect; clients send nothing meaningful.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	hub.mu.Lock()
	delete(hub.conns, conn)
	hub.mu.Unlock()
	conn.Close()
}

// Reset drops every retained frame and pushes an empty sync to connected
// clients. Used when the host is rebuilt on addon reload.
func (hub *Hub) Reset() {
	hub.mu.Lock()
	hub.frames = make(map[string]render.FrameSnapshot)
	hub.order = nil
	hub.broadcastLocked(canvasMsg{Type: "sync", Width: hub.w, Height: hub.h})
	hub.mu.Unlock()
}

// ClientCount reports connected canvas clients.
func (hub *Hub) ClientCount() int {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	return len(hub.conns)
}

func (hub *Hub) broadcastLocked(msg canvasMsg) {
	for conn := range hub.conns {
		if err := hub.writeLocked(conn, msg); err != nil {
			delete(hub.conns, conn)
			conn.Close()
		}
	}
}

func (hub *Hub) writeLocked(conn *websocket.Conn, msg canvasMsg) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(msg)
}
