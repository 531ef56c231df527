// Package frame owns the emulated UI element records. Script-visible frame
// handles hold only a stable identity; every mutation goes through the
// registry, which notifies the rendering collaborator.
package frame

import (
	"fmt"
	"sync"

	"github.com/addonbox/addonbox/internal/diag"
	"github.com/addonbox/addonbox/internal/render"
)

// Frame is one emulated UI element. Parent is an identity, never a pointer;
// parents are not aware of children.
type Frame struct {
	ID     string
	Name   string
	Kind   string // Frame, Button, FontString, Texture, ...
	Parent string // parent frame identity, "" for top level

	X, Y          float64
	Width, Height float64
	Shown         bool
	Alpha         float64

	Text     string
	FontSize float64

	Strata string
	Level  int

	Backdrop *Backdrop

	// AddonDir is the folder relative texture paths resolve against.
	AddonDir string
}

// Snapshot renders the record into its canvas-facing form.
func (f *Frame) Snapshot() render.FrameSnapshot {
	s := render.FrameSnapshot{
		ID:       f.ID,
		Name:     f.Name,
		Kind:     f.Kind,
		Parent:   f.Parent,
		X:        f.X,
		Y:        f.Y,
		Width:    f.Width,
		Height:   f.Height,
		Shown:    f.Shown,
		Alpha:    f.Alpha,
		Text:     f.Text,
		FontSize: f.FontSize,
		Strata:   f.Strata,
		Level:    f.Level,
	}
	if f.Backdrop != nil {
		s.Backdrop = f.Backdrop.Spec()
	}
	return s
}

// defaultNamedSize is assigned when a frame is first associated with a
// human-readable name, so named frames never start degenerate.
const defaultNamedSize = 200.0

// Registry owns every frame record for one host lifetime. Frames are never
// destroyed.
type Registry struct {
	mu     sync.Mutex
	frames map[string]*Frame
	byName map[string]string // name -> identity
	order  []string          // creation order, for stable listings
	canvas render.Canvas
	logf   func(format string, args ...any)
}

// NewRegistry creates a registry backed by the given canvas. A nil canvas
// falls back to a headless one so frame creation never crashes script code.
func NewRegistry(canvas render.Canvas, log *diag.Buffer) *Registry {
	if canvas == nil {
		canvas = render.NewHeadless(1024, 768)
	}
	logf := func(string, ...any) {}
	if log != nil {
		logf = log.Printf
	}
	return &Registry{
		frames: make(map[string]*Frame),
		byName: make(map[string]string),
		canvas: canvas,
		logf:   logf,
	}
}

// Create allocates a new frame record. The canvas assigns the identity.
func (r *Registry) Create(kind, name, parentID, addonDir string) *Frame {
	if kind == "" {
		kind = "Frame"
	}
	f := &Frame{
		Name:     name,
		Kind:     kind,
		Parent:   parentID,
		Shown:    true,
		Alpha:    1.0,
		AddonDir: addonDir,
	}
	if name != "" {
		f.Width = defaultNamedSize
		f.Height = defaultNamedSize
	}

	f.ID = r.canvas.Allocate(f.Snapshot())

	r.mu.Lock()
	r.frames[f.ID] = f
	if name != "" {
		r.byName[name] = f.ID
	}
	r.order = append(r.order, f.ID)
	r.mu.Unlock()
	return f
}

// Get resolves an identity back to its record.
func (r *Registry) Get(id string) (*Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.frames[id]
	return f, ok
}

// GetByName resolves a frame's human-readable name.
func (r *Registry) GetByName(name string) (*Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	f, ok := r.frames[id]
	return f, ok
}

// Mutate applies fn to the record and notifies the canvas. Absent identities
// are a logged no-op so a stale handle never crashes dependent script code.
func (r *Registry) Mutate(id string, fn func(*Frame)) {
	r.mu.Lock()
	f, ok := r.frames[id]
	if !ok {
		r.mu.Unlock()
		r.logf("FRAME: mutation on unknown frame %s ignored", id)
		return
	}
	fn(f)
	snap := f.Snapshot()
	r.mu.Unlock()

	r.canvas.Invalidate(snap)
}

// SetPoint positions a frame. With relPoint == "" the call is absolute
// placement at (offX, offY). Otherwise point/relPoint name anchors and
// parentRef names the parent frame (by identity, then by name; unresolvable
// parents anchor against the whole canvas). The transform is evaluated once;
// it does not re-run if the parent later moves.
func (r *Registry) SetPoint(id, point, parentRef, relPoint string, offX, offY float64) {
	if relPoint == "" {
		r.Mutate(id, func(f *Frame) {
			f.X = offX
			f.Y = offY
		})
		return
	}

	var parent *Frame
	if parentRef != "" {
		if p, ok := r.Get(parentRef); ok {
			parent = p
		} else if p, ok := r.GetByName(parentRef); ok {
			parent = p
		}
	}

	cw, ch := r.canvas.Size()
	r.Mutate(id, func(f *Frame) {
		PlaceAnchored(f, point, parent, relPoint, offX, offY, cw, ch)
	})
}

// List returns snapshots of every frame in creation order.
func (r *Registry) List() []render.FrameSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]render.FrameSnapshot, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.frames[id].Snapshot())
	}
	return out
}

// Len returns the number of frames.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// String implements fmt.Stringer for diagnostics.
func (r *Registry) String() string {
	return fmt.Sprintf("frame.Registry(%d frames)", r.Len())
}
