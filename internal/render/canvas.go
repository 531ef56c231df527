// Package render defines the contract between the frame registry and the
// rendering collaborator. The registry owns all frame records; a Canvas only
// allocates on-screen element identities, repaints on mutation, and answers
// the current canvas size.
package render

import (
	"sync"

	"github.com/google/uuid"
)

// FrameSnapshot is the render-facing view of one frame record.
type FrameSnapshot struct {
	ID       string        `json:"id"`
	Name     string        `json:"name,omitempty"`
	Kind     string        `json:"kind"`
	Parent   string        `json:"parent,omitempty"`
	X        float64       `json:"x"`
	Y        float64       `json:"y"`
	Width    float64       `json:"width"`
	Height   float64       `json:"height"`
	Shown    bool          `json:"shown"`
	Alpha    float64       `json:"alpha"`
	Text     string        `json:"text,omitempty"`
	FontSize float64       `json:"font_size,omitempty"`
	Strata   string        `json:"strata,omitempty"`
	Level    int           `json:"level,omitempty"`
	Backdrop *BackdropSpec `json:"backdrop,omitempty"`
}

// BackdropSpec describes a frame's background fill.
type BackdropSpec struct {
	Color     string  `json:"color,omitempty"` // #AARRGGBB
	Image     string  `json:"image,omitempty"`
	Tile      bool    `json:"tile,omitempty"`
	NinePatch bool    `json:"nine_patch,omitempty"`
	InsetL    float64 `json:"inset_l,omitempty"`
	InsetR    float64 `json:"inset_r,omitempty"`
	InsetT    float64 `json:"inset_t,omitempty"`
	InsetB    float64 `json:"inset_b,omitempty"`
}

// Canvas is the rendering collaborator.
type Canvas interface {
	// Allocate creates an on-screen element for the frame and returns its
	// stable identity.
	Allocate(snap FrameSnapshot) string
	// Invalidate repaints an existing element after a mutation.
	Invalidate(snap FrameSnapshot)
	// Size reports the current canvas dimensions.
	Size() (w, h float64)
}

// Headless is a Canvas with no output. It hands out stable identities and a
// fixed size, which is all the shim needs when no viewer is attached.
type Headless struct {
	W, H float64

	mu    sync.Mutex
	known map[string]FrameSnapshot
}

func NewHeadless(w, h float64) *Headless {
	return &Headless{W: w, H: h, known: make(map[string]FrameSnapshot)}
}

func (c *Headless) Allocate(snap FrameSnapshot) string {
	id := uuid.NewString()
	snap.ID = id
	c.mu.Lock()
	c.known[id] = snap
	c.mu.Unlock()
	return id
}

func (c *Headless) Invalidate(snap FrameSnapshot) {
	c.mu.Lock()
	c.known[snap.ID] = snap
	c.mu.Unlock()
}

func (c *Headless) Size() (float64, float64) {
	return c.W, c.H
}
