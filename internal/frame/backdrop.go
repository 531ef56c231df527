package frame

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/addonbox/addonbox/internal/render"
)

// Color is an ARGB color.
type Color struct {
	A, R, G, B uint8
}

func (c Color) String() string {
	return fmt.Sprintf("#%02X%02X%02X%02X", c.A, c.R, c.G, c.B)
}

// namedColors is the fixed lookup table for bare color names in SetBackdrop.
var namedColors = map[string]Color{
	"black":   {255, 0, 0, 0},
	"white":   {255, 255, 255, 255},
	"red":     {255, 255, 0, 0},
	"green":   {255, 0, 128, 0},
	"blue":    {255, 0, 0, 255},
	"yellow":  {255, 255, 255, 0},
	"orange":  {255, 255, 165, 0},
	"purple":  {255, 128, 0, 128},
	"gray":    {255, 128, 128, 128},
	"grey":    {255, 128, 128, 128},
	"cyan":    {255, 0, 255, 255},
	"magenta": {255, 255, 0, 255},
	"brown":   {255, 139, 69, 19},
}

// ParseColor accepts "#RRGGBB", "#AARRGGBB", or a bare color name.
func ParseColor(s string) (Color, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "#") {
		hex := s[1:]
		switch len(hex) {
		case 6:
			hex = "FF" + hex
		case 8:
			// full AARRGGBB
		default:
			return Color{}, fmt.Errorf("bad color literal %q", s)
		}
		n, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return Color{}, fmt.Errorf("bad color literal %q", s)
		}
		return Color{
			A: uint8(n >> 24),
			R: uint8(n >> 16),
			G: uint8(n >> 8),
			B: uint8(n),
		}, nil
	}
	if c, ok := namedColors[strings.ToLower(s)]; ok {
		return c, nil
	}
	return Color{}, fmt.Errorf("unknown color %q", s)
}

// Insets are per-edge pixel counts for nine-patch rendering.
type Insets struct {
	Left, Right, Top, Bottom float64
}

// Backdrop is a frame's background fill: a solid color, a stretched image,
// or a nine-patch image with per-edge insets.
type Backdrop struct {
	Color     *Color
	Image     string // resolved path
	Tile      bool
	Insets    Insets
	NinePatch bool // implied by non-zero insets
}

// Spec converts to the canvas wire form.
func (b *Backdrop) Spec() *render.BackdropSpec {
	s := &render.BackdropSpec{
		Image:     b.Image,
		Tile:      b.Tile,
		NinePatch: b.NinePatch,
		InsetL:    b.Insets.Left,
		InsetR:    b.Insets.Right,
		InsetT:    b.Insets.Top,
		InsetB:    b.Insets.Bottom,
	}
	if b.Color != nil {
		s.Color = b.Color.String()
	}
	return s
}
