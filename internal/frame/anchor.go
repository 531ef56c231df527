package frame

import "strings"

// anchorFactors maps the nine anchor points to fractional offsets from a
// rect's top-left corner. Coordinates are top-left origin, y grows downward.
var anchorFactors = map[string][2]float64{
	"TOPLEFT":     {0, 0},
	"TOP":         {0.5, 0},
	"TOPRIGHT":    {1, 0},
	"LEFT":        {0, 0.5},
	"CENTER":      {0.5, 0.5},
	"RIGHT":       {1, 0.5},
	"BOTTOMLEFT":  {0, 1},
	"BOTTOM":      {0.5, 1},
	"BOTTOMRIGHT": {1, 1},
}

// AnchorFactors resolves an anchor name (case-insensitive) to its fractional
// offsets. Unknown names resolve to TOPLEFT.
func AnchorFactors(point string) (fx, fy float64) {
	if f, ok := anchorFactors[strings.ToUpper(strings.TrimSpace(point))]; ok {
		return f[0], f[1]
	}
	return 0, 0
}

// PlaceAnchored positions f so that its own anchor point lines up with the
// parent's relPoint plus (offX, offY). A nil parent anchors against the
// canvas rect (0, 0, canvasW, canvasH). This is a one-shot coordinate
// transform, not a layout constraint.
func PlaceAnchored(f *Frame, point string, parent *Frame, relPoint string, offX, offY, canvasW, canvasH float64) {
	px, py := 0.0, 0.0
	pw, ph := canvasW, canvasH
	if parent != nil {
		px, py = parent.X, parent.Y
		pw, ph = parent.Width, parent.Height
	}

	rfx, rfy := AnchorFactors(relPoint)
	ax := px + pw*rfx + offX
	ay := py + ph*rfy + offY

	sfx, sfy := AnchorFactors(point)
	f.X = ax - f.Width*sfx
	f.Y = ay - f.Height*sfy
}
