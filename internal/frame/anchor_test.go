package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/addonbox/addonbox/internal/render"
)

func TestPlaceAnchoredCenterOfCanvas(t *testing.T) {
	f := &Frame{Width: 100, Height: 50}
	PlaceAnchored(f, "CENTER", nil, "CENTER", 0, 0, 800, 600)

	assert.Equal(t, 800.0/2-100.0/2, f.X)
	assert.Equal(t, 600.0/2-50.0/2, f.Y)
}

func TestPlaceAnchoredTopLeftOffsets(t *testing.T) {
	f := &Frame{Width: 100, Height: 50}
	PlaceAnchored(f, "TOPLEFT", nil, "TOPLEFT", 10, 20, 800, 600)

	assert.Equal(t, 10.0, f.X)
	assert.Equal(t, 20.0, f.Y)
}

func TestPlaceAnchoredBottomRight(t *testing.T) {
	f := &Frame{Width: 100, Height: 50}
	PlaceAnchored(f, "BOTTOMRIGHT", nil, "BOTTOMRIGHT", 0, 0, 800, 600)

	assert.Equal(t, 700.0, f.X)
	assert.Equal(t, 550.0, f.Y)
}

func TestPlaceAnchoredRelativeToParent(t *testing.T) {
	parent := &Frame{X: 100, Y: 100, Width: 200, Height: 200}
	f := &Frame{Width: 50, Height: 50}
	// f's TOP attaches to the parent's BOTTOM: horizontally centered under it.
	PlaceAnchored(f, "TOP", parent, "BOTTOM", 0, 10, 800, 600)

	assert.Equal(t, 100.0+200.0/2-50.0/2, f.X)
	assert.Equal(t, 100.0+200.0+10.0, f.Y)
}

func TestAnchorFactorsUnknownFallsBackToTopLeft(t *testing.T) {
	fx, fy := AnchorFactors("NOT-A-POINT")
	assert.Zero(t, fx)
	assert.Zero(t, fy)
}

func TestRegistrySetPointScenario(t *testing.T) {
	// Addon scenario: CreateFrame then
	// SetPoint("TOPLEFT", "UIParent", "TOPLEFT", 10, 20) lands at (10, 20).
	reg := NewRegistry(render.NewHeadless(800, 600), nil)
	f := reg.Create("Frame", "FooFrame", "", "")

	reg.SetPoint(f.ID, "TOPLEFT", "UIParent", "TOPLEFT", 10, 20)

	got, ok := reg.Get(f.ID)
	require.True(t, ok)
	assert.Equal(t, 10.0, got.X)
	assert.Equal(t, 20.0, got.Y)
}

func TestRegistrySetPointAbsolute(t *testing.T) {
	reg := NewRegistry(render.NewHeadless(800, 600), nil)
	f := reg.Create("Frame", "", "", "")

	reg.SetPoint(f.ID, "", "", "", 42, 24)

	got, _ := reg.Get(f.ID)
	assert.Equal(t, 42.0, got.X)
	assert.Equal(t, 24.0, got.Y)
}

func TestRegistryNamedFramesGetDefaultSize(t *testing.T) {
	reg := NewRegistry(render.NewHeadless(800, 600), nil)

	named := reg.Create("Frame", "MyFrame", "", "")
	assert.Greater(t, named.Width, 0.0)
	assert.Greater(t, named.Height, 0.0)

	anon := reg.Create("Frame", "", "", "")
	assert.Zero(t, anon.Width)
}

func TestRegistryIdentitiesAreUnique(t *testing.T) {
	reg := NewRegistry(render.NewHeadless(800, 600), nil)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		f := reg.Create("Frame", "", "", "")
		require.False(t, seen[f.ID], "duplicate identity %s", f.ID)
		seen[f.ID] = true
	}
}

func TestRegistryMutateUnknownIsNoop(t *testing.T) {
	reg := NewRegistry(render.NewHeadless(800, 600), nil)
	assert.NotPanics(t, func() {
		reg.Mutate("no-such-frame", func(f *Frame) { f.X = 1 })
	})
}
