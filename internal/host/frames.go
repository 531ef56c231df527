package host

import (
	"os"

	lua "github.com/yuin/gopher-lua"

	"github.com/addonbox/addonbox/internal/frame"
	"github.com/addonbox/addonbox/internal/util"
)

// Frame handles are plain tables carrying only the registry identity; all
// state lives in the frame registry. Every handle shares one methods table
// through its metatable, so per-frame cost stays at one table.

const frameIDField = "__frameID"

// installFrameAPI builds the shared frame methods table, publishes
// CreateFrame, and creates the canvas-sized root frame UIParent.
func (h *Host) installFrameAPI() {
	L := h.L
	h.buildFrameMethods()

	L.SetGlobal("CreateFrame", L.NewFunction(func(L *lua.LState) int {
		kind := "Frame"
		if L.GetTop() >= 1 && L.Get(1) != lua.LNil {
			kind = L.CheckString(1)
		}
		name := ""
		if L.GetTop() >= 2 && L.Get(2) != lua.LNil {
			name = L.CheckString(2)
		}
		parentID := h.resolveParentRef(L.Get(3))
		// Arg 4 (a template name) has no emulated counterpart; ignored.

		rec := h.frames.Create(kind, name, parentID, h.currentAddonDir)
		handle := h.frameHandle(rec.ID)
		if name != "" {
			L.SetGlobal(name, handle)
		}
		L.Push(handle)
		return 1
	}))

	uiParent := h.frames.Create("Frame", "UIParent", "", "")
	cw, ch := h.canvas.Size()
	h.frames.Mutate(uiParent.ID, func(f *frame.Frame) {
		f.Width = cw
		f.Height = ch
	})
	L.SetGlobal("UIParent", h.frameHandle(uiParent.ID))
}

// frameHandle returns the canonical script handle for a frame identity,
// creating it on first use. Queue context only.
func (h *Host) frameHandle(id string) *lua.LTable {
	if handle, ok := h.handles[id]; ok {
		return handle
	}
	L := h.L
	handle := L.NewTable()
	handle.RawSetString(frameIDField, lua.LString(id))
	mt := L.NewTable()
	mt.RawSetString("__index", h.frameMethods)
	L.SetMetatable(handle, mt)
	h.handles[id] = handle
	return handle
}

// resolveParentRef maps a script-provided parent (handle, global name, or
// nil) to a registry identity. Unresolvable parents become top-level.
func (h *Host) resolveParentRef(v lua.LValue) string {
	switch p := v.(type) {
	case *lua.LTable:
		if id, ok := p.RawGetString(frameIDField).(lua.LString); ok {
			return string(id)
		}
	case lua.LString:
		if f, ok := h.frames.GetByName(string(p)); ok {
			return f.ID
		}
	}
	return ""
}

func (h *Host) frameScript(id, script string) lua.LValue {
	if slots, ok := h.scripts[id]; ok {
		if fn, ok := slots[script]; ok {
			return fn
		}
	}
	return lua.LNil
}

func (h *Host) setFrameScript(id, script string, fn lua.LValue) {
	slots, ok := h.scripts[id]
	if !ok {
		slots = make(map[string]lua.LValue)
		h.scripts[id] = slots
	}
	if fn == lua.LNil {
		delete(slots, script)
		return
	}
	slots[script] = fn
}

// fireFrameScript invokes a script slot with the handle as self. Errors go
// to diagnostics; the caller never sees them.
func (h *Host) fireFrameScript(id, script string, extra ...lua.LValue) {
	fn := h.frameScript(id, script)
	if fn == lua.LNil {
		return
	}
	args := append([]lua.LValue{h.frameHandle(id)}, extra...)
	if err := h.pcall(fn, args...); err != nil {
		h.diag.Printf("FRAME: %s script on %s failed: %v", script, id, err)
	}
}

func (h *Host) buildFrameMethods() {
	L := h.L
	m := L.NewTable()
	h.frameMethods = m

	// self resolves to the registry identity; stale handles are tolerated
	// by the registry's no-op mutation path.
	selfID := func(L *lua.LState) string {
		self := L.CheckTable(1)
		if id, ok := self.RawGetString(frameIDField).(lua.LString); ok {
			return string(id)
		}
		L.RaiseError("not a frame handle")
		return ""
	}

	reg := func(name string, fn func(L *lua.LState, id string) int) {
		m.RawSetString(name, L.NewFunction(func(L *lua.LState) int {
			return fn(L, selfID(L))
		}))
	}

	getRec := func(id string) (*frame.Frame, bool) {
		return h.frames.Get(id)
	}

	reg("GetName", func(L *lua.LState, id string) int {
		if f, ok := getRec(id); ok && f.Name != "" {
			L.Push(lua.LString(f.Name))
		} else {
			L.Push(lua.LNil)
		}
		return 1
	})

	reg("GetParent", func(L *lua.LState, id string) int {
		if f, ok := getRec(id); ok && f.Parent != "" {
			L.Push(h.frameHandle(f.Parent))
		} else {
			L.Push(lua.LNil)
		}
		return 1
	})

	reg("GetObjectType", func(L *lua.LState, id string) int {
		kind := "Frame"
		if f, ok := getRec(id); ok {
			kind = f.Kind
		}
		L.Push(lua.LString(kind))
		return 1
	})

	// SetPoint accepts three shapes:
	//   SetPoint(x, y)                                absolute placement
	//   SetPoint(point[, x, y])                       anchor to the parent
	//   SetPoint(point, parent, relPoint[, x, y])     full anchor form
	reg("SetPoint", func(L *lua.LState, id string) int {
		if _, isNum := L.Get(2).(lua.LNumber); isNum {
			h.frames.SetPoint(id, "", "", "", float64(L.CheckNumber(2)), float64(L.CheckNumber(3)))
			return 0
		}

		point := L.CheckString(2)
		parentRef := ""
		relPoint := point
		offX, offY := 0.0, 0.0

		switch arg3 := L.Get(3).(type) {
		case lua.LNumber:
			offX = float64(arg3)
			offY = float64(L.OptNumber(4, 0))
		case *lua.LTable, lua.LString:
			parentRef = h.resolveParentRef(arg3)
			if parentRef == "" {
				if s, ok := arg3.(lua.LString); ok {
					parentRef = string(s)
				}
			}
			relPoint = L.OptString(4, point)
			offX = float64(L.OptNumber(5, 0))
			offY = float64(L.OptNumber(6, 0))
		}

		if parentRef == "" {
			if f, ok := getRec(id); ok {
				parentRef = f.Parent
			}
		}
		h.frames.SetPoint(id, point, parentRef, relPoint, offX, offY)
		return 0
	})

	reg("ClearAllPoints", func(L *lua.LState, id string) int {
		return 0
	})

	reg("SetAllPoints", func(L *lua.LState, id string) int {
		targetID := h.resolveParentRef(L.Get(2))
		if targetID == "" {
			if f, ok := getRec(id); ok {
				targetID = f.Parent
			}
		}
		var x, y, w, hh float64
		if t, ok := getRec(targetID); ok {
			x, y, w, hh = t.X, t.Y, t.Width, t.Height
		} else {
			w, hh = h.canvas.Size()
		}
		h.frames.Mutate(id, func(f *frame.Frame) {
			f.X, f.Y, f.Width, f.Height = x, y, w, hh
		})
		return 0
	})

	reg("SetSize", func(L *lua.LState, id string) int {
		w := float64(L.CheckNumber(2))
		hh := float64(L.CheckNumber(3))
		h.frames.Mutate(id, func(f *frame.Frame) {
			f.Width, f.Height = w, hh
		})
		return 0
	})

	reg("SetWidth", func(L *lua.LState, id string) int {
		w := float64(L.CheckNumber(2))
		h.frames.Mutate(id, func(f *frame.Frame) { f.Width = w })
		return 0
	})

	reg("SetHeight", func(L *lua.LState, id string) int {
		hh := float64(L.CheckNumber(2))
		h.frames.Mutate(id, func(f *frame.Frame) { f.Height = hh })
		return 0
	})

	reg("GetWidth", func(L *lua.LState, id string) int {
		var w float64
		if f, ok := getRec(id); ok {
			w = f.Width
		}
		L.Push(lua.LNumber(w))
		return 1
	})

	reg("GetHeight", func(L *lua.LState, id string) int {
		var hh float64
		if f, ok := getRec(id); ok {
			hh = f.Height
		}
		L.Push(lua.LNumber(hh))
		return 1
	})

	reg("Show", func(L *lua.LState, id string) int {
		wasShown := false
		if f, ok := getRec(id); ok {
			wasShown = f.Shown
		}
		h.frames.Mutate(id, func(f *frame.Frame) { f.Shown = true })
		if !wasShown {
			h.fireFrameScript(id, "OnShow")
		}
		return 0
	})

	reg("Hide", func(L *lua.LState, id string) int {
		wasShown := false
		if f, ok := getRec(id); ok {
			wasShown = f.Shown
		}
		h.frames.Mutate(id, func(f *frame.Frame) { f.Shown = false })
		if wasShown {
			h.fireFrameScript(id, "OnHide")
		}
		return 0
	})

	reg("IsShown", func(L *lua.LState, id string) int {
		shown := false
		if f, ok := getRec(id); ok {
			shown = f.Shown
		}
		L.Push(lua.LBool(shown))
		return 1
	})
	m.RawSetString("IsVisible", m.RawGetString("IsShown"))

	reg("SetAlpha", func(L *lua.LState, id string) int {
		a := float64(L.CheckNumber(2))
		if a < 0 {
			a = 0
		} else if a > 1 {
			a = 1
		}
		h.frames.Mutate(id, func(f *frame.Frame) { f.Alpha = a })
		return 0
	})

	reg("GetAlpha", func(L *lua.LState, id string) int {
		a := 1.0
		if f, ok := getRec(id); ok {
			a = f.Alpha
		}
		L.Push(lua.LNumber(a))
		return 1
	})

	reg("SetText", func(L *lua.LState, id string) int {
		text := L.OptString(2, "")
		h.frames.Mutate(id, func(f *frame.Frame) { f.Text = text })
		return 0
	})

	reg("GetText", func(L *lua.LState, id string) int {
		text := ""
		if f, ok := getRec(id); ok {
			text = f.Text
		}
		L.Push(lua.LString(text))
		return 1
	})

	reg("SetFont", func(L *lua.LState, id string) int {
		size := float64(L.OptNumber(3, 0))
		if size > 0 {
			h.frames.Mutate(id, func(f *frame.Frame) { f.FontSize = size })
		}
		return 0
	})

	reg("SetFontSize", func(L *lua.LState, id string) int {
		size := float64(L.CheckNumber(2))
		h.frames.Mutate(id, func(f *frame.Frame) { f.FontSize = size })
		return 0
	})

	reg("SetFrameStrata", func(L *lua.LState, id string) int {
		strata := L.CheckString(2)
		h.frames.Mutate(id, func(f *frame.Frame) { f.Strata = strata })
		return 0
	})

	reg("GetFrameStrata", func(L *lua.LState, id string) int {
		strata := "MEDIUM"
		if f, ok := getRec(id); ok && f.Strata != "" {
			strata = f.Strata
		}
		L.Push(lua.LString(strata))
		return 1
	})

	reg("SetFrameLevel", func(L *lua.LState, id string) int {
		level := int(L.CheckNumber(2))
		h.frames.Mutate(id, func(f *frame.Frame) { f.Level = level })
		return 0
	})

	reg("GetFrameLevel", func(L *lua.LState, id string) int {
		level := 0
		if f, ok := getRec(id); ok {
			level = f.Level
		}
		L.Push(lua.LNumber(level))
		return 1
	})

	reg("SetScript", func(L *lua.LState, id string) int {
		name := L.CheckString(2)
		fn := L.Get(3)
		if fn != lua.LNil {
			L.CheckFunction(3)
		}
		h.setFrameScript(id, name, fn)
		return 0
	})

	reg("GetScript", func(L *lua.LState, id string) int {
		L.Push(h.frameScript(id, L.CheckString(2)))
		return 1
	})

	reg("HookScript", func(L *lua.LState, id string) int {
		name := L.CheckString(2)
		hook := L.CheckFunction(3)
		prev := h.frameScript(id, name)
		if prev == lua.LNil {
			h.setFrameScript(id, name, hook)
			return 0
		}
		chained := L.NewFunction(func(L *lua.LState) int {
			args := make([]lua.LValue, L.GetTop())
			for i := range args {
				args[i] = L.Get(i + 1)
			}
			L.CallByParam(lua.P{Fn: prev, NRet: 0, Protect: false}, args...)
			L.CallByParam(lua.P{Fn: hook, NRet: 0, Protect: false}, args...)
			return 0
		})
		h.setFrameScript(id, name, chained)
		return 0
	})

	reg("RegisterEvent", func(L *lua.LState, id string) int {
		ev := L.CheckString(2)
		// The wrapper re-reads OnEvent at dispatch time, so scripts may
		// register first and attach the handler later.
		wrapper := L.NewFunction(func(L *lua.LState) int {
			fn := h.frameScript(id, "OnEvent")
			if fn == lua.LNil {
				return 0
			}
			args := make([]lua.LValue, 0, L.GetTop()+1)
			args = append(args, h.frameHandle(id))
			for i := 1; i <= L.GetTop(); i++ {
				args = append(args, L.Get(i))
			}
			L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: false}, args...)
			return 0
		})
		h.events.Register(ev, "frame:"+id, wrapper)
		return 0
	})

	reg("UnregisterEvent", func(L *lua.LState, id string) int {
		h.events.Unregister(L.CheckString(2), "frame:"+id)
		return 0
	})

	reg("UnregisterAllEvents", func(L *lua.LState, id string) int {
		h.events.UnregisterAll("frame:" + id)
		return 0
	})

	reg("SetBackdrop", func(L *lua.LState, id string) int {
		h.applyBackdrop(L, id, L.Get(2))
		return 0
	})

	reg("SetBackdropColor", func(L *lua.LState, id string) int {
		c := colorFromArgs(L, 2)
		h.frames.Mutate(id, func(f *frame.Frame) {
			if f.Backdrop == nil {
				f.Backdrop = &frame.Backdrop{}
			}
			f.Backdrop.Color = &c
		})
		return 0
	})

	// Border styling has no emulated counterpart; tolerated for scripts
	// written against the full API.
	reg("SetBackdropBorderColor", func(L *lua.LState, id string) int { return 0 })

	reg("SetTexture", func(L *lua.LState, id string) int {
		switch v := L.Get(2).(type) {
		case lua.LString:
			h.applyBackdropImage(id, string(v), nil, false)
		case lua.LNumber:
			c := colorFromArgs(L, 2)
			h.frames.Mutate(id, func(f *frame.Frame) {
				if f.Backdrop == nil {
					f.Backdrop = &frame.Backdrop{}
				}
				f.Backdrop.Color = &c
			})
		}
		return 0
	})

	reg("SetVertexColor", func(L *lua.LState, id string) int {
		c := colorFromArgs(L, 2)
		h.frames.Mutate(id, func(f *frame.Frame) {
			if f.Backdrop == nil {
				f.Backdrop = &frame.Backdrop{}
			}
			f.Backdrop.Color = &c
		})
		return 0
	})

	reg("CreateTexture", func(L *lua.LState, id string) int {
		name := L.OptString(2, "")
		rec := h.createChild(id, "Texture", name)
		L.Push(h.frameHandle(rec.ID))
		return 1
	})

	reg("CreateFontString", func(L *lua.LState, id string) int {
		name := L.OptString(2, "")
		rec := h.createChild(id, "FontString", name)
		L.Push(h.frameHandle(rec.ID))
		return 1
	})

	for _, slot := range []string{"Normal", "Pushed", "Highlight", "Disabled"} {
		slot := slot
		reg("Get"+slot+"Texture", func(L *lua.LState, id string) int {
			L.Push(h.textureSlot(id, slot))
			return 1
		})
		reg("Set"+slot+"Texture", func(L *lua.LState, id string) int {
			switch v := L.Get(2).(type) {
			case lua.LString:
				handle := h.textureSlot(id, slot)
				texID := string(handle.RawGetString(frameIDField).(lua.LString))
				h.applyBackdropImage(texID, string(v), nil, false)
			case *lua.LTable:
				h.setTextureSlot(id, slot, v)
			}
			return 0
		})
	}

	// Interaction and layout calls with no emulated behavior. Tolerated so
	// real-world scripts run unmodified.
	for _, name := range []string{
		"EnableMouse", "EnableMouseWheel", "SetMovable", "SetResizable",
		"RegisterForDrag", "RegisterForClicks", "StartMoving",
		"StopMovingOrSizing", "SetUserPlaced", "SetClampedToScreen",
		"SetJustifyH", "SetJustifyV", "SetTextColor", "SetTexCoord",
		"SetNonSpaceWrap", "SetShadowOffset", "SetID", "Raise", "Lower",
	} {
		m.RawSetString(name, L.NewFunction(func(L *lua.LState) int { return 0 }))
	}

	m.RawSetString("GetScale", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(1))
		return 1
	}))
	m.RawSetString("SetScale", L.NewFunction(func(L *lua.LState) int { return 0 }))
	m.RawSetString("GetID", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(0))
		return 1
	}))
}

// createChild makes a subordinate region record inheriting the parent's
// addon directory.
func (h *Host) createChild(parentID, kind, name string) *frame.Frame {
	addonDir := ""
	if p, ok := h.frames.Get(parentID); ok {
		addonDir = p.AddonDir
	}
	return h.frames.Create(kind, name, parentID, addonDir)
}

// textureSlot returns the named texture region of a frame, synthesizing a
// placeholder child on first access so chained calls never hit nil.
func (h *Host) textureSlot(id, slot string) *lua.LTable {
	slots, ok := h.textureSlots[id]
	if !ok {
		slots = make(map[string]*lua.LTable)
		h.textureSlots[id] = slots
	}
	if handle, ok := slots[slot]; ok {
		return handle
	}
	rec := h.createChild(id, "Texture", "")
	handle := h.frameHandle(rec.ID)
	slots[slot] = handle
	return handle
}

func (h *Host) setTextureSlot(id, slot string, handle *lua.LTable) {
	slots, ok := h.textureSlots[id]
	if !ok {
		slots = make(map[string]*lua.LTable)
		h.textureSlots[id] = slots
	}
	slots[slot] = handle
}

// applyBackdrop handles the polymorphic SetBackdrop argument: a color
// string, a structured table, or nil to clear.
func (h *Host) applyBackdrop(L *lua.LState, id string, v lua.LValue) {
	switch arg := v.(type) {
	case lua.LString:
		c, err := frame.ParseColor(string(arg))
		if err != nil {
			h.diag.Printf("FRAME: SetBackdrop on %s: %v", id, err)
			return
		}
		h.frames.Mutate(id, func(f *frame.Frame) {
			f.Backdrop = &frame.Backdrop{Color: &c}
		})

	case *lua.LTable:
		image := ""
		if s, ok := arg.RawGetString("bgFile").(lua.LString); ok {
			image = string(s)
		}
		tile := lua.LVAsBool(arg.RawGetString("tile"))

		var insets *frame.Insets
		if insTbl, ok := arg.RawGetString("insets").(*lua.LTable); ok {
			insets = &frame.Insets{
				Left:   float64(lua.LVAsNumber(insTbl.RawGetString("left"))),
				Right:  float64(lua.LVAsNumber(insTbl.RawGetString("right"))),
				Top:    float64(lua.LVAsNumber(insTbl.RawGetString("top"))),
				Bottom: float64(lua.LVAsNumber(insTbl.RawGetString("bottom"))),
			}
		}

		if image != "" {
			h.applyBackdropImage(id, image, insets, tile)
			return
		}
		if s, ok := arg.RawGetString("color").(lua.LString); ok {
			c, err := frame.ParseColor(string(s))
			if err != nil {
				h.diag.Printf("FRAME: SetBackdrop on %s: %v", id, err)
				return
			}
			h.frames.Mutate(id, func(f *frame.Frame) {
				f.Backdrop = &frame.Backdrop{Color: &c}
			})
		}

	case *lua.LNilType:
		h.frames.Mutate(id, func(f *frame.Frame) { f.Backdrop = nil })
	}
}

// applyBackdropImage resolves an image path against the frame's addon
// directory. A missing file is diagnosed and the prior backdrop kept, so a
// bad path never blanks an already-styled frame.
func (h *Host) applyBackdropImage(id, image string, insets *frame.Insets, tile bool) {
	rec, ok := h.frames.Get(id)
	if !ok {
		return
	}
	resolved := util.ResolvePath(rec.AddonDir, image)
	if _, err := os.Stat(resolved); err != nil {
		h.diag.Printf("FRAME: backdrop image %q for %s not found, keeping current backdrop", image, id)
		return
	}

	b := &frame.Backdrop{Image: resolved, Tile: tile}
	if insets != nil {
		b.Insets = *insets
		b.NinePatch = insets.Left != 0 || insets.Right != 0 || insets.Top != 0 || insets.Bottom != 0
	}
	h.frames.Mutate(id, func(f *frame.Frame) { f.Backdrop = b })
}

// colorFromArgs reads (r, g, b[, a]) floats in 0..1 starting at idx.
func colorFromArgs(L *lua.LState, idx int) frame.Color {
	clamp := func(v float64) uint8 {
		if v < 0 {
			v = 0
		} else if v > 1 {
			v = 1
		}
		return uint8(v*255 + 0.5)
	}
	return frame.Color{
		R: clamp(float64(L.CheckNumber(idx))),
		G: clamp(float64(L.CheckNumber(idx + 1))),
		B: clamp(float64(L.CheckNumber(idx + 2))),
		A: clamp(float64(L.OptNumber(idx+3, 1))),
	}
}
