package host

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	"github.com/addonbox/addonbox/internal/config"
	"github.com/addonbox/addonbox/internal/diag"
)

func newTestHost(t *testing.T) (*Host, *diag.Buffer) {
	t.Helper()
	log := diag.NewBuffer(200)
	h, err := New(Options{
		Cfg:  config.Default().Lua,
		Diag: log,
	})
	require.NoError(t, err)
	t.Cleanup(h.Shutdown)
	return h, log
}

// global reads a script global from the host's execution context.
func global(h *Host, name string) lua.LValue {
	var v lua.LValue
	h.do(func() { v = h.L.GetGlobal(name) })
	return v
}

func diagContains(log *diag.Buffer, substr string) bool {
	for _, e := range log.Snapshot() {
		if strings.Contains(e.Msg, substr) {
			return true
		}
	}
	return false
}

func TestSandboxBlocksEscapeHatches(t *testing.T) {
	h, _ := newTestHost(t)
	ran := h.RunAddonChunk(`
		assert(os == nil)
		assert(io == nil)
		assert(dofile == nil)
		assert(loadfile == nil)
		assert(require == nil)
		assert(coroutine ~= nil)
		assert(string ~= nil)
	`, "Test", "inline:sandbox")
	assert.True(t, ran)
}

func TestChunkIsIdempotentPerIdentity(t *testing.T) {
	h, log := newTestHost(t)
	src := `counter = (counter or 0) + 1`

	assert.True(t, h.RunAddonChunk(src, "Test", "inline:counter"))
	assert.False(t, h.RunAddonChunk(src, "Test", "inline:counter"))
	assert.Equal(t, lua.LNumber(1), global(h, "counter"))
	assert.True(t, diagContains(log, "already executed"))

	// A different identity runs the same source again.
	assert.True(t, h.RunAddonChunk(src, "Test", "inline:counter2"))
	assert.Equal(t, lua.LNumber(2), global(h, "counter"))
}

func TestChunkFailureIsIsolatedAndRetryable(t *testing.T) {
	h, log := newTestHost(t)

	assert.False(t, h.RunAddonChunk(`error("boom")`, "Test", "inline:boom"))
	assert.True(t, diagContains(log, "boom"))

	// The failure did not record the identity, and did not poison the host.
	assert.True(t, h.RunAddonChunk(`ok = true`, "Test", "inline:boom"))
	assert.Equal(t, lua.LTrue, global(h, "ok"))
}

func TestAddonChunksShareNamespace(t *testing.T) {
	h, _ := newTestHost(t)

	require.True(t, h.RunAddonChunk(`
		local name, ns = ...
		assert(name == "MyAddon")
		ns.value = 42
	`, "MyAddon", "inline:a1"))

	require.True(t, h.RunAddonChunk(`
		local _, ns = ...
		shared = ns.value
	`, "MyAddon", "inline:a2"))
	assert.Equal(t, lua.LNumber(42), global(h, "shared"))

	// A different addon sees a different namespace.
	require.True(t, h.RunAddonChunk(`
		local _, ns = ...
		other = ns.value
	`, "OtherAddon", "inline:b1"))
	assert.Equal(t, lua.LNil, global(h, "other"))
}

func TestLibraryChunkConvention(t *testing.T) {
	h, _ := newTestHost(t)
	require.True(t, h.RunLibraryChunk(`
		libMajor, libMinor = ...
	`, "SomeLib-1.0", 3, "inline:lib"))
	assert.Equal(t, lua.LString("SomeLib-1.0"), global(h, "libMajor"))
	assert.Equal(t, lua.LNumber(3), global(h, "libMinor"))
}

func TestFrameCreationAndAnchoring(t *testing.T) {
	h, _ := newTestHost(t)

	require.True(t, h.RunAddonChunk(`
		local f = CreateFrame("Frame", "FooFrame", UIParent)
		f:SetPoint("TOPLEFT", UIParent, "TOPLEFT", 10, 20)
		f:SetSize(300, 120)
		f:Show()
	`, "Foo", "inline:frames"))

	f, ok := h.Frames().GetByName("FooFrame")
	require.True(t, ok)
	assert.Equal(t, 10.0, f.X)
	assert.Equal(t, 20.0, f.Y)
	assert.Equal(t, 300.0, f.Width)
	assert.Equal(t, 120.0, f.Height)
	assert.True(t, f.Shown)

	// The named frame is also reachable as a global.
	require.True(t, h.RunAddonChunk(`
		sameFrame = FooFrame:GetName()
	`, "Foo", "inline:frames2"))
	assert.Equal(t, lua.LString("FooFrame"), global(h, "sameFrame"))
}

func TestFrameAbsoluteAndShorthandSetPoint(t *testing.T) {
	h, _ := newTestHost(t)

	require.True(t, h.RunAddonChunk(`
		abs = CreateFrame("Frame", "AbsFrame")
		abs:SetPoint(50, 60)

		mid = CreateFrame("Frame", "MidFrame")
		mid:SetSize(100, 50)
		mid:SetPoint("CENTER")
	`, "T", "inline:points"))

	abs, ok := h.Frames().GetByName("AbsFrame")
	require.True(t, ok)
	assert.Equal(t, 50.0, abs.X)
	assert.Equal(t, 60.0, abs.Y)

	// CENTER of the 1024x768 canvas for a 100x50 frame.
	mid, ok := h.Frames().GetByName("MidFrame")
	require.True(t, ok)
	assert.Equal(t, 462.0, mid.X)
	assert.Equal(t, 359.0, mid.Y)
}

func TestStaleHandleIsTolerated(t *testing.T) {
	h, log := newTestHost(t)

	// A handle with an identity the registry has never seen must not crash
	// dependent script code.
	require.True(t, h.RunAddonChunk(`
		local fake = setmetatable({__frameID = "no-such-frame"}, getmetatable(UIParent))
		fake:SetSize(10, 10)
		fake:Show()
		survived = true
	`, "T", "inline:stale"))
	assert.Equal(t, lua.LTrue, global(h, "survived"))
	assert.True(t, diagContains(log, "unknown frame"))
}

func TestFrameEventRouting(t *testing.T) {
	h, _ := newTestHost(t)

	require.True(t, h.RunAddonChunk(`
		seen = {}
		local f = CreateFrame("Frame")
		f:RegisterEvent("PLAYER_LOGIN")
		f:SetScript("OnEvent", function(self, event, arg1)
			seen[#seen + 1] = event .. ":" .. tostring(arg1)
		end)
	`, "T", "inline:events"))

	h.DispatchHostEvent("PLAYER_LOGIN", "alpha")
	h.DispatchHostEvent("PLAYER_LOGOUT", "ignored")

	require.True(t, h.RunAddonChunk(`
		seenCount = #seen
		seenFirst = seen[1]
	`, "T", "inline:events2"))
	assert.Equal(t, lua.LNumber(1), global(h, "seenCount"))
	assert.Equal(t, lua.LString("PLAYER_LOGIN:alpha"), global(h, "seenFirst"))
}

func TestEventHandlerFailureDoesNotBlockOthers(t *testing.T) {
	h, log := newTestHost(t)

	require.True(t, h.RunAddonChunk(`
		local bad = CreateFrame("Frame")
		bad:RegisterEvent("PING")
		bad:SetScript("OnEvent", function() error("handler down") end)

		local good = CreateFrame("Frame")
		good:RegisterEvent("PING")
		good:SetScript("OnEvent", function() pinged = true end)
	`, "T", "inline:evfail"))

	h.DispatchHostEvent("PING")
	assert.Equal(t, lua.LTrue, global(h, "pinged"))
	assert.True(t, diagContains(log, "handler down"))
}

func TestLibStubRegistrationAndLookup(t *testing.T) {
	h, _ := newTestHost(t)

	require.True(t, h.RunAddonChunk(`
		local lib = LibStub:NewLibrary("MyLib-1.0", 1)
		assert(lib ~= nil)
		lib.Hello = function() return "hi" end

		-- Re-registering at the same minor yields nil.
		assert(LibStub:NewLibrary("MyLib-1.0", 1) == nil)

		-- An upgrade keeps the same table.
		local up = LibStub:NewLibrary("MyLib-1.0", 2)
		assert(rawequal(up, lib))

		-- Calling the stub itself is lookup.
		got = LibStub("MyLib-1.0").Hello()
	`, "T", "inline:libstub"))
	assert.Equal(t, lua.LString("hi"), global(h, "got"))
}

func TestLibStubPlaceholderOnMiss(t *testing.T) {
	h, log := newTestHost(t)

	require.True(t, h.RunAddonChunk(`
		-- Silent lookup has no side effects.
		assert(LibStub("NoSuchLib-9.9", true) == nil)

		-- A loud miss hands out a placeholder so initialization continues.
		placeholder = LibStub("NoSuchLib-9.9") ~= nil
	`, "T", "inline:miss"))
	assert.Equal(t, lua.LTrue, global(h, "placeholder"))
	assert.True(t, diagContains(log, "placeholder"))
	assert.Contains(t, h.Libraries().Names(), "NoSuchLib-9.9")
}

func TestAddonObjectCollisionPolicy(t *testing.T) {
	h, _ := newTestHost(t)

	require.True(t, h.RunAddonChunk(`
		local AceAddon = LibStub("AceAddon-3.0")
		first = AceAddon:NewAddon("Clash")
	`, "T", "inline:ace1"))

	// First collision per lifetime hands out a fresh object.
	require.True(t, h.RunAddonChunk(`
		local AceAddon = LibStub("AceAddon-3.0")
		second = AceAddon:NewAddon("Clash")
		freshOnFirstCollision = not rawequal(first, second)
	`, "T", "inline:ace2"))
	assert.Equal(t, lua.LTrue, global(h, "freshOnFirstCollision"))

	// Later requests return the current object.
	require.True(t, h.RunAddonChunk(`
		local AceAddon = LibStub("AceAddon-3.0")
		third = AceAddon:NewAddon("Clash")
		stableAfter = rawequal(second, third)
		viaGet = rawequal(AceAddon:GetAddon("Clash"), third)
	`, "T", "inline:ace3"))
	assert.Equal(t, lua.LTrue, global(h, "stableAfter"))
	assert.Equal(t, lua.LTrue, global(h, "viaGet"))
}

func TestLifecycleHookOrderAndIsolation(t *testing.T) {
	h, log := newTestHost(t)

	require.True(t, h.RunAddonChunk(`
		local AceAddon = LibStub("AceAddon-3.0")
		calls = {}

		local a = AceAddon:NewAddon("Alpha")
		function a:OnInitialize() calls[#calls + 1] = "Alpha" end

		local b = AceAddon:NewAddon("Beta")
		function b:OnInitialize() error("beta broken") end

		local c = AceAddon:NewAddon("Gamma")
		function c:OnInitialize() calls[#calls + 1] = "Gamma" end
	`, "T", "inline:hooks"))

	h.InvokeLifecycleHook("OnInitialize")

	require.True(t, h.RunAddonChunk(`
		hookOrder = table.concat(calls, ",")
	`, "T", "inline:hooks2"))
	assert.Equal(t, lua.LString("Alpha,Gamma"), global(h, "hookOrder"))
	assert.True(t, diagContains(log, "beta broken"))
}

func TestTimerFiresOnHostContext(t *testing.T) {
	h, _ := newTestHost(t)

	require.True(t, h.RunAddonChunk(`
		C_Timer.After(0.01, function() fired = true end)
	`, "T", "inline:timer"))

	require.Eventually(t, func() bool {
		return global(h, "fired") == lua.LTrue
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAceTimerScheduleAndCancel(t *testing.T) {
	h, _ := newTestHost(t)

	require.True(t, h.RunAddonChunk(`
		local AceTimer = LibStub("AceTimer-3.0")
		AceTimer:ScheduleTimer(function() lateFired = true end, 0.01)
		local id = AceTimer:ScheduleTimer(function() cancelledFired = true end, 0.01)
		AceTimer:CancelTimer(id)
	`, "T", "inline:acetimer"))

	require.Eventually(t, func() bool {
		return global(h, "lateFired") == lua.LTrue
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, lua.LNil, global(h, "cancelledFired"))
}

func TestSavedVariablesProxyFromScript(t *testing.T) {
	h, _ := newTestHost(t)

	require.True(t, h.RunAddonChunk(`
		SavedVariables.profile = { scale = 1.5 }
		SavedVariables.profile.scale = 2
	`, "T", "inline:sv"))

	snap := h.saved.Snapshot()
	profile, ok := snap["profile"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2), profile["scale"])
}

func TestSlashCommandDispatch(t *testing.T) {
	h, _ := newTestHost(t)

	require.True(t, h.RunAddonChunk(`
		SLASH_GREET1 = "/greet"
		SlashCmdList["GREET"] = function(msg) greeting = "hello " .. msg end
	`, "T", "inline:slash"))

	assert.True(t, h.RunSlashCommand("/greet world"))
	assert.Equal(t, lua.LString("hello world"), global(h, "greeting"))

	assert.False(t, h.RunSlashCommand("/nosuch"))
}

func TestEnvFacts(t *testing.T) {
	h, _ := newTestHost(t)

	require.True(t, h.RunAddonChunk(`
		locale = GetLocale()
		realm = GetRealmName()
		name = UnitName("player")
		t1 = GetTime()
		assert(type(t1) == "number")
		DEFAULT_CHAT_FRAME:AddMessage("from chat")
	`, "T", "inline:env"))

	assert.Equal(t, lua.LString("enUS"), global(h, "locale"))
	assert.Equal(t, lua.LString("Localhost"), global(h, "realm"))
	assert.Equal(t, lua.LString("Player"), global(h, "name"))
}

func TestPolyfills(t *testing.T) {
	h, _ := newTestHost(t)

	require.True(t, h.RunAddonChunk(`
		assert(format("%d-%s", 7, "x") == "7-x")
		assert(strupper("abc") == "ABC")
		assert(strtrim("  hi  ") == "hi")
		local a, b = strsplit(":", "x:y")
		assert(a == "x" and b == "y")
		assert(strjoin("-", "a", "b", "c") == "a-b-c")

		local t = {1, 2}
		tinsert(t, 3)
		assert(#t == 3)
		wipe(t)
		assert(next(t) == nil)

		setglobal("viaSetGlobal", 9)
		assert(getglobal("viaSetGlobal") == 9)
		polyfillsOK = true
	`, "T", "inline:polyfills"))
	assert.Equal(t, lua.LTrue, global(h, "polyfillsOK"))
}

func TestPrintGoesToDiagnostics(t *testing.T) {
	h, log := newTestHost(t)
	require.True(t, h.RunAddonChunk(`print("marker", 42)`, "T", "inline:print"))
	assert.True(t, diagContains(log, "marker\t42"))
}

func TestShutdownStopsExecution(t *testing.T) {
	h, _ := newTestHost(t)
	require.True(t, h.RunAddonChunk(`n = 1`, "T", "inline:pre"))

	h.Shutdown()

	assert.False(t, h.RunAddonChunk(`n = 2`, "T", "inline:post"))
	h.DispatchHostEvent("AFTER_SHUTDOWN") // must not panic
}

func TestClickFrameFiresOnClick(t *testing.T) {
	h, _ := newTestHost(t)

	require.True(t, h.RunAddonChunk(`
		local b = CreateFrame("Button", "ClickMe")
		b:SetScript("OnClick", function(self, button) clicked = button end)
	`, "T", "inline:click"))

	f, ok := h.Frames().GetByName("ClickMe")
	require.True(t, ok)
	h.ClickFrame(f.ID)
	assert.Equal(t, lua.LString("LeftButton"), global(h, "clicked"))
}

func TestSavedVariablesCyclicWriteIsClipped(t *testing.T) {
	h, log := newTestHost(t)

	require.True(t, h.RunAddonChunk(`
		local t = {}
		t.self = t
		t.label = "keep"
		SavedVariables.loop = t
	`, "T", "inline:cycle"))

	snap := h.saved.Snapshot()
	loop, ok := snap["loop"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "keep", loop["label"])
	assert.Equal(t, "<cycle>", loop["self"])
	assert.True(t, diagContains(log, "clipped"))

	// The host is still alive after the bad write.
	require.True(t, h.RunAddonChunk(`survived = true`, "T", "inline:after"))
	assert.Equal(t, lua.LTrue, global(h, "survived"))
}

func TestSetBackdropMissingImageKeepsPrior(t *testing.T) {
	h, log := newTestHost(t)

	require.True(t, h.RunAddonChunk(`
		local f = CreateFrame("Frame", "Styled")
		f:SetBackdrop("#336699")
		f:SetBackdrop({bgFile = "missing/fill.tga"})
	`, "T", "inline:backdrop"))

	f, ok := h.Frames().GetByName("Styled")
	require.True(t, ok)
	require.NotNil(t, f.Backdrop)
	require.NotNil(t, f.Backdrop.Color)
	assert.Equal(t, "#FF336699", f.Backdrop.Color.String())
	assert.True(t, diagContains(log, "missing/fill.tga"))
}

func TestSetBackdropImageResolvesAgainstAddonDir(t *testing.T) {
	h, _ := newTestHost(t)
	dir := writeAddon(t, t.TempDir(), "Skinned", map[string]string{
		"Skinned.toc": "Skin.lua\n",
		"Skin.lua": `
			local f = CreateFrame("Frame", "Skinned")
			f:SetBackdrop({
				bgFile = "art/border.tga",
				tile = true,
				insets = {left = 4, right = 4, top = 8, bottom = 8},
			})
		`,
		"art/border.tga": "stub texture bytes",
	})

	require.NoError(t, h.LoadAddon(dir))

	f, ok := h.Frames().GetByName("Skinned")
	require.True(t, ok)
	require.NotNil(t, f.Backdrop)
	assert.Contains(t, f.Backdrop.Image, "border.tga")
	assert.True(t, f.Backdrop.Tile)
	assert.True(t, f.Backdrop.NinePatch)
	assert.Equal(t, 4.0, f.Backdrop.Insets.Left)
	assert.Equal(t, 8.0, f.Backdrop.Insets.Top)
}

func TestCallbackHandlerFire(t *testing.T) {
	h, _ := newTestHost(t)

	require.True(t, h.RunAddonChunk(`
		local CBH = LibStub("CallbackHandler-1.0")
		local target = {}
		local registry = CBH:New(target)

		local got
		target.RegisterCallback({}, "MyEvent", function(event, value) got = value end)
		registry:Fire("MyEvent", 123)
		cbValue = got
	`, "T", "inline:cbh"))
	assert.Equal(t, lua.LNumber(123), global(h, "cbValue"))
}
