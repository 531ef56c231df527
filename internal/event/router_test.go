package event

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	lua "github.com/yuin/gopher-lua"
)

// recordingCall tags invocations with the handler's string payload so tests
// can observe order without a live interpreter.
func recordingCall(calls *[]string, failOn string) CallFunc {
	return func(event string, fn lua.LValue, args []lua.LValue) error {
		name := fn.String()
		*calls = append(*calls, name)
		if name == failOn {
			return errors.New("boom")
		}
		return nil
	}
}

func TestDispatchOrderIsRegistrationOrder(t *testing.T) {
	var calls []string
	r := NewRouter(recordingCall(&calls, ""), nil)

	r.Register("PLAYER_LOGIN", "a", lua.LString("h1"))
	r.Register("PLAYER_LOGIN", "b", lua.LString("h2"))
	r.Register("PLAYER_LOGIN", "c", lua.LString("h3"))

	r.Dispatch("PLAYER_LOGIN")
	assert.Equal(t, []string{"h1", "h2", "h3"}, calls)
}

func TestDispatchIsolatesHandlerFailure(t *testing.T) {
	var calls []string
	r := NewRouter(recordingCall(&calls, "h1"), nil)

	r.Register("ADDON_LOADED", "a", lua.LString("h1"))
	r.Register("ADDON_LOADED", "b", lua.LString("h2"))

	r.Dispatch("ADDON_LOADED")
	assert.Equal(t, []string{"h1", "h2"}, calls, "h2 must run despite h1's failure")
}

func TestUnregisterRemovesOnlyMatchingKey(t *testing.T) {
	var calls []string
	r := NewRouter(recordingCall(&calls, ""), nil)

	r.Register("EV", "frame-1", lua.LString("h1"))
	r.Register("EV", "frame-2", lua.LString("h2"))
	r.Unregister("EV", "frame-1")

	r.Dispatch("EV")
	assert.Equal(t, []string{"h2"}, calls)
}

func TestUnregisterDuringDispatchDoesNotCrash(t *testing.T) {
	var calls []string
	r := NewRouter(nil, nil)
	r.call = func(event string, fn lua.LValue, args []lua.LValue) error {
		calls = append(calls, fn.String())
		if fn.String() == "h1" {
			r.Unregister(event, "b")
		}
		return nil
	}

	r.Register("EV", "a", lua.LString("h1"))
	r.Register("EV", "b", lua.LString("h2"))

	// h2 was in flight when removed; it still runs this dispatch but is gone
	// from future dispatches.
	r.Dispatch("EV")
	assert.Equal(t, []string{"h1", "h2"}, calls)

	calls = nil
	r.Dispatch("EV")
	assert.Equal(t, []string{"h1"}, calls)
}

func TestUnregisterAllClearsEveryEvent(t *testing.T) {
	r := NewRouter(func(string, lua.LValue, []lua.LValue) error { return nil }, nil)
	r.Register("A", "k", lua.LString("h"))
	r.Register("B", "k", lua.LString("h"))
	r.Register("B", "other", lua.LString("h"))

	r.UnregisterAll("k")
	assert.Zero(t, r.HandlerCount("A"))
	assert.Equal(t, 1, r.HandlerCount("B"))
	assert.Equal(t, []string{"B"}, r.Events())
}

func TestDuplicateRegistrationsArePermitted(t *testing.T) {
	var calls []string
	r := NewRouter(recordingCall(&calls, ""), nil)
	fn := lua.LString("h1")
	r.Register("EV", "k", fn)
	r.Register("EV", "k", fn)

	r.Dispatch("EV")
	assert.Len(t, calls, 2)
}
