package savedvars

import (
	"sync"
	"time"
)

// AttachFlusher wires the store's change signal to debounced snapshot
// persistence. Returns a stop func that cancels any pending flush and
// performs one final synchronous flush.
func AttachFlusher(store *Store, db *DB, debounce time.Duration, logf func(format string, args ...any)) (stop func()) {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}

	var mu sync.Mutex
	var pending *time.Timer
	stopped := false

	flush := func() {
		if err := db.SaveSnapshot(store.Snapshot()); err != nil {
			logf("SAVEDVARS: flush failed: %v", err)
		}
	}

	store.SetOnChange(func() {
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}
		if pending != nil {
			pending.Stop()
		}
		pending = time.AfterFunc(debounce, flush)
	})

	return func() {
		mu.Lock()
		stopped = true
		if pending != nil {
			pending.Stop()
			pending = nil
		}
		mu.Unlock()
		store.SetOnChange(nil)
		flush()
	}
}
