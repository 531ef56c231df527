package host

import (
	"runtime"
	"sync/atomic"
	"time"
)

// memoryWatchdog samples process heap use while addon code loads and warns
// once if it climbs past the configured budget. It never kills the
// interpreter: the long-lived session makes teardown worse than the leak,
// so the budget is advisory beyond the registry cap.
type memoryWatchdog struct {
	limitBytes uint64
	baseline   uint64
	warned     atomic.Bool
	stop       chan struct{}
	logf       func(format string, args ...any)
}

func newMemoryWatchdog(maxMemoryMB int, logf func(format string, args ...any)) *memoryWatchdog {
	if maxMemoryMB <= 0 || logf == nil {
		return nil
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return &memoryWatchdog{
		limitBytes: uint64(maxMemoryMB) * 1024 * 1024,
		baseline:   m.HeapAlloc,
		stop:       make(chan struct{}),
		logf:       logf,
	}
}

func (w *memoryWatchdog) Start() {
	if w == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-w.stop:
				return
			case <-ticker.C:
				w.sample()
			}
		}
	}()
}

func (w *memoryWatchdog) sample() {
	if w.warned.Load() {
		return
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	used := m.HeapAlloc
	if used > w.baseline && used-w.baseline > w.limitBytes {
		if w.warned.CompareAndSwap(false, true) {
			w.logf("HOST: script memory use %d MB exceeds the %d MB budget",
				(used-w.baseline)/(1024*1024), w.limitBytes/(1024*1024))
		}
	}
}

func (w *memoryWatchdog) Stop() {
	if w == nil {
		return
	}
	close(w.stop)
}
