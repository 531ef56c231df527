package host

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/addonbox/addonbox/internal/diag"
)

// WatchAddons watches addonsDir and its subdirectories for script and
// manifest changes and reports the affected addon's name on the returned
// channel. New subdirectories are picked up as they appear. Delivery is
// best-effort: events are dropped when the channel is full, so the consumer
// should debounce and treat a notification as "something changed".
//
// The host itself cannot apply a change in place (chunks are idempotent and
// frames are never destroyed), so the caller reacts by rebuilding the host.
func WatchAddons(addonsDir string, log *diag.Buffer) (<-chan string, func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}

	absRoot, err := filepath.Abs(addonsDir)
	if err != nil {
		watcher.Close()
		return nil, nil, err
	}

	addTree := func(root string) {
		filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err == nil && d.IsDir() {
				watcher.Add(path)
			}
			return nil
		})
	}
	addTree(absRoot)

	changes := make(chan string, 8)
	go func() {
		defer close(changes)
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op.Has(fsnotify.Create) {
					// A new directory needs its own watch.
					addTree(ev.Name)
				}
				name := addonFor(absRoot, ev.Name)
				if name == "" || !relevantChange(ev) {
					continue
				}
				select {
				case changes <- name:
				default:
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if log != nil {
					log.Printf("WATCH: %v", err)
				}
			}
		}
	}()

	stop := func() { watcher.Close() }
	return changes, stop, nil
}

// relevantChange filters to script/manifest file events.
func relevantChange(ev fsnotify.Event) bool {
	if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) &&
		!ev.Op.Has(fsnotify.Remove) && !ev.Op.Has(fsnotify.Rename) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(ev.Name))
	return ext == ".lua" || ext == ".toc"
}

// addonFor maps a changed path to its top-level addon directory name.
func addonFor(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[0]
}
