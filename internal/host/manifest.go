package host

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// Manifest is one addon's parsed .toc file.
type Manifest struct {
	Title          string
	Notes          string
	Version        string
	SavedVariables []string
	// Files are script paths relative to the addon directory, in
	// declaration order, with path separators normalized.
	Files []string
}

// ParseManifest reads the .toc format: "## Key: Value" directives, "#"
// comments, and bare script entries. Non-script entries are ignored.
func ParseManifest(r io.Reader) (Manifest, error) {
	var m Manifest
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "##") {
			key, val, ok := strings.Cut(strings.TrimSpace(line[2:]), ":")
			if !ok {
				continue
			}
			val = strings.TrimSpace(val)
			switch strings.ToLower(strings.TrimSpace(key)) {
			case "title":
				m.Title = val
			case "notes":
				m.Notes = val
			case "version":
				m.Version = val
			case "savedvariables", "savedvariablespercharacter":
				for _, name := range strings.Split(val, ",") {
					if name = strings.TrimSpace(name); name != "" {
						m.SavedVariables = append(m.SavedVariables, name)
					}
				}
			}
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}

		entry := filepath.ToSlash(strings.ReplaceAll(line, `\`, "/"))
		if strings.EqualFold(filepath.Ext(entry), ".lua") {
			m.Files = append(m.Files, entry)
		}
	}
	return m, sc.Err()
}

// findManifest locates an addon's .toc: the one matching the directory name
// wins, otherwise the lexically first.
func findManifest(dir string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	preferred := strings.ToLower(filepath.Base(dir) + ".toc")
	var candidates []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".toc") {
			continue
		}
		if strings.ToLower(e.Name()) == preferred {
			return filepath.Join(dir, e.Name()), true
		}
		candidates = append(candidates, e.Name())
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Strings(candidates)
	return filepath.Join(dir, candidates[0]), true
}

// scanScripts is the manifest-less fallback: every .lua under dir,
// recursively, in sorted path order.
func scanScripts(dir string) []string {
	var files []string
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".lua") {
			if rel, err := filepath.Rel(dir, path); err == nil {
				files = append(files, filepath.ToSlash(rel))
			}
		}
		return nil
	})
	sort.Strings(files)
	return files
}

// libraryVersion reports whether a script path follows the bundled-library
// convention: any directory component named Libs or Libraries marks the
// file as a library chunk. The major is the file stem; a trailing -N digit
// suffix supplies the minor, otherwise 1.
func libraryVersion(rel string) (major string, minor int, ok bool) {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		return "", 0, false
	}
	inLibs := false
	for _, p := range parts[:len(parts)-1] {
		switch strings.ToLower(p) {
		case "libs", "libraries":
			inLibs = true
		}
	}
	if !inLibs {
		return "", 0, false
	}

	base := parts[len(parts)-1]
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	minor = 1
	if i := strings.LastIndex(stem, "-"); i >= 0 {
		if n, err := strconv.Atoi(stem[i+1:]); err == nil && n > 0 {
			minor = n
		}
	}
	return stem, minor, true
}

// LoadAddon loads one addon directory: manifest-declared saved-variable
// globals are bound first, then every listed script runs in order. Missing
// files and script failures are diagnosed and skipped; the addon loads with
// whatever succeeded, and ADDON_LOADED fires either way.
func (h *Host) LoadAddon(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve addon dir: %w", err)
	}
	if fi, err := os.Stat(abs); err != nil || !fi.IsDir() {
		return fmt.Errorf("addon dir %s: not a directory", dir)
	}
	name := filepath.Base(abs)

	var man Manifest
	if tocPath, ok := findManifest(abs); ok {
		f, err := os.Open(tocPath)
		if err != nil {
			return fmt.Errorf("open manifest: %w", err)
		}
		man, err = ParseManifest(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("parse manifest %s: %w", tocPath, err)
		}
	} else {
		h.diag.Printf("ADDON: %s has no manifest, loading every script in path order", name)
		man.Files = scanScripts(abs)
	}

	h.do(func() {
		for _, sv := range man.SavedVariables {
			h.bindSavedVariable(sv)
		}
	})

	for _, rel := range man.Files {
		path := filepath.Join(abs, filepath.FromSlash(rel))
		data, err := os.ReadFile(path)
		if err != nil {
			h.diag.Printf("ADDON: %s: script %s missing, skipped", name, rel)
			continue
		}
		src := string(data)

		h.do(func() {
			if h.stopped.Load() {
				return
			}
			h.currentAddonDir = abs
			defer func() { h.currentAddonDir = "" }()

			if major, minor, ok := libraryVersion(rel); ok {
				h.runChunk(src, path, lua.LString(major), lua.LNumber(minor))
			} else {
				h.runChunk(src, path, lua.LString(name), h.namespace(name))
			}
		})
	}

	h.recordAddon(AddonInfo{
		Name:    name,
		Title:   man.Title,
		Notes:   man.Notes,
		Version: man.Version,
		Dir:     abs,
		Files:   man.Files,
	})
	h.diag.Printf("ADDON: loaded %s (%d scripts)", name, len(man.Files))

	h.DispatchHostEvent("ADDON_LOADED", name)
	return nil
}

// LoadAll loads every subdirectory of addonsDir as an addon, sorted by
// name. The memory watchdog runs for the duration of the load.
func (h *Host) LoadAll(addonsDir string) error {
	entries, err := os.ReadDir(addonsDir)
	if err != nil {
		return fmt.Errorf("read addons dir: %w", err)
	}

	wd := newMemoryWatchdog(h.cfg.MaxMemoryMB, h.diag.Printf)
	wd.Start()
	defer wd.Stop()

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if err := h.LoadAddon(filepath.Join(addonsDir, name)); err != nil {
			h.diag.Printf("ADDON: %s failed to load: %v", name, err)
		}
	}
	return nil
}
