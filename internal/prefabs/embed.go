// Package prefabs ships a starter addon so a fresh workspace has something
// on screen the first time it runs.
package prefabs

import (
	"embed"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

//go:embed all:starter
var prefabFS embed.FS

// List returns the bundled addon names.
func List() ([]string, error) {
	entries, err := prefabFS.ReadDir(".")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// Install copies one bundled addon into addonsDir, capitalized the way the
// addon directory convention expects. Existing files are not overwritten.
func Install(name, addonsDir string) error {
	target := filepath.Join(addonsDir, exportName(name))
	return fs.WalkDir(prefabFS, name, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(p, name)
		rel = strings.TrimPrefix(rel, "/")
		dst := filepath.Join(target, filepath.FromSlash(rel))

		if d.IsDir() {
			return os.MkdirAll(dst, 0o755)
		}
		if _, err := os.Stat(dst); err == nil {
			return nil
		}
		data, err := prefabFS.ReadFile(p)
		if err != nil {
			return err
		}
		return os.WriteFile(dst, data, 0o644)
	})
}

// InstallIfEmpty seeds addonsDir with every bundled addon, but only when the
// directory has no addons yet.
func InstallIfEmpty(addonsDir string) (installed bool, err error) {
	if err := os.MkdirAll(addonsDir, 0o755); err != nil {
		return false, err
	}
	entries, err := os.ReadDir(addonsDir)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.IsDir() {
			return false, nil
		}
	}

	names, err := List()
	if err != nil {
		return false, err
	}
	for _, name := range names {
		if err := Install(name, addonsDir); err != nil {
			return false, err
		}
	}
	return len(names) > 0, nil
}

// exportName maps an embedded directory name to its installed addon name:
// "starter" becomes "Starter".
func exportName(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
