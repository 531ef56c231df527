package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/addonbox/addonbox/internal/util"
)

type Config struct {
	Paths  Paths  `json:"paths"`
	Canvas Canvas `json:"canvas"`
	Viewer Viewer `json:"viewer"`
	Lua    Lua    `json:"lua"`
}

type Paths struct {
	// AddonsDir holds one subdirectory per addon. Relative to the workspace.
	AddonsDir string `json:"addons_dir"`
	// DataDir holds the saved-variables database. Relative to the workspace.
	DataDir string `json:"data_dir"`
}

type Canvas struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Viewer struct {
	// HTTPAddr is the listen address of the local viewer, e.g. "127.0.0.1:7780".
	// Empty disables the viewer (the host runs headless).
	HTTPAddr string `json:"http_addr"`
	// OpenBrowser opens the viewer in the default browser on startup.
	OpenBrowser bool `json:"open_browser"`
	// LogLines is the diagnostic ring buffer capacity.
	LogLines int `json:"log_lines"`
}

type Lua struct {
	// MaxMemoryMB bounds the interpreter registry size and arms the
	// load-time memory watchdog. 0 disables both.
	MaxMemoryMB int `json:"max_memory_mb"`
	// SavedVarsFlushMS debounces saved-variable snapshot flushes.
	SavedVarsFlushMS int `json:"saved_vars_flush_ms"`
	// WatchAddons enables the addon-directory change watcher.
	WatchAddons bool `json:"watch_addons"`
}

func Default() Config {
	return Config{
		Paths: Paths{
			AddonsDir: "addons",
			DataDir:   "data",
		},
		Canvas: Canvas{
			Width:  1024,
			Height: 768,
		},
		Viewer: Viewer{
			HTTPAddr:    "127.0.0.1:7780",
			OpenBrowser: false,
			LogLines:    500,
		},
		Lua: Lua{
			MaxMemoryMB:      64,
			SavedVarsFlushMS: 500,
			WatchAddons:      true,
		},
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Paths.AddonsDir) == "" {
		return errors.New("paths.addons_dir is required")
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir is required")
	}

	if c.Canvas.Width <= 0 || c.Canvas.Height <= 0 {
		return errors.New("canvas.width and canvas.height must be > 0")
	}

	if addr := strings.TrimSpace(c.Viewer.HTTPAddr); addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("viewer.http_addr: %v", err)
		}
	}
	if c.Viewer.LogLines < 0 {
		return errors.New("viewer.log_lines must be >= 0")
	}

	if c.Lua.MaxMemoryMB < 0 || c.Lua.MaxMemoryMB > 4096 {
		return errors.New("lua.max_memory_mb must be 0..4096")
	}
	if c.Lua.SavedVarsFlushMS < 0 {
		return errors.New("lua.saved_vars_flush_ms must be >= 0")
	}

	return nil
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	// Strip UTF-8 BOM if present (common when editing JSON on Windows).
	b = stripBOM(b)

	// Start from defaults so missing JSON fields remain initialized.
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// stripBOM removes a UTF-8 byte order mark if present.
func stripBOM(b []byte) []byte {
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return b[3:]
	}
	return b
}

func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	return util.WriteJSONFile(path, cfg)
}

// Ensure loads config if it exists; otherwise creates a default config file.
// Returns (cfg, createdNew, err).
func Ensure(path string) (Config, bool, error) {
	if _, err := os.Stat(path); err == nil {
		cfg, err := Load(path)
		return cfg, false, err
	} else if !os.IsNotExist(err) {
		return Config{}, false, err
	}

	cfg := Default()
	if err := Save(path, cfg); err != nil {
		return Config{}, false, fmt.Errorf("create default config: %w", err)
	}
	return cfg, true, nil
}
