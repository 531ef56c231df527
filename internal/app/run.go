// Package app wires one addonbox session: configuration, persistence, the
// script host, the viewer, and the addon watcher.
package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/addonbox/addonbox/internal/config"
	"github.com/addonbox/addonbox/internal/diag"
	"github.com/addonbox/addonbox/internal/host"
	"github.com/addonbox/addonbox/internal/prefabs"
	"github.com/addonbox/addonbox/internal/savedvars"
	"github.com/addonbox/addonbox/internal/util"
	"github.com/addonbox/addonbox/internal/viewer"
)

type Options struct {
	// WorkDir is the workspace: addon and data paths resolve against it.
	WorkDir string
	CfgPath string
	Cfg     config.Config
}

// Run starts a session and blocks until ctx is cancelled. This process
// hosts ONE addon workspace.
func Run(ctx context.Context, opt Options) error {
	cfg := opt.Cfg

	logs := diag.NewBuffer(cfg.Viewer.LogLines)
	log.SetOutput(io.MultiWriter(os.Stderr, logs))

	logBanner(opt.WorkDir, opt.CfgPath)

	addonsDir := util.ResolvePath(opt.WorkDir, cfg.Paths.AddonsDir)
	dataDir := util.ResolvePath(opt.WorkDir, cfg.Paths.DataDir)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// ── Saved variables: sqlite-backed, debounce-flushed
	db, err := savedvars.Open(dataDir)
	if err != nil {
		return fmt.Errorf("open saved variables: %w", err)
	}
	defer db.Close()

	store := savedvars.NewStore()
	snap, err := db.LoadSnapshot()
	if err != nil {
		return fmt.Errorf("load saved variables: %w", err)
	}
	store.LoadSnapshot(snap)

	stopFlush := savedvars.AttachFlusher(store, db,
		time.Duration(cfg.Lua.SavedVarsFlushMS)*time.Millisecond, logs.Printf)
	defer stopFlush()

	// ── First run: seed the workspace with the starter addon
	if installed, err := prefabs.InstallIfEmpty(addonsDir); err != nil {
		return fmt.Errorf("seed addons dir: %w", err)
	} else if installed {
		log.Printf("ADDON: empty workspace, installed the starter addon")
	}

	// ── Canvas: live websocket hub when the viewer runs, headless otherwise
	var hub *viewer.Hub
	if cfg.Viewer.HTTPAddr != "" {
		hub = viewer.NewHub(cfg.Canvas.Width, cfg.Canvas.Height)
	}

	buildHost := func() (*host.Host, error) {
		hostOpts := host.Options{Cfg: cfg.Lua, Diag: logs, Saved: store}
		if hub != nil {
			hostOpts.Canvas = hub
		}
		h, err := host.New(hostOpts)
		if err != nil {
			return nil, err
		}
		if err := h.LoadAll(addonsDir); err != nil {
			log.Printf("ADDON: %v", err)
		}
		h.InvokeLifecycleHook("OnInitialize")
		h.InvokeLifecycleHook("OnEnable")
		h.DispatchHostEvent("PLAYER_LOGIN")
		return h, nil
	}

	var mu sync.Mutex
	current, err := buildHost()
	if err != nil {
		return fmt.Errorf("start script host: %w", err)
	}
	currentHost := func() *host.Host {
		mu.Lock()
		defer mu.Unlock()
		return current
	}

	// ── Viewer
	if cfg.Viewer.HTTPAddr != "" {
		listenAddr, url := NormalizeLocalViewer(cfg.Viewer.HTTPAddr)
		go func() {
			err := viewer.Start(listenAddr, viewer.Viewer{
				Host:    currentHost,
				Logs:    logs,
				Canvas:  hub,
				CfgPath: opt.CfgPath,
				Cfg:     cfg,
			})
			if err != nil {
				log.Printf("VIEWER: %v", err)
			}
		}()
		log.Printf("VIEWER: %s", url)

		if cfg.Viewer.OpenBrowser {
			go func() {
				if err := WaitTCP(listenAddr, 5*time.Second); err == nil {
					_ = util.OpenURL(url)
				}
			}()
		}
	}

	// ── Addon watcher: a change rebuilds the host wholesale. Chunks are
	// idempotent and frames never die inside one host lifetime, so in-place
	// reload cannot apply edits; a fresh interpreter can.
	if cfg.Lua.WatchAddons {
		changes, stopWatch, err := host.WatchAddons(addonsDir, logs)
		if err != nil {
			log.Printf("WATCH: disabled: %v", err)
		} else {
			defer stopWatch()
			reload := func() {
				mu.Lock()
				old := current
				mu.Unlock()

				old.Shutdown()
				if hub != nil {
					hub.Reset()
				}
				h, err := buildHost()
				if err != nil {
					log.Printf("HOST: reload failed: %v", err)
					return
				}
				mu.Lock()
				current = h
				mu.Unlock()
				log.Printf("HOST: reloaded")
			}

			go func() {
				var pending *time.Timer
				for {
					select {
					case <-ctx.Done():
						return
					case name, ok := <-changes:
						if !ok {
							return
						}
						log.Printf("WATCH: %s changed, scheduling reload", name)
						if pending != nil {
							pending.Stop()
						}
						pending = time.AfterFunc(300*time.Millisecond, reload)
					}
				}
			}()
		}
	}

	<-ctx.Done()

	h := currentHost()
	h.DispatchHostEvent("PLAYER_LOGOUT")
	h.Shutdown()
	return nil
}
