package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/addonbox/addonbox/internal/app"
	"github.com/addonbox/addonbox/internal/config"
)

var (
	showHelp = flag.Bool("h", false, "Show help")
	version  = flag.Bool("version", false, "Show version")
	workDir  = flag.String("dir", ".", "Workspace directory (addons, data, config)")
	addr     = flag.String("addr", "", "Viewer listen address (overrides config)")
	headless = flag.Bool("headless", false, "Run without the viewer")
	open     = flag.Bool("open", false, "Open the viewer in the default browser")
)

// appVersion is set at build time via -ldflags "-X main.appVersion=x.y.z"
var appVersion = "dev"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("addonbox v%s\n", appVersion)
		return
	}
	if *showHelp {
		showUsage()
		return
	}

	absDir, err := filepath.Abs(*workDir)
	if err != nil {
		log.Fatalf("Invalid workspace directory: %v", err)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		log.Fatalf("Create workspace directory: %v", err)
	}

	cfgPath := filepath.Join(absDir, "addonbox.json")
	cfg, created, err := config.Ensure(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if created {
		log.Printf("CONFIG: wrote default config to %s", cfgPath)
	}

	if *addr != "" {
		cfg.Viewer.HTTPAddr = *addr
	}
	if *headless {
		cfg.Viewer.HTTPAddr = ""
	}
	if *open {
		cfg.Viewer.OpenBrowser = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down gracefully...")
		cancel()
	}()

	if err := app.Run(ctx, app.Options{
		WorkDir: absDir,
		CfgPath: cfgPath,
		Cfg:     cfg,
	}); err != nil {
		log.Fatalf("addonbox failed: %v", err)
	}
}

func showUsage() {
	fmt.Println("addonbox - a local host for scripted addons")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  addonbox [options]")
	fmt.Println()
	fmt.Println("The workspace directory holds addons/, data/, and addonbox.json.")
	fmt.Println("A missing config file is created with defaults on first run.")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
}
