// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app wires the pieces together: config, storage, translation,
// the bridge supervisor, and either the web server or the terminal
// display.
package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/copperline/watrans/internal/bridge"
	"github.com/copperline/watrans/internal/config"
	"github.com/copperline/watrans/internal/display"
	"github.com/copperline/watrans/internal/events"
	"github.com/copperline/watrans/internal/linkpreview"
	"github.com/copperline/watrans/internal/storage"
	"github.com/copperline/watrans/internal/translation"
	"github.com/copperline/watrans/internal/watcher"
	"github.com/copperline/watrans/internal/web"
	"github.com/copperline/watrans/internal/web/handlers"
)

// shutdownTimeout bounds the graceful web server drain on exit.
const shutdownTimeout = 10 * time.Second

// Options holds the command-line configuration for the app.
type Options struct {
	ConfigPath string
	Host       string // overrides config when set
	Port       int    // overrides config when > 0
	Terminal   bool   // terminal display instead of the web server
	JSON       bool   // terminal mode: emit raw protocol lines
	Verbose    bool
	Version    string
}

// App is the main application container.
type App struct {
	opts    Options
	config  *config.Config
	dataDir string

	bus        *events.Bus
	store      *storage.Store
	translator *translation.Service // nil without an API key
	supervisor *bridge.Supervisor
	watcher    *watcher.BinaryWatcher

	// Web mode.
	hub       *handlers.Hub
	state     *handlers.State
	auth      *handlers.AuthHandler
	webServer *web.Server

	// Terminal mode. The event handler runs on the supervisor's pump
	// goroutine, so these need no locking.
	renderer    *display.Renderer
	qrDisplayed bool
	connected   bool

	done     chan struct{}
	stopOnce sync.Once
}

// New loads and validates configuration and creates the app.
func New(opts Options) (*App, error) {
	loader := config.NewLoader()

	path := opts.ConfigPath
	if path == "" {
		found, err := loader.FindConfig()
		if err == nil {
			path = found
		}
	}

	cfg, err := loader.LoadWithDefaults(context.Background(), path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if opts.Host != "" {
		cfg.Server.Host = opts.Host
	}
	if opts.Port > 0 {
		cfg.Server.Port = opts.Port
	}
	if opts.Verbose {
		cfg.Logging.Verbose = true
		cfg.Bridge.Verbose = true
	}

	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, err
	}

	return &App{
		opts:   opts,
		config: cfg,
		done:   make(chan struct{}),
	}, nil
}

// Config returns the effective configuration.
func (app *App) Config() *config.Config { return app.config }

// DataDir returns the bridge session data directory.
func (app *App) DataDir() string { return app.dataDir }

// Initialize sets up all components without starting anything.
func (app *App) Initialize(ctx context.Context) error {
	cfg := app.config

	binaryPath := cfg.Bridge.Binary
	if binaryPath == "" {
		found, err := bridge.FindBridgeBinary()
		if err != nil {
			return err
		}
		binaryPath = found
	}
	log.Printf("app: using bridge binary %s", binaryPath)

	dataDir := cfg.Bridge.DataDir
	if dataDir == "" {
		dir, err := bridge.DefaultDataDir()
		if err != nil {
			return err
		}
		dataDir = dir
	}
	app.dataDir = dataDir
	log.Printf("app: using data directory %s", dataDir)

	// The archive lives next to the session data unless configured with
	// an absolute path.
	storagePath := cfg.Storage.Path
	if !filepath.IsAbs(storagePath) {
		storagePath = filepath.Join(dataDir, storagePath)
	}
	store, err := storage.Open(storagePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	app.store = store

	if cfg.Translation.IsEnabled() && cfg.Translation.APIKey != "" {
		app.translator = translation.New(
			cfg.Translation.APIKey,
			cfg.Translation.DetectModel,
			cfg.Translation.TranslateModel,
			cfg.Translation.TargetLanguage,
			store,
		)
	} else {
		log.Printf("app: translation disabled (no API key)")
	}

	app.bus = events.NewBus()
	app.supervisor = bridge.NewSupervisor(bridge.Config{
		BinaryPath: binaryPath,
		DataDir:    dataDir,
		Verbose:    cfg.Bridge.Verbose,
	}, app.bus)

	if cfg.Watch.IsEnabled() {
		debounce := config.ParseDuration(cfg.Watch.Debounce, 500*time.Millisecond)
		bw, err := watcher.NewBinaryWatcher(app.bus, binaryPath, debounce)
		if err != nil {
			log.Printf("app: binary watcher unavailable: %v", err)
		} else {
			app.watcher = bw
		}
	}

	if app.opts.Terminal {
		app.renderer = display.NewRenderer(nil)
		return nil
	}

	app.hub = handlers.NewHub()
	app.state = handlers.NewState(app.supervisor.Sender(), app.supervisor.Correlator(), app.hub)
	app.auth = handlers.NewAuthHandler(cfg.Web.Password)

	deps := web.Dependencies{
		State:    app.state,
		Store:    store,
		Auth:     app.auth,
		Previews: linkpreview.NewFetcher(),
		DataDir:  dataDir,
		WebDir:   findWebDir(cfg.Web.Dir),
	}
	// Assign only a non-nil service: a nil *Service in the interface
	// would defeat the handlers' nil check.
	if app.translator != nil {
		deps.Translator = app.translator
	}

	app.webServer = web.NewServer(cfg.Server.Host, cfg.Server.Port, web.NewRouter(deps))
	return nil
}

// Run initializes and runs the app until a signal arrives, Stop is
// called, or (in terminal mode) the bridge exits.
func (app *App) Run(ctx context.Context) error {
	if err := app.Initialize(ctx); err != nil {
		return err
	}
	defer app.cleanup()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-app.done:
			cancel()
		case <-runCtx.Done():
		}
	}()

	g, runCtx := errgroup.WithContext(runCtx)

	if app.watcher != nil {
		ch, unsubscribe, err := app.bus.Subscribe(16)
		if err != nil {
			return err
		}
		g.Go(func() error {
			defer unsubscribe()
			for {
				select {
				case <-runCtx.Done():
					return nil
				case ev, ok := <-ch:
					if !ok {
						return nil
					}
					if ev.Type == events.EventBinaryChanged {
						log.Printf("app: bridge binary rebuilt, restarting bridge")
						app.supervisor.Bounce()
					}
				}
			}
		})
	}

	if app.opts.Terminal {
		g.Go(func() error {
			// A single bridge instance: when it exits, so do we.
			defer cancel()
			app.renderer.Info("Starting WhatsApp bridge...")
			err := app.supervisor.RunOnce(runCtx, app.handleTerminalEvent)
			if err == nil && runCtx.Err() == nil && !app.connected {
				app.renderer.Error("Bridge process terminated unexpectedly")
			}
			return err
		})
	} else {
		g.Go(func() error {
			return app.supervisor.Run(runCtx, app.handleWebEvent)
		})
		g.Go(func() error {
			log.Printf("app: web interface on http://%s", app.webServer.Addr())
			return app.webServer.Start()
		})
		g.Go(func() error {
			<-runCtx.Done()
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancelShutdown()
			return app.webServer.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	if err == context.Canceled {
		err = nil
	}
	log.Printf("app: shutdown complete")
	return err
}

// Stop signals the app to shut down. Safe to call multiple times.
func (app *App) Stop() {
	app.stopOnce.Do(func() {
		close(app.done)
	})
}

// cleanup releases resources in reverse dependency order.
func (app *App) cleanup() {
	if app.watcher != nil {
		app.watcher.Close()
	}
	if app.hub != nil {
		app.hub.Close()
	}
	if app.bus != nil {
		app.bus.Close()
	}
	if app.store != nil {
		if err := app.store.Close(); err != nil {
			log.Printf("app: close archive: %v", err)
		}
	}
}

// findWebDir resolves the static frontend directory. Returns empty when
// none exists, in which case only the API is served.
func findWebDir(configured string) string {
	var candidates []string
	if configured != "" {
		candidates = append(candidates, configured)
	}
	candidates = append(candidates, filepath.Join("web", "public"))
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), "web"))
	}

	for _, dir := range candidates {
		if info, err := os.Stat(filepath.Join(dir, "index.html")); err == nil && !info.IsDir() {
			abs, err := filepath.Abs(dir)
			if err != nil {
				return dir
			}
			return abs
		}
	}
	log.Printf("app: no web directory found, serving API only")
	return ""
}
