// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/copperline/watrans/internal/app"
	"github.com/copperline/watrans/internal/bridge"
)

var (
	version = "0.9"
)

func main() {
	// Check for subcommands before flag parsing
	if len(os.Args) > 1 && os.Args[1] == "init" {
		if err := runInit(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	var (
		configPath  string
		host        string
		port        int
		terminal    bool
		jsonOutput  bool
		logout      bool
		verbose     bool
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to config file (default: auto-detect)")
	flag.StringVar(&configPath, "c", "", "Path to config file (short)")
	flag.StringVar(&host, "host", "", "HTTP server host (overrides config)")
	flag.IntVar(&port, "port", 0, "HTTP server port (overrides config)")
	flag.BoolVar(&terminal, "terminal", false, "Terminal display instead of the web server")
	flag.BoolVar(&jsonOutput, "json", false, "Terminal mode: emit raw protocol lines")
	flag.BoolVar(&logout, "logout", false, "Clear the stored WhatsApp session before starting")
	flag.BoolVar(&verbose, "verbose", false, "Enable debug logging")
	flag.BoolVar(&showVersion, "version", false, "Show version")
	flag.BoolVar(&showVersion, "v", false, "Show version (short)")
	flag.Parse()

	if showVersion {
		fmt.Printf("watrans %s\n", version)
		os.Exit(0)
	}

	application, err := app.New(app.Options{
		ConfigPath: configPath,
		Host:       host,
		Port:       port,
		Terminal:   terminal,
		JSON:       jsonOutput,
		Verbose:    verbose,
		Version:    version,
	})
	if err != nil {
		log.Fatalf("Failed to create app: %v", err)
	}

	if logout {
		if err := clearSession(application.Config().Bridge.DataDir); err != nil {
			log.Fatalf("Failed to clear session: %v", err)
		}
	}

	if err := application.Run(context.Background()); err != nil {
		log.Fatalf("App error: %v", err)
	}
}

// clearSession removes the stored WhatsApp session so the next start
// shows a fresh pairing QR.
func clearSession(dataDir string) error {
	if dataDir == "" {
		dir, err := bridge.DefaultDataDir()
		if err != nil {
			return err
		}
		dataDir = dir
	}

	sessionDB := filepath.Join(dataDir, "session.db")
	if err := os.Remove(sessionDB); err != nil {
		if os.IsNotExist(err) {
			fmt.Println("No existing session found.")
			return nil
		}
		return err
	}
	fmt.Println("Session cleared. You will need to scan a new QR code.")
	return nil
}

// runInit handles the "watrans init" command
func runInit() error {
	initFlags := flag.NewFlagSet("init", flag.ExitOnError)
	showHelp := initFlags.Bool("help", false, "Show help for init command")
	initFlags.BoolVar(showHelp, "h", false, "Show help for init command")
	initFlags.Parse(os.Args[2:])

	if *showHelp {
		fmt.Println(`Usage: watrans init

Create a watrans.hjson configuration file in the current directory.
The generated file is fully commented; edit it to taste.

After running init:
  1. Review and edit watrans.hjson as needed
  2. Build the bridge: go build -o bin/wa-bridge ./cmd/wa-bridge
  3. Run: ./watrans
  4. Open: http://localhost:8787 and scan the QR code`)
		return nil
	}

	configFile := "watrans.hjson"
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("%s already exists; remove it first or use a different directory", configFile)
	}

	if err := os.WriteFile(configFile, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Created %s\n", configFile)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Review and edit watrans.hjson as needed")
	fmt.Println("  2. Build the bridge: go build -o bin/wa-bridge ./cmd/wa-bridge")
	fmt.Println("  3. Run: ./watrans")
	return nil
}

const defaultConfig = `{
  // ===========================================================================
  // watrans Configuration
  // ===========================================================================
  //
  // This is an HJSON file (JSON with comments and relaxed syntax).

  // ---------------------------------------------------------------------------
  // Web Server
  // ---------------------------------------------------------------------------
  server: {
    // Host to bind to (use "0.0.0.0" to allow remote access)
    host: "127.0.0.1"
    port: 8787
  }

  // ---------------------------------------------------------------------------
  // Bridge Subprocess
  // ---------------------------------------------------------------------------
  bridge: {
    // Path to the wa-bridge binary (auto-located when empty: next to the
    // executable, the current directory, ./bin, ./wa-bridge)
    // binary: "./bin/wa-bridge"

    // Session data directory (per-user config directory when empty)
    // data_dir: "~/.config/watrans"

    // Pass --verbose to the bridge
    verbose: false
  }

  // ---------------------------------------------------------------------------
  // Message Archive
  // ---------------------------------------------------------------------------
  storage: {
    // SQLite database file; relative paths resolve inside data_dir
    path: "watrans.db"
  }

  // ---------------------------------------------------------------------------
  // Translation
  // ---------------------------------------------------------------------------
  //
  // Incoming foreign-language messages are translated automatically; your
  // replies are translated back to the conversation's language. Requires a
  // Claude API key (falls back to the ANTHROPIC_API_KEY environment variable).
  translation: {
    // api_key: "sk-ant-..."

    // Language incoming messages are translated into
    target_language: "English"

    // disabled: true
  }

  // ---------------------------------------------------------------------------
  // Web Frontend
  // ---------------------------------------------------------------------------
  web: {
    // Static SPA directory
    dir: "web"

    // Password for the web interface; empty disables authentication.
    // Set this when binding to anything but localhost.
    password: ""
  }

  // ---------------------------------------------------------------------------
  // Bridge Binary Watching
  // ---------------------------------------------------------------------------
  //
  // When a freshly built wa-bridge binary replaces the running one, the
  // bridge is restarted onto it automatically.
  watch: {
    debounce: "500ms"
  }
}
`
