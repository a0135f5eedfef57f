// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config handles HJSON configuration loading for watrans.
package config

import (
	"time"
)

// Config is the root configuration structure.
type Config struct {
	Server      ServerConfig      `json:"server"`
	Bridge      BridgeConfig      `json:"bridge"`
	Storage     StorageConfig     `json:"storage"`
	Translation TranslationConfig `json:"translation"`
	Web         WebConfig         `json:"web"`
	Watch       WatchConfig       `json:"watch"`
	Logging     LoggingConfig     `json:"logging"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// BridgeConfig configures the wa-bridge subprocess.
type BridgeConfig struct {
	Binary  string `json:"binary"`   // path to the wa-bridge binary (auto-located if empty)
	DataDir string `json:"data_dir"` // session data directory (per-user default if empty)
	Verbose bool   `json:"verbose"`  // pass --verbose to the bridge
}

// StorageConfig configures the message archive.
type StorageConfig struct {
	Path string `json:"path"` // sqlite database file
}

// TranslationConfig configures the Claude translation service.
type TranslationConfig struct {
	APIKey         string `json:"api_key"`         // falls back to ANTHROPIC_API_KEY
	DetectModel    string `json:"detect_model"`    // cheap model for language detection
	TranslateModel string `json:"translate_model"` // stronger model for translation
	TargetLanguage string `json:"target_language"` // language incoming messages are translated into
	Disabled       *bool  `json:"disabled"`
}

// IsEnabled returns whether translation should run.
func (t *TranslationConfig) IsEnabled() bool {
	if t.Disabled != nil && *t.Disabled {
		return false
	}
	return true
}

// WebConfig configures the web frontend.
type WebConfig struct {
	Dir      string `json:"dir"`      // static SPA directory
	Password string `json:"password"` // empty disables auth
}

// WatchConfig configures bridge binary watching.
type WatchConfig struct {
	Enabled  *bool  `json:"enabled"`
	Debounce string `json:"debounce"`
}

// IsEnabled returns whether the binary watcher should run.
func (w *WatchConfig) IsEnabled() bool {
	if w.Enabled != nil {
		return *w.Enabled
	}
	return true
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Verbose bool `json:"verbose"`
}

// ParseDuration parses a duration string, returning a default if empty
// or invalid.
func ParseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}
