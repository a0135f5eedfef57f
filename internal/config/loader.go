// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hjson/hjson-go/v4"
)

// Loader handles configuration file loading.
type Loader struct{}

// NewLoader creates a new config loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads and parses the configuration from the given path.
func (l *Loader) Load(ctx context.Context, path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Parse HJSON to intermediate map
	var raw map[string]interface{}
	if err := hjson.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse hjson: %w", err)
	}

	// Convert to JSON and unmarshal to struct (for type safety)
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("convert to json: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads config with default values applied. A missing
// file is not an error: defaults alone make a runnable config.
func (l *Loader) LoadWithDefaults(ctx context.Context, path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = &Config{}
	} else {
		loaded, err := l.Load(ctx, path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	applyDefaults(cfg)
	return cfg, nil
}

// FindConfig searches for a config file in the current directory.
// It looks for watrans.hjson first, then watrans.json. An empty path
// with no error means no config file exists and defaults apply.
func (l *Loader) FindConfig() (string, error) {
	candidates := []string{
		"watrans.hjson",
		"watrans.json",
	}

	for _, name := range candidates {
		path := filepath.Join(".", name)
		if _, err := os.Stat(path); err == nil {
			abs, err := filepath.Abs(path)
			if err != nil {
				return path, nil
			}
			return abs, nil
		}
	}

	return "", nil
}

// applyDefaults sets default values for missing config fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8787
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}

	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "watrans.db"
	}

	if cfg.Translation.APIKey == "" {
		cfg.Translation.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.Translation.DetectModel == "" {
		cfg.Translation.DetectModel = "claude-3-5-haiku-latest"
	}
	if cfg.Translation.TranslateModel == "" {
		cfg.Translation.TranslateModel = "claude-sonnet-4-5"
	}
	if cfg.Translation.TargetLanguage == "" {
		cfg.Translation.TargetLanguage = "English"
	}

	if cfg.Web.Dir == "" {
		cfg.Web.Dir = "web"
	}

	if cfg.Watch.Debounce == "" {
		cfg.Watch.Debounce = "500ms"
	}
}
