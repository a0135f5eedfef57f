// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_ValidConfig(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	assert.NoError(t, NewValidator().Validate(cfg))
}

func TestValidator_InvalidPort(t *testing.T) {
	tests := []struct {
		name string
		port int
		ok   bool
	}{
		{"zero", 0, true},
		{"normal", 8787, true},
		{"max", 65535, true},
		{"negative", -1, false},
		{"too large", 70000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Server: ServerConfig{Port: tt.port}}
			err := NewValidator().Validate(cfg)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "server.port")
			}
		})
	}
}

func TestValidator_TranslationModels(t *testing.T) {
	cfg := &Config{
		Translation: TranslationConfig{APIKey: "sk-test"},
	}

	err := NewValidator().Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "translation.detect_model")
	assert.Contains(t, err.Error(), "translation.translate_model")
}

func TestValidator_TranslationDisabledSkipsChecks(t *testing.T) {
	off := true
	cfg := &Config{
		Translation: TranslationConfig{APIKey: "sk-test", Disabled: &off},
	}

	assert.NoError(t, NewValidator().Validate(cfg))
}

func TestValidator_InvalidDebounce(t *testing.T) {
	cfg := &Config{Watch: WatchConfig{Debounce: "not-a-duration"}}

	err := NewValidator().Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watch.debounce")
}

func TestValidationError_Aggregates(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{Port: -1},
		Watch:  WatchConfig{Debounce: "bogus"},
	}

	err := NewValidator().Validate(cfg)
	require.Error(t, err)

	verr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Len(t, verr.Errors, 2)
}
