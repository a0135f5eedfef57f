// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"strings"
	"time"
)

// Validator validates configuration against schema rules.
type Validator struct{}

// NewValidator creates a new config validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidationError contains multiple validation failures.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single field validation error.
type FieldError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	var msgs []string
	for _, fe := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return strings.Join(msgs, "; ")
}

// IsEmpty returns true if there are no validation errors.
func (e *ValidationError) IsEmpty() bool {
	return len(e.Errors) == 0
}

// Add adds a field error.
func (e *ValidationError) Add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

// Validate checks configuration validity.
func (v *Validator) Validate(cfg *Config) error {
	errs := &ValidationError{}

	v.validateServer(cfg, errs)
	v.validateTranslation(cfg, errs)
	v.validateWatch(cfg, errs)

	if errs.IsEmpty() {
		return nil
	}
	return errs
}

func (v *Validator) validateServer(cfg *Config, errs *ValidationError) {
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs.Add("server.port", "must be between 0 and 65535")
	}
}

func (v *Validator) validateTranslation(cfg *Config, errs *ValidationError) {
	if !cfg.Translation.IsEnabled() {
		return
	}
	// A missing key degrades translation to pass-through at runtime, so
	// only an explicitly empty model is a configuration mistake.
	if cfg.Translation.APIKey != "" {
		if cfg.Translation.DetectModel == "" {
			errs.Add("translation.detect_model", "is required when translation is enabled")
		}
		if cfg.Translation.TranslateModel == "" {
			errs.Add("translation.translate_model", "is required when translation is enabled")
		}
	}
}

func (v *Validator) validateWatch(cfg *Config, errs *ValidationError) {
	if cfg.Watch.Debounce != "" {
		if _, err := time.ParseDuration(cfg.Watch.Debounce); err != nil {
			errs.Add("watch.debounce", fmt.Sprintf("invalid duration %q", cfg.Watch.Debounce))
		}
	}
}
