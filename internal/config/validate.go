package config

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error joining every problem found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Concurrency < 1 {
		errs = append(errs, ValidationError{
			Field:   "concurrency",
			Message: "must be at least 1",
		})
	}

	if cfg.SuiteDir == "" {
		errs = append(errs, ValidationError{
			Field:   "suite_dir",
			Message: "must not be empty",
		})
	}

	if cfg.ScratchDir == "" {
		errs = append(errs, ValidationError{
			Field:   "scratch_dir",
			Message: "must not be empty",
		})
	}

	if cfg.StatsFile == "" {
		errs = append(errs, ValidationError{
			Field:   "stats_file",
			Message: "must not be empty",
		})
	}

	if cfg.EarlyFailureLimit < 0 {
		errs = append(errs, ValidationError{
			Field:   "early_failure_limit",
			Message: "must be zero or positive",
		})
	}

	for _, entry := range cfg.Whitelist {
		name, path, ok := strings.Cut(entry, "=")
		if !ok || name == "" || path == "" {
			errs = append(errs, ValidationError{
				Field:   "whitelist",
				Message: fmt.Sprintf("entry %q must be name=path", entry),
			})
		}
	}

	if cfg.Relay != "" && cfg.RelayToken == "" {
		errs = append(errs, ValidationError{
			Field:   "relay_token",
			Message: "required when relay is set; both masters must share the run token",
		})
	}

	if cfg.RelayRetryWindow <= 0 {
		errs = append(errs, ValidationError{
			Field:   "relay_retry_window",
			Message: "must be positive",
		})
	}
	if cfg.RelayRetryBackoff <= 0 {
		errs = append(errs, ValidationError{
			Field:   "relay_retry_backoff",
			Message: "must be positive",
		})
	}
	if cfg.RelayRetryBackoff > cfg.RelayRetryWindow {
		errs = append(errs, ValidationError{
			Field:   "relay_retry_backoff",
			Message: "must be <= relay_retry_window",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.LogLevel] {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("must be one of: debug, info, warn, error (got %q)", cfg.LogLevel),
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
