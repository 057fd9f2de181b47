package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Valid log levels and formats.
var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"text": true, "json": true}
)

// Validate checks a Config for internally inconsistent or unusable
// values. It does not require the identity api_key: commands that never
// touch the provider (cached listing, history) work without one.
func Validate(cfg *Config) error {
	var errs []error

	if err := validateURL("api.base_url", cfg.API.BaseURL, false); err != nil {
		errs = append(errs, err)
	}

	if err := validateURL("api.notify_url", cfg.API.NotifyURL, true); err != nil {
		errs = append(errs, err)
	}

	if err := validateDuration("api.timeout", cfg.API.Timeout); err != nil {
		errs = append(errs, err)
	}

	if err := validateDuration("watch.settle_delay", cfg.Watch.SettleDelay); err != nil {
		errs = append(errs, err)
	}

	if !validLogLevels[cfg.Logging.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level must be debug, info, warn, or error (got %q)", cfg.Logging.LogLevel))
	}

	if !validLogFormats[cfg.Logging.LogFormat] {
		errs = append(errs, fmt.Errorf("log_format must be text or json (got %q)", cfg.Logging.LogFormat))
	}

	return errors.Join(errs...)
}

func validateURL(key, value string, optional bool) error {
	if value == "" {
		if optional {
			return nil
		}

		return fmt.Errorf("%s must not be empty", key)
	}

	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s is not a valid URL: %q", key, value)
	}

	return nil
}

func validateDuration(key, value string) error {
	if value == "" {
		return nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s is not a valid duration: %q", key, value)
	}

	if d <= 0 {
		return fmt.Errorf("%s must be positive (got %q)", key, value)
	}

	return nil
}

// ParsedTimeout returns the parsed API timeout, or zero if unset/invalid.
// Validate catches invalid values first, so callers can ignore errors.
func (c *APIConfig) ParsedTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0
	}

	return d
}

// ParsedSettleDelay returns the parsed watcher settle delay.
func (c *WatchConfig) ParsedSettleDelay() time.Duration {
	d, err := time.ParseDuration(c.SettleDelay)
	if err != nil {
		return 0
	}

	return d
}
