package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns
// the resulting Config. Unknown keys are fatal errors with "did you
// mean?" suggestions — silently ignoring a typo in a config file leads
// to hard-to-debug behavior.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values. This supports the
// zero-config first-run experience.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Config, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	if env.BaseURL != "" {
		cfg.API.BaseURL = env.BaseURL
	}

	if env.APIKey != "" {
		cfg.Identity.APIKey = env.APIKey
	}

	if env.TokenPath != "" {
		cfg.Storage.TokenPath = env.TokenPath
	}

	if env.LogLevel != "" {
		cfg.Logging.LogLevel = env.LogLevel
	}

	if cli.BaseURL != nil {
		cfg.API.BaseURL = *cli.BaseURL
	}

	if cli.LogLevel != nil {
		cfg.Logging.LogLevel = *cli.LogLevel
	}

	if cli.WatchDir != nil {
		cfg.Watch.Dir = *cli.WatchDir
	}

	// Fill derived paths after all overrides are in.
	if cfg.Storage.TokenPath == "" {
		cfg.Storage.TokenPath = DefaultTokenPath()
	}

	if cfg.Storage.CachePath == "" {
		cfg.Storage.CachePath = DefaultCachePath()
	}

	cfg.Storage.TokenPath = ExpandHome(cfg.Storage.TokenPath)
	cfg.Storage.CachePath = ExpandHome(cfg.Storage.CachePath)
	cfg.Watch.Dir = ExpandHome(cfg.Watch.Dir)

	if cfg.API.NotifyURL == "" {
		cfg.API.NotifyURL = deriveNotifyURL(cfg.API.BaseURL)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// deriveNotifyURL converts the HTTP base URL into the websocket change
// feed endpoint: scheme flipped to ws/wss, path /api/notify.
func deriveNotifyURL(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return ""
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/notify"

	return u.String()
}
