// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for datagate. It supports a
// three-layer override chain (defaults -> config file -> environment ->
// CLI flags) so one-off overrides never require editing the file.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	API      APIConfig      `toml:"api"`
	Identity IdentityConfig `toml:"identity"`
	Storage  StorageConfig  `toml:"storage"`
	Watch    WatchConfig    `toml:"watch"`
	Logging  LoggingConfig  `toml:"logging"`
}

// APIConfig controls the service endpoint and HTTP behavior.
type APIConfig struct {
	BaseURL string `toml:"base_url"`
	// NotifyURL is the websocket change feed endpoint. Empty derives it
	// from base_url (ws scheme, /api/notify path).
	NotifyURL string `toml:"notify_url"`
	Timeout   string `toml:"timeout"`
	UserAgent string `toml:"user_agent"`
}

// IdentityConfig controls the identity provider endpoints. The api_key
// identifies the application to the provider; it is not a secret in the
// credential sense but still should not be committed to shared configs.
type IdentityConfig struct {
	APIKey        string   `toml:"api_key"`
	AuthBaseURL   string   `toml:"auth_base_url"`
	TokenURL      string   `toml:"token_url"`
	OAuthClientID string   `toml:"oauth_client_id"`
	OAuthAuthURL  string   `toml:"oauth_auth_url"`
	OAuthTokenURL string   `toml:"oauth_token_url"`
	OAuthScopes   []string `toml:"oauth_scopes"`
}

// StorageConfig controls where local state lives. Empty paths fall back
// to the platform data directory.
type StorageConfig struct {
	TokenPath string `toml:"token_path"`
	CachePath string `toml:"cache_path"`
}

// WatchConfig controls the drop-directory watcher.
type WatchConfig struct {
	Dir         string `toml:"dir"`
	SettleDelay string `toml:"settle_delay"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	BaseURL    *string // --api-url flag
	LogLevel   *string // --log-level flag
	WatchDir   *string // --dir flag on the watch command
}
