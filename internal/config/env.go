package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig    = "DATAGATE_CONFIG"
	EnvBaseURL   = "DATAGATE_API_BASE_URL"
	EnvAPIKey    = "DATAGATE_API_KEY"
	EnvTokenPath = "DATAGATE_TOKEN_PATH"
	EnvLogLevel  = "DATAGATE_LOG_LEVEL"
)

// EnvOverrides holds values derived from environment variables.
// These are resolved by Resolve and applied on top of the config file.
type EnvOverrides struct {
	ConfigPath string // DATAGATE_CONFIG: override config file path
	BaseURL    string // DATAGATE_API_BASE_URL: service endpoint
	APIKey     string // DATAGATE_API_KEY: identity provider key
	TokenPath  string // DATAGATE_TOKEN_PATH: credential file location
	LogLevel   string // DATAGATE_LOG_LEVEL: log verbosity
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. This does not modify the Config; Resolve applies the fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		BaseURL:    os.Getenv(EnvBaseURL),
		APIKey:     os.Getenv(EnvAPIKey),
		TokenPath:  os.Getenv(EnvTokenPath),
		LogLevel:   os.Getenv(EnvLogLevel),
	}
}
