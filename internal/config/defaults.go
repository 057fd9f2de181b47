package config

// Default endpoint and behavior values. The identity defaults target the
// hosted provider; self-hosted deployments override them in the file.
const (
	defaultBaseURL     = "https://api.datadodo.com"
	defaultAuthBaseURL = "https://identitytoolkit.googleapis.com"
	defaultTokenURL    = "https://securetoken.googleapis.com/v1/token"
	defaultTimeout     = "30s"
	defaultSettleDelay = "2s"
	defaultLogLevel    = "info"
	defaultLogFormat   = "text"
	defaultUserAgent   = "datagate/0.1"
)

// DefaultConfig returns a Config populated with all default values.
// Loading merges the file on top of this, so absent keys keep defaults.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:   defaultBaseURL,
			Timeout:   defaultTimeout,
			UserAgent: defaultUserAgent,
		},
		Identity: IdentityConfig{
			AuthBaseURL: defaultAuthBaseURL,
			TokenURL:    defaultTokenURL,
			OAuthScopes: []string{"openid", "email"},
		},
		Watch: WatchConfig{
			SettleDelay: defaultSettleDelay,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}
