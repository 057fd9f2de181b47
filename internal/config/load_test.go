package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)

	assert.Equal(t, defaultBaseURL, cfg.API.BaseURL)
	assert.Equal(t, "info", cfg.Logging.LogLevel)
	assert.Equal(t, []string{"openid", "email"}, cfg.Identity.OAuthScopes)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
[api]
base_url = "https://staging.datadodo.com"

[identity]
api_key = "AIzaTest"

[logging]
log_level = "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://staging.datadodo.com", cfg.API.BaseURL)
	assert.Equal(t, "AIzaTest", cfg.Identity.APIKey)
	assert.Equal(t, "debug", cfg.Logging.LogLevel)

	// untouched sections keep defaults
	assert.Equal(t, defaultTimeout, cfg.API.Timeout)
	assert.Equal(t, defaultTokenURL, cfg.Identity.TokenURL)
}

func TestLoadRejectsUnknownKeyWithSuggestion(t *testing.T) {
	path := writeConfig(t, `
[api]
base_ur = "https://example.com"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"base_ur"`)
	assert.Contains(t, err.Error(), `did you mean "base_url"`)
}

func TestLoadRejectsUnknownSection(t *testing.T) {
	path := writeConfig(t, `
[identtiy]
api_key = "x"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did you mean [identity]")
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	path := writeConfig(t, `
[logging]
log_level = "verbose"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
}

func TestResolvePrecedence(t *testing.T) {
	path := writeConfig(t, `
[api]
base_url = "https://from-file.example.com"
`)

	// env beats file
	cfg, err := Resolve(EnvOverrides{
		ConfigPath: path,
		BaseURL:    "https://from-env.example.com",
	}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, "https://from-env.example.com", cfg.API.BaseURL)

	// CLI beats env
	cliURL := "https://from-flag.example.com"
	cfg, err = Resolve(EnvOverrides{
		ConfigPath: path,
		BaseURL:    "https://from-env.example.com",
	}, CLIOverrides{BaseURL: &cliURL})
	require.NoError(t, err)
	assert.Equal(t, "https://from-flag.example.com", cfg.API.BaseURL)
}

func TestResolveDerivesNotifyURL(t *testing.T) {
	path := writeConfig(t, `
[api]
base_url = "https://api.example.com"
`)

	cfg, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, "wss://api.example.com/api/notify", cfg.API.NotifyURL)
}

func TestResolveKeepsExplicitNotifyURL(t *testing.T) {
	path := writeConfig(t, `
[api]
base_url = "https://api.example.com"
notify_url = "wss://feed.example.com/changes"
`)

	cfg, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, "wss://feed.example.com/changes", cfg.API.NotifyURL)
}

func TestResolveFillsStoragePaths(t *testing.T) {
	path := writeConfig(t, ``)

	cfg, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{})
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Storage.TokenPath)
	assert.NotEmpty(t, cfg.Storage.CachePath)

	// env override wins over default path
	cfg, err = Resolve(EnvOverrides{ConfigPath: path, TokenPath: "/tmp/alt-creds.json"}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/alt-creds.json", cfg.Storage.TokenPath)
}

func TestParsedDurations(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 30*time.Second, cfg.API.ParsedTimeout())
	assert.Equal(t, 2*time.Second, cfg.Watch.ParsedSettleDelay())
}

func TestDeriveNotifyURL(t *testing.T) {
	assert.Equal(t, "wss://x.example.com/api/notify", deriveNotifyURL("https://x.example.com"))
	assert.Equal(t, "ws://localhost:8000/api/notify", deriveNotifyURL("http://localhost:8000"))
	assert.Equal(t, "", deriveNotifyURL("ftp://x.example.com"))
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "drop"), ExpandHome("~/drop"))
	assert.Equal(t, home, ExpandHome("~"))
	assert.Equal(t, "/abs/path", ExpandHome("/abs/path"))
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, levenshtein("abc", "abc"))
	assert.Equal(t, 1, levenshtein("base_ur", "base_url"))
	assert.Equal(t, 3, levenshtein("", "abc"))
	assert.Equal(t, "", closestMatch("completely_different", knownKeyLists["api"]))
}
