package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/datadodo/datagate/internal/admin"
	"github.com/datadodo/datagate/internal/config"
	"github.com/datadodo/datagate/internal/files"
	"github.com/datadodo/datagate/internal/gateway"
	"github.com/datadodo/datagate/internal/identity"
	"github.com/datadodo/datagate/internal/profile"
	"github.com/datadodo/datagate/internal/session"
	"github.com/datadodo/datagate/internal/statecache"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagAPIURL     string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by
// PersistentPreRunE. Available to all subcommands.
var resolvedCfg *config.Config

// Transport-level timeouts bound connection setup and the wait for
// response headers. The whole-exchange deadline is applied per request
// by the gateway, sized to the payload for uploads, so the client
// itself carries no overall cap.
const (
	dialTimeout           = 10 * time.Second
	tlsHandshakeTimeout   = 10 * time.Second
	responseHeaderTimeout = time.Minute
)

func defaultHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   dialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   tlsHandshakeTimeout,
			ResponseHeaderTimeout: responseHeaderTimeout,
			ForceAttemptHTTP2:     true,
		},
	}
}

// newRootCmd builds and returns the fully-assembled root command with
// all subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "datagate",
		Short:   "File storage CLI client",
		Long:    "A CLI client for the DataDodo file storage service: sign in, upload, download, and administer files from the terminal.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "service endpoint override")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newSignupCmd())
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newPutCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newQuotaCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newAdminCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the override
// chain and stores the result in resolvedCfg for use by subcommands.
func loadConfig(cmd *cobra.Command) error {
	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
	}

	if cmd.Flags().Changed("api-url") {
		cli.BaseURL = &flagAPIURL
	}

	env := config.ReadEnvOverrides()

	resolved, err := config.Resolve(env, cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = resolved

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config
// and CLI flags. Config-file log level provides the baseline; --verbose
// and --quiet override it because CLI flags always win.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo
	format := "text"

	if resolvedCfg != nil {
		switch resolvedCfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}

		format = resolvedCfg.Logging.LogFormat
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// providerTokens adapts the identity provider's current principal to
// the gateway's token source. Requests made while signed out proceed
// without a bearer token; the server answers 401 and the error surfaces
// through the normal synchronizer path.
type providerTokens struct {
	provider *identity.Provider
}

func (t providerTokens) Token() (string, error) {
	id := t.provider.Current()
	if id == nil {
		return "", identity.ErrNotSignedIn
	}

	return id.Token()
}

// app wires the full client stack for one command invocation.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	provider *identity.Provider
	session  *session.Manager
	gw       *gateway.Client
	files    *files.Store
	admin    *admin.Store
	cache    *statecache.Cache
}

// newApp builds the client stack: identity provider (restoring any
// saved credential), gateway, session manager, synchronizers, and the
// local state cache. The ctx must outlive the command because the
// session subscription retains it.
func newApp(ctx context.Context) (*app, error) {
	logger := buildLogger()
	httpClient := defaultHTTPClient()

	provider := identity.NewProvider(identity.Config{
		APIKey:        resolvedCfg.Identity.APIKey,
		AuthBaseURL:   resolvedCfg.Identity.AuthBaseURL,
		TokenURL:      resolvedCfg.Identity.TokenURL,
		TokenPath:     resolvedCfg.Storage.TokenPath,
		OAuthClientID: resolvedCfg.Identity.OAuthClientID,
		OAuthAuthURL:  resolvedCfg.Identity.OAuthAuthURL,
		OAuthTokenURL: resolvedCfg.Identity.OAuthTokenURL,
		OAuthScopes:   resolvedCfg.Identity.OAuthScopes,
	}, httpClient, logger)

	gw := gateway.NewClient(resolvedCfg.API.BaseURL, httpClient, providerTokens{provider}, logger)
	gw.SetTimeout(resolvedCfg.API.ParsedTimeout())
	gw.SetUserAgent(resolvedCfg.API.UserAgent)

	cache, err := statecache.Open(resolvedCfg.Storage.CachePath, logger)
	if err != nil {
		// A broken cache degrades offline features but never blocks the
		// remote path.
		logger.Warn("opening state cache failed", slog.String("error", err.Error()))
		cache = nil
	}

	var recorder files.Recorder
	if cache != nil {
		recorder = cache
	}

	a := &app{
		cfg:      resolvedCfg,
		logger:   logger,
		provider: provider,
		session:  session.NewManager(provider, profile.NewStore(gw, logger), logger),
		gw:       gw,
		files:    files.NewStore(gw, recorder, httpClient, logger),
		admin:    admin.NewStore(gw, logger),
		cache:    cache,
	}

	a.session.Initialize(ctx)

	return a, nil
}

// Close releases the app's resources.
func (a *app) Close() {
	a.session.Close()

	if a.cache != nil {
		a.cache.Close()
	}
}
