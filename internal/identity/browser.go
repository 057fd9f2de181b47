package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"

	"github.com/datadodo/datagate/internal/tokenfile"
)

// stateTokenBytes is the number of random bytes for the OAuth2 state parameter.
const stateTokenBytes = 16

// shutdownTimeout is how long to wait for the callback server to drain.
const shutdownTimeout = 5 * time.Second

// callbackResult carries the authorization code or error from the callback handler.
type callbackResult struct {
	code string
	err  error
}

// SignInWithBrowser performs the provider sign-in flow (authorization
// code + PKCE):
//  1. Binds a localhost HTTP server on a random port
//  2. Opens the browser to the provider's authorization endpoint
//  3. Receives the callback with the authorization code
//  4. Exchanges the code for tokens using PKCE
//  5. Persists the credential and installs the identity
//
// openURL is called with the authorization URL; the CLI uses it to
// launch the default browser. If openURL fails, the URL is printed to
// stderr so the user can open it manually. Cancelling ctx while waiting
// for the callback is classified as CodePopupClosed — the user walked
// away without authorizing.
func (p *Provider) SignInWithBrowser(ctx context.Context, openURL func(string) error) (*Identity, error) {
	cfg := &oauth2.Config{
		ClientID: p.cfg.OAuthClientID,
		Scopes:   p.cfg.OAuthScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.cfg.OAuthAuthURL,
			TokenURL: p.cfg.OAuthTokenURL,
		},
	}

	p.logger.Info("starting browser sign-in flow (authorization code + PKCE)")

	resultCh := make(chan callbackResult, 1)
	mux := http.NewServeMux()

	srv, port, err := startCallbackServer(ctx, mux, resultCh, p.logger)
	if err != nil {
		return nil, err
	}

	defer shutdownCallbackServer(srv, p.logger)

	cfg.RedirectURL = fmt.Sprintf("http://localhost:%d/", port)

	verifier := oauth2.GenerateVerifier()

	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("identity: generating state token: %w", err)
	}

	registerCallbackHandler(mux, state, resultCh)

	authURL := cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
	)

	launchBrowser(authURL, openURL, p.logger)

	code, err := waitForCallback(ctx, resultCh)
	if err != nil {
		return nil, err
	}

	return p.exchangeAndInstall(ctx, cfg, code, verifier)
}

// startCallbackServer binds to 127.0.0.1:0 and starts an HTTP server
// with the given mux. Returns the server, the port, and any error.
func startCallbackServer(
	ctx context.Context,
	mux *http.ServeMux,
	resultCh chan<- callbackResult,
	logger *slog.Logger,
) (*http.Server, int, error) {
	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		return nil, 0, fmt.Errorf("identity: binding localhost listener: %w", err)
	}

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		listener.Close()
		return nil, 0, fmt.Errorf("identity: listener address is not TCP")
	}

	port := tcpAddr.Port
	logger.Info("callback server listening", slog.Int("port", port))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			resultCh <- callbackResult{err: fmt.Errorf("identity: callback server error: %w", serveErr)}
		}
	}()

	return srv, port, nil
}

// registerCallbackHandler adds the callback route to the mux.
// Must be called before the browser redirects back.
func registerCallbackHandler(mux *http.ServeMux, state string, resultCh chan<- callbackResult) {
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		handleCallback(w, r, state, resultCh)
	})
}

// handleCallback validates the state, extracts the code, and sends the result.
func handleCallback(w http.ResponseWriter, r *http.Request, state string, resultCh chan<- callbackResult) {
	// Validate state to prevent CSRF.
	if r.URL.Query().Get("state") != state {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		resultCh <- callbackResult{err: fmt.Errorf("identity: OAuth2 state mismatch (possible CSRF)")}

		return
	}

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		desc := r.URL.Query().Get("error_description")
		http.Error(w, "Authorization failed: "+errParam, http.StatusBadRequest)
		resultCh <- callbackResult{err: &AuthError{Code: CodeUnknown, Message: errParam + ": " + desc}}

		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		resultCh <- callbackResult{err: fmt.Errorf("identity: callback missing authorization code")}

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><h1>Sign-in successful</h1>"+
		"<p>You can close this window and return to the terminal.</p></body></html>")
	resultCh <- callbackResult{code: code}
}

// shutdownCallbackServer gracefully shuts down the callback HTTP server.
func shutdownCallbackServer(srv *http.Server, logger *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("callback server shutdown error", slog.String("error", err.Error()))
	}
}

// launchBrowser attempts to open the auth URL. If it fails, prints the
// URL to stderr as a fallback so the user can copy-paste it.
func launchBrowser(authURL string, openURL func(string) error, logger *slog.Logger) {
	logger.Info("opening browser for authorization")

	if openErr := openURL(authURL); openErr != nil {
		logger.Warn("failed to open browser, printing URL",
			slog.String("error", openErr.Error()),
		)

		fmt.Fprintf(os.Stderr, "Open this URL in your browser:\n%s\n", authURL)
	}
}

// waitForCallback blocks until the callback fires or the context is
// canceled. Cancellation means the user abandoned the flow.
func waitForCallback(ctx context.Context, resultCh <-chan callbackResult) (string, error) {
	select {
	case result := <-resultCh:
		if result.err != nil {
			return "", result.err
		}

		return result.code, nil
	case <-ctx.Done():
		return "", &AuthError{Code: CodePopupClosed, Message: ctx.Err().Error()}
	}
}

// exchangeAndInstall exchanges the auth code for tokens, persists the
// credential, and installs the identity from the ID-token claims.
func (p *Provider) exchangeAndInstall(
	ctx context.Context, cfg *oauth2.Config, code, verifier string,
) (*Identity, error) {
	p.logger.Info("received authorization code, exchanging for token")

	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, &AuthError{Code: CodeNetwork, Message: err.Error()}
	}

	rawID, _ := tok.Extra("id_token").(string)
	if rawID == "" {
		return nil, fmt.Errorf("identity: token response missing id_token")
	}

	pc, err := parseIDToken(rawID)
	if err != nil {
		return nil, err
	}

	meta := map[string]string{tokenfile.MetaUID: pc.UID, tokenfile.MetaEmail: pc.Email}
	if saveErr := tokenfile.Save(p.cfg.TokenPath, tok, meta); saveErr != nil {
		return nil, fmt.Errorf("identity: saving credential: %w", saveErr)
	}

	ctxSrc := context.WithValue(context.Background(), oauth2.HTTPClient, p.httpClient)
	id := &Identity{
		UID:   pc.UID,
		Email: pc.Email,
		tokens: &persistingSource{
			src:    cfg.TokenSource(ctxSrc, tok),
			path:   p.cfg.TokenPath,
			meta:   meta,
			logger: p.logger,
			last:   tok.AccessToken,
		},
	}

	p.setCurrent(id)
	p.logger.Info("browser sign-in successful",
		slog.String("uid", pc.UID),
		slog.Time("token_expiry", tok.Expiry),
	)

	return id, nil
}

// generateState produces a cryptographically random hex string for the
// OAuth2 state parameter.
func generateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
