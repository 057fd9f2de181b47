package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/datadodo/datagate/internal/tokenfile"
)

// Config holds the provider endpoints and credential storage location.
type Config struct {
	// APIKey identifies the client application to the identity service.
	APIKey string

	// AuthBaseURL is the identity-toolkit REST base, e.g.
	// "https://identitytoolkit.googleapis.com".
	AuthBaseURL string

	// TokenURL is the refresh-token exchange endpoint, e.g.
	// "https://securetoken.googleapis.com/v1/token".
	TokenURL string

	// TokenPath is where the credential file is persisted.
	TokenPath string

	// Browser (OAuth2 authorization code + PKCE) flow settings.
	OAuthClientID string
	OAuthAuthURL  string
	OAuthTokenURL string
	OAuthScopes   []string
}

// Identity is the authenticated principal. Immutable once issued;
// replaced wholesale on sign-in and sign-out. Its token is re-derived
// on demand and refreshed transparently, never cached by consumers.
type Identity struct {
	UID   string
	Email string

	tokens oauth2.TokenSource
}

// Token returns a fresh bearer credential for the principal. Implements
// gateway.TokenSource.
func (id *Identity) Token() (string, error) {
	t, err := id.tokens.Token()
	if err != nil {
		return "", fmt.Errorf("identity: obtaining token: %w", err)
	}

	return t.AccessToken, nil
}

// Provider is the concrete identity provider client. It owns the
// current identity, persists credentials across runs, and notifies
// subscribers on every auth-state change.
type Provider struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger

	mu      sync.Mutex
	current *Identity
	subs    map[int]func(*Identity)
	nextSub int
}

// NewProvider creates a Provider, restoring any persisted identity from
// the credential file. A corrupt or claim-less credential file logs a
// warning and starts signed out rather than failing construction.
func NewProvider(cfg Config, httpClient *http.Client, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	p := &Provider{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger,
		subs:       make(map[int]func(*Identity)),
	}

	p.current = p.restore()

	return p
}

// restore rebuilds the identity from the persisted credential file.
func (p *Provider) restore() *Identity {
	tok, meta, err := tokenfile.Load(p.cfg.TokenPath)
	if err != nil {
		p.logger.Warn("ignoring unreadable credential file",
			slog.String("path", p.cfg.TokenPath),
			slog.String("error", err.Error()),
		)

		return nil
	}

	if tok == nil {
		return nil
	}

	uid, email := meta[tokenfile.MetaUID], meta[tokenfile.MetaEmail]
	if uid == "" {
		pc, claimErr := parseIDToken(tok.AccessToken)
		if claimErr != nil {
			p.logger.Warn("credential file has no principal metadata, starting signed out",
				slog.String("error", claimErr.Error()),
			)

			return nil
		}

		uid, email = pc.UID, pc.Email
	}

	p.logger.Info("restored identity from credential file",
		slog.String("uid", uid),
		slog.Bool("expired", !tok.Expiry.IsZero() && tok.Expiry.Before(time.Now())),
	)

	return &Identity{
		UID:    uid,
		Email:  email,
		tokens: p.refreshSource(tok, map[string]string{tokenfile.MetaUID: uid, tokenfile.MetaEmail: email}),
	}
}

// Current returns the signed-in identity, or nil.
func (p *Provider) Current() *Identity {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.current
}

// Subscribe registers fn for auth-state changes and synchronously
// delivers the current state before returning, so callers have a
// deterministic "auth known" point. The returned function removes the
// subscription.
func (p *Provider) Subscribe(fn func(*Identity)) func() {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	current := p.current
	p.mu.Unlock()

	fn(current)

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()

		delete(p.subs, id)
	}
}

// setCurrent replaces the identity and notifies subscribers. Callbacks
// run outside the lock so they may call back into the provider.
func (p *Provider) setCurrent(id *Identity) {
	p.mu.Lock()
	p.current = id

	notify := make([]func(*Identity), 0, len(p.subs))
	for _, fn := range p.subs {
		notify = append(notify, fn)
	}
	p.mu.Unlock()

	for _, fn := range notify {
		fn(id)
	}
}

// SignUp creates a new account with the given email and password.
func (p *Provider) SignUp(ctx context.Context, email, password string) (*Identity, error) {
	return p.passwordCall(ctx, "/v1/accounts:signUp", email, password)
}

// SignIn authenticates an existing account with email and password.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	return p.passwordCall(ctx, "/v1/accounts:signInWithPassword", email, password)
}

// SignOut removes the persisted credential and clears the current
// identity. Local state is cleared and subscribers notified even when
// credential removal fails, so a stuck file cannot pin a session.
func (p *Provider) SignOut(_ context.Context) error {
	err := tokenfile.Remove(p.cfg.TokenPath)
	if err != nil {
		p.logger.Warn("failed to remove credential file, clearing session anyway",
			slog.String("path", p.cfg.TokenPath),
			slog.String("error", err.Error()),
		)
	}

	p.setCurrent(nil)
	p.logger.Info("signed out")

	return err
}

// Password endpoint request/response wire shapes.
type passwordRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type passwordResponse struct {
	IDToken      string `json:"idToken"`
	Email        string `json:"email"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	LocalID      string `json:"localId"`
}

type providerErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// passwordCall performs a password-grant REST call and installs the
// resulting identity.
func (p *Provider) passwordCall(ctx context.Context, endpoint, email, password string) (*Identity, error) {
	payload, err := json.Marshal(passwordRequest{Email: email, Password: password, ReturnSecureToken: true})
	if err != nil {
		return nil, fmt.Errorf("identity: encoding request: %w", err)
	}

	callURL := p.cfg.AuthBaseURL + endpoint + "?key=" + url.QueryEscape(p.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("identity: creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &AuthError{Code: CodeNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, p.errorFromResponse(resp)
	}

	var pr passwordResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("identity: decoding response: %w", err)
	}

	return p.install(pr)
}

// errorFromResponse classifies a non-200 provider response.
func (p *Provider) errorFromResponse(resp *http.Response) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return &AuthError{Code: CodeUnknown, Message: "unreadable error response"}
	}

	var per providerErrorResponse
	if err := json.Unmarshal(body, &per); err != nil || per.Error.Message == "" {
		return &AuthError{Code: CodeUnknown, Message: string(body)}
	}

	return &AuthError{Code: mapProviderMessage(per.Error.Message), Message: per.Error.Message}
}

// install persists the credential, builds the identity with a
// refreshing token source, and notifies subscribers.
func (p *Provider) install(pr passwordResponse) (*Identity, error) {
	uid, email := pr.LocalID, pr.Email
	if uid == "" {
		pc, err := parseIDToken(pr.IDToken)
		if err != nil {
			return nil, err
		}

		uid, email = pc.UID, pc.Email
	}

	expiry := time.Now()
	if secs, err := strconv.Atoi(pr.ExpiresIn); err == nil {
		expiry = expiry.Add(time.Duration(secs) * time.Second)
	}

	tok := &oauth2.Token{
		AccessToken:  pr.IDToken,
		RefreshToken: pr.RefreshToken,
		Expiry:       expiry,
	}

	meta := map[string]string{tokenfile.MetaUID: uid, tokenfile.MetaEmail: email}
	if err := tokenfile.Save(p.cfg.TokenPath, tok, meta); err != nil {
		return nil, fmt.Errorf("identity: saving credential: %w", err)
	}

	id := &Identity{
		UID:    uid,
		Email:  email,
		tokens: p.refreshSource(tok, meta),
	}

	p.setCurrent(id)
	p.logger.Info("signed in",
		slog.String("uid", uid),
		slog.Time("token_expiry", expiry),
	)

	return id, nil
}

// refreshSource builds a token source that refreshes via the provider's
// token endpoint and persists every refreshed token. The background
// context intentionally outlives any single call so silent refresh
// keeps working for the life of the process.
func (p *Provider) refreshSource(tok *oauth2.Token, meta map[string]string) oauth2.TokenSource {
	cfg := &oauth2.Config{
		ClientID: p.cfg.APIKey,
		Endpoint: oauth2.Endpoint{
			TokenURL:  p.cfg.TokenURL + "?key=" + url.QueryEscape(p.cfg.APIKey),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, p.httpClient)

	return &persistingSource{
		src:    cfg.TokenSource(ctx, tok),
		path:   p.cfg.TokenPath,
		meta:   meta,
		logger: p.logger,
		last:   tok.AccessToken,
	}
}

// persistingSource wraps an oauth2.TokenSource and writes every
// refreshed token back to the credential file, keeping the on-disk
// refresh token current across silent refreshes.
type persistingSource struct {
	src    oauth2.TokenSource
	path   string
	meta   map[string]string
	logger *slog.Logger

	mu   sync.Mutex
	last string
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if t.AccessToken != s.last {
		s.last = t.AccessToken
		s.logger.Info("token refreshed", slog.Time("new_expiry", t.Expiry))

		if saveErr := tokenfile.Save(s.path, t, s.meta); saveErr != nil {
			s.logger.Warn("failed to persist refreshed token",
				slog.String("path", s.path),
				slog.String("error", saveErr.Error()),
			)
		}
	}

	return t, nil
}
