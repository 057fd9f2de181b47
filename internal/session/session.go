// Package session owns the authenticated session: the single source of
// truth for who is signed in and what they may do. It composes the
// identity provider and the profile store, both injected as interfaces
// so tests construct isolated instances.
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/datadodo/datagate/internal/identity"
	"github.com/datadodo/datagate/internal/profile"
)

// Provider is the identity-provider contract the session consumes.
// identity.Provider is the real implementation.
type Provider interface {
	Subscribe(fn func(*identity.Identity)) (unsubscribe func())
	SignUp(ctx context.Context, email, password string) (*identity.Identity, error)
	SignIn(ctx context.Context, email, password string) (*identity.Identity, error)
	SignInWithBrowser(ctx context.Context, openURL func(string) error) (*identity.Identity, error)
	SignOut(ctx context.Context) error
}

// ProfileStore is the profile document-store contract.
// profile.Store is the real implementation.
type ProfileStore interface {
	Get(ctx context.Context, uid string) (*profile.Profile, error)
	Set(ctx context.Context, uid string, p *profile.Profile) error
}

// ProfileUpdate is the narrow escape hatch for reflecting
// server-confirmed admin changes onto the local profile without a full
// refetch. Nil fields are left untouched.
type ProfileUpdate struct {
	UserType  *string
	FileLimit *int
}

// Manager holds the session state. One Manager exists per application
// context; construct isolated instances in tests. All state access is
// serialized: mu guards the fields, opMu serializes the sign-in/
// sign-up/sign-out operations so overlapping auth calls cannot
// interleave.
type Manager struct {
	provider Provider
	profiles ProfileStore
	logger   *slog.Logger

	initOnce    sync.Once
	unsubscribe func()

	opMu sync.Mutex // serializes auth operations end to end

	mu          sync.Mutex // guards the fields below
	identity    *identity.Identity
	profile     *profile.Profile
	initialized bool
	loading     bool
	lastError   *Error
}

// NewManager creates a session manager over the given collaborators.
func NewManager(provider Provider, profiles ProfileStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		provider: provider,
		profiles: profiles,
		logger:   logger,
	}
}

// Initialize subscribes to the provider's auth-state changes and
// returns once the first notification has been processed, giving
// callers a deterministic "auth known" point. Idempotent: repeated
// calls never register duplicate subscriptions, and initialized is set
// exactly once, permanently.
//
// ctx is retained for profile loads triggered by later auth-state
// notifications, so it must outlive the session. Callers should pass a
// long-lived context.
func (m *Manager) Initialize(ctx context.Context) {
	m.initOnce.Do(func() {
		// The provider delivers the current state synchronously on
		// subscribe, so the first notification has been handled by the
		// time Subscribe returns.
		m.unsubscribe = m.provider.Subscribe(func(id *identity.Identity) {
			m.onAuthChange(ctx, id)
		})

		m.mu.Lock()
		m.initialized = true
		m.mu.Unlock()

		m.logger.Debug("session initialized", slog.Bool("authenticated", m.IsAuthenticated()))
	})
}

// Close drops the provider subscription.
func (m *Manager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// onAuthChange handles a provider auth-state notification. A non-nil
// identity loads the profile; nil clears identity and profile
// unconditionally.
func (m *Manager) onAuthChange(ctx context.Context, id *identity.Identity) {
	if id == nil {
		m.mu.Lock()
		m.identity = nil
		m.profile = nil
		m.mu.Unlock()

		m.logger.Debug("auth state changed: signed out")

		return
	}

	m.mu.Lock()
	m.identity = id
	m.mu.Unlock()

	m.loadProfile(ctx, id)
	m.logger.Debug("auth state changed: signed in", slog.String("uid", id.UID))
}

// loadProfile fetches the profile for id, synthesizing a local-only
// default when no document exists yet. The placeholder is not persisted
// here; only sign-up creates the remote document.
func (m *Manager) loadProfile(ctx context.Context, id *identity.Identity) {
	p, err := m.profiles.Get(ctx, id.UID)
	if err != nil {
		m.logger.Warn("profile fetch failed",
			slog.String("uid", id.UID),
			slog.String("error", err.Error()),
		)

		m.mu.Lock()
		m.lastError = &Error{Kind: identity.CodeUnknown, Message: msgProfileFetch}
		m.mu.Unlock()

		return
	}

	if p == nil {
		p = profile.Default(id.UID, id.Email)
	}

	m.mu.Lock()
	m.profile = p
	m.mu.Unlock()
}

// SignUp creates an account, persists the default profile document, and
// loads it. The mapped error is stored on lastError and returned.
func (m *Manager) SignUp(ctx context.Context, email, password string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.setLoading(true)
	defer m.setLoading(false)

	id, err := m.provider.SignUp(ctx, email, password)
	if err != nil {
		return m.recordAuthError("sign up", err)
	}

	if err := m.profiles.Set(ctx, id.UID, profile.Default(id.UID, id.Email)); err != nil {
		m.logger.Warn("creating profile document failed",
			slog.String("uid", id.UID),
			slog.String("error", err.Error()),
		)
	}

	m.adopt(ctx, id)

	return nil
}

// adopt installs a freshly signed-in identity and loads its profile.
// The provider's change notification does the same work when the
// session is subscribed; adopting here keeps the operation correct even
// before Initialize has run, and repeating it is harmless.
func (m *Manager) adopt(ctx context.Context, id *identity.Identity) {
	m.mu.Lock()
	m.identity = id
	m.mu.Unlock()

	m.loadProfile(ctx, id)
}

// SignIn authenticates with email and password and loads the profile.
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.setLoading(true)
	defer m.setLoading(false)

	id, err := m.provider.SignIn(ctx, email, password)
	if err != nil {
		return m.recordAuthError("sign in", err)
	}

	m.adopt(ctx, id)

	return nil
}

// SignInWithBrowser runs the provider's browser authorization flow.
func (m *Manager) SignInWithBrowser(ctx context.Context, openURL func(string) error) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.setLoading(true)
	defer m.setLoading(false)

	id, err := m.provider.SignInWithBrowser(ctx, openURL)
	if err != nil {
		return m.recordAuthError("browser sign in", err)
	}

	m.adopt(ctx, id)

	return nil
}

// SignOut invalidates the provider session, then clears local state
// regardless of the outcome — failing open to the signed-out state so a
// broken provider call cannot produce a stuck session.
func (m *Manager) SignOut(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.setLoading(true)
	defer m.setLoading(false)

	err := m.provider.SignOut(ctx)

	m.mu.Lock()
	m.identity = nil
	m.profile = nil
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("provider sign-out failed, session cleared locally",
			slog.String("error", err.Error()),
		)
	}

	return err
}

// recordAuthError maps a provider failure, stores it as lastError, and
// returns the structured error for the caller to react to.
func (m *Manager) recordAuthError(op string, err error) error {
	mapped := mapAuthError(err)

	m.logger.Warn(op+" failed",
		slog.String("kind", string(mapped.Kind)),
		slog.String("error", err.Error()),
	)

	m.mu.Lock()
	m.lastError = mapped
	m.mu.Unlock()

	return mapped
}

func (m *Manager) setLoading(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.loading = v
	if v {
		m.lastError = nil
	}
}

// ApplyProfileUpdate patches the local profile in place with
// server-confirmed admin changes. No-op when signed out.
func (m *Manager) ApplyProfileUpdate(u ProfileUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.profile == nil {
		return
	}

	if u.UserType != nil {
		m.profile.UserType = *u.UserType
	}

	if u.FileLimit != nil {
		m.profile.FileLimit = *u.FileLimit
	}
}

// ClearError resets lastError.
func (m *Manager) ClearError() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastError = nil
}

// Derived facts. Pure reads of current state, recomputed on every call.

// IsAuthenticated reports whether an identity is present.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.identity != nil
}

// IsAdmin reports whether the current profile grants admin privileges.
func (m *Manager) IsAdmin() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.profile.IsAdmin()
}

// UserType returns the profile's user type, defaulting to "user".
func (m *Manager) UserType() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.profile == nil {
		return profile.TypeUser
	}

	return m.profile.UserType
}

// FileLimit returns the profile's file quota, with the standard default
// when the profile is absent.
func (m *Manager) FileLimit() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.profile == nil {
		return profile.DefaultFileLimit
	}

	return m.profile.FileLimit
}

// FileCount returns the profile's file count, defaulting to zero.
func (m *Manager) FileCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.profile == nil {
		return 0
	}

	return m.profile.FileCount
}

// FileSizeLimit returns the maximum single-file size, with the standard
// default when the profile is absent.
func (m *Manager) FileSizeLimit() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.profile == nil {
		return profile.DefaultFileSizeLimit
	}

	return m.profile.FileSizeLimit
}

// Identity returns the current identity, or nil when signed out.
func (m *Manager) Identity() *identity.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.identity
}

// Profile returns a copy of the current profile, or nil.
func (m *Manager) Profile() *profile.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.profile == nil {
		return nil
	}

	p := *m.profile

	return &p
}

// Initialized reports whether the first auth notification has been
// processed.
func (m *Manager) Initialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.initialized
}

// Loading reports whether an auth operation is in flight.
func (m *Manager) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.loading
}

// LastError returns the most recent session error, or nil.
func (m *Manager) LastError() *Error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lastError
}
