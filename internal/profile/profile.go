// Package profile defines the application-level user profile (role and
// quota, distinct from the identity principal) and its remote document
// store client.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/datadodo/datagate/internal/gateway"
)

// User types.
const (
	TypeUser  = "user"
	TypeAdmin = "admin"
)

// Defaults applied to newly created profiles.
const (
	DefaultFileLimit     = 500
	DefaultFileSizeLimit = 100 * 1024 * 1024
)

// Profile describes a user's role and storage quota. Created with
// defaults on first sign-up; mutated only by admin actions and by
// upload/delete side effects reflected through refetch.
type Profile struct {
	UID           string    `json:"uid"`
	Email         string    `json:"email"`
	UserType      string    `json:"user_type"`
	FileLimit     int       `json:"file_limit"`
	FileCount     int       `json:"file_count"`
	FileSizeLimit int64     `json:"file_size_limit"`
	CreatedAt     time.Time `json:"created_at"`
}

// Default returns a new profile with the standard defaults for a
// freshly signed-up user.
func Default(uid, email string) *Profile {
	return &Profile{
		UID:           uid,
		Email:         email,
		UserType:      TypeUser,
		FileLimit:     DefaultFileLimit,
		FileCount:     0,
		FileSizeLimit: DefaultFileSizeLimit,
		CreatedAt:     time.Now(),
	}
}

// IsAdmin reports whether the profile grants admin privileges.
func (p *Profile) IsAdmin() bool {
	return p != nil && p.UserType == TypeAdmin
}

// Store reads and writes profile documents by uid through the gateway.
type Store struct {
	gw     *gateway.Client
	logger *slog.Logger
}

// NewStore creates a profile document store client.
func NewStore(gw *gateway.Client, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{gw: gw, logger: logger}
}

// Get fetches the profile for uid. Returns (nil, nil) when no profile
// document exists, so callers can synthesize defaults.
func (s *Store) Get(ctx context.Context, uid string) (*Profile, error) {
	var p Profile

	err := s.gw.GetJSON(ctx, "/api/users/"+uid+"/profile", &p)
	if errors.Is(err, gateway.ErrNotFound) {
		s.logger.Debug("no profile document", slog.String("uid", uid))
		return nil, nil //nolint:nilnil // sentinel for "absent"
	}

	if err != nil {
		return nil, fmt.Errorf("profile: fetching %s: %w", uid, err)
	}

	return &p, nil
}

// Set writes the profile document for uid.
func (s *Store) Set(ctx context.Context, uid string, p *Profile) error {
	if err := s.gw.PutJSON(ctx, "/api/users/"+uid+"/profile", p); err != nil {
		return fmt.Errorf("profile: saving %s: %w", uid, err)
	}

	s.logger.Debug("profile saved", slog.String("uid", uid))

	return nil
}
