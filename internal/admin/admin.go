// Package admin synchronizes the administrative views: all users, all
// files, and aggregate platform statistics. Quota and role changes are
// patched into the local collections in place; file deletion is
// removed optimistically, mirroring the per-user synchronizer.
package admin

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/datadodo/datagate/internal/gateway"
	"github.com/datadodo/datagate/internal/profile"
)

// User is one account as the admin listing reports it.
type User struct {
	UID       string    `json:"uid"`
	Email     string    `json:"email"`
	UserType  string    `json:"user_type"`
	FileLimit int       `json:"file_limit"`
	FileCount int       `json:"file_count"`
	CreatedAt time.Time `json:"created_at"`
}

// File is one record from the cross-user file listing. Unlike the
// per-user view it carries the owner.
type File struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	FileSize    int64     `json:"file_size"`
	ContentType string    `json:"content_type,omitempty"`
	OwnerUID    string    `json:"owner_uid"`
	OwnerEmail  string    `json:"owner_email,omitempty"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// Stats is the aggregate platform snapshot.
type Stats struct {
	TotalUsers   int   `json:"total_users"`
	TotalFiles   int   `json:"total_files"`
	TotalStorage int64 `json:"total_storage_bytes"`
	AdminUsers   int   `json:"admin_users"`
	RegularUsers int   `json:"regular_users"`
}

// OpError mirrors the per-user synchronizer error shape: user-facing
// message plus the underlying error.
type OpError struct {
	Op      string
	Message string
	Err     error
}

func (e *OpError) Error() string {
	return e.Message
}

func (e *OpError) Unwrap() error {
	return e.Err
}

const (
	msgFetchUsersFailed  = "Failed to fetch users"
	msgFetchFilesFailed  = "Failed to fetch files"
	msgFetchStatsFailed  = "Failed to fetch statistics"
	msgUpdateLimitFailed = "Failed to update file limit"
	msgUpdateTypeFailed  = "Failed to update user type"
	msgDeleteFailed      = "Failed to delete file"
	msgDownloadFailed    = "Failed to get download URL"
)

// Store is the Admin resource synchronizer. All operations require the
// caller to hold an admin session; the server enforces this and the
// store surfaces its denials as ordinary operation errors.
type Store struct {
	gw     *gateway.Client
	logger *slog.Logger

	mu      sync.Mutex
	users   []User
	files   []File
	stats   *Stats
	loading bool
	lastErr *OpError
}

// NewStore creates an Admin synchronizer.
func NewStore(gw *gateway.Client, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{gw: gw, logger: logger}
}

// FetchUsers replaces the cached user collection.
func (s *Store) FetchUsers(ctx context.Context) ([]User, error) {
	s.begin()
	defer s.end()

	var resp struct {
		Users []User `json:"users"`
	}
	if err := s.gw.GetJSON(ctx, "/api/admin/users", &resp); err != nil {
		return nil, s.fail("fetch-users", msgFetchUsersFailed, err)
	}

	s.mu.Lock()
	s.users = resp.Users
	s.mu.Unlock()

	s.logger.Debug("fetched user list", slog.Int("count", len(resp.Users)))

	return resp.Users, nil
}

// FetchAllFiles replaces the cached cross-user file collection.
func (s *Store) FetchAllFiles(ctx context.Context) ([]File, error) {
	s.begin()
	defer s.end()

	var resp struct {
		Files []File `json:"files"`
	}
	if err := s.gw.GetJSON(ctx, "/api/admin/files", &resp); err != nil {
		return nil, s.fail("fetch-files", msgFetchFilesFailed, err)
	}

	s.mu.Lock()
	s.files = resp.Files
	s.mu.Unlock()

	return resp.Files, nil
}

// FetchStats refreshes the aggregate platform snapshot.
func (s *Store) FetchStats(ctx context.Context) (*Stats, error) {
	s.begin()
	defer s.end()

	var stats Stats
	if err := s.gw.GetJSON(ctx, "/api/admin/stats", &stats); err != nil {
		return nil, s.fail("fetch-stats", msgFetchStatsFailed, err)
	}

	s.mu.Lock()
	s.stats = &stats
	s.mu.Unlock()

	return &stats, nil
}

// FetchUserFiles lists one user's files without touching the cached
// cross-user collection.
func (s *Store) FetchUserFiles(ctx context.Context, uid string) ([]File, error) {
	var resp struct {
		Files []File `json:"files"`
	}
	if err := s.gw.GetJSON(ctx, "/api/admin/users/"+uid+"/files", &resp); err != nil {
		return nil, s.fail("fetch-user-files", msgFetchFilesFailed, err)
	}

	return resp.Files, nil
}

// UpdateUserFileLimit changes a user's quota and patches the matching
// cached user record in place. The full user collection is not
// refetched: the change is scoped to one known record.
func (s *Store) UpdateUserFileLimit(ctx context.Context, uid string, newLimit int) error {
	s.begin()
	defer s.end()

	query := url.Values{"new_limit": {strconv.Itoa(newLimit)}}
	if err := s.gw.PutQuery(ctx, "/api/admin/users/"+uid+"/file-limit", query); err != nil {
		return s.fail("update-limit", msgUpdateLimitFailed, err)
	}

	s.patchUser(uid, func(u *User) { u.FileLimit = newLimit })
	s.logger.Info("updated file limit", slog.String("uid", uid), slog.Int("limit", newLimit))

	return nil
}

// UpdateUserType changes a user's role between user and admin, patching
// the cached record in place.
func (s *Store) UpdateUserType(ctx context.Context, uid, userType string) error {
	s.begin()
	defer s.end()

	query := url.Values{"user_type": {userType}}
	if err := s.gw.PutQuery(ctx, "/api/admin/users/"+uid+"/user-type", query); err != nil {
		return s.fail("update-type", msgUpdateTypeFailed, err)
	}

	s.patchUser(uid, func(u *User) { u.UserType = userType })
	s.logger.Info("updated user type", slog.String("uid", uid), slog.String("type", userType))

	return nil
}

// DeleteAnyFile removes any user's file remotely, then drops it from
// the cached cross-user collection by identifier. Unknown identifiers
// are a local no-op.
func (s *Store) DeleteAnyFile(ctx context.Context, id string) error {
	s.begin()
	defer s.end()

	if err := s.gw.Delete(ctx, "/api/admin/files/"+id); err != nil {
		return s.fail("delete-file", msgDeleteFailed, err)
	}

	s.mu.Lock()
	for i, f := range s.files {
		if f.ID == id {
			s.files = append(s.files[:i:i], s.files[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	return nil
}

// DownloadURL resolves a signed URL for any user's file.
func (s *Store) DownloadURL(ctx context.Context, id string) (string, error) {
	var resp struct {
		DownloadURL string `json:"download_url"`
	}
	if err := s.gw.GetJSON(ctx, "/api/admin/files/"+id+"/download", &resp); err != nil {
		return "", s.fail("download-url", msgDownloadFailed, err)
	}

	return resp.DownloadURL, nil
}

// Users returns a copy of the cached user collection.
func (s *Store) Users() []User {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]User, len(s.users))
	copy(out, s.users)

	return out
}

// Files returns a copy of the cached cross-user file collection.
func (s *Store) Files() []File {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]File, len(s.files))
	copy(out, s.files)

	return out
}

// Stats returns the last fetched platform snapshot, or nil.
func (s *Store) Stats() *Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stats == nil {
		return nil
	}

	out := *s.stats
	return &out
}

// AdminUsers counts cached users with the admin role.
func (s *Store) AdminUsers() int {
	return s.countByType(profile.TypeAdmin)
}

// RegularUsers counts cached users without the admin role.
func (s *Store) RegularUsers() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, u := range s.users {
		if u.UserType != profile.TypeAdmin {
			n++
		}
	}

	return n
}

// TotalUsers returns the size of the cached user collection.
func (s *Store) TotalUsers() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.users)
}

// TotalFiles returns the size of the cached cross-user file collection.
func (s *Store) TotalFiles() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.files)
}

// TotalStorage sums the sizes of all cached cross-user files.
func (s *Store) TotalStorage() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, f := range s.files {
		total += f.FileSize
	}

	return total
}

// Loading reports whether an operation is in flight.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loading
}

// Err returns the last operation error, or nil.
func (s *Store) Err() *OpError {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastErr
}

// ClearError resets the synchronizer error.
func (s *Store) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastErr = nil
}

func (s *Store) countByType(userType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, u := range s.users {
		if u.UserType == userType {
			n++
		}
	}

	return n
}

func (s *Store) patchUser(uid string, patch func(*User)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.users {
		if s.users[i].UID == uid {
			patch(&s.users[i])
			return
		}
	}
}

func (s *Store) begin() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loading = true
	s.lastErr = nil
}

func (s *Store) end() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loading = false
}

func (s *Store) fail(op, fallback string, err error) *OpError {
	opErr := &OpError{Op: op, Message: gateway.Detail(err, fallback), Err: err}

	s.logger.Warn("admin operation failed",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)

	s.mu.Lock()
	s.lastErr = opErr
	s.mu.Unlock()

	return opErr
}
