// Package files keeps a local collection of the user's file records
// consistent with the remote service: authoritative refetch after
// uploads, optimistic removal on delete, and per-file progress tracking
// for transfers in flight.
package files

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/datadodo/datagate/internal/gateway"
)

// Record is the client's cached copy of a remote file record. The
// remote store owns it; the local copy is replaced wholesale on every
// successful fetch.
type Record struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	FileSize    int64     `json:"file_size"`
	ContentType string    `json:"content_type,omitempty"`
	OwnerUID    string    `json:"owner_uid,omitempty"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// ListResponse is the my-files endpoint payload.
type ListResponse struct {
	Files         []Record `json:"files"`
	TotalCount    int      `json:"total_count"`
	UserFileLimit int      `json:"user_file_limit"`
	UserFileCount int      `json:"user_file_count"`
}

// OpError is a synchronizer failure: the user-facing message (server
// detail when present, static per-operation fallback otherwise) plus
// the underlying error for classification.
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

// Static fallback messages, used when the server supplies no detail.
const (
	msgFetchFailed       = "Failed to fetch files"
	msgUploadFailed      = "Failed to upload file"
	msgBatchUploadFailed = "Failed to upload files"
	msgDeleteFailed      = "Failed to delete file"
	msgDownloadURLFailed = "Failed to get download URL"
)

// Recorder receives successful synchronizer outcomes for local
// persistence (offline listing, upload history). Implementations must
// tolerate being called from multiple goroutines.
type Recorder interface {
	RecordListing(ctx context.Context, items []Record) error
	RecordUpload(ctx context.Context, name string, size int64, outcome string) error
}

// Store is the Files resource synchronizer. The collection it holds is
// a cache of the remote collection; every mutating call either patches
// it optimistically (delete) or replaces it through refetch (upload).
type Store struct {
	gw       *gateway.Client
	recorder Recorder // optional
	logger   *slog.Logger

	// downloads bypass the gateway: signed URLs are pre-authenticated
	// and live on a different host.
	httpClient *http.Client

	mu            sync.Mutex
	items         []Record
	loading       bool
	lastErr       *OpError
	userFileLimit int
	userFileCount int
	progress      map[string]int
}

// NewStore creates a Files synchronizer. recorder may be nil.
func NewStore(gw *gateway.Client, recorder Recorder, httpClient *http.Client, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Store{
		gw:         gw,
		recorder:   recorder,
		httpClient: httpClient,
		logger:     logger,
		progress:   make(map[string]int),
	}
}

// Fetch replaces the local collection with the remote one and returns
// the raw payload. Failures are stored as the synchronizer error and
// returned; nothing is swallowed.
func (s *Store) Fetch(ctx context.Context) (*ListResponse, error) {
	s.begin()
	defer s.end()

	var resp ListResponse
	if err := s.gw.GetJSON(ctx, "/api/files/my-files", &resp); err != nil {
		return nil, s.fail("fetch", msgFetchFailed, err)
	}

	s.mu.Lock()
	s.items = resp.Files
	s.userFileLimit = resp.UserFileLimit
	s.userFileCount = resp.UserFileCount
	s.mu.Unlock()

	s.record(ctx, resp.Files)
	s.logger.Debug("fetched file list",
		slog.Int("count", len(resp.Files)),
		slog.Int("limit", resp.UserFileLimit),
	)

	return &resp, nil
}

// Delete removes the file remotely, then patches the local collection
// by identifier. This is the one optimistic local patch: the deletion
// outcome is fully known, so no refetch is issued. Deleting an
// identifier that is not cached locally is a local no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.begin()
	defer s.end()

	if err := s.gw.Delete(ctx, "/api/files/"+id); err != nil {
		return s.fail("delete", msgDeleteFailed, err)
	}

	s.mu.Lock()
	for i, item := range s.items {
		if item.ID == id {
			s.items = append(s.items[:i:i], s.items[i+1:]...)

			if s.userFileCount > 0 {
				s.userFileCount--
			}

			break
		}
	}
	s.mu.Unlock()

	s.logger.Debug("deleted file", slog.String("id", id))

	return nil
}

// DownloadURL resolves the short-lived signed URL for a file.
func (s *Store) DownloadURL(ctx context.Context, id string) (string, error) {
	var resp struct {
		DownloadURL string `json:"download_url"`
	}

	if err := s.gw.GetJSON(ctx, "/api/files/"+id+"/download", &resp); err != nil {
		return "", s.fail("download-url", msgDownloadURLFailed, err)
	}

	return resp.DownloadURL, nil
}

// Download resolves the signed URL for id and copies the file content
// to dst. Pass-through convenience: no local collection state changes.
func (s *Store) Download(ctx context.Context, id string, dst io.Writer) (int64, error) {
	signedURL, err := s.DownloadURL(ctx, id)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signedURL, nil)
	if err != nil {
		return 0, fmt.Errorf("files: creating download request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("files: downloading %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("files: download of %s failed with status %d", id, resp.StatusCode)
	}

	n, err := io.Copy(dst, resp.Body)
	if err != nil {
		return n, fmt.Errorf("files: writing download: %w", err)
	}

	return n, nil
}

// Derived aggregates. Pure functions of current state, recomputed per
// call, never stored.

// Items returns a copy of the cached collection in response order.
func (s *Store) Items() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, len(s.items))
	copy(out, s.items)

	return out
}

// Count returns the number of cached records.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.items)
}

// TotalSize returns the summed size of all cached records.
func (s *Store) TotalSize() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, item := range s.items {
		total += item.FileSize
	}

	return total
}

// CanUploadMore reports whether the user is below their file quota.
func (s *Store) CanUploadMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.userFileCount < s.userFileLimit
}

// RemainingSlots returns how many more files the quota allows.
func (s *Store) RemainingSlots() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.userFileLimit - s.userFileCount
}

// UserFileLimit returns the quota reported by the last fetch.
func (s *Store) UserFileLimit() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.userFileLimit
}

// UserFileCount returns the server-side file count from the last fetch,
// adjusted by local optimistic deletes.
func (s *Store) UserFileCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.userFileCount
}

// Loading reports whether an operation is in flight.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loading
}

// Err returns the last synchronizer error, or nil.
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

// Progress returns a snapshot of per-file transfer percentages keyed by
// filename. Entries exist only while a transfer is in flight.
func (s *Store) Progress() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]int, len(s.progress))
	for k, v := range s.progress {
		out[k] = v
	}

	return out
}

// ClearProgress drops all progress entries.
func (s *Store) ClearProgress() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.progress = make(map[string]int)
}

// begin marks an operation started: loading set, error cleared.
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

// fail stores and returns the synchronizer error for an operation,
// preferring the server-supplied detail over the static fallback.
func (s *Store) fail(op, fallback string, err error) *OpError {
	opErr := &OpError{Op: op, Message: gateway.Detail(err, fallback), Err: err}

	s.logger.Warn("operation failed",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)

	s.mu.Lock()
	s.lastErr = opErr
	s.mu.Unlock()

	return opErr
}

// record hands the fetched listing to the recorder, if any.
func (s *Store) record(ctx context.Context, items []Record) {
	if s.recorder == nil {
		return
	}

	if err := s.recorder.RecordListing(ctx, items); err != nil {
		s.logger.Warn("recording listing failed", slog.String("error", err.Error()))
	}
}
