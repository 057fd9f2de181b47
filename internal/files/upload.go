package files

import (
	"context"
	"io"
	"log/slog"

	"golang.org/x/text/unicode/norm"

	"github.com/datadodo/datagate/internal/gateway"
)

// Payload is one file to upload: the name it will carry remotely and a
// reader over its content. Size must be the exact content length; it
// drives both progress percentages and the adaptive request timeout.
type Payload struct {
	Name    string
	Content io.Reader
	Size    int64
}

// UploadResult is the server's acknowledgement of a single stored file.
type UploadResult struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
	Message  string `json:"message,omitempty"`
}

// FailedUpload names one file the server rejected within a batch.
type FailedUpload struct {
	FileName string `json:"file_name"`
	Detail   string `json:"error"`
}

// BatchResult is the per-file outcome breakdown of a batch upload.
type BatchResult struct {
	SuccessfulUploads []UploadResult `json:"successful_uploads"`
	FailedUploads     []FailedUpload `json:"failed_uploads"`
	TotalFiles        int            `json:"total_files"`
	SuccessfulCount   int            `json:"successful_count"`
	FailedCount       int            `json:"failed_count"`
}

// Upload stores a single file remotely. Progress for the transfer is
// tracked under the file's name and the entry is removed once the
// transfer reaches any terminal state, success or failure. On success
// the collection is reconciled by a full refetch rather than patched
// locally: the server may rename on collision or adjust quotas, so the
// upload response alone is not authoritative.
func (s *Store) Upload(ctx context.Context, p Payload) (*UploadResult, error) {
	name := norm.NFC.String(p.Name)

	s.begin()
	defer s.end()
	defer s.dropProgress(name)

	s.setProgress(name, 0)

	var result UploadResult
	part := gateway.UploadFile{Field: "file", Name: name, Content: p.Content, Size: p.Size}
	err := s.gw.Upload(ctx, "/api/files/upload", []gateway.UploadFile{part}, func(pct int) {
		s.setProgress(name, pct)
	}, &result)
	if err != nil {
		return nil, s.fail("upload", msgUploadFailed, err)
	}

	s.recordUpload(ctx, name, p.Size, "uploaded")

	if _, err := s.Fetch(ctx); err != nil {
		return &result, err
	}

	return &result, nil
}

// UploadBatch stores several files in one multipart request. All
// contents share a single connection, so the timeout is derived from
// the summed size and the one transfer percentage fans out to every
// file's progress entry. Per-file failures are reported in the result,
// not as an error; the call errors only when the request itself fails.
func (s *Store) UploadBatch(ctx context.Context, payloads []Payload) (*BatchResult, error) {
	parts := make([]gateway.UploadFile, len(payloads))
	names := make([]string, len(payloads))

	for i, p := range payloads {
		names[i] = norm.NFC.String(p.Name)
		parts[i] = gateway.UploadFile{Field: "files", Name: names[i], Content: p.Content, Size: p.Size}
	}

	s.begin()
	defer s.end()
	defer func() {
		for _, name := range names {
			s.dropProgress(name)
		}
	}()

	for _, name := range names {
		s.setProgress(name, 0)
	}

	var result BatchResult
	err := s.gw.Upload(ctx, "/api/files/upload-batch", parts, func(pct int) {
		s.mu.Lock()
		for _, name := range names {
			s.progress[name] = pct
		}
		s.mu.Unlock()
	}, &result)
	if err != nil {
		return nil, s.fail("upload-batch", msgBatchUploadFailed, err)
	}

	for _, ok := range result.SuccessfulUploads {
		s.recordUpload(ctx, ok.FileName, ok.FileSize, "uploaded")
	}
	for _, bad := range result.FailedUploads {
		s.recordUpload(ctx, bad.FileName, 0, "failed")
	}

	if _, err := s.Fetch(ctx); err != nil {
		return &result, err
	}

	return &result, nil
}

func (s *Store) setProgress(name string, pct int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.progress[name] = pct
}

func (s *Store) dropProgress(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.progress, name)
}

func (s *Store) recordUpload(ctx context.Context, name string, size int64, outcome string) {
	if s.recorder == nil {
		return
	}

	if err := s.recorder.RecordUpload(ctx, name, size, outcome); err != nil {
		s.logger.Warn("recording upload failed", slog.String("error", err.Error()))
	}
}
