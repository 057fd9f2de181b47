package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"sync"
	"time"
)

// Upload timeout parameters: a baseline of five minutes plus one minute
// per started 50 MiB of payload. Applied per request, so a batch upload
// uses the summed size of all included files.
const (
	baseUploadMinutes = 5
	uploadSizeStep    = 50 * 1024 * 1024
)

// UploadTimeout returns the transfer timeout for a payload of totalSize
// bytes.
func UploadTimeout(totalSize int64) time.Duration {
	minutes := baseUploadMinutes + int((totalSize+uploadSizeStep-1)/uploadSizeStep)
	if minutes < baseUploadMinutes {
		minutes = baseUploadMinutes
	}

	return time.Duration(minutes) * time.Minute
}

// UploadFile is one part of a multipart upload request.
type UploadFile struct {
	Field   string // form field name ("file" for single, "files" for batch)
	Name    string
	Content io.Reader
	Size    int64
}

// Upload streams a multipart POST to the given path. progress, when
// non-nil, receives the transfer percentage (0..100, non-decreasing)
// computed from content bytes written against the summed size of all
// files. The response body is decoded into out when out is non-nil.
//
// Unlike Do, the request body is streamed through a pipe, so the
// payload is never buffered in memory as a whole.
func (c *Client) Upload(ctx context.Context, path string, files []UploadFile, progress func(percent int), out any) error {
	var total int64
	for _, f := range files {
		total += f.Size
	}

	ctx, cancel := context.WithTimeout(ctx, UploadTimeout(total))
	defer cancel()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	counter := &progressCounter{total: total, notify: progress}

	go func() {
		pw.CloseWithError(writeParts(mw, files, counter))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, pr)
	if err != nil {
		return fmt.Errorf("gateway: creating upload request: %w", err)
	}

	c.setHeaders(req)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	c.logger.Debug("starting upload",
		slog.String("path", path),
		slog.Int("files", len(files)),
		slog.Int64("total_size", total),
		slog.Duration("timeout", UploadTimeout(total)),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("gateway: upload %s: %w", path, ctx.Err())
		}

		return fmt.Errorf("gateway: upload %s: %w", path, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return c.errorFromResponse(http.MethodPost, path, resp)
	}

	defer resp.Body.Close()

	counter.finish()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain to reuse connection
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gateway: decoding upload response: %w", err)
	}

	return nil
}

// writeParts writes each file as a form part and closes the writer so
// the terminating boundary is emitted.
func writeParts(mw *multipart.Writer, files []UploadFile, counter *progressCounter) error {
	for _, f := range files {
		part, err := mw.CreateFormFile(f.Field, f.Name)
		if err != nil {
			return fmt.Errorf("gateway: creating form part for %s: %w", f.Name, err)
		}

		if _, err := io.Copy(part, io.TeeReader(f.Content, counter)); err != nil {
			return fmt.Errorf("gateway: writing %s: %w", f.Name, err)
		}
	}

	return mw.Close()
}

// progressCounter accumulates content bytes written and reports the
// resulting percentage. The count only grows, so reported percentages
// are non-decreasing within one transfer. The mutex covers the handoff
// between the part-writing goroutine and the caller's finish().
type progressCounter struct {
	mu      sync.Mutex
	total   int64
	written int64
	last    int
	notify  func(percent int)
}

func (p *progressCounter) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.written += int64(len(b))
	p.report()

	return len(b), nil
}

// finish reports 100% once the server has acknowledged the transfer.
// Covers zero-byte payloads, where no Write ever fires.
func (p *progressCounter) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.notify != nil && p.last != 100 {
		p.last = 100
		p.notify(100)
	}
}

func (p *progressCounter) report() {
	if p.notify == nil || p.total <= 0 {
		return
	}

	percent := int(p.written * 100 / p.total)
	if percent > 100 {
		percent = 100
	}

	if percent != p.last {
		p.last = percent
		p.notify(percent)
	}
}
