// Package watcher observes a local drop directory and uploads files
// placed into it. Files are uploaded once they settle: no write events
// for a quiet period, so partially copied files are never sent.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/datadodo/datagate/internal/files"
)

const (
	defaultSettleDelay = 2 * time.Second
	pollInterval       = 500 * time.Millisecond

	errInitBackoff  = time.Second
	errBackoffMult  = 2
	errMaxBackoff   = 30 * time.Second
	maxUploadErrors = 3
)

// Uploader stores a single file remotely. *files.Store satisfies it.
type Uploader interface {
	Upload(ctx context.Context, p files.Payload) (*files.UploadResult, error)
}

// Watcher uploads files dropped into a directory. Subdirectories are
// not descended into; the drop directory is flat by design.
type Watcher struct {
	dir      string
	uploader Uploader
	logger   *slog.Logger

	// SettleDelay is how long a file must stay quiet before upload.
	SettleDelay time.Duration

	// pending maps absolute paths to the time of their last event.
	pending map[string]time.Time

	// failures counts consecutive upload errors per path, so a file the
	// server keeps rejecting is eventually abandoned.
	failures map[string]int
}

// New creates a watcher over dir uploading through uploader.
func New(dir string, uploader Uploader, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		dir:         dir,
		uploader:    uploader,
		logger:      logger,
		SettleDelay: defaultSettleDelay,
		pending:     make(map[string]time.Time),
		failures:    make(map[string]int),
	}
}

// Run watches the directory until ctx is canceled. Files already
// present at startup are queued as if just written.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: creating filesystem watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watcher: watching %s: %w", w.dir, err)
	}

	if err := w.queueExisting(); err != nil {
		return err
	}

	w.logger.Info("watching directory", slog.String("dir", w.dir))

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	errBackoff := errInitBackoff

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}

			w.handleEvent(ev)
			errBackoff = errInitBackoff

		case werr, ok := <-fsw.Errors:
			if !ok {
				return nil
			}

			w.logger.Warn("filesystem watcher error",
				slog.String("error", werr.Error()),
				slog.Duration("backoff", errBackoff),
			)

			if err := sleepCtx(ctx, errBackoff); err != nil {
				return err
			}

			errBackoff *= errBackoffMult
			if errBackoff > errMaxBackoff {
				errBackoff = errMaxBackoff
			}

		case <-ticker.C:
			w.uploadSettled(ctx)
		}
	}
}

// queueExisting marks files already in the directory as pending.
func (w *Watcher) queueExisting() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("watcher: listing %s: %w", w.dir, err)
	}

	now := time.Now()

	for _, entry := range entries {
		if entry.IsDir() || skipName(entry.Name()) {
			continue
		}

		w.pending[filepath.Join(w.dir, entry.Name())] = now
	}

	return nil
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	name := filepath.Base(ev.Name)
	if skipName(name) {
		return
	}

	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		w.pending[ev.Name] = time.Now()

	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		delete(w.pending, ev.Name)
		delete(w.failures, ev.Name)
	}
}

// uploadSettled uploads every pending file whose last event is older
// than the settle delay.
func (w *Watcher) uploadSettled(ctx context.Context) {
	cutoff := time.Now().Add(-w.SettleDelay)

	for path, last := range w.pending {
		if last.After(cutoff) {
			continue
		}

		delete(w.pending, path)
		w.uploadOne(ctx, path)
	}
}

func (w *Watcher) uploadOne(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	f, err := os.Open(path)
	if err != nil {
		w.logger.Warn("opening dropped file failed",
			slog.String("path", path), slog.String("error", err.Error()))

		return
	}
	defer f.Close()

	name := filepath.Base(path)

	_, err = w.uploader.Upload(ctx, files.Payload{
		Name:    name,
		Content: f,
		Size:    info.Size(),
	})
	if err != nil {
		w.failures[path]++

		if w.failures[path] >= maxUploadErrors {
			w.logger.Error("giving up on file after repeated failures",
				slog.String("path", path), slog.Int("attempts", w.failures[path]))
			delete(w.failures, path)

			return
		}

		w.logger.Warn("upload failed, will retry",
			slog.String("path", path), slog.String("error", err.Error()))

		// retry after another settle period
		w.pending[path] = time.Now()

		return
	}

	delete(w.failures, path)
	w.logger.Info("uploaded dropped file",
		slog.String("name", name), slog.Int64("size", info.Size()))
}

// skipName reports whether a filename should never be uploaded: hidden
// files and common partial-copy suffixes.
func skipName(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}

	for _, suffix := range []string{".part", ".partial", ".crdownload", ".tmp", ".swp"} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}

	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
