package watcher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datadodo/datagate/internal/files"
)

type fakeUploader struct {
	mu       sync.Mutex
	uploads  []string
	contents map[string]string
	failing  map[string]error
	done     chan string
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{
		contents: make(map[string]string),
		failing:  make(map[string]error),
		done:     make(chan string, 16),
	}
}

func (f *fakeUploader) Upload(_ context.Context, p files.Payload) (*files.UploadResult, error) {
	f.mu.Lock()
	err := f.failing[p.Name]
	f.mu.Unlock()

	if err != nil {
		f.done <- p.Name
		return nil, err
	}

	data, readErr := io.ReadAll(p.Content)
	if readErr != nil {
		return nil, readErr
	}

	f.mu.Lock()
	f.uploads = append(f.uploads, p.Name)
	f.contents[p.Name] = string(data)
	f.mu.Unlock()

	f.done <- p.Name

	return &files.UploadResult{FileID: "id-" + p.Name, FileName: p.Name}, nil
}

func (f *fakeUploader) uploaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, len(f.uploads))
	copy(out, f.uploads)

	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
}

func startWatcher(t *testing.T, dir string, up Uploader) context.CancelFunc {
	t.Helper()

	w := New(dir, up, testLogger())
	w.SettleDelay = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		err := w.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("watcher stopped: %v", err)
		}
	}()
	t.Cleanup(cancel)

	// give the watcher a moment to register
	time.Sleep(100 * time.Millisecond)

	return cancel
}

func waitUpload(t *testing.T, up *fakeUploader, want string) {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case name := <-up.done:
			if name == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for upload of %s", want)
		}
	}
}

func TestUploadsDroppedFile(t *testing.T) {
	dir := t.TempDir()
	up := newFakeUploader()
	startWatcher(t, dir, up)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.txt"), []byte("payload"), 0o644))

	waitUpload(t, up, "report.txt")

	assert.Equal(t, []string{"report.txt"}, up.uploaded())
	assert.Equal(t, "payload", up.contents["report.txt"])
}

func TestUploadsPreexistingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "already.txt"), []byte("here"), 0o644))

	up := newFakeUploader()
	startWatcher(t, dir, up)

	waitUpload(t, up, "already.txt")
	assert.Equal(t, []string{"already.txt"}, up.uploaded())
}

func TestSkipsHiddenAndPartialFiles(t *testing.T) {
	dir := t.TempDir()
	up := newFakeUploader()
	startWatcher(t, dir, up)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "movie.part"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ok.txt"), []byte("x"), 0o644))

	waitUpload(t, up, "ok.txt")
	assert.Equal(t, []string{"ok.txt"}, up.uploaded())
}

func TestRemovedFileNotUploaded(t *testing.T) {
	dir := t.TempDir()
	up := newFakeUploader()

	w := New(dir, up, testLogger())
	w.SettleDelay = time.Hour // nothing settles during the test

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "fleeting.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.Remove(path))
	time.Sleep(200 * time.Millisecond)

	assert.Empty(t, up.uploaded())
}

func TestRetriesFailedUpload(t *testing.T) {
	dir := t.TempDir()
	up := newFakeUploader()
	up.failing["flaky.txt"] = errors.New("server busy")

	startWatcher(t, dir, up)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "flaky.txt"), []byte("x"), 0o644))

	// first attempt fails
	waitUpload(t, up, "flaky.txt")

	// let it succeed on retry
	up.mu.Lock()
	delete(up.failing, "flaky.txt")
	up.mu.Unlock()

	waitUpload(t, up, "flaky.txt")
	assert.Equal(t, []string{"flaky.txt"}, up.uploaded())
}

func TestSkipNameTable(t *testing.T) {
	cases := []struct {
		name string
		skip bool
	}{
		{"report.pdf", false},
		{".DS_Store", true},
		{".hidden", true},
		{"download.part", true},
		{"download.partial", true},
		{"page.crdownload", true},
		{"scratch.tmp", true},
		{"edit.swp", true},
		{"normal.txt", false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.skip, skipName(tc.name), tc.name)
	}
}
