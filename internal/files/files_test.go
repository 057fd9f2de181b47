package files

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datadodo/datagate/internal/gateway"
)

type staticToken string

func (s staticToken) Token() (string, error) { return string(s), nil }

type fakeRecorder struct {
	mu       sync.Mutex
	listings [][]Record
	uploads  []string
}

func (r *fakeRecorder) RecordListing(_ context.Context, items []Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listings = append(r.listings, items)
	return nil
}

func (r *fakeRecorder) RecordUpload(_ context.Context, name string, _ int64, outcome string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads = append(r.uploads, name+":"+outcome)
	return nil
}

func newTestStore(t *testing.T, handler http.Handler) (*Store, *fakeRecorder) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
	gw := gateway.NewClient(srv.URL, srv.Client(), staticToken("tok"), logger)
	rec := &fakeRecorder{}

	return NewStore(gw, rec, srv.Client(), logger), rec
}

const listingBody = `{
	"files": [
		{"id": "f1", "file_name": "report.pdf", "file_size": 1024, "content_type": "application/pdf", "uploaded_at": "2026-08-01T10:00:00Z"},
		{"id": "f2", "file_name": "photo.jpg", "file_size": 2048, "content_type": "image/jpeg", "uploaded_at": "2026-08-02T11:30:00Z"}
	],
	"total_count": 2,
	"user_file_limit": 500,
	"user_file_count": 2
}`

func TestFetchReplacesCollection(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/files/my-files", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(listingBody))
	})

	store, rec := newTestStore(t, mux)

	resp, err := store.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, resp.TotalCount)

	items := store.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "report.pdf", items[0].FileName)
	assert.Equal(t, int64(1024), items[0].FileSize)

	assert.Equal(t, 2, store.Count())
	assert.Equal(t, int64(3072), store.TotalSize())
	assert.Equal(t, 500, store.UserFileLimit())
	assert.Equal(t, 2, store.UserFileCount())
	assert.True(t, store.CanUploadMore())
	assert.Equal(t, 498, store.RemainingSlots())
	assert.False(t, store.Loading())
	assert.Nil(t, store.Err())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.listings, 1)
	assert.Len(t, rec.listings[0], 2)
}

func TestFetchAtFileLimit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/files/my-files", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"files": [
				{"id": "f1", "file_name": "report.pdf", "file_size": 1024, "content_type": "application/pdf", "uploaded_at": "2026-08-01T10:00:00Z"},
				{"id": "f2", "file_name": "photo.jpg", "file_size": 2048, "content_type": "image/jpeg", "uploaded_at": "2026-08-02T11:30:00Z"}
			],
			"total_count": 2,
			"user_file_limit": 2,
			"user_file_count": 2
		}`))
	})

	store, _ := newTestStore(t, mux)

	_, err := store.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, store.RemainingSlots())
	assert.False(t, store.CanUploadMore())
}

func TestFetchFailureKeepsCollection(t *testing.T) {
	var fail bool
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/files/my-files", func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"detail": "backend exploded"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(listingBody))
	})

	store, _ := newTestStore(t, mux)

	_, err := store.Fetch(context.Background())
	require.NoError(t, err)

	fail = true
	_, err = store.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, "backend exploded", err.Error())

	// previously fetched items survive a failed refresh
	assert.Equal(t, 2, store.Count())

	opErr := store.Err()
	require.NotNil(t, opErr)
	assert.Equal(t, "fetch", opErr.Op)
	assert.ErrorIs(t, opErr, gateway.ErrServerError)
	assert.False(t, store.Loading())
}

func TestDeleteRemovesByID(t *testing.T) {
	var deleted string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/files/my-files", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(listingBody))
	})
	mux.HandleFunc("DELETE /api/files/{id}", func(w http.ResponseWriter, r *http.Request) {
		deleted = r.PathValue("id")
		w.Write([]byte(`{"message": "deleted"}`))
	})

	store, _ := newTestStore(t, mux)

	_, err := store.Fetch(context.Background())
	require.NoError(t, err)

	require.NoError(t, store.Delete(context.Background(), "f1"))
	assert.Equal(t, "f1", deleted)
	assert.Equal(t, 1, store.Count())
	assert.Equal(t, 1, store.UserFileCount())
	assert.Equal(t, "f2", store.Items()[0].ID)
}

func TestDeleteUnknownIDIsLocalNoOp(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/files/my-files", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(listingBody))
	})
	mux.HandleFunc("DELETE /api/files/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message": "deleted"}`))
	})

	store, _ := newTestStore(t, mux)

	_, err := store.Fetch(context.Background())
	require.NoError(t, err)

	require.NoError(t, store.Delete(context.Background(), "nope"))
	assert.Equal(t, 2, store.Count())
	assert.Equal(t, 2, store.UserFileCount())
}

func TestDeleteFailureSetsError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /api/files/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"detail": "not your file"}`))
	})

	store, _ := newTestStore(t, mux)

	err := store.Delete(context.Background(), "f1")
	require.Error(t, err)
	assert.Equal(t, "not your file", err.Error())
	assert.ErrorIs(t, err, gateway.ErrForbidden)
}

func TestDownloadURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/files/f1/download", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"download_url": "https://signed.example.com/f1?sig=abc"}`))
	})

	store, _ := newTestStore(t, mux)

	url, err := store.DownloadURL(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, "https://signed.example.com/f1?sig=abc", url)
}

func TestDownloadCopiesContent(t *testing.T) {
	content := srvWithSignedDownload(t)

	var buf bytes.Buffer
	n, err := content.store.Download(context.Background(), "f1", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len("file contents here")), n)
	assert.Equal(t, "file contents here", buf.String())

	// the signed URL request must not carry the bearer token
	assert.Empty(t, content.signedAuth)
}

type downloadFixture struct {
	store      *Store
	signedAuth string
}

func srvWithSignedDownload(t *testing.T) *downloadFixture {
	t.Helper()

	fx := &downloadFixture{}

	signed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fx.signedAuth = r.Header.Get("Authorization")
		w.Write([]byte("file contents here"))
	}))
	t.Cleanup(signed.Close)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/files/f1/download", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"download_url": "` + signed.URL + `/f1"}`))
	})

	store, _ := newTestStore(t, mux)
	fx.store = store

	return fx
}

func TestDownloadURLFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/files/f1/download", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail": "File not found"}`))
	})

	store, _ := newTestStore(t, mux)

	_, err := store.DownloadURL(context.Background(), "f1")
	require.Error(t, err)
	assert.Equal(t, "File not found", err.Error())
	assert.ErrorIs(t, err, gateway.ErrNotFound)
}

func TestClearErrorAndProgress(t *testing.T) {
	store, _ := newTestStore(t, http.NewServeMux())

	store.fail("fetch", msgFetchFailed, assert.AnError)
	require.NotNil(t, store.Err())
	store.ClearError()
	assert.Nil(t, store.Err())

	store.setProgress("a.txt", 40)
	require.Len(t, store.Progress(), 1)
	store.ClearProgress()
	assert.Empty(t, store.Progress())
}
