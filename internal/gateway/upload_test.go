package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadTimeout(t *testing.T) {
	const mb = 1024 * 1024

	tests := []struct {
		name string
		size int64
		want time.Duration
	}{
		{"zero size gets baseline", 0, 5 * time.Minute},
		{"one byte rounds up a step", 1, 6 * time.Minute},
		{"exactly one step", 50 * mb, 6 * time.Minute},
		{"100 MB", 100 * mb, 7 * time.Minute},
		{"500 MB", 500 * mb, 15 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UploadTimeout(tt.size))
		})
	}
}

func TestUploadSendsMultipartParts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))

		headers := r.MultipartForm.File["files"]
		require.Len(t, headers, 2)
		assert.Equal(t, "a.txt", headers[0].Filename)
		assert.Equal(t, "b.txt", headers[1].Filename)

		f, err := headers[0].Open()
		require.NoError(t, err)
		defer f.Close()

		buf := make([]byte, 16)
		n, _ := f.Read(buf)
		assert.Equal(t, "hello", string(buf[:n]))

		_, _ = w.Write([]byte(`{"successful_count": 2}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), staticToken("t"), nil)

	files := []UploadFile{
		{Field: "files", Name: "a.txt", Content: strings.NewReader("hello"), Size: 5},
		{Field: "files", Name: "b.txt", Content: strings.NewReader("world!"), Size: 6},
	}

	var out struct {
		SuccessfulCount int `json:"successful_count"`
	}
	require.NoError(t, c.Upload(context.Background(), "/api/files/upload-batch", files, nil, &out))
	assert.Equal(t, 2, out.SuccessfulCount)
}

func TestUploadReportsMonotonicProgress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), staticToken("t"), nil)

	var reported []int
	payload := strings.Repeat("x", 4096)
	files := []UploadFile{
		{Field: "file", Name: "big.bin", Content: strings.NewReader(payload), Size: int64(len(payload))},
	}

	require.NoError(t, c.Upload(context.Background(), "/api/files/upload", files, func(p int) {
		reported = append(reported, p)
	}, nil))

	require.NotEmpty(t, reported)
	assert.Equal(t, 100, reported[len(reported)-1])

	for i := 1; i < len(reported); i++ {
		assert.GreaterOrEqual(t, reported[i], reported[i-1], "progress must never decrease")
	}
}

func TestUploadZeroByteFileReachesTerminalProgress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), staticToken("t"), nil)

	var last int
	files := []UploadFile{
		{Field: "file", Name: "empty.txt", Content: strings.NewReader(""), Size: 0},
	}

	require.NoError(t, c.Upload(context.Background(), "/api/files/upload", files, func(p int) {
		last = p
	}, nil))

	assert.Equal(t, 100, last)
}

func TestUploadSurfacesServerDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail": "File limit reached. Maximum 500 files allowed."}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), staticToken("t"), nil)

	files := []UploadFile{
		{Field: "file", Name: "a.txt", Content: strings.NewReader("x"), Size: 1},
	}

	err := c.Upload(context.Background(), "/api/files/upload", files, nil, nil)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "File limit reached. Maximum 500 files allowed.", apiErr.Detail)
}
