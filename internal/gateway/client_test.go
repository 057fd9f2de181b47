package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticToken is a test TokenSource that returns a fixed token.
type staticToken string

func (t staticToken) Token() (string, error) {
	return string(t), nil
}

// failingToken is a test TokenSource that always returns an error.
type failingToken struct{}

func (failingToken) Token() (string, error) {
	return "", errors.New("token error")
}

func TestDoAttachesBearerToken(t *testing.T) {
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), staticToken("tok-123"), nil)

	resp, err := c.Do(context.Background(), http.MethodGet, "/api/files/my-files", nil, DefaultTimeout)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer tok-123", gotAuth)
}

func TestDoGeneratesRequestID(t *testing.T) {
	var gotID string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = r.Header.Get("X-Request-ID")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), staticToken("tok"), nil)

	resp, err := c.Do(context.Background(), http.MethodGet, "/", nil, DefaultTimeout)
	require.NoError(t, err)
	resp.Body.Close()

	assert.NotEmpty(t, gotID)
}

func TestDoProceedsUnauthenticatedOnTokenFailure(t *testing.T) {
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), failingToken{}, nil)

	resp, err := c.Do(context.Background(), http.MethodGet, "/", nil, DefaultTimeout)
	require.NoError(t, err, "token failure must not abort the request")
	resp.Body.Close()

	assert.Empty(t, gotAuth)
}

func TestDoClassifies401(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail": "Invalid authentication token"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), staticToken("expired"), nil)

	_, err := c.Do(context.Background(), http.MethodGet, "/api/files/my-files", nil, DefaultTimeout)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Invalid authentication token", apiErr.Detail)
}

func TestDoClassifiesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream gone"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), staticToken("t"), nil)

	_, err := c.Do(context.Background(), http.MethodGet, "/", nil, DefaultTimeout)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrServerError))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "upstream gone", apiErr.Detail, "non-JSON bodies pass through raw")
}

func TestDoNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail": "File not found"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), staticToken("t"), nil)

	err := c.Delete(context.Background(), "/api/files/nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"download_url": "https://signed.example/abc"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), staticToken("t"), nil)

	var out struct {
		DownloadURL string `json:"download_url"`
	}
	require.NoError(t, c.GetJSON(context.Background(), "/api/files/1/download", &out))
	assert.Equal(t, "https://signed.example/abc", out.DownloadURL)
}

func TestGetJSONBodyArrivesAfterHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()

		time.Sleep(150 * time.Millisecond)
		_, _ = w.Write([]byte(`{"download_url": "https://signed.example/slow"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), staticToken("t"), nil)

	var out struct {
		DownloadURL string `json:"download_url"`
	}
	require.NoError(t, c.GetJSON(context.Background(), "/api/files/1/download", &out),
		"the deadline must stay live while the body streams")
	assert.Equal(t, "https://signed.example/slow", out.DownloadURL)
}

func TestSetTimeoutGovernsRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), staticToken("t"), nil)
	c.SetTimeout(50 * time.Millisecond)

	err := c.GetJSON(context.Background(), "/", &struct{}{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestSetUserAgent(t *testing.T) {
	var gotUA string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), staticToken("t"), nil)
	c.SetUserAgent("datagate/9.9")

	resp, err := c.Do(context.Background(), http.MethodGet, "/", nil, DefaultTimeout)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "datagate/9.9", gotUA)
}

func TestPutQuery(t *testing.T) {
	var gotQuery string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		assert.Equal(t, http.MethodPut, r.Method)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), staticToken("t"), nil)

	q := url.Values{"new_limit": {"1000"}}
	require.NoError(t, c.PutQuery(context.Background(), "/api/admin/users/u1/file-limit", q))
	assert.Equal(t, "new_limit=1000", gotQuery)
}

func TestDetail(t *testing.T) {
	apiErr := &APIError{StatusCode: 400, Detail: "File limit reached", Err: ErrBadRequest}
	assert.Equal(t, "File limit reached", Detail(apiErr, "fallback"))

	assert.Equal(t, "fallback", Detail(errors.New("dial tcp: refused"), "fallback"))
	assert.Equal(t, "fallback", Detail(&APIError{StatusCode: 500, Err: ErrServerError}, "fallback"))
}
