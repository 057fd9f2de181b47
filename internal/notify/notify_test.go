package notify

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) Token() (string, error) { return string(s), nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
}

func TestListenerDispatchesMessages(t *testing.T) {
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")

		conn, err := websocket.Accept(w, r, nil)
		require.NoError(t, err)
		defer conn.Close(websocket.StatusNormalClosure, "")

		ctx := r.Context()
		require.NoError(t, wsjson.Write(ctx, conn, Message{Type: TypeFilesChanged, UID: "u1"}))
		require.NoError(t, wsjson.Write(ctx, conn, Message{Type: TypeProfileChanged, UID: "u1"}))

		// hold the connection open until the client goes away
		conn.Reader(ctx)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	var (
		mu   sync.Mutex
		msgs []Message
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener := NewListener(wsURL, staticToken("tok"), func(m Message) {
		mu.Lock()
		msgs = append(msgs, m)
		mu.Unlock()

		if m.Type == TypeProfileChanged {
			cancel()
		}
	}, testLogger())

	err := listener.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, msgs, 2)
	assert.Equal(t, TypeFilesChanged, msgs[0].Type)
	assert.Equal(t, "u1", msgs[0].UID)
	assert.Equal(t, TypeProfileChanged, msgs[1].Type)
	assert.Equal(t, "Bearer tok", gotAuth)
}

func TestListenerReconnectsAfterDrop(t *testing.T) {
	var (
		mu       sync.Mutex
		accepts  int
		delivers int
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		accepts++
		n := accepts
		mu.Unlock()

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}

		wsjson.Write(r.Context(), conn, Message{Type: TypeFilesChanged})

		if n == 1 {
			// drop the first connection immediately after one message
			conn.Close(websocket.StatusInternalError, "going away")
			return
		}

		conn.Reader(r.Context())
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener := NewListener(wsURL, nil, func(m Message) {
		mu.Lock()
		delivers++
		done := delivers == 2
		mu.Unlock()

		if done {
			cancel()
		}
	}, testLogger())

	// no real sleeping between reconnect attempts
	listener.sleepFunc = func(ctx context.Context, _ time.Duration) error {
		return ctx.Err()
	}

	err := listener.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, accepts, 2)
	assert.Equal(t, 2, delivers)
}

func TestListenerStopsWhenContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	listener := NewListener("ws://127.0.0.1:1/feed", nil, nil, testLogger())

	err := listener.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
