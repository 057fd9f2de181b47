// Package notify maintains a websocket subscription to the service's
// change feed. When the server announces that the user's files changed,
// the registered handler runs (typically a synchronizer refetch), so
// long-running commands see remote changes without polling.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/datadodo/datagate/internal/gateway"
)

const (
	initialBackoff        = 5 * time.Second
	backoffMultiplier     = 2
	maxConsecutiveBackoff = 6 // 5s * 2^6 = 320s cap
)

// Message is one change announcement from the feed.
type Message struct {
	Type string `json:"type"`
	UID  string `json:"uid,omitempty"`
	ID   string `json:"id,omitempty"`
}

// Change feed message types.
const (
	TypeFilesChanged   = "files_changed"
	TypeProfileChanged = "profile_changed"
)

// Listener dials the change feed and dispatches messages to a handler.
// It reconnects with exponential backoff on connection loss and stops
// only when its context is canceled.
type Listener struct {
	url     string
	tokens  gateway.TokenSource
	handler func(Message)
	logger  *slog.Logger

	// sleepFunc is swappable for tests.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewListener creates a change feed listener. url is the websocket
// endpoint (ws:// or wss://); handler runs on the listener's goroutine,
// so it must not block for long.
func NewListener(url string, tokens gateway.TokenSource, handler func(Message), logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}

	return &Listener{
		url:       url,
		tokens:    tokens,
		handler:   handler,
		logger:    logger,
		sleepFunc: sleepCtx,
	}
}

// Run connects and dispatches until ctx is canceled. Connection
// failures are retried with doubling backoff; a successfully read
// message resets the backoff.
func (l *Listener) Run(ctx context.Context) error {
	consecutiveFailures := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := l.listenOnce(ctx, func() { consecutiveFailures = 0 })
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if consecutiveFailures < maxConsecutiveBackoff {
			consecutiveFailures++
		}

		delay := initialBackoff
		for i := 1; i < consecutiveFailures; i++ {
			delay *= backoffMultiplier
		}

		l.logger.Warn("change feed disconnected",
			slog.String("error", errString(err)),
			slog.Duration("retry_in", delay),
		)

		if err := l.sleepFunc(ctx, delay); err != nil {
			return err
		}
	}
}

// listenOnce dials the feed and reads messages until the connection
// drops or ctx is canceled. onMessage is called after each successful
// read so the caller can reset its backoff.
func (l *Listener) listenOnce(ctx context.Context, onMessage func()) error {
	header := http.Header{}

	if l.tokens != nil {
		token, err := l.tokens.Token()
		if err != nil {
			return err
		}
		header.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := websocket.Dial(ctx, l.url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	l.logger.Debug("change feed connected", slog.String("url", l.url))

	for {
		var msg Message
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return err
		}

		onMessage()
		l.logger.Debug("change feed message", slog.String("type", msg.Type))

		if l.handler != nil {
			l.handler(msg)
		}
	}
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

func errString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
