package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// DefaultTimeout bounds simple (non-upload) requests.
const DefaultTimeout = 30 * time.Second

const defaultUserAgent = "datagate/0.1"

// requestIDHeader carries a client-generated ID so client and server
// logs can be correlated per request.
const requestIDHeader = "X-Request-ID"

// TokenSource provides bearer tokens for outbound requests. Defined at
// the consumer per Go convention "accept interfaces, return structs".
// The identity package provides the real implementation.
type TokenSource interface {
	Token() (string, error)
}

// Client is an HTTP client for the DataGate API. It attaches a fresh
// bearer token to every request, applies per-request timeouts, and
// classifies failures into sentinel errors.
//
// A token acquisition failure does not abort the request: the call
// proceeds unauthenticated and the server's 401 is surfaced through the
// normal classification path. Only the caller knows whether prompting
// for a new login is appropriate, so the client never retries or
// recovers silently.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     *slog.Logger
	timeout    time.Duration
	userAgent  string
}

// NewClient creates a DataGate API client. tokens may be nil for a
// client that only issues unauthenticated requests.
func NewClient(baseURL string, httpClient *http.Client, tokens TokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		tokens:     tokens,
		logger:     logger,
		timeout:    DefaultTimeout,
		userAgent:  defaultUserAgent,
	}
}

// SetTimeout sets the per-request deadline for simple (non-upload)
// calls. Non-positive values are ignored.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// SetUserAgent sets the User-Agent header sent with every request.
// Empty values are ignored.
func (c *Client) SetUserAgent(ua string) {
	if ua != "" {
		c.userAgent = ua
	}
}

// Do executes an HTTP request against the API. The path is appended to
// the client's base URL. timeout bounds the whole exchange including
// the body read: the deadline stays live until the caller closes the
// response body. For non-nil bodies, Content-Type is set to
// application/json. The caller is responsible for closing the response
// body on success.
func (c *Client) Do(ctx context.Context, method, path string, body io.Reader, timeout time.Duration) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("gateway: creating request: %w", err)
	}

	c.setHeaders(req)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		ctxErr := ctx.Err()
		cancel()

		if ctxErr != nil {
			return nil, fmt.Errorf("gateway: %s %s: %w", method, path, ctxErr)
		}

		return nil, fmt.Errorf("gateway: %s %s: %w", method, path, err)
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		c.logger.Debug("request succeeded",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)

		resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}

		return resp, nil
	}

	respErr := c.errorFromResponse(method, path, resp)
	cancel()

	return nil, respErr
}

// cancelBody ties a request's timeout context to its response body:
// the deadline stays live while the caller streams the body and is
// released on Close.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()

	return err
}

// GetJSON issues a GET and decodes the JSON response body into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	resp, err := c.Do(ctx, http.MethodGet, path, nil, c.timeout)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gateway: decoding %s response: %w", path, err)
	}

	return nil
}

// PostJSON issues a POST with a JSON body and decodes the response into
// out when out is non-nil.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("gateway: encoding %s request: %w", path, err)
	}

	resp, err := c.Do(ctx, http.MethodPost, path, bytes.NewReader(payload), c.timeout)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain to reuse connection
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gateway: decoding %s response: %w", path, err)
	}

	return nil
}

// PutJSON issues a PUT with a JSON body, discarding the response body.
func (c *Client) PutJSON(ctx context.Context, path string, in any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("gateway: encoding %s request: %w", path, err)
	}

	resp, err := c.Do(ctx, http.MethodPut, path, bytes.NewReader(payload), c.timeout)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain to reuse connection

	return nil
}

// PutQuery issues a PUT with an empty body and the given query
// parameters. The admin endpoints accept their updates this way.
func (c *Client) PutQuery(ctx context.Context, path string, query url.Values) error {
	resp, err := c.Do(ctx, http.MethodPut, path+"?"+query.Encode(), nil, c.timeout)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain to reuse connection

	return nil
}

// Delete issues a DELETE, discarding the response body.
func (c *Client) Delete(ctx context.Context, path string) error {
	resp, err := c.Do(ctx, http.MethodDelete, path, nil, c.timeout)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain to reuse connection

	return nil
}

// setHeaders attaches the standard headers and, when a token source is
// configured, a fresh bearer token. Token retrieval failure is logged
// and the request proceeds without a credential; the server rejects it
// with a 401 which flows through normal error classification.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(requestIDHeader, uuid.NewString())

	if c.tokens == nil {
		return
	}

	tok, err := c.tokens.Token()
	if err != nil {
		c.logger.Warn("token acquisition failed, dispatching unauthenticated",
			slog.String("path", req.URL.Path),
			slog.String("error", err.Error()),
		)

		return
	}

	req.Header.Set("Authorization", "Bearer "+tok)
}

// errorFromResponse reads and closes an error response body and wraps it
// in an APIError with the classified sentinel.
func (c *Client) errorFromResponse(method, path string, resp *http.Response) error {
	body, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()

	if readErr != nil {
		body = []byte("(failed to read response body)")
	}

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get(requestIDHeader),
		Detail:     parseDetail(body),
		Err:        classifyStatus(resp.StatusCode),
	}

	c.logger.Debug("request failed",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
	)

	return apiErr
}
