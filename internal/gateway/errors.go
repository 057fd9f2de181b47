// Package gateway provides the authenticated HTTP transport for the
// DataGate API with uniform error classification. Every resource call
// in the client goes through a gateway.Client.
package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, gateway.ErrUnauthorized) to check.
var (
	ErrBadRequest   = errors.New("gateway: bad request")
	ErrUnauthorized = errors.New("gateway: unauthorized")
	ErrForbidden    = errors.New("gateway: forbidden")
	ErrNotFound     = errors.New("gateway: not found")
	ErrConflict     = errors.New("gateway: conflict")
	ErrThrottled    = errors.New("gateway: throttled")
	ErrServerError  = errors.New("gateway: server error")
)

// APIError wraps a sentinel error with the HTTP status code, the request
// ID, and the machine-readable detail field from the API error body.
type APIError struct {
	StatusCode int
	RequestID  string
	Detail     string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("gateway: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Detail)
	}

	return fmt.Sprintf("gateway: HTTP %d: %s", e.StatusCode, e.Detail)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// errorBody is the JSON shape of DataGate API error responses.
type errorBody struct {
	Detail string `json:"detail"`
}

// parseDetail extracts the detail field from an error response body.
// Falls back to the raw body when it is not the expected JSON shape.
func parseDetail(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Detail != "" {
		return eb.Detail
	}

	return string(body)
}

// Detail returns the server-supplied detail message from err when present,
// otherwise the given fallback. Synchronizers use this to prefer the
// machine-readable API message over their static per-operation text.
func Detail(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}

	return fallback
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}
