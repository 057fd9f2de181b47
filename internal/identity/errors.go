// Package identity implements the external identity provider contract:
// password sign-up/sign-in against an identity-toolkit style REST
// endpoint, a browser OAuth2 flow, transparent token refresh, and
// auth-state change notification.
package identity

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotSignedIn is returned when an operation needs a current identity
// and none exists.
var ErrNotSignedIn = errors.New("identity: not signed in")

// Code classifies provider failures. The session layer maps codes to
// its fixed set of user-facing messages.
type Code string

const (
	CodeInvalidEmail      Code = "invalid-email"
	CodeWeakPassword      Code = "weak-password"
	CodeWrongPassword     Code = "wrong-password"
	CodeUserNotFound      Code = "user-not-found"
	CodeEmailInUse        Code = "email-in-use"
	CodeInvalidCredential Code = "invalid-credential"
	CodeRateLimited       Code = "rate-limited"
	CodePopupClosed       Code = "popup-closed"
	CodeNetwork           Code = "network"
	CodeUnknown           Code = "unknown"
)

// AuthError carries a classification code and the provider's raw
// message for logging. The raw message is never shown to users.
type AuthError struct {
	Code    Code
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("identity: %s: %s", e.Code, e.Message)
}

// CodeOf extracts the classification code from err, or CodeUnknown.
func CodeOf(err error) Code {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Code
	}

	return CodeUnknown
}

// mapProviderMessage classifies the provider's machine message (e.g.
// "EMAIL_EXISTS", "WEAK_PASSWORD : Password should be at least 6
// characters"). Prefix matching tolerates the provider's appended
// detail text.
func mapProviderMessage(msg string) Code {
	switch {
	case strings.HasPrefix(msg, "EMAIL_EXISTS"):
		return CodeEmailInUse
	case strings.HasPrefix(msg, "EMAIL_NOT_FOUND"), strings.HasPrefix(msg, "USER_NOT_FOUND"):
		return CodeUserNotFound
	case strings.HasPrefix(msg, "INVALID_PASSWORD"), strings.HasPrefix(msg, "WRONG_PASSWORD"):
		return CodeWrongPassword
	case strings.HasPrefix(msg, "INVALID_LOGIN_CREDENTIALS"), strings.HasPrefix(msg, "INVALID_CREDENTIAL"):
		return CodeInvalidCredential
	case strings.HasPrefix(msg, "INVALID_EMAIL"):
		return CodeInvalidEmail
	case strings.HasPrefix(msg, "WEAK_PASSWORD"):
		return CodeWeakPassword
	case strings.HasPrefix(msg, "TOO_MANY_ATTEMPTS_TRY_LATER"):
		return CodeRateLimited
	default:
		return CodeUnknown
	}
}
