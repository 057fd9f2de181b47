package session

import "github.com/datadodo/datagate/internal/identity"

// Error is the structured session error: a classification kind from the
// provider taxonomy plus the fixed user-facing message mapped from it.
// The provider's raw text never reaches users.
type Error struct {
	Kind    identity.Code
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Fixed user-facing messages per provider error code.
const (
	msgEmailInUse        = "This email is already registered. Please sign in instead."
	msgUserNotFound      = "No account found with this email. Please check your email or sign up."
	msgWrongPassword     = "Incorrect password. Please try again."
	msgInvalidCredential = "Invalid email or password. Please try again."
	msgInvalidEmail      = "Invalid email address. Please enter a valid email."
	msgWeakPassword      = "Password should be at least 6 characters long."
	msgRateLimited       = "Too many failed attempts. Please try again later."
	msgNetwork           = "Network error. Please check your internet connection and try again."
	msgPopupClosed       = "Sign-in was cancelled before completing."
	msgProfileFetch      = "Failed to fetch user profile"
	msgUnknown           = "An error occurred. Please try again."
)

// userMessage maps a provider error code to its fixed user-facing
// string. The mapping is total: unrecognized codes get the generic
// fallback.
func userMessage(code identity.Code) string {
	switch code {
	case identity.CodeEmailInUse:
		return msgEmailInUse
	case identity.CodeUserNotFound:
		return msgUserNotFound
	case identity.CodeWrongPassword:
		return msgWrongPassword
	case identity.CodeInvalidCredential:
		return msgInvalidCredential
	case identity.CodeInvalidEmail:
		return msgInvalidEmail
	case identity.CodeWeakPassword:
		return msgWeakPassword
	case identity.CodeRateLimited:
		return msgRateLimited
	case identity.CodeNetwork:
		return msgNetwork
	case identity.CodePopupClosed:
		return msgPopupClosed
	default:
		return msgUnknown
	}
}

// mapAuthError converts a provider failure into the structured session
// error.
func mapAuthError(err error) *Error {
	kind := identity.CodeOf(err)

	return &Error{Kind: kind, Message: userMessage(kind)}
}
