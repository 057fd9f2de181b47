// Package guard decides whether a navigation target is permitted for
// the current session state. It is a UX convenience gate, not a
// security boundary: the server enforces authorization on every call.
package guard

import "errors"

// ErrNotInitialized is returned when a route is evaluated before the
// session has processed its first auth notification. Evaluating early
// would misread the initial identity-check race as "unauthenticated"
// and redirect wrongly.
var ErrNotInitialized = errors.New("guard: session not initialized")

// Route describes a navigation target's requirements.
type Route struct {
	Name          string
	RequiresAuth  bool
	RequiresAdmin bool
	RequiresGuest bool
}

// Facts is the session-state snapshot the guard decides over.
type Facts struct {
	Initialized   bool
	Authenticated bool
	Admin         bool
}

// Decision is the outcome of evaluating a route.
type Decision int

const (
	Allow Decision = iota
	RedirectSignIn
	RedirectHome
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case RedirectSignIn:
		return "redirect-sign-in"
	case RedirectHome:
		return "redirect-home"
	default:
		return "unknown"
	}
}

// Evaluate applies the transition rules in fixed priority order:
// authentication requirement first, then admin requirement, then
// guest-only, then allow.
func Evaluate(f Facts, r Route) (Decision, error) {
	if !f.Initialized {
		return Allow, ErrNotInitialized
	}

	if r.RequiresAuth && !f.Authenticated {
		return RedirectSignIn, nil
	}

	if r.RequiresAdmin && !(f.Authenticated && f.Admin) {
		return RedirectHome, nil
	}

	if r.RequiresGuest && f.Authenticated {
		return RedirectHome, nil
	}

	return Allow, nil
}
