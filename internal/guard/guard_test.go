package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	unauthenticated = Facts{Initialized: true}
	regularUser     = Facts{Initialized: true, Authenticated: true}
	adminUser       = Facts{Initialized: true, Authenticated: true, Admin: true}
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name  string
		facts Facts
		route Route
		want  Decision
	}{
		{"auth route, signed out", unauthenticated, Route{RequiresAuth: true}, RedirectSignIn},
		{"auth route, signed in", regularUser, Route{RequiresAuth: true}, Allow},
		{"auth route, admin", adminUser, Route{RequiresAuth: true}, Allow},
		{"admin route, signed out", unauthenticated, Route{RequiresAuth: true, RequiresAdmin: true}, RedirectSignIn},
		{"admin route, regular user", regularUser, Route{RequiresAuth: true, RequiresAdmin: true}, RedirectHome},
		{"admin route, admin", adminUser, Route{RequiresAuth: true, RequiresAdmin: true}, Allow},
		{"guest route, signed out", unauthenticated, Route{RequiresGuest: true}, Allow},
		{"guest route, signed in", regularUser, Route{RequiresGuest: true}, RedirectHome},
		{"guest route, admin", adminUser, Route{RequiresGuest: true}, RedirectHome},
		{"open route, signed out", unauthenticated, Route{}, Allow},
		{"open route, signed in", regularUser, Route{}, Allow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.facts, tt.route)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateBeforeInitialization(t *testing.T) {
	_, err := Evaluate(Facts{}, Route{RequiresAuth: true})
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestAuthBeatsAdminPriority(t *testing.T) {
	// An unauthenticated visitor to an admin route goes to sign-in, not
	// home: the auth rule is evaluated first.
	got, err := Evaluate(unauthenticated, Route{RequiresAuth: true, RequiresAdmin: true})
	require.NoError(t, err)
	assert.Equal(t, RedirectSignIn, got)
}
