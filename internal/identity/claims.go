package identity

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// principalClaims are the ID-token claims the client reads. Signature
// verification is the server's job; the client only needs the principal
// fields, so the token is parsed unverified.
type principalClaims struct {
	UID   string
	Email string
}

// parseIDToken extracts the principal claims from a raw ID token.
// The uid comes from user_id when present, falling back to sub.
func parseIDToken(raw string) (principalClaims, error) {
	claims := jwt.MapClaims{}

	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return principalClaims{}, fmt.Errorf("identity: parsing ID token: %w", err)
	}

	pc := principalClaims{}

	if uid, ok := claims["user_id"].(string); ok {
		pc.UID = uid
	} else if sub, ok := claims["sub"].(string); ok {
		pc.UID = sub
	}

	if email, ok := claims["email"].(string); ok {
		pc.Email = email
	}

	if pc.UID == "" {
		return principalClaims{}, fmt.Errorf("identity: ID token has no user_id or sub claim")
	}

	return pc, nil
}
