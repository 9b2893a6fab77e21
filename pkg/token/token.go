// Package token decodes the claims embedded in dashboard access tokens.
//
// No cryptographic verification happens here: the server is the sole
// authority on token validity. Decoded claims drive display and refresh
// scheduling only, so every check is advisory and fails closed.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stockkanban/client-go/pkg/domain"
)

// Claims are the payload fields the dashboard embeds in access tokens.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// Identity maps the claims to the authenticated identity (sub becomes ID).
func (c *Claims) Identity() domain.Identity {
	return domain.Identity{
		ID:       c.Subject,
		Username: c.Username,
		Email:    c.Email,
		Role:     c.Role,
	}
}

var parser = jwt.NewParser()

// Decode extracts the claims from the token's payload segment without
// verifying the signature. Wrong segment count, invalid base64url and
// invalid JSON all yield ErrMalformedToken.
func Decode(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, domain.ErrMalformedToken
	}
	return claims, nil
}

// IsExpired reports whether the token's exp claim is in the past. Malformed
// tokens and tokens without an exp claim count as expired.
func IsExpired(tokenString string) bool {
	claims, err := Decode(tokenString)
	if err != nil || claims.ExpiresAt == nil {
		return true
	}
	return claims.ExpiresAt.Before(time.Now())
}

// ExpirationTime returns the token's expiry. ok is false when the token
// cannot be decoded or carries no exp claim.
func ExpirationTime(tokenString string) (time.Time, bool) {
	claims, err := Decode(tokenString)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
