package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// IdentityPayload captures the profile fields asserted by the identity provider.
type IdentityPayload struct {
	UserID   string
	Email    string
	Name     string
	Picture  string
	Audience string
}

// IdentityClaims is the typed JWT presented by clients. Subject carries the
// provider uid.
type IdentityClaims struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the provider uid.
func (c *IdentityClaims) UserID() string {
	if c == nil {
		return ""
	}
	return c.Subject
}
