package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims represents the JWT claims accepted by the service
type CustomClaims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Validate performs additional validation on custom claims
func (c *CustomClaims) Validate() error {
	if c.Subject == "" {
		return jwt.ErrTokenInvalidClaims
	}
	return nil
}

// HasScope reports whether the space separated scope claim contains scope.
func (c *CustomClaims) HasScope(scope string) bool {
	for _, s := range strings.Fields(c.Scope) {
		if s == scope {
			return true
		}
	}
	return false
}
