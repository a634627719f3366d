package auth

import "context"

// SetClaimsForTesting injects claims into a context for testing purposes
// This should only be used in tests to simulate authenticated requests
func SetClaimsForTesting(ctx context.Context, claims *CustomClaims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}
