package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"sda-commons/internal/http/httperr"
	"sda-commons/internal/observability/logger"

	"go.uber.org/zap"
)

type contextKey string

const claimsContextKey contextKey = "claims"

// JWTAuthMiddleware validates bearer tokens and injects claims into context.
// Failures are answered with the standard 401 body.
func JWTAuthMiddleware(resolver *KeyResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := logger.FromContext(ctx)

			tokenString, reason := bearerToken(r.Header.Get("Authorization"))
			if reason != "" {
				log.Warn(ctx, "authentication failed",
					logger.Module("auth"),
					logger.Action("authenticate"),
					zap.String("reason", string(reason)),
				)
				httperr.WriteError(w, r, httperr.Unauthorized("Unauthorized"))
				return
			}

			claims, err := resolver.Resolve(ctx, tokenString)
			if err != nil {
				reason := AuthFailureUnknown
				if authErr, ok := IsAuthError(err); ok {
					reason = authErr.Reason
				}
				log.Warn(ctx, "token validation failed",
					logger.Module("auth"),
					logger.Action("authenticate"),
					zap.String("reason", string(reason)),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
				)
				httperr.WriteError(w, r, httperr.Unauthorized("Unauthorized"))
				return
			}

			log.Debug(ctx, "authenticated request",
				logger.Module("auth"),
				logger.Action("authenticate"),
				zap.String("subject", claims.Subject),
				zap.String("issuer", claims.Issuer),
			)

			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, claimsContextKey, claims)))
		})
	}
}

func bearerToken(header string) (string, AuthFailureReason) {
	if header == "" {
		return "", AuthFailureMissingAuthorization
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", AuthFailureInvalidScheme
	}
	return strings.TrimSpace(parts[1]), ""
}

// GetClaims retrieves claims from context
func GetClaims(ctx context.Context) (*CustomClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*CustomClaims)
	return claims, ok
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}
