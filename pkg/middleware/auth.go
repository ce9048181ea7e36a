package middleware

import (
	"context"
	"net/http"
	"strings"

	jwtutil "github.com/schoolhub/social-api/pkg/jwt"
	"github.com/schoolhub/social-api/pkg/logger"
)

type contextKey string

// UserContextKey is where AuthMiddleware stores the caller's claims.
const UserContextKey contextKey = "user"

// AuthMiddleware validates the Bearer token and injects its claims into the
// request context. Requests without a valid token are rejected here; the
// service layer still re-resolves the external id on every call.
func AuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				http.Error(w, "Invalid Authorization header", http.StatusUnauthorized)
				return
			}

			claims, err := jwtutil.ValidateToken(tokenString, jwtSecret)
			if err != nil {
				logger.Log.Warnf("Rejected request with invalid token: %v", err)
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserFromContext returns the authenticated caller's claims, or nil when
// the request did not pass AuthMiddleware.
func GetUserFromContext(ctx context.Context) *jwtutil.Claims {
	claims, ok := ctx.Value(UserContextKey).(*jwtutil.Claims)
	if !ok {
		return nil
	}
	return claims
}
