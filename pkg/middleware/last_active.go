package middleware

import (
	"context"
	"net/http"
)

// LastActiveToucher is implemented by the user service.
type LastActiveToucher interface {
	TouchLastActive(ctx context.Context, externalID string) error
}

// UpdateLastActiveMiddleware stamps the caller's last-active time on every
// authenticated request. Failures are ignored; presence is best effort.
func UpdateLastActiveMiddleware(users LastActiveToucher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetUserFromContext(r.Context())
			if claims != nil {
				_ = users.TouchLastActive(r.Context(), claims.ExternalID)
			}
			next.ServeHTTP(w, r)
		})
	}
}
