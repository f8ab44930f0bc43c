package api

import (
	"context"
	"net/http"

	"github.com/ignite/adscale/internal/pkg/httputil"
)

// userKey is the context key for the authenticated user id.
type userKey struct{}

// RequireUser extracts the caller's user id and rejects requests without one.
// The id arrives on X-User-ID (set by the auth gateway in front of this
// service) with a user_id query fallback for local development.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			userID = r.URL.Query().Get("user_id")
		}
		if userID == "" {
			httputil.Unauthorized(w, "user context required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, userID)))
	})
}

// UserID retrieves the authenticated user id from the request context.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userKey{}).(string)
	return id
}
