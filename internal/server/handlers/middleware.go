package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/TheVisher/pawkit-sync/internal/common"
)

type contextKey string

const userIDKey contextKey = "userID"

// authMiddleware resolves the bearer token and stores the user id in the
// request context.
func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(common.AuthorizationHeaderName)
		token, ok := strings.CutPrefix(raw, "Bearer ")
		if !ok || token == "" {
			h.writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		userID, err := h.users.Authenticate(token)
		if err != nil {
			h.writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}
