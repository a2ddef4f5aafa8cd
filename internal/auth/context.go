package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const ownerIDKey contextKey = "ownerID"

// ContextWithOwnerID returns a new context that carries the authenticated owner scope.
func ContextWithOwnerID(ctx context.Context, id uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ownerIDKey, id)
}

// OwnerIDFromContext retrieves the authenticated owner scope from the context, if any.
func OwnerIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	value := ctx.Value(ownerIDKey)
	if value == nil {
		return uuid.Nil, false
	}
	id, ok := value.(uuid.UUID)
	if !ok {
		return uuid.Nil, false
	}
	if id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// OwnerHeader is where the fronting identity system places the
// authenticated user id. Session handling itself lives outside this
// service.
const OwnerHeader = "X-Owner-ID"

// RequireOwner rejects requests without a valid owner id header and puts
// the owner scope on the request context for handlers downstream.
func RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(OwnerHeader))
		id, err := uuid.Parse(raw)
		if err != nil || id == uuid.Nil {
			http.Error(w, "owner id required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithOwnerID(r.Context(), id)))
	})
}
