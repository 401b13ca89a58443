package httpx

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// Identity is what the upstream auth layer vouches for.
type Identity struct {
	UserID string
	Admin  bool
}

type identityKey struct{}

// Identify reads the caller from the trusted auth headers; a missing or
// malformed user id is rejected with 401.
func Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.Header.Get(HeaderUserID))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing or invalid " + HeaderUserID})
			return
		}
		who := Identity{UserID: id.String(), Admin: r.Header.Get(HeaderUserRole) == "admin"}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, who)))
	})
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	who, ok := ctx.Value(identityKey{}).(Identity)
	return who, ok
}

// AdminOnly must run after Identify.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if who, ok := IdentityFrom(r.Context()); !ok || !who.Admin {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "not enough permissions"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func mustIdentity(r *http.Request) Identity {
	who, _ := IdentityFrom(r.Context())
	return who
}
