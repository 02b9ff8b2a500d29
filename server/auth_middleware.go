package server

import (
	"context"
	"net/http"

	"github.com/qrmenu/menu-relay/identity"
	"github.com/rs/zerolog/log"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyIdentity stores the resolved *identity.Identity
	ContextKeyIdentity ContextKey = "identity"
)

// IdentityFromContext returns the identity stored by RequireAuth.
func IdentityFromContext(ctx context.Context) (*identity.Identity, bool) {
	id, ok := ctx.Value(ContextKeyIdentity).(*identity.Identity)
	return id, ok && id != nil
}

// RequireAuth resolves the bearer token into an identity. Missing and rejected
// tokens get the same 401; the reason only goes to the log.
func (s *Server) RequireAuth() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			token, err := identity.BearerToken(r)
			if err != nil {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("authentication failed")
				respondError(w, r, err)
				return
			}

			id, err := s.services.Verifier.Resolve(r.Context(), token)
			if err != nil {
				respondError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyIdentity, id)
			next(w, r.WithContext(ctx))
		}
	}
}

// RequireAdmin is middleware that validates admin/super-admin roles
// Should be chained after RequireAuth to ensure the identity is present
func (s *Server) RequireAdmin() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized)
				return
			}
			if !id.IsAdminOrAbove() {
				log.Warn().Str("identity_id", id.ID).Str("role", string(id.Role)).Str("path", r.URL.Path).Msg("admin access denied")
				writeJSONError(w, http.StatusForbidden)
				return
			}
			next(w, r)
		}
	}
}
