package identity

import (
	"context"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	apperrors "github.com/qrmenu/menu-relay/internal/errors"
)

// RoleType is the role the authority reports for an identity.
type RoleType string

const (
	RoleSuperAdmin RoleType = "super_admin" // Full control over the restaurant account
	RoleAdmin      RoleType = "admin"       // Manages menu, orders and payment settings
	RoleStaff      RoleType = "staff"       // Kitchen and floor staff
	RoleCustomer   RoleType = "customer"
)

// Identity is the authority's answer for a session token. It lives for one
// request and is never cached.
type Identity struct {
	ID           string   `json:"id"`
	Email        string   `json:"email"`
	Role         RoleType `json:"role"`
	AdminOrAbove bool     `json:"is_admin_or_super_admin"`
}

// IsAdminOrAbove reports whether the identity may reach the step-up and disclosure operations.
func (i *Identity) IsAdminOrAbove() bool {
	if i == nil {
		return false
	}
	return i.AdminOrAbove || i.Role == RoleAdmin || i.Role == RoleSuperAdmin
}

// Resolver asks the authority who a session token belongs to. Implementations
// return ErrUnauthenticated for a token the authority rejects and
// ErrAuthorityUnavailable when the authority cannot answer.
type Resolver interface {
	ResolveToken(ctx context.Context, token string) (*Identity, error)
}

var (
	// ErrNoToken is returned when the request carries no usable bearer token.
	ErrNoToken = errors.Wrap(apperrors.ErrUnauthenticated, "no token")
	// ErrTokenRejected is returned when the authority does not recognise the token.
	ErrTokenRejected = errors.Wrap(apperrors.ErrUnauthenticated, "token rejected")
)

// BearerToken extracts the session token from an "Authorization: Bearer" header.
// Absent or malformed headers yield ErrNoToken.
func BearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", ErrNoToken
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", ErrNoToken
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}
