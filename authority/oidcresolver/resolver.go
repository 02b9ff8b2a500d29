package oidcresolver

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"github.com/qrmenu/menu-relay/identity"
	apperrors "github.com/qrmenu/menu-relay/internal/errors"
)

var _ identity.Resolver = (*Resolver)(nil)

// Resolver validates session tokens issued as OIDC ID tokens by the
// restaurant's identity provider, without a round trip per request.
type Resolver struct {
	verifier *oidc.IDTokenVerifier
}

// New discovers the provider at issuer and verifies tokens for audience.
func New(ctx context.Context, issuer, audience string) (*Resolver, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, errors.Wrap(err, "[oidcresolver.New] provider discovery")
	}
	return NewWithVerifier(provider.Verifier(&oidc.Config{ClientID: audience})), nil
}

func NewWithVerifier(verifier *oidc.IDTokenVerifier) *Resolver {
	return &Resolver{verifier: verifier}
}

type claims struct {
	Email               string   `json:"email"`
	Role                string   `json:"role"`
	Roles               []string `json:"roles"`
	IsAdminOrSuperAdmin bool     `json:"is_admin_or_super_admin"`
}

func (r *Resolver) ResolveToken(ctx context.Context, token string) (*identity.Identity, error) {
	idToken, err := r.verifier.Verify(ctx, token)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(apperrors.ErrAuthorityUnavailable, ctx.Err().Error())
		}
		return nil, errors.Wrap(apperrors.ErrUnauthenticated, err.Error())
	}

	var c claims
	if err := idToken.Claims(&c); err != nil {
		return nil, errors.Wrap(apperrors.ErrUnauthenticated, err.Error())
	}

	role := identity.RoleType(c.Role)
	if role == "" {
		role = highestRole(c.Roles)
	}
	return &identity.Identity{
		ID:           idToken.Subject,
		Email:        c.Email,
		Role:         role,
		AdminOrAbove: c.IsAdminOrSuperAdmin,
	}, nil
}

// highestRole picks the most privileged of the known roles in a roles claim.
func highestRole(roles []string) identity.RoleType {
	best := identity.RoleCustomer
	rank := map[identity.RoleType]int{
		identity.RoleCustomer:   0,
		identity.RoleStaff:      1,
		identity.RoleAdmin:      2,
		identity.RoleSuperAdmin: 3,
	}
	for _, r := range roles {
		if n, ok := rank[identity.RoleType(r)]; ok && n > rank[best] {
			best = identity.RoleType(r)
		}
	}
	return best
}
