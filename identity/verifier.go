package identity

import (
	"context"

	"github.com/pkg/errors"
	apperrors "github.com/qrmenu/menu-relay/internal/errors"
)

// Verifier turns a session token into an Identity. It never allows a request
// through when the authority is unreachable.
type Verifier struct {
	resolver Resolver
}

func NewVerifier(resolver Resolver) (*Verifier, error) {
	if resolver == nil {
		return nil, errors.New("[NewVerifier] resolver is required")
	}
	return &Verifier{resolver: resolver}, nil
}

// Resolve returns the identity for token. Errors wrap ErrNoToken, ErrTokenRejected
// or apperrors.ErrAuthorityUnavailable.
func (v *Verifier) Resolve(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrNoToken
	}

	id, err := v.resolver.ResolveToken(ctx, token)
	switch {
	case err == nil:
	case apperrors.Is(err, apperrors.ErrAuthorityUnavailable):
		return nil, errors.Wrap(err, "[Verifier.Resolve]")
	case apperrors.Is(err, apperrors.ErrUnauthenticated):
		return nil, ErrTokenRejected
	default:
		return nil, errors.Wrap(apperrors.ErrAuthorityUnavailable, err.Error())
	}

	if id == nil || id.ID == "" {
		return nil, ErrTokenRejected
	}
	return id, nil
}
