package capability

import (
	"context"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	apperrors "github.com/qrmenu/menu-relay/internal/errors"
)

const (
	issuer   = "menu-relay"
	audience = "credential-disclosure"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// ErrInvalidCapability covers bad signatures, wrong subjects and expired capabilities.
var ErrInvalidCapability = errors.Wrap(apperrors.ErrUnauthorized, "invalid capability")

// Claims identifies one verified capability.
type Claims struct {
	ID        string
	Subject   string
	ExpiresAt time.Time
}

// Ledger records consumed capabilities. Consume must be a single atomic
// check-and-set: it returns false when the id was already consumed.
type Ledger interface {
	Consume(ctx context.Context, id string, until time.Time) (bool, error)
}

// Issuer signs and verifies the short lived capability that proves an
// identity completed the step-up challenge.
type Issuer struct {
	key []byte
	ttl time.Duration
}

func NewIssuer(signingKey []byte, ttl time.Duration) (*Issuer, error) {
	if len(signingKey) < 32 {
		return nil, errors.New("[NewIssuer] signing key must be at least 32 bytes")
	}
	if ttl <= 0 {
		return nil, errors.New("[NewIssuer] ttl must be positive")
	}
	return &Issuer{key: signingKey, ttl: ttl}, nil
}

// Issue creates a capability bound to identityID.
func (i *Issuer) Issue(identityID string) (string, time.Time, error) {
	now := NowTimeFunc()
	exp := now.Add(i.ttl)
	claims := jwtlib.RegisteredClaims{
		Issuer:    issuer,
		Subject:   identityID,
		Audience:  jwtlib.ClaimStrings{audience},
		IssuedAt:  jwtlib.NewNumericDate(now),
		ExpiresAt: jwtlib.NewNumericDate(exp),
		ID:        uuid.New().String(),
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "[Issuer.Issue] sign")
	}
	return signed, exp, nil
}

// Verify checks signature, expiry and that the capability belongs to identityID.
func (i *Issuer) Verify(token, identityID string) (*Claims, error) {
	var claims jwtlib.RegisteredClaims
	_, err := jwtlib.ParseWithClaims(token, &claims,
		func(t *jwtlib.Token) (interface{}, error) { return i.key, nil },
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(issuer),
		jwtlib.WithAudience(audience),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(NowTimeFunc),
	)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidCapability, err.Error())
	}
	if claims.Subject != identityID || claims.ID == "" {
		return nil, errors.Wrap(ErrInvalidCapability, "subject mismatch")
	}
	return &Claims{ID: claims.ID, Subject: claims.Subject, ExpiresAt: claims.ExpiresAt.Time}, nil
}
