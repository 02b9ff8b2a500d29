package disclosure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/qrmenu/menu-relay/audit"
	"github.com/qrmenu/menu-relay/capability"
	"github.com/qrmenu/menu-relay/identity"
	apperrors "github.com/qrmenu/menu-relay/internal/errors"
	"github.com/qrmenu/menu-relay/vault"
	"github.com/rs/zerolog/log"
)

// Verifier checks a capability's signature, expiry and subject.
type Verifier interface {
	Verify(token, identityID string) (*capability.Claims, error)
}

// RequestMeta is recorded alongside each disclosure.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// Gate releases decrypted gateway credentials to an identity holding a fresh,
// unused step-up capability.
type Gate struct {
	verifier Verifier
	ledger   capability.Ledger
	vault    vault.Vault
	audit    audit.Log
	nowTime  func() time.Time
}

// GateOption defines a function type to modify the Gate instance.
type GateOption func(*Gate)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) GateOption {
	return func(g *Gate) {
		g.nowTime = nowFunc
	}
}

func NewGate(verifier Verifier, ledger capability.Ledger, v vault.Vault, auditLog audit.Log, opts ...GateOption) (*Gate, error) {
	if verifier == nil {
		return nil, errors.New("[NewGate] capability verifier is required")
	}
	if ledger == nil {
		return nil, errors.New("[NewGate] capability ledger is required")
	}
	if v == nil {
		return nil, errors.New("[NewGate] vault is required")
	}
	if auditLog == nil {
		return nil, errors.New("[NewGate] audit log is required")
	}
	g := &Gate{
		verifier: verifier,
		ledger:   ledger,
		vault:    v,
		audit:    auditLog,
		nowTime:  time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Disclose verifies and consumes the capability, decrypts the bundle and
// records the view. The bundle is only returned once the audit record is stored.
func (g *Gate) Disclose(ctx context.Context, id *identity.Identity, token string, meta RequestMeta) (*vault.Bundle, error) {
	if !id.IsAdminOrAbove() {
		return nil, errors.Wrap(apperrors.ErrUnauthorized, "[Gate.Disclose] admin role required")
	}
	if token == "" {
		return nil, errors.Wrap(apperrors.ErrInvalidInput, "[Gate.Disclose] capability is required")
	}

	claims, err := g.verifier.Verify(token, id.ID)
	if err != nil {
		return nil, errors.Wrap(err, "[Gate.Disclose]")
	}

	first, err := g.ledger.Consume(ctx, claims.ID, claims.ExpiresAt)
	if err != nil {
		return nil, errors.Wrap(err, "[Gate.Disclose] consume capability")
	}
	if !first {
		log.Warn().Str("identity_id", id.ID).Str("capability_id", claims.ID).Msg("capability replay rejected")
		return nil, errors.Wrap(apperrors.ErrCapabilityAlreadyUsed, "[Gate.Disclose]")
	}

	bundle, err := g.vault.Decrypt(ctx, id.ID)
	if err != nil {
		return nil, errors.Wrap(err, "[Gate.Disclose] decrypt")
	}
	if !bundle.Active {
		log.Warn().Str("identity_id", id.ID).Msg("disclosure of disabled credentials refused")
		return nil, errors.Wrap(vault.ErrDisabled, "[Gate.Disclose]")
	}

	rec := audit.Record{
		IdentityID: id.ID,
		Action:     audit.ActionCredentialView,
		Timestamp:  g.nowTime(),
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
	}
	if err := g.audit.Append(ctx, rec); err != nil {
		return nil, errors.Wrap(err, "[Gate.Disclose] audit")
	}

	log.Info().
		Str("identity_id", id.ID).
		Str("product_code", bundle.ProductCode).
		Str("secret_key", vault.Mask(bundle.SecretKey)).
		Msg("credentials disclosed")
	return bundle, nil
}

// History returns the identity's most recent disclosures.
func (g *Gate) History(ctx context.Context, id *identity.Identity, limit int) ([]audit.Record, error) {
	if !id.IsAdminOrAbove() {
		return nil, errors.Wrap(apperrors.ErrUnauthorized, "[Gate.History] admin role required")
	}
	records, err := g.audit.ListRecent(ctx, id.ID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "[Gate.History]")
	}
	return records, nil
}
