package disclosure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/qrmenu/menu-relay/audit"
	"github.com/qrmenu/menu-relay/identity"
	apperrors "github.com/qrmenu/menu-relay/internal/errors"
	"github.com/qrmenu/menu-relay/vault"
	"github.com/rs/zerolog/log"
)

// PasswordChecker confirms an identity's password with the authority.
type PasswordChecker interface {
	CheckPassword(ctx context.Context, id *identity.Identity, password string) (bool, error)
}

// Settings reports on and switches the stored credentials. Switching requires
// the admin's password and is audited.
type Settings struct {
	registry  vault.Registry
	passwords PasswordChecker
	audit     audit.Log
	nowTime   func() time.Time
}

// SettingsOption defines a function type to modify the Settings instance.
type SettingsOption func(*Settings)

// WithSettingsNowTime sets the now time function (primarily for testing)
func WithSettingsNowTime(nowFunc func() time.Time) SettingsOption {
	return func(s *Settings) {
		s.nowTime = nowFunc
	}
}

func NewSettings(registry vault.Registry, passwords PasswordChecker, auditLog audit.Log, opts ...SettingsOption) (*Settings, error) {
	if registry == nil {
		return nil, errors.New("[NewSettings] vault registry is required")
	}
	if passwords == nil {
		return nil, errors.New("[NewSettings] password checker is required")
	}
	if auditLog == nil {
		return nil, errors.New("[NewSettings] audit log is required")
	}
	s := &Settings{
		registry:  registry,
		passwords: passwords,
		audit:     auditLog,
		nowTime:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Status describes the identity's credentials without decrypting them.
func (s *Settings) Status(ctx context.Context, id *identity.Identity) (*vault.Status, error) {
	if !id.IsAdminOrAbove() {
		return nil, errors.Wrap(apperrors.ErrUnauthorized, "[Settings.Status] admin role required")
	}
	st, err := s.registry.Status(ctx, id.ID)
	if err != nil {
		return nil, errors.Wrap(err, "[Settings.Status]")
	}
	return st, nil
}

// SetActive enables or disables the credentials. Disabling requires them to be
// active; enabling only requires them to exist.
func (s *Settings) SetActive(ctx context.Context, id *identity.Identity, password string, active bool, meta RequestMeta) (*vault.Status, error) {
	if !id.IsAdminOrAbove() {
		return nil, errors.Wrap(apperrors.ErrUnauthorized, "[Settings.SetActive] admin role required")
	}
	if password == "" {
		return nil, errors.Wrap(apperrors.ErrInvalidInput, "[Settings.SetActive] password is required")
	}

	ok, err := s.passwords.CheckPassword(ctx, id, password)
	if err != nil {
		return nil, errors.Wrap(err, "[Settings.SetActive] check password")
	}
	if !ok {
		log.Warn().Str("identity_id", id.ID).Msg("credential toggle with wrong password")
		return nil, errors.Wrap(apperrors.ErrUnauthorized, "[Settings.SetActive] invalid password")
	}

	current, err := s.registry.Status(ctx, id.ID)
	if err != nil {
		return nil, errors.Wrap(err, "[Settings.SetActive]")
	}
	if !current.IsConfigured || (!active && !current.IsActive) {
		return nil, errors.Wrap(apperrors.ErrNotFound, "[Settings.SetActive] no matching credentials")
	}

	st, err := s.registry.SetActive(ctx, id.ID, active)
	if err != nil {
		return nil, errors.Wrap(err, "[Settings.SetActive]")
	}

	action := audit.ActionCredentialDisable
	if active {
		action = audit.ActionCredentialEnable
	}
	if err := s.audit.Append(ctx, audit.Record{
		IdentityID: id.ID,
		Action:     action,
		Timestamp:  s.nowTime(),
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		return nil, errors.Wrap(err, "[Settings.SetActive] audit")
	}

	log.Info().Str("identity_id", id.ID).Str("action", string(action)).Msg("credentials switched")
	return st, nil
}
