package stepup

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/qrmenu/menu-relay/identity"
	apperrors "github.com/qrmenu/menu-relay/internal/errors"
	"github.com/rs/zerolog/log"
)

const (
	defaultCodeLength  = 6
	defaultTTL         = 5 * time.Minute
	defaultMaxAttempts = 5
)

// ErrCodeMismatch is returned for a wrong code while the challenge is still pending.
var ErrCodeMismatch = errors.Wrap(apperrors.ErrUnauthorized, "code mismatch")

// Authority checks passwords and delivers codes out of band.
type Authority interface {
	CheckPassword(ctx context.Context, id *identity.Identity, password string) (bool, error)
	DispatchCode(ctx context.Context, id *identity.Identity, code string, expiresIn time.Duration) error
}

// Issuer mints the single-use capability handed out after a successful verification.
type Issuer interface {
	Issue(identityID string) (token string, expiresAt time.Time, err error)
}

// Pending describes a challenge that has just been issued.
type Pending struct {
	IdentityID string
	ExpiresAt  time.Time
	ExpiresIn  time.Duration
}

// Completion carries the capability produced by a successful verification.
type Completion struct {
	Capability string
	ExpiresAt  time.Time
}

// Manager runs the password-then-code step-up flow.
type Manager struct {
	store       Store
	authority   Authority
	issuer      Issuer
	codeLength  int
	ttl         time.Duration
	maxAttempts int
	nowTime     func() time.Time
}

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

func WithCodeLength(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.codeLength = n
		}
	}
}

func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

func WithMaxAttempts(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

func NewManager(store Store, authority Authority, issuer Issuer, opts ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, errors.New("[NewManager] challenge store is required")
	}
	if authority == nil {
		return nil, errors.New("[NewManager] authority is required")
	}
	if issuer == nil {
		return nil, errors.New("[NewManager] capability issuer is required")
	}

	m := &Manager{
		store:       store,
		authority:   authority,
		issuer:      issuer,
		codeLength:  defaultCodeLength,
		ttl:         defaultTTL,
		maxAttempts: defaultMaxAttempts,
		nowTime:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// BeginChallenge checks the password and, on success, replaces any pending
// challenge for the identity with a fresh code and dispatches it.
func (m *Manager) BeginChallenge(ctx context.Context, id *identity.Identity, password string) (*Pending, error) {
	if !id.IsAdminOrAbove() {
		return nil, errors.Wrap(apperrors.ErrUnauthorized, "[Manager.BeginChallenge] admin role required")
	}
	if password == "" {
		return nil, errors.Wrap(apperrors.ErrInvalidInput, "[Manager.BeginChallenge] password is required")
	}

	ok, err := m.authority.CheckPassword(ctx, id, password)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.BeginChallenge] password check")
	}
	if !ok {
		return nil, errors.Wrap(apperrors.ErrUnauthorized, "[Manager.BeginChallenge] password rejected")
	}

	code, err := generateCode(m.codeLength)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.BeginChallenge] generate code")
	}

	now := m.nowTime()
	c := Challenge{
		IdentityID: id.ID,
		CodeHash:   HashCode(code),
		IssuedAt:   now,
		ExpiresAt:  now.Add(m.ttl),
	}
	// Expired and locked records are retained for one more TTL so callers get
	// ChallengeExpired or ChallengeLocked instead of ChallengeNotFound.
	if err := m.store.Put(ctx, c, c.ExpiresAt.Add(m.ttl)); err != nil {
		return nil, errors.Wrap(err, "[Manager.BeginChallenge] store challenge")
	}

	if err := m.authority.DispatchCode(ctx, id, code, m.ttl); err != nil {
		return nil, errors.Wrap(err, "[Manager.BeginChallenge] dispatch code")
	}

	log.Info().Str("identity_id", id.ID).Time("expires_at", c.ExpiresAt).Msg("step-up challenge issued")
	return &Pending{IdentityID: id.ID, ExpiresAt: c.ExpiresAt, ExpiresIn: m.ttl}, nil
}

// VerifyChallenge checks code against the pending challenge and returns a
// single-use capability on a match.
func (m *Manager) VerifyChallenge(ctx context.Context, id *identity.Identity, code string) (*Completion, error) {
	if !id.IsAdminOrAbove() {
		return nil, errors.Wrap(apperrors.ErrUnauthorized, "[Manager.VerifyChallenge] admin role required")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.Wrap(apperrors.ErrInvalidInput, "[Manager.VerifyChallenge] code is required")
	}

	outcome, err := m.store.Attempt(ctx, id.ID, HashCode(code), m.nowTime(), m.maxAttempts)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.VerifyChallenge] attempt")
	}

	switch outcome {
	case OutcomeMatched:
	case OutcomeNotFound:
		return nil, errors.Wrap(apperrors.ErrChallengeNotFound, "[Manager.VerifyChallenge]")
	case OutcomeExpired:
		return nil, errors.Wrap(apperrors.ErrChallengeExpired, "[Manager.VerifyChallenge]")
	case OutcomeLocked:
		log.Warn().Str("identity_id", id.ID).Msg("step-up challenge locked")
		return nil, errors.Wrap(apperrors.ErrChallengeLocked, "[Manager.VerifyChallenge]")
	case OutcomeMismatch:
		return nil, errors.Wrap(ErrCodeMismatch, "[Manager.VerifyChallenge]")
	default:
		return nil, errors.Wrapf(apperrors.ErrInternal, "[Manager.VerifyChallenge] unexpected outcome %d", outcome)
	}

	token, expiresAt, err := m.issuer.Issue(id.ID)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.VerifyChallenge] issue capability")
	}
	log.Info().Str("identity_id", id.ID).Msg("step-up challenge completed")
	return &Completion{Capability: token, ExpiresAt: expiresAt}, nil
}

// generateCode draws a zero padded decimal code uniformly from crypto/rand.
func generateCode(length int) (string, error) {
	if length > 18 {
		length = 18
	}
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", length, n.Int64()), nil
}
