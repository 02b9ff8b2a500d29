package vault

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	apperrors "github.com/qrmenu/menu-relay/internal/errors"
)

// ErrDisabled is returned when the stored credentials have been switched off.
var ErrDisabled = errors.Wrap(apperrors.ErrNotFound, "credentials disabled")

// Environment selects the gateway environment a credential set belongs to.
type Environment string

const (
	EnvironmentTest       Environment = "test"
	EnvironmentProduction Environment = "production"
)

// Bundle is a decrypted credential set. It only exists in memory for the
// duration of one disclosure and must never be logged.
type Bundle struct {
	ProductCode string      `json:"product_code"`
	SecretKey   string      `json:"secret_key"`
	AccountName string      `json:"account_name"`
	Environment Environment `json:"environment"`
	Active      bool        `json:"is_active"`
	DisclosedAt time.Time   `json:"disclosed_at"`
}

// Status describes the stored credentials without opening them.
type Status struct {
	IsConfigured bool        `json:"is_configured"`
	HasSecretKey bool        `json:"has_secret_key"`
	IsActive     bool        `json:"is_active"`
	DisplayName  string      `json:"esewa_display_name,omitempty"`
	Environment  Environment `json:"environment,omitempty"`
	UpdatedAt    *time.Time  `json:"updated_at"`
}

// Vault decrypts the gateway credentials visible to an identity. Implementations
// wrap apperrors.ErrVaultUnavailable on transport failures and
// apperrors.ErrNotFound when nothing is configured.
type Vault interface {
	Decrypt(ctx context.Context, identityID string) (*Bundle, error)
}

// Registry reports on and switches the stored credentials. Neither call
// decrypts the secret.
type Registry interface {
	Status(ctx context.Context, identityID string) (*Status, error)
	SetActive(ctx context.Context, identityID string, active bool) (*Status, error)
}

// Backend is a vault that also manages its records.
type Backend interface {
	Vault
	Registry
}

// Mask keeps the first and last two characters of a secret.
func Mask(secret string) string {
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:2] + strings.Repeat("*", len(secret)-4) + secret[len(secret)-2:]
}

// MaskEmail keeps the first character of the local part.
func MaskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return Mask(email)
	}
	return email[:1] + "***" + email[at:]
}
