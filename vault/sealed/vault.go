package sealed

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	apperrors "github.com/qrmenu/menu-relay/internal/errors"
	"github.com/qrmenu/menu-relay/vault"
	"golang.org/x/crypto/chacha20poly1305"
)

// AccountScope is the record shared by every identity of the restaurant account.
const AccountScope = "account"

var _ vault.Backend = (*Vault)(nil)

// record is one sealed bundle plus the metadata that can be read without opening it.
type record struct {
	sealed      []byte
	displayName string
	environment vault.Environment
	hasSecret   bool
	active      bool
	updatedAt   time.Time
}

// Vault keeps credential bundles sealed with XChaCha20-Poly1305 and opens them
// on demand. Records are bound to their scope through the additional data.
type Vault struct {
	key     []byte
	records map[string]*record
	lock    sync.RWMutex
	nowTime func() time.Time
}

// New takes a base64 encoded 32-byte key.
func New(encodedKey string) (*Vault, error) {
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, errors.Wrap(err, "[sealed.New] decode key")
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, errors.Errorf("[sealed.New] key must be %d bytes", chacha20poly1305.KeySize)
	}
	return &Vault{key: key, records: make(map[string]*record), nowTime: time.Now}, nil
}

// GenerateKey returns a fresh base64 key for New.
func GenerateKey() (string, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// Store seals b under scope, replacing any previous record. A stored record is active.
func (v *Vault) Store(scope string, b vault.Bundle) error {
	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return errors.Wrap(err, "[sealed.Store]")
	}
	b.DisclosedAt = time.Time{}
	b.Active = false
	plain, err := json.Marshal(b)
	if err != nil {
		return errors.Wrap(err, "[sealed.Store] marshal")
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return errors.Wrap(err, "[sealed.Store] nonce")
	}
	sealed := aead.Seal(nonce, nonce, plain, []byte(scope))

	v.lock.Lock()
	defer v.lock.Unlock()
	v.records[scope] = &record{
		sealed:      sealed,
		displayName: b.AccountName,
		environment: b.Environment,
		hasSecret:   b.SecretKey != "",
		active:      true,
		updatedAt:   v.nowTime(),
	}
	return nil
}

// lookup returns the identity's own record, falling back to the account record.
// Callers hold the lock.
func (v *Vault) lookup(identityID string) (string, *record) {
	if rec, ok := v.records[identityID]; ok {
		return identityID, rec
	}
	if rec, ok := v.records[AccountScope]; ok {
		return AccountScope, rec
	}
	return "", nil
}

func (v *Vault) Decrypt(_ context.Context, identityID string) (*vault.Bundle, error) {
	v.lock.RLock()
	scope, rec := v.lookup(identityID)
	var (
		sealed []byte
		active bool
	)
	if rec != nil {
		sealed, active = rec.sealed, rec.active
	}
	v.lock.RUnlock()
	if rec == nil {
		return nil, errors.Wrap(apperrors.ErrNotFound, "[sealed.Decrypt] no credentials configured")
	}

	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrVaultUnavailable, err.Error())
	}
	if len(sealed) < aead.NonceSize() {
		return nil, errors.Wrap(apperrors.ErrVaultUnavailable, "[sealed.Decrypt] truncated record")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, []byte(scope))
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrVaultUnavailable, "[sealed.Decrypt] open")
	}

	var b vault.Bundle
	if err := json.Unmarshal(plain, &b); err != nil {
		return nil, errors.Wrap(apperrors.ErrVaultUnavailable, "[sealed.Decrypt] unmarshal")
	}
	b.Active = active
	b.DisclosedAt = v.nowTime()
	return &b, nil
}

func (v *Vault) Status(_ context.Context, identityID string) (*vault.Status, error) {
	v.lock.RLock()
	defer v.lock.RUnlock()
	_, rec := v.lookup(identityID)
	return statusOf(rec), nil
}

func (v *Vault) SetActive(_ context.Context, identityID string, active bool) (*vault.Status, error) {
	v.lock.Lock()
	defer v.lock.Unlock()
	_, rec := v.lookup(identityID)
	if rec == nil {
		return nil, errors.Wrap(apperrors.ErrNotFound, "[sealed.SetActive] no credentials configured")
	}
	if rec.active != active {
		rec.active = active
		rec.updatedAt = v.nowTime()
	}
	return statusOf(rec), nil
}

func statusOf(rec *record) *vault.Status {
	if rec == nil {
		return &vault.Status{}
	}
	updated := rec.updatedAt
	return &vault.Status{
		IsConfigured: true,
		HasSecretKey: rec.hasSecret,
		IsActive:     rec.active,
		DisplayName:  rec.displayName,
		Environment:  rec.environment,
		UpdatedAt:    &updated,
	}
}
