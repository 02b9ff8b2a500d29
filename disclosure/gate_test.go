package disclosure_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	fakeaudit "github.com/qrmenu/menu-relay/audit/repofake"
	"github.com/qrmenu/menu-relay/capability"
	"github.com/qrmenu/menu-relay/disclosure"
	"github.com/qrmenu/menu-relay/identity"
	apperrors "github.com/qrmenu/menu-relay/internal/errors"
	"github.com/qrmenu/menu-relay/vault"
	"github.com/qrmenu/menu-relay/vault/sealed"
	"github.com/stretchr/testify/require"
)

const secretKey = "8gBm/:&EnhH.1/q"

var signingKey = []byte("0123456789abcdef0123456789abcdef")

type countingVault struct {
	vault.Vault
	mu    sync.Mutex
	calls int
}

func (v *countingVault) Decrypt(ctx context.Context, identityID string) (*vault.Bundle, error) {
	v.mu.Lock()
	v.calls++
	v.mu.Unlock()
	return v.Vault.Decrypt(ctx, identityID)
}

type testFixture struct {
	issuer *capability.Issuer
	ledger *capability.InMemoryLedger
	vault  *countingVault
	sealed *sealed.Vault
	audit  *fakeaudit.FakeAuditLog
	gate   *disclosure.Gate
	admin  *identity.Identity
	meta   disclosure.RequestMeta
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	key, err := sealed.GenerateKey()
	require.NoError(t, err)
	sv, err := sealed.New(key)
	require.NoError(t, err)
	require.NoError(t, sv.Store(sealed.AccountScope, vault.Bundle{
		ProductCode: "EPAYTEST",
		SecretKey:   secretKey,
		AccountName: "Momo House",
		Environment: vault.EnvironmentTest,
	}))

	issuer, err := capability.NewIssuer(signingKey, 2*time.Minute)
	require.NoError(t, err)

	f := &testFixture{
		issuer: issuer,
		ledger: capability.NewInMemoryLedger(),
		vault:  &countingVault{Vault: sv},
		sealed: sv,
		audit:  fakeaudit.NewFakeAuditLog(),
		admin:  &identity.Identity{ID: "admin-a", Role: identity.RoleAdmin},
		meta:   disclosure.RequestMeta{IPAddress: "203.0.113.5", UserAgent: "Mozilla/5.0"},
	}
	f.gate, err = disclosure.NewGate(f.issuer, f.ledger, f.vault, f.audit)
	require.NoError(t, err)
	return f
}

func (f *testFixture) capability(t *testing.T, identityID string) string {
	t.Helper()
	token, _, err := f.issuer.Issue(identityID)
	require.NoError(t, err)
	return token
}

func TestDisclose(t *testing.T) {
	ctx := context.Background()

	t.Run("discloses and audits", func(t *testing.T) {
		f := setupTestFixture(t)
		b, err := f.gate.Disclose(ctx, f.admin, f.capability(t, f.admin.ID), f.meta)
		require.NoError(t, err)
		require.Equal(t, secretKey, b.SecretKey)
		require.Equal(t, "EPAYTEST", b.ProductCode)

		records, err := f.gate.History(ctx, f.admin, 10)
		require.NoError(t, err)
		require.Len(t, records, 1)
		require.Equal(t, "admin-a", records[0].IdentityID)
		require.Equal(t, "203.0.113.5", records[0].IPAddress)
	})

	t.Run("second use is rejected without decrypting", func(t *testing.T) {
		f := setupTestFixture(t)
		token := f.capability(t, f.admin.ID)

		_, err := f.gate.Disclose(ctx, f.admin, token, f.meta)
		require.NoError(t, err)

		_, err = f.gate.Disclose(ctx, f.admin, token, f.meta)
		require.ErrorIs(t, err, apperrors.ErrCapabilityAlreadyUsed)
		require.Equal(t, 1, f.vault.calls)
		require.Equal(t, 1, f.audit.Len())
	})

	t.Run("racing disclosures decrypt once", func(t *testing.T) {
		f := setupTestFixture(t)
		token := f.capability(t, f.admin.ID)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
			replays   int
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.gate.Disclose(ctx, f.admin, token, f.meta)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					successes++
				case errors.Is(err, apperrors.ErrCapabilityAlreadyUsed):
					replays++
				}
			}()
		}
		wg.Wait()
		require.Equal(t, 1, successes)
		require.Equal(t, 9, replays)
		require.Equal(t, 1, f.vault.calls)
	})

	t.Run("capability of another identity", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.gate.Disclose(ctx, f.admin, f.capability(t, "admin-b"), f.meta)
		require.ErrorIs(t, err, apperrors.ErrUnauthorized)
		require.Equal(t, 0, f.vault.calls)
	})

	t.Run("non admin", func(t *testing.T) {
		f := setupTestFixture(t)
		staff := &identity.Identity{ID: "staff-1", Role: identity.RoleStaff}
		_, err := f.gate.Disclose(ctx, staff, f.capability(t, staff.ID), f.meta)
		require.ErrorIs(t, err, apperrors.ErrUnauthorized)

		_, err = f.gate.History(ctx, staff, 10)
		require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	})

	t.Run("missing capability", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.gate.Disclose(ctx, f.admin, "", f.meta)
		require.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("audit failure withholds the bundle", func(t *testing.T) {
		f := setupTestFixture(t)
		f.audit.SetAppendError(errors.New("disk full"))
		b, err := f.gate.Disclose(ctx, f.admin, f.capability(t, f.admin.ID), f.meta)
		require.Error(t, err)
		require.Nil(t, b)
	})

	t.Run("disabled credentials are withheld", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.sealed.SetActive(ctx, f.admin.ID, false)
		require.NoError(t, err)

		b, err := f.gate.Disclose(ctx, f.admin, f.capability(t, f.admin.ID), f.meta)
		require.ErrorIs(t, err, vault.ErrDisabled)
		require.Nil(t, b)
		require.Equal(t, 0, f.audit.Len())
	})

	t.Run("vault failure surfaces", func(t *testing.T) {
		f := setupTestFixture(t)
		empty, err := sealed.GenerateKey()
		require.NoError(t, err)
		ev, err := sealed.New(empty)
		require.NoError(t, err)
		g, err := disclosure.NewGate(f.issuer, f.ledger, ev, f.audit)
		require.NoError(t, err)

		_, err = g.Disclose(ctx, f.admin, f.capability(t, f.admin.ID), f.meta)
		require.ErrorIs(t, err, apperrors.ErrNotFound)
		require.Equal(t, 0, f.audit.Len())
	})
}

func TestNewGate(t *testing.T) {
	issuer, err := capability.NewIssuer(signingKey, time.Minute)
	require.NoError(t, err)
	_, err = disclosure.NewGate(nil, capability.NewInMemoryLedger(), &countingVault{}, fakeaudit.NewFakeAuditLog())
	require.Error(t, err)
	_, err = disclosure.NewGate(issuer, nil, &countingVault{}, fakeaudit.NewFakeAuditLog())
	require.Error(t, err)
	_, err = disclosure.NewGate(issuer, capability.NewInMemoryLedger(), nil, fakeaudit.NewFakeAuditLog())
	require.Error(t, err)
	_, err = disclosure.NewGate(issuer, capability.NewInMemoryLedger(), &countingVault{}, nil)
	require.Error(t, err)
}
