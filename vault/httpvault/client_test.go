package httpvault_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "github.com/qrmenu/menu-relay/internal/errors"
	"github.com/qrmenu/menu-relay/vault"
	"github.com/qrmenu/menu-relay/vault/httpvault"
	"github.com/stretchr/testify/require"
)

func TestDecrypt(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/vault/credentials/decrypt", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		switch body["identity_id"] {
		case "admin-1":
			_ = json.NewEncoder(w).Encode(map[string]string{
				"product_code": "EPAYTEST",
				"secret_key":   "8gBm/:&EnhH.1/q",
				"display_name": "Momo House",
				"environment":  "test",
			})
		case "admin-2":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"No credentials configured"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"kms"}`))
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := httpvault.New(srv.URL, time.Second, nil)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("decrypts", func(t *testing.T) {
		b, err := c.Decrypt(ctx, "admin-1")
		require.NoError(t, err)
		require.Equal(t, "EPAYTEST", b.ProductCode)
		require.Equal(t, "Momo House", b.AccountName)
		require.Equal(t, vault.EnvironmentTest, b.Environment)
		require.True(t, b.Active)
		require.False(t, b.DisclosedAt.IsZero())
	})

	t.Run("not configured", func(t *testing.T) {
		_, err := c.Decrypt(ctx, "admin-2")
		require.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("vault error", func(t *testing.T) {
		_, err := c.Decrypt(ctx, "admin-3")
		require.ErrorIs(t, err, apperrors.ErrVaultUnavailable)
	})

	t.Run("unreachable", func(t *testing.T) {
		dead := httptest.NewServer(http.NotFoundHandler())
		dead.Close()
		c, err := httpvault.New(dead.URL, time.Second, nil)
		require.NoError(t, err)
		_, err = c.Decrypt(ctx, "admin-1")
		require.ErrorIs(t, err, apperrors.ErrVaultUnavailable)
	})
}

func TestRegistry(t *testing.T) {
	active := true
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/vault/credentials/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("identity_id") != "admin-1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"is_configured":      true,
			"has_secret_key":     true,
			"is_active":          active,
			"esewa_display_name": "Momo House",
			"updated_at":         "2025-03-01T12:00:00Z",
		})
	})
	mux.HandleFunc("POST /api/vault/credentials/active", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			IdentityID string `json:"identity_id"`
			IsActive   bool   `json:"is_active"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		if body.IdentityID != "admin-1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		active = body.IsActive
		_ = json.NewEncoder(w).Encode(map[string]any{"is_configured": true, "has_secret_key": true, "is_active": active})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := httpvault.New(srv.URL, time.Second, nil)
	require.NoError(t, err)
	ctx := context.Background()

	st, err := c.Status(ctx, "admin-1")
	require.NoError(t, err)
	require.True(t, st.IsConfigured)
	require.True(t, st.IsActive)
	require.Equal(t, "Momo House", st.DisplayName)
	require.NotNil(t, st.UpdatedAt)

	st, err = c.Status(ctx, "admin-2")
	require.NoError(t, err)
	require.False(t, st.IsConfigured)

	st, err = c.SetActive(ctx, "admin-1", false)
	require.NoError(t, err)
	require.False(t, st.IsActive)
	require.False(t, active)

	_, err = c.SetActive(ctx, "admin-2", true)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}
