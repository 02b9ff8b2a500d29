package config_test

import (
	"testing"
	"time"

	"github.com/qrmenu/menu-relay/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := config.New()

	require.Equal(t, ":8080", c.GetPort())
	require.Equal(t, 6, c.GetChallengeCodeLength())
	require.Equal(t, 5*time.Minute, c.GetChallengeTTL())
	require.Equal(t, 5, c.GetChallengeMaxAttempts())
	require.Equal(t, 10*time.Second, c.GetRequestTimeout())
	require.Empty(t, c.GetCapabilitySigningKey())
}

func TestOverrides(t *testing.T) {
	t.Setenv("PORT", ":9090")
	t.Setenv("STEPUP_MAX_ATTEMPTS", "3")
	t.Setenv("STEPUP_CODE_TTL", "90s")
	t.Setenv("CAPABILITY_TTL", "not-a-duration")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://menu.example.com, https://admin.example.com")

	c := config.New()
	require.Equal(t, ":9090", c.GetPort())
	require.Equal(t, 3, c.GetChallengeMaxAttempts())
	require.Equal(t, 90*time.Second, c.GetChallengeTTL())
	require.Equal(t, 2*time.Minute, c.GetCapabilityTTL())

	origins := c.GetAllowedOrigins()
	require.True(t, origins.IsAllowedOrigin("https://admin.example.com"))
	require.False(t, origins.IsAllowedOrigin("http://localhost:3000"))
}

func TestMerchantSeed(t *testing.T) {
	c := config.New()
	require.Equal(t, "EPAYTEST", c.GetMerchantProductCode())
	require.Empty(t, c.GetMerchantSecretKey())

	t.Setenv("MERCHANT_SECRET_KEY", "s3cret")
	require.Equal(t, "s3cret", config.New().GetMerchantSecretKey())
}
