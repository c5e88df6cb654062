package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret-at-least-16b")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8787", cfg.ListenAddr)
	assert.Equal(t, "example.com", cfg.Domain)
	assert.Equal(t, "walletgate.db", cfg.DatabasePath)
	assert.Equal(t, 5*time.Minute, cfg.ChallengeTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.SessionTTL)
	assert.Empty(t, cfg.JWTPreviousSecrets)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret-at-least-16b")
	t.Setenv("JWT_PREVIOUS_SECRETS", "old-secret-one-16-bytes,old-secret-two-16-bytes")
	t.Setenv("APP_DOMAIN", "sign.example.org")
	t.Setenv("CHALLENGE_TTL", "90s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sign.example.org", cfg.Domain)
	assert.Equal(t, 90*time.Second, cfg.ChallengeTTL)
	assert.Equal(t, []string{"old-secret-one-16-bytes", "old-secret-two-16-bytes"}, cfg.JWTPreviousSecrets)
}

func TestLoadRejectsMissingOrShortSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "short")
	_, err := Load()
	assert.Error(t, err)
}
