package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/chat")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("SYNC_URL", "http://localhost:3000/v1/shape")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("GEMINI_API_KEY", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 1, cfg.GuestFreeLimit)
	assert.True(t, cfg.DemoMode(), "missing LLM key degrades to demo mode, not an error")
}

func TestLoadFailsFastOnMissingSecrets(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	require.Error(t, err)

	setRequired(t)
	t.Setenv("DATABASE_URL", "")
	_, err = Load()
	require.Error(t, err)

	setRequired(t)
	t.Setenv("SYNC_URL", "")
	_, err = Load()
	require.Error(t, err)
}

func TestLoadRealMode(t *testing.T) {
	setRequired(t)
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("GUEST_FREE_LIMIT", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.DemoMode())
	assert.Equal(t, 3, cfg.GuestFreeLimit)
}
