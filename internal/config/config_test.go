package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"ASSISTCHAT_API_URL", "ASSISTCHAT_TOKEN", "ASSISTCHAT_TIMEOUT",
		"ASSISTCHAT_REVEAL_INTERVAL_MS", "ASSISTCHAT_REVEAL_STEP", "ASSISTCHAT_DEBUG",
		"ASSISTCHAT_RATE_LIMIT", "ASSISTCHAT_OLLAMA_URL",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.API.BaseURL)
	assert.Equal(t, 60*time.Second, cfg.API.Timeout)
	assert.Equal(t, 20*time.Millisecond, cfg.Reveal.Interval)
	assert.Equal(t, 1, cfg.Reveal.Step)
	assert.Equal(t, float64(5), cfg.API.RateLimit)
	assert.Equal(t, "llama3:latest", cfg.Server.OllamaModel)
	assert.False(t, cfg.Debug)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ASSISTCHAT_API_URL", "https://chat.example.com/api/")
	t.Setenv("ASSISTCHAT_TOKEN", " secret ")
	t.Setenv("ASSISTCHAT_REVEAL_INTERVAL_MS", "5")
	t.Setenv("ASSISTCHAT_REVEAL_STEP", "3")
	t.Setenv("ASSISTCHAT_DEBUG", "true")
	t.Setenv("ASSISTCHAT_CACHE_TTL", "10")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://chat.example.com/api", cfg.API.BaseURL)
	assert.Equal(t, "secret", cfg.API.Token)
	assert.Equal(t, 5*time.Millisecond, cfg.Reveal.Interval)
	assert.Equal(t, 3, cfg.Reveal.Step)
	assert.Equal(t, 10*time.Second, cfg.Server.CacheTTL)
	assert.True(t, cfg.Debug)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Run("bad int", func(t *testing.T) {
		t.Setenv("ASSISTCHAT_TIMEOUT", "soon")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ASSISTCHAT_TIMEOUT")
	})

	t.Run("bad bool", func(t *testing.T) {
		t.Setenv("ASSISTCHAT_DEBUG", "maybe")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("zero step", func(t *testing.T) {
		t.Setenv("ASSISTCHAT_REVEAL_STEP", "0")
		_, err := Load()
		require.Error(t, err)
	})
}
