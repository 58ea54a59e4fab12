package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "http://localhost:8001", cfg.ML.URL)
	assert.Equal(t, 30*time.Second, cfg.ML.Timeout)
	assert.Equal(t, 8, cfg.Scoring.BatchConcurrency)
	assert.InDelta(t, 0.85, cfg.Scoring.FallbackConfidence, 1e-9)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ML_SERVICE_URL", "http://ml:9000")
	t.Setenv("ML_TIMEOUT", "5s")
	t.Setenv("SCORING_BATCH_CONCURRENCY", "3")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://ml:9000", cfg.ML.URL)
	assert.Equal(t, 5*time.Second, cfg.ML.Timeout)
	assert.Equal(t, 3, cfg.Scoring.BatchConcurrency)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-number")
	t.Setenv("ML_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.ML.Timeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero concurrency", func(c *Config) { c.Scoring.BatchConcurrency = 0 }},
		{"confidence above one", func(c *Config) { c.Scoring.FallbackConfidence = 1.5 }},
		{"negative timeout", func(c *Config) { c.ML.Timeout = -time.Second }},
		{"production default secret", func(c *Config) { c.Server.Env = "production" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
