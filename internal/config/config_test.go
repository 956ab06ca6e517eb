package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allKeys = []string{
	"API_BASE_URL", "API_TIMEOUT_SECONDS", "API_RATE_LIMIT", "API_RATE_BURST",
	"HTTP_PORT", "TEMPLATES_DIR", "STATIC_DIR", "CORS_ALLOW_ORIGINS",
	"SESSION_SECRET", "SESSION_IDLE_MINUTES", "SESSION_SECURE_COOKIES",
	"NATS_URL", "CATALOG_FILE", "LOG_LEVEL", "LOG_FILE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFiles()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.APIBaseURL != "http://localhost:8000" {
		t.Errorf("APIBaseURL = %q, want %q", cfg.APIBaseURL, "http://localhost:8000")
	}
	assert.Zero(t, cfg.APITimeout())
	assert.Zero(t, cfg.APIRateLimit)
	assert.Equal(t, 3100, cfg.HTTPPort)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdle())
	assert.Empty(t, cfg.NatsURL)
	assert.Empty(t, cfg.CatalogFile)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestConfig_FromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_BASE_URL", "https://api.example.com/")
	t.Setenv("API_TIMEOUT_SECONDS", "15")
	t.Setenv("API_RATE_LIMIT", "2.5")
	t.Setenv("HTTP_PORT", "8080")
	t.Setenv("CORS_ALLOW_ORIGINS", "https://a.example.com, ,https://b.example.com")
	t.Setenv("SESSION_IDLE_MINUTES", "5")
	t.Setenv("SESSION_SECURE_COOKIES", "true")

	cfg, err := LoadFiles()
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.APIBaseURL)
	assert.Equal(t, 15*time.Second, cfg.APITimeout())
	assert.Equal(t, 2.5, cfg.APIRateLimit)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOrigins)
	assert.Equal(t, 5*time.Minute, cfg.SessionIdle())
	assert.True(t, cfg.SecureCookies)
}

func TestConfig_InvalidNumbersFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_PORT", "not-a-port")
	t.Setenv("API_RATE_LIMIT", "fast")

	cfg, err := LoadFiles()
	require.NoError(t, err)
	assert.Equal(t, 3100, cfg.HTTPPort)
	assert.Zero(t, cfg.APIRateLimit)
}

func TestConfig_DotEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("API_BASE_URL=http://backend:9000\nLOG_LEVEL=debug\n"), 0o600))
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := LoadFiles(path)
	require.NoError(t, err)

	assert.Equal(t, "http://backend:9000", cfg.APIBaseURL)
	// real environment wins over the file
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestConfig_MissingDotEnvIsIgnored(t *testing.T) {
	clearEnv(t)
	_, err := LoadFiles(filepath.Join(t.TempDir(), "nope.env"))
	assert.NoError(t, err)
}
