// package config loads application configuration from environment variables.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// survey backend
	APIBaseURL    string
	APITimeoutSec int     // 0 disables the client timeout
	APIRateLimit  float64 // requests per second, 0 = unlimited
	APIRateBurst  int

	// server
	HTTPPort     int
	TemplatesDir string
	StaticDir    string
	CORSOrigins  []string

	// sessions
	SessionSecret      string
	SessionIdleMinutes int
	SecureCookies      bool

	// nats
	NatsURL string

	// catalog override, empty keeps the built-in question table
	CatalogFile string

	// logging
	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is applied first when present; real
// environment variables win over it.
func Load() (*Config, error) {
	return LoadFiles(".env")
}

// LoadFiles is Load with explicit dotenv files. Missing files are skipped.
func LoadFiles(files ...string) (*Config, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{
		APIBaseURL:         strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:8000"), "/"),
		APITimeoutSec:      getEnvInt("API_TIMEOUT_SECONDS", 0),
		APIRateLimit:       getEnvFloat("API_RATE_LIMIT", 0),
		APIRateBurst:       getEnvInt("API_RATE_BURST", 4),
		HTTPPort:           getEnvInt("HTTP_PORT", 3100),
		TemplatesDir:       getEnv("TEMPLATES_DIR", "./internal/web/templates"),
		StaticDir:          getEnv("STATIC_DIR", "./static"),
		CORSOrigins:        getEnvList("CORS_ALLOW_ORIGINS", []string{"*"}),
		SessionSecret:      getEnv("SESSION_SECRET", ""),
		SessionIdleMinutes: getEnvInt("SESSION_IDLE_MINUTES", 30),
		SecureCookies:      getEnvBool("SESSION_SECURE_COOKIES", false),
		NatsURL:            getEnv("NATS_URL", ""),
		CatalogFile:        getEnv("CATALOG_FILE", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFile:            getEnv("LOG_FILE", ""),
	}

	return cfg, nil
}

// APITimeout returns the backend call timeout, 0 meaning none.
func (c *Config) APITimeout() time.Duration {
	if c.APITimeoutSec <= 0 {
		return 0
	}
	return time.Duration(c.APITimeoutSec) * time.Second
}

// SessionIdle returns the idle TTL of a browser session.
func (c *Config) SessionIdle() time.Duration {
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt returns the integer value of an environment variable or a default.
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvList splits a comma separated variable, dropping blanks.
func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
