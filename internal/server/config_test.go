package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func envMap(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, problems := LoadConfig(envMap(nil))

	assert.Empty(t, problems)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 60*time.Second, cfg.DisconnectGrace)
	assert.False(t, cfg.DealRemainder)
}

func TestLoadConfigOverrides(t *testing.T) {
	cfg, problems := LoadConfig(envMap(map[string]string{
		"PORT":                  "9000",
		"CORS_ORIGIN":           "https://fish.example",
		"DISCONNECT_GRACE":      "90s",
		"DEAL_REMAINDER":        "true",
		"RATE_LIMIT_PER_SECOND": "5",
		"IDLE_TIMEOUT":          "2m",
		"DATABASE_URL":          " postgres://localhost/fish ",
		"LOG_LEVEL":             "DEBUG",
	}))

	assert.Empty(t, problems)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "https://fish.example", cfg.CORSOrigin)
	assert.Equal(t, 90*time.Second, cfg.DisconnectGrace)
	assert.True(t, cfg.DealRemainder)
	assert.Equal(t, 5, cfg.RateLimitPerSecond)
	assert.Equal(t, 2*time.Minute, cfg.IdleTimeout)
	assert.Equal(t, "postgres://localhost/fish", cfg.DatabaseURL)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigInvalidValuesKeepDefaults(t *testing.T) {
	cfg, problems := LoadConfig(envMap(map[string]string{
		"PORT":             "eighty",
		"DISCONNECT_GRACE": "-5s",
		"DEAL_REMAINDER":   "sometimes",
	}))

	assert.Len(t, problems, 3)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 60*time.Second, cfg.DisconnectGrace)
	assert.False(t, cfg.DealRemainder)
}
