package server

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	Port               int
	CORSOrigin         string
	DisconnectGrace    time.Duration
	DealRemainder      bool
	RateLimitPerSecond int
	IdleTimeout        time.Duration
	DatabaseURL        string
	LogLevel           string
}

func DefaultConfig() Config {
	return Config{
		Port:               8080,
		CORSOrigin:         "*",
		DisconnectGrace:    60 * time.Second,
		DealRemainder:      false,
		RateLimitPerSecond: 20,
		IdleTimeout:        5 * time.Minute,
	}
}

// LoadConfig reads the environment (.env is loaded on import). Values that
// fail to parse keep their default and are reported back so the caller can
// log them once a logger exists.
func LoadConfig(getenv func(string) string) (Config, []error) {
	cfg := DefaultConfig()
	var problems []error

	intVar := func(key string, dst *int) {
		raw := strings.TrimSpace(getenv(key))
		if raw == "" {
			return
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			problems = append(problems, fmt.Errorf("%s: invalid value %q, using %d", key, raw, *dst))
			return
		}
		*dst = n
	}
	durationVar := func(key string, dst *time.Duration) {
		raw := strings.TrimSpace(getenv(key))
		if raw == "" {
			return
		}
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			problems = append(problems, fmt.Errorf("%s: invalid duration %q, using %s", key, raw, *dst))
			return
		}
		*dst = d
	}

	intVar("PORT", &cfg.Port)
	intVar("RATE_LIMIT_PER_SECOND", &cfg.RateLimitPerSecond)
	durationVar("DISCONNECT_GRACE", &cfg.DisconnectGrace)
	durationVar("IDLE_TIMEOUT", &cfg.IdleTimeout)

	if raw := strings.TrimSpace(getenv("DEAL_REMAINDER")); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Errorf("DEAL_REMAINDER: invalid bool %q, using false", raw))
		} else {
			cfg.DealRemainder = b
		}
	}

	if origin := strings.TrimSpace(getenv("CORS_ORIGIN")); origin != "" {
		cfg.CORSOrigin = origin
	}
	cfg.DatabaseURL = strings.TrimSpace(getenv("DATABASE_URL"))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL")))

	return cfg, problems
}
