package app

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/caredesk/gatekit/internal/gate/http"
	"github.com/caredesk/gatekit/pkg/jwtx"
	"github.com/caredesk/gatekit/pkg/ratelimit"
)

type Config struct {
	Secret string // Required: HMAC signing secret for both token classes
	Issuer string // Optional: issuer claim for tokens (default: gatekit)

	AccessTokenTTL  time.Duration // Optional: access token lifetime (default: 15m)
	RefreshTokenTTL time.Duration // Optional: refresh token lifetime (default: 168h)

	DatabaseFile string // Optional: path to SQLite database file (default: ./gatekit.db)

	Env       string // Environment (dev, staging, prod) (default: dev)
	LogLevel  string // Log level (debug, info, warn, error) (default: info)
	LogFormat string // Log format (json, text) (default: json)
	Port      int    // HTTP server port (default: 8080)

	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Sweep interval for revocations and rate windows (default: 5m)

	FloodRPS   float64 // Per-client requests per second before shedding (default: 20)
	FloodBurst int     // Per-client burst allowance (default: 40)

	Policies http.Policies // Per-endpoint throttling budgets
}

// ErrNoSecret aborts startup when the signing secret is missing. There is no
// usable default for it.
var ErrNoSecret = errors.New("GATE_SECRET is required")

func LoadConfig() (Config, error) {
	cfg := Config{
		Secret: os.Getenv("GATE_SECRET"),
		Issuer: getEnvOrDefault("GATE_ISSUER", "gatekit"),

		AccessTokenTTL:  getEnvDurationOrDefault("ACCESS_TOKEN_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTokenTTL: getEnvDurationOrDefault("REFRESH_TOKEN_TTL", jwtx.DefaultRefreshTokenTTL),

		DatabaseFile: getEnvOrDefault("DATABASE_FILE", "gatekit.db"),

		Env:       getEnvOrDefault("ENV", "dev"),
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "json"),
		Port:      getEnvIntOrDefault("PORT", 8080),

		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 5*time.Minute),

		FloodRPS:   getEnvFloatOrDefault("FLOOD_RPS", 20),
		FloodBurst: getEnvIntOrDefault("FLOOD_BURST", 40),
	}

	defaults := http.DefaultPolicies()
	cfg.Policies = http.Policies{
		Login:      loadPolicy("RATELIMIT_LOGIN", defaults.Login),
		Register:   loadPolicy("RATELIMIT_REGISTER", defaults.Register),
		CheckEmail: loadPolicy("RATELIMIT_CHECK_EMAIL", defaults.CheckEmail),
		General:    loadPolicy("RATELIMIT_GENERAL", defaults.General),
	}

	if cfg.Secret == "" {
		return Config{}, ErrNoSecret
	}

	return cfg, nil
}

// loadPolicy reads <prefix>_MAX and <prefix>_WINDOW, falling back per field.
func loadPolicy(prefix string, fallback ratelimit.Policy) ratelimit.Policy {
	return ratelimit.Policy{
		Max:    getEnvIntOrDefault(prefix+"_MAX", fallback.Max),
		Window: getEnvDurationOrDefault(prefix+"_WINDOW", fallback.Window),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are read as minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
