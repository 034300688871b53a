// Package config loads process configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the fully resolved process configuration.
type Config struct {
	UpstreamBaseURL string
	UpstreamToken   string
	UpstreamSession string

	CacheDefaultTTL time.Duration

	MatcherTick       time.Duration
	MatcherPendingTTL time.Duration

	LiveTick             time.Duration
	LiveSubscriberBuffer int

	BreakerFails    int
	BreakerWindow   time.Duration
	BreakerCooldown time.Duration

	AuthSecret string
	TokenTTL   time.Duration

	LogLevel  string
	LogFormat string

	DatabaseURL string

	HTTPAddr string
}

// Load resolves Config from the environment, optionally reading a local
// .env file first (mirrors every teacher cmd/* entrypoint; a missing .env
// is not an error, it just means all values come from the real environment).
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		UpstreamBaseURL: GetEnv("UPSTREAM_BASE_URL", ""),
		UpstreamToken:   GetEnv("UPSTREAM_TOKEN", ""),
		UpstreamSession: GetEnv("UPSTREAM_SESSION", ""),

		CacheDefaultTTL: GetEnvMillis("CACHE_DEFAULT_TTL_MS", 30000),

		MatcherTick:       GetEnvMillis("MATCHER_TICK_MS", 1000),
		MatcherPendingTTL: GetEnvMillis("MATCHER_PENDING_TTL_MS", 900000),

		LiveTick:             GetEnvMillis("LIVE_TICK_MS", 3000),
		LiveSubscriberBuffer: GetEnvInt("LIVE_SUBSCRIBER_BUFFER", 4),

		BreakerFails:    GetEnvInt("BREAKER_FAILS", 5),
		BreakerWindow:   GetEnvMillis("BREAKER_WINDOW_MS", 60000),
		BreakerCooldown: GetEnvMillis("BREAKER_COOLDOWN_MS", 30000),

		AuthSecret: GetEnv("AUTH_SECRET", ""),
		TokenTTL:   GetEnvMillis("TOKEN_TTL_MS", 86400000),

		LogLevel:  GetEnv("LOG_LEVEL", "info"),
		LogFormat: GetEnv("LOG_FORMAT", "json"),

		DatabaseURL: GetEnv("DATABASE_URL", ""),

		HTTPAddr: GetEnv("HTTP_ADDR", ":8080"),
	}
}

// GetEnv returns the trimmed environment value or defaultValue when unset.
func GetEnv(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool accepts true/1/yes/y (case-insensitive) as true.
func GetEnvBool(key string, defaultValue bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes", "y":
		return true
	default:
		return false
	}
}

// GetEnvInt parses an int environment variable, falling back on any error.
func GetEnvInt(key string, defaultValue int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// GetEnvMillis parses an integer millisecond count into a Duration.
func GetEnvMillis(key string, defaultMs int) time.Duration {
	return time.Duration(GetEnvInt(key, defaultMs)) * time.Millisecond
}
