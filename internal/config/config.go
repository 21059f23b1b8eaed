package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Scheduling defaults applied when a request does not override them.
	WorkingHoursStart   string
	WorkingHoursEnd     string
	SlotDurationMinutes int

	// AvailabilityCacheTTL enables the redis availability snapshot cache
	// when > 0. Zero disables caching entirely.
	AvailabilityCacheTTL time.Duration

	// MaxRangeDays bounds a single availability query.
	MaxRangeDays int

	SourceTimeout time.Duration
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		WorkingHoursStart:   getEnv("WORKING_HOURS_START", "09:00"),
		WorkingHoursEnd:     getEnv("WORKING_HOURS_END", "17:00"),
		SlotDurationMinutes: getEnvAsInt("SLOT_DURATION_MINUTES", 30),

		AvailabilityCacheTTL: getEnvAsDuration("AVAILABILITY_CACHE_TTL", 0),
		MaxRangeDays:         getEnvAsInt("MAX_RANGE_DAYS", 92),
		SourceTimeout:        getEnvAsDuration("SOURCE_TIMEOUT", 5*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
