package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Clinic API
	ClinicAPIBaseURL string
	ClinicAPITimeout time.Duration

	// Booking rules
	ClinicTimezone          string
	BookingLeadTime         time.Duration
	SlotGranularity         time.Duration
	SlotMode                string
	BookingRequireService   bool
	BookingRequireSpecialty bool

	// Catalog cache; an empty RedisAddr keeps the cache in memory.
	RedisAddr       string
	RedisPassword   string
	RedisTLS        bool
	CatalogCacheTTL time.Duration

	// Submission journal; an empty DatabaseURL disables it.
	DatabaseURL string

	SessionTTL           time.Duration
	SessionSweepInterval time.Duration

	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		ClinicAPIBaseURL: strings.TrimSpace(getEnv("CLINIC_API_BASE_URL", "")),
		ClinicAPITimeout: getEnvAsDuration("CLINIC_API_TIMEOUT", 15*time.Second),

		ClinicTimezone:          getEnv("CLINIC_TIMEZONE", "Asia/Ho_Chi_Minh"),
		BookingLeadTime:         getEnvAsDuration("BOOKING_LEAD_TIME", 2*time.Hour),
		SlotGranularity:         getEnvAsDuration("SLOT_GRANULARITY", 30*time.Minute),
		SlotMode:                strings.ToLower(strings.TrimSpace(getEnv("SLOT_MODE", "server"))),
		BookingRequireService:   getEnvAsBool("BOOKING_REQUIRE_SERVICE", false),
		BookingRequireSpecialty: getEnvAsBool("BOOKING_REQUIRE_SPECIALTY", true),

		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisTLS:        getEnvAsBool("REDIS_TLS", false),
		CatalogCacheTTL: getEnvAsDuration("CATALOG_CACHE_TTL", 5*time.Minute),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		SessionTTL:           getEnvAsDuration("SESSION_TTL", 30*time.Minute),
		SessionSweepInterval: getEnvAsDuration("SESSION_SWEEP_INTERVAL", time.Minute),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 10),
	}
}

// Validate reports settings the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.ClinicAPIBaseURL == "" {
		errs = append(errs, errors.New("CLINIC_API_BASE_URL is required"))
	}
	if _, err := time.LoadLocation(c.ClinicTimezone); err != nil {
		errs = append(errs, fmt.Errorf("CLINIC_TIMEZONE: %w", err))
	}
	if c.BookingLeadTime < 0 {
		errs = append(errs, errors.New("BOOKING_LEAD_TIME must not be negative"))
	}
	if c.SlotGranularity < time.Minute {
		errs = append(errs, errors.New("SLOT_GRANULARITY must be at least one minute"))
	}
	if c.SlotMode != "server" && c.SlotMode != "local" {
		errs = append(errs, fmt.Errorf("SLOT_MODE must be server or local, got %q", c.SlotMode))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	return errors.Join(errs...)
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
