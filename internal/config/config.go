package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Database
	DatabaseDriver string // postgres, sqlite
	DatabaseURL    string

	// Cache
	RedisURL string // empty = in-memory cache
	CacheTTL time.Duration

	// Observability
	OTLPEndpoint string

	// JWT / Auth
	JWTSecret    string
	JWTAccessTTL time.Duration

	// CORS
	CORSAllowedOrigins []string

	// Bank aggregator
	BankFeedURL    string // empty = sync disabled
	BankFeedAPIKey string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries      int
	InitialBackoff  time.Duration
	MaxConcurrency  int
	BulkConcurrency int

	// Recurring matcher
	MatchDateToleranceDays  int
	MatchAmountTolerancePct float64
	MatchAmountToleranceAbs string

	// Webhooks
	WebhookMaxBodyBytes int64
}

var defaults = map[string]any{
	"PORT":                        8080,
	"LOG_LEVEL":                   "info",
	"DATABASE_DRIVER":             "sqlite",
	"DATABASE_URL":                "file:pfm.db?_pragma=busy_timeout(5000)",
	"REDIS_URL":                   "",
	"CACHE_TTL":                   "5m",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "",
	"JWT_SECRET":                  "pfm-default-dev-secret-change-me",
	"JWT_ACCESS_TTL":              "15m",
	"CORS_ALLOWED_ORIGINS":        "http://localhost:3000",
	"BANKFEED_URL":                "",
	"BANKFEED_API_KEY":            "",
	"HTTP_TIMEOUT":                "10s",
	"MAX_RETRIES":                 3,
	"INITIAL_BACKOFF":             "100ms",
	"MAX_CONCURRENCY":             50,
	"BULK_CONCURRENCY":            8,
	"MATCH_DATE_TOLERANCE_DAYS":   5,
	"MATCH_AMOUNT_TOLERANCE_PCT":  0.10,
	"MATCH_AMOUNT_TOLERANCE_ABS":  "0.01",
	"WEBHOOK_MAX_BODY_BYTES":      256 << 10,
}

// Load reads configuration from the environment, falling back to defaults.
func Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:     v.GetInt("PORT"),
		LogLevel: v.GetString("LOG_LEVEL"),

		DatabaseDriver: strings.ToLower(v.GetString("DATABASE_DRIVER")),
		DatabaseURL:    v.GetString("DATABASE_URL"),

		RedisURL: v.GetString("REDIS_URL"),
		CacheTTL: v.GetDuration("CACHE_TTL"),

		OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),

		JWTSecret:    v.GetString("JWT_SECRET"),
		JWTAccessTTL: v.GetDuration("JWT_ACCESS_TTL"),

		CORSAllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),

		BankFeedURL:    strings.TrimRight(v.GetString("BANKFEED_URL"), "/"),
		BankFeedAPIKey: v.GetString("BANKFEED_API_KEY"),

		HTTPTimeout: v.GetDuration("HTTP_TIMEOUT"),

		MaxRetries:      v.GetInt("MAX_RETRIES"),
		InitialBackoff:  v.GetDuration("INITIAL_BACKOFF"),
		MaxConcurrency:  v.GetInt("MAX_CONCURRENCY"),
		BulkConcurrency: v.GetInt("BULK_CONCURRENCY"),

		MatchDateToleranceDays:  v.GetInt("MATCH_DATE_TOLERANCE_DAYS"),
		MatchAmountTolerancePct: v.GetFloat64("MATCH_AMOUNT_TOLERANCE_PCT"),
		MatchAmountToleranceAbs: v.GetString("MATCH_AMOUNT_TOLERANCE_ABS"),

		WebhookMaxBodyBytes: v.GetInt64("WEBHOOK_MAX_BODY_BYTES"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", c.DatabaseDriver)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.BulkConcurrency < 1 {
		c.BulkConcurrency = 1
	}
	if c.MatchDateToleranceDays < 0 {
		return fmt.Errorf("MATCH_DATE_TOLERANCE_DAYS must not be negative")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
