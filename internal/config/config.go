package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	JWTIssuer          string
	JWTAudience        string
	CORSAllowedOrigins []string

	BrandConfigCacheTTL time.Duration
	BasePriceList       string
	ItemDefaultUOM      string

	LockTTL          time.Duration
	LockRetryBackoff time.Duration

	RateLimitWindow time.Duration
	RateLimitMax    int64

	IdempotencyTTL time.Duration
	BodyLimitBytes int64

	QueueConcurrency int
	QueueMaxRetry    int

	MigrationsAuto bool

	LogFormat            string
	LogLevel             string
	MetricsEnabled       bool
	MetricsNamespace     string
	MetricsBucketsMS     string
	TracingEnabled       bool
	TracingExporter      string
	OTLPEndpoint         string
	TracingSamplingRatio float64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		JWTSecret:          k.String("JWT_SECRET"),
		JWTIssuer:          strings.TrimSpace(k.String("JWT_ISSUER")),
		JWTAudience:        strings.TrimSpace(k.String("JWT_AUDIENCE")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		BrandConfigCacheTTL: parseDuration(k.String("BRAND_CONFIG_CACHE_TTL"), "5m"),
		BasePriceList:       strings.TrimSpace(k.String("BASE_PRICE_LIST")),
		ItemDefaultUOM:      valueOrDefault(k.String("ITEM_DEFAULT_UOM"), "Nos"),

		LockTTL:          parseDuration(k.String("LOCK_TTL"), "10s"),
		LockRetryBackoff: parseDuration(k.String("LOCK_RETRY_BACKOFF"), "50ms"),

		RateLimitWindow: parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:    parseInt64(k.String("RATE_LIMIT_MAX"), 120),

		IdempotencyTTL: parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		BodyLimitBytes: parseInt64(k.String("BODY_LIMIT_BYTES"), 1<<20),

		QueueConcurrency: int(parseInt64(k.String("QUEUE_CONCURRENCY"), 5)),
		QueueMaxRetry:    int(parseInt64(k.String("QUEUE_MAX_RETRY"), 10)),

		MigrationsAuto: parseBool(k.String("MIGRATIONS_AUTO")),

		LogFormat:            valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:             valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsEnabled:       parseBoolDefault(k.String("OBS_ENABLE_PROMETHEUS"), true),
		MetricsNamespace:     valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "motorval"),
		MetricsBucketsMS:     strings.TrimSpace(k.String("OBS_METRICS_BUCKETS_MS")),
		TracingEnabled:       parseBoolDefault(k.String("OBS_ENABLE_TRACING"), false),
		TracingExporter:      valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
		OTLPEndpoint:         strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
		TracingSamplingRatio: parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.RateLimitMax <= 0 {
		return nil, errors.New("RATE_LIMIT_MAX must be positive")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt64(value string, fallback int64) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

func parseFloat(value string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return v
}

func parseBoolDefault(value string, fallback bool) bool {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return parseBool(value)
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
