// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port          string
	DBPath        string
	RedisAddr     string
	RedisPassword string

	AdminBaseURL string
	NLPBaseURL   string
	AdminTimeout time.Duration
	NLPTimeout   time.Duration

	// Retry policy for the classification call. Attempts counts the first
	// call, so 1 means single-shot with no retry.
	NLPRetryAttempts int
	NLPRetryBackoff  time.Duration

	BreakerThreshold int
	BreakerCooldown  time.Duration

	SessionIdleTTL time.Duration
	TokenSecret    string
	TenantID       int64
	AllowedOrigins []string

	Analytics AnalyticsConfig
}

// AnalyticsConfig controls NDJSON analytics event logging.
type AnalyticsConfig struct {
	Enabled   bool
	Path      string
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("ANALYTICS_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		DBPath:           getEnv("DB_PATH", "./data/chatdesk.db"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		AdminBaseURL:     getEnv("ADMIN_BASE_URL", "http://localhost:8001"),
		NLPBaseURL:       getEnv("NLP_URL", "http://localhost:8002"),
		AdminTimeout:     getEnvDuration("ADMIN_TIMEOUT", 10*time.Second),
		NLPTimeout:       getEnvDuration("NLP_TIMEOUT", 5*time.Second),
		NLPRetryAttempts: getEnvInt("NLP_RETRY_ATTEMPTS", 1),
		NLPRetryBackoff:  getEnvDuration("NLP_RETRY_BACKOFF", 500*time.Millisecond),
		BreakerThreshold: getEnvInt("BREAKER_THRESHOLD", 5),
		BreakerCooldown:  getEnvDuration("BREAKER_COOLDOWN", 30*time.Second),
		SessionIdleTTL:   getEnvDuration("SESSION_IDLE_TTL", 24*time.Hour),
		TokenSecret:      getEnv("TOKEN_SECRET", ""),
		TenantID:         int64(getEnvInt("DEFAULT_TENANT_ID", 1)),
		AllowedOrigins:   splitCSV(getEnv("ALLOWED_ORIGINS", "*")),
		Analytics: AnalyticsConfig{
			Enabled:   getEnvBool("ANALYTICS_ENABLED", true),
			Path:      getEnv("ANALYTICS_PATH", "./data/analytics/events.ndjson"),
			QueueSize: queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR cannot be empty")
	}
	if c.TokenSecret == "" {
		return fmt.Errorf("TOKEN_SECRET cannot be empty")
	}
	if c.NLPRetryAttempts < 1 {
		return fmt.Errorf("NLP_RETRY_ATTEMPTS must be >= 1")
	}
	if c.BreakerThreshold < 1 {
		return fmt.Errorf("BREAKER_THRESHOLD must be >= 1")
	}
	if c.BreakerCooldown <= 0 {
		return fmt.Errorf("BREAKER_COOLDOWN must be > 0")
	}
	if c.Analytics.Enabled && c.Analytics.Path == "" {
		return fmt.Errorf("ANALYTICS_PATH cannot be empty when analytics is enabled")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		out = []string{"*"}
	}
	return out
}
