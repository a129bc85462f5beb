package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "test-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default port 8080, got %q", cfg.Port)
	}
	if cfg.BreakerThreshold != 5 {
		t.Errorf("Expected breaker threshold 5, got %d", cfg.BreakerThreshold)
	}
	if cfg.BreakerCooldown != 30*time.Second {
		t.Errorf("Expected breaker cooldown 30s, got %v", cfg.BreakerCooldown)
	}
	if cfg.NLPRetryAttempts != 1 {
		t.Errorf("Expected single-shot classification by default, got %d attempts", cfg.NLPRetryAttempts)
	}
	if cfg.TenantID != 1 {
		t.Errorf("Expected default tenant 1, got %d", cfg.TenantID)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Errorf("Expected wildcard origins, got %v", cfg.AllowedOrigins)
	}
	if !cfg.Analytics.Enabled {
		t.Error("Expected analytics enabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "test-secret")
	t.Setenv("PORT", "9090")
	t.Setenv("BREAKER_THRESHOLD", "3")
	t.Setenv("BREAKER_COOLDOWN", "1m")
	t.Setenv("NLP_RETRY_ATTEMPTS", "2")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("ANALYTICS_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Expected port 9090, got %q", cfg.Port)
	}
	if cfg.BreakerThreshold != 3 {
		t.Errorf("Expected breaker threshold 3, got %d", cfg.BreakerThreshold)
	}
	if cfg.BreakerCooldown != time.Minute {
		t.Errorf("Expected breaker cooldown 1m, got %v", cfg.BreakerCooldown)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example.com" {
		t.Errorf("Expected two trimmed origins, got %v", cfg.AllowedOrigins)
	}
	if cfg.Analytics.Enabled {
		t.Error("Expected analytics disabled")
	}
}

func TestLoadRequiresTokenSecret(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "")

	if _, err := Load(); err == nil {
		t.Error("Expected error when TOKEN_SECRET is empty")
	}
}

func TestValidate(t *testing.T) {
	valid := &Config{
		Port:             "8080",
		DBPath:           "./data/test.db",
		RedisAddr:        "localhost:6379",
		TokenSecret:      "s",
		NLPRetryAttempts: 1,
		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Second,
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty port", func(c *Config) { c.Port = "" }},
		{"empty db path", func(c *Config) { c.DBPath = "" }},
		{"empty redis addr", func(c *Config) { c.RedisAddr = "" }},
		{"zero retry attempts", func(c *Config) { c.NLPRetryAttempts = 0 }},
		{"zero breaker threshold", func(c *Config) { c.BreakerThreshold = 0 }},
		{"zero breaker cooldown", func(c *Config) { c.BreakerCooldown = 0 }},
		{"analytics without path", func(c *Config) {
			c.Analytics.Enabled = true
			c.Analytics.Path = ""
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *valid
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Expected validation error for %s", tt.name)
			}
		})
	}
}
