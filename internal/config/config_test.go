package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Errorf("expected default env development, got %s", cfg.Env)
	}
	if cfg.RateLimitMaxRequests != 10 {
		t.Errorf("expected default rate limit 10, got %d", cfg.RateLimitMaxRequests)
	}
	if cfg.RateLimitWindow != time.Minute {
		t.Errorf("expected default window 1m, got %s", cfg.RateLimitWindow)
	}
	if cfg.IsProduction() {
		t.Error("development config should not report production")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("RATE_LIMIT_MAX_REQUESTS", "3")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://example.com, https://www.example.com")
	t.Setenv("CRM_API_KEY", "key-123")

	cfg := Load()

	if !cfg.IsProduction() {
		t.Error("expected production mode")
	}
	if cfg.RateLimitMaxRequests != 3 {
		t.Errorf("expected rate limit 3, got %d", cfg.RateLimitMaxRequests)
	}
	if cfg.RateLimitWindow != 30*time.Second {
		t.Errorf("expected window 30s, got %s", cfg.RateLimitWindow)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[0] != "https://example.com" {
		t.Errorf("unexpected origins: %#v", cfg.CORSAllowedOrigins)
	}
	if cfg.CRMAPIKey != "key-123" {
		t.Errorf("unexpected CRM key: %s", cfg.CRMAPIKey)
	}
}

func TestLoadBadValuesFallBack(t *testing.T) {
	t.Setenv("RATE_LIMIT_MAX_REQUESTS", "lots")
	t.Setenv("RATE_LIMIT_WINDOW", "soon")

	cfg := Load()

	if cfg.RateLimitMaxRequests != 10 {
		t.Errorf("expected fallback 10, got %d", cfg.RateLimitMaxRequests)
	}
	if cfg.RateLimitWindow != time.Minute {
		t.Errorf("expected fallback 1m, got %s", cfg.RateLimitWindow)
	}
}
