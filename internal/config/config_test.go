package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.ServerPort == "" {
		t.Fatalf("expected default server port")
	}
	if cfg.PostgresURL == "" {
		t.Fatalf("expected default postgres url")
	}
	if cfg.MaxAccuracyM != 25 {
		t.Fatalf("expected default accuracy gate of 25m, got %v", cfg.MaxAccuracyM)
	}
	if cfg.SubmitBreakerTimeout != 30*time.Second {
		t.Fatalf("expected default breaker timeout, got %v", cfg.SubmitBreakerTimeout)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9000")
	t.Setenv("POSTGRES_URL", "postgres://example")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("TRACKER_MAX_ACCURACY_M", "40")
	t.Setenv("TRACKER_DEFAULT_WEIGHT_KG", "82.5")

	cfg := Load()
	if cfg.ServerPort != ":9000" {
		t.Fatalf("expected override port")
	}
	if cfg.PostgresURL != "postgres://example" {
		t.Fatalf("expected override postgres")
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Fatalf("expected override redis")
	}
	if cfg.JWTSecret != "secret" {
		t.Fatalf("expected override secret")
	}

	tc := cfg.Tracker()
	if tc.MaxAccuracyM != 40 {
		t.Fatalf("expected accuracy override, got %v", tc.MaxAccuracyM)
	}
	if tc.DefaultWeightKg != 82.5 {
		t.Fatalf("expected weight override, got %v", tc.DefaultWeightKg)
	}
}

func TestTrackerIgnoresInvalidAlpha(t *testing.T) {
	cfg := Config{SmoothingAlpha: 3}
	if got := cfg.Tracker().SmoothingAlpha; got != 0.3 {
		t.Fatalf("expected default alpha, got %v", got)
	}
}
