package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "LOG_LEVEL", "DATA_DIR", "SESSIONS_FILE", "STORE_BACKEND", "AMBIGUITY_POLICY", "SAVE_DEBOUNCE", "CONFLICT_WINDOW", "WEBHOOK_RATE_LIMIT", "WEBHOOK_RATE_BURST"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.SessionsFile != filepath.Join("./data", "sessions.json") {
		t.Fatalf("expected sessions file under data dir, got %s", cfg.SessionsFile)
	}
	if cfg.StoreBackend != "file" {
		t.Fatalf("expected file backend by default, got %s", cfg.StoreBackend)
	}
	if cfg.AmbiguityPolicy != "positive" {
		t.Fatalf("expected positive ambiguity policy, got %s", cfg.AmbiguityPolicy)
	}
	if cfg.SaveDebounce != 2*time.Second {
		t.Fatalf("expected 2s debounce, got %s", cfg.SaveDebounce)
	}
	if cfg.ConflictWindow != 15*time.Minute {
		t.Fatalf("expected 15m conflict window, got %s", cfg.ConflictWindow)
	}
	if cfg.WebhookRateLimit != 20 || cfg.WebhookRateBurst != 40 {
		t.Fatalf("expected 20/s burst 40 webhook limit, got %v/%d", cfg.WebhookRateLimit, cfg.WebhookRateBurst)
	}
	if cfg.SessionTimeout() != 7*24*time.Hour {
		t.Fatalf("expected 7 day timeout, got %s", cfg.SessionTimeout())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATA_DIR", "/var/lib/scheduler")
	t.Setenv("BOOKINGS_FILE", "/tmp/bookings.json")
	t.Setenv("STORE_BACKEND", " Redis ")
	t.Setenv("SESSION_TIMEOUT_DAYS", "3")
	t.Setenv("SAVE_BATCH_CAP", "50")
	t.Setenv("AMBIGUITY_POLICY", "NEUTRAL")
	t.Setenv("WELCOME_DELAY", "10s")
	t.Setenv("REDIS_TLS", "true")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.SessionsFile != filepath.Join("/var/lib/scheduler", "sessions.json") {
		t.Fatalf("expected sessions file to follow DATA_DIR, got %s", cfg.SessionsFile)
	}
	if cfg.BookingsFile != "/tmp/bookings.json" {
		t.Fatalf("expected explicit bookings file, got %s", cfg.BookingsFile)
	}
	if cfg.StoreBackend != "redis" {
		t.Fatalf("expected normalized backend, got %q", cfg.StoreBackend)
	}
	if cfg.SessionTimeout() != 72*time.Hour {
		t.Fatalf("expected 3 day timeout, got %s", cfg.SessionTimeout())
	}
	if cfg.SaveBatchCap != 50 {
		t.Fatalf("expected batch cap override, got %d", cfg.SaveBatchCap)
	}
	if cfg.AmbiguityPolicy != "neutral" {
		t.Fatalf("expected neutral policy, got %s", cfg.AmbiguityPolicy)
	}
	if cfg.WelcomeDelay != 10*time.Second {
		t.Fatalf("expected welcome delay override, got %s", cfg.WelcomeDelay)
	}
	if !cfg.RedisTLS {
		t.Fatalf("expected redis tls enabled")
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("SAVE_DEBOUNCE", "soon")
	t.Setenv("WORKER_COUNT", "many")
	cfg := Load()
	if cfg.SaveDebounce != 2*time.Second {
		t.Fatalf("expected default debounce on malformed value, got %s", cfg.SaveDebounce)
	}
	if cfg.WorkerCount != 4 {
		t.Fatalf("expected default worker count, got %d", cfg.WorkerCount)
	}
}
