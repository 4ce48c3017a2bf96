package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "HISTORY_LIMIT", "RELAY_STREAM", "DEFAULT_TEMPERATURE", "DEFAULT_MAX_TOKENS",
		"RELAY_SESSION_TIMEOUT", "UPSTREAM_HEADER_TIMEOUT", "DATABASE_URL", "SQLITE_PATH", "NATS_URL", "OLLAMA_BASE_URL"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.Relay.HistoryLimit != 6 {
		t.Fatalf("unexpected history limit: %d", cfg.Relay.HistoryLimit)
	}
	if !cfg.Relay.StreamResponse {
		t.Fatal("streaming should default to enabled")
	}
	if cfg.Relay.SessionTimeout != 120*time.Second {
		t.Fatalf("unexpected session timeout: %s", cfg.Relay.SessionTimeout)
	}
	if cfg.Storage.Driver() != "memory" {
		t.Fatalf("unexpected storage driver: %s", cfg.Storage.Driver())
	}
	if cfg.Events.Enabled() {
		t.Fatal("events should be disabled without NATS_URL")
	}
	if cfg.Providers.Ollama.BaseURL != "http://localhost:11434" {
		t.Fatalf("unexpected ollama base url: %s", cfg.Providers.Ollama.BaseURL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("HISTORY_LIMIT", "0")
	t.Setenv("RELAY_STREAM", "false")
	t.Setenv("RELAY_SESSION_TIMEOUT", "45")
	t.Setenv("UPSTREAM_HEADER_TIMEOUT", "5s")
	t.Setenv("SQLITE_PATH", "/tmp/arena.db")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Fatalf("unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.Relay.HistoryLimit != 1 {
		t.Fatalf("history limit should clamp to 1, got %d", cfg.Relay.HistoryLimit)
	}
	if cfg.Relay.StreamResponse {
		t.Fatal("expected streaming disabled")
	}
	if cfg.Relay.SessionTimeout != 45*time.Second {
		t.Fatalf("unexpected session timeout: %s", cfg.Relay.SessionTimeout)
	}
	if cfg.Relay.UpstreamHeaderTimeout != 5*time.Second {
		t.Fatalf("unexpected header timeout: %s", cfg.Relay.UpstreamHeaderTimeout)
	}
	if cfg.Storage.Driver() != "sqlite" {
		t.Fatalf("unexpected storage driver: %s", cfg.Storage.Driver())
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"PORT":                  "80 80",
		"RELAY_STREAM":          "maybe",
		"DEFAULT_TEMPERATURE":   "warm",
		"DEFAULT_MAX_TOKENS":    "-1",
		"RELAY_SESSION_TIMEOUT": "soon",
	}

	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", key, value)
			}
		})
	}
}
