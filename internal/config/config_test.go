package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want :8080", cfg.BindAddr)
	}
	if cfg.TypingTimeout != 3*time.Second {
		t.Fatalf("TypingTimeout = %v, want 3s", cfg.TypingTimeout)
	}
	if cfg.CallRingTimeout != 0 {
		t.Fatalf("CallRingTimeout = %v, want disabled", cfg.CallRingTimeout)
	}
	if cfg.DatabaseURL != "" || cfg.BadgerPath != "" {
		t.Fatalf("expected no external store by default, got %+v", cfg)
	}
	if cfg.PersistWorkers != 4 || cfg.PersistQueue != 1024 || cfg.PersistTimeout != 5*time.Second {
		t.Fatalf("unexpected persist defaults: %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9191")
	t.Setenv("TYPING_TIMEOUT", "1500ms")
	t.Setenv("CALL_RING_TIMEOUT", "45s")
	t.Setenv("APP_ALLOW_ANY_ORIGIN", "yes")
	t.Setenv("DATABASE_URL", "  postgres://relay@localhost/chat  ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9191" {
		t.Fatalf("BindAddr = %q", cfg.BindAddr)
	}
	if cfg.TypingTimeout != 1500*time.Millisecond {
		t.Fatalf("TypingTimeout = %v", cfg.TypingTimeout)
	}
	if cfg.CallRingTimeout != 45*time.Second {
		t.Fatalf("CallRingTimeout = %v", cfg.CallRingTimeout)
	}
	if !cfg.AllowAnyOrigin {
		t.Fatalf("AllowAnyOrigin = false, want true")
	}
	if cfg.DatabaseURL != "postgres://relay@localhost/chat" {
		t.Fatalf("DatabaseURL = %q, want trimmed value", cfg.DatabaseURL)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"TYPING_TIMEOUT":       "0s",
		"CALL_RING_TIMEOUT":    "-1s",
		"WS_SEND_BUFFER":       "abc",
		"PERSIST_WORKERS":      "0",
		"APP_ALLOW_ANY_ORIGIN": "maybe",
		"APP_LOG_FORMAT":       "xml",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%q succeeded, want error", key, value)
			}
		})
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"APP_LOG_LEVEL",
		"APP_LOG_FORMAT",
		"TYPING_TIMEOUT",
		"CALL_RING_TIMEOUT",
		"WS_SEND_BUFFER",
		"DATABASE_URL",
		"BADGER_PATH",
		"PERSIST_WORKERS",
		"PERSIST_QUEUE",
		"PERSIST_TIMEOUT",
		"MESSAGE_LEDGER_CAPACITY",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
