package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_BIND_ADDR", "APP_METRICS_NAMESPACE", "APP_SHUTDOWN_TIMEOUT", "APP_ALLOW_ANY_ORIGIN",
		"DATABASE_URL", "GENERATOR_MODE", "GENERATOR_HTTP_URL", "GENERATOR_TIMEOUT",
		"GENERATOR_RETRY_LIMIT", "GENERATOR_RETRY_BACKOFF_BASE", "GENERATOR_RETRY_BACKOFF_CAP",
		"SESSION_TURN_BUDGET", "SESSION_MODERATOR_EVERY", "WS_SEND_BUFFER",
		"MATCH_SERVICE_URL", "AMORA_JWT_SECRET", "AMORA_JWT_ISSUER", "AMORA_DEV_TOKENS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.BindAddr != ":8080" {
		t.Errorf("BindAddr = %q", cfg.BindAddr)
	}
	if cfg.MetricsNamespace != "amora" {
		t.Errorf("MetricsNamespace = %q", cfg.MetricsNamespace)
	}
	if cfg.GeneratorMode != "auto" {
		t.Errorf("GeneratorMode = %q", cfg.GeneratorMode)
	}
	if cfg.TurnBudget != 24 {
		t.Errorf("TurnBudget = %d", cfg.TurnBudget)
	}
	if cfg.ModeratorEvery != 5 {
		t.Errorf("ModeratorEvery = %d", cfg.ModeratorEvery)
	}
	if cfg.RetryLimit != 2 {
		t.Errorf("RetryLimit = %d", cfg.RetryLimit)
	}
	if cfg.GenerateTimeout != 30*time.Second {
		t.Errorf("GenerateTimeout = %v", cfg.GenerateTimeout)
	}
	if cfg.SendBuffer != 64 {
		t.Errorf("SendBuffer = %d", cfg.SendBuffer)
	}
	if cfg.AllowAnyOrigin {
		t.Error("AllowAnyOrigin should default to false")
	}
	if cfg.DevTokens == "" {
		t.Error("DevTokens must default to a development credential")
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_BIND_ADDR", ":9999")
	t.Setenv("SESSION_TURN_BUDGET", "12")
	t.Setenv("SESSION_MODERATOR_EVERY", "0")
	t.Setenv("GENERATOR_TIMEOUT", "45s")
	t.Setenv("APP_ALLOW_ANY_ORIGIN", "true")
	t.Setenv("AMORA_JWT_SECRET", "  hunter2  ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BindAddr != ":9999" {
		t.Errorf("BindAddr = %q", cfg.BindAddr)
	}
	if cfg.TurnBudget != 12 {
		t.Errorf("TurnBudget = %d", cfg.TurnBudget)
	}
	if cfg.ModeratorEvery != 0 {
		t.Errorf("ModeratorEvery = %d", cfg.ModeratorEvery)
	}
	if cfg.GenerateTimeout != 45*time.Second {
		t.Errorf("GenerateTimeout = %v", cfg.GenerateTimeout)
	}
	if !cfg.AllowAnyOrigin {
		t.Error("AllowAnyOrigin not applied")
	}
	if cfg.JWTSecret != "hunter2" {
		t.Errorf("JWTSecret = %q, want trimmed value", cfg.JWTSecret)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		key   string
		value string
	}{
		{"SESSION_TURN_BUDGET", "abc"},
		{"SESSION_TURN_BUDGET", "0"},
		{"SESSION_TURN_BUDGET", "-3"},
		{"SESSION_MODERATOR_EVERY", "-1"},
		{"GENERATOR_RETRY_LIMIT", "-1"},
		{"GENERATOR_TIMEOUT", "500ms"},
		{"GENERATOR_TIMEOUT", "soon"},
		{"WS_SEND_BUFFER", "0"},
		{"APP_ALLOW_ANY_ORIGIN", "maybe"},
	}
	for _, tc := range cases {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", tc.key, tc.value)
			}
		})
	}
}
