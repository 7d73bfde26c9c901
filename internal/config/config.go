package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the conversation session service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	DatabaseURL string

	GeneratorMode    string
	GeneratorHTTPURL string
	GenerateTimeout  time.Duration

	TurnBudget       int
	ModeratorEvery   int
	RetryLimit       int
	RetryBackoffBase time.Duration
	RetryBackoffCap  time.Duration

	SendBuffer int

	MatchServiceURL string

	JWTSecret string
	JWTIssuer string
	DevTokens string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "amora"),
		AllowAnyOrigin:   false,
		DatabaseURL:      envTrimmed("DATABASE_URL"),
		GeneratorMode:    envOrDefault("GENERATOR_MODE", "auto"),
		GeneratorHTTPURL: envTrimmed("GENERATOR_HTTP_URL"),
		MatchServiceURL:  envTrimmed("MATCH_SERVICE_URL"),
		JWTSecret:        envTrimmed("AMORA_JWT_SECRET"),
		JWTIssuer:        envOrDefault("AMORA_JWT_ISSUER", "amora-auth"),
		// Development fallback; the auth service issues real tokens.
		DevTokens:        envOrDefault("AMORA_DEV_TOKENS", "dev:anonymous"),
		ShutdownTimeout:  15 * time.Second,
		GenerateTimeout:  30 * time.Second,
		TurnBudget:       24,
		ModeratorEvery:   5,
		RetryLimit:       2,
		RetryBackoffBase: 250 * time.Millisecond,
		RetryBackoffCap:  4 * time.Second,
		SendBuffer:       64,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.GenerateTimeout, err = durationFromEnv("GENERATOR_TIMEOUT", cfg.GenerateTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.RetryBackoffBase, err = durationFromEnv("GENERATOR_RETRY_BACKOFF_BASE", cfg.RetryBackoffBase)
	if err != nil {
		return Config{}, err
	}
	cfg.RetryBackoffCap, err = durationFromEnv("GENERATOR_RETRY_BACKOFF_CAP", cfg.RetryBackoffCap)
	if err != nil {
		return Config{}, err
	}
	cfg.TurnBudget, err = intFromEnv("SESSION_TURN_BUDGET", cfg.TurnBudget)
	if err != nil {
		return Config{}, err
	}
	cfg.ModeratorEvery, err = intFromEnv("SESSION_MODERATOR_EVERY", cfg.ModeratorEvery)
	if err != nil {
		return Config{}, err
	}
	cfg.RetryLimit, err = intFromEnv("GENERATOR_RETRY_LIMIT", cfg.RetryLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.SendBuffer, err = intFromEnv("WS_SEND_BUFFER", cfg.SendBuffer)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.TurnBudget <= 0 {
		return Config{}, fmt.Errorf("SESSION_TURN_BUDGET must be positive")
	}
	if cfg.ModeratorEvery < 0 {
		return Config{}, fmt.Errorf("SESSION_MODERATOR_EVERY must be >= 0")
	}
	if cfg.RetryLimit < 0 {
		return Config{}, fmt.Errorf("GENERATOR_RETRY_LIMIT must be >= 0")
	}
	if cfg.GenerateTimeout < time.Second {
		return Config{}, fmt.Errorf("GENERATOR_TIMEOUT must be at least 1s")
	}
	if cfg.SendBuffer <= 0 {
		return Config{}, fmt.Errorf("WS_SEND_BUFFER must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(envTrimmed(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
