package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the chat relay.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	LogLevel  string
	LogFormat string

	TypingTimeout   time.Duration
	CallRingTimeout time.Duration
	WSSendBuffer    int

	DatabaseURL string
	BadgerPath  string

	PersistWorkers int
	PersistQueue   int
	PersistTimeout time.Duration

	MessageLedgerCapacity int
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:              envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:      envOrDefault("APP_METRICS_NAMESPACE", "chatrelay"),
		AllowAnyOrigin:        false,
		LogLevel:              envOrDefault("APP_LOG_LEVEL", "info"),
		LogFormat:             envOrDefault("APP_LOG_FORMAT", "text"),
		DatabaseURL:           stringsTrimSpace("DATABASE_URL"),
		BadgerPath:            stringsTrimSpace("BADGER_PATH"),
		ShutdownTimeout:       15 * time.Second,
		TypingTimeout:         3 * time.Second,
		CallRingTimeout:       0,
		WSSendBuffer:          256,
		PersistWorkers:        4,
		PersistQueue:          1024,
		PersistTimeout:        5 * time.Second,
		MessageLedgerCapacity: 10000,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.TypingTimeout, err = durationFromEnv("TYPING_TIMEOUT", cfg.TypingTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.CallRingTimeout, err = durationFromEnv("CALL_RING_TIMEOUT", cfg.CallRingTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.WSSendBuffer, err = intFromEnv("WS_SEND_BUFFER", cfg.WSSendBuffer)
	if err != nil {
		return Config{}, err
	}
	cfg.PersistWorkers, err = intFromEnv("PERSIST_WORKERS", cfg.PersistWorkers)
	if err != nil {
		return Config{}, err
	}
	cfg.PersistQueue, err = intFromEnv("PERSIST_QUEUE", cfg.PersistQueue)
	if err != nil {
		return Config{}, err
	}
	cfg.PersistTimeout, err = durationFromEnv("PERSIST_TIMEOUT", cfg.PersistTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.MessageLedgerCapacity, err = intFromEnv("MESSAGE_LEDGER_CAPACITY", cfg.MessageLedgerCapacity)
	if err != nil {
		return Config{}, err
	}

	if cfg.TypingTimeout <= 0 {
		return Config{}, fmt.Errorf("TYPING_TIMEOUT must be positive")
	}
	if cfg.CallRingTimeout < 0 {
		return Config{}, fmt.Errorf("CALL_RING_TIMEOUT must be >= 0")
	}
	if cfg.WSSendBuffer <= 0 {
		return Config{}, fmt.Errorf("WS_SEND_BUFFER must be positive")
	}
	if cfg.PersistWorkers <= 0 {
		return Config{}, fmt.Errorf("PERSIST_WORKERS must be positive")
	}
	if cfg.PersistQueue <= 0 {
		return Config{}, fmt.Errorf("PERSIST_QUEUE must be positive")
	}
	if cfg.PersistTimeout <= 0 {
		return Config{}, fmt.Errorf("PERSIST_TIMEOUT must be positive")
	}
	if cfg.MessageLedgerCapacity <= 0 {
		return Config{}, fmt.Errorf("MESSAGE_LEDGER_CAPACITY must be positive")
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "text", "json":
	default:
		return Config{}, fmt.Errorf("APP_LOG_FORMAT must be text or json")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
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
	v := stringsTrimSpace(key)
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
	v := strings.ToLower(stringsTrimSpace(key))
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
