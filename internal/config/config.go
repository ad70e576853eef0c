package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all client configuration.
type Config struct {
	APIBaseURL  string
	LogLevel    string
	LogFormat   string
	StateDir    string
	HTTPTimeout time.Duration
	// ClockTick is the countdown recomputation interval. One second in
	// normal operation; tests shrink it.
	ClockTick time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
// It loads .env file if present but does not fail if missing.
func Load() *Config {
	_ = godotenv.Load() // Ignore error — .env is optional

	return &Config{
		APIBaseURL:  getEnv("API_BASE_URL", "http://localhost:8080/api/v1"),
		LogLevel:    getEnv("LOG_LEVEL", "warn"),
		LogFormat:   getEnv("LOG_FORMAT", "pretty"),
		StateDir:    getEnv("STATE_DIR", defaultStateDir()),
		HTTPTimeout: time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 30)) * time.Second,
		ClockTick:   time.Duration(getEnvInt("CLOCK_TICK_MS", 1000)) * time.Millisecond,
	}
}

// defaultStateDir resolves the durable state directory for tokens and cached
// results, following the XDG convention with a home-dir fallback.
func defaultStateDir() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "examcli")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".examcli"
	}
	return filepath.Join(home, ".local", "state", "examcli")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
