package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	JournalDir           string
	DBPath               string
	LogLevel             string
	LogFormat            string
	LogFile              string
	APIPort              string
	DeviceID             string
	RetryMaxAttempts     int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	TombstoneTTL         time.Duration
	ParseWorkers         int
	ReadingWPM           int
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates numeric and duration values.
// If a .env file exists in the current directory or a parent, it is loaded first.
// Environment variables already set take precedence over .env file values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ {
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	cfg := &Config{
		JournalDir: getEnv("JOURNAL_DIR", ""),
		DBPath:     getEnv("DB_PATH", "./data/journal.db"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogFormat:  getEnv("LOG_FORMAT", "text"),
		LogFile:    getEnv("LOG_FILE", ""),
		APIPort:    getEnv("API_PORT", "9000"),
		DeviceID:   getEnv("DEVICE_ID", ""),
	}

	if cfg.RetryMaxAttempts, err = getInt("RETRY_MAX_ATTEMPTS", 5); err != nil {
		return nil, err
	}
	if cfg.RetryInitialInterval, err = getDuration("RETRY_INITIAL_INTERVAL", 50*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.RetryMaxInterval, err = getDuration("RETRY_MAX_INTERVAL", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.TombstoneTTL, err = getDuration("TOMBSTONE_TTL", 2160*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ParseWorkers, err = getInt("PARSE_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.ReadingWPM, err = getInt("READING_WPM", 200); err != nil {
		return nil, err
	}

	switch cfg.LogFormat {
	case "text", "json":
	default:
		return nil, fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}
	if cfg.RetryMaxAttempts < 1 {
		return nil, fmt.Errorf("RETRY_MAX_ATTEMPTS must be greater than 0")
	}
	if cfg.RetryInitialInterval <= 0 || cfg.RetryMaxInterval < cfg.RetryInitialInterval {
		return nil, fmt.Errorf("RETRY_MAX_INTERVAL must be at least RETRY_INITIAL_INTERVAL and both positive")
	}
	if cfg.TombstoneTTL < 0 {
		return nil, fmt.Errorf("TOMBSTONE_TTL must not be negative")
	}
	if cfg.ParseWorkers < 1 {
		return nil, fmt.Errorf("PARSE_WORKERS must be greater than 0")
	}
	if cfg.ReadingWPM < 1 {
		return nil, fmt.Errorf("READING_WPM must be greater than 0")
	}

	// Create the database directory if it doesn't exist
	dataDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// RequireJournalDir fails when JOURNAL_DIR is not set. Commands that scan or
// serve the journal call it; single-file commands do not need it.
func (c *Config) RequireJournalDir() error {
	if c.JournalDir == "" {
		return fmt.Errorf("JOURNAL_DIR is required")
	}
	return nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
	}
	return v, nil
}
