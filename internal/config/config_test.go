package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// setEnv sets an environment variable, ignoring errors (for test setup)
func setEnv(key, value string) {
	_ = os.Setenv(key, value)
}

// unsetEnv unsets an environment variable, ignoring errors (for test cleanup)
func unsetEnv(key string) {
	_ = os.Unsetenv(key)
}

var envVars = []string{
	"JOURNAL_DIR", "DB_PATH", "LOG_LEVEL", "LOG_FORMAT", "LOG_FILE", "API_PORT", "DEVICE_ID",
	"RETRY_MAX_ATTEMPTS", "RETRY_INITIAL_INTERVAL", "RETRY_MAX_INTERVAL",
	"TOMBSTONE_TTL", "PARSE_WORKERS", "READING_WPM",
}

// isolateEnv clears the config variables and moves to a directory without a
// .env file for the duration of the test.
func isolateEnv(t *testing.T) {
	t.Helper()
	originalEnv := make(map[string]string)
	for _, key := range envVars {
		originalEnv[key] = os.Getenv(key)
		unsetEnv(key)
	}
	originalWd, _ := os.Getwd()
	_ = os.Chdir(t.TempDir())
	t.Cleanup(func() {
		_ = os.Chdir(originalWd)
		for key, value := range originalEnv {
			if value != "" {
				setEnv(key, value)
			} else {
				unsetEnv(key)
			}
		}
	})
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		setupEnv    func(*testing.T)
		wantErr     bool
		checkConfig func(*Config) bool
	}{
		{
			name:     "default values for optional fields",
			setupEnv: func(t *testing.T) {},
			checkConfig: func(cfg *Config) bool {
				return cfg.JournalDir == "" &&
					cfg.DBPath == "./data/journal.db" &&
					cfg.LogLevel == "info" &&
					cfg.LogFormat == "text" &&
					cfg.LogFile == "" &&
					cfg.APIPort == "9000" &&
					cfg.DeviceID == "" &&
					cfg.RetryMaxAttempts == 5 &&
					cfg.RetryInitialInterval == 50*time.Millisecond &&
					cfg.RetryMaxInterval == 2*time.Second &&
					cfg.TombstoneTTL == 2160*time.Hour &&
					cfg.ParseWorkers == 4 &&
					cfg.ReadingWPM == 200
			},
		},
		{
			name: "custom values",
			setupEnv: func(t *testing.T) {
				setEnv("JOURNAL_DIR", "/srv/journal")
				setEnv("DB_PATH", filepath.Join(t.TempDir(), "custom", "db.db"))
				setEnv("LOG_FORMAT", "json")
				setEnv("DEVICE_ID", "laptop")
				setEnv("RETRY_MAX_ATTEMPTS", "9")
				setEnv("RETRY_INITIAL_INTERVAL", "10ms")
				setEnv("RETRY_MAX_INTERVAL", "1s")
				setEnv("TOMBSTONE_TTL", "0")
				setEnv("PARSE_WORKERS", "8")
				setEnv("READING_WPM", "250")
			},
			checkConfig: func(cfg *Config) bool {
				return cfg.JournalDir == "/srv/journal" &&
					filepath.Base(cfg.DBPath) == "db.db" &&
					cfg.LogFormat == "json" &&
					cfg.DeviceID == "laptop" &&
					cfg.RetryMaxAttempts == 9 &&
					cfg.RetryInitialInterval == 10*time.Millisecond &&
					cfg.RetryMaxInterval == time.Second &&
					cfg.TombstoneTTL == 0 &&
					cfg.ParseWorkers == 8 &&
					cfg.ReadingWPM == 250
			},
		},
		{
			name:     "invalid RETRY_MAX_ATTEMPTS",
			setupEnv: func(t *testing.T) { setEnv("RETRY_MAX_ATTEMPTS", "many") },
			wantErr:  true,
		},
		{
			name:     "zero RETRY_MAX_ATTEMPTS",
			setupEnv: func(t *testing.T) { setEnv("RETRY_MAX_ATTEMPTS", "0") },
			wantErr:  true,
		},
		{
			name:     "invalid RETRY_INITIAL_INTERVAL",
			setupEnv: func(t *testing.T) { setEnv("RETRY_INITIAL_INTERVAL", "fast") },
			wantErr:  true,
		},
		{
			name: "max interval below initial interval",
			setupEnv: func(t *testing.T) {
				setEnv("RETRY_INITIAL_INTERVAL", "1s")
				setEnv("RETRY_MAX_INTERVAL", "10ms")
			},
			wantErr: true,
		},
		{
			name:     "negative TOMBSTONE_TTL",
			setupEnv: func(t *testing.T) { setEnv("TOMBSTONE_TTL", "-1h") },
			wantErr:  true,
		},
		{
			name:     "zero PARSE_WORKERS",
			setupEnv: func(t *testing.T) { setEnv("PARSE_WORKERS", "0") },
			wantErr:  true,
		},
		{
			name:     "invalid READING_WPM",
			setupEnv: func(t *testing.T) { setEnv("READING_WPM", "fast") },
			wantErr:  true,
		},
		{
			name:     "unknown LOG_FORMAT",
			setupEnv: func(t *testing.T) { setEnv("LOG_FORMAT", "xml") },
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateEnv(t)
			tt.setupEnv(t)

			cfg, err := Load()

			if tt.wantErr {
				if err == nil {
					t.Errorf("Load() expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Errorf("Load() unexpected error: %v", err)
				return
			}

			if cfg == nil {
				t.Fatal("Load() returned nil config")
			}

			if tt.checkConfig != nil && !tt.checkConfig(cfg) {
				t.Errorf("Load() config validation failed: %+v", cfg)
			}
		})
	}
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	isolateEnv(t)

	wd, _ := os.Getwd()
	if err := os.WriteFile(filepath.Join(wd, ".env"), []byte("JOURNAL_DIR=/from/dotenv\nAPI_PORT=9100\n"), 0644); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	setEnv("API_PORT", "9200")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.JournalDir != "/from/dotenv" {
		t.Errorf("JournalDir = %q, want /from/dotenv", cfg.JournalDir)
	}
	if cfg.APIPort != "9200" {
		t.Errorf("APIPort = %q, want environment value 9200", cfg.APIPort)
	}
}

func TestLoad_CreatesDataDirectory(t *testing.T) {
	isolateEnv(t)

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test", "db.db")
	setEnv("DB_PATH", dbPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	dir := filepath.Dir(dbPath)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Errorf("Load() should create data directory: %v", err)
	}

	if cfg.DBPath != dbPath {
		t.Errorf("Load() DBPath = %v, want %v", cfg.DBPath, dbPath)
	}
}

func TestRequireJournalDir(t *testing.T) {
	if err := (&Config{}).RequireJournalDir(); err == nil {
		t.Error("RequireJournalDir() expected error for empty JOURNAL_DIR")
	}
	if err := (&Config{JournalDir: "/j"}).RequireJournalDir(); err != nil {
		t.Errorf("RequireJournalDir() unexpected error: %v", err)
	}
}

func TestGetEnv(t *testing.T) {
	originalValue := os.Getenv("TEST_ENV_VAR")
	defer func() {
		if originalValue != "" {
			setEnv("TEST_ENV_VAR", originalValue)
		} else {
			unsetEnv("TEST_ENV_VAR")
		}
	}()

	tests := []struct {
		name         string
		setupEnv     func()
		key          string
		defaultValue string
		want         string
	}{
		{
			name: "env var set",
			setupEnv: func() {
				setEnv("TEST_ENV_VAR", "set-value")
			},
			key:          "TEST_ENV_VAR",
			defaultValue: "default",
			want:         "set-value",
		},
		{
			name: "env var not set",
			setupEnv: func() {
				unsetEnv("TEST_ENV_VAR")
			},
			key:          "TEST_ENV_VAR",
			defaultValue: "default",
			want:         "default",
		},
		{
			name: "empty env var uses default",
			setupEnv: func() {
				setEnv("TEST_ENV_VAR", "")
			},
			key:          "TEST_ENV_VAR",
			defaultValue: "default",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setupEnv()
			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv(%q, %q) = %q, want %q", tt.key, tt.defaultValue, got, tt.want)
			}
		})
	}
}
