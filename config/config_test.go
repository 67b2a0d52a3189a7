package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validYAML = `
database:
  path: "/var/lib/library/library.db"
  busy_timeout: "2s"
  retry_attempts: 8
  retry_base_delay: "5ms"

circulation:
  loan_days: 21
  fee_per_day_cents: 50

http:
  host: "127.0.0.1"
  port: 9090
  read_timeout: "5s"

log:
  level: "debug"
  format: "text"
`

func TestLoadValidYAML(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeYAML(t, validYAML))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/library/library.db", cfg.Database.Path)
	assert.Equal(t, 2*time.Second, cfg.Database.BusyTimeout)
	assert.Equal(t, 8, cfg.Database.RetryAttempts)
	assert.Equal(t, 5*time.Millisecond, cfg.Database.RetryBaseDelay)
	assert.Equal(t, 21*24*time.Hour, cfg.Circulation.LoanPeriod())
	assert.Equal(t, int64(50), cfg.Circulation.FeePerDayCents)
	assert.Equal(t, "127.0.0.1", cfg.HTTP.Host)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, 5*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.HTTP.WriteTimeout, "unset keys take defaults")
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "library.db", cfg.Database.Path)
	assert.Equal(t, 5*time.Second, cfg.Database.BusyTimeout)
	assert.Equal(t, 5, cfg.Database.RetryAttempts)
	assert.Equal(t, 14, cfg.Circulation.LoanDays)
	assert.Equal(t, int64(100), cfg.Circulation.FeePerDayCents)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Empty(t, cfg.HTTP.AdminKeyHash)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeYAML(t, validYAML))
	t.Setenv("LIBRARY_LOAN_DAYS", "7")
	t.Setenv("HTTP_PORT", "7070")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Circulation.LoanDays)
	assert.Equal(t, 7070, cfg.HTTP.Port)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	valid := func() Config {
		return Config{
			Database:    DatabaseConfig{Path: "x.db", RetryAttempts: 5},
			Circulation: CirculationConfig{LoanDays: 14, FeePerDayCents: 100},
			HTTP:        HTTPConfig{Port: 8080, AdminKeyHash: string(hash)},
			Log:         LogConfig{Level: "info", Format: "json"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"empty path", func(c *Config) { c.Database.Path = " " }, "database.path"},
		{"no retries", func(c *Config) { c.Database.RetryAttempts = 0 }, "retry_attempts"},
		{"zero loan days", func(c *Config) { c.Circulation.LoanDays = 0 }, "loan_days"},
		{"negative fee", func(c *Config) { c.Circulation.FeePerDayCents = -1 }, "fee_per_day_cents"},
		{"bad port", func(c *Config) { c.HTTP.Port = 70000 }, "http.port"},
		{"plaintext admin key", func(c *Config) { c.HTTP.AdminKeyHash = "s3cret" }, "admin_key_hash"},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("dropped")
	logger.Warn("kept", "book_id", "b1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, jsoniter.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "b1", entry["book_id"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel(" Debug ").String())
	assert.Equal(t, "ERROR", parseLevel("error").String())
	assert.Equal(t, "INFO", parseLevel("nonsense").String())
}
