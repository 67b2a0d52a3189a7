package config

import "time"

// Config is the root application configuration.
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Circulation CirculationConfig `yaml:"circulation"`
	HTTP        HTTPConfig        `yaml:"http"`
	Log         LogConfig         `yaml:"log"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path           string        `yaml:"path"             env:"LIBRARY_DB_PATH"          env-default:"library.db"`
	BusyTimeout    time.Duration `yaml:"busy_timeout"     env:"LIBRARY_DB_BUSY_TIMEOUT"  env-default:"5s"`
	RetryAttempts  int           `yaml:"retry_attempts"   env:"LIBRARY_DB_RETRY_ATTEMPTS" env-default:"5"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" env:"LIBRARY_DB_RETRY_DELAY"   env-default:"10ms"`
}

// CirculationConfig holds loan rules.
type CirculationConfig struct {
	LoanDays       int   `yaml:"loan_days"         env:"LIBRARY_LOAN_DAYS"     env-default:"14"`
	FeePerDayCents int64 `yaml:"fee_per_day_cents" env:"LIBRARY_FEE_PER_DAY"   env-default:"100"`
}

// LoanPeriod is LoanDays as a duration.
func (c CirculationConfig) LoanPeriod() time.Duration {
	return time.Duration(c.LoanDays) * 24 * time.Hour
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Host            string        `yaml:"host"             env:"HTTP_HOST"             env-default:"0.0.0.0"`
	Port            int           `yaml:"port"             env:"HTTP_PORT"             env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"HTTP_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"HTTP_WRITE_TIMEOUT"    env-default:"30s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
	// AdminKeyHash is a bcrypt hash of the admin key. Empty disables admin routes.
	AdminKeyHash string `yaml:"admin_key_hash" env:"HTTP_ADMIN_KEY_HASH"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}
