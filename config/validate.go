package config

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Validate checks the loaded configuration. Load calls it automatically.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Database.RetryAttempts < 1 {
		return fmt.Errorf("database.retry_attempts must be >= 1 (got %d)", c.Database.RetryAttempts)
	}
	if c.Database.BusyTimeout < 0 || c.Database.RetryBaseDelay < 0 {
		return fmt.Errorf("database timeouts must not be negative")
	}

	if c.Circulation.LoanDays < 1 {
		return fmt.Errorf("circulation.loan_days must be >= 1 (got %d)", c.Circulation.LoanDays)
	}
	if c.Circulation.FeePerDayCents < 0 {
		return fmt.Errorf("circulation.fee_per_day_cents must be >= 0 (got %d)", c.Circulation.FeePerDayCents)
	}

	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port out of range (got %d)", c.HTTP.Port)
	}
	if c.HTTP.AdminKeyHash != "" {
		if _, err := bcrypt.Cost([]byte(c.HTTP.AdminKeyHash)); err != nil {
			return fmt.Errorf("http.admin_key_hash is not a bcrypt hash: %w", err)
		}
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text (got %q)", c.Log.Format)
	}
	return nil
}
