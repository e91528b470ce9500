package config

import (
	"fmt"
	"strings"
)

// Validate performs business-rule validation on the loaded configuration
// including the role table. Load calls it automatically.
func (c *Config) Validate() error {
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters (got %d)", len(c.Auth.JWTSecret))
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("database.sqlite_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	case DriverMongo:
		if c.Database.MongoURI == "" || c.Database.MongoDatabase == "" {
			return fmt.Errorf("database.mongo_uri and database.mongo_database are required for the mongo driver")
		}
	default:
		return fmt.Errorf("database.driver must be one of sqlite, postgres, mongo (got %q)", c.Database.Driver)
	}

	switch c.Audit.Backend {
	case AuditFile:
		if c.Audit.Dir == "" {
			return fmt.Errorf("audit.dir is required for the file backend")
		}
	case AuditDatabase:
	default:
		return fmt.Errorf("audit.backend must be file or database (got %q)", c.Audit.Backend)
	}
	if c.Audit.Async && c.Audit.BufferSize <= 0 {
		return fmt.Errorf("audit.buffer_size must be > 0 (got %d)", c.Audit.BufferSize)
	}

	if err := c.Ledger.validate(); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}

	if c.Bootstrap.AdminEmail != "" && !strings.Contains(c.Bootstrap.AdminEmail, "@") {
		return fmt.Errorf("bootstrap.admin_email is not a valid email (got %q)", c.Bootstrap.AdminEmail)
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json (got %q)", c.Log.Format)
	}

	if _, err := c.PermissionTable(); err != nil {
		return fmt.Errorf("roles: %w", err)
	}

	return nil
}

func (l *LedgerConfig) validate() error {
	if strings.TrimSpace(l.Currency) == "" {
		return fmt.Errorf("currency is required")
	}
	if l.DefaultPageLimit <= 0 {
		return fmt.Errorf("default_page_limit must be > 0 (got %d)", l.DefaultPageLimit)
	}
	if l.MaxPageLimit < l.DefaultPageLimit {
		return fmt.Errorf("max_page_limit must be >= default_page_limit (got %d < %d)", l.MaxPageLimit, l.DefaultPageLimit)
	}
	if l.InitialCredits < 0 {
		return fmt.Errorf("initial_credits must be >= 0 (got %d)", l.InitialCredits)
	}
	return nil
}

// Addr is the listen address of the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
