package config

import (
	"time"

	"github.com/mmynk/groupledger/internal/authz"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Audit backends.
const (
	AuditFile     = "file"
	AuditDatabase = "database"
)

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Audit     AuditConfig     `yaml:"audit"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Payments  PaymentsConfig  `yaml:"payments"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`

	// Roles overrides the built-in permission table. YAML only.
	Roles map[string][]string `yaml:"roles" env:"-"`
}

// PermissionTable returns the configured role table, or the built-in one
// when no roles are configured. Validate rejects tables that do not parse.
func (c *Config) PermissionTable() (authz.Table, error) {
	if len(c.Roles) == 0 {
		return authz.Default(), nil
	}
	return authz.ParseTable(c.Roles)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"             env:"SERVER_HOST"             env-default:"0.0.0.0"`
	Port            int           `yaml:"port"             env:"SERVER_PORT"             env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"30s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"SERVER_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// DatabaseConfig selects and configures the storage backend.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"             env:"DATABASE_DRIVER"             env-default:"sqlite"`
	SQLitePath      string        `yaml:"sqlite_path"        env:"DATABASE_SQLITE_PATH"        env-default:"groupledger.db"`
	DSN             string        `yaml:"dsn"                env:"DATABASE_DSN"`
	MaxConns        int32         `yaml:"max_conns"          env:"DATABASE_MAX_CONNS"          env-default:"25"`
	MinConns        int32         `yaml:"min_conns"          env:"DATABASE_MIN_CONNS"          env-default:"2"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"  env:"DATABASE_MAX_CONN_LIFETIME"  env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DATABASE_MAX_CONN_IDLE_TIME" env-default:"30m"`
	MongoURI        string        `yaml:"mongo_uri"          env:"DATABASE_MONGO_URI"`
	MongoDatabase   string        `yaml:"mongo_database"     env:"DATABASE_MONGO_DATABASE"     env-default:"groupledger"`
	Timeout         time.Duration `yaml:"timeout"            env:"DATABASE_TIMEOUT"            env-default:"10s"`
}

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" env:"AUTH_JWT_SECRET" env-required:"true"`
	JWTIssuer string        `yaml:"jwt_issuer" env:"AUTH_JWT_ISSUER" env-default:"groupledger"`
	TokenTTL  time.Duration `yaml:"token_ttl"  env:"AUTH_TOKEN_TTL"  env-default:"24h"`
}

// AuditConfig selects where audit entries are written.
type AuditConfig struct {
	Backend    string `yaml:"backend"     env:"AUDIT_BACKEND"     env-default:"file"`
	Dir        string `yaml:"dir"         env:"AUDIT_DIR"         env-default:"audit"`
	Async      bool   `yaml:"async"       env:"AUDIT_ASYNC"       env-default:"false"`
	BufferSize int    `yaml:"buffer_size" env:"AUDIT_BUFFER_SIZE" env-default:"256"`
}

// LedgerConfig holds ledger defaults.
type LedgerConfig struct {
	Currency         string `yaml:"currency"          env:"LEDGER_CURRENCY"          env-default:"INR"`
	DefaultPageLimit int    `yaml:"default_page_limit" env:"LEDGER_DEFAULT_PAGE_LIMIT" env-default:"10"`
	MaxPageLimit     int    `yaml:"max_page_limit"    env:"LEDGER_MAX_PAGE_LIMIT"    env-default:"100"`
	InitialCredits   int    `yaml:"initial_credits"   env:"LEDGER_INITIAL_CREDITS"   env-default:"1"`
}

// PaymentsConfig holds the purchase callback secret. Empty disables purchases.
type PaymentsConfig struct {
	WebhookSecret string `yaml:"webhook_secret" env:"PAYMENTS_WEBHOOK_SECRET"`
}

// BootstrapConfig seeds an admin account at startup when AdminEmail is set.
type BootstrapConfig struct {
	AdminEmail   string `yaml:"admin_email"   env:"BOOTSTRAP_ADMIN_EMAIL"`
	AdminCredits int    `yaml:"admin_credits" env:"BOOTSTRAP_ADMIN_CREDITS" env-default:"10"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"METRICS_ENABLED" env-default:"true"`
	Path    string `yaml:"path"    env:"METRICS_PATH"    env-default:"/metrics"`
}
