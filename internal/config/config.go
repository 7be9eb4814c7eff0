// Package config resolves server settings from environment variables and CLI
// flags. Flags win over the environment; defaults fill the rest.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/guillermoBallester/sqlwarden/internal/core/domain"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
	DriverDuckDB   = "duckdb"
)

// Supported MCP transports.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

type Config struct {
	// Database.
	DatabaseURL  string
	Driver       string // detected from DatabaseURL when unset
	ReadOnly     bool
	MaxRows      int
	QueryTimeout time.Duration
	Schemas      []string // empty means all non-system schemas
	PolicyFile   string

	LogLevel slog.Level

	// Transport.
	Transport       string
	HTTPAddr        string
	HTTPBearerToken string // required when Transport is http

	// Connection pool. The database/sql engines map min conns to idle conns.
	PoolMaxConns        int32
	PoolMinConns        int32
	PoolMaxConnLifetime time.Duration

	// Observability.
	OTelEnabled bool
	MetricsAddr string // standalone Prometheus listener; empty disables it

	// AuditLog is the NDJSON audit file. Flag only.
	AuditLog string

	// Warnings collects fallbacks applied while loading, for the caller to log
	// once a logger exists.
	Warnings []string
}

// Overrides carries CLI flag values. A nil pointer means the flag was not set.
type Overrides struct {
	DatabaseURL     *string
	Driver          *string
	ReadOnly        *bool
	LogLevel        *string
	MaxRows         *int
	QueryTimeout    *time.Duration
	PolicyFile      *string
	Transport       *string
	HTTPAddr        *string
	HTTPBearerToken *string
	MetricsAddr     *string
	OTelEnabled     bool
	AuditLog        string

	PoolMaxConns        *int32
	PoolMinConns        *int32
	PoolMaxConnLifetime *time.Duration
}

// Load reads the environment, applies overrides, detects the driver and
// validates the result.
func Load(overrides Overrides) (*Config, error) {
	cfg := defaults()

	if err := cfg.fromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.apply(overrides); err != nil {
		return nil, err
	}
	if cfg.Driver == "" {
		cfg.Driver = DetectDriver(cfg.DatabaseURL)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		ReadOnly:            true,
		MaxRows:             domain.DefaultMaxRecordCount,
		QueryTimeout:        10 * time.Second,
		Transport:           TransportStdio,
		HTTPAddr:            ":8080",
		PoolMaxConns:        5,
		PoolMinConns:        1,
		PoolMaxConnLifetime: 30 * time.Minute,
	}
}

func (c *Config) fromEnv() error {
	c.DatabaseURL = os.Getenv("DATABASE_URL")
	c.PolicyFile = os.Getenv("POLICY_FILE")
	c.HTTPBearerToken = os.Getenv("HTTP_BEARER_TOKEN")
	c.MetricsAddr = os.Getenv("METRICS_ADDR")
	if v := os.Getenv("DB_DRIVER"); v != "" {
		c.Driver = normalizeDriver(v)
	}
	if v := os.Getenv("TRANSPORT"); v != "" {
		c.Transport = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}
	if v := os.Getenv("SCHEMAS"); v != "" {
		c.Schemas = splitList(v)
	}

	// An unusable row cap is not fatal: the default applies and the
	// operator is told at startup.
	if v := os.Getenv("MAX_ROWS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			c.MaxRows = n
		} else {
			c.Warnings = append(c.Warnings, fmt.Sprintf("invalid MAX_ROWS value %q: using default of %d", v, c.MaxRows))
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return err
		}
		c.LogLevel = level
	}

	for _, fn := range []func() error{
		func() error { return envBool("READ_ONLY", &c.ReadOnly) },
		func() error { return envBool("OTEL_ENABLED", &c.OTelEnabled) },
		func() error { return envDuration("QUERY_TIMEOUT", &c.QueryTimeout) },
		func() error { return envDuration("POOL_MAX_CONN_LIFETIME", &c.PoolMaxConnLifetime) },
		func() error { return envInt32("POOL_MAX_CONNS", 1, &c.PoolMaxConns) },
		func() error { return envInt32("POOL_MIN_CONNS", 0, &c.PoolMinConns) },
	} {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) apply(o Overrides) error {
	if o.MaxRows != nil && *o.MaxRows <= 0 {
		return fmt.Errorf("invalid --max-rows value: must be a positive integer")
	}
	if o.PoolMaxConns != nil && *o.PoolMaxConns <= 0 {
		return fmt.Errorf("invalid --pool-max-conns value: must be a positive integer")
	}
	if o.PoolMinConns != nil && *o.PoolMinConns < 0 {
		return fmt.Errorf("invalid --pool-min-conns value: must be a non-negative integer")
	}
	if o.LogLevel != nil {
		level, err := parseLogLevel(*o.LogLevel)
		if err != nil {
			return err
		}
		c.LogLevel = level
	}
	if o.Driver != nil {
		c.Driver = normalizeDriver(*o.Driver)
	}

	override(&c.DatabaseURL, o.DatabaseURL)
	override(&c.ReadOnly, o.ReadOnly)
	override(&c.MaxRows, o.MaxRows)
	override(&c.QueryTimeout, o.QueryTimeout)
	override(&c.PolicyFile, o.PolicyFile)
	override(&c.Transport, o.Transport)
	override(&c.HTTPAddr, o.HTTPAddr)
	override(&c.HTTPBearerToken, o.HTTPBearerToken)
	override(&c.MetricsAddr, o.MetricsAddr)
	override(&c.PoolMaxConns, o.PoolMaxConns)
	override(&c.PoolMinConns, o.PoolMinConns)
	override(&c.PoolMaxConnLifetime, o.PoolMaxConnLifetime)

	c.AuditLog = o.AuditLog
	c.OTelEnabled = c.OTelEnabled || o.OTelEnabled
	return nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required (set via env var or --database-url flag)")
	}

	switch c.Driver {
	case DriverPostgres, DriverMySQL, DriverSQLite, DriverDuckDB:
	default:
		return fmt.Errorf("invalid DB_DRIVER value %q: must be %s, %s, %s or %s", c.Driver, DriverPostgres, DriverMySQL, DriverSQLite, DriverDuckDB)
	}

	if c.QueryTimeout <= 0 {
		return fmt.Errorf("QUERY_TIMEOUT must be positive, got %s", c.QueryTimeout)
	}

	switch c.Transport {
	case TransportStdio:
	case TransportHTTP:
		if c.HTTPBearerToken == "" {
			return fmt.Errorf("HTTP_BEARER_TOKEN is required when transport is %q (set via env var or --http-bearer-token flag)", TransportHTTP)
		}
	default:
		return fmt.Errorf("invalid TRANSPORT value %q: must be %q or %q", c.Transport, TransportStdio, TransportHTTP)
	}

	if c.PoolMinConns > c.PoolMaxConns {
		return fmt.Errorf("POOL_MIN_CONNS (%d) must not exceed POOL_MAX_CONNS (%d)", c.PoolMinConns, c.PoolMaxConns)
	}
	return nil
}

// DetectDriver infers the driver from a database URL. Native MySQL DSNs
// (user:pass@tcp(host)/db) and bare file paths are recognised; anything else
// is assumed to be PostgreSQL.
func DetectDriver(databaseURL string) string {
	u := strings.ToLower(databaseURL)
	switch {
	case strings.HasPrefix(u, "mysql://"), strings.Contains(u, "@tcp("), strings.Contains(u, "@unix("):
		return DriverMySQL
	case strings.HasPrefix(u, "sqlite://"), strings.HasPrefix(u, "file:"), u == ":memory:",
		strings.HasSuffix(u, ".db"), strings.HasSuffix(u, ".sqlite"), strings.HasSuffix(u, ".sqlite3"):
		return DriverSQLite
	case strings.HasPrefix(u, "duckdb://"), strings.HasSuffix(u, ".duckdb"):
		return DriverDuckDB
	default:
		return DriverPostgres
	}
}

func override[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	*dst = b
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	*dst = d
	return nil
}

func envInt32(key string, minimum int64, dst *int32) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil || n < minimum {
		return fmt.Errorf("invalid %s value %q: must be an integer >= %d", key, v, minimum)
	}
	*dst = int32(n)
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func normalizeDriver(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL value %q: must be debug, info, warn, or error", s)
	}
}
