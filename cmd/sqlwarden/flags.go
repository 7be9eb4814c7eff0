package main

import (
	"time"

	"github.com/guillermoBallester/sqlwarden/internal/config"
	"github.com/spf13/pflag"
)

// serveFlags holds raw flag values. Only flags the user actually set become
// overrides; the rest fall through to environment variables and defaults.
type serveFlags struct {
	fs *pflag.FlagSet

	databaseURL         string
	driver              string
	readOnly            bool
	maxRows             int
	queryTimeout        time.Duration
	logLevel            string
	policyFile          string
	transport           string
	httpAddr            string
	httpBearerToken     string
	metricsAddr         string
	otel                bool
	auditLog            string
	poolMaxConns        int32
	poolMinConns        int32
	poolMaxConnLifetime time.Duration
}

func (f *serveFlags) register(fs *pflag.FlagSet) {
	f.fs = fs
	fs.StringVar(&f.databaseURL, "database-url", "", "Database connection URL (env: DATABASE_URL)")
	fs.StringVar(&f.driver, "driver", "", "Database driver: postgres, mysql, sqlite or duckdb (env: DB_DRIVER; detected from the URL when unset)")
	fs.BoolVar(&f.readOnly, "read-only", true, "Refuse write tools (env: READ_ONLY)")
	fs.IntVar(&f.maxRows, "max-rows", 0, "Maximum rows returned by read_data (env: MAX_ROWS)")
	fs.DurationVar(&f.queryTimeout, "query-timeout", 0, "Per-query timeout (env: QUERY_TIMEOUT)")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn or error (env: LOG_LEVEL)")
	fs.StringVar(&f.policyFile, "policy-file", "", "Policy YAML with descriptions, masks and extra denylist keywords (env: POLICY_FILE)")
	fs.StringVar(&f.transport, "transport", "", "Transport: stdio or http (env: TRANSPORT)")
	fs.StringVar(&f.httpAddr, "http-addr", "", "Listen address for the http transport (env: HTTP_ADDR)")
	fs.StringVar(&f.httpBearerToken, "http-bearer-token", "", "Bearer token required by the http transport (env: HTTP_BEARER_TOKEN)")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve /metrics and /health on this address (env: METRICS_ADDR)")
	fs.BoolVar(&f.otel, "otel", false, "Enable OpenTelemetry tracing and metrics (env: OTEL_ENABLED)")
	fs.StringVar(&f.auditLog, "audit-log", "", "Append an NDJSON audit record per tool call to this file")
	fs.Int32Var(&f.poolMaxConns, "pool-max-conns", 0, "Maximum open connections (env: POOL_MAX_CONNS)")
	fs.Int32Var(&f.poolMinConns, "pool-min-conns", 0, "Minimum idle connections (env: POOL_MIN_CONNS)")
	fs.DurationVar(&f.poolMaxConnLifetime, "pool-max-conn-lifetime", 0, "Maximum connection lifetime (env: POOL_MAX_CONN_LIFETIME)")
}

// overrides converts the flags the user set into config overrides.
func (f *serveFlags) overrides() config.Overrides {
	o := config.Overrides{
		OTelEnabled: f.otel,
		AuditLog:    f.auditLog,
	}
	set := func(name string) bool { return f.fs != nil && f.fs.Changed(name) }

	if set("database-url") {
		o.DatabaseURL = &f.databaseURL
	}
	if set("driver") {
		o.Driver = &f.driver
	}
	if set("read-only") {
		o.ReadOnly = &f.readOnly
	}
	if set("max-rows") {
		o.MaxRows = &f.maxRows
	}
	if set("query-timeout") {
		o.QueryTimeout = &f.queryTimeout
	}
	if set("log-level") {
		o.LogLevel = &f.logLevel
	}
	if set("policy-file") {
		o.PolicyFile = &f.policyFile
	}
	if set("transport") {
		o.Transport = &f.transport
	}
	if set("http-addr") {
		o.HTTPAddr = &f.httpAddr
	}
	if set("http-bearer-token") {
		o.HTTPBearerToken = &f.httpBearerToken
	}
	if set("metrics-addr") {
		o.MetricsAddr = &f.metricsAddr
	}
	if set("pool-max-conns") {
		o.PoolMaxConns = &f.poolMaxConns
	}
	if set("pool-min-conns") {
		o.PoolMinConns = &f.poolMinConns
	}
	if set("pool-max-conn-lifetime") {
		o.PoolMaxConnLifetime = &f.poolMaxConnLifetime
	}
	return o
}

// parseFlags parses args against a fresh flag set and returns the overrides.
func parseFlags(args []string) (config.Overrides, error) {
	f := &serveFlags{}
	fs := pflag.NewFlagSet("sqlwarden", pflag.ContinueOnError)
	f.register(fs)
	if err := fs.Parse(args); err != nil {
		return config.Overrides{}, err
	}
	return f.overrides(), nil
}
