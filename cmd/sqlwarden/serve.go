package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/guillermoBallester/sqlwarden/internal/adapter/mcp"
	"github.com/guillermoBallester/sqlwarden/internal/adapter/policy"
	"github.com/guillermoBallester/sqlwarden/internal/adapter/postgres"
	"github.com/guillermoBallester/sqlwarden/internal/adapter/sqldb"
	"github.com/guillermoBallester/sqlwarden/internal/audit"
	"github.com/guillermoBallester/sqlwarden/internal/config"
	"github.com/guillermoBallester/sqlwarden/internal/core/domain"
	"github.com/guillermoBallester/sqlwarden/internal/core/port"
	"github.com/guillermoBallester/sqlwarden/internal/core/service"
	"github.com/guillermoBallester/sqlwarden/internal/telemetry"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "sqlwarden"

// backend is the set of adapters for one database engine.
type backend struct {
	system   string
	explorer port.SchemaExplorer
	executor port.QueryExecutor
	writer   port.TableWriter
	close    func()
}

func runServe(cmd *cobra.Command, flags *serveFlags) error {
	cfg, err := config.Load(flags.overrides())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Logs go to stderr; stdout is reserved for the MCP stdio transport.
	logger := newLogger(os.Stderr, cfg.LogLevel)
	for _, w := range cfg.Warnings {
		logger.Warn("config fallback", slog.String("detail", w))
	}

	logger.Info("starting sqlwarden",
		slog.String("version", version),
		slog.String("db.system", cfg.Driver),
		slog.String("database_url", redactDSN(cfg.DatabaseURL)),
		slog.String("log_level", cfg.LogLevel.String()),
		slog.Bool("read_only", cfg.ReadOnly),
		slog.Int("max_rows", cfg.MaxRows),
		slog.String("query_timeout", cfg.QueryTimeout.String()),
		slog.String("transport", cfg.Transport),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracer, inst, prom, shutdownTelemetry, err := setupTelemetry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer shutdownTelemetry()

	be, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer be.close()
	logger.Info("database connected", slog.String("db.system", be.system))

	// Policy decorator (optional).
	var (
		explorer = be.explorer
		masks    domain.ColumnMasks
		pol      *policy.Policy
	)
	if cfg.PolicyFile != "" {
		pol, err = policy.LoadFromFile(cfg.PolicyFile)
		if err != nil {
			return fmt.Errorf("loading policy: %w", err)
		}
		explorer = policy.NewPolicyExplorer(explorer, pol)
		masks = policy.MaskSpec(pol.Context)
		logger.Info("policy loaded",
			slog.String("file", cfg.PolicyFile),
			slog.Int("masked_columns", len(masks)),
			slog.Int("extra_keywords", len(pol.Denylist.Keywords)),
		)
	}
	patterns, err := pol.PatternTable()
	if err != nil {
		return fmt.Errorf("building pattern table: %w", err)
	}

	var auditor port.QueryAuditor = port.NoopAuditor{}
	if cfg.AuditLog != "" {
		fa, err := audit.NewFileAuditor(cfg.AuditLog)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		defer func() {
			if err := fa.Close(); err != nil {
				logger.Error("closing audit log", slog.String("error", err.Error()))
			}
		}()
		auditor = fa
		logger.Info("audit log enabled", slog.String("file", cfg.AuditLog))
	}

	// Domain
	validator := domain.NewQueryValidatorWithTable(patterns)

	// Services
	reader := service.NewBoundedReader(cfg.MaxRows, logger)
	querySvc := service.NewQueryService(validator, be.executor, reader, auditor, logger, masks, tracer, inst)
	tableSvc := service.NewTableService(explorer, be.writer, auditor, logger, cfg.ReadOnly)

	mcpServer := mcp.NewServer(version, querySvc, tableSvc, logger, tracer, inst)

	if cfg.MetricsAddr != "" {
		metricsSrv := newMetricsServer(cfg.MetricsAddr, prom, logger)
		go serveHTTP(metricsSrv, "metrics", logger, stop)
		defer shutdownHTTP(metricsSrv, "metrics", logger)
	}

	switch cfg.Transport {
	case config.TransportHTTP:
		return runHTTP(ctx, stop, cfg, mcpServer, prom, logger)
	default:
		// Run MCP over stdio (stdin/stdout).
		stdioServer := mcpserver.NewStdioServer(mcpServer)
		logger.Info("serving MCP over stdio")
		if err := stdioServer.Listen(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
			return fmt.Errorf("stdio server: %w", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// setupTelemetry always creates the Prometheus registry; OTel exporters are
// added only when enabled. The returned func flushes them.
func setupTelemetry(ctx context.Context, cfg *config.Config, logger *slog.Logger) (trace.Tracer, port.Instrumentation, *telemetry.Prometheus, func(), error) {
	prom := telemetry.NewPrometheus()
	if !cfg.OTelEnabled {
		return telemetry.NoopTracer(), prom, prom, func() {}, nil
	}

	provider, err := telemetry.Init(ctx, telemetry.Options{
		ServiceName: serviceName,
		Version:     version,
		DBSystem:    cfg.Driver,
	})
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("initializing telemetry: %w", err)
	}
	logger.Info("opentelemetry enabled")

	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown", slog.String("error", err.Error()))
		}
	}
	return provider.Tracer(), telemetry.Fanout{provider.Instruments(), prom}, prom, shutdown, nil
}

// openBackend connects to the configured engine. PostgreSQL goes through pgx;
// the other engines go through database/sql dialects.
func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	if cfg.Driver == config.DriverPostgres {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolConfig{
			MaxConns:        cfg.PoolMaxConns,
			MinConns:        cfg.PoolMinConns,
			MaxConnLifetime: cfg.PoolMaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		return &backend{
			system:   "postgresql",
			explorer: postgres.NewExplorer(pool, cfg.Schemas),
			executor: postgres.NewExecutor(pool, cfg.QueryTimeout),
			writer:   postgres.NewWriter(pool, cfg.QueryTimeout),
			close:    pool.Close,
		}, nil
	}

	dialect, err := sqldb.Lookup(cfg.Driver)
	if err != nil {
		return nil, err
	}
	db, err := sqldb.Open(ctx, dialect, cfg.DatabaseURL, sqldb.PoolConfig{
		MaxOpenConns:    int(cfg.PoolMaxConns),
		MaxIdleConns:    int(cfg.PoolMinConns),
		ConnMaxLifetime: cfg.PoolMaxConnLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return &backend{
		system:   dialect.Name(),
		explorer: sqldb.NewExplorer(db, dialect, cfg.Schemas),
		executor: sqldb.NewExecutor(db, dialect, cfg.QueryTimeout),
		writer:   sqldb.NewWriter(db, dialect, cfg.QueryTimeout),
		close:    func() { _ = db.Close() },
	}, nil
}

// redactDSN hides the password of a DSN for logging. Native MySQL DSNs parse
// as opaque URLs, so everything before their '@' is hidden.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.Opaque != "" {
		if i := strings.LastIndex(dsn, "@"); i >= 0 {
			return "***" + dsn[i:]
		}
		return dsn
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
