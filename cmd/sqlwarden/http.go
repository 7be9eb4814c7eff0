package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/guillermoBallester/sqlwarden/internal/config"
	"github.com/guillermoBallester/sqlwarden/internal/telemetry"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const shutdownTimeout = 10 * time.Second

// runHTTP serves MCP over streamable HTTP until ctx is cancelled.
func runHTTP(ctx context.Context, stop context.CancelFunc, cfg *config.Config, mcpServer *mcpserver.MCPServer, prom *telemetry.Prometheus, logger *slog.Logger) error {
	mcpHandler := mcpserver.NewStreamableHTTPServer(mcpServer)

	var handler http.Handler = newMux(mcpHandler, cfg.HTTPBearerToken, prom)
	if cfg.OTelEnabled {
		handler = otelhttp.NewHandler(handler, serviceName)
	}
	handler = recoveryMiddleware(handler, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving MCP over http", slog.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			stop()
		}
	}()

	<-ctx.Done()
	shutdownHTTP(srv, "mcp", logger)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	default:
	}
	logger.Info("shutdown complete")
	return nil
}

// newMux routes /mcp behind the bearer token. /health and /metrics stay open
// for probes and scrapers.
func newMux(mcpHandler http.Handler, token string, prom *telemetry.Prometheus) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/mcp", bearerAuthMiddleware(mcpHandler, token))
	mux.HandleFunc("/health", healthHandler)
	if prom != nil {
		mux.Handle("/metrics", prom.Handler())
	}
	return mux
}

// newMetricsServer serves /metrics and /health on a separate listener.
func newMetricsServer(addr string, prom *telemetry.Prometheus, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", prom.Handler())
	mux.HandleFunc("/health", healthHandler)
	return &http.Server{
		Addr:              addr,
		Handler:           recoveryMiddleware(mux, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func serveHTTP(srv *http.Server, name string, logger *slog.Logger, stop context.CancelFunc) {
	logger.Info("starting listener", slog.String("listener", name), slog.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("listener failed", slog.String("listener", name), slog.String("error", err.Error()))
		stop()
	}
}

func shutdownHTTP(srv *http.Server, name string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", slog.String("listener", name), slog.String("error", err.Error()))
		_ = srv.Close()
	}
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// bearerAuthMiddleware rejects requests whose Authorization header does not
// carry the expected bearer token.
func bearerAuthMiddleware(next http.Handler, token string) http.Handler {
	expected := []byte(token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scheme, got, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") ||
			subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="sqlwarden"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func recoveryMiddleware(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.ErrorContext(r.Context(), "panic in http handler",
					slog.String("http.route", r.URL.Path),
					slog.Any("panic", rec),
				)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
