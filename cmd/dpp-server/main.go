// Command dpp-server serves a passport registry over HTTP.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/kilupskalvis/dpp/internal/host"
	"github.com/kilupskalvis/dpp/internal/passport"
	"github.com/kilupskalvis/dpp/internal/remote/server"
	"github.com/kilupskalvis/dpp/internal/store"
)

func main() {
	listen := flag.String("listen", envOrDefault("DPP_LISTEN", "0.0.0.0:8730"), "Listen address")
	dataDir := flag.String("data-dir", envOrDefault("DPP_DATA_DIR", "/var/lib/dpp-server"), "Data directory")
	backend := flag.String("store", envOrDefault("DPP_STORE", store.BackendBolt), "Store backend (bbolt, leveldb, sqlite, postgres, memory)")
	dsn := flag.String("pg-dsn", os.Getenv("DPP_PG_DSN"), "Postgres connection string")
	counterKind := flag.String("counter", envOrDefault("DPP_COUNTER", "clock"), "Call counter (clock, sequence)")
	jwtSecret := flag.String("jwt-secret", os.Getenv("DPP_JWT_SECRET"), "HS256 secret for caller tokens")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "Default lifetime of issued caller tokens")
	adminToken := flag.String("admin-token", os.Getenv("DPP_ADMIN_TOKEN"), "Admin API token")
	rateLimit := flag.Float64("rate-limit", envFloat("DPP_RATE_LIMIT", 10), "Requests per second per client (0 disables)")
	logLevel := flag.String("log-level", envOrDefault("DPP_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", envOrDefault("DPP_LOG_FORMAT", "json"), "Log format (json, text)")
	tlsCert := flag.String("tls-cert", os.Getenv("DPP_TLS_CERT"), "TLS certificate file")
	tlsKey := flag.String("tls-key", os.Getenv("DPP_TLS_KEY"), "TLS key file")
	webhookURLs := flag.String("webhook-urls", os.Getenv("DPP_WEBHOOK_URLS"), "Comma-separated webhook URLs to notify on registry events")
	flag.Parse()

	// Setup logger
	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if *logFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	// Validate data dir
	if err := os.MkdirAll(*dataDir, 0755); err != nil {
		logger.Error("failed to create data directory", "error", err, "path", *dataDir)
		os.Exit(1)
	}

	st, err := store.Open(context.Background(), store.Options{
		Backend: *backend,
		Path:    storePath(*dataDir, *backend),
		DSN:     *dsn,
	})
	if err != nil {
		logger.Error("failed to open store", "error", err, "backend", *backend)
		os.Exit(1)
	}
	defer st.Close()

	var counter host.Counter
	switch *counterKind {
	case "sequence":
		counter = host.NewSequencer(st)
	case "clock":
		counter = host.NewClock()
	default:
		logger.Error("unknown counter", "counter", *counterKind)
		os.Exit(1)
	}

	// Webhooks
	var notifier *server.WebhookNotifier
	if *webhookURLs != "" {
		var trimmed []string
		for _, u := range strings.Split(*webhookURLs, ",") {
			u = strings.TrimSpace(u)
			if u != "" {
				trimmed = append(trimmed, u)
			}
		}
		notifier = server.NewWebhookNotifier(&server.WebhookConfig{URLs: trimmed}, logger)
		if notifier != nil {
			logger.Info("webhooks configured", "count", len(trimmed))
		}
	}

	regOpts := []passport.Option{passport.WithLogger(logger)}
	if notifier != nil {
		regOpts = append(regOpts, passport.WithNotifier(notifier))
	}
	reg := passport.New(st, regOpts...)
	if err := reg.Migrate(context.Background()); err != nil {
		logger.Error("failed to migrate store", "error", err)
		os.Exit(1)
	}

	// Server config
	cfg := server.DefaultServerConfig()
	cfg.AdminToken = *adminToken
	cfg.RequestsPerSecond = *rateLimit
	if *jwtSecret != "" {
		tokens, err := server.NewTokenIssuer(*jwtSecret, *tokenTTL)
		if err != nil {
			logger.Error("invalid jwt secret", "error", err)
			os.Exit(1)
		}
		cfg.Tokens = tokens
	} else {
		logger.Warn("DPP_JWT_SECRET not set, all writes will be rejected")
	}

	// Handler
	h, handlerCleanup := server.Handler(reg, counter, cfg, logger)
	defer handlerCleanup()

	// HTTP server
	srv := &http.Server{
		Addr:         *listen,
		Handler:      h,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(_ net.Listener) context.Context { return context.Background() },
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("starting dpp-server", "listen", *listen, "data_dir", *dataDir, "store", *backend, "counter", *counterKind)
		var err error
		if *tlsCert != "" && *tlsKey != "" {
			err = srv.ListenAndServeTLS(*tlsCert, *tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down...")
	handlerCleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	notifier.Wait()
	logger.Info("server stopped")
}

func storePath(dataDir, backend string) string {
	switch backend {
	case store.BackendLevelDB:
		return filepath.Join(dataDir, "leveldb")
	case store.BackendSQLite:
		return filepath.Join(dataDir, "dpp.sqlite")
	}
	return filepath.Join(dataDir, "dpp.db")
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
