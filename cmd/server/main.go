// Package main provides the entry point to the settings sync API server.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/synchub/api/internal/apierrors"
	"github.com/synchub/api/internal/config"
	"github.com/synchub/api/internal/handler"
	"github.com/synchub/api/internal/health"
	"github.com/synchub/api/internal/idempotency"
	"github.com/synchub/api/internal/metrics"
	"github.com/synchub/api/internal/server"
	"github.com/synchub/api/internal/service"
	"github.com/synchub/api/internal/store"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Initialize logger
	logger := initLogger()
	defer logger.Sync()

	logger.Info("starting sync API server")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("store_backend", cfg.Store.Backend),
	)

	// Initialize resource store
	ctx := context.Background()
	tables, err := initTables(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize resource store", zap.Error(err))
	}
	defer tables.Close()

	// Initialize services
	settings := service.NewSettingService(tables.Settings, logger)
	bookmarks := service.NewBookmarkService(tables.Bookmarks, logger)
	groups := service.NewGroupService(tables.Groups, tables.GroupMembers, logger)
	devices := service.NewDeviceService(tables.Sessions, cfg.Device.PairingTTL, logger)

	errorWriter := apierrors.NewWriter(logger)
	handlers := handler.NewHandlers(settings, bookmarks, groups, devices, errorWriter, logger)
	healthCheck := health.NewHealthCheck(tables, logger)
	defer healthCheck.Close()

	// Initialize metrics
	m := metrics.NewMetrics()
	m.SetHealthStatus(true)

	// Start metrics server if enabled
	var metricsServer *metrics.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, logger)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
		logger.Info("metrics server started",
			zap.Int("port", cfg.Metrics.Port),
			zap.String("path", cfg.Metrics.Path),
		)
	}

	// Initialize idempotency replay cache if enabled
	var idemMW *idempotency.Middleware
	if cfg.Idempotency.Enabled {
		cache, err := initIdempotencyCache(cfg, logger)
		if err != nil {
			logger.Fatal("failed to initialize idempotency cache", zap.Error(err))
		}
		defer cache.Close()
		idemMW = idempotency.NewMiddleware(cache, cfg.Idempotency.TTL, logger)
	}

	// Initialize HTTP server
	httpServer := server.NewServer(cfg, handlers, healthCheck, logger, server.Options{
		Idempotency: idemMW,
		Metrics:     m,
	})
	httpServer.SetupRoutes()

	// Start HTTP server in goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errChan <- err
		}
	}()

	logger.Info("HTTP server started", zap.Int("port", cfg.Server.Port))

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		logger.Error("server error", zap.Error(err))
	}

	// Graceful shutdown
	logger.Info("initiating graceful shutdown")
	m.SetHealthStatus(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Shutdown HTTP server
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", zap.Error(err))
	}

	// Shutdown metrics server
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", zap.Error(err))
		}
	}

	logger.Info("shutdown complete")
}

// initTables builds the table set for the configured backend.
func initTables(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*store.Tables, error) {
	if cfg.Store.Backend == "postgres" {
		connectCtx, cancel := context.WithTimeout(ctx, cfg.Store.Postgres.ConnectTimeout)
		defer cancel()

		pool, err := store.NewPostgresPool(connectCtx, cfg.Store.Postgres.ConnString(),
			cfg.Store.Postgres.MaxConns, cfg.Store.Postgres.MaxConnLifetime)
		if err != nil {
			return nil, err
		}
		return store.NewPostgresTables(ctx, pool, logger)
	}
	return store.NewMemoryTables(logger), nil
}

// initIdempotencyCache builds the replay cache for the configured backend.
func initIdempotencyCache(cfg *config.Config, logger *zap.Logger) (idempotency.Cache, error) {
	if cfg.Idempotency.Backend == "redis" {
		return idempotency.NewRedisCache(
			cfg.Idempotency.Redis.Addr(),
			cfg.Idempotency.Redis.Password,
			cfg.Idempotency.Redis.DB,
			logger,
		)
	}
	return idempotency.NewMemoryCache(), nil
}

// initLogger initializes the zap logger.
func initLogger() *zap.Logger {
	// Get log level from environment
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	var level zapcore.Level
	switch logLevel {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	// Get log format from environment
	logFormat := os.Getenv("LOG_FORMAT")

	var config zap.Config
	if logFormat == "console" {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
	}

	config.Level = zap.NewAtomicLevelAt(level)
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}

	logger, err := config.Build()
	if err != nil {
		// Fallback to basic logger
		logger, _ = zap.NewProduction()
	}

	return logger
}
