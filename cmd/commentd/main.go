package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rowanad/commentable/internal/config"
	"github.com/rowanad/commentable/internal/errors"
	"github.com/rowanad/commentable/internal/handler"
	"github.com/rowanad/commentable/internal/health"
	"github.com/rowanad/commentable/internal/metrics"
	"github.com/rowanad/commentable/internal/model"
	"github.com/rowanad/commentable/internal/notify"
	"github.com/rowanad/commentable/internal/service"
	"github.com/rowanad/commentable/internal/spam"
	"github.com/rowanad/commentable/internal/store"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	// Initialize logger
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting comment engine",
		zap.String("backend", cfg.Backend.Driver),
		zap.Int("port", cfg.Server.Port))

	// Initialize metrics
	m := metrics.NewMetrics()
	logger.Info("Metrics initialized")

	ctx := context.Background()

	// Initialize storage backend
	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize storage backend", zap.Error(err))
	}

	// The engine is built on conditional writes; refuse to start on a backend
	// that cannot provide them
	if !backend.Capabilities().ConditionalWrite {
		logger.Fatal("Storage backend rejected",
			zap.String("driver", cfg.Backend.Driver),
			zap.Error(errors.CapabilityMissing(cfg.Backend.Driver, "conditional writes")))
	}

	kv := store.NewInstrumentedKV(
		store.NewRetryingKV(backend, cfg.Backend.RetryAttempts, cfg.Backend.RetryBaseDelay),
		m,
	)
	logger.Info("Storage backend initialized", zap.String("driver", cfg.Backend.Driver))

	// Initialize event dispatcher
	dispatcher, closeDispatcher, err := openDispatcher(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize event dispatcher", zap.Error(err))
	}
	logger.Info("Event dispatcher initialized", zap.String("driver", cfg.Notify.Driver))

	// Initialize services
	logger.Info("Initializing services")

	defaultPolicy := model.Policy{
		AutoApproveThreshold: cfg.Moderation.AutoApproveThreshold,
	}
	threadService := service.NewThreadService(kv, defaultPolicy, logger)
	rateLimitService := service.NewRateLimitService(kv, cfg.RateLimit.Window, cfg.RateLimit.Threshold, logger)
	idempotencyService := service.NewIdempotencyService(kv, cfg.Idempotency.TTL, logger)
	scorer := spam.NewHeuristicScorer()

	limits := service.DefaultIngestionLimits()
	if cfg.Moderation.MaxBodyBytes > 0 {
		limits.MaxBodyBytes = cfg.Moderation.MaxBodyBytes
	}
	ingestionService := service.NewIngestionService(
		kv,
		idempotencyService,
		rateLimitService,
		threadService,
		scorer,
		dispatcher,
		limits,
		cfg.Server.FingerprintSalt,
		logger,
	)

	threadingService := service.NewThreadingService(kv, threadService, cfg.Moderation.PageSize, logger)
	moderationService := service.NewModerationService(kv, threadingService, dispatcher, logger)
	reactionService := service.NewReactionService(kv, cfg.Server.FingerprintSalt, logger)
	cleanupService := service.NewCleanupService(kv, cfg.Moderation.PageSize, logger)

	logger.Info("All services initialized")

	// Initialize handlers
	handlers := handler.NewHandlers(
		ingestionService,
		threadingService,
		moderationService,
		reactionService,
		threadService,
		m,
		logger,
		cfg.Server.WriteTimeout,
	)
	healthChecker := health.NewHealthChecker(kv, logger)

	mux := http.NewServeMux()
	handlers.Register(mux)
	mux.HandleFunc("/health/live", healthChecker.LivenessHandler)
	mux.HandleFunc("/health/ready", healthChecker.ReadinessHandler)

	// Start metrics server
	if cfg.Metrics.Enabled {
		go func() {
			metricsMux := http.NewServeMux()
			metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			logger.Info("Starting metrics server", zap.String("address", addr))
			if err := http.ListenAndServe(addr, metricsMux); err != nil {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	// Start background cleanup for backends without native TTL
	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	go runCleanup(cleanupCtx, cleanupService, cfg.RateLimit.Window, logger)

	// Start API server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("Starting API server", zap.String("address", addr))

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.ListenAndServe()
	}()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("Server error", zap.Error(err))
	case sig := <-sigChan:
		logger.Info("Received signal", zap.String("signal", sig.String()))
	}

	// Graceful shutdown
	logger.Info("Shutting down gracefully")
	stopCleanup()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("API server shutdown timeout, forcing close", zap.Error(err))
		server.Close()
	}

	if closeDispatcher != nil {
		closeDispatcher()
	}
	if err := kv.Close(); err != nil {
		logger.Warn("Failed to close storage backend", zap.Error(err))
	}

	logger.Info("Comment engine stopped")
}

// openBackend constructs the storage adapter selected by configuration
func openBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.KV, error) {
	switch cfg.Backend.Driver {
	case "memory":
		return store.NewMemoryStore(), nil
	case "redis":
		return store.NewRedisStore(
			cfg.Backend.Redis.Host,
			cfg.Backend.Redis.Port,
			cfg.Backend.Redis.Password,
			cfg.Backend.Redis.DB,
			logger,
		)
	case "dynamodb":
		return store.NewDynamoStore(ctx, cfg.Backend.DynamoDB.Table, cfg.Backend.DynamoDB.Region, logger)
	case "postgres":
		return store.NewPostgresStore(
			cfg.Backend.Postgres.Host,
			cfg.Backend.Postgres.Port,
			cfg.Backend.Postgres.Database,
			cfg.Backend.Postgres.User,
			cfg.Backend.Postgres.Password,
			cfg.Backend.Postgres.MaxConnections,
			cfg.Backend.Postgres.MinConnections,
			logger,
		)
	case "natskv":
		return store.NewNatsKVStore(ctx, cfg.Backend.NatsKV.URL, cfg.Backend.NatsKV.Bucket, logger)
	default:
		return nil, fmt.Errorf("unknown backend driver: %s", cfg.Backend.Driver)
	}
}

// openDispatcher constructs the moderation event dispatcher
func openDispatcher(cfg *config.Config, logger *zap.Logger) (notify.Dispatcher, func(), error) {
	if cfg.Notify.Driver == "nats" {
		d, err := notify.NewNatsDispatcher(cfg.Notify.NatsURL, cfg.Notify.Subject, logger)
		if err != nil {
			return nil, nil, err
		}
		return d, func() { d.Close() }, nil
	}
	return notify.NewLogDispatcher(logger), nil, nil
}

// runCleanup prunes expired rate-limit and idempotency records on a timer
func runCleanup(ctx context.Context, cleanup *service.CleanupService, window time.Duration, logger *zap.Logger) {
	interval := 10 * window
	if interval < time.Minute {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := cleanup.PruneExpired(ctx, time.Now().UTC()); err != nil {
				logger.Warn("Cleanup pass failed", zap.Error(err))
			}
		}
	}
}

// newLogger builds the zap logger from configuration
func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
