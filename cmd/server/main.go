package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/forgo/cadence/api/internal/broker"
	"github.com/forgo/cadence/api/internal/config"
	"github.com/forgo/cadence/api/internal/database"
	"github.com/forgo/cadence/api/internal/eventlog"
	"github.com/forgo/cadence/api/internal/handler"
	"github.com/forgo/cadence/api/internal/jobs"
	"github.com/forgo/cadence/api/internal/middleware"
	"github.com/forgo/cadence/api/internal/monitor"
	"github.com/forgo/cadence/api/internal/registry"
	"github.com/forgo/cadence/api/internal/schedule"
)

func main() {
	// Initialize structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Human-readable logs in development
	if cfg.IsDevelopment() {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	// Initialize database connection
	db := database.NewSurrealDB(database.Config{
		Host:      cfg.Database.Host,
		Port:      cfg.Database.Port,
		User:      cfg.Database.User,
		Password:  cfg.Database.Password,
		Namespace: cfg.Database.Namespace,
		Database:  cfg.Database.Database,
	})

	ctx := context.Background()
	if err := db.Connect(ctx); err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	slog.Info("connected to database",
		slog.String("host", cfg.Database.Host),
		slog.String("database", cfg.Database.Database),
	)

	// Initialize the queue broker
	queue := broker.New(broker.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = queue.Close() }()

	if err := queue.Ping(ctx); err != nil {
		slog.Error("failed to connect to broker", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("connected to broker", slog.String("addr", cfg.Redis.Addr))

	// Shared key-value cache used by job bodies
	cache := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = cache.Close() }()

	// Event log, registry, and monitor
	events := eventlog.New(db, cfg.Pipeline.EventWindow)

	reg := registry.New(registry.Config{
		Events:         events,
		RetryBaseDelay: cfg.Pipeline.RetryBaseDelay.Std(),
	})

	mon := monitor.New(monitor.Config{
		Registry: reg,
		Events:   events,
		Broker:   queue,
	})

	// Resolve the declarative job registrations
	resolver := schedule.NewResolver(reg)
	if err := resolver.ResolveAll(
		jobs.NewDataSyncUnit(db),
		jobs.NewCacheMaintenanceUnit(cache),
		jobs.NewMediaCleanupUnit(db, queue),
		jobs.NewTeardownUnit(db, events, cfg.Pipeline.EventRetention.Std()),
	); err != nil {
		slog.Error("failed to resolve job registrations", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("job registrations resolved", slog.Int("jobs", len(resolver.ResolvedJobs())))

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(db, queue)
	pipelineHandler := handler.NewPipelineHandler(mon, reg)

	adminAuth := middleware.AdminAuth(cfg.Server.AdminToken)

	// Create router and register routes
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", healthHandler.Health)

	mux.HandleFunc("GET /v1/pipeline", pipelineHandler.Overview)
	mux.HandleFunc("GET /v1/pipeline/report", pipelineHandler.Report)
	mux.HandleFunc("GET /v1/pipeline/branches/{branch}", pipelineHandler.GetBranch)
	mux.HandleFunc("GET /v1/pipeline/jobs/{id}", pipelineHandler.GetJob)
	mux.Handle("POST /v1/pipeline/branches/{branch}/run", adminAuth(http.HandlerFunc(pipelineHandler.TriggerBranch)))

	// Apply global middleware
	wrapped := middleware.Chain(
		mux,
		middleware.RequestID,
		middleware.Logger,
		middleware.Recovery,
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      wrapped,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("starting server",
			slog.String("port", cfg.Server.Port),
			slog.String("env", cfg.Server.Env),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", slog.String("error", err.Error()))
	}

	slog.Info("server exited")
}
