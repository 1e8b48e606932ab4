package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/forgo/cadence/api/internal/broker"
	"github.com/forgo/cadence/api/internal/config"
	"github.com/forgo/cadence/api/internal/database"
	"github.com/forgo/cadence/api/internal/eventlog"
	"github.com/forgo/cadence/api/internal/jobs"
	"github.com/forgo/cadence/api/internal/monitor"
	"github.com/forgo/cadence/api/internal/registry"
	"github.com/forgo/cadence/api/internal/schedule"
)

// One-shot pipeline report for operators. Connects to the same store and
// broker as the server, resolves the job catalog so branch totals are
// accurate, and prints the plain text report to stdout.
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	db := database.NewSurrealDB(database.Config{
		Host:      cfg.Database.Host,
		Port:      cfg.Database.Port,
		User:      cfg.Database.User,
		Password:  cfg.Database.Password,
		Namespace: cfg.Database.Namespace,
		Database:  cfg.Database.Database,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Connect(ctx); err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	queue := broker.New(broker.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = queue.Close() }()

	cache := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = cache.Close() }()

	events := eventlog.New(db, cfg.Pipeline.EventWindow)
	reg := registry.New(registry.Config{Events: registry.NopSink{}})

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

	mon := monitor.New(monitor.Config{
		Registry: reg,
		Events:   events,
		Broker:   queue,
	})

	fmt.Print(mon.GenerateReport(ctx))
}
