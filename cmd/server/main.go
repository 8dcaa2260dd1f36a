// Command server runs the Pulse monitor-health engine.
//
// # Usage
//
//	server --database postgres://localhost/pulse --port 8080
//
// # Configuration
//
// The server can be configured via:
// - Command-line flags
// - Environment variables (PULSE_*)
// - Config file (--config)
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nova-universe/pulse/db/migrate"
	"github.com/nova-universe/pulse/internal/aggregator"
	"github.com/nova-universe/pulse/internal/alerting"
	"github.com/nova-universe/pulse/internal/api"
	"github.com/nova-universe/pulse/internal/config"
	"github.com/nova-universe/pulse/internal/events"
	"github.com/nova-universe/pulse/internal/metrics"
	"github.com/nova-universe/pulse/internal/registry"
	"github.com/nova-universe/pulse/internal/service"
	"github.com/nova-universe/pulse/internal/store"
	"github.com/nova-universe/pulse/internal/tracker"
	"github.com/nova-universe/pulse/internal/worker"
)

const version = "pulse-server v0.1.0"

func main() {
	var (
		configFile  = flag.String("config", "", "Path to config file")
		port        = flag.Int("port", 0, "HTTP server port (overrides config)")
		dbURL       = flag.String("database", "", "Database URL (postgres://...)")
		debug       = flag.Bool("debug", false, "Enable debug logging")
		showVersion = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Set up logging
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	// Load configuration
	cfg := config.DefaultConfig()
	if *configFile != "" {
		fileCfg, err := config.LoadFromFile(*configFile)
		if err != nil {
			logger.Error("failed to load config file", "error", err)
			os.Exit(1)
		}
		cfg = fileCfg
	}
	cfg.ApplyEnvOverrides()

	// Apply flag overrides
	if *dbURL != "" {
		cfg.DatabaseURL = *dbURL
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
	defer connectCancel()

	db, err := store.NewStoreFromURL(connectCtx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(connectCtx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	logger.Info("connected to database")

	// Run migrations
	if err := migrate.Run(connectCtx, db.Pool(), logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	// Connect to Redis stats cache
	statsCache, err := aggregator.NewRedisCache(cfg.RedisURL, logger)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer statsCache.Close()
	logger.Info("connected to redis")

	// Monitor registry
	reg := registry.New(db, cfg.Schedules.RegistryRefreshInterval, logger)
	if err := reg.Load(ctx); err != nil {
		return fmt.Errorf("loading monitor registry: %w", err)
	}
	reg.Start(ctx)
	defer reg.Stop()

	// Transition bus and heartbeat tracker
	bus := events.NewBus(config.TransitionBusDepth, logger)
	defer bus.Close()

	trk := tracker.New(db, reg, bus, tracker.Config{
		Shards:       config.SnapshotShards,
		QueueSize:    config.PersistQueueSize,
		Workers:      config.PersistWorkers,
		BatchSize:    config.PersistBatchSize,
		MaxAttempts:  config.PersistMaxAttempts,
		RetryBackoff: config.PersistRetryBackoff,
	}, logger)
	defer trk.Close()

	if err := trk.Warm(ctx, db, reg.IDs()); err != nil {
		return fmt.Errorf("warming status snapshots: %w", err)
	}

	// Alert correlation
	var sink alerting.IncidentSink
	if cfg.Alerting.WebhookURL != "" {
		sink = alerting.NewWebhookSink(alerting.WebhookConfig{
			URL:           cfg.Alerting.WebhookURL,
			RatePerSecond: cfg.Alerting.WebhookRatePerSecond,
		}, logger)
	} else {
		logger.Warn("no webhook configured, incidents will only be logged")
		sink = alerting.NewLogSink(logger)
	}

	correlator, err := alerting.New(reg, sink, alerting.Config{
		DefaultMinDowntime: cfg.Alerting.DefaultMinDowntime,
		Timezone:           cfg.Alerting.BusinessHoursTimezone,
		SinkTimeout:        config.SinkTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating alert correlator: %w", err)
	}
	correlator.Start(ctx, bus.Subscribe("alert_correlator"))
	defer correlator.Stop()

	// Aggregator
	agg := aggregator.New(db, statsCache, trk, reg, aggregator.Config{
		QueryTimeout:       config.QueryTimeout,
		UptimeTTL:          config.CacheTTLUptimeStats,
		SystemTTL:          config.CacheTTLSystemStats,
		RecentEventsWindow: config.SystemStatsEventWindow,
	}, logger)

	// Background workers
	systemWorker := worker.NewSystemWorker(agg, worker.SystemWorkerConfig{
		Interval: cfg.Schedules.SystemStatsInterval,
	}, logger)
	systemWorker.Start(ctx)
	defer systemWorker.Stop()

	rollupWorker := worker.NewRollupWorker(agg, reg, db, worker.RollupWorkerConfig{
		Interval: cfg.Schedules.RollupInterval,
	}, logger)
	rollupWorker.Start(ctx)
	defer rollupWorker.Stop()

	retentionWorker := worker.NewRetentionWorker(db, worker.RetentionWorkerConfig{
		Interval:        cfg.Schedules.RetentionInterval,
		HeartbeatWindow: cfg.Retention.HeartbeatWindow,
		AnalyticsWindow: cfg.Retention.AnalyticsWindow,
	}, logger)
	retentionWorker.Start(ctx)
	defer retentionWorker.Stop()

	// Service and API
	svc := service.NewService(trk, reg, agg, db, logger)
	collector := metrics.NewCollector(db, trk, bus)
	apiServer := api.NewServer(svc, collector, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      apiServer,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
