// Package main provides the CLI entry point for guardian-api.
// It wires ingestion, identity resolution, policy evaluation, alerting and
// device monitoring behind one HTTP server.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/schoolguard/device-guardian/internal/alerts"
	"github.com/schoolguard/device-guardian/internal/config"
	"github.com/schoolguard/device-guardian/internal/database"
	"github.com/schoolguard/device-guardian/internal/handlers"
	"github.com/schoolguard/device-guardian/internal/identity"
	"github.com/schoolguard/device-guardian/internal/ingest"
	"github.com/schoolguard/device-guardian/internal/monitor"
	"github.com/schoolguard/device-guardian/internal/policy"
	"github.com/schoolguard/device-guardian/internal/producer"
	"github.com/schoolguard/device-guardian/internal/router"
	"github.com/schoolguard/device-guardian/internal/sender/email"
	"github.com/schoolguard/device-guardian/internal/sender/retry"
	"github.com/schoolguard/device-guardian/internal/telemetry"
	"github.com/schoolguard/device-guardian/pkg/metrics"
	"github.com/schoolguard/device-guardian/pkg/shared"
)

const serviceName = "guardian-api"

func main() {
	// Parse command-line flags
	cfg := config.Default()
	configPath := flag.String("config", shared.GetEnvOrDefault("CONFIG_FILE", ""), "Optional YAML config file")
	config.BindFlags(flag.CommandLine, &cfg)
	flag.Parse()

	shared.SetupLogging()

	if *configPath != "" {
		if err := config.ApplyFile(flag.CommandLine, *configPath, &cfg); err != nil {
			slog.Error("Failed to load config file", "path", *configPath, "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Starting guardian-api",
		"http_port", cfg.HTTPPort,
		"postgres_dsn", shared.MaskDSN(cfg.PostgresDSN),
		"redis_addr", cfg.RedisAddr,
		"dispatch", cfg.Dispatch,
		"email_provider", cfg.Email.Provider,
		"mqtt_broker", cfg.MQTTBroker,
		"alert_cooldown", cfg.AlertCooldown,
	)

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	// Initialize database connection
	slog.Info("Connecting to PostgreSQL database")
	db, err := database.NewDB(cfg.PostgresDSN)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		slog.Info("Tip: Start Postgres with 'docker compose up -d postgres' or ensure Postgres is running")
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("Successfully connected to PostgreSQL database")

	if cfg.RunMigrations {
		if err := db.Migrate(); err != nil {
			slog.Error("Failed to apply migrations", "error", err)
			os.Exit(1)
		}
	}

	// Redis is optional: it backs the alert cool-down and the shared metrics view
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = shared.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		slog.Info("Successfully connected to Redis", "addr", cfg.RedisAddr)
	}

	collector := metrics.NewCollector(serviceName, redisClient)
	collector.Start(ctx)
	defer collector.Stop()

	dispatcher, closeDispatcher, err := newDispatcher(ctx, &cfg, db, collector)
	if err != nil {
		slog.Error("Failed to initialize alert dispatch", "error", err)
		os.Exit(1)
	}
	defer closeDispatcher()

	var suppressor alerts.Suppressor
	if cfg.AlertCooldown > 0 {
		suppressor = alerts.NewCooldown(redisClient, cfg.AlertCooldown)
	}

	resolver := identity.NewResolver(db)
	manager := alerts.NewManager(db, dispatcher, suppressor, collector)
	engine := policy.NewEngine(db)
	pipeline := ingest.NewPipeline(db, resolver, engine, manager, collector)

	mon := monitor.New(monitor.Config{
		OfflineThreshold:    cfg.Monitor.OfflineThreshold,
		LowBatteryThreshold: cfg.Monitor.LowBatteryThreshold,
		SweepInterval:       cfg.Monitor.SweepInterval,
	}, db, resolver, manager, collector)
	go mon.Run(ctx)

	if cfg.MQTTBroker != "" {
		bridge, err := telemetry.NewBridge(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTUsername, cfg.MQTTPassword, mon, collector)
		if err != nil {
			slog.Error("Failed to connect heartbeat bridge", "error", err)
			os.Exit(1)
		}
		defer bridge.Close()
		if err := bridge.Start(ctx); err != nil {
			slog.Error("Failed to start heartbeat bridge", "error", err)
			os.Exit(1)
		}
	}

	var metricsReader handlers.MetricsReader
	if redisClient != nil {
		metricsReader = metrics.NewReader(redisClient)
	}

	// Initialize HTTP handlers
	h := handlers.NewHandlers(pipeline, mon, db, metricsReader)

	// Create HTTP server with router
	server := router.NewServer(cfg.HTTPPort, h, collector)

	// Start HTTP server in a goroutine
	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		slog.Info("Shutting down HTTP server...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Error shutting down server", "error", err)
		}
		slog.Info("HTTP server stopped")
	case err := <-serverErrChan:
		slog.Error("HTTP server error", "error", err)
		os.Exit(1)
	}

	slog.Info("guardian-api stopped")
}

// newDispatcher builds the alert dispatcher for the configured mode: inline
// email fan-out, or publishing to Kafka for the notifier.
func newDispatcher(ctx context.Context, cfg *config.Config, db *database.DB, collector *metrics.Collector) (alerts.Dispatcher, func(), error) {
	if cfg.Dispatch == config.DispatchQueue {
		slog.Info("Connecting to Kafka producer", "topic", cfg.AlertsTopic)
		p, err := producer.NewProducer(cfg.KafkaBrokers, cfg.AlertsTopic)
		if err != nil {
			slog.Info("Tip: Start Kafka with 'docker compose up -d kafka'")
			return nil, nil, err
		}
		return p, func() { _ = p.Close() }, nil
	}

	mailer, err := email.New(ctx, cfg.Email)
	if err != nil {
		return nil, nil, err
	}
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = cfg.Email.MaxRetries
	return alerts.NewNotifier(db, mailer, cfg.AppName, retryCfg, collector), func() {}, nil
}
