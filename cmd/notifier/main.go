// Package main provides the CLI entry point for the notifier. It consumes
// alert-created messages from Kafka and emails each school's admins.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/schoolguard/device-guardian/internal/alerts"
	"github.com/schoolguard/device-guardian/internal/config"
	"github.com/schoolguard/device-guardian/internal/consumer"
	"github.com/schoolguard/device-guardian/internal/database"
	"github.com/schoolguard/device-guardian/internal/sender/email"
	"github.com/schoolguard/device-guardian/internal/sender/retry"
	"github.com/schoolguard/device-guardian/pkg/metrics"
	"github.com/schoolguard/device-guardian/pkg/shared"
)

const serviceName = "notifier"

func main() {
	// Parse command-line flags
	cfg := config.Default()
	cfg.Dispatch = config.DispatchQueue
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

	slog.Info("Starting notifier",
		"kafka_brokers", cfg.KafkaBrokers,
		"alerts_topic", cfg.AlertsTopic,
		"consumer_group_id", cfg.ConsumerGroupID,
		"postgres_dsn", shared.MaskDSN(cfg.PostgresDSN),
		"email_provider", cfg.Email.Provider,
	)

	if err := cfg.ValidateNotifier(); err != nil {
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

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = shared.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			slog.Warn("Redis unavailable, service metrics stay local", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}
	collector := metrics.NewCollector(serviceName, redisClient)
	collector.Start(ctx)
	defer collector.Stop()

	// Initialize Kafka consumer
	slog.Info("Connecting to Kafka consumer", "topic", cfg.AlertsTopic)
	kafkaConsumer, err := consumer.NewConsumer(cfg.KafkaBrokers, cfg.AlertsTopic, cfg.ConsumerGroupID)
	if err != nil {
		slog.Error("Failed to create Kafka consumer", "error", err)
		slog.Info("Tip: Start Kafka with 'docker compose up -d kafka'")
		os.Exit(1)
	}
	defer kafkaConsumer.Close()
	slog.Info("Successfully connected to Kafka consumer")

	mailer, err := email.New(ctx, cfg.Email)
	if err != nil {
		slog.Error("Failed to initialize email providers", "error", err)
		os.Exit(1)
	}
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = cfg.Email.MaxRetries
	notifier := alerts.NewNotifier(db, mailer, cfg.AppName, retryCfg, collector)

	slog.Info("Starting alert notification loop")
	processAlerts(ctx, &processorDeps{
		consumer: kafkaConsumer,
		store:    db,
		notifier: notifier,
		metrics:  collector,
	})

	slog.Info("Notifier stopped")
}
