package config

import (
	"flag"
	"os"
	"strconv"

	"github.com/schoolguard/device-guardian/pkg/shared"
)

// BindFlags registers every setting on fs. Defaults come from cfg, overridden
// by the matching environment variable when set.
func BindFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.HTTPPort, "http-port", shared.GetEnvOrDefault("HTTP_PORT", cfg.HTTPPort), "HTTP server port")
	fs.StringVar(&cfg.PostgresDSN, "postgres-dsn", shared.GetEnvOrDefault("POSTGRES_DSN", cfg.PostgresDSN), "PostgreSQL connection string")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", shared.GetEnvOrDefault("REDIS_ADDR", cfg.RedisAddr), "Redis address for cool-down and service metrics (empty disables)")
	fs.StringVar(&cfg.KafkaBrokers, "kafka-brokers", shared.GetEnvOrDefault("KAFKA_BROKERS", cfg.KafkaBrokers), "Kafka broker addresses (comma-separated)")
	fs.StringVar(&cfg.AlertsTopic, "alerts-topic", shared.GetEnvOrDefault("ALERTS_TOPIC", cfg.AlertsTopic), "Kafka topic for created alerts")
	fs.StringVar(&cfg.ConsumerGroupID, "consumer-group-id", shared.GetEnvOrDefault("CONSUMER_GROUP_ID", cfg.ConsumerGroupID), "Kafka consumer group ID")
	fs.StringVar(&cfg.Dispatch, "dispatch", shared.GetEnvOrDefault("DISPATCH", cfg.Dispatch), "Alert dispatch mode: inline or queue")
	fs.StringVar(&cfg.MQTTBroker, "mqtt-broker", shared.GetEnvOrDefault("MQTT_BROKER", cfg.MQTTBroker), "MQTT broker URL for device heartbeats (empty disables)")
	fs.StringVar(&cfg.MQTTClientID, "mqtt-client-id", shared.GetEnvOrDefault("MQTT_CLIENT_ID", cfg.MQTTClientID), "MQTT client ID")
	fs.StringVar(&cfg.MQTTUsername, "mqtt-username", shared.GetEnvOrDefault("MQTT_USERNAME", cfg.MQTTUsername), "MQTT username")
	fs.StringVar(&cfg.MQTTPassword, "mqtt-password", shared.GetEnvOrDefault("MQTT_PASSWORD", cfg.MQTTPassword), "MQTT password")
	fs.StringVar(&cfg.AppName, "app-name", shared.GetEnvOrDefault("APP_NAME", cfg.AppName), "Application name used in email subjects")
	fs.DurationVar(&cfg.AlertCooldown, "alert-cooldown", shared.GetEnvDurationOrDefault("ALERT_COOLDOWN", cfg.AlertCooldown), "Suppress identical alerts within this window (0 disables)")
	fs.BoolVar(&cfg.RunMigrations, "run-migrations", envBool("RUN_MIGRATIONS", cfg.RunMigrations), "Apply schema migrations at startup")

	fs.DurationVar(&cfg.Monitor.OfflineThreshold, "offline-threshold", shared.GetEnvDurationOrDefault("OFFLINE_THRESHOLD", cfg.Monitor.OfflineThreshold), "Mark devices offline after this much silence")
	fs.IntVar(&cfg.Monitor.LowBatteryThreshold, "low-battery-threshold", shared.GetEnvIntOrDefault("LOW_BATTERY_THRESHOLD", cfg.Monitor.LowBatteryThreshold), "Battery percent at or below which an alert is raised")
	fs.DurationVar(&cfg.Monitor.SweepInterval, "sweep-interval", shared.GetEnvDurationOrDefault("SWEEP_INTERVAL", cfg.Monitor.SweepInterval), "Interval between offline sweeps")

	fs.StringVar(&cfg.Email.Provider, "email-provider", shared.GetEnvOrDefault("EMAIL_PROVIDER", cfg.Email.Provider), "Email provider: smtp, ses or resend")
	fs.StringVar(&cfg.Email.From, "email-from", shared.GetEnvOrDefault("EMAIL_FROM", cfg.Email.From), "Sender address")
	fs.StringVar(&cfg.Email.SMTPHost, "smtp-host", shared.GetEnvOrDefault("SMTP_HOST", cfg.Email.SMTPHost), "SMTP host")
	fs.StringVar(&cfg.Email.SMTPPort, "smtp-port", shared.GetEnvOrDefault("SMTP_PORT", cfg.Email.SMTPPort), "SMTP port")
	fs.StringVar(&cfg.Email.SMTPUser, "smtp-user", shared.GetEnvOrDefault("SMTP_USER", cfg.Email.SMTPUser), "SMTP username")
	fs.StringVar(&cfg.Email.SMTPPassword, "smtp-password", shared.GetEnvOrDefault("SMTP_PASSWORD", cfg.Email.SMTPPassword), "SMTP password")
	fs.StringVar(&cfg.Email.ResendAPIKey, "resend-api-key", shared.GetEnvOrDefault("RESEND_API_KEY", cfg.Email.ResendAPIKey), "Resend API key")
	fs.StringVar(&cfg.Email.AWSRegion, "aws-region", shared.GetEnvOrDefault("AWS_REGION", cfg.Email.AWSRegion), "AWS region for SES")
	fs.Float64Var(&cfg.Email.RatePerSecond, "email-rate", envFloat("EMAIL_RATE", cfg.Email.RatePerSecond), "Outbound emails per second (0 = unlimited)")
	fs.IntVar(&cfg.Email.MaxRetries, "email-max-retries", shared.GetEnvIntOrDefault("EMAIL_MAX_RETRIES", cfg.Email.MaxRetries), "Retries per recipient after the first attempt")
}

func envBool(key string, def bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func envFloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return def
	}
	return v
}
