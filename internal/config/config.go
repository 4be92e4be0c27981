// Package config centralises configuration parsing for the sync API.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures runtime configuration values for the sync API.
type Config struct {
	HTTPAddress            string
	PostgresURL            string // Empty runs against the in-memory repository.
	KafkaBrokers           []string
	SchemaRegistryURL      string
	OutboxPollInterval     time.Duration
	OutboxBatchSize        int
	JWTSecret              string
	JWTIssuer              string
	SyncMaxBatchSize       int
	CORSAllowedOrigin      string
	LogLevel               string
	LogFormatJSON          bool
	LogFile                string
	DLQPollInterval        time.Duration // Interval between DLQ polling iterations.
	DLQMaxRetries          int           // Maximum number of DLQ retry attempts before quarantine.
	DLQBaseDelay           time.Duration // Base delay used for exponential backoff.
	DLQBatchSize           int
	DLQMetricsAddress      string
	ConsumerTopics         []string
	ConsumerGroupID        string
	ConsumerMetricsAddress string
}

// Load reads environment variables into Config, applying defaults for local dev.
func Load() Config {
	cfg := Config{
		HTTPAddress:            getEnv("HTTP_ADDRESS", ":8080"),
		PostgresURL:            os.Getenv("POSTGRES_URL"),
		SchemaRegistryURL:      getEnv("SCHEMA_REGISTRY_URL", "http://schema-registry:8081"),
		OutboxPollInterval:     getDurationEnv("OUTBOX_POLL_INTERVAL", 2*time.Second),
		OutboxBatchSize:        getIntEnv("OUTBOX_BATCH_SIZE", 25),
		JWTSecret:              getEnv("JWT_SECRET", "dev-secret-change-me"),
		JWTIssuer:              getEnv("JWT_ISSUER", "fittrack.identity"),
		SyncMaxBatchSize:       getIntEnv("SYNC_MAX_BATCH_SIZE", 50),
		CORSAllowedOrigin:      getEnv("CORS_ALLOWED_ORIGIN", "http://localhost:5173"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		LogFormatJSON:          getBoolEnv("LOG_FORMAT_JSON", false),
		LogFile:                os.Getenv("LOG_FILE"),
		DLQPollInterval:        getDurationEnv("DLQ_POLL_INTERVAL", 30*time.Second),
		DLQMaxRetries:          getIntEnv("DLQ_MAX_RETRIES", 5),
		DLQBaseDelay:           getDurationEnv("DLQ_BASE_DELAY", time.Minute),
		DLQBatchSize:           getIntEnv("DLQ_BATCH_SIZE", 50),
		DLQMetricsAddress:      getEnv("DLQ_METRICS_ADDRESS", ":9102"),
		ConsumerTopics:         splitAndTrim(getEnv("CONSUMER_TOPICS", "workout_events")),
		ConsumerGroupID:        getEnv("CONSUMER_GROUP_ID", "fittrack-event-log"),
		ConsumerMetricsAddress: getEnv("CONSUMER_METRICS_ADDRESS", ":9103"),
	}

	brokers := getEnv("KAFKA_BROKERS", "kafka:9092")
	cfg.KafkaBrokers = splitAndTrim(brokers)
	return cfg
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
