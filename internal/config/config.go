package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	UseMemoryQueue bool
	WorkerCount    int
	DatabaseURL    string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AWSRegion            string
	AWSAccessKeyID       string
	AWSSecretAccessKey   string
	AWSEndpointOverride  string
	ConversationQueueURL string

	// Conversation
	SessionTTL         time.Duration
	BookingHorizonDays int
	MaxDateChoices     int
	MaxTimeChoices     int

	// Reminders
	ReminderLead         time.Duration
	ReminderPollInterval time.Duration
	ReminderBatchSize    int

	// Outbound transport
	OutboundWebhookURL      string
	OutboundSupportsChoices bool

	// HTTP ingress
	OperatorJWTSecret  string
	CORSAllowedOrigins []string
	InboundRateLimit   float64
	InboundRateBurst   int

	// Reminder text, a text/template over TenantName, Date and Time.
	ReminderTemplate string

	// DevSeedFile loads tenants into the in-memory catalog when no database is configured.
	DevSeedFile string

	// Tracing
	OTLPEndpoint string
	OTLPInsecure bool
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 2),
		DatabaseURL:    getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:            getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:       getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:  getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		ConversationQueueURL: getEnv("CONVERSATION_QUEUE_URL", ""),

		SessionTTL:         getEnvAsDuration("SESSION_TTL", 30*time.Minute),
		BookingHorizonDays: getEnvAsInt("BOOKING_HORIZON_DAYS", 14),
		MaxDateChoices:     getEnvAsInt("MAX_DATE_CHOICES", 7),
		MaxTimeChoices:     getEnvAsInt("MAX_TIME_CHOICES", 8),

		ReminderLead:         getEnvAsDuration("REMINDER_LEAD", 24*time.Hour),
		ReminderPollInterval: getEnvAsDuration("REMINDER_POLL_INTERVAL", time.Minute),
		ReminderBatchSize:    getEnvAsInt("REMINDER_BATCH_SIZE", 50),

		OutboundWebhookURL:      strings.TrimSpace(getEnv("OUTBOUND_WEBHOOK_URL", "")),
		OutboundSupportsChoices: getEnvAsBool("OUTBOUND_SUPPORTS_CHOICES", true),

		OperatorJWTSecret:  getEnv("OPERATOR_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		InboundRateLimit:   getEnvAsFloat("INBOUND_RATE_LIMIT", 5),
		InboundRateBurst:   getEnvAsInt("INBOUND_RATE_BURST", 10),

		ReminderTemplate: getEnv("REMINDER_TEMPLATE", ""),
		DevSeedFile:      getEnv("DEV_SEED_FILE", ""),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTLPInsecure: getEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", false),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping blank entries.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
