package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT
	JWTSecret        string
	JWTExpirationDur time.Duration

	// Webhook ingestion
	WebhookAPIKey string

	// Audit write path
	AuditWorkers   int
	AuditQueueSize int
	FallbackPath   string

	// Retention and compliance
	RetentionDays     int
	ExpiryWarningDays int
	VerifySchedule    string

	// Escalation
	RedisURL      string
	NotifyChannel string

	// Tracing
	TracingEnabled      bool
	TracingEndpoint     string
	TracingSamplingRate float64
	TracingInsecure     bool
}

var appConfig *Config

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if not already loaded
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	// Get values from environment variables with defaults
	config := &Config{
		// Server
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("APP_ENV", "development"),

		// Database
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "crmaudit"),
		DBPassword: getEnv("DB_PASSWORD", "crmaudit"),
		DBName:     getEnv("DB_NAME", "crmaudit"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "fallback-secret-key-for-dev-only"),

		// Webhook ingestion; empty disables the endpoint
		WebhookAPIKey: getEnv("AUDIT_WEBHOOK_API_KEY", ""),

		// Audit
		AuditWorkers:      getEnvInt("AUDIT_WORKERS", 4),
		AuditQueueSize:    getEnvInt("AUDIT_QUEUE_SIZE", 1024),
		FallbackPath:      getEnv("AUDIT_FALLBACK_PATH", ""),
		RetentionDays:     getEnvInt("AUDIT_RETENTION_DAYS", 2555),
		ExpiryWarningDays: getEnvInt("AUDIT_EXPIRY_WARNING_DAYS", 30),
		VerifySchedule:    getEnv("AUDIT_VERIFY_SCHEDULE", "@hourly"),
		RedisURL:          getEnv("REDIS_URL", ""),
		NotifyChannel:     getEnv("AUDIT_NOTIFY_CHANNEL", "audit:security"),

		// Tracing
		TracingEnabled:      getEnvBool("OTEL_ENABLED", false),
		TracingEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		TracingSamplingRate: getEnvFloat("OTEL_SAMPLING_RATE", 0.1),
		TracingInsecure:     getEnvBool("OTEL_INSECURE", true),
	}

	// Parse JWT expiration duration
	expStr := getEnv("JWT_EXPIRES_IN", "24h")
	expDur, err := time.ParseDuration(expStr)
	if err != nil {
		log.Printf("Warning: invalid JWT_EXPIRES_IN value '%s', falling back to 24h\n", expStr)
		expDur = 24 * time.Hour
	}
	config.JWTExpirationDur = expDur

	appConfig = config
	return config, nil
}

// Get returns the application configuration
func Get() *Config {
	if appConfig == nil {
		var err error
		appConfig, err = Load()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	return appConfig
}

// RetentionPeriod returns the configured retention as a duration. Zero
// disables retention stamping on new records.
func (c *Config) RetentionPeriod() time.Duration {
	if c.RetentionDays <= 0 {
		return 0
	}
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// ExpiryWarning returns the horizon used for "nearing expiry" alerts.
func (c *Config) ExpiryWarning() time.Duration {
	return time.Duration(c.ExpiryWarningDays) * 24 * time.Hour
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable, falling back to the
// default when unset or malformed.
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: invalid %s value '%s', falling back to %d\n", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Warning: invalid %s value '%s', falling back to %t\n", key, value, defaultValue)
		return defaultValue
	}
	return b
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("Warning: invalid %s value '%s', falling back to %g\n", key, value, defaultValue)
		return defaultValue
	}
	return f
}
