// Package config loads the daemon configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the daemon's process-level configuration. Tracking
// behavior (intervals, endpoint, filters) lives in the settings store,
// not here; this is only what must be known before the store exists.
type Config struct {
	ServiceName string
	Environment string

	// Port is the control API listen port.
	Port string

	// DatabasePath is the SQLite file backing the queue, geofences and
	// profiles.
	DatabasePath string

	// AutoStart begins capturing as soon as the daemon is up, without
	// waiting for a tracking/start command.
	AutoStart bool

	// RequestTimeout bounds each outbound delivery request.
	RequestTimeout time.Duration

	// BatchSize is the maximum records drained per sync pass.
	BatchSize int

	// AuthType selects the outbound auth scheme: none, basic or bearer.
	AuthType  string
	AuthUser  string
	AuthPass  string
	AuthToken string

	OTLPEndpoint     string
	TelemetryEnabled bool
}

// Load reads the configuration from the environment. A .env file in the
// working directory is merged in first when present.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		ServiceName:      getEnvOrDefault("WAYPOST_SERVICE_NAME", "waypost"),
		Environment:      getEnvOrDefault("WAYPOST_ENV", "development"),
		Port:             getEnvOrDefault("WAYPOST_PORT", "8181"),
		DatabasePath:     getEnvOrDefault("WAYPOST_DB_PATH", "waypost.db"),
		AutoStart:        getEnvBool("WAYPOST_AUTO_START", false),
		RequestTimeout:   getEnvDuration("WAYPOST_REQUEST_TIMEOUT", 30*time.Second),
		BatchSize:        getEnvInt("WAYPOST_BATCH_SIZE", 50),
		AuthType:         getEnvOrDefault("WAYPOST_AUTH_TYPE", "none"),
		AuthUser:         os.Getenv("WAYPOST_AUTH_USER"),
		AuthPass:         os.Getenv("WAYPOST_AUTH_PASS"),
		AuthToken:        os.Getenv("WAYPOST_AUTH_TOKEN"),
		OTLPEndpoint:     getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		TelemetryEnabled: getEnvBool("OTEL_ENABLED", false),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
