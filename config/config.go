package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration (seat lock store)
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// SQLite configuration (booking/payment/ticket store)
	DatabasePath string

	// PubNub configuration (customer/admin notifications)
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// Seat lock configuration
	SeatLockTTL     time.Duration
	MaxSeatsPerLock int

	// Payment verification retry policy
	VerifyMaxAttempts  int
	VerifyInitialDelay time.Duration
	VerifyBackoff      float64
	VerifyMaxDelay     time.Duration

	// Ticket issuance queue
	IssuanceRetryDelay time.Duration
	IssuanceMaxRetries int
	SchedulerInterval  time.Duration

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// SQLite
		DatabasePath: getEnv("DATABASE_PATH", "data/booking.db"),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// Seat locks
		SeatLockTTL:     getEnvAsDuration("SEAT_LOCK_TTL", "10m"),
		MaxSeatsPerLock: getEnvAsInt("MAX_SEATS_PER_LOCK", 10),

		// Verification retry
		VerifyMaxAttempts:  getEnvAsInt("VERIFY_MAX_ATTEMPTS", 3),
		VerifyInitialDelay: getEnvAsDuration("VERIFY_INITIAL_DELAY", "100ms"),
		VerifyBackoff:      getEnvAsFloat("VERIFY_BACKOFF_MULTIPLIER", 2.0),
		VerifyMaxDelay:     getEnvAsDuration("VERIFY_MAX_DELAY", "2s"),

		// Issuance
		IssuanceRetryDelay: getEnvAsDuration("ISSUANCE_RETRY_DELAY", "60s"),
		IssuanceMaxRetries: getEnvAsInt("ISSUANCE_MAX_RETRIES", 5),
		SchedulerInterval:  getEnvAsDuration("SCHEDULER_INTERVAL", "1m"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
