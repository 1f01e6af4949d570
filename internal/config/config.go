// Package config loads governd's process configuration from the
// environment, following the teacher's flat Load()-returns-struct
// convention (pkg/config.Load in the teacher repo).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds governd's process configuration.
type Config struct {
	Port            string
	LogLevel        string
	DatabaseURL     string
	RedisAddr       string
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	SignKeyID       string
	SignAlgorithm   string
	WebhookJWTTTL   time.Duration
	ScheduleHistory int
}

// Load reads configuration from environment variables, falling back
// to development-friendly defaults.
func Load() *Config {
	return &Config{
		Port:            getEnv("PORT", "8090"),
		LogLevel:        getEnv("LOG_LEVEL", "INFO"),
		DatabaseURL:     getEnv("DATABASE_URL", "postgres://governance@localhost:5432/governance?sslmode=disable"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		S3Bucket:        getEnv("REPORT_ARCHIVE_BUCKET", "governance-core-reports"),
		S3Region:        getEnv("REPORT_ARCHIVE_REGION", "us-east-1"),
		S3Endpoint:      getEnv("REPORT_ARCHIVE_ENDPOINT", ""),
		SignKeyID:       getEnv("SIGNING_KEY_ID", "governance-core-default"),
		SignAlgorithm:   getEnv("SIGNING_ALGORITHM", "ed25519"),
		WebhookJWTTTL:   getEnvDuration("WEBHOOK_JWT_TTL", 5*time.Minute),
		ScheduleHistory: getEnvInt("SCHEDULE_HISTORY_SIZE", 50),
	}
}

// Validate reports the first configuration error found, if any.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("config: PORT must not be empty")
	}
	if c.SignAlgorithm != "ed25519" && c.SignAlgorithm != "rsa" {
		return fmt.Errorf("config: unsupported SIGNING_ALGORITHM %q", c.SignAlgorithm)
	}
	if c.ScheduleHistory <= 0 {
		return fmt.Errorf("config: SCHEDULE_HISTORY_SIZE must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
