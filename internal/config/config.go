// Package config loads the engine configuration from the environment, with
// .env support for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config is the full runtime configuration. DATABASE_URL is the only required
// setting; everything else carries a workable default.
type Config struct {
	DatabaseURL    string
	Port           string
	AllowedOrigins string

	PipelineWorkers int
	PipelineQueue   int
	SweepInterval   time.Duration

	KeepaliveInterval time.Duration
	SubscriberBuffer  int

	AlertWebhookURL  string
	AlertMinSeverity int

	RateLimitRPM int
}

// Load reads .env when present, then the process environment. Values already
// set in the environment win over .env entries.
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("loaded .env file")
	}

	cfg := &Config{
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		Port:              getEnv("PORT", "8080"),
		AllowedOrigins:    getEnv("ALLOWED_ORIGINS", ""),
		PipelineWorkers:   getEnvInt("PIPELINE_WORKERS", 4),
		PipelineQueue:     getEnvInt("PIPELINE_QUEUE", 256),
		SweepInterval:     getEnvDuration("SWEEP_INTERVAL", 30*time.Second),
		KeepaliveInterval: getEnvDuration("KEEPALIVE_INTERVAL", 30*time.Second),
		SubscriberBuffer:  getEnvInt("SUBSCRIBER_BUFFER", 64),
		AlertWebhookURL:   os.Getenv("ALERT_WEBHOOK_URL"),
		AlertMinSeverity:  getEnvInt("ALERT_MIN_SEVERITY", 3),
		RateLimitRPM:      getEnvInt("RATE_LIMIT_RPM", 60),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("not an integer, using default")
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("not a duration, using default")
		return fallback
	}
	return d
}
