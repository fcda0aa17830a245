package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration for the erasure engine.
type Server struct {
	Addr        string
	Environment string

	// RetentionWindow is the fixed legal period after which a pending
	// request must be executed. Process-wide, never per-request.
	RetentionWindow time.Duration

	// Scheduler tuning.
	SchedulerInterval time.Duration
	BatchSize         int
	MaxRetryAttempts  int
	StalenessTimeout  time.Duration
	DeadlineLeadTime  time.Duration

	// Per-step timeout for external system calls made by the orchestrator.
	SystemCallTimeout time.Duration

	DatabaseURL  string
	RedisURL     string
	KafkaBrokers string
	AlertTopic   string

	// PaymentAPIBaseURL points at the external billing processor.
	PaymentAPIBaseURL string
	PaymentAPIKey     string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:              envString("LETHE_ADDR", ":8080"),
		Environment:       envString("LETHE_ENV", "dev"),
		RetentionWindow:   envDuration("LETHE_RETENTION_WINDOW", 30*24*time.Hour),
		SchedulerInterval: envDuration("LETHE_SCHEDULER_INTERVAL", 4*time.Hour),
		BatchSize:         envInt("LETHE_BATCH_SIZE", 50),
		MaxRetryAttempts:  envInt("LETHE_MAX_RETRY_ATTEMPTS", 3),
		StalenessTimeout:  envDuration("LETHE_STALENESS_TIMEOUT", 2*time.Hour),
		DeadlineLeadTime:  envDuration("LETHE_DEADLINE_LEAD_TIME", 72*time.Hour),
		SystemCallTimeout: envDuration("LETHE_SYSTEM_CALL_TIMEOUT", 30*time.Second),
		DatabaseURL:       os.Getenv("LETHE_DATABASE_URL"),
		RedisURL:          os.Getenv("LETHE_REDIS_URL"),
		KafkaBrokers:      os.Getenv("LETHE_KAFKA_BROKERS"),
		AlertTopic:        envString("LETHE_ALERT_TOPIC", "lethe.compliance.alerts"),
		PaymentAPIBaseURL: os.Getenv("LETHE_PAYMENT_API_URL"),
		PaymentAPIKey:     os.Getenv("LETHE_PAYMENT_API_KEY"),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
