// Package config loads the process environment into a typed Config, and
// carries the fixed (non-tunable) operational constants this system runs on.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Fixed operational constants. These are not environment-tunable: changing
// them changes the correctness properties of the sender and monitor, so they
// are pinned in code rather than left to operator configuration.
const (
	// StuckTimeoutSender is how long an event may sit in sending_status
	// "sending" before a sender itself treats it as abandoned and retakes it.
	StuckTimeoutSender = 5 * time.Minute

	// StuckTimeoutMonitor is how long an event may sit "sending" before the
	// health monitor promotes it to failed. Always longer than
	// StuckTimeoutSender so the monitor never races a sender's own recovery.
	StuckTimeoutMonitor = 10 * time.Minute

	// SchedulerPageSize bounds each page of QueryDue the scheduler consumes.
	SchedulerPageSize = 100

	// DLQBatchSize bounds how many dead-lettered messages one DLQ processor
	// run will attempt to redrive.
	DLQBatchSize = 10
)

// Config holds every environment-driven setting this system recognizes.
type Config struct {
	AppEnv string

	Log struct {
		Level string
	}

	Postgres struct {
		DSN      string
		MaxConns int32
	}

	NATS struct {
		URL            string
		GreeterStream  string
		DLQStream      string
		ConnectTimeout time.Duration
		PublishTimeout time.Duration
		DrainTimeout   time.Duration
		MaxReconnects  int
	}

	Webhook struct {
		URL     string
		Timeout time.Duration
	}

	Metrics struct {
		Namespace string
	}

	Admin struct {
		Addr          string
		ShutdownGrace time.Duration
	}

	Loop struct {
		SchedulerInterval     time.Duration
		DLQProcessorInterval  time.Duration
		HealthMonitorInterval time.Duration
	}

	Sentry struct {
		DSN string
	}
}

// Load reads environment variables (via os.LookupEnv, already populated from
// a local .env file by the caller through godotenv) into a Config, applying
// production-sane defaults for anything unset.
func Load() (Config, error) {
	var cfg Config

	cfg.AppEnv = getEnv("APP_ENV", "development")
	cfg.Log.Level = getEnv("LOG_LEVEL", "INFO")

	maxConns, err := parseInt32(getEnv("POSTGRES_MAX_CONNS", "16"))
	if err != nil {
		return cfg, fmt.Errorf("invalid POSTGRES_MAX_CONNS: %w", err)
	}
	cfg.Postgres.DSN = getEnv("DATABASE_URL", "")
	cfg.Postgres.MaxConns = maxConns
	if cfg.Postgres.DSN == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}

	connectTimeout, err := parseDuration(getEnv("NATS_CONNECT_TIMEOUT", "10s"))
	if err != nil {
		return cfg, fmt.Errorf("invalid NATS_CONNECT_TIMEOUT: %w", err)
	}
	publishTimeout, err := parseDuration(getEnv("NATS_PUBLISH_TIMEOUT", "5s"))
	if err != nil {
		return cfg, fmt.Errorf("invalid NATS_PUBLISH_TIMEOUT: %w", err)
	}
	drainTimeout, err := parseDuration(getEnv("NATS_DRAIN_TIMEOUT", "30s"))
	if err != nil {
		return cfg, fmt.Errorf("invalid NATS_DRAIN_TIMEOUT: %w", err)
	}
	maxReconnects, err := parseInt(getEnv("NATS_MAX_RECONNECTS", "-1"))
	if err != nil {
		return cfg, fmt.Errorf("invalid NATS_MAX_RECONNECTS: %w", err)
	}
	cfg.NATS.URL = getEnv("NATS_URL", "nats://localhost:4222")
	cfg.NATS.GreeterStream = getEnv("NATS_GREETER_STREAM", "GREETER")
	cfg.NATS.DLQStream = getEnv("NATS_DLQ_STREAM", "GREETER_DLQ")
	cfg.NATS.ConnectTimeout = connectTimeout
	cfg.NATS.PublishTimeout = publishTimeout
	cfg.NATS.DrainTimeout = drainTimeout
	cfg.NATS.MaxReconnects = maxReconnects

	webhookTimeout, err := parseDuration(getEnv("WEBHOOK_TIMEOUT", "4s"))
	if err != nil {
		return cfg, fmt.Errorf("invalid WEBHOOK_TIMEOUT: %w", err)
	}
	cfg.Webhook.URL = getEnv("HOOKBIN_URL", "")
	cfg.Webhook.Timeout = webhookTimeout
	if cfg.Webhook.URL == "" {
		return cfg, fmt.Errorf("HOOKBIN_URL is required")
	}

	cfg.Metrics.Namespace = getEnv("METRICS_NAMESPACE", "anniversary_notify")

	shutdownGrace, err := parseDuration(getEnv("ADMIN_SHUTDOWN_GRACE", "10s"))
	if err != nil {
		return cfg, fmt.Errorf("invalid ADMIN_SHUTDOWN_GRACE: %w", err)
	}
	cfg.Admin.Addr = getEnv("ADMIN_ADDR", "0.0.0.0:8090")
	cfg.Admin.ShutdownGrace = shutdownGrace

	schedulerInterval, err := parseDuration(getEnv("SCHEDULER_INTERVAL", "1m"))
	if err != nil {
		return cfg, fmt.Errorf("invalid SCHEDULER_INTERVAL: %w", err)
	}
	dlqInterval, err := parseDuration(getEnv("DLQ_PROCESSOR_INTERVAL", "5m"))
	if err != nil {
		return cfg, fmt.Errorf("invalid DLQ_PROCESSOR_INTERVAL: %w", err)
	}
	healthInterval, err := parseDuration(getEnv("HEALTH_MONITOR_INTERVAL", "5m"))
	if err != nil {
		return cfg, fmt.Errorf("invalid HEALTH_MONITOR_INTERVAL: %w", err)
	}
	cfg.Loop.SchedulerInterval = schedulerInterval
	cfg.Loop.DLQProcessorInterval = dlqInterval
	cfg.Loop.HealthMonitorInterval = healthInterval

	cfg.Sentry.DSN = getEnv("SENTRY_DSN", "")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && strings.TrimSpace(val) != "" {
		return val
	}
	return fallback
}

func parseDuration(val string) (time.Duration, error) {
	trimmed := strings.TrimSpace(val)
	if trimmed == "" {
		return 0, nil
	}
	if strings.HasSuffix(trimmed, "d") {
		daysStr := strings.TrimSuffix(trimmed, "d")
		days, err := strconv.ParseFloat(daysStr, 64)
		if err != nil {
			return 0, err
		}
		return time.Duration(days * 24 * float64(time.Hour)), nil
	}
	if strings.HasSuffix(trimmed, "w") {
		weeksStr := strings.TrimSuffix(trimmed, "w")
		weeks, err := strconv.ParseFloat(weeksStr, 64)
		if err != nil {
			return 0, err
		}
		return time.Duration(weeks * 7 * 24 * float64(time.Hour)), nil
	}
	return time.ParseDuration(trimmed)
}

func parseInt(val string) (int, error) {
	i, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return 0, err
	}
	return i, nil
}

func parseInt32(val string) (int32, error) {
	parsed, err := parseInt(val)
	if err != nil {
		return 0, err
	}
	return int32(parsed), nil
}
