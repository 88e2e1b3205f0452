// Package app carries the process bootstrap shared by every binary in
// cmd/: configuration, logging, metrics, error reporting, and the store and
// queue connectors each component wires at startup.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/occasionhook/anniversary-notify/internal/config"
	"github.com/occasionhook/anniversary-notify/internal/metrics"
	"github.com/occasionhook/anniversary-notify/internal/obslog"
	"github.com/occasionhook/anniversary-notify/internal/queue"
	"github.com/occasionhook/anniversary-notify/internal/sentryinit"
	"github.com/occasionhook/anniversary-notify/internal/store"
	"github.com/occasionhook/anniversary-notify/internal/webhook"
	"github.com/occasionhook/anniversary-notify/migrations"
)

// App is the bootstrapped process context every binary starts from.
type App struct {
	Process  string
	Cfg      config.Config
	Log      *slog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Sentry   *sentryinit.Reporter
}

// Bootstrap loads the environment (including a local .env file when one
// exists), builds the logger and metrics registry, and initializes error
// reporting. Invalid configuration is fatal to the caller.
func Bootstrap(process string) (*App, error) {
	for _, path := range []string{".env", "../.env"} {
		if err := godotenv.Load(path); err == nil {
			break
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := obslog.New(obslog.Options{Level: cfg.Log.Level, Process: process})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(cfg.Metrics.Namespace, registry)

	reporter, err := sentryinit.New(sentryinit.Config{
		DSN:         cfg.Sentry.DSN,
		Environment: cfg.AppEnv,
		Process:     process,
	})
	if err != nil {
		log.Warn("sentry init failed, continuing without error reporting",
			slog.String("error", err.Error()))
	}
	reporter.Lifecycle("startup", map[string]string{"app_env": cfg.AppEnv})

	return &App{
		Process:  process,
		Cfg:      cfg,
		Log:      log,
		Registry: registry,
		Metrics:  m,
		Sentry:   reporter,
	}, nil
}

// Shutdown flushes error reporting. Call it last, after every component has
// stopped.
func (a *App) Shutdown() {
	a.Sentry.Lifecycle("shutdown", map[string]string{"app_env": a.Cfg.AppEnv})
	a.Sentry.Close()
}

// ConnectStore opens the Postgres pool, applies pending migrations, and
// returns the pool plus the typed store gateway over it.
func (a *App) ConnectStore(ctx context.Context) (*pgxpool.Pool, store.Store, error) {
	pool, err := store.NewPool(ctx, a.Cfg.Postgres.DSN, a.Cfg.Postgres.MaxConns)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := migrations.Apply(ctx, pool, a.Log); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("apply migrations: %w", err)
	}
	return pool, store.New(pool), nil
}

// ConnectQueue connects to NATS and ensures the greeter and DLQ streams.
func (a *App) ConnectQueue(ctx context.Context) (*queue.Client, error) {
	qcfg := queue.DefaultConfig()
	qcfg.URL = a.Cfg.NATS.URL
	qcfg.GreeterStream = a.Cfg.NATS.GreeterStream
	qcfg.DLQStream = a.Cfg.NATS.DLQStream
	qcfg.ConnectTimeout = a.Cfg.NATS.ConnectTimeout
	qcfg.PublishTimeout = a.Cfg.NATS.PublishTimeout
	qcfg.DrainTimeout = a.Cfg.NATS.DrainTimeout
	qcfg.MaxReconnects = a.Cfg.NATS.MaxReconnects

	client := queue.NewClient(qcfg, a.Log, queue.NewConnMetrics(a.Cfg.Metrics.Namespace, a.Registry))
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	if err := queue.EnsureStreams(ctx, client.JetStream(), qcfg, a.Log); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// NewWebhookTransport builds the outbound webhook transport from config.
func (a *App) NewWebhookTransport() *webhook.Transport {
	wcfg := webhook.DefaultConfig()
	wcfg.URL = a.Cfg.Webhook.URL
	wcfg.Timeout = a.Cfg.Webhook.Timeout
	return webhook.New(wcfg, a.Log, a.Metrics)
}

// RunEvery invokes fn immediately and then once per interval until ctx is
// cancelled. Each invocation failure is logged and reported, never fatal.
func (a *App) RunEvery(ctx context.Context, interval time.Duration, name string, fn func(context.Context) error) {
	run := func() {
		if err := fn(ctx); err != nil {
			a.Log.Error(name+" run failed", slog.String("error", err.Error()))
			a.Sentry.Error(err, name)
		}
	}

	run()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}
