// Command admin serves the internal operational surface: liveness and
// readiness probes, Prometheus metrics, and an on-demand health report.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/occasionhook/anniversary-notify/internal/admin"
	"github.com/occasionhook/anniversary-notify/internal/app"
	"github.com/occasionhook/anniversary-notify/internal/clock"
	"github.com/occasionhook/anniversary-notify/internal/healthmonitor"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Bootstrap("admin")
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer a.Shutdown()

	pool, st, err := a.ConnectStore(ctx)
	if err != nil {
		log.Fatalf("store: %v", err)
	}

	qc, err := a.ConnectQueue(ctx)
	if err != nil {
		pool.Close()
		log.Fatalf("queue: %v", err)
	}

	router := admin.NewRouter(admin.Deps{
		Log:      a.Log,
		Registry: a.Registry,
		Pool:     pool,
		Queue:    qc,
		Monitor:  healthmonitor.New(st, clock.Real(), a.Log, a.Metrics),
		Sentry:   a.Sentry,
	})

	srv := admin.NewServer(router, a.Cfg.Admin.Addr, a.Cfg.Admin.ShutdownGrace, a.Log,
		func() { _ = qc.Drain(a.Cfg.NATS.DrainTimeout) },
		pool.Close,
	)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("admin server: %v", err)
	}
}
