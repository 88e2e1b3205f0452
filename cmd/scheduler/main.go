// Command scheduler runs the due-event sweep on a fixed interval: it reads
// the store's due index and enqueues one greeter message per due event.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/occasionhook/anniversary-notify/internal/app"
	"github.com/occasionhook/anniversary-notify/internal/clock"
	"github.com/occasionhook/anniversary-notify/internal/scheduler"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Bootstrap("scheduler")
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer a.Shutdown()

	pool, st, err := a.ConnectStore(ctx)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer pool.Close()

	qc, err := a.ConnectQueue(ctx)
	if err != nil {
		log.Fatalf("queue: %v", err)
	}
	defer qc.Drain(a.Cfg.NATS.DrainTimeout)

	sched := scheduler.New(st, qc, clock.Real(), a.Log, a.Metrics)

	a.RunEvery(ctx, a.Cfg.Loop.SchedulerInterval, "scheduler_sweep", func(ctx context.Context) error {
		_, err := sched.Sweep(ctx)
		return err
	})
}
