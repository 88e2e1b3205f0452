// Command sender runs one delivery worker per event type, consuming greeter
// messages from the queue and driving each through the claim → deliver →
// complete protocol.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/occasionhook/anniversary-notify/internal/app"
	"github.com/occasionhook/anniversary-notify/internal/clock"
	"github.com/occasionhook/anniversary-notify/internal/sender"
	"github.com/occasionhook/anniversary-notify/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Bootstrap("sender")
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

	processor := sender.NewProcessor(st, a.NewWebhookTransport(), clock.Real(), a.Log, a.Metrics)

	workers := make([]*sender.Worker, 0, len(store.EventTypes))
	for _, eventType := range store.EventTypes {
		w := sender.NewWorker(eventType, qc, processor, a.Log, a.Metrics)
		if err := w.Start(ctx); err != nil {
			log.Fatalf("start worker for %s: %v", eventType, err)
		}
		workers = append(workers, w)
	}

	<-ctx.Done()
	for _, w := range workers {
		w.Stop()
	}
}
