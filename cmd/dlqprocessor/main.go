// Command dlqprocessor periodically redrives dead-lettered greeter messages
// back onto the main queue once the downstream webhook probes healthy.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/occasionhook/anniversary-notify/internal/app"
	"github.com/occasionhook/anniversary-notify/internal/clock"
	"github.com/occasionhook/anniversary-notify/internal/dlqprocessor"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Bootstrap("dlqprocessor")
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer a.Shutdown()

	qc, err := a.ConnectQueue(ctx)
	if err != nil {
		log.Fatalf("queue: %v", err)
	}
	defer qc.Drain(a.Cfg.NATS.DrainTimeout)

	proc := dlqprocessor.New(qc, a.NewWebhookTransport(), qc.DLQStream(), clock.Real(), a.Log, a.Metrics)

	a.RunEvery(ctx, a.Cfg.Loop.DLQProcessorInterval, "dlq_redrive", func(ctx context.Context) error {
		_, err := proc.Run(ctx)
		return err
	})
}
