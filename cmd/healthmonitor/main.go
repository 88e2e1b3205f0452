// Command healthmonitor periodically reports missed deliveries and promotes
// events stuck mid-send to failed so a later attempt can re-claim them.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/occasionhook/anniversary-notify/internal/app"
	"github.com/occasionhook/anniversary-notify/internal/clock"
	"github.com/occasionhook/anniversary-notify/internal/healthmonitor"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Bootstrap("healthmonitor")
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer a.Shutdown()

	pool, st, err := a.ConnectStore(ctx)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer pool.Close()

	monitor := healthmonitor.New(st, clock.Real(), a.Log, a.Metrics)

	a.RunEvery(ctx, a.Cfg.Loop.HealthMonitorInterval, "health_check", func(ctx context.Context) error {
		_, err := monitor.Run(ctx)
		return err
	})
}
