// Package dlqprocessor implements the failure-recovery redrive loop:
// a periodic, health-gated drain of the dead-letter stream back onto the
// main greeter subjects. The gate exists so a redrive never re-enters a
// webhook outage that is still in progress.
package dlqprocessor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/occasionhook/anniversary-notify/internal/clock"
	"github.com/occasionhook/anniversary-notify/internal/config"
	"github.com/occasionhook/anniversary-notify/internal/metrics"
	"github.com/occasionhook/anniversary-notify/internal/queue"
)

// Gateway is the slice of the queue gateway a redrive run depends on.
// *queue.Client satisfies it.
type Gateway interface {
	StreamDepth(ctx context.Context, streamName string) (uint64, error)
	ReceiveDLQBatch(ctx context.Context, streamName string, limit int, wait time.Duration) ([]queue.DLQMessage, error)
	RepublishGreeter(ctx context.Context, eventType string, payload []byte, dedupKey string) (*jetstream.PubAck, error)
}

// HealthProber reports whether the downstream webhook currently accepts
// deliveries.
type HealthProber interface {
	Probe(ctx context.Context) bool
}

// RunStats summarizes one redrive invocation.
type RunStats struct {
	Depth    uint64
	Probed   bool
	Healthy  bool
	Received int
	Redriven int
	Failures int
}

// Processor drains bounded DLQ batches back to the main queue.
type Processor struct {
	gateway   Gateway
	prober    HealthProber
	dlqStream string
	fetchWait time.Duration
	clock     clock.Clock
	log       *slog.Logger
	metrics   *metrics.Metrics
}

// New constructs a Processor. metrics may be nil in tests.
func New(gw Gateway, prober HealthProber, dlqStream string, clk clock.Clock, log *slog.Logger, m *metrics.Metrics) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		gateway:   gw,
		prober:    prober,
		dlqStream: dlqStream,
		fetchWait: 5 * time.Second,
		clock:     clk,
		log:       log.With(slog.String("component", "dlq_processor")),
		metrics:   m,
	}
}

// Run performs one redrive pass: depth check, health probe, then per-message
// republish-and-terminate. A message whose republish fails is nak'd and
// stays in the DLQ for the next run.
func (p *Processor) Run(ctx context.Context) (RunStats, error) {
	var stats RunStats

	depth, err := p.gateway.StreamDepth(ctx, p.dlqStream)
	if err != nil {
		return stats, fmt.Errorf("dlq depth: %w", err)
	}
	stats.Depth = depth
	if depth == 0 {
		p.log.Debug("dlq empty, nothing to redrive")
		return stats, nil
	}

	stats.Probed = true
	stats.Healthy = p.prober.Probe(ctx)
	if !stats.Healthy {
		p.log.Warn("webhook unhealthy, skipping redrive",
			slog.Uint64("dlq_depth", depth),
		)
		return stats, nil
	}

	messages, err := p.gateway.ReceiveDLQBatch(ctx, p.dlqStream, config.DLQBatchSize, p.fetchWait)
	if err != nil {
		return stats, fmt.Errorf("receive dlq batch: %w", err)
	}
	stats.Received = len(messages)

	for _, msg := range messages {
		if err := p.redriveOne(ctx, msg); err != nil {
			stats.Failures++
			p.countRedrive(false)
			p.log.Error("redrive failed, message stays in dlq",
				slog.String("subject", msg.Subject),
				slog.String("error", err.Error()),
			)
			if nakErr := msg.Nak(); nakErr != nil {
				p.log.Error("failed to nak dlq message", slog.String("error", nakErr.Error()))
			}
			continue
		}
		stats.Redriven++
		p.countRedrive(true)
	}

	p.log.Info("redrive completed",
		slog.Uint64("dlq_depth", stats.Depth),
		slog.Int("received", stats.Received),
		slog.Int("redriven", stats.Redriven),
		slog.Int("failures", stats.Failures),
	)
	return stats, nil
}

func (p *Processor) redriveOne(ctx context.Context, msg queue.DLQMessage) error {
	eventType := eventTypeFromSubject(msg.Subject)
	dedupKey := msg.DedupKey
	if dedupKey == "" {
		dedupKey = fmt.Sprintf("redrive-%d-%s", p.clock.Now().Unix(), uuid.NewString())
	}

	if _, err := p.gateway.RepublishGreeter(ctx, eventType, msg.Data, dedupKey); err != nil {
		return fmt.Errorf("republish to main queue: %w", err)
	}
	if err := msg.Terminate(); err != nil {
		return fmt.Errorf("terminate dlq copy: %w", err)
	}
	return nil
}

// eventTypeFromSubject recovers the group key from a dead-letter subject
// like "greeter_dlq.birthday".
func eventTypeFromSubject(subject string) string {
	if idx := strings.LastIndex(subject, "."); idx >= 0 {
		return subject[idx+1:]
	}
	return subject
}

func (p *Processor) countRedrive(ok bool) {
	if p.metrics == nil {
		return
	}
	if ok {
		p.metrics.DLQRedrivenTotal.Inc()
	} else {
		p.metrics.DLQRedriveFailures.Inc()
	}
}
