package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/occasionhook/anniversary-notify/internal/metrics"
	"github.com/occasionhook/anniversary-notify/internal/queue"
)

// Worker consumes one event type's greeter subject and feeds each delivery
// through the Processor, mapping its decision onto Ack/Nak/Term. When a
// message's redelivery budget is exhausted it is copied to the dead-letter
// subject before being terminated.
type Worker struct {
	eventType string
	client    *queue.Client
	processor *Processor
	log       *slog.Logger
	metrics   *metrics.Metrics

	consumer jetstream.Consumer
	consCtx  jetstream.ConsumeContext
	cancel   context.CancelFunc
}

// NewWorker constructs a Worker for one event type.
func NewWorker(eventType string, client *queue.Client, processor *Processor, log *slog.Logger, m *metrics.Metrics) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		eventType: eventType,
		client:    client,
		processor: processor,
		log:       log.With(slog.String("component", "sender_worker"), slog.String("event_type", eventType)),
		metrics:   m,
	}
}

// Start ensures the durable consumer and begins consuming. The consumer's
// MaxAckPending of 1 serializes deliveries per event type, which is the
// FIFO guarantee the group key carries.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	consumerCfg := queue.SenderConsumerConfig(w.eventType)
	consumer, err := w.client.EnsureConsumer(ctx, w.client.GreeterStream(), consumerCfg)
	if err != nil {
		cancel()
		return fmt.Errorf("ensure sender consumer for %s: %w", w.eventType, err)
	}
	w.consumer = consumer

	consCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		w.handleMessage(ctx, msg)
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start consume for %s: %w", w.eventType, err)
	}
	w.consCtx = consCtx

	w.log.Info("sender worker started",
		slog.String("consumer", consumerCfg.Durable),
		slog.String("filter", consumerCfg.FilterSubject),
	)
	return nil
}

// Stop stops consuming and cancels in-flight processing.
func (w *Worker) Stop() {
	if w.consCtx != nil {
		w.consCtx.Stop()
	}
	if w.cancel != nil {
		w.cancel()
	}
	w.log.Info("sender worker stopped")
}

func (w *Worker) handleMessage(ctx context.Context, msg jetstream.Msg) {
	var greeter queue.GreeterMessage
	if err := json.Unmarshal(msg.Data(), &greeter); err != nil {
		w.log.Error("failed to unmarshal greeter message, terminating",
			slog.String("error", err.Error()),
		)
		if termErr := msg.Term(); termErr != nil {
			w.log.Error("failed to term malformed message", slog.String("error", termErr.Error()))
		}
		w.countConsume(msg.Subject(), "malformed")
		return
	}

	decision, procErr := w.processor.Process(ctx, greeter)

	switch decision {
	case DecisionAck:
		if err := msg.Ack(); err != nil {
			w.log.Error("failed to ack message", slog.String("error", err.Error()))
		}
		w.countConsume(msg.Subject(), "ack")

	case DecisionTerminate:
		if err := msg.Term(); err != nil {
			w.log.Error("failed to term message", slog.String("error", err.Error()))
		}
		w.countConsume(msg.Subject(), "terminate")

	case DecisionRetry:
		w.retryOrDeadLetter(ctx, msg, greeter, procErr)
	}
}

// retryOrDeadLetter naks the message for redelivery, or, once the consumer's
// delivery budget is exhausted, copies it to the DLQ subject and terminates
// the original so the work-queue stream stays drained.
func (w *Worker) retryOrDeadLetter(ctx context.Context, msg jetstream.Msg, greeter queue.GreeterMessage, procErr error) {
	logFields := []any{
		slog.String("user_id", greeter.ID),
		slog.String("event_type", greeter.EventType),
	}
	if procErr != nil {
		logFields = append(logFields, slog.String("error", procErr.Error()))
	}

	meta, metaErr := msg.Metadata()
	if metaErr == nil && int(meta.NumDelivered) >= queue.SenderConsumerConfig(w.eventType).MaxDeliver {
		dedupKey := msg.Headers().Get("Nats-Msg-Id")
		if dedupKey == "" {
			dedupKey = fmt.Sprintf("%s-%s-%d", greeter.ID, greeter.EventType, greeter.YearNow)
		}
		if _, err := w.client.PublishToDLQSubject(ctx, greeter.EventType, msg.Data(), "dlq-"+dedupKey); err != nil {
			w.log.Error("failed to publish to dlq, nak for another attempt",
				append(logFields, slog.String("dlq_error", err.Error()))...)
			if nakErr := msg.Nak(); nakErr != nil {
				w.log.Error("failed to nak message", slog.String("error", nakErr.Error()))
			}
			return
		}
		w.log.Warn("delivery budget exhausted, message dead-lettered", logFields...)
		if termErr := msg.Term(); termErr != nil {
			w.log.Error("failed to term dead-lettered message", slog.String("error", termErr.Error()))
		}
		w.countConsume(msg.Subject(), "dead_lettered")
		return
	}

	w.log.Warn("delivery failed, nak for redelivery", logFields...)
	if err := msg.Nak(); err != nil {
		w.log.Error("failed to nak message", slog.String("error", err.Error()))
	}
	w.countConsume(msg.Subject(), "nak")
}

func (w *Worker) countConsume(subject, outcome string) {
	if w.metrics != nil {
		w.metrics.QueueConsumeTotal.WithLabelValues(subject, outcome).Inc()
	}
}
