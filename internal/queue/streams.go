package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Subject prefixes for the greeter message space, subjected to per-event-type
// FIFO ordering, and for its dead-letter counterpart.
const (
	SubjectGreeterAll = "greeter.>"
	SubjectDLQAll     = "greeter_dlq.>"
)

// GreeterSubject returns the subject a scheduler sweep publishes to and a
// sender consumer subscribes from for the given event type. The event type
// is the ordering group: deliveries stay FIFO within one subject.
func GreeterSubject(eventType string) string {
	return fmt.Sprintf("greeter.%s", eventType)
}

// DLQSubject returns the dead-letter subject mirroring a greeter subject.
func DLQSubject(eventType string) string {
	return fmt.Sprintf("greeter_dlq.%s", eventType)
}

// GreeterStreamConfig returns the JetStream config for the main greeter
// stream: work-queue retention (each message is claimed by exactly one
// consumer) with a dedup window wide enough to absorb two scheduler sweeps
// at their default interval.
func GreeterStreamConfig(name string) jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:              name,
		Subjects:          []string{SubjectGreeterAll},
		Retention:         jetstream.WorkQueuePolicy,
		MaxAge:            72 * time.Hour,
		MaxBytes:          1 * 1024 * 1024 * 1024,
		Storage:           jetstream.FileStorage,
		Discard:           jetstream.DiscardOld,
		Duplicates:        5 * time.Minute,
		MaxMsgSize:        1024 * 1024,
		NoAck:             false,
		MaxMsgsPerSubject: -1,
	}
}

// DLQStreamConfig returns the JetStream config for the dead-letter stream
// that receives greeter messages whose delivery retries were exhausted.
func DLQStreamConfig(name string) jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:              name,
		Subjects:          []string{SubjectDLQAll},
		Retention:         jetstream.LimitsPolicy,
		MaxAge:            720 * time.Hour,
		MaxBytes:          1 * 1024 * 1024 * 1024,
		Storage:           jetstream.FileStorage,
		Discard:           jetstream.DiscardOld,
		Duplicates:        5 * time.Minute,
		MaxMsgSize:        1024 * 1024,
		NoAck:             false,
		MaxMsgsPerSubject: -1,
	}
}

// SenderConsumerConfig returns the consumer config a sender uses to process
// one event type's greeter messages. MaxAckPending=1 keeps deliveries FIFO
// within the event type; MaxDeliver bounds JetStream's own redelivery
// budget before a message is routed to the DLQ stream.
func SenderConsumerConfig(eventType string) jetstream.ConsumerConfig {
	return jetstream.ConsumerConfig{
		Durable:       fmt.Sprintf("sender-%s", eventType),
		FilterSubject: GreeterSubject(eventType),
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    3,
		MaxAckPending: 1, // CRITICAL: per-event-type FIFO guarantee
		BackOff: []time.Duration{
			5 * time.Second,
			30 * time.Second,
		},
		DeliverPolicy: jetstream.DeliverAllPolicy,
	}
}

// EnsureStreams creates or updates the greeter and DLQ streams.
func EnsureStreams(ctx context.Context, js jetstream.JetStream, cfg Config, log *slog.Logger) error {
	streams := []jetstream.StreamConfig{
		GreeterStreamConfig(cfg.GreeterStream),
		DLQStreamConfig(cfg.DLQStream),
	}

	for _, streamCfg := range streams {
		stream, err := js.CreateOrUpdateStream(ctx, streamCfg)
		if err != nil {
			return fmt.Errorf("ensure stream %s: %w", streamCfg.Name, err)
		}
		info, err := stream.Info(ctx)
		if err != nil {
			log.Warn("failed to get stream info after create",
				slog.String("stream", streamCfg.Name),
				slog.String("error", err.Error()))
			continue
		}
		log.Info("stream ensured",
			slog.String("stream", streamCfg.Name),
			slog.Uint64("messages", info.State.Msgs),
			slog.Uint64("bytes", info.State.Bytes),
		)
	}

	return nil
}
