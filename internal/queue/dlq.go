package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// DLQMessage is one dead-lettered greeter message, already decoupled from
// the underlying jetstream.Msg so callers outside this package never import
// jetstream directly.
type DLQMessage struct {
	Subject  string
	Data     []byte
	DedupKey string

	raw jetstream.Msg
}

// Terminate tells JetStream this DLQ copy has been handled and must not be
// redelivered again.
func (m DLQMessage) Terminate() error {
	if m.raw == nil {
		return nil
	}
	return m.raw.Term()
}

// Nak returns the message to the DLQ stream for a later redrive attempt.
func (m DLQMessage) Nak() error {
	if m.raw == nil {
		return nil
	}
	return m.raw.Nak()
}

// ReceiveDLQBatch fetches up to limit messages from the dead-letter stream
// using a short-lived pull consumer, waiting up to wait for the first
// message to arrive.
func (c *Client) ReceiveDLQBatch(ctx context.Context, streamName string, limit int, wait time.Duration) ([]DLQMessage, error) {
	js := c.JetStream()
	if js == nil {
		return nil, ErrNotConnected
	}

	consumer, err := js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		Durable:       "dlq-redrive",
		FilterSubject: SubjectDLQAll,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       2 * time.Minute,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure dlq redrive consumer: %w", err)
	}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(wait))
	if err != nil {
		return nil, fmt.Errorf("fetch dlq batch: %w", err)
	}

	var messages []DLQMessage
	for msg := range batch.Messages() {
		dedupKey := msg.Headers().Get("Nats-Msg-Id")
		messages = append(messages, DLQMessage{
			Subject:  msg.Subject(),
			Data:     msg.Data(),
			DedupKey: dedupKey,
			raw:      msg,
		})
	}
	if err := batch.Error(); err != nil {
		return messages, fmt.Errorf("dlq batch: %w", err)
	}

	return messages, nil
}
