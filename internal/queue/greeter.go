package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// GreeterMessage is the wire shape published by the scheduler and consumed
// by the sender.
type GreeterMessage struct {
	ID              string `json:"id"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Timezone        string `json:"timezone"`
	PK              string `json:"pk"`
	SK              string `json:"sk"`
	EventType       string `json:"eventType"`
	EventDate       string `json:"eventDate"`
	NotifyLocalTime string `json:"notifyLocalTime"`
	LastSentYear    int    `json:"lastSentYear"`
	YearNow         int    `json:"yearNow"`
}

// PublishGreeter publishes msg to its event type's subject with dedupKey as
// the JetStream message-ID, which the stream's Duplicates window uses to
// collapse repeat enqueues across scheduler sweeps.
func (c *Client) PublishGreeter(ctx context.Context, msg GreeterMessage, dedupKey string) (*jetstream.PubAck, error) {
	js := c.JetStream()
	if js == nil {
		return nil, ErrNotConnected
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal greeter message: %w", err)
	}

	subject := GreeterSubject(msg.EventType)
	ack, err := js.Publish(ctx, subject, body, jetstream.WithMsgID(dedupKey))
	if err != nil {
		return nil, fmt.Errorf("publish greeter message to %s: %w", subject, err)
	}
	return ack, nil
}

// PublishToDLQSubject republishes a raw payload to the dead-letter subject
// matching eventType, preserving the original dedup key where the caller has
// one.
func (c *Client) PublishToDLQSubject(ctx context.Context, eventType string, payload []byte, dedupKey string) (*jetstream.PubAck, error) {
	js := c.JetStream()
	if js == nil {
		return nil, ErrNotConnected
	}

	subject := DLQSubject(eventType)
	ack, err := js.Publish(ctx, subject, payload, jetstream.WithMsgID(dedupKey))
	if err != nil {
		return nil, fmt.Errorf("publish to dlq subject %s: %w", subject, err)
	}
	return ack, nil
}

// RepublishGreeter republishes a raw greeter payload back onto its original
// subject with dedupKey, used by the DLQ processor to redrive a message.
func (c *Client) RepublishGreeter(ctx context.Context, eventType string, payload []byte, dedupKey string) (*jetstream.PubAck, error) {
	js := c.JetStream()
	if js == nil {
		return nil, ErrNotConnected
	}

	subject := GreeterSubject(eventType)
	ack, err := js.Publish(ctx, subject, payload, jetstream.WithMsgID(dedupKey))
	if err != nil {
		return nil, fmt.Errorf("republish greeter message to %s: %w", subject, err)
	}
	return ack, nil
}
