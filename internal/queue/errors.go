package queue

import "errors"

// Sentinel errors returned by the queue gateway.
var (
	ErrNotConnected   = errors.New("nats: not connected")
	ErrPublishFailed  = errors.New("nats: publish failed")
	ErrDrainTimeout   = errors.New("nats: drain timeout exceeded")
	ErrConsumerFailed = errors.New("nats: consumer setup failed")
)
