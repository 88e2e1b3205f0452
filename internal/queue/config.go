package queue

import (
	"errors"
	"time"
)

// Config holds NATS connection and stream configuration for the queue
// gateway.
type Config struct {
	URL            string
	Token          string
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int

	PublishTimeout time.Duration
	DrainTimeout   time.Duration

	GreeterStream string
	DLQStream     string
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() Config {
	return Config{
		URL:            "nats://localhost:4222",
		ConnectTimeout: 10 * time.Second,
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  -1,
		PublishTimeout: 5 * time.Second,
		DrainTimeout:   30 * time.Second,
		GreeterStream:  "GREETER",
		DLQStream:      "GREETER_DLQ",
	}
}

// ErrInvalidConfig is returned by Validate when required fields are missing.
var ErrInvalidConfig = errors.New("invalid nats config")

// Validate checks that the config has the fields required to connect.
func (c Config) Validate() error {
	if c.URL == "" {
		return ErrInvalidConfig
	}
	return nil
}
