// Package queue implements the queue gateway: a NATS JetStream client
// wrapper for publishing greeter messages with group ordering and dedup, and
// for peeking/redriving the dead-letter stream.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Client wraps a NATS connection with JetStream support, reconnect handling,
// publish helpers, and graceful drain/close.
type Client struct {
	cfg     Config
	conn    *natsgo.Conn
	js      jetstream.JetStream
	log     *slog.Logger
	metrics *ConnMetrics

	mu     sync.RWMutex
	closed bool
}

// NewClient creates a queue Client but does not connect. Call Connect to
// establish the connection.
func NewClient(cfg Config, log *slog.Logger, metrics *ConnMetrics) *Client {
	return &Client{
		cfg:     cfg,
		log:     log.With(slog.String("component", "queue_client")),
		metrics: metrics,
	}
}

// Connect establishes the NATS connection and initializes JetStream.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.cfg.Validate(); err != nil {
		return fmt.Errorf("queue config: %w", err)
	}

	opts := []natsgo.Option{
		natsgo.Name("anniversary-notify"),
		natsgo.Timeout(c.cfg.ConnectTimeout),
		natsgo.ReconnectWait(c.cfg.ReconnectWait),
		natsgo.MaxReconnects(c.cfg.MaxReconnects),
		natsgo.DisconnectErrHandler(c.onDisconnect),
		natsgo.ReconnectHandler(c.onReconnect),
		natsgo.ClosedHandler(c.onClosed),
		natsgo.ErrorHandler(c.onError),
	}
	if c.cfg.Token != "" {
		opts = append(opts, natsgo.Token(c.cfg.Token))
	}

	conn, err := natsgo.Connect(c.cfg.URL, opts...)
	if err != nil {
		return fmt.Errorf("nats connect to %s: %w", c.cfg.URL, err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("jetstream init: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.js = js
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.ConnectionStatus.Set(1)
	}

	c.log.Info("connected to nats",
		slog.String("url", c.cfg.URL),
		slog.String("server_id", conn.ConnectedServerId()),
	)
	return nil
}

// JetStream returns the underlying JetStream context for stream/consumer
// operations that the higher-level gateway methods don't cover directly.
func (c *Client) JetStream() jetstream.JetStream {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.js
}

// GreeterStream returns the configured main greeter stream name.
func (c *Client) GreeterStream() string {
	return c.cfg.GreeterStream
}

// DLQStream returns the configured dead-letter stream name.
func (c *Client) DLQStream() string {
	return c.cfg.DLQStream
}

// Conn returns the underlying NATS connection.
func (c *Client) Conn() *natsgo.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// IsConnected reports whether the connection is currently active.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// EnsureConsumer creates or updates a durable consumer on streamName.
func (c *Client) EnsureConsumer(ctx context.Context, streamName string, cfg jetstream.ConsumerConfig) (jetstream.Consumer, error) {
	js := c.JetStream()
	if js == nil {
		return nil, ErrNotConnected
	}
	consumer, err := js.CreateOrUpdateConsumer(ctx, streamName, cfg)
	if err != nil {
		return nil, fmt.Errorf("ensure consumer %s on %s: %w", cfg.Durable, streamName, err)
	}
	return consumer, nil
}

// StreamDepth returns the number of pending messages on the given stream.
func (c *Client) StreamDepth(ctx context.Context, streamName string) (uint64, error) {
	js := c.JetStream()
	if js == nil {
		return 0, ErrNotConnected
	}
	stream, err := js.Stream(ctx, streamName)
	if err != nil {
		return 0, fmt.Errorf("get stream %s: %w", streamName, err)
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return 0, fmt.Errorf("stream info %s: %w", streamName, err)
	}
	return info.State.Msgs, nil
}

// Drain initiates a graceful drain of the connection, waiting up to timeout
// for in-flight messages to finish before forcing a close.
func (c *Client) Drain(timeout time.Duration) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	c.log.Info("draining nats connection", slog.Duration("timeout", timeout))

	if err := conn.Drain(); err != nil {
		return fmt.Errorf("nats drain: %w", err)
	}

	deadline := time.After(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			c.log.Warn("nats drain timeout exceeded, forcing close")
			conn.Close()
			return ErrDrainTimeout
		case <-ticker.C:
			if conn.IsClosed() {
				c.log.Info("nats drain completed")
				return nil
			}
		}
	}
}

// Close immediately closes the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	if c.conn != nil {
		c.conn.Close()
	}
	if c.metrics != nil {
		c.metrics.ConnectionStatus.Set(0)
	}
	c.log.Info("nats connection closed")
}

func (c *Client) onDisconnect(_ *natsgo.Conn, err error) {
	if c.metrics != nil {
		c.metrics.ConnectionStatus.Set(0)
		c.metrics.DisconnectionTotal.Inc()
	}
	if err != nil {
		c.log.Warn("nats disconnected", slog.String("error", err.Error()))
		return
	}
	c.log.Warn("nats disconnected")
}

func (c *Client) onReconnect(conn *natsgo.Conn) {
	if c.metrics != nil {
		c.metrics.ConnectionStatus.Set(1)
		c.metrics.ReconnectionTotal.Inc()
	}
	c.log.Info("nats reconnected",
		slog.String("url", conn.ConnectedUrl()),
		slog.String("server_id", conn.ConnectedServerId()),
	)
}

func (c *Client) onClosed(_ *natsgo.Conn) {
	if c.metrics != nil {
		c.metrics.ConnectionStatus.Set(0)
	}
	c.log.Info("nats connection closed")
}

func (c *Client) onError(_ *natsgo.Conn, sub *natsgo.Subscription, err error) {
	if c.metrics != nil {
		c.metrics.ConnectionErrors.Inc()
	}
	fields := []any{slog.String("error", err.Error())}
	if sub != nil {
		fields = append(fields, slog.String("subject", sub.Subject))
	}
	c.log.Error("nats async error", fields...)
}
