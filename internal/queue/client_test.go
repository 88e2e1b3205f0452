package queue_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/occasionhook/anniversary-notify/internal/queue"
)

// startEmbeddedNATS starts an embedded NATS server with JetStream for
// testing, exactly as an in-process integration target for the queue
// gateway.
func startEmbeddedNATS(t *testing.T) *natsserver.Server {
	t.Helper()

	dir := t.TempDir()
	opts := &natsserver.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  dir,
		NoLog:     true,
		NoSigs:    true,
	}

	srv, err := natsserver.NewServer(opts)
	require.NoError(t, err, "failed to create embedded NATS server")

	srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS server not ready for connections")
	}

	t.Cleanup(func() {
		srv.Shutdown()
		srv.WaitForShutdown()
	})

	return srv
}

func testConfig(srv *natsserver.Server) queue.Config {
	cfg := queue.DefaultConfig()
	cfg.URL = srv.ClientURL()
	cfg.GreeterStream = "TEST_GREETER"
	cfg.DLQStream = "TEST_GREETER_DLQ"
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testMetrics(t *testing.T) *queue.ConnMetrics {
	t.Helper()
	reg := prometheus.NewRegistry()
	return queue.NewConnMetrics("test", reg)
}

func newConnectedClient(t *testing.T, srv *natsserver.Server) *queue.Client {
	t.Helper()
	client := queue.NewClient(testConfig(srv), testLogger(), testMetrics(t))
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(client.Close)
	require.NoError(t, queue.EnsureStreams(context.Background(), client.JetStream(), testConfig(srv), testLogger()))
	return client
}

func TestClientConnect(t *testing.T) {
	srv := startEmbeddedNATS(t)
	client := queue.NewClient(testConfig(srv), testLogger(), testMetrics(t))

	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	assert.True(t, client.IsConnected())
	assert.NotNil(t, client.JetStream())
	assert.NotNil(t, client.Conn())
}

func TestClientConnectInvalidConfig(t *testing.T) {
	cfg := queue.DefaultConfig()
	cfg.URL = ""

	client := queue.NewClient(cfg, testLogger(), nil)
	err := client.Connect(context.Background())
	require.Error(t, err)
}

func TestClientCloseIsIdempotent(t *testing.T) {
	srv := startEmbeddedNATS(t)
	client := queue.NewClient(testConfig(srv), testLogger(), testMetrics(t))
	require.NoError(t, client.Connect(context.Background()))

	client.Close()
	client.Close() // must not panic or double-decrement metrics

	assert.False(t, client.IsConnected())
}

func TestPublishGreeterDuplicateDetection(t *testing.T) {
	srv := startEmbeddedNATS(t)
	client := newConnectedClient(t, srv)

	msg := queue.GreeterMessage{
		ID:              "user-1",
		FirstName:       "Ada",
		LastName:        "Lovelace",
		Timezone:        "UTC",
		EventType:       "birthday",
		EventDate:       "1990-06-15",
		NotifyLocalTime: "09:00",
		LastSentYear:    0,
		YearNow:         2026,
	}
	dedupKey := "user-1-birthday-2026"

	ack1, err := client.PublishGreeter(context.Background(), msg, dedupKey)
	require.NoError(t, err)
	assert.False(t, ack1.Duplicate)

	ack2, err := client.PublishGreeter(context.Background(), msg, dedupKey)
	require.NoError(t, err)
	assert.True(t, ack2.Duplicate, "a second publish with the same dedup key must be collapsed by the stream")
}

func TestStreamDepthReflectsPublishedMessages(t *testing.T) {
	srv := startEmbeddedNATS(t)
	client := newConnectedClient(t, srv)

	msg := queue.GreeterMessage{ID: "user-2", EventType: "anniversary", YearNow: 2026}
	_, err := client.PublishGreeter(context.Background(), msg, "user-2-anniversary-2026")
	require.NoError(t, err)

	depth, err := client.StreamDepth(context.Background(), "TEST_GREETER")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), depth)
}
