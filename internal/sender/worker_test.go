package sender

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/require"

	"github.com/occasionhook/anniversary-notify/internal/clock"
	"github.com/occasionhook/anniversary-notify/internal/queue"
	"github.com/occasionhook/anniversary-notify/internal/store"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func startEmbeddedNATS(t *testing.T) *natsserver.Server {
	t.Helper()

	opts := &natsserver.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	}

	srv, err := natsserver.NewServer(opts)
	require.NoError(t, err)

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

func TestWorkerConsumesAndCompletesDelivery(t *testing.T) {
	srv := startEmbeddedNATS(t)

	cfg := queue.DefaultConfig()
	cfg.URL = srv.ClientURL()
	cfg.GreeterStream = "WORKER_TEST_GREETER"
	cfg.DLQStream = "WORKER_TEST_DLQ"

	client := queue.NewClient(cfg, testLogger(t), nil)
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(client.Close)
	require.NoError(t, queue.EnsureStreams(context.Background(), client.JetStream(), cfg, testLogger(t)))

	st := &fakeEventStore{event: adaEvent()}
	wh := &fakeDeliverer{result: ok200()}
	processor := NewProcessor(st, wh, clock.Fixed(processNow), testLogger(t), nil)

	worker := NewWorker("birthday", client, processor, testLogger(t), nil)
	require.NoError(t, worker.Start(context.Background()))
	t.Cleanup(worker.Stop)

	_, err := client.PublishGreeter(context.Background(), adaMessage(), "ada-birthday-2026")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, _, completions := st.snapshot()
		return completions == 1
	}, 5*time.Second, 50*time.Millisecond, "worker must drive the message through to completion")

	require.Equal(t, 1, wh.requestCount())
	event, _, _ := st.snapshot()
	require.Equal(t, store.SendingStatusCompleted, event.SendingStatus)
}
