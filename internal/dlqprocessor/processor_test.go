package dlqprocessor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/occasionhook/anniversary-notify/internal/clock"
	"github.com/occasionhook/anniversary-notify/internal/queue"
)

type republished struct {
	eventType string
	payload   []byte
	dedupKey  string
}

type fakeGateway struct {
	depth    uint64
	depthErr error

	batch    []queue.DLQMessage
	batchErr error

	republishErrFor map[string]error
	republishes     []republished

	receiveCalls int
}

func (f *fakeGateway) StreamDepth(_ context.Context, _ string) (uint64, error) {
	return f.depth, f.depthErr
}

func (f *fakeGateway) ReceiveDLQBatch(_ context.Context, _ string, _ int, _ time.Duration) ([]queue.DLQMessage, error) {
	f.receiveCalls++
	return f.batch, f.batchErr
}

func (f *fakeGateway) RepublishGreeter(_ context.Context, eventType string, payload []byte, dedupKey string) (*jetstream.PubAck, error) {
	if err := f.republishErrFor[eventType]; err != nil {
		return nil, err
	}
	f.republishes = append(f.republishes, republished{eventType: eventType, payload: payload, dedupKey: dedupKey})
	return &jetstream.PubAck{}, nil
}

type fakeProber struct {
	healthy bool
	probes  int
}

func (f *fakeProber) Probe(_ context.Context) bool {
	f.probes++
	return f.healthy
}

var redriveNow = time.Date(2026, time.June, 15, 10, 0, 0, 0, time.UTC)

func newProcessor(gw *fakeGateway, prober *fakeProber) *Processor {
	return New(gw, prober, "GREETER_DLQ", clock.Fixed(redriveNow), nil, nil)
}

func TestRunEmptyDLQSkipsProbe(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{depth: 0}
	prober := &fakeProber{healthy: true}

	stats, err := newProcessor(gw, prober).Run(context.Background())
	require.NoError(t, err)

	assert.False(t, stats.Probed)
	assert.Equal(t, 0, prober.probes)
	assert.Equal(t, 0, gw.receiveCalls)
}

func TestRunUnhealthyWebhookSkipsRedrive(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{depth: 3}
	prober := &fakeProber{healthy: false}

	stats, err := newProcessor(gw, prober).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, stats.Probed)
	assert.False(t, stats.Healthy)
	assert.Equal(t, 0, gw.receiveCalls, "no redrive while the webhook is still down")
}

func TestRunRedrivesBatchPreservingDedupKey(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{
		depth: 2,
		batch: []queue.DLQMessage{
			{Subject: "greeter_dlq.birthday", Data: []byte(`{"id":"ada"}`), DedupKey: "ada-birthday-2026"},
			{Subject: "greeter_dlq.anniversary", Data: []byte(`{"id":"grace"}`), DedupKey: "grace-anniversary-2026"},
		},
	}
	prober := &fakeProber{healthy: true}

	stats, err := newProcessor(gw, prober).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, stats.Healthy)
	assert.Equal(t, 2, stats.Received)
	assert.Equal(t, 2, stats.Redriven)
	assert.Equal(t, 0, stats.Failures)

	require.Len(t, gw.republishes, 2)
	assert.Equal(t, "birthday", gw.republishes[0].eventType)
	assert.Equal(t, "ada-birthday-2026", gw.republishes[0].dedupKey)
	assert.Equal(t, "anniversary", gw.republishes[1].eventType)
}

func TestRunFallsBackToGeneratedDedupKey(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{
		depth: 1,
		batch: []queue.DLQMessage{
			{Subject: "greeter_dlq.birthday", Data: []byte(`{}`)},
		},
	}
	prober := &fakeProber{healthy: true}

	_, err := newProcessor(gw, prober).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, gw.republishes, 1)
	assert.True(t, strings.HasPrefix(gw.republishes[0].dedupKey, "redrive-"),
		"missing dedup key must fall back to a generated one, got %q", gw.republishes[0].dedupKey)
}

func TestRunRepublishFailureLeavesMessageInDLQ(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{
		depth: 2,
		batch: []queue.DLQMessage{
			{Subject: "greeter_dlq.birthday", Data: []byte(`{"id":"ada"}`), DedupKey: "k1"},
			{Subject: "greeter_dlq.anniversary", Data: []byte(`{"id":"grace"}`), DedupKey: "k2"},
		},
		republishErrFor: map[string]error{"birthday": errors.New("publish refused")},
	}
	prober := &fakeProber{healthy: true}

	stats, err := newProcessor(gw, prober).Run(context.Background())
	require.NoError(t, err, "a per-message failure is counted, not raised")

	assert.Equal(t, 1, stats.Redriven)
	assert.Equal(t, 1, stats.Failures)
	require.Len(t, gw.republishes, 1)
	assert.Equal(t, "anniversary", gw.republishes[0].eventType)
}

func TestRunDepthErrorAborts(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{depthErr: errors.New("stream gone")}
	prober := &fakeProber{healthy: true}

	_, err := newProcessor(gw, prober).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, prober.probes)
}

func TestEventTypeFromSubject(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "birthday", eventTypeFromSubject("greeter_dlq.birthday"))
	assert.Equal(t, "anniversary", eventTypeFromSubject("greeter_dlq.anniversary"))
	assert.Equal(t, "opaque", eventTypeFromSubject("opaque"))
}
