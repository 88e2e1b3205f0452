package queue_test

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"

	"github.com/occasionhook/anniversary-notify/internal/queue"
)

func TestGreeterStreamConfig(t *testing.T) {
	t.Parallel()

	cfg := queue.GreeterStreamConfig("GREETER")
	assert.Equal(t, "GREETER", cfg.Name)
	assert.Equal(t, []string{queue.SubjectGreeterAll}, cfg.Subjects)
	assert.Equal(t, jetstream.WorkQueuePolicy, cfg.Retention)
	assert.Equal(t, 5*time.Minute, cfg.Duplicates)
}

func TestDLQStreamConfig(t *testing.T) {
	t.Parallel()

	cfg := queue.DLQStreamConfig("GREETER_DLQ")
	assert.Equal(t, "GREETER_DLQ", cfg.Name)
	assert.Equal(t, []string{queue.SubjectDLQAll}, cfg.Subjects)
	assert.Equal(t, jetstream.LimitsPolicy, cfg.Retention)
}

func TestSenderConsumerConfigIsFIFO(t *testing.T) {
	t.Parallel()

	cfg := queue.SenderConsumerConfig("birthday")
	assert.Equal(t, "sender-birthday", cfg.Durable)
	assert.Equal(t, queue.GreeterSubject("birthday"), cfg.FilterSubject)
	assert.Equal(t, 1, cfg.MaxAckPending, "MaxAckPending must be 1 to preserve per-event-type FIFO order")
}

func TestGreeterSubjectAndDLQSubject(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "greeter.birthday", queue.GreeterSubject("birthday"))
	assert.Equal(t, "greeter_dlq.birthday", queue.DLQSubject("birthday"))
}
