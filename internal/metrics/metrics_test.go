package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewRegistersAllCollectors(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := New("test", reg)

	m.SchedulerSweepsTotal.Inc()
	m.SenderDeliveriesTotal.WithLabelValues("completed").Inc()
	m.QueuePublishTotal.WithLabelValues("greeter.birthday", "ok").Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected at least one registered metric family")
	}
}

func TestNewPanicsOnDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	New("dup", reg)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic registering the same namespace twice")
		}
	}()
	New("dup", reg)
}
