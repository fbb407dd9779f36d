package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	m := &dto.Metric{}
	if err := (<-ch).Write(m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestPrometheusCollector_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewPrometheusCollector(reg)

	c.SessionOpened()
	c.SessionOpened()
	if got := counterValue(t, c.sessionsTotal); got != 2 {
		t.Errorf("sessionsTotal = %v, want 2", got)
	}

	c.Kicked()
	if got := counterValue(t, c.kicksTotal); got != 1 {
		t.Errorf("kicksTotal = %v, want 1", got)
	}

	c.TLSHandshake()
	if got := counterValue(t, c.tlsTotal); got != 1 {
		t.Errorf("tlsTotal = %v, want 1", got)
	}

	c.MessageAccepted(1024)
	if got := counterValue(t, c.messagesTotal); got != 1 {
		t.Errorf("messagesTotal = %v, want 1", got)
	}
}

func TestPrometheusCollector_LabeledCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewPrometheusCollector(reg)

	c.SessionClosed("kicked")
	c.SessionClosed("kicked")
	c.SessionClosed("quit")
	c.CommandProcessed("HELO")
	c.AuthAttempt(true)
	c.AuthAttempt(false)
	c.AuthAttempt(false)

	if got := testutilCounterVecValue(t, c.sessionsClosed, "kicked"); got != 2 {
		t.Errorf("sessionsClosed{kicked} = %v, want 2", got)
	}
	if got := testutilCounterVecValue(t, c.sessionsClosed, "quit"); got != 1 {
		t.Errorf("sessionsClosed{quit} = %v, want 1", got)
	}
	if got := testutilCounterVecValue(t, c.commandsTotal, "HELO"); got != 1 {
		t.Errorf("commandsTotal{HELO} = %v, want 1", got)
	}
	if got := testutilCounterVecValue(t, c.authTotal, "success"); got != 1 {
		t.Errorf("authTotal{success} = %v, want 1", got)
	}
	if got := testutilCounterVecValue(t, c.authTotal, "failure"); got != 2 {
		t.Errorf("authTotal{failure} = %v, want 2", got)
	}
}

func testutilCounterVecValue(t *testing.T, vec *prometheus.CounterVec, label string) float64 {
	t.Helper()
	return counterValue(t, vec.WithLabelValues(label))
}

func TestNewPrometheusCollector_RegistersWithoutPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = NewPrometheusCollector(reg)
	// A second registration on a fresh registry must also succeed;
	// re-registering on the same registry would panic via MustRegister.
	reg2 := prometheus.NewRegistry()
	_ = NewPrometheusCollector(reg2)
}
