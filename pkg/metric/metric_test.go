package metric

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNilMetricIsNoop(t *testing.T) {
	var m *Metric
	m.AddProcessingTime(1)
	m.ObserveFrame("normal", true, 1, 1, 1)
	m.AddAlert("moved")
	m.AddSuppressed()
	m.AddSinkFailure("snapshot")
	m.AddWebhookDropped()
	m.AddReselect()
	m.SetProcessUsage(1, 1)
}

func TestObserveFrame(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := RegisterMetrics(reg, nil, nil)

	m.ObserveFrame("normal", true, 12, 0.9, 0.8)
	m.ObserveFrame("moved", true, 55, 0.7, 0.1)
	m.ObserveFrame("lost", false, 0, 0, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.frames.WithLabelValues("normal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.frames.WithLabelValues("lost")))
	assert.Equal(t, 55.0, testutil.ToFloat64(m.drift))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.confidence))
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := RegisterMetrics(reg, []float64{1, 5, 10}, nil)

	m.AddAlert("moved")
	m.AddAlert("moved")
	m.AddAlert("lost")
	m.AddSuppressed()
	m.AddSinkFailure("snapshot")
	m.AddReselect()
	m.AddProcessingTime(3.5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.alerts.WithLabelValues("moved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.alerts.WithLabelValues("lost")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.suppressed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sinkFailures.WithLabelValues("snapshot")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reselects))
	assert.Equal(t, 3.5, testutil.ToFloat64(m.procTime))
}

func TestProcessMonitorStopsOnCancel(t *testing.T) {
	m := RegisterMetrics(prometheus.NewRegistry(), nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		m.StartProcessMonitor(ctx, 10*time.Millisecond, zap.NewNop())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("process monitor did not stop")
	}
	assert.Greater(t, testutil.ToFloat64(m.memUsage), 0.0)
}
