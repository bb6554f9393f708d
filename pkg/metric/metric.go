package metric

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric groups the watcher's collectors. A nil *Metric is valid and records
// nothing, which keeps tests and tools free of registry setup.
type Metric struct {
	mu sync.Mutex

	procTimeHistogram prometheus.Histogram
	procTime          prometheus.Gauge
	driftHistogram    prometheus.Histogram
	drift             prometheus.Gauge
	confidence        prometheus.Gauge
	baselineIoU       prometheus.Gauge
	frames            *prometheus.CounterVec
	alerts            *prometheus.CounterVec
	suppressed        prometheus.Counter
	sinkFailures      *prometheus.CounterVec
	webhookDropped    prometheus.Counter
	reselects         prometheus.Counter
	memUsage          prometheus.Gauge
	cpuUsage          prometheus.Gauge
}

// RegisterMetrics creates the collectors and registers them with reg.
// nil bucket slices fall back to prometheus.DefBuckets.
func RegisterMetrics(reg prometheus.Registerer, procTimeBuckets, driftBuckets []float64) *Metric {
	if procTimeBuckets == nil {
		procTimeBuckets = prometheus.DefBuckets
	}
	if driftBuckets == nil {
		driftBuckets = []float64{5, 10, 20, 40, 80, 160, 320}
	}

	m := &Metric{
		procTimeHistogram: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "processing_time_ms_histogram",
			Help:    "Histogram of per-frame processing times.",
			Buckets: procTimeBuckets,
		}),
		procTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "processing_time_ms",
			Help: "Gauge of processing times.",
		}),
		driftHistogram: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "watcher_drift_pixels_histogram",
			Help:    "Histogram of centre drift from the baseline, in pixels.",
			Buckets: driftBuckets,
		}),
		drift: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "watcher_drift_pixels",
			Help: "Centre drift from the baseline on the last located frame.",
		}),
		confidence: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "watcher_confidence",
			Help: "Tracker confidence on the last frame (0 when not found).",
		}),
		baselineIoU: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "watcher_baseline_iou",
			Help: "Overlap between the current box and the baseline box.",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watcher_frames_total",
			Help: "Frames processed, by classification.",
		}, []string{"classification"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watcher_alerts_total",
			Help: "Alerts emitted, by kind.",
		}, []string{"kind"}),
		suppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watcher_alerts_suppressed_total",
			Help: "Moved/Lost frames that fell inside the cooldown window.",
		}),
		sinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watcher_sink_failures_total",
			Help: "Failed alert side effects, by action.",
		}, []string{"action"}),
		webhookDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watcher_webhook_dropped_total",
			Help: "Alerts dropped because the webhook queue was full.",
		}),
		reselects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watcher_reselects_total",
			Help: "Baselines replaced through reselect.",
		}),
		memUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "memory_usage_megabytes",
			Help: "Resident memory of the watcher process in megabytes.",
		}),
		cpuUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cpu_usage_percent",
			Help: "CPU usage of the watcher process in percent.",
		}),
	}

	reg.MustRegister(
		m.procTimeHistogram, m.procTime,
		m.driftHistogram, m.drift,
		m.confidence, m.baselineIoU,
		m.frames, m.alerts, m.suppressed,
		m.sinkFailures, m.webhookDropped, m.reselects,
		m.memUsage, m.cpuUsage,
	)
	return m
}

func (m *Metric) AddProcessingTime(ms float64) {
	if m == nil {
		return
	}
	m.lock()
	defer m.unlock()
	m.procTimeHistogram.Observe(ms)
	m.procTime.Set(ms)
}

// ObserveFrame records the outcome of one tick. drift and iou are ignored
// when the object was not located.
func (m *Metric) ObserveFrame(classification string, found bool, drift, confidence, iou float64) {
	if m == nil {
		return
	}
	m.lock()
	defer m.unlock()
	m.frames.WithLabelValues(classification).Inc()
	if !found {
		m.confidence.Set(0)
		m.baselineIoU.Set(0)
		return
	}
	m.driftHistogram.Observe(drift)
	m.drift.Set(drift)
	m.confidence.Set(confidence)
	m.baselineIoU.Set(iou)
}

func (m *Metric) AddAlert(kind string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(kind).Inc()
}

func (m *Metric) AddSuppressed() {
	if m == nil {
		return
	}
	m.suppressed.Inc()
}

func (m *Metric) AddSinkFailure(action string) {
	if m == nil {
		return
	}
	m.sinkFailures.WithLabelValues(action).Inc()
}

func (m *Metric) AddWebhookDropped() {
	if m == nil {
		return
	}
	m.webhookDropped.Inc()
}

func (m *Metric) AddReselect() {
	if m == nil {
		return
	}
	m.reselects.Inc()
}

func (m *Metric) SetProcessUsage(memMB, cpuPercent float64) {
	if m == nil {
		return
	}
	m.lock()
	defer m.unlock()
	m.memUsage.Set(memMB)
	m.cpuUsage.Set(cpuPercent)
}

func (m *Metric) lock() {
	m.mu.Lock()
}

func (m *Metric) unlock() {
	m.mu.Unlock()
}
