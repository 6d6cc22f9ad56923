package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics tracks the camera polling loop
type PipelineMetrics struct {
	cyclesTotal        *prometheus.CounterVec
	cycleDuration      prometheus.Histogram
	sourceAttempts     *prometheus.CounterVec
	stageDuration      *prometheus.HistogramVec
	eventsTotal        *prometheus.CounterVec
	dispatchTotal      *prometheus.CounterVec
	sourcesActive      prometheus.Gauge
	sourceHealthy      *prometheus.GaugeVec
	consecutiveFailure *prometheus.GaugeVec

	collectors []prometheus.Collector
}

// NewPipelineMetrics creates and registers pipeline metrics
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platewatch_cycles_total",
			Help: "Polling cycles by status",
		},
		[]string{"status"},
	)
	m.cycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "platewatch_cycle_duration_seconds",
		Help:    "Wall time of one polling cycle",
		Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount15),
	})
	m.sourceAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platewatch_source_attempts_total",
			Help: "Per-source polling attempts by outcome",
		},
		[]string{"source", "outcome"},
	)
	m.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "platewatch_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15),
		},
		[]string{"stage"},
	)
	m.eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platewatch_events_total",
			Help: "Recognition events recorded",
		},
		[]string{"matched"},
	)
	m.dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platewatch_dispatch_total",
			Help: "Actuator triggers by result",
		},
		[]string{"origin", "result"},
	)
	m.sourcesActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "platewatch_sources_active",
		Help: "Active sources in the last cycle snapshot",
	})
	m.sourceHealthy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "platewatch_source_healthy",
			Help: "1 while a source is healthy, 0 after repeated failures",
		},
		[]string{"source"},
	)
	m.consecutiveFailure = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "platewatch_source_consecutive_failures",
			Help: "Consecutive failed attempts per source",
		},
		[]string{"source"},
	)

	m.collectors = []prometheus.Collector{
		m.cyclesTotal,
		m.cycleDuration,
		m.sourceAttempts,
		m.stageDuration,
		m.eventsTotal,
		m.dispatchTotal,
		m.sourcesActive,
		m.sourceHealthy,
		m.consecutiveFailure,
	}
}

// Describe implements the Collector interface
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

// RecordCycle records a completed cycle
func (m *PipelineMetrics) RecordCycle(status string, seconds float64) {
	m.cyclesTotal.WithLabelValues(status).Inc()
	m.cycleDuration.Observe(seconds)
}

// RecordSourceAttempt records the outcome of one source's sequence
func (m *PipelineMetrics) RecordSourceAttempt(sourceID uint, outcome string) {
	m.sourceAttempts.WithLabelValues(sourceLabel(sourceID), outcome).Inc()
}

// RecordStageDuration records time spent in one stage
func (m *PipelineMetrics) RecordStageDuration(stage string, seconds float64) {
	m.stageDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordEvent counts a recorded recognition event
func (m *PipelineMetrics) RecordEvent(matched bool) {
	m.eventsTotal.WithLabelValues(strconv.FormatBool(matched)).Inc()
}

// RecordDispatch counts an actuator trigger. origin is "pipeline" or "manual".
func (m *PipelineMetrics) RecordDispatch(origin string, ok bool) {
	result := StatusSuccess
	if !ok {
		result = StatusError
	}
	m.dispatchTotal.WithLabelValues(origin, result).Inc()
}

// SetActiveSources sets the snapshot size of the last cycle
func (m *PipelineMetrics) SetActiveSources(n int) {
	m.sourcesActive.Set(float64(n))
}

// SetSourceHealth exports a source's health state
func (m *PipelineMetrics) SetSourceHealth(sourceID uint, healthy bool, consecutiveFailures int) {
	v := 0.0
	if healthy {
		v = 1
	}
	label := sourceLabel(sourceID)
	m.sourceHealthy.WithLabelValues(label).Set(v)
	m.consecutiveFailure.WithLabelValues(label).Set(float64(consecutiveFailures))
}

// ForgetSource drops per-source series for a source no longer in the snapshot
func (m *PipelineMetrics) ForgetSource(sourceID uint) {
	label := sourceLabel(sourceID)
	m.sourceHealthy.DeleteLabelValues(label)
	m.consecutiveFailure.DeleteLabelValues(label)
}

func sourceLabel(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
