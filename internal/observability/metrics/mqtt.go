package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MQTTMetrics contains Prometheus metrics for MQTT operations
type MQTTMetrics struct {
	connectionStatus  prometheus.Gauge
	messagesPublished prometheus.Counter
	errorsTotal       *prometheus.CounterVec
	publishLatency    prometheus.Histogram

	collectors []prometheus.Collector
}

// NewMQTTMetrics creates and registers new MQTT metrics
func NewMQTTMetrics(registry *prometheus.Registry) (*MQTTMetrics, error) {
	m := &MQTTMetrics{}
	m.connectionStatus = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mqtt_connection_status",
		Help: "Current MQTT connection status (1 for connected, 0 for disconnected)",
	})
	m.messagesPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mqtt_messages_published_total",
		Help: "Total number of MQTT messages published",
	})
	m.errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mqtt_errors_total",
		Help: "Total number of MQTT errors by type",
	}, []string{"type"})
	m.publishLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mqtt_publish_latency_seconds",
		Help:    "Latency of MQTT publish operations",
		Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12),
	})
	m.collectors = []prometheus.Collector{m.connectionStatus, m.messagesPublished, m.errorsTotal, m.publishLatency}

	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Describe implements the Collector interface
func (m *MQTTMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *MQTTMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

// UpdateConnectionStatus sets the connection gauge
func (m *MQTTMetrics) UpdateConnectionStatus(connected bool) {
	if connected {
		m.connectionStatus.Set(1)
	} else {
		m.connectionStatus.Set(0)
	}
}

// IncrementMessagesPublished counts a successful publish
func (m *MQTTMetrics) IncrementMessagesPublished() {
	m.messagesPublished.Inc()
}

// IncrementErrors counts an error by type (connect, publish, timeout)
func (m *MQTTMetrics) IncrementErrors(errType string) {
	m.errorsTotal.WithLabelValues(errType).Inc()
}

// ObservePublishLatency records how long a publish took
func (m *MQTTMetrics) ObservePublishLatency(seconds float64) {
	m.publishLatency.Observe(seconds)
}
