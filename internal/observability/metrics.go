package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	SessionActive      prometheus.Gauge
	StateTransitions   *prometheus.CounterVec
	InboundEvents      *prometheus.CounterVec
	TelemetryEnvelopes *prometheus.CounterVec
	ConnectLatency     prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return newMetrics(namespace, promauto.With(prometheus.DefaultRegisterer))
}

// NewTestMetrics registers instruments on a private registry so tests can
// construct metrics repeatedly.
func NewTestMetrics() *Metrics {
	return newMetrics("aria_test", promauto.With(prometheus.NewRegistry()))
}

func newMetrics(namespace string, factory promauto.Factory) *Metrics {
	return &Metrics{
		SessionActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_active",
			Help:      "1 while a realtime voice session is connected.",
		}),
		StateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Session state machine transitions by target state.",
		}, []string{"state"}),
		InboundEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_events_total",
			Help:      "Inbound realtime events by type.",
		}, []string{"type"}),
		TelemetryEnvelopes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_envelopes_total",
			Help:      "Telemetry envelopes by outcome.",
		}, []string{"outcome"}),
		ConnectLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connect_latency_ms",
			Help:      "Latency from connect call to established session in milliseconds.",
			Buckets:   []float64{100, 200, 300, 500, 700, 1000, 1500, 3000},
		}),
	}
}

func (m *Metrics) ObserveConnectLatency(d time.Duration) {
	m.ConnectLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
