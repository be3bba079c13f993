// Package metrics exposes the pricing worker's counters and histograms
// through Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sink receives measurements from the pricing worker.
type Sink interface {
	// ObserveAILatency records the wall time of one AI pricing call,
	// successful or not.
	ObserveAILatency(d time.Duration)
	AISuccess()
	AIFailure(reason string)
	// AIErrorFallback counts insights written by the rule-based fallback
	// because the AI path failed.
	AIErrorFallback()
	ProductNotFound()
	InsightWritten(source string)
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) ObserveAILatency(time.Duration) {}
func (Nop) AISuccess()                     {}
func (Nop) AIFailure(string)               {}
func (Nop) AIErrorFallback()               {}
func (Nop) ProductNotFound()               {}
func (Nop) InsightWritten(string)          {}

// Metrics is the Prometheus-backed Sink. Each instance owns its registry so
// tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	AILatency       prometheus.Histogram
	AISuccessTotal  prometheus.Counter
	AIFailureTotal  *prometheus.CounterVec
	AIFallbackTotal prometheus.Counter
	NotFoundTotal   prometheus.Counter
	InsightsTotal   *prometheus.CounterVec

	// Gauges refreshed by the monitoring collector.
	SnapshotQueue *prometheus.GaugeVec
	OldestPending prometheus.Gauge
	CircuitState  prometheus.Gauge
}

// New registers the pricing metrics plus Go runtime collectors on a fresh
// registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		AILatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pricing",
			Name:      "ai_latency_ms",
			Help:      "Latency of AI pricing calls in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 3000, 4000, 6000, 10000},
		}),
		AISuccessTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pricing",
			Name:      "ai_success_total",
			Help:      "AI pricing calls that produced a valid recommendation.",
		}),
		AIFailureTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricing",
			Name:      "ai_failure_total",
			Help:      "AI pricing calls that failed, by reason.",
		}, []string{"reason"}),
		AIFallbackTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pricing",
			Name:      "ai_error_fallback_total",
			Help:      "Insights produced by the rule-based fallback after an AI failure.",
		}),
		NotFoundTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pricing",
			Name:      "product_not_found_total",
			Help:      "Snapshots failed because their product does not exist.",
		}),
		InsightsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricing",
			Name:      "insights_written_total",
			Help:      "Pricing insights written, by strategy source.",
		}, []string{"source"}),
		SnapshotQueue: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pricing",
			Name:      "snapshots",
			Help:      "Competitor snapshots by pricing status.",
		}, []string{"status"}),
		OldestPending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "pricing",
			Name:      "oldest_pending_age_seconds",
			Help:      "Age of the oldest pending snapshot.",
		}),
		CircuitState: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "pricing",
			Name:      "ai_circuit_state",
			Help:      "AI circuit breaker state (0 closed, 1 open, 2 half-open).",
		}),
	}
}

func (m *Metrics) ObserveAILatency(d time.Duration) {
	m.AILatency.Observe(float64(d.Microseconds()) / 1000)
}

func (m *Metrics) AISuccess() { m.AISuccessTotal.Inc() }

func (m *Metrics) AIFailure(reason string) { m.AIFailureTotal.WithLabelValues(reason).Inc() }

func (m *Metrics) AIErrorFallback() { m.AIFallbackTotal.Inc() }

func (m *Metrics) ProductNotFound() { m.NotFoundTotal.Inc() }

func (m *Metrics) InsightWritten(source string) { m.InsightsTotal.WithLabelValues(source).Inc() }

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
