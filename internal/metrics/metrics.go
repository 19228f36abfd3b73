// Package metrics provides Prometheus metrics export for the chat and
// document synthesis pipelines.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter exports engine metrics in Prometheus format.
type Exporter struct {
	registry *prometheus.Registry

	// Streaming metrics
	streamDeltas   *prometheus.CounterVec
	streamErrors   *prometheus.CounterVec
	streamDuration *prometheus.HistogramVec

	// Persistence metrics
	saveAttempts *prometheus.CounterVec
	saveFailures *prometheus.CounterVec

	// Model selection metrics
	modelFallbacks prometheus.Counter
}

// NewExporter creates a new metrics exporter with its own registry.
func NewExporter() *Exporter {
	registry := prometheus.NewRegistry()

	e := &Exporter{
		registry: registry,
		streamDeltas: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aidocs",
			Name:      "stream_deltas_total",
			Help:      "Number of text deltas received from the generation backend.",
		}, []string{"pipeline"}),
		streamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aidocs",
			Name:      "stream_errors_total",
			Help:      "Number of generation streams terminated by a transport error.",
		}, []string{"pipeline"}),
		streamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "aidocs",
			Name:      "stream_duration_seconds",
			Help:      "Wall-clock duration of generation streams.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"pipeline"}),
		saveAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aidocs",
			Name:      "save_attempts_total",
			Help:      "Number of underlying message insert attempts, including retries.",
		}, []string{"table"}),
		saveFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aidocs",
			Name:      "save_failures_total",
			Help:      "Number of message saves that exhausted all retries.",
		}, []string{"table"}),
		modelFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aidocs",
			Name:      "model_fallbacks_total",
			Help:      "Number of times the selected model was disabled and the selector fell back.",
		}),
	}

	registry.MustRegister(
		e.streamDeltas,
		e.streamErrors,
		e.streamDuration,
		e.saveAttempts,
		e.saveFailures,
		e.modelFallbacks,
	)

	return e
}

func (e *Exporter) RecordDelta(pipeline string) {
	e.streamDeltas.WithLabelValues(pipeline).Inc()
}

func (e *Exporter) RecordStreamError(pipeline string) {
	e.streamErrors.WithLabelValues(pipeline).Inc()
}

func (e *Exporter) RecordStreamDuration(pipeline string, seconds float64) {
	e.streamDuration.WithLabelValues(pipeline).Observe(seconds)
}

func (e *Exporter) RecordSaveAttempt(table string) {
	e.saveAttempts.WithLabelValues(table).Inc()
}

func (e *Exporter) RecordSaveFailure(table string) {
	e.saveFailures.WithLabelValues(table).Inc()
}

func (e *Exporter) RecordModelFallback() {
	e.modelFallbacks.Inc()
}

// Handler returns an HTTP handler serving the registry in Prometheus format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
