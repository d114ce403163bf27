// Package metrics exposes Prometheus instrumentation for the gate engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the engine. A nil *Metrics is
// safe to use everywhere and records nothing, so tests and embedders can
// skip instrumentation entirely.
type Metrics struct {
	registry *prometheus.Registry

	GateRunsTotal     *prometheus.CounterVec
	GateDuration      *prometheus.HistogramVec
	DTMFSendsTotal    *prometheus.CounterVec
	StreamsActive     prometheus.Gauge
	TranscribeLatency prometheus.Histogram
	TranscriptsTotal  *prometheus.CounterVec
}

// New creates a Metrics instance with all collectors registered on a
// private registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "ivrgate"
	}

	registry := prometheus.NewRegistry()

	gateRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_runs_total",
			Help:      "Completed Phase-1 gate runs by outcome",
		},
		[]string{"outcome"},
	)

	gateDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gate_duration_seconds",
			Help:      "Phase-1 gate run duration in seconds",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	dtmfSendsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dtmf_sends_total",
			Help:      "DTMF send attempts by result",
		},
		[]string{"result"},
	)

	streamsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Media streams currently connected",
		},
	)

	transcribeLatency := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcribe_latency_seconds",
			Help:      "Speech-to-text round-trip latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	transcriptsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_total",
			Help:      "Transcription cycles by classification mode",
		},
		[]string{"mode"},
	)

	registry.MustRegister(
		gateRunsTotal,
		gateDuration,
		dtmfSendsTotal,
		streamsActive,
		transcribeLatency,
		transcriptsTotal,
	)

	return &Metrics{
		registry:          registry,
		GateRunsTotal:     gateRunsTotal,
		GateDuration:      gateDuration,
		DTMFSendsTotal:    dtmfSendsTotal,
		StreamsActive:     streamsActive,
		TranscribeLatency: transcribeLatency,
		TranscriptsTotal:  transcriptsTotal,
	}
}

// Handler returns an http.Handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveGateRun records one finished gate run.
func (m *Metrics) ObserveGateRun(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.GateRunsTotal.WithLabelValues(outcome).Inc()
	m.GateDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveDTMFSend records one DTMF send attempt.
func (m *Metrics) ObserveDTMFSend(success bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !success {
		result = "failed"
	}
	m.DTMFSendsTotal.WithLabelValues(result).Inc()
}

// ObserveTranscript records one transcription cycle and its classification.
func (m *Metrics) ObserveTranscript(mode string, latency time.Duration) {
	if m == nil {
		return
	}
	m.TranscriptsTotal.WithLabelValues(mode).Inc()
	m.TranscribeLatency.Observe(latency.Seconds())
}

// StreamConnected adjusts the active-streams gauge.
func (m *Metrics) StreamConnected(delta int) {
	if m == nil {
		return
	}
	m.StreamsActive.Add(float64(delta))
}
