package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's Prometheus collectors. Every method is safe to
// call on a nil *Metrics so components can run without instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsActive prometheus.Gauge
	SessionsOpened prometheus.Counter
	SessionsClosed *prometheus.CounterVec

	// Framing metrics
	FramesReceived *prometheus.CounterVec
	FramingErrors  prometheus.Counter

	// Processing metrics
	ProcessingPasses *prometheus.CounterVec
	STTAttempts      *prometheus.CounterVec
	STTDuration      *prometheus.HistogramVec
	TTSRequests      *prometheus.CounterVec
}

// New creates the collectors on a dedicated registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,

		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "voice_sessions_active",
			Help: "Current number of open voice sessions",
		}),
		SessionsOpened: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_sessions_opened_total",
			Help: "Total number of voice sessions opened",
		}),
		SessionsClosed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_sessions_closed_total",
			Help: "Total number of voice sessions closed, by reason",
		}, []string{"reason"}),

		FramesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_frames_received_total",
			Help: "Inbound messages successfully decoded, by kind",
		}, []string{"kind"}),
		FramingErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_framing_errors_total",
			Help: "Inbound messages that could not be decoded",
		}),

		ProcessingPasses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_processing_passes_total",
			Help: "Completed transcription passes, by outcome",
		}, []string{"outcome"}),
		STTAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_stt_attempts_total",
			Help: "Speech-to-text attempts, by candidate encoding and outcome",
		}, []string{"candidate", "outcome"}),
		STTDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voice_stt_attempt_duration_seconds",
			Help:    "Latency of speech-to-text attempts",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}, []string{"outcome"}),
		TTSRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_tts_requests_total",
			Help: "Text-to-speech requests, by outcome",
		}, []string{"outcome"}),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsOpened.Inc()
	m.SessionsActive.Inc()
}

func (m *Metrics) SessionClosed(reason string) {
	if m == nil {
		return
	}
	m.SessionsClosed.WithLabelValues(reason).Inc()
	m.SessionsActive.Dec()
}

func (m *Metrics) FrameReceived(kind string) {
	if m == nil {
		return
	}
	m.FramesReceived.WithLabelValues(kind).Inc()
}

func (m *Metrics) FramingError() {
	if m == nil {
		return
	}
	m.FramingErrors.Inc()
}

func (m *Metrics) PassCompleted(outcome string) {
	if m == nil {
		return
	}
	m.ProcessingPasses.WithLabelValues(outcome).Inc()
}

func (m *Metrics) STTAttempt(candidate, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.STTAttempts.WithLabelValues(candidate, outcome).Inc()
	m.STTDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) TTSRequest(outcome string) {
	if m == nil {
		return
	}
	m.TTSRequests.WithLabelValues(outcome).Inc()
}
