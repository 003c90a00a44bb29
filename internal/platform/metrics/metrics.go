package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the playback engine.
type Metrics struct {
	registry             *prometheus.Registry
	requestsTotal        prometheus.Counter
	errorsTotal          prometheus.Counter
	probeAttemptsTotal   prometheus.Counter
	probeFailuresTotal   prometheus.Counter
	attachesTotal        prometheus.Counter
	recoveriesTotal      prometheus.Counter
	stallsCorrectedTotal prometheus.Counter
	liveLatencySeconds   prometheus.Gauge
	bufferedSeconds      prometheus.Gauge
}

// New creates and registers Prometheus metrics for the engine.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	probeAttemptsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_probe_attempts_total",
		Help: "Total number of manifest availability checks issued",
	})
	probeFailuresTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_probe_failures_total",
		Help: "Total number of manifest availability checks that failed",
	})
	attachesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_attaches_total",
		Help: "Total number of player attaches",
	})
	recoveriesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_recoveries_total",
		Help: "Total number of error-triggered recovery cycles",
	})
	stallsCorrectedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_stalls_corrected_total",
		Help: "Total number of live-edge corrections forced by the stall watchdog",
	})
	liveLatencySeconds := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "playback_live_latency_seconds",
		Help: "Distance from the live edge while playing, in seconds",
	})
	bufferedSeconds := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "playback_buffered_seconds",
		Help: "Buffered media ahead of the playback position, in seconds",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		probeAttemptsTotal,
		probeFailuresTotal,
		attachesTotal,
		recoveriesTotal,
		stallsCorrectedTotal,
		liveLatencySeconds,
		bufferedSeconds,
	)

	return &Metrics{
		registry:             registry,
		requestsTotal:        requestsTotal,
		errorsTotal:          errorsTotal,
		probeAttemptsTotal:   probeAttemptsTotal,
		probeFailuresTotal:   probeFailuresTotal,
		attachesTotal:        attachesTotal,
		recoveriesTotal:      recoveriesTotal,
		stallsCorrectedTotal: stallsCorrectedTotal,
		liveLatencySeconds:   liveLatencySeconds,
		bufferedSeconds:      bufferedSeconds,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the HTTP error counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncProbeAttempts increments the probe attempt counter.
func (m *Metrics) IncProbeAttempts() {
	m.probeAttemptsTotal.Inc()
}

// IncProbeFailures increments the probe failure counter.
func (m *Metrics) IncProbeFailures() {
	m.probeFailuresTotal.Inc()
}

// IncAttaches increments the attach counter.
func (m *Metrics) IncAttaches() {
	m.attachesTotal.Inc()
}

// IncRecoveries increments the recovery-cycle counter.
func (m *Metrics) IncRecoveries() {
	m.recoveriesTotal.Inc()
}

// IncStallsCorrected increments the stall-correction counter.
func (m *Metrics) IncStallsCorrected() {
	m.stallsCorrectedTotal.Inc()
}

// SetLiveLatency sets the live latency gauge.
func (m *Metrics) SetLiveLatency(seconds float64) {
	m.liveLatencySeconds.Set(seconds)
}

// SetBufferedHorizon sets the buffered horizon gauge.
func (m *Metrics) SetBufferedHorizon(seconds float64) {
	m.bufferedSeconds.Set(seconds)
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
