// ABOUTME: Prometheus instrumentation for streaming servers and players
// ABOUTME: Counts chunks, scheduler misses and clock-sync activity
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for one Sendspin process.
type Metrics struct {
	registry *prometheus.Registry

	chunksSentTotal     prometheus.Counter
	chunkBytesTotal     prometheus.Counter
	schedulerMissTotal  prometheus.Counter
	timeSyncTotal       prometheus.Counter
	syncSamplesAccepted prometheus.Counter
	syncSamplesRejected prometheus.Counter
	connectedClients    prometheus.Gauge
	clockOffsetMicros   prometheus.Gauge
	clockRTTMicros      prometheus.Gauge
}

// New creates and registers the Sendspin metrics on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		chunksSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sendspin_chunks_sent_total",
			Help: "Total audio chunks sent to clients",
		}),
		chunkBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sendspin_chunk_bytes_total",
			Help: "Total encoded audio bytes sent to clients",
		}),
		schedulerMissTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sendspin_scheduler_miss_total",
			Help: "Chunks dropped because their deadline passed the late window",
		}),
		timeSyncTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sendspin_time_sync_total",
			Help: "client/time exchanges handled",
		}),
		syncSamplesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sendspin_sync_samples_accepted_total",
			Help: "Clock-sync samples accepted by the estimator",
		}),
		syncSamplesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sendspin_sync_samples_rejected_total",
			Help: "Clock-sync samples rejected for RTT",
		}),
		connectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sendspin_connected_clients",
			Help: "Currently connected clients",
		}),
		clockOffsetMicros: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sendspin_clock_offset_us",
			Help: "Current clock offset estimate in microseconds",
		}),
		clockRTTMicros: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sendspin_clock_rtt_us",
			Help: "RTT of the sample backing the clock offset, microseconds",
		}),
	}

	registry.MustRegister(
		m.chunksSentTotal,
		m.chunkBytesTotal,
		m.schedulerMissTotal,
		m.timeSyncTotal,
		m.syncSamplesAccepted,
		m.syncSamplesRejected,
		m.connectedClients,
		m.clockOffsetMicros,
		m.clockRTTMicros,
	)
	return m
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ChunkSent records one emitted chunk frame of the given size.
func (m *Metrics) ChunkSent(bytes int) {
	m.chunksSentTotal.Inc()
	m.chunkBytesTotal.Add(float64(bytes))
}

// SchedulerMiss records chunks dropped past the late window.
func (m *Metrics) SchedulerMiss(n int64) {
	m.schedulerMissTotal.Add(float64(n))
}

// TimeSyncHandled records one client/time exchange.
func (m *Metrics) TimeSyncHandled() {
	m.timeSyncTotal.Inc()
}

// SyncSample records the outcome of one clock-sync sample.
func (m *Metrics) SyncSample(accepted bool) {
	if accepted {
		m.syncSamplesAccepted.Inc()
	} else {
		m.syncSamplesRejected.Inc()
	}
}

// SetConnectedClients sets the connected client gauge.
func (m *Metrics) SetConnectedClients(n int) {
	m.connectedClients.Set(float64(n))
}

// SetClockStats publishes the current offset estimate and its RTT.
func (m *Metrics) SetClockStats(offsetMicros, rttMicros int64) {
	m.clockOffsetMicros.Set(float64(offsetMicros))
	m.clockRTTMicros.Set(float64(rttMicros))
}
