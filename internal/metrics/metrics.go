package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "kucoin_data"

// Metrics holds the collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	framesReceived  *prometheus.CounterVec
	eventsDecoded   *prometheus.CounterVec
	unknownFrames   *prometheus.CounterVec
	decodeFailures  *prometheus.CounterVec
	sessionState    prometheus.Gauge
	sessionsOpened  prometheus.Counter
	sessionFailures *prometheus.CounterVec
	pongLatency     prometheus.Histogram

	restRequests *prometheus.CounterVec
	restLatency  *prometheus.HistogramVec

	writerRows   *prometheus.CounterVec
	writerErrors *prometheus.CounterVec
	bufferDepth  *prometheus.GaugeVec

	pollerSnapshots *prometheus.CounterVec
}

// New creates a Metrics with its own registry. Go runtime and process
// collectors are included.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),

		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "frames_received_total",
			Help:      "Realtime frames received, by frame type.",
		}, []string{"type"}),
		eventsDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "events_decoded_total",
			Help:      "Data frames decoded into typed events, by kind.",
		}, []string{"kind"}),
		unknownFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "unknown_frames_total",
			Help:      "Data frames with an unrecognized topic/subject pair.",
		}, []string{"subject"}),
		decodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "decode_failures_total",
			Help:      "Data frames whose payload did not match the expected shape.",
		}, []string{"kind"}),
		sessionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "session_state",
			Help:      "Current session lifecycle state (0 idle .. 5 closed, 6 failed).",
		}),
		sessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "sessions_opened_total",
			Help:      "Sessions that reached the active state.",
		}),
		sessionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "session_failures_total",
			Help:      "Sessions that ended in failure, by reason.",
		}, []string{"reason"}),
		pongLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "pong_latency_seconds",
			Help:      "Time from ping to matching pong.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}),

		restRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rest",
			Name:      "requests_total",
			Help:      "REST requests, by endpoint and status code.",
		}, []string{"endpoint", "code"}),
		restLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rest",
			Name:      "request_duration_seconds",
			Help:      "REST request latency, by endpoint.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),

		writerRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "rows_inserted_total",
			Help:      "Rows inserted, by table.",
		}, []string{"table"}),
		writerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "errors_total",
			Help:      "Failed batch writes, by table.",
		}, []string{"table"}),
		bufferDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "buffer_depth",
			Help:      "Items queued ahead of a writer, by buffer.",
		}, []string{"buffer"}),

		pollerSnapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "snapshots_total",
			Help:      "REST order book snapshots, by outcome.",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		m.framesReceived,
		m.eventsDecoded,
		m.unknownFrames,
		m.decodeFailures,
		m.sessionState,
		m.sessionsOpened,
		m.sessionFailures,
		m.pongLatency,
		m.restRequests,
		m.restLatency,
		m.writerRows,
		m.writerErrors,
		m.bufferDepth,
		m.pollerSnapshots,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// FrameReceived counts one inbound frame of the given type.
func (m *Metrics) FrameReceived(frameType string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(frameType).Inc()
}

// EventDecoded counts one decoded event.
func (m *Metrics) EventDecoded(kind string) {
	if m == nil {
		return
	}
	m.eventsDecoded.WithLabelValues(kind).Inc()
}

// UnknownFrame counts one frame outside the routing table.
func (m *Metrics) UnknownFrame(subject string) {
	if m == nil {
		return
	}
	m.unknownFrames.WithLabelValues(subject).Inc()
}

// DecodeFailure counts one payload shape mismatch.
func (m *Metrics) DecodeFailure(kind string) {
	if m == nil {
		return
	}
	m.decodeFailures.WithLabelValues(kind).Inc()
}

// SetSessionState records the current session state.
func (m *Metrics) SetSessionState(state int) {
	if m == nil {
		return
	}
	m.sessionState.Set(float64(state))
}

// SessionOpened counts a session reaching the active state.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsOpened.Inc()
}

// SessionFailed counts a terminal session failure.
func (m *Metrics) SessionFailed(reason string) {
	if m == nil {
		return
	}
	m.sessionFailures.WithLabelValues(reason).Inc()
}

// PongReceived records one keepalive round trip.
func (m *Metrics) PongReceived(rtt time.Duration) {
	if m == nil {
		return
	}
	m.pongLatency.Observe(rtt.Seconds())
}

// RESTRequest records one REST attempt. status is 0 for transport errors.
func (m *Metrics) RESTRequest(endpoint string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.restRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	m.restLatency.WithLabelValues(endpoint).Observe(d.Seconds())
}

// RowsInserted counts rows written to table.
func (m *Metrics) RowsInserted(table string, n int) {
	if m == nil {
		return
	}
	m.writerRows.WithLabelValues(table).Add(float64(n))
}

// WriteError counts a failed batch write to table.
func (m *Metrics) WriteError(table string) {
	if m == nil {
		return
	}
	m.writerErrors.WithLabelValues(table).Inc()
}

// SetBufferDepth records the current depth of a named buffer.
func (m *Metrics) SetBufferDepth(buffer string, depth int) {
	if m == nil {
		return
	}
	m.bufferDepth.WithLabelValues(buffer).Set(float64(depth))
}

// Snapshot counts one poller snapshot; outcome is "ok" or "error".
func (m *Metrics) Snapshot(outcome string) {
	if m == nil {
		return
	}
	m.pollerSnapshots.WithLabelValues(outcome).Inc()
}
