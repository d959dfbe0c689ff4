package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BSPMetrics provides observability for BSP adapter operations.
//
// Implementations can collect metrics about BSP requests, connection
// lifecycle, and errors. This interface is optional - if not provided to
// the BSP adapter, a no-op implementation is used with zero overhead.
//
// Payload byte counters live in StorageMetrics; BSP metrics cover the
// wire protocol layer only.
type BSPMetrics interface {
	// RecordRequest records a completed BSP request with its procedure name,
	// duration, and outcome.
	//
	// Parameters:
	//   - procedure: BSP procedure name (e.g., "UPLOAD", "DOWNLOAD")
	//   - duration: Time taken to process the request
	//   - err: Error if request failed, nil if successful
	RecordRequest(procedure string, duration time.Duration, err error)

	// RecordRequestStart increments the in-flight request counter.
	// Should be called when starting to process a request.
	//
	// Parameters:
	//   - procedure: BSP procedure name
	RecordRequestStart(procedure string)

	// RecordRequestEnd decrements the in-flight request counter.
	// Should be called when request processing completes.
	//
	// Parameters:
	//   - procedure: BSP procedure name
	RecordRequestEnd(procedure string)

	// SetActiveConnections updates the current connection count.
	//
	// Parameters:
	//   - count: Current number of active connections
	SetActiveConnections(count int32)

	// RecordConnectionAccepted increments the total accepted connections counter.
	RecordConnectionAccepted()

	// RecordConnectionClosed increments the total closed connections counter.
	RecordConnectionClosed()
}

// bspMetrics is the Prometheus implementation of BSPMetrics.
type bspMetrics struct {
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	requestsInFlight    *prometheus.GaugeVec
	activeConnections   prometheus.Gauge
	connectionsAccepted prometheus.Counter
	connectionsClosed   prometheus.Counter
}

// NewBSPMetrics creates a new Prometheus-backed BSPMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry
// not called).
func NewBSPMetrics() BSPMetrics {
	if !IsEnabled() {
		return &noopBSPMetrics{}
	}

	reg := GetRegistry()

	return &bspMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "blobnode_bsp_requests_total",
				Help: "Total number of BSP requests by procedure and status",
			},
			[]string{"procedure", "status"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "blobnode_bsp_request_duration_seconds",
				Help: "Duration of BSP requests in seconds",
				Buckets: []float64{
					0.001, // 1ms
					0.005, // 5ms
					0.01,  // 10ms
					0.025, // 25ms
					0.05,  // 50ms
					0.1,   // 100ms
					0.25,  // 250ms
					0.5,   // 500ms
					1.0,   // 1s
					2.5,   // 2.5s
					5.0,   // 5s
					10.0,  // 10s
				},
			},
			[]string{"procedure"},
		),
		requestsInFlight: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "blobnode_bsp_requests_in_flight",
				Help: "Current number of BSP requests being processed",
			},
			[]string{"procedure"},
		),
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "blobnode_bsp_active_connections",
				Help: "Current number of active BSP connections",
			},
		),
		connectionsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "blobnode_bsp_connections_accepted_total",
				Help: "Total number of BSP connections accepted",
			},
		),
		connectionsClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "blobnode_bsp_connections_closed_total",
				Help: "Total number of BSP connections closed",
			},
		),
	}
}

func (m *bspMetrics) RecordRequest(procedure string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	m.requestsTotal.WithLabelValues(procedure, status).Inc()
	m.requestDuration.WithLabelValues(procedure).Observe(duration.Seconds())
}

func (m *bspMetrics) RecordRequestStart(procedure string) {
	m.requestsInFlight.WithLabelValues(procedure).Inc()
}

func (m *bspMetrics) RecordRequestEnd(procedure string) {
	m.requestsInFlight.WithLabelValues(procedure).Dec()
}

func (m *bspMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *bspMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *bspMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

// noopBSPMetrics is a no-op implementation of BSPMetrics with zero overhead.
type noopBSPMetrics struct{}

func (noopBSPMetrics) RecordRequest(procedure string, duration time.Duration, err error) {}
func (noopBSPMetrics) RecordRequestStart(procedure string)                               {}
func (noopBSPMetrics) RecordRequestEnd(procedure string)                                 {}
func (noopBSPMetrics) SetActiveConnections(count int32)                                  {}
func (noopBSPMetrics) RecordConnectionAccepted()                                         {}
func (noopBSPMetrics) RecordConnectionClosed()                                           {}
