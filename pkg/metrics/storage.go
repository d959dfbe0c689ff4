package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StorageMetrics provides observability for storage pipeline operations.
//
// Implementations can collect metrics about uploads, downloads, deletions,
// health probes, throughput, and volume capacity. This interface is
// optional - if metrics are disabled, a no-op implementation is used with
// zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	metrics.InitRegistry()
//	m := metrics.NewStorageMetrics()
//	svc := storage.NewService(ctx, cfg, mapper, store, m)
type StorageMetrics interface {
	// RecordOperation records a completed storage operation with its
	// outcome and duration.
	//
	// Parameters:
	//   - operation: Operation name (e.g., "upload", "download", "delete")
	//   - outcome: Result label (e.g., "success", "rejected", "error")
	//   - duration: Time taken to process the operation
	RecordOperation(operation, outcome string, duration time.Duration)

	// RecordOperationStart increments the in-flight operation counter.
	// Should be called when starting to process an operation.
	//
	// Parameters:
	//   - operation: Operation name
	RecordOperationStart(operation string)

	// RecordOperationEnd decrements the in-flight operation counter.
	// Should be called when operation processing completes.
	//
	// Parameters:
	//   - operation: Operation name
	RecordOperationEnd(operation string)

	// RecordBytesTransferred records payload bytes moved in or out of the node.
	//
	// Parameters:
	//   - direction: "in" for uploads, "out" for downloads
	//   - bytes: Number of bytes transferred
	RecordBytesTransferred(direction string, bytes int64)

	// SetVolumeCapacity updates the storage volume capacity gauges.
	//
	// Parameters:
	//   - freeBytes: Bytes currently available on the volume
	//   - totalBytes: Total size of the volume
	SetVolumeCapacity(freeBytes, totalBytes uint64)
}

// storageMetrics is the Prometheus implementation of StorageMetrics.
type storageMetrics struct {
	operationsTotal    *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	operationsInFlight *prometheus.GaugeVec
	bytesTransferred   *prometheus.CounterVec
	volumeFreeBytes    prometheus.Gauge
	volumeTotalBytes   prometheus.Gauge
}

// NewStorageMetrics creates a new Prometheus-backed StorageMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry
// not called).
func NewStorageMetrics() StorageMetrics {
	if !IsEnabled() {
		return &noopStorageMetrics{}
	}

	reg := GetRegistry()

	return &storageMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "blobnode_storage_operations_total",
				Help: "Total number of storage operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "blobnode_storage_operation_duration_seconds",
				Help: "Duration of storage operations in seconds",
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
					30.0,  // 30s
				},
			},
			[]string{"operation"},
		),
		operationsInFlight: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "blobnode_storage_operations_in_flight",
				Help: "Current number of storage operations being processed",
			},
			[]string{"operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "blobnode_storage_bytes_transferred_total",
				Help: "Total payload bytes transferred by storage operations",
			},
			[]string{"direction"}, // in or out
		),
		volumeFreeBytes: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "blobnode_storage_volume_free_bytes",
				Help: "Bytes currently available on the storage volume",
			},
		),
		volumeTotalBytes: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "blobnode_storage_volume_total_bytes",
				Help: "Total size of the storage volume in bytes",
			},
		),
	}
}

func (m *storageMetrics) RecordOperation(operation, outcome string, duration time.Duration) {
	m.operationsTotal.WithLabelValues(operation, outcome).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *storageMetrics) RecordOperationStart(operation string) {
	m.operationsInFlight.WithLabelValues(operation).Inc()
}

func (m *storageMetrics) RecordOperationEnd(operation string) {
	m.operationsInFlight.WithLabelValues(operation).Dec()
}

func (m *storageMetrics) RecordBytesTransferred(direction string, bytes int64) {
	m.bytesTransferred.WithLabelValues(direction).Add(float64(bytes))
}

func (m *storageMetrics) SetVolumeCapacity(freeBytes, totalBytes uint64) {
	m.volumeFreeBytes.Set(float64(freeBytes))
	m.volumeTotalBytes.Set(float64(totalBytes))
}

// noopStorageMetrics is a no-op implementation of StorageMetrics with zero overhead.
type noopStorageMetrics struct{}

func (noopStorageMetrics) RecordOperation(operation, outcome string, duration time.Duration) {}
func (noopStorageMetrics) RecordOperationStart(operation string)                             {}
func (noopStorageMetrics) RecordOperationEnd(operation string)                               {}
func (noopStorageMetrics) RecordBytesTransferred(direction string, bytes int64)              {}
func (noopStorageMetrics) SetVolumeCapacity(freeBytes, totalBytes uint64)                    {}
