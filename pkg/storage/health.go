package storage

import (
	"context"
	"time"

	"github.com/marmos91/blobnode/internal/logger"
	"github.com/marmos91/blobnode/pkg/metrics"
	"github.com/marmos91/blobnode/pkg/store/file"
)

// HealthProbe reports liveness and capacity of the storage volume.
type HealthProbe struct {
	nodeID  string
	store   file.Store
	metrics metrics.StorageMetrics
}

// NewHealthProbe wires a health probe for the given node identity.
func NewHealthProbe(nodeID string, store file.Store, m metrics.StorageMetrics) *HealthProbe {
	return &HealthProbe{nodeID: nodeID, store: store, metrics: m}
}

// Check probes the volume. It never returns a fault: any probe failure is
// absorbed into a not-alive report with zeroed capacity, because a health
// endpoint that errors instead of answering defeats its purpose.
func (p *HealthProbe) Check(ctx context.Context) NodeStatus {
	start := time.Now()
	p.metrics.RecordOperationStart(opHealth)
	defer p.metrics.RecordOperationEnd(opHealth)

	stats, err := p.store.Stats(ctx)
	if err != nil {
		logger.Warn("health probe failed node_id=%s: %v", p.nodeID, err)
		p.metrics.RecordOperation(opHealth, CodeOf(err).String(), time.Since(start))
		return NodeStatus{NodeID: p.nodeID, Alive: false}
	}

	p.metrics.RecordOperation(opHealth, outcomeOK, time.Since(start))
	p.metrics.SetVolumeCapacity(stats.FreeBytes, stats.TotalBytes)

	return NodeStatus{
		NodeID:     p.nodeID,
		Alive:      true,
		FreeBytes:  stats.FreeBytes,
		TotalBytes: stats.TotalBytes,
	}
}
