package storage

import (
	"context"
	"time"

	"github.com/marmos91/blobnode/internal/logger"
	"github.com/marmos91/blobnode/pkg/metrics"
	"github.com/marmos91/blobnode/pkg/store/file"
)

// DeletionHandler removes stored objects. Deliberately not serialized
// against uploads of the same id: reads and deletes of placed files need
// no coordination, and the resulting race with an in-flight re-upload is
// accepted, documented behavior.
type DeletionHandler struct {
	mapper  *PathMapper
	store   file.Store
	metrics metrics.StorageMetrics
}

// NewDeletionHandler wires a deletion handler.
func NewDeletionHandler(mapper *PathMapper, store file.Store, m metrics.StorageMetrics) *DeletionHandler {
	return &DeletionHandler{mapper: mapper, store: store, metrics: m}
}

// Delete resolves ref the same dual way as download and removes the file.
// An absent file is a normal outcome, (false, nil), never a fault.
func (h *DeletionHandler) Delete(ctx context.Context, ref ObjectRef) (bool, error) {
	start := time.Now()
	h.metrics.RecordOperationStart(opDelete)
	defer h.metrics.RecordOperationEnd(opDelete)

	path, err := resolveRef(h.mapper, ref)
	if err != nil {
		h.metrics.RecordOperation(opDelete, CodeOf(err).String(), time.Since(start))
		return false, err
	}

	removed, err := h.store.Delete(ctx, path)
	if err != nil {
		h.metrics.RecordOperation(opDelete, CodeOf(err).String(), time.Since(start))
		return false, err
	}

	outcome := outcomeAbsent
	if removed {
		outcome = outcomeDeleted
	}
	h.metrics.RecordOperation(opDelete, outcome, time.Since(start))

	logger.Info("delete ref=%s removed=%t", ref.describe(), removed)
	return removed, nil
}
