package storage

import (
	"context"
	"fmt"

	"github.com/marmos91/blobnode/internal/keyedmutex"
	"github.com/marmos91/blobnode/pkg/metrics"
	"github.com/marmos91/blobnode/pkg/store/file"
)

// Metric label values shared by the coordinators.
const (
	opUpload   = "upload"
	opDownload = "download"
	opDelete   = "delete"
	opHealth   = "health"

	outcomeCommitted        = "committed"
	outcomeValidationFailed = "validation_failed"
	outcomeOK               = "ok"
	outcomeDeleted          = "deleted"
	outcomeAbsent           = "absent"

	directionIn  = "in"
	directionOut = "out"
)

// Config carries the service-level settings, already validated by the
// configuration layer.
type Config struct {
	// NodeID identifies this node in health reports.
	NodeID string

	// UploadSlots and DownloadSlots cap concurrent operations per family.
	UploadSlots   int64
	DownloadSlots int64

	// ChunkSize is the download streaming unit in bytes.
	ChunkSize int
}

// Service bundles the storage pipeline behind one explicitly constructed
// object. Adapters receive a *Service and nothing else; gates, locks, and
// coordinators live inside it, never as package state, so two services in
// one process stay fully independent.
type Service struct {
	mapper   *PathMapper
	store    file.Store
	nodeID   string
	upload   *UploadCoordinator
	download *DownloadStreamer
	delete   *DeletionHandler
	health   *HealthProbe
}

// NewService wires the full pipeline and prepares the storage root and
// temp directory.
func NewService(ctx context.Context, cfg Config, mapper *PathMapper, store file.Store, m metrics.StorageMetrics) (*Service, error) {
	if err := store.EnsureDirectory(ctx, mapper.BasePath()); err != nil {
		return nil, fmt.Errorf("prepare storage root: %w", err)
	}
	if err := store.EnsureDirectory(ctx, mapper.TempDirPath()); err != nil {
		return nil, fmt.Errorf("prepare temp directory: %w", err)
	}

	locks := keyedmutex.New()
	admission := NewAdmission(cfg.UploadSlots, cfg.DownloadSlots)

	return &Service{
		mapper:   mapper,
		store:    store,
		nodeID:   cfg.NodeID,
		upload:   NewUploadCoordinator(mapper, store, locks, admission, m),
		download: NewDownloadStreamer(mapper, store, admission, m, cfg.ChunkSize),
		delete:   NewDeletionHandler(mapper, store, m),
		health:   NewHealthProbe(cfg.NodeID, store, m),
	}, nil
}

// NodeID returns the configured node identity.
func (s *Service) NodeID() string {
	return s.nodeID
}

// Mapper exposes the path mapper, mainly for tests asserting on derived
// paths.
func (s *Service) Mapper() *PathMapper {
	return s.mapper
}

// Upload executes one upload stream. See UploadCoordinator.Run.
func (s *Service) Upload(ctx context.Context, stream UploadStream) (UploadResult, error) {
	return s.upload.Run(ctx, stream)
}

// Download streams an object to sink. See DownloadStreamer.Stream.
func (s *Service) Download(ctx context.Context, ref ObjectRef, sink ChunkSink) error {
	return s.download.Stream(ctx, ref, sink)
}

// Delete removes an object. See DeletionHandler.Delete.
func (s *Service) Delete(ctx context.Context, ref ObjectRef) (bool, error) {
	return s.delete.Delete(ctx, ref)
}

// Health reports node liveness and volume capacity. Never fails.
func (s *Service) Health(ctx context.Context) NodeStatus {
	return s.health.Check(ctx)
}
