package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/marmos91/blobnode/internal/keyedmutex"
	"github.com/marmos91/blobnode/internal/logger"
	"github.com/marmos91/blobnode/pkg/metrics"
	"github.com/marmos91/blobnode/pkg/store/file"
)

// maxVersionProbes caps the versioned-name search. Hitting it means the
// name space for one id is pathologically full; failing is better than
// probing forever.
const maxVersionProbes = 10000

// uploadPhase tracks where an upload stands. Every inbound unit is
// validated against the current phase, so out-of-order units surface as
// protocol violations instead of corrupting state.
type uploadPhase int

const (
	phaseAwaitMetadata uploadPhase = iota
	phaseStreaming
	phaseFinalizing
	phaseCommitted
	phaseFailed
	phaseCancelled
)

func (p uploadPhase) String() string {
	switch p {
	case phaseAwaitMetadata:
		return "await_metadata"
	case phaseStreaming:
		return "streaming"
	case phaseFinalizing:
		return "finalizing"
	case phaseCommitted:
		return "committed"
	case phaseFailed:
		return "failed"
	case phaseCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// UploadCoordinator turns an inbound unit stream into a durably committed
// file.
//
// The flow is a fixed phase sequence: acquire an upload slot, consume and
// validate the metadata unit, lock the object id, stream payload chunks to
// an exclusively created temp file while hashing exactly the bytes
// written, then commit with one atomic rename — versioned upward past an
// occupied canonical slot. The slot and the lock are released exactly once
// on every path out.
type UploadCoordinator struct {
	mapper    *PathMapper
	store     file.Store
	locks     *keyedmutex.KeyedMutex
	admission *Admission
	metrics   metrics.StorageMetrics
}

// NewUploadCoordinator wires an upload coordinator. All dependencies are
// required; metrics may be the no-op implementation but not nil.
func NewUploadCoordinator(
	mapper *PathMapper,
	store file.Store,
	locks *keyedmutex.KeyedMutex,
	admission *Admission,
	m metrics.StorageMetrics,
) *UploadCoordinator {
	return &UploadCoordinator{
		mapper:    mapper,
		store:     store,
		locks:     locks,
		admission: admission,
		metrics:   m,
	}
}

// Run executes one upload.
//
// Validation failures (bad id, bad timestamp) return a negative
// UploadResult and a nil error: the caller gets data it can inspect and
// retry on. Everything else that goes wrong is a fault whose code CodeOf
// can read: protocol violations are CodeInvalidArgument, aborts and
// context cancellation CodeCancelled, volume exhaustion CodeNoSpace, the
// rest CodeInternal.
func (u *UploadCoordinator) Run(ctx context.Context, stream UploadStream) (UploadResult, error) {
	start := time.Now()
	u.metrics.RecordOperationStart(opUpload)
	defer u.metrics.RecordOperationEnd(opUpload)

	if err := u.admission.AcquireUpload(ctx); err != nil {
		u.metrics.RecordOperation(opUpload, CodeCancelled.String(), time.Since(start))
		return UploadResult{}, Errorf(CodeCancelled, "acquire upload slot: %w", err)
	}
	defer u.admission.ReleaseUpload()

	result, err := u.run(ctx, stream)

	switch {
	case err != nil:
		u.metrics.RecordOperation(opUpload, CodeOf(err).String(), time.Since(start))
	case !result.Success:
		u.metrics.RecordOperation(opUpload, outcomeValidationFailed, time.Since(start))
	default:
		u.metrics.RecordOperation(opUpload, outcomeCommitted, time.Since(start))
		u.metrics.RecordBytesTransferred(directionIn, result.Size)
	}

	return result, err
}

func (u *UploadCoordinator) run(ctx context.Context, stream UploadStream) (UploadResult, error) {
	phase := phaseAwaitMetadata
	logger.Debug("upload phase=%s", phase)

	unit, err := stream.Next(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return UploadResult{}, Errorf(CodeInvalidArgument, "upload stream ended before metadata")
		}
		return UploadResult{}, fmt.Errorf("receive metadata unit: %w", err)
	}

	var meta ObjectMeta
	switch v := unit.(type) {
	case MetadataUnit:
		meta = v.Meta
	case ChunkUnit:
		return UploadResult{}, Errorf(CodeInvalidArgument, "payload chunk before metadata")
	case AbortUnit:
		return UploadResult{}, Errorf(CodeCancelled, "upload aborted before metadata")
	default:
		return UploadResult{}, Errorf(CodeInvalidArgument, "unknown upload unit %T", unit)
	}

	// Malformed metadata is data, not a fault, and takes no lock.
	if err := u.validateMeta(meta); err != nil {
		logger.Warn("upload rejected object_id=%q: %v", meta.ObjectID, err)
		return failure(err.Error()), nil
	}

	logger.Info("upload start object_id=%s content_type=%q filename=%q",
		meta.ObjectID, meta.ContentType, meta.OriginalFilename)

	unlock, err := u.locks.Lock(ctx, u.mapper.LockKey(meta.ObjectID))
	if err != nil {
		return UploadResult{}, Errorf(CodeCancelled, "acquire object lock for %s: %w", meta.ObjectID, err)
	}
	defer unlock()

	phase = phaseStreaming
	logger.Debug("upload phase=%s object_id=%s", phase, meta.ObjectID)

	tempPath, err := u.mapper.TempPath(meta.ObjectID)
	if err != nil {
		return UploadResult{}, err
	}

	digest := sha256.New()
	src := &unitReader{ctx: ctx, stream: stream}
	written, err := u.store.Write(ctx, tempPath, io.TeeReader(src, digest))
	if err != nil {
		u.removeTemp(ctx, tempPath)
		phase = failurePhase(err)
		logger.Warn("upload phase=%s object_id=%s after %d bytes: %v",
			phase, meta.ObjectID, written, err)
		return UploadResult{}, fmt.Errorf("stream payload for %s: %w", meta.ObjectID, err)
	}

	phase = phaseFinalizing
	logger.Debug("upload phase=%s object_id=%s size=%d", phase, meta.ObjectID, written)

	checksum := hex.EncodeToString(digest.Sum(nil))
	relPath, err := u.commit(ctx, tempPath, meta.ObjectID)
	if err != nil {
		u.removeTemp(ctx, tempPath)
		phase = failurePhase(err)
		logger.Error("upload phase=%s object_id=%s commit failed: %v", phase, meta.ObjectID, err)
		return UploadResult{}, err
	}

	phase = phaseCommitted
	logger.Info("upload phase=%s object_id=%s path=%s size=%d checksum=%s",
		phase, meta.ObjectID, relPath, written, checksum)

	return UploadResult{
		Success:      true,
		RelativePath: relPath,
		Size:         written,
		Checksum:     checksum,
	}, nil
}

func (u *UploadCoordinator) validateMeta(meta ObjectMeta) error {
	if err := u.mapper.validateID(meta.ObjectID); err != nil {
		return err
	}
	return parseCreatedAt(meta.CreatedAtUTC)
}

// commit renames the temp file to its resting place. The canonical slot is
// tried first; while the destination is occupied the version counter
// probes strictly upward, never revisiting a name. Returns the relative
// path actually used.
func (u *UploadCoordinator) commit(ctx context.Context, tempPath, id string) (string, error) {
	finalAbs, err := u.mapper.FinalPath(id)
	if err != nil {
		return "", err
	}
	finalRel, err := u.mapper.RelativePath(id)
	if err != nil {
		return "", err
	}

	if err := u.store.EnsureDirectory(ctx, filepath.Dir(finalAbs)); err != nil {
		return "", fmt.Errorf("ensure destination directory: %w", err)
	}

	candidateAbs, candidateRel := finalAbs, finalRel
	for version := 1; ; version++ {
		err := u.store.Move(ctx, tempPath, candidateAbs)
		if err == nil {
			return candidateRel, nil
		}
		if !errors.Is(err, file.ErrExists) {
			return "", fmt.Errorf("commit %s: %w", id, err)
		}
		if version > maxVersionProbes {
			return "", Errorf(CodeInternal, "no free versioned name for %s after %d probes", id, maxVersionProbes)
		}
		candidateAbs = u.mapper.VersionedName(finalAbs, version)
		candidateRel = u.mapper.VersionedName(finalRel, version)
	}
}

// removeTemp deletes a temp file after a failed or aborted upload. Best
// effort: the upload already failed, and the context may be dead, so the
// removal runs detached from it and failures are only logged.
func (u *UploadCoordinator) removeTemp(ctx context.Context, tempPath string) {
	cleanupCtx := context.WithoutCancel(ctx)
	if _, err := u.store.Delete(cleanupCtx, tempPath); err != nil {
		logger.Warn("could not remove temp file %s: %v", tempPath, err)
	}
}

// failurePhase picks the terminal phase matching an error's class.
func failurePhase(err error) uploadPhase {
	if CodeOf(err) == CodeCancelled {
		return phaseCancelled
	}
	return phaseFailed
}

// unitReader adapts the post-metadata remainder of an upload stream into
// an io.Reader for the store. It enforces unit ordering: a second metadata
// unit is a protocol violation, an abort unit ends the stream with a
// cancellation fault, and io.EOF from the stream is end-of-payload.
type unitReader struct {
	ctx    context.Context
	stream UploadStream
	buf    []byte
	done   bool
}

func (r *unitReader) Read(p []byte) (int, error) {
	for {
		if len(r.buf) > 0 {
			n := copy(p, r.buf)
			r.buf = r.buf[n:]
			return n, nil
		}
		if r.done {
			return 0, io.EOF
		}

		unit, err := r.stream.Next(r.ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.done = true
				continue
			}
			return 0, err
		}

		switch v := unit.(type) {
		case ChunkUnit:
			r.buf = v.Data
		case AbortUnit:
			return 0, Errorf(CodeCancelled, "upload aborted by caller")
		case MetadataUnit:
			return 0, Errorf(CodeInvalidArgument, "second metadata unit in upload stream")
		default:
			return 0, Errorf(CodeInvalidArgument, "unknown upload unit %T", unit)
		}
	}
}
