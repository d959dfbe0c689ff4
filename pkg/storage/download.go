package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/marmos91/blobnode/internal/logger"
	"github.com/marmos91/blobnode/pkg/metrics"
	"github.com/marmos91/blobnode/pkg/store/file"
)

// DownloadStreamer reads a stored object back to a caller in fixed-size
// chunks, bounded by the download admission gate.
type DownloadStreamer struct {
	mapper    *PathMapper
	store     file.Store
	admission *Admission
	metrics   metrics.StorageMetrics

	// chunkSize is the unit of streaming; memory per download is bounded
	// by one chunk regardless of object size.
	chunkSize int
}

// NewDownloadStreamer wires a download streamer. chunkSize must be
// positive; the config layer guarantees that.
func NewDownloadStreamer(
	mapper *PathMapper,
	store file.Store,
	admission *Admission,
	m metrics.StorageMetrics,
	chunkSize int,
) *DownloadStreamer {
	return &DownloadStreamer{
		mapper:    mapper,
		store:     store,
		admission: admission,
		metrics:   m,
		chunkSize: chunkSize,
	}
}

// Stream resolves ref and pushes the object's bytes to sink in order.
//
// Resolution is dual: a relative path is taken as-is under the storage
// root (the way to fetch a specific version), otherwise the canonical path
// is derived from the object id — which can never address a versioned
// duplicate, a known limitation of id-only lookup. A missing file is a
// CodeNotFound fault.
func (d *DownloadStreamer) Stream(ctx context.Context, ref ObjectRef, sink ChunkSink) error {
	start := time.Now()
	d.metrics.RecordOperationStart(opDownload)
	defer d.metrics.RecordOperationEnd(opDownload)

	if err := d.admission.AcquireDownload(ctx); err != nil {
		d.metrics.RecordOperation(opDownload, CodeCancelled.String(), time.Since(start))
		return Errorf(CodeCancelled, "acquire download slot: %w", err)
	}
	defer d.admission.ReleaseDownload()

	sent, err := d.stream(ctx, ref, sink)
	if err != nil {
		d.metrics.RecordOperation(opDownload, CodeOf(err).String(), time.Since(start))
		return err
	}

	d.metrics.RecordOperation(opDownload, outcomeOK, time.Since(start))
	d.metrics.RecordBytesTransferred(directionOut, sent)
	return nil
}

func (d *DownloadStreamer) stream(ctx context.Context, ref ObjectRef, sink ChunkSink) (int64, error) {
	path, err := d.resolve(ref)
	if err != nil {
		return 0, err
	}

	size, err := d.store.Size(ctx, path)
	if err != nil {
		if errors.Is(err, file.ErrNotFound) {
			return 0, Errorf(CodeNotFound, "object not found: %s", ref.describe())
		}
		return 0, fmt.Errorf("probe object size: %w", err)
	}

	logger.Info("download start ref=%s size=%d", ref.describe(), size)

	rc, err := d.store.Read(ctx, path)
	if err != nil {
		if errors.Is(err, file.ErrNotFound) {
			return 0, Errorf(CodeNotFound, "object not found: %s", ref.describe())
		}
		return 0, fmt.Errorf("open object: %w", err)
	}
	defer rc.Close()

	if err := sink.Begin(size); err != nil {
		return 0, fmt.Errorf("begin download stream: %w", err)
	}

	var sent int64
	buf := make([]byte, d.chunkSize)
	for sent < size {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		n, readErr := rc.Read(buf)
		if n > 0 {
			// Never send more than the size announced in Begin, even if
			// the file grew underneath us.
			if remaining := size - sent; int64(n) > remaining {
				n = int(remaining)
			}
			chunkEnd := sent + int64(n)
			if err := sink.Send(buf[:n], chunkEnd >= size); err != nil {
				return sent, fmt.Errorf("send chunk: %w", err)
			}
			sent = chunkEnd
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return sent, fmt.Errorf("read object: %w", readErr)
		}
	}

	// The file shrinking underneath us means a concurrent delete and
	// re-upload won the unguarded race; the stream cannot be completed
	// coherently.
	if sent < size {
		return sent, Errorf(CodeInternal,
			"object %s truncated during read: sent %d of %d bytes", ref.describe(), sent, size)
	}

	logger.Info("download done ref=%s bytes=%d", ref.describe(), sent)
	return sent, nil
}

// resolve turns a reference into an absolute path under the storage root.
func (d *DownloadStreamer) resolve(ref ObjectRef) (string, error) {
	return resolveRef(d.mapper, ref)
}

// resolveRef implements the dual resolution shared by download and delete:
// a non-empty relative path wins, otherwise the canonical path is derived
// from the id, and a reference carrying neither is rejected.
func resolveRef(mapper *PathMapper, ref ObjectRef) (string, error) {
	if ref.RelativePath != "" {
		return mapper.ResolveRelative(ref.RelativePath)
	}
	if ref.ObjectID != "" {
		return mapper.FinalPath(ref.ObjectID)
	}
	return "", Errorf(CodeInvalidArgument, "object reference needs an id or a relative path")
}

// describe renders a reference for logs and error messages.
func (r ObjectRef) describe() string {
	if r.RelativePath != "" {
		return "path:" + r.RelativePath
	}
	if r.ObjectID != "" {
		return "id:" + r.ObjectID
	}
	return "empty"
}
