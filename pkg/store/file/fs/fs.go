// Package fs implements file.Store on a local filesystem volume.
//
// This file contains the store type, constructor, and path containment
// checks. Read operations live in fs_read.go, mutating operations in
// fs_write.go, and platform capacity probes in the stats_* files.
package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/marmos91/blobnode/pkg/store/file"
)

// copyChunkSize is the unit of the Write copy loop. Context cancellation is
// observed between chunks, so it bounds how much gets written after an abort.
const copyChunkSize = 256 << 10 // 256KB

// copyBufPool recycles Write copy buffers across uploads.
var copyBufPool = sync.Pool{
	New: func() any {
		buf := make([]byte, copyChunkSize)
		return &buf
	},
}

// FSStore implements file.Store using the local filesystem.
//
// All paths handed to its methods must be absolute and live under the base
// path given to New; anything else is rejected before touching the disk.
// Filesystem operations are thread-safe at the OS level, but concurrent
// writers to the same path are the caller's problem (the service layer
// serializes them per object id).
type FSStore struct {
	basePath string
}

// New creates a filesystem store rooted at basePath, creating the directory
// if needed. The path is made absolute so containment checks are not fooled
// by a later working-directory change.
func New(ctx context.Context, basePath string) (*FSStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve base path %s: %w", basePath, err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}

	return &FSStore{basePath: abs}, nil
}

// BasePath returns the absolute storage root.
func (s *FSStore) BasePath() string {
	return s.basePath
}

// contain cleans path and verifies it stays inside the storage root. The
// path mapper already refuses ids that could traverse upward; this is the
// store's own line of defense for paths arriving from other callers.
func (s *FSStore) contain(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return "", fmt.Errorf("path %q is not absolute", path)
	}

	clean := filepath.Clean(path)
	if clean != s.basePath && !strings.HasPrefix(clean, s.basePath+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes storage root", path)
	}

	return clean, nil
}

// Stats reports capacity of the volume containing the storage root.
func (s *FSStore) Stats(ctx context.Context) (file.VolumeStats, error) {
	if err := ctx.Err(); err != nil {
		return file.VolumeStats{}, err
	}

	total, free, err := volumeStats(s.basePath)
	if err != nil {
		return file.VolumeStats{}, fmt.Errorf("probe volume stats: %w", err)
	}

	return file.VolumeStats{TotalBytes: total, FreeBytes: free}, nil
}
