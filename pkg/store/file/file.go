// Package file defines the byte-movement interface the storage service
// writes objects through, together with the sentinel errors backends
// translate OS-level failures into.
//
// Two backends implement it: fs stores files on a local volume and is the
// production choice; memory keeps everything in a map and exists for tests
// and ephemeral deployments.
package file

import (
	"context"
	"io"
)

// VolumeStats describes the capacity of the volume backing a store.
type VolumeStats struct {
	// TotalBytes is the total size of the volume.
	TotalBytes uint64

	// FreeBytes is the space available to new writes.
	FreeBytes uint64
}

// Store moves bytes between callers and a storage volume.
//
// Implementations must be safe for concurrent use. They do not serialize
// writers targeting the same path; the service layer holds a per-object
// lock around write-and-commit sequences.
type Store interface {
	// Write creates the file at path and streams r into it, returning the
	// number of bytes written. Creation is exclusive: if path already
	// exists the write fails with ErrExists. On any failure the partially
	// written file is removed. A full volume yields ErrNoSpace.
	Write(ctx context.Context, path string, r io.Reader) (int64, error)

	// Read opens the file at path for sequential reading. The caller owns
	// the returned reader and must close it. A missing file yields
	// ErrNotFound.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes the file at path and reports whether a file was
	// actually removed. Deleting an absent path returns (false, nil),
	// not an error.
	Delete(ctx context.Context, path string) (bool, error)

	// Exists reports whether a file exists at path.
	Exists(ctx context.Context, path string) (bool, error)

	// Size returns the byte size of the file at path, or ErrNotFound.
	Size(ctx context.Context, path string) (int64, error)

	// Move renames src to dst in one atomic step. It fails with ErrExists
	// when dst is already occupied and ErrNotFound when src is missing.
	Move(ctx context.Context, src, dst string) error

	// EnsureDirectory creates the directory at path, including missing
	// parents. It succeeds if the directory already exists.
	EnsureDirectory(ctx context.Context, path string) error

	// Stats reports capacity of the backing volume.
	Stats(ctx context.Context) (VolumeStats, error)
}
