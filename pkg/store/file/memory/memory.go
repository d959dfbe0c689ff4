// Package memory implements file.Store in process memory.
//
// It exists for tests and ephemeral deployments: all data lives in a map
// and vanishes with the process. An optional capacity makes the store
// return genuine ErrNoSpace failures, which is how the disk-full paths of
// the service are exercised without filling a real volume.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/marmos91/blobnode/pkg/store/file"
)

const readChunkSize = 64 << 10 // 64KB

// MemoryStore implements file.Store backed by a map. All operations are
// protected by a RWMutex; content is copied on write so callers cannot
// mutate stored bytes afterwards.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string][]byte

	// capacity bounds the sum of stored bytes; zero means unlimited.
	capacity uint64
}

// New creates an empty in-memory store. A non-zero capacity turns the
// store into a fixed-size volume whose exhaustion surfaces as ErrNoSpace.
func New(ctx context.Context, capacity uint64) (*MemoryStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &MemoryStore{
		files:    make(map[string][]byte),
		capacity: capacity,
	}, nil
}

func (s *MemoryStore) key(path string) string {
	return filepath.Clean(path)
}

// used returns the sum of stored byte counts. Caller holds at least a read
// lock.
func (s *MemoryStore) used() uint64 {
	var total uint64
	for _, data := range s.files {
		total += uint64(len(data))
	}
	return total
}

// Write streams r into a new entry at path. Creation is exclusive and the
// entry only becomes visible once the whole stream has been consumed, so a
// failed or cancelled write leaves nothing behind.
func (s *MemoryStore) Write(ctx context.Context, path string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	key := s.key(path)

	s.mu.RLock()
	_, exists := s.files[key]
	budget := s.capacity
	var used uint64
	if budget > 0 {
		used = s.used()
	}
	s.mu.RUnlock()

	if exists {
		return 0, fmt.Errorf("create %s: %w", path, file.ErrExists)
	}

	var buf bytes.Buffer
	chunk := make([]byte, readChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return int64(buf.Len()), err
		}

		n, readErr := r.Read(chunk)
		if n > 0 {
			if budget > 0 && used+uint64(buf.Len())+uint64(n) > budget {
				return int64(buf.Len()), fmt.Errorf("write %s: %w", path, file.ErrNoSpace)
			}
			buf.Write(chunk[:n])
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return int64(buf.Len()), fmt.Errorf("read source for %s: %w", path, readErr)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check under the write lock; another writer may have won the race
	// while the stream was being consumed.
	if _, exists := s.files[key]; exists {
		return 0, fmt.Errorf("create %s: %w", path, file.ErrExists)
	}
	if budget > 0 && s.used()+uint64(buf.Len()) > budget {
		return 0, fmt.Errorf("write %s: %w", path, file.ErrNoSpace)
	}

	s.files[key] = buf.Bytes()
	return int64(buf.Len()), nil
}

// Read returns a reader over a copy of the stored bytes.
func (s *MemoryStore) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	data, exists := s.files[s.key(path)]
	s.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("open %s: %w", path, file.ErrNotFound)
	}

	snapshot := make([]byte, len(data))
	copy(snapshot, data)
	return io.NopCloser(bytes.NewReader(snapshot)), nil
}

// Delete removes the entry at path, reporting whether one existed.
func (s *MemoryStore) Delete(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	key := s.key(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.files[key]; !exists {
		return false, nil
	}
	delete(s.files, key)
	return true, nil
}

// Exists reports whether an entry exists at path.
func (s *MemoryStore) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.files[s.key(path)]
	return exists, nil
}

// Size returns the stored byte count at path.
func (s *MemoryStore) Size(ctx context.Context, path string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.files[s.key(path)]
	if !exists {
		return 0, fmt.Errorf("stat %s: %w", path, file.ErrNotFound)
	}
	return int64(len(data)), nil
}

// Move re-keys src to dst atomically under the store lock.
func (s *MemoryStore) Move(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	srcKey, dstKey := s.key(src), s.key(dst)

	s.mu.Lock()
	defer s.mu.Unlock()

	data, exists := s.files[srcKey]
	if !exists {
		return fmt.Errorf("move %s: %w", src, file.ErrNotFound)
	}
	if _, occupied := s.files[dstKey]; occupied {
		return fmt.Errorf("move to %s: %w", dst, file.ErrExists)
	}

	s.files[dstKey] = data
	delete(s.files, srcKey)
	return nil
}

// EnsureDirectory is a no-op: the map has no directory hierarchy.
func (s *MemoryStore) EnsureDirectory(ctx context.Context, path string) error {
	return ctx.Err()
}

// Stats reports the configured capacity, or an effectively unlimited
// volume when no capacity was set.
func (s *MemoryStore) Stats(ctx context.Context) (file.VolumeStats, error) {
	if err := ctx.Err(); err != nil {
		return file.VolumeStats{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.capacity == 0 {
		return file.VolumeStats{
			TotalBytes: ^uint64(0),
			FreeBytes:  ^uint64(0),
		}, nil
	}

	used := s.used()
	free := uint64(0)
	if used < s.capacity {
		free = s.capacity - used
	}
	return file.VolumeStats{TotalBytes: s.capacity, FreeBytes: free}, nil
}
