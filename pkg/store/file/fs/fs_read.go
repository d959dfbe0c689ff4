// Read-side operations of the filesystem store.
package fs

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/marmos91/blobnode/pkg/store/file"
)

// Read opens the file at path for sequential reading.
func (s *FSStore) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full, err := s.contain(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("open %s: %w", path, file.ErrNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	return f, nil
}

// Exists reports whether a regular file exists at path.
func (s *FSStore) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	full, err := s.contain(path)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(full); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", path, err)
	}

	return true, nil
}

// Size returns the byte size of the file at path.
func (s *FSStore) Size(ctx context.Context, path string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	full, err := s.contain(path)
	if err != nil {
		return 0, err
	}

	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("stat %s: %w", path, file.ErrNotFound)
		}
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}

	return info.Size(), nil
}
