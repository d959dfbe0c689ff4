// Mutating operations of the filesystem store: exclusive streaming writes,
// deletion, atomic rename, and directory creation.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/marmos91/blobnode/pkg/store/file"
)

// Write creates the file at path and streams r into it.
//
// The create is exclusive (O_EXCL), so two writers racing for the same path
// cannot interleave into one file; the loser gets file.ErrExists. The copy
// runs in chunks with a context check before each one, and any failure
// removes the partial file before returning.
func (s *FSStore) Write(ctx context.Context, path string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	full, err := s.contain(path)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return 0, fmt.Errorf("create parent directory: %w", classify(err))
	}

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return 0, fmt.Errorf("create %s: %w", path, file.ErrExists)
		}
		return 0, fmt.Errorf("create %s: %w", path, classify(err))
	}

	bufPtr := copyBufPool.Get().(*[]byte)
	defer copyBufPool.Put(bufPtr)
	buf := *bufPtr

	var written int64
	for {
		if err := ctx.Err(); err != nil {
			s.discard(f, full)
			return written, err
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			wn, writeErr := f.Write(buf[:n])
			written += int64(wn)
			if writeErr != nil {
				s.discard(f, full)
				return written, fmt.Errorf("write %s: %w", path, classify(writeErr))
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			s.discard(f, full)
			return written, fmt.Errorf("read source for %s: %w", path, readErr)
		}
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(full)
		return written, fmt.Errorf("close %s: %w", path, classify(err))
	}

	return written, nil
}

// discard closes and removes a half-written file. Best effort: the write
// already failed, so cleanup errors are not worth surfacing over the cause.
func (s *FSStore) discard(f *os.File, full string) {
	_ = f.Close()
	_ = os.Remove(full)
}

// Delete removes the file at path, reporting whether anything was removed.
func (s *FSStore) Delete(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	full, err := s.contain(path)
	if err != nil {
		return false, err
	}

	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("delete %s: %w", path, err)
	}

	return true, nil
}

// Move renames src to dst in one atomic step. Both paths live on the same
// volume by construction (everything is under the storage root), so
// os.Rename never degrades to copy-and-delete.
func (s *FSStore) Move(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fullSrc, err := s.contain(src)
	if err != nil {
		return err
	}
	fullDst, err := s.contain(dst)
	if err != nil {
		return err
	}

	// os.Rename replaces an existing destination silently; occupied
	// destinations must fail instead so version suffixes never overwrite.
	// The stat-then-rename window is closed by the per-object lock held by
	// every committing upload.
	if _, err := os.Stat(fullDst); err == nil {
		return fmt.Errorf("move to %s: %w", dst, file.ErrExists)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat move destination %s: %w", dst, err)
	}

	if err := os.MkdirAll(filepath.Dir(fullDst), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", classify(err))
	}

	if err := os.Rename(fullSrc, fullDst); err != nil {
		var linkErr *os.LinkError
		if errors.As(err, &linkErr) && os.IsNotExist(linkErr.Err) {
			return fmt.Errorf("move %s: %w", src, file.ErrNotFound)
		}
		return fmt.Errorf("move %s to %s: %w", src, dst, classify(err))
	}

	return nil
}

// EnsureDirectory creates the directory at path including missing parents.
func (s *FSStore) EnsureDirectory(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	full, err := s.contain(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(full, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", path, classify(err))
	}

	return nil
}

// classify maps OS-level failures onto the store's sentinel errors so
// callers can match with errors.Is. Anything unrecognized passes through.
func classify(err error) error {
	if isNoSpace(err) {
		return fmt.Errorf("%w: %v", file.ErrNoSpace, err)
	}
	return err
}
