//go:build !windows

package fs

import (
	"errors"

	"golang.org/x/sys/unix"
)

// volumeStats returns total and available bytes for the volume containing
// path. Available uses Bavail, the space non-root processes can actually
// claim.
func volumeStats(path string) (total, free uint64, err error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}

	// Bsize is int64 on linux but uint32 on darwin; go through int64 first.
	bsize := uint64(int64(stat.Bsize))
	total = stat.Blocks * bsize
	free = uint64(stat.Bavail) * bsize
	return total, free, nil
}

// isNoSpace reports whether err is the OS telling us the volume (or a
// quota on it) is full.
func isNoSpace(err error) bool {
	return errors.Is(err, unix.ENOSPC) || errors.Is(err, unix.EDQUOT)
}
