//go:build windows

package fs

import (
	"errors"

	"golang.org/x/sys/windows"
)

// volumeStats returns total and available bytes for the volume containing
// path.
func volumeStats(path string) (total, free uint64, err error) {
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, 0, err
	}

	var freeBytesAvailable, totalBytes, totalFreeBytes uint64
	if err := windows.GetDiskFreeSpaceEx(
		pathPtr,
		&freeBytesAvailable,
		&totalBytes,
		&totalFreeBytes,
	); err != nil {
		return 0, 0, err
	}

	return totalBytes, freeBytesAvailable, nil
}

// isNoSpace reports whether err is the OS telling us the volume is full.
func isNoSpace(err error) bool {
	return errors.Is(err, windows.ERROR_DISK_FULL) ||
		errors.Is(err, windows.ERROR_HANDLE_DISK_FULL)
}
