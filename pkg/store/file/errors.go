package file

import "errors"

// Sentinel errors shared by all Store backends. Service code matches them
// with errors.Is and maps them onto protocol status codes, so backends must
// wrap (never replace) them when adding context:
//
//	return fmt.Errorf("open %s: %w", path, file.ErrNotFound)
var (
	// ErrNotFound indicates the requested file does not exist.
	//
	// Returned by Read, Size, and Move (for a missing source).
	// Protocol mapping: BSP NotFound, HTTP 404.
	ErrNotFound = errors.New("file not found")

	// ErrExists indicates the target path is already occupied.
	//
	// Returned by Write (exclusive create) and Move (occupied
	// destination). The upload flow relies on it to detect version
	// collisions without a separate stat.
	// Protocol mapping: BSP InvalidArgument is never used for this;
	// the service retries with a versioned name instead.
	ErrExists = errors.New("file already exists")

	// ErrNoSpace indicates the backing volume cannot hold the write.
	//
	// Backends derive it from the OS error code (ENOSPC, EDQUOT and
	// their Windows equivalents) rather than from message text.
	// Protocol mapping: BSP NoSpace, HTTP 507.
	ErrNoSpace = errors.New("no space left on storage volume")
)
