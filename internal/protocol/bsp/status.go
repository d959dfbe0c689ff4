package bsp

import (
	"fmt"

	"github.com/marmos91/blobnode/pkg/storage"
)

// Status is the wire-level outcome code carried in every reply header.
type Status uint32

// BSP Status Codes
const (
	// StatusOK - Success; the reply body follows
	StatusOK Status = 0

	// StatusInvalidArgument - Malformed request or protocol violation
	StatusInvalidArgument Status = 1

	// StatusNotFound - The referenced object does not exist
	StatusNotFound Status = 2

	// StatusNoSpace - The storage volume is out of capacity
	StatusNoSpace Status = 3

	// StatusCancelled - The caller aborted or a deadline expired
	StatusCancelled Status = 4

	// StatusInternal - Unexpected server-side failure
	StatusInternal Status = 5
)

// String converts a status code to a human-readable string suitable for
// logs and metric labels. Unknown codes are returned as "UNKNOWN_<code>".
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusInvalidArgument:
		return "INVALID_ARGUMENT"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusNoSpace:
		return "NO_SPACE"
	case StatusCancelled:
		return "CANCELLED"
	case StatusInternal:
		return "INTERNAL"
	default:
		return fmt.Sprintf("UNKNOWN_%d", uint32(s))
	}
}

// StatusOf maps a storage-layer error onto its wire status. A nil error is
// StatusOK; anything unclassified lands on StatusInternal, so no fault
// leaves the node without a definite code.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}

	switch storage.CodeOf(err) {
	case storage.CodeInvalidArgument:
		return StatusInvalidArgument
	case storage.CodeNotFound:
		return StatusNotFound
	case storage.CodeNoSpace:
		return StatusNoSpace
	case storage.CodeCancelled:
		return StatusCancelled
	default:
		return StatusInternal
	}
}
