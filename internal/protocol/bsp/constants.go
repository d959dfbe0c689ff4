package bsp

import "fmt"

// ProtocolVersion is the only BSP version this node speaks. Calls carrying
// any other version are answered with StatusInvalidArgument.
const ProtocolVersion = 1

// BSP Procedure Numbers
// These identify the operations a client can invoke on a node.
const (
	// ProcUpload - Stream an object onto the node (multi-frame call)
	ProcUpload = 1

	// ProcDownload - Stream an object back to the caller
	ProcDownload = 2

	// ProcDelete - Remove an object
	ProcDelete = 3

	// ProcHealth - Probe node liveness and volume capacity
	ProcHealth = 4
)

// Upload Unit Kinds
// The first field of every payload unit inside an upload call. Order is
// enforced by the storage layer: exactly one metadata unit first, then any
// number of chunks; an abort unit abandons the upload at any point.
const (
	// UnitMetadata - Object metadata, opens the stream
	UnitMetadata = 0

	// UnitChunk - One run of payload bytes
	UnitChunk = 1

	// UnitAbort - Caller abandons the upload
	UnitAbort = 2
)

// ============================================================================
// Record Marking
// ============================================================================

const (
	// MaxFrameSize caps a single frame payload. Larger lengths in a frame
	// header are treated as a protocol violation before any allocation.
	MaxFrameSize = 1 << 20 // 1 MiB

	// lastFrameFlag is bit 31 of the frame header: set on the final frame
	// of a message.
	lastFrameFlag = 0x80000000

	// frameLengthMask extracts the payload length from a frame header.
	frameLengthMask = 0x7FFFFFFF
)

// ProcedureName converts a BSP procedure number to a human-readable string
// suitable for logs and metric labels. Unknown procedures are returned as
// "UNKNOWN_<number>".
func ProcedureName(procedure uint32) string {
	switch procedure {
	case ProcUpload:
		return "UPLOAD"
	case ProcDownload:
		return "DOWNLOAD"
	case ProcDelete:
		return "DELETE"
	case ProcHealth:
		return "HEALTH"
	default:
		return fmt.Sprintf("UNKNOWN_%d", procedure)
	}
}
