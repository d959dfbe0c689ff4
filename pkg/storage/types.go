package storage

import (
	"context"
	"strings"
	"time"
)

// timestampLayout is the only accepted shape for ObjectMeta.CreatedAtUTC:
// ISO-8601 UTC with exactly seven fractional-second digits and a literal
// trailing Z. Go layouts treat a lone Z as a literal byte and a zero-padded
// fraction as fixed width, so time.Parse enforces both constraints.
const timestampLayout = "2006-01-02T15:04:05.0000000Z"

// ObjectMeta is the first unit of every upload stream.
type ObjectMeta struct {
	// ObjectID addresses the object. Required, used verbatim as the leaf
	// filename.
	ObjectID string

	// CreatedAtUTC is the caller's creation timestamp in timestampLayout
	// form. Required, validated, not otherwise used by the node.
	CreatedAtUTC string

	// ContentType is informational only and never affects the path.
	ContentType string

	// OriginalFilename is informational only and never affects the path.
	OriginalFilename string
}

// parseCreatedAt validates the metadata timestamp. The message names the
// ISO-8601 requirement because that is what callers need to fix.
func parseCreatedAt(s string) error {
	if strings.TrimSpace(s) == "" {
		return Errorf(CodeInvalidArgument,
			"createdAtUtc is required (ISO-8601 UTC, %s)", timestampLayout)
	}
	if _, err := time.Parse(timestampLayout, s); err != nil {
		return Errorf(CodeInvalidArgument,
			"createdAtUtc %q is not strict ISO-8601 UTC with seven fractional digits and a Z suffix (%s)",
			s, timestampLayout)
	}
	return nil
}

// UploadResult reports the outcome of one upload. Validation-level
// failures travel inside it as Success=false with a Message; only protocol
// violations and infrastructure failures become faults.
type UploadResult struct {
	Success bool

	// Message explains a failure. Empty on success.
	Message string

	// RelativePath locates the committed file under the storage root,
	// version suffix included. Callers keep it to address this exact
	// version later.
	RelativePath string

	// Size is the number of payload bytes written.
	Size int64

	// Checksum is the lowercase hex SHA-256 of exactly the bytes written.
	Checksum string
}

// failure builds a negative UploadResult.
func failure(message string) UploadResult {
	return UploadResult{Success: false, Message: message}
}

// ObjectRef addresses an object for download and delete. Exactly one field
// should be set; when both are present the relative path wins, since it is
// the more specific reference (it can name a versioned file the id cannot).
type ObjectRef struct {
	ObjectID     string
	RelativePath string
}

// NodeStatus is the health probe's report.
type NodeStatus struct {
	NodeID     string
	Alive      bool
	FreeBytes  uint64
	TotalBytes uint64
}

// Unit is one element of an upload stream.
type Unit interface {
	isUnit()
}

// MetadataUnit opens a stream. A second one mid-stream is a protocol
// violation.
type MetadataUnit struct {
	Meta ObjectMeta
}

// ChunkUnit carries payload bytes in arrival order.
type ChunkUnit struct {
	Data []byte
}

// AbortUnit is the caller abandoning the upload.
type AbortUnit struct{}

func (MetadataUnit) isUnit() {}
func (ChunkUnit) isUnit()    {}
func (AbortUnit) isUnit()    {}

// UploadStream feeds units to the upload coordinator. Next returns io.EOF
// when the caller has sent everything.
type UploadStream interface {
	Next(ctx context.Context) (Unit, error)
}

// ChunkSink receives a download. Begin is called exactly once with the
// total size before any chunk; for a zero-byte object no Send follows.
// Chunks arrive in file order and the final one is flagged.
type ChunkSink interface {
	Begin(size int64) error
	Send(data []byte, last bool) error
}
