package bsp

import (
	"context"

	"github.com/marmos91/blobnode/pkg/storage"
)

// ============================================================================
// Call Context
// ============================================================================

// CallContext carries one decoded call plus the connection streams the
// handler needs to finish it. The connection layer builds one per call; the
// handler owns it until it returns.
//
// **Context Cancellation:**
//
// The Context field is derived from the connection's context and is
// cancelled when the server shuts down or the connection is torn down.
// Handlers pass it into the storage layer, which checks it between chunks,
// so an upload or download in flight aborts promptly on shutdown.
type CallContext struct {
	// Context is the Go context for cancellation and timeout control.
	Context context.Context

	// ClientAddr is the remote address of the client connection,
	// "IP:port" form. Used only for logging.
	ClientAddr string

	// Header is the decoded call header (xid, version, procedure).
	Header *CallHeader

	// Body is the first frame's payload after the call header. For
	// single-frame procedures it is the whole request; for Upload it
	// carries the metadata unit.
	Body []byte

	// BodyLast reports whether frame 1 carried the record-mark last bit,
	// i.e. the call has no further frames.
	BodyLast bool

	// Frames reads the remaining frames of a multi-frame call. Only the
	// Upload handler touches it.
	Frames *FrameReader

	// Reply writes reply frames back to the client.
	Reply *FrameWriter
}

// ============================================================================
// Procedure Dispatch Table
// ============================================================================

// ProcedureHandler executes one call end to end: decode the request from
// the call context, run it against the service, and write the complete
// reply message through ctx.Reply.
//
// The returned error is transport-fatal: the connection cannot be reused
// and must close. Protocol-level faults (bad references, missing objects,
// violations) are answered in-band with a non-OK reply and a nil return,
// so one bad request never kills the connection carrying it.
type ProcedureHandler func(ctx *CallContext, svc *storage.Service) error

// ProcedureInfo describes one BSP procedure for dispatch.
type ProcedureInfo struct {
	// Name is the procedure name for logging and metric labels.
	Name string

	// Handler is the function that processes this procedure.
	Handler ProcedureHandler

	// Streaming marks procedures whose call spans multiple frames. For
	// everything else a continuation frame is a protocol violation the
	// connection layer rejects before dispatching.
	Streaming bool
}

// DispatchTable maps BSP procedure numbers to their handlers. The
// connection layer in pkg/adapter/bsp looks calls up here; a missing entry
// means an unknown procedure and is answered with StatusInvalidArgument.
//
// The table is initialized once at package init time.
var DispatchTable map[uint32]*ProcedureInfo

func init() {
	DispatchTable = map[uint32]*ProcedureInfo{
		ProcUpload: {
			Name:      "UPLOAD",
			Handler:   handleUpload,
			Streaming: true,
		},
		ProcDownload: {
			Name:      "DOWNLOAD",
			Handler:   handleDownload,
			Streaming: false,
		},
		ProcDelete: {
			Name:      "DELETE",
			Handler:   handleDelete,
			Streaming: false,
		},
		ProcHealth: {
			Name:      "HEALTH",
			Handler:   handleHealth,
			Streaming: false,
		},
	}
}

// DrainCall discards the unread remainder of a call message so the next
// frame on the connection is again a call header. A call whose last frame
// was already consumed drains as a no-op.
func DrainCall(fr *FrameReader, lastSeen bool) error {
	for !lastSeen {
		_, last, err := fr.ReadFrame()
		if err != nil {
			return err
		}
		lastSeen = last
	}
	return nil
}
