package bsp

import (
	"bytes"
	"fmt"

	"github.com/marmos91/blobnode/internal/protocol/bsp/xdr"
	"github.com/marmos91/blobnode/pkg/storage"
)

// ============================================================================
// Download Handler
// ============================================================================

// handleDownload streams one object back to the client.
//
// The reply shape depends on where things fail. Before the first reply
// frame goes out, any error still travels as a normal fault reply and the
// connection survives. Once the OK header is on the wire the reply is
// committed; a failure after that point can only be reported by tearing
// the connection down, which is exactly what returning an error does.
func handleDownload(ctx *CallContext, svc *storage.Service) error {
	ref, err := DecodeObjectRef(ctx.Body)
	if err != nil {
		reply, buildErr := MakeFaultReply(ctx.Header.Xid, StatusInvalidArgument,
			fmt.Sprintf("malformed download request: %v", err))
		if buildErr != nil {
			return fmt.Errorf("build download fault reply: %w", buildErr)
		}
		return ctx.Reply.WriteFrame(reply, true)
	}

	sink := &frameSink{writer: ctx.Reply, xid: ctx.Header.Xid}
	if err := svc.Download(ctx.Context, ref, sink); err != nil {
		if sink.began {
			return fmt.Errorf("download reply stream: %w", err)
		}
		reply, buildErr := MakeFaultReply(ctx.Header.Xid, StatusOf(err), err.Error())
		if buildErr != nil {
			return fmt.Errorf("build download fault reply: %w", buildErr)
		}
		return ctx.Reply.WriteFrame(reply, true)
	}

	return nil
}

// frameSink adapts the reply side of a download call into the chunk sink
// the storage layer fills. Begin emits the OK header frame carrying the
// object size; each Send becomes one raw chunk frame, no XDR wrapping,
// with the record-mark last bit closing the message.
type frameSink struct {
	writer *FrameWriter
	xid    uint32

	// began flips just before the first byte of the reply can touch the
	// wire. The handler reads it to decide between a fault reply and a
	// connection teardown.
	began bool
}

func (s *frameSink) Begin(size int64) error {
	var body bytes.Buffer
	if err := xdr.EncodeUint64(&body, uint64(size)); err != nil {
		return fmt.Errorf("encode object size: %w", err)
	}
	reply, err := MakeReply(s.xid, StatusOK, body.Bytes())
	if err != nil {
		return fmt.Errorf("build download header: %w", err)
	}

	// A zero-byte object has no chunk frames; its header is the whole
	// reply.
	s.began = true
	return s.writer.WriteFrame(reply, size == 0)
}

func (s *frameSink) Send(data []byte, last bool) error {
	return s.writer.WriteFrame(data, last)
}
