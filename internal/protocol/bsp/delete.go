package bsp

import (
	"bytes"
	"fmt"

	"github.com/marmos91/blobnode/internal/protocol/bsp/xdr"
	"github.com/marmos91/blobnode/pkg/storage"
)

// ============================================================================
// Delete Handler
// ============================================================================

// EncodeDeleteReply serializes a delete reply body: a single flag telling
// whether a file was actually removed. Deleting an absent object is not a
// fault, it just reports false.
func EncodeDeleteReply(deleted bool) ([]byte, error) {
	var buf bytes.Buffer
	if err := xdr.EncodeBool(&buf, deleted); err != nil {
		return nil, fmt.Errorf("encode deleted flag: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeDeleteReply decodes a delete reply body.
func DecodeDeleteReply(data []byte) (bool, error) {
	return xdr.DecodeBool(bytes.NewReader(data))
}

// handleDelete removes one object and reports whether anything was there.
func handleDelete(ctx *CallContext, svc *storage.Service) error {
	ref, err := DecodeObjectRef(ctx.Body)
	if err != nil {
		reply, buildErr := MakeFaultReply(ctx.Header.Xid, StatusInvalidArgument,
			fmt.Sprintf("malformed delete request: %v", err))
		if buildErr != nil {
			return fmt.Errorf("build delete fault reply: %w", buildErr)
		}
		return ctx.Reply.WriteFrame(reply, true)
	}

	deleted, err := svc.Delete(ctx.Context, ref)
	if err != nil {
		reply, buildErr := MakeFaultReply(ctx.Header.Xid, StatusOf(err), err.Error())
		if buildErr != nil {
			return fmt.Errorf("build delete fault reply: %w", buildErr)
		}
		return ctx.Reply.WriteFrame(reply, true)
	}

	body, err := EncodeDeleteReply(deleted)
	if err != nil {
		return fmt.Errorf("encode delete reply: %w", err)
	}
	reply, err := MakeReply(ctx.Header.Xid, StatusOK, body)
	if err != nil {
		return fmt.Errorf("build delete reply: %w", err)
	}
	return ctx.Reply.WriteFrame(reply, true)
}
