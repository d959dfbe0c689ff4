package bsp

import (
	"bytes"
	"fmt"

	"github.com/marmos91/blobnode/internal/protocol/bsp/xdr"
	"github.com/marmos91/blobnode/pkg/storage"
)

// ============================================================================
// Health Handler
// ============================================================================

// EncodeNodeStatus serializes a health reply body.
func EncodeNodeStatus(status storage.NodeStatus) ([]byte, error) {
	var buf bytes.Buffer
	if err := xdr.EncodeString(&buf, status.NodeID); err != nil {
		return nil, fmt.Errorf("encode node id: %w", err)
	}
	if err := xdr.EncodeBool(&buf, status.Alive); err != nil {
		return nil, fmt.Errorf("encode alive flag: %w", err)
	}
	if err := xdr.EncodeUint64(&buf, status.FreeBytes); err != nil {
		return nil, fmt.Errorf("encode free bytes: %w", err)
	}
	if err := xdr.EncodeUint64(&buf, status.TotalBytes); err != nil {
		return nil, fmt.Errorf("encode total bytes: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeNodeStatus decodes a health reply body.
func DecodeNodeStatus(data []byte) (storage.NodeStatus, error) {
	reader := bytes.NewReader(data)

	var status storage.NodeStatus
	var err error
	if status.NodeID, err = xdr.DecodeString(reader); err != nil {
		return storage.NodeStatus{}, fmt.Errorf("decode node id: %w", err)
	}
	if status.Alive, err = xdr.DecodeBool(reader); err != nil {
		return storage.NodeStatus{}, fmt.Errorf("decode alive flag: %w", err)
	}
	if status.FreeBytes, err = xdr.DecodeUint64(reader); err != nil {
		return storage.NodeStatus{}, fmt.Errorf("decode free bytes: %w", err)
	}
	if status.TotalBytes, err = xdr.DecodeUint64(reader); err != nil {
		return storage.NodeStatus{}, fmt.Errorf("decode total bytes: %w", err)
	}

	return status, nil
}

// handleHealth answers the liveness and capacity probe. The call has no
// body and the probe itself never fails; a sick volume shows up as
// Alive=false with zeroed capacity, not as a fault.
func handleHealth(ctx *CallContext, svc *storage.Service) error {
	status := svc.Health(ctx.Context)

	body, err := EncodeNodeStatus(status)
	if err != nil {
		return fmt.Errorf("encode node status: %w", err)
	}
	reply, err := MakeReply(ctx.Header.Xid, StatusOK, body)
	if err != nil {
		return fmt.Errorf("build health reply: %w", err)
	}
	return ctx.Reply.WriteFrame(reply, true)
}
