package bsp

import (
	"bytes"
	"fmt"

	xdrcodec "github.com/rasky/go-xdr/xdr2"

	"github.com/marmos91/blobnode/internal/protocol/bsp/xdr"
)

// CallHeader opens every call message. It is the first thing in frame 1,
// followed immediately by the procedure's request body.
type CallHeader struct {
	// Xid correlates a reply with its call. Clients pick it; the node
	// echoes it back verbatim.
	Xid uint32

	// Version is the BSP protocol version, always ProtocolVersion.
	Version uint32

	// Procedure selects the operation (ProcUpload, ProcDownload, ...).
	Procedure uint32
}

// ReplyHeader opens every reply message.
type ReplyHeader struct {
	Xid    uint32
	Status Status
}

// DecodeCallHeader decodes a call header from the front of a frame payload.
// It returns the header and the number of bytes consumed, so the caller can
// slice off the request body that follows.
func DecodeCallHeader(data []byte) (*CallHeader, int, error) {
	header := &CallHeader{}
	n, err := xdrcodec.Unmarshal(bytes.NewReader(data), header)
	if err != nil {
		return nil, 0, fmt.Errorf("unmarshal call header: %w", err)
	}
	return header, n, nil
}

// Encode serializes the call header.
func (h *CallHeader) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := xdrcodec.Marshal(&buf, h); err != nil {
		return nil, fmt.Errorf("marshal call header: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeReplyHeader decodes a reply header from the front of a frame
// payload, returning the header and the bytes consumed.
func DecodeReplyHeader(data []byte) (*ReplyHeader, int, error) {
	header := &ReplyHeader{}
	n, err := xdrcodec.Unmarshal(bytes.NewReader(data), header)
	if err != nil {
		return nil, 0, fmt.Errorf("unmarshal reply header: %w", err)
	}
	return header, n, nil
}

// MakeReply builds a complete reply payload: header followed by an encoded
// body. Record marking is the frame writer's job, not done here.
func MakeReply(xid uint32, status Status, body []byte) ([]byte, error) {
	reply := ReplyHeader{Xid: xid, Status: status}

	var buf bytes.Buffer
	if _, err := xdrcodec.Marshal(&buf, &reply); err != nil {
		return nil, fmt.Errorf("marshal reply header: %w", err)
	}
	buf.Write(body)

	return buf.Bytes(), nil
}

// MakeFaultReply builds a non-OK reply. Per the protocol, its body is a
// single string explaining the fault.
func MakeFaultReply(xid uint32, status Status, message string) ([]byte, error) {
	var body bytes.Buffer
	if err := xdr.EncodeString(&body, message); err != nil {
		return nil, fmt.Errorf("encode fault message: %w", err)
	}
	return MakeReply(xid, status, body.Bytes())
}

// DecodeFaultMessage decodes the message string of a non-OK reply body.
func DecodeFaultMessage(body []byte) (string, error) {
	return xdr.DecodeString(bytes.NewReader(body))
}
