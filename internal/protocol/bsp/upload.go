package bsp

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/marmos91/blobnode/internal/protocol/bsp/xdr"
	"github.com/marmos91/blobnode/pkg/storage"
)

// ============================================================================
// Unit Codec
// ============================================================================

// Each frame of an upload call carries exactly one unit: a uint32 kind
// discriminator followed by the kind's fields. A final frame with no
// payload at all is also legal; it is a bare terminator for clients that
// only discover end-of-data after sending their last chunk.

// EncodeMetadataUnit serializes the stream-opening metadata unit.
func EncodeMetadataUnit(meta storage.ObjectMeta) ([]byte, error) {
	var buf bytes.Buffer
	if err := xdr.EncodeUint32(&buf, UnitMetadata); err != nil {
		return nil, fmt.Errorf("encode unit kind: %w", err)
	}
	if err := xdr.EncodeString(&buf, meta.ObjectID); err != nil {
		return nil, fmt.Errorf("encode object id: %w", err)
	}
	if err := xdr.EncodeString(&buf, meta.CreatedAtUTC); err != nil {
		return nil, fmt.Errorf("encode created at: %w", err)
	}
	if err := xdr.EncodeString(&buf, meta.ContentType); err != nil {
		return nil, fmt.Errorf("encode content type: %w", err)
	}
	if err := xdr.EncodeString(&buf, meta.OriginalFilename); err != nil {
		return nil, fmt.Errorf("encode original filename: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeChunkUnit serializes one payload chunk.
func EncodeChunkUnit(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := xdr.EncodeUint32(&buf, UnitChunk); err != nil {
		return nil, fmt.Errorf("encode unit kind: %w", err)
	}
	if err := xdr.EncodeOpaque(&buf, data); err != nil {
		return nil, fmt.Errorf("encode chunk payload: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeAbortUnit serializes an abort unit. It has no fields beyond the
// kind.
func EncodeAbortUnit() ([]byte, error) {
	var buf bytes.Buffer
	if err := xdr.EncodeUint32(&buf, UnitAbort); err != nil {
		return nil, fmt.Errorf("encode unit kind: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeUnit decodes one upload unit from a frame payload. The returned
// unit owns its memory: chunk payloads are copied out of the frame buffer,
// so they stay valid after the buffer is reused.
func DecodeUnit(data []byte) (storage.Unit, error) {
	reader := bytes.NewReader(data)

	kind, err := xdr.DecodeUint32(reader)
	if err != nil {
		return nil, fmt.Errorf("decode unit kind: %w", err)
	}

	switch kind {
	case UnitMetadata:
		var meta storage.ObjectMeta
		if meta.ObjectID, err = xdr.DecodeString(reader); err != nil {
			return nil, fmt.Errorf("decode object id: %w", err)
		}
		if meta.CreatedAtUTC, err = xdr.DecodeString(reader); err != nil {
			return nil, fmt.Errorf("decode created at: %w", err)
		}
		if meta.ContentType, err = xdr.DecodeString(reader); err != nil {
			return nil, fmt.Errorf("decode content type: %w", err)
		}
		if meta.OriginalFilename, err = xdr.DecodeString(reader); err != nil {
			return nil, fmt.Errorf("decode original filename: %w", err)
		}
		return storage.MetadataUnit{Meta: meta}, nil

	case UnitChunk:
		payload, err := xdr.DecodeOpaque(reader)
		if err != nil {
			return nil, fmt.Errorf("decode chunk payload: %w", err)
		}
		return storage.ChunkUnit{Data: payload}, nil

	case UnitAbort:
		return storage.AbortUnit{}, nil

	default:
		return nil, fmt.Errorf("unknown unit kind %d", kind)
	}
}

// ============================================================================
// Upload Result Codec
// ============================================================================

// EncodeUploadResult serializes the body of a successful-status upload
// reply. Size travels as an unsigned 64-bit; it is a byte count and never
// negative.
func EncodeUploadResult(result storage.UploadResult) ([]byte, error) {
	var buf bytes.Buffer
	if err := xdr.EncodeBool(&buf, result.Success); err != nil {
		return nil, fmt.Errorf("encode success flag: %w", err)
	}
	if err := xdr.EncodeString(&buf, result.Message); err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	if err := xdr.EncodeString(&buf, result.RelativePath); err != nil {
		return nil, fmt.Errorf("encode relative path: %w", err)
	}
	if err := xdr.EncodeUint64(&buf, uint64(result.Size)); err != nil {
		return nil, fmt.Errorf("encode size: %w", err)
	}
	if err := xdr.EncodeString(&buf, result.Checksum); err != nil {
		return nil, fmt.Errorf("encode checksum: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeUploadResult decodes an upload reply body.
func DecodeUploadResult(data []byte) (storage.UploadResult, error) {
	reader := bytes.NewReader(data)

	var result storage.UploadResult
	var err error
	if result.Success, err = xdr.DecodeBool(reader); err != nil {
		return storage.UploadResult{}, fmt.Errorf("decode success flag: %w", err)
	}
	if result.Message, err = xdr.DecodeString(reader); err != nil {
		return storage.UploadResult{}, fmt.Errorf("decode message: %w", err)
	}
	if result.RelativePath, err = xdr.DecodeString(reader); err != nil {
		return storage.UploadResult{}, fmt.Errorf("decode relative path: %w", err)
	}
	size, err := xdr.DecodeUint64(reader)
	if err != nil {
		return storage.UploadResult{}, fmt.Errorf("decode size: %w", err)
	}
	result.Size = int64(size)
	if result.Checksum, err = xdr.DecodeString(reader); err != nil {
		return storage.UploadResult{}, fmt.Errorf("decode checksum: %w", err)
	}

	return result, nil
}

// ============================================================================
// Upload Handler
// ============================================================================

// handleUpload runs one upload call against the service.
//
// The call body is consumed lazily: the storage layer pulls units through
// frameStream as it writes them out, so a large object never sits in
// memory. Whatever the outcome, the remainder of the call message is
// drained before the reply goes out, keeping the connection aligned on a
// frame boundary for the next call.
func handleUpload(ctx *CallContext, svc *storage.Service) error {
	stream := &frameStream{
		frames: ctx.Frames,
		body:   ctx.Body,
		last:   ctx.BodyLast,
	}

	result, err := svc.Upload(ctx.Context, stream)

	if drainErr := stream.drain(); drainErr != nil {
		return fmt.Errorf("drain upload call: %w", drainErr)
	}

	if err != nil {
		reply, buildErr := MakeFaultReply(ctx.Header.Xid, StatusOf(err), err.Error())
		if buildErr != nil {
			return fmt.Errorf("build upload fault reply: %w", buildErr)
		}
		return ctx.Reply.WriteFrame(reply, true)
	}

	body, err := EncodeUploadResult(result)
	if err != nil {
		return fmt.Errorf("encode upload result: %w", err)
	}
	reply, err := MakeReply(ctx.Header.Xid, StatusOK, body)
	if err != nil {
		return fmt.Errorf("build upload reply: %w", err)
	}
	return ctx.Reply.WriteFrame(reply, true)
}

// frameStream adapts the frames of an upload call into the unit stream the
// storage layer consumes. Frame 1's remainder (after the call header) is
// the first unit; every following frame is one more. The frame carrying
// the record-mark last bit ends the stream, after which Next reports
// io.EOF.
type frameStream struct {
	frames *FrameReader

	// body is the first unit, handed over by the connection layer.
	body []byte

	opened bool // body already served
	last   bool // the most recently consumed frame carried the last bit
	done   bool // stream exhausted
}

func (s *frameStream) Next(ctx context.Context) (storage.Unit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.done {
		return nil, io.EOF
	}

	var payload []byte
	if !s.opened {
		s.opened = true
		payload = s.body
		s.done = s.last
	} else {
		frame, isLast, err := s.frames.ReadFrame()
		if err != nil {
			return nil, fmt.Errorf("read upload frame: %w", err)
		}
		s.last = isLast
		s.done = isLast
		payload = frame
	}

	// A bare terminator: nothing to decode, the stream just ended.
	if len(payload) == 0 && s.done {
		return nil, io.EOF
	}

	unit, err := DecodeUnit(payload)
	if err != nil {
		return nil, storage.Errorf(storage.CodeInvalidArgument, "malformed upload unit: %v", err)
	}
	return unit, nil
}

// drain discards whatever the storage layer left unread, through the last
// frame of the call. A stream that already hit its last frame drains as a
// no-op.
func (s *frameStream) drain() error {
	s.opened = true
	return DrainCall(s.frames, s.last)
}
