package bsp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/blobnode/pkg/storage"
)

// ============================================================================
// Header Codec Tests
// ============================================================================

func TestCallHeaderRoundTrip(t *testing.T) {
	original := &CallHeader{Xid: 42, Version: ProtocolVersion, Procedure: ProcDownload}

	encoded, err := original.Encode()
	require.NoError(t, err)
	assert.Equal(t, 12, len(encoded), "three uint32 fields, no padding")

	decoded, consumed, err := DecodeCallHeader(encoded)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
	assert.Equal(t, len(encoded), consumed)
}

// TestCallHeaderBodySlicing pins the pattern the connection layer relies
// on: consumed bytes tell it where the request body starts in frame 1.
func TestCallHeaderBodySlicing(t *testing.T) {
	header := &CallHeader{Xid: 7, Version: ProtocolVersion, Procedure: ProcDelete}
	encoded, err := header.Encode()
	require.NoError(t, err)

	body, err := EncodeObjectRef(storage.ObjectRef{ObjectID: "invoice.pdf"})
	require.NoError(t, err)
	frame := append(encoded, body...)

	decoded, consumed, err := DecodeCallHeader(frame)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), decoded.Xid)

	ref, err := DecodeObjectRef(frame[consumed:])
	require.NoError(t, err)
	assert.Equal(t, "invoice.pdf", ref.ObjectID)
}

func TestReplyHeaderRoundTrip(t *testing.T) {
	reply, err := MakeReply(99, StatusOK, []byte{0xCA, 0xFE, 0xBA, 0xBE})
	require.NoError(t, err)

	header, consumed, err := DecodeReplyHeader(reply)
	require.NoError(t, err)
	assert.Equal(t, uint32(99), header.Xid)
	assert.Equal(t, StatusOK, header.Status)
	assert.Equal(t, []byte{0xCA, 0xFE, 0xBA, 0xBE}, reply[consumed:])
}

func TestFaultReplyRoundTrip(t *testing.T) {
	reply, err := MakeFaultReply(7, StatusNotFound, "no such object")
	require.NoError(t, err)

	header, consumed, err := DecodeReplyHeader(reply)
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, header.Status)

	message, err := DecodeFaultMessage(reply[consumed:])
	require.NoError(t, err)
	assert.Equal(t, "no such object", message)
}

// ============================================================================
// Unit Codec Tests
// ============================================================================

func TestUnitCodecRoundTrip(t *testing.T) {
	t.Run("Metadata", func(t *testing.T) {
		meta := storage.ObjectMeta{
			ObjectID:         "reports/q1.pdf",
			CreatedAtUTC:     "2025-06-15T10:30:00.0000000Z",
			ContentType:      "application/pdf",
			OriginalFilename: "Q1 Report.pdf",
		}

		encoded, err := EncodeMetadataUnit(meta)
		require.NoError(t, err)

		unit, err := DecodeUnit(encoded)
		require.NoError(t, err)
		decoded, ok := unit.(storage.MetadataUnit)
		require.True(t, ok, "expected MetadataUnit, got %T", unit)
		assert.Equal(t, meta, decoded.Meta)
	})

	t.Run("Chunk", func(t *testing.T) {
		encoded, err := EncodeChunkUnit([]byte("payload bytes"))
		require.NoError(t, err)

		unit, err := DecodeUnit(encoded)
		require.NoError(t, err)
		decoded, ok := unit.(storage.ChunkUnit)
		require.True(t, ok, "expected ChunkUnit, got %T", unit)
		assert.Equal(t, []byte("payload bytes"), decoded.Data)
	})

	t.Run("Abort", func(t *testing.T) {
		encoded, err := EncodeAbortUnit()
		require.NoError(t, err)

		unit, err := DecodeUnit(encoded)
		require.NoError(t, err)
		_, ok := unit.(storage.AbortUnit)
		assert.True(t, ok, "expected AbortUnit, got %T", unit)
	})
}

func TestDecodeUnitRejectsUnknownKind(t *testing.T) {
	// Kind 9 does not exist.
	_, err := DecodeUnit([]byte{0x00, 0x00, 0x00, 0x09})
	assert.Error(t, err)
}

func TestDecodeUnitRejectsTruncatedPayload(t *testing.T) {
	encoded, err := EncodeChunkUnit([]byte("some payload"))
	require.NoError(t, err)

	_, err = DecodeUnit(encoded[:len(encoded)-4])
	assert.Error(t, err)
}

// TestDecodeUnitCopiesChunkData pins the ownership contract: decoded
// chunks must survive the frame buffer being recycled under them.
func TestDecodeUnitCopiesChunkData(t *testing.T) {
	encoded, err := EncodeChunkUnit([]byte("original"))
	require.NoError(t, err)

	unit, err := DecodeUnit(encoded)
	require.NoError(t, err)
	chunk := unit.(storage.ChunkUnit)

	for i := range encoded {
		encoded[i] = 0xFF
	}

	assert.Equal(t, []byte("original"), chunk.Data)
}

// ============================================================================
// Body Codec Tests
// ============================================================================

func TestObjectRefRoundTrip(t *testing.T) {
	ref := storage.ObjectRef{ObjectID: "photo.jpg", RelativePath: "ab/cd/photo.jpg.v2"}

	encoded, err := EncodeObjectRef(ref)
	require.NoError(t, err)

	decoded, err := DecodeObjectRef(encoded)
	require.NoError(t, err)
	assert.Equal(t, ref, decoded)
}

func TestUploadResultRoundTrip(t *testing.T) {
	result := storage.UploadResult{
		Success:      true,
		RelativePath: "ab/cd/photo.jpg",
		Size:         123456,
		Checksum:     "deadbeef",
	}

	encoded, err := EncodeUploadResult(result)
	require.NoError(t, err)

	decoded, err := DecodeUploadResult(encoded)
	require.NoError(t, err)
	assert.Equal(t, result, decoded)
}

func TestDeleteReplyRoundTrip(t *testing.T) {
	for _, deleted := range []bool{true, false} {
		encoded, err := EncodeDeleteReply(deleted)
		require.NoError(t, err)

		decoded, err := DecodeDeleteReply(encoded)
		require.NoError(t, err)
		assert.Equal(t, deleted, decoded)
	}
}

func TestNodeStatusRoundTrip(t *testing.T) {
	status := storage.NodeStatus{
		NodeID:     "node-a1",
		Alive:      true,
		FreeBytes:  512 << 20,
		TotalBytes: 1 << 30,
	}

	encoded, err := EncodeNodeStatus(status)
	require.NoError(t, err)

	decoded, err := DecodeNodeStatus(encoded)
	require.NoError(t, err)
	assert.Equal(t, status, decoded)
}

// ============================================================================
// Status Mapping Tests
// ============================================================================

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Status
	}{
		{"Nil", nil, StatusOK},
		{"InvalidArgument", storage.Errorf(storage.CodeInvalidArgument, "bad id"), StatusInvalidArgument},
		{"NotFound", storage.Errorf(storage.CodeNotFound, "gone"), StatusNotFound},
		{"NoSpace", storage.Errorf(storage.CodeNoSpace, "full"), StatusNoSpace},
		{"Cancelled", storage.Errorf(storage.CodeCancelled, "aborted"), StatusCancelled},
		{"RawContextCancel", context.Canceled, StatusCancelled},
		{"Unclassified", errors.New("disk smoke"), StatusInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.err))
		})
	}
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "OK", StatusOK.String())
	assert.Equal(t, "NOT_FOUND", StatusNotFound.String())
	assert.Equal(t, "UNKNOWN_77", Status(77).String())
}

func TestProcedureName(t *testing.T) {
	assert.Equal(t, "UPLOAD", ProcedureName(ProcUpload))
	assert.Equal(t, "HEALTH", ProcedureName(ProcHealth))
	assert.Equal(t, "UNKNOWN_12", ProcedureName(12))
}
