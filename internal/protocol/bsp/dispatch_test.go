package bsp

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/blobnode/internal/protocol/bsp/xdr"
	"github.com/marmos91/blobnode/pkg/metrics"
	"github.com/marmos91/blobnode/pkg/storage"
	"github.com/marmos91/blobnode/pkg/store/file/fs"
)

// ============================================================================
// Test Helper Functions
// ============================================================================

const wireTimestamp = "2025-06-15T10:30:00.0000000Z"

const testXid = 7

// newWireService builds a service over a real directory with a tiny chunk
// size, so even small downloads span several reply frames.
func newWireService(t *testing.T) *storage.Service {
	t.Helper()

	mapper, err := storage.NewPathMapper(storage.MapperConfig{
		BasePath:         t.TempDir(),
		TempDirName:      "temp",
		ShardSymbolCount: 2,
		ShardLevelCount:  2,
	})
	require.NoError(t, err)

	store, err := fs.New(context.Background(), mapper.BasePath())
	require.NoError(t, err)

	svc, err := storage.NewService(context.Background(), storage.Config{
		NodeID:        "node-wire",
		UploadSlots:   2,
		DownloadSlots: 2,
		ChunkSize:     8,
	}, mapper, store, metrics.NewStorageMetrics())
	require.NoError(t, err)
	return svc
}

// dispatchCall runs one procedure the way the connection layer would:
// frame 1's decoded body goes in directly, any later call frames arrive
// through a FrameReader over wire. It returns the raw reply bytes and the
// handler's transport-level error.
func dispatchCall(
	t *testing.T,
	ctx context.Context,
	svc *storage.Service,
	procedure uint32,
	body []byte,
	bodyLast bool,
	wire io.Reader,
) (*bytes.Buffer, error) {
	t.Helper()

	info, ok := DispatchTable[procedure]
	require.True(t, ok, "procedure %d not in dispatch table", procedure)

	if wire == nil {
		wire = bytes.NewReader(nil)
	}

	var reply bytes.Buffer
	call := &CallContext{
		Context:    ctx,
		ClientAddr: "wiretest",
		Header:     &CallHeader{Xid: testXid, Version: ProtocolVersion, Procedure: procedure},
		Body:       body,
		BodyLast:   bodyLast,
		Frames:     NewFrameReader(wire),
		Reply:      NewFrameWriter(&reply),
	}
	return &reply, info.Handler(call, svc)
}

// readReply decodes the single frame of a non-streaming reply.
func readReply(t *testing.T, reply *bytes.Buffer) (*ReplyHeader, []byte) {
	t.Helper()

	fr := NewFrameReader(reply)
	frame, last, err := fr.ReadFrame()
	require.NoError(t, err)
	require.True(t, last, "a plain reply is exactly one frame")

	header, consumed, err := DecodeReplyHeader(frame)
	require.NoError(t, err)

	body := append([]byte(nil), frame[consumed:]...)
	fr.Release()
	return header, body
}

// readFault decodes a non-OK reply and returns its status and message.
func readFault(t *testing.T, reply *bytes.Buffer) (Status, string) {
	t.Helper()

	header, body := readReply(t, reply)
	require.NotEqual(t, StatusOK, header.Status, "expected a fault reply")

	message, err := DecodeFaultMessage(body)
	require.NoError(t, err)
	return header.Status, message
}

// readDownloadReply reassembles a streamed OK download reply.
func readDownloadReply(t *testing.T, reply *bytes.Buffer) (size uint64, data []byte, frames int) {
	t.Helper()

	fr := NewFrameReader(reply)
	frame, last, err := fr.ReadFrame()
	require.NoError(t, err)

	header, consumed, err := DecodeReplyHeader(frame)
	require.NoError(t, err)
	require.Equal(t, StatusOK, header.Status)
	require.Equal(t, uint32(testXid), header.Xid)

	size, err = xdr.DecodeUint64(bytes.NewReader(frame[consumed:]))
	require.NoError(t, err)

	for !last {
		var payload []byte
		payload, last, err = fr.ReadFrame()
		require.NoError(t, err)
		data = append(data, payload...)
		frames++
	}
	fr.Release()
	return size, data, frames
}

func wireMeta(id string) storage.ObjectMeta {
	return storage.ObjectMeta{
		ObjectID:         id,
		CreatedAtUTC:     wireTimestamp,
		ContentType:      "application/octet-stream",
		OriginalFilename: id,
	}
}

// chunkFrames writes payload as chunk-unit frames, the last one carrying
// the record-mark last bit.
func chunkFrames(t *testing.T, fw *FrameWriter, payload []byte, chunkSize int) {
	t.Helper()

	var chunks [][]byte
	for off := 0; off < len(payload); off += chunkSize {
		end := off + chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		chunks = append(chunks, payload[off:end])
	}

	for i, chunk := range chunks {
		unit, err := EncodeChunkUnit(chunk)
		require.NoError(t, err)
		require.NoError(t, fw.WriteFrame(unit, i == len(chunks)-1))
	}
}

// uploadViaWire drives a complete upload call through the dispatch table
// and returns the decoded result.
func uploadViaWire(t *testing.T, svc *storage.Service, id string, payload []byte) storage.UploadResult {
	t.Helper()

	body, err := EncodeMetadataUnit(wireMeta(id))
	require.NoError(t, err)

	var wire bytes.Buffer
	chunkFrames(t, NewFrameWriter(&wire), payload, 16)

	reply, err := dispatchCall(t, context.Background(), svc, ProcUpload, body, len(payload) == 0, &wire)
	require.NoError(t, err)

	header, replyBody := readReply(t, reply)
	require.Equal(t, StatusOK, header.Status)
	require.Equal(t, uint32(testXid), header.Xid)

	result, err := DecodeUploadResult(replyBody)
	require.NoError(t, err)
	return result
}

func wireSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ============================================================================
// Upload Handler Tests
// ============================================================================

func TestUploadCallCommitsObject(t *testing.T) {
	svc := newWireService(t)
	payload := bytes.Repeat([]byte("blob data "), 10)

	result := uploadViaWire(t, svc, "data.bin", payload)

	assert.True(t, result.Success)
	assert.Empty(t, result.Message)
	assert.Equal(t, int64(len(payload)), result.Size)
	assert.Equal(t, wireSHA256(payload), result.Checksum)
	assert.NotEmpty(t, result.RelativePath)
}

func TestUploadZeroByteObject(t *testing.T) {
	svc := newWireService(t)

	result := uploadViaWire(t, svc, "empty.bin", nil)

	assert.True(t, result.Success)
	assert.Zero(t, result.Size)
	assert.Equal(t, wireSHA256(nil), result.Checksum)
}

// TestUploadBareTerminator covers clients that only learn end-of-data
// after their final chunk: a trailing empty frame with the last bit closes
// the call just as well as a flagged chunk.
func TestUploadBareTerminator(t *testing.T) {
	svc := newWireService(t)
	payload := []byte("trailing terminator")

	body, err := EncodeMetadataUnit(wireMeta("note.txt"))
	require.NoError(t, err)

	var wire bytes.Buffer
	fw := NewFrameWriter(&wire)
	unit, err := EncodeChunkUnit(payload)
	require.NoError(t, err)
	require.NoError(t, fw.WriteFrame(unit, false))
	require.NoError(t, fw.WriteFrame(nil, true))

	reply, err := dispatchCall(t, context.Background(), svc, ProcUpload, body, false, &wire)
	require.NoError(t, err)

	header, replyBody := readReply(t, reply)
	require.Equal(t, StatusOK, header.Status)

	result, err := DecodeUploadResult(replyBody)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(len(payload)), result.Size)
	assert.Equal(t, wireSHA256(payload), result.Checksum)
}

// TestUploadValidationFailureDrainsCall pins two behaviors at once: a
// rejected upload answers OK with Success=false, and the unread chunk
// frames are consumed before the reply, leaving the connection aligned for
// the next call.
func TestUploadValidationFailureDrainsCall(t *testing.T) {
	svc := newWireService(t)

	meta := wireMeta("late.bin")
	meta.CreatedAtUTC = "June 15th, 2025"
	body, err := EncodeMetadataUnit(meta)
	require.NoError(t, err)

	var wire bytes.Buffer
	chunkFrames(t, NewFrameWriter(&wire), bytes.Repeat([]byte("x"), 64), 16)

	reply, err := dispatchCall(t, context.Background(), svc, ProcUpload, body, false, &wire)
	require.NoError(t, err)

	header, replyBody := readReply(t, reply)
	assert.Equal(t, StatusOK, header.Status)

	result, err := DecodeUploadResult(replyBody)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "createdAtUtc")

	assert.Zero(t, wire.Len(), "pending call frames must be drained before the reply")
}

func TestUploadAbortMidStream(t *testing.T) {
	svc := newWireService(t)

	body, err := EncodeMetadataUnit(wireMeta("aborted.bin"))
	require.NoError(t, err)

	var wire bytes.Buffer
	fw := NewFrameWriter(&wire)
	chunk, err := EncodeChunkUnit([]byte("partial data"))
	require.NoError(t, err)
	require.NoError(t, fw.WriteFrame(chunk, false))
	abort, err := EncodeAbortUnit()
	require.NoError(t, err)
	require.NoError(t, fw.WriteFrame(abort, true))

	reply, err := dispatchCall(t, context.Background(), svc, ProcUpload, body, false, &wire)
	require.NoError(t, err)

	status, message := readFault(t, reply)
	assert.Equal(t, StatusCancelled, status)
	assert.Contains(t, message, "aborted")
	assert.Zero(t, wire.Len())
}

func TestUploadChunkBeforeMetadata(t *testing.T) {
	svc := newWireService(t)

	body, err := EncodeChunkUnit([]byte("orphan chunk"))
	require.NoError(t, err)

	reply, err := dispatchCall(t, context.Background(), svc, ProcUpload, body, true, nil)
	require.NoError(t, err)

	status, message := readFault(t, reply)
	assert.Equal(t, StatusInvalidArgument, status)
	assert.Contains(t, message, "before metadata")
}

func TestUploadSecondMetadataUnit(t *testing.T) {
	svc := newWireService(t)

	body, err := EncodeMetadataUnit(wireMeta("twice.bin"))
	require.NoError(t, err)

	var wire bytes.Buffer
	fw := NewFrameWriter(&wire)
	again, err := EncodeMetadataUnit(wireMeta("twice.bin"))
	require.NoError(t, err)
	require.NoError(t, fw.WriteFrame(again, true))

	reply, err := dispatchCall(t, context.Background(), svc, ProcUpload, body, false, &wire)
	require.NoError(t, err)

	status, message := readFault(t, reply)
	assert.Equal(t, StatusInvalidArgument, status)
	assert.Contains(t, message, "second metadata unit")
}

func TestUploadMalformedUnit(t *testing.T) {
	svc := newWireService(t)

	reply, err := dispatchCall(t, context.Background(), svc, ProcUpload,
		[]byte{0xDE, 0xAD}, true, nil)
	require.NoError(t, err)

	status, message := readFault(t, reply)
	assert.Equal(t, StatusInvalidArgument, status)
	assert.Contains(t, message, "malformed upload unit")
}

func TestUploadCancelledContext(t *testing.T) {
	svc := newWireService(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	body, err := EncodeMetadataUnit(wireMeta("never.bin"))
	require.NoError(t, err)

	reply, err := dispatchCall(t, ctx, svc, ProcUpload, body, true, nil)
	require.NoError(t, err)

	status, _ := readFault(t, reply)
	assert.Equal(t, StatusCancelled, status)
}

// ============================================================================
// Download Handler Tests
// ============================================================================

func TestDownloadStreamsChunks(t *testing.T) {
	svc := newWireService(t)
	payload := []byte("twenty bytes exactly")
	require.Len(t, payload, 20)
	uploadViaWire(t, svc, "stream.bin", payload)

	body, err := EncodeObjectRef(storage.ObjectRef{ObjectID: "stream.bin"})
	require.NoError(t, err)

	reply, err := dispatchCall(t, context.Background(), svc, ProcDownload, body, true, nil)
	require.NoError(t, err)

	size, data, frames := readDownloadReply(t, reply)
	assert.Equal(t, uint64(len(payload)), size)
	assert.Equal(t, payload, data)
	// 20 bytes at the service's 8-byte chunk size.
	assert.Equal(t, 3, frames)
}

func TestDownloadZeroByteObject(t *testing.T) {
	svc := newWireService(t)
	uploadViaWire(t, svc, "hollow.bin", nil)

	body, err := EncodeObjectRef(storage.ObjectRef{ObjectID: "hollow.bin"})
	require.NoError(t, err)

	reply, err := dispatchCall(t, context.Background(), svc, ProcDownload, body, true, nil)
	require.NoError(t, err)

	size, data, frames := readDownloadReply(t, reply)
	assert.Zero(t, size)
	assert.Empty(t, data)
	assert.Zero(t, frames, "a zero-byte reply is the header frame alone")
}

// TestDownloadByRelativePath addresses a specific committed version, the
// way callers re-fetch exactly what an upload reply handed them.
func TestDownloadByRelativePath(t *testing.T) {
	svc := newWireService(t)
	first := uploadViaWire(t, svc, "versioned.bin", []byte("version one"))
	second := uploadViaWire(t, svc, "versioned.bin", []byte("version two!"))
	require.NotEqual(t, first.RelativePath, second.RelativePath)

	body, err := EncodeObjectRef(storage.ObjectRef{RelativePath: second.RelativePath})
	require.NoError(t, err)

	reply, err := dispatchCall(t, context.Background(), svc, ProcDownload, body, true, nil)
	require.NoError(t, err)

	_, data, _ := readDownloadReply(t, reply)
	assert.Equal(t, []byte("version two!"), data)
}

func TestDownloadMissingObject(t *testing.T) {
	svc := newWireService(t)

	body, err := EncodeObjectRef(storage.ObjectRef{ObjectID: "ghost.bin"})
	require.NoError(t, err)

	reply, err := dispatchCall(t, context.Background(), svc, ProcDownload, body, true, nil)
	require.NoError(t, err)

	status, message := readFault(t, reply)
	assert.Equal(t, StatusNotFound, status)
	assert.NotEmpty(t, message)
}

func TestDownloadMalformedRequest(t *testing.T) {
	svc := newWireService(t)

	reply, err := dispatchCall(t, context.Background(), svc, ProcDownload,
		[]byte{0x01, 0x02}, true, nil)
	require.NoError(t, err)

	status, message := readFault(t, reply)
	assert.Equal(t, StatusInvalidArgument, status)
	assert.Contains(t, message, "malformed download request")
}

// ============================================================================
// Delete Handler Tests
// ============================================================================

func TestDeleteLifecycle(t *testing.T) {
	svc := newWireService(t)
	uploadViaWire(t, svc, "doomed.bin", []byte("short life"))

	body, err := EncodeObjectRef(storage.ObjectRef{ObjectID: "doomed.bin"})
	require.NoError(t, err)

	reply, err := dispatchCall(t, context.Background(), svc, ProcDelete, body, true, nil)
	require.NoError(t, err)
	header, replyBody := readReply(t, reply)
	require.Equal(t, StatusOK, header.Status)
	deleted, err := DecodeDeleteReply(replyBody)
	require.NoError(t, err)
	assert.True(t, deleted)

	// Deleting what is already gone is not a fault, it just reports false.
	reply, err = dispatchCall(t, context.Background(), svc, ProcDelete, body, true, nil)
	require.NoError(t, err)
	header, replyBody = readReply(t, reply)
	require.Equal(t, StatusOK, header.Status)
	deleted, err = DecodeDeleteReply(replyBody)
	require.NoError(t, err)
	assert.False(t, deleted)
}

// ============================================================================
// Health Handler Tests
// ============================================================================

func TestHealthProbe(t *testing.T) {
	svc := newWireService(t)

	reply, err := dispatchCall(t, context.Background(), svc, ProcHealth, nil, true, nil)
	require.NoError(t, err)

	header, body := readReply(t, reply)
	require.Equal(t, StatusOK, header.Status)
	require.Equal(t, uint32(testXid), header.Xid)

	status, err := DecodeNodeStatus(body)
	require.NoError(t, err)
	assert.Equal(t, "node-wire", status.NodeID)
	assert.True(t, status.Alive)
	assert.Greater(t, status.TotalBytes, uint64(0))
	assert.LessOrEqual(t, status.FreeBytes, status.TotalBytes)
}
