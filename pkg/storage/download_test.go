package storage

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Helper Functions
// ============================================================================

// captureSink records everything a download pushes at it. Chunks are
// copied because the streamer reuses its buffer between sends.
type captureSink struct {
	began    bool
	size     int64
	chunks   [][]byte
	lasts    []bool
	beginErr error
	onSend   func(call int)
}

func (s *captureSink) Begin(size int64) error {
	if s.beginErr != nil {
		return s.beginErr
	}
	s.began = true
	s.size = size
	return nil
}

func (s *captureSink) Send(data []byte, last bool) error {
	if s.onSend != nil {
		s.onSend(len(s.chunks))
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	s.chunks = append(s.chunks, buf)
	s.lasts = append(s.lasts, last)
	return nil
}

func (s *captureSink) joined() []byte {
	return bytes.Join(s.chunks, nil)
}

// ============================================================================
// Round Trip Tests
// ============================================================================

func TestDownloadRoundTrip(t *testing.T) {
	svc, _ := newDiskService(t, defaultTestConfig())

	payload := make([]byte, 100*1024+17)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	uploadObject(t, svc, "video.mp4", payload)

	sink := &captureSink{}
	err := svc.Download(context.Background(), ObjectRef{ObjectID: "video.mp4"}, sink)
	require.NoError(t, err)

	assert.True(t, sink.began)
	assert.Equal(t, int64(len(payload)), sink.size)
	assert.Equal(t, payload, sink.joined())

	require.NotEmpty(t, sink.lasts)
	for i, last := range sink.lasts {
		if i == len(sink.lasts)-1 {
			assert.True(t, last, "final chunk must be flagged")
		} else {
			assert.False(t, last, "chunk %d of %d must not be flagged", i, len(sink.lasts))
		}
	}
}

func TestDownloadChunkBoundaries(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.ChunkSize = 8
	svc, _ := newDiskService(t, cfg)

	payload := []byte("twenty bytes of data")
	require.Len(t, payload, 20)
	uploadObject(t, svc, "chunked.bin", payload)

	sink := &captureSink{}
	err := svc.Download(context.Background(), ObjectRef{ObjectID: "chunked.bin"}, sink)
	require.NoError(t, err)

	require.Len(t, sink.chunks, 3)
	assert.Len(t, sink.chunks[0], 8)
	assert.Len(t, sink.chunks[1], 8)
	assert.Len(t, sink.chunks[2], 4)
	assert.Equal(t, []bool{false, false, true}, sink.lasts)
	assert.Equal(t, payload, sink.joined())
}

func TestDownloadZeroByteObject(t *testing.T) {
	svc, _ := newDiskService(t, defaultTestConfig())

	uploadObject(t, svc, "empty.bin", nil)

	sink := &captureSink{}
	err := svc.Download(context.Background(), ObjectRef{ObjectID: "empty.bin"}, sink)
	require.NoError(t, err)

	assert.True(t, sink.began, "Begin must still announce the zero size")
	assert.Equal(t, int64(0), sink.size)
	assert.Empty(t, sink.chunks, "nothing to send for an empty object")
}

// ============================================================================
// Reference Resolution Tests
// ============================================================================

func TestDownloadByRelativePath(t *testing.T) {
	svc, _ := newDiskService(t, defaultTestConfig())

	uploadObject(t, svc, "doc.txt", []byte("canonical version"))
	second := uploadObject(t, svc, "doc.txt", []byte("versioned duplicate"))

	t.Run("VersionedPathFetchesDuplicate", func(t *testing.T) {
		sink := &captureSink{}
		err := svc.Download(context.Background(), ObjectRef{RelativePath: second.RelativePath}, sink)
		require.NoError(t, err)
		assert.Equal(t, []byte("versioned duplicate"), sink.joined())
	})

	t.Run("IDFetchesCanonical", func(t *testing.T) {
		sink := &captureSink{}
		err := svc.Download(context.Background(), ObjectRef{ObjectID: "doc.txt"}, sink)
		require.NoError(t, err)
		assert.Equal(t, []byte("canonical version"), sink.joined())
	})

	t.Run("PathWinsOverID", func(t *testing.T) {
		sink := &captureSink{}
		ref := ObjectRef{ObjectID: "doc.txt", RelativePath: second.RelativePath}
		err := svc.Download(context.Background(), ref, sink)
		require.NoError(t, err)
		assert.Equal(t, []byte("versioned duplicate"), sink.joined())
	})
}

func TestDownloadNotFound(t *testing.T) {
	svc, _ := newDiskService(t, defaultTestConfig())

	t.Run("ByID", func(t *testing.T) {
		err := svc.Download(context.Background(), ObjectRef{ObjectID: "ghost.bin"}, &captureSink{})
		require.Error(t, err)
		assert.Equal(t, CodeNotFound, CodeOf(err))
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("ByPath", func(t *testing.T) {
		err := svc.Download(context.Background(), ObjectRef{RelativePath: "ab/cd/ghost.bin"}, &captureSink{})
		require.Error(t, err)
		assert.Equal(t, CodeNotFound, CodeOf(err))
	})
}

func TestDownloadInvalidReferences(t *testing.T) {
	svc, _ := newDiskService(t, defaultTestConfig())

	t.Run("EmptyReference", func(t *testing.T) {
		err := svc.Download(context.Background(), ObjectRef{}, &captureSink{})
		require.Error(t, err)
		assert.Equal(t, CodeInvalidArgument, CodeOf(err))
		assert.Contains(t, err.Error(), "id or a relative path")
	})

	t.Run("EscapingPath", func(t *testing.T) {
		err := svc.Download(context.Background(), ObjectRef{RelativePath: "../../etc/passwd"}, &captureSink{})
		require.Error(t, err)
		assert.Equal(t, CodeInvalidArgument, CodeOf(err))
	})

	t.Run("AbsolutePath", func(t *testing.T) {
		err := svc.Download(context.Background(), ObjectRef{RelativePath: "/etc/passwd"}, &captureSink{})
		require.Error(t, err)
		assert.Equal(t, CodeInvalidArgument, CodeOf(err))
	})
}

// ============================================================================
// Failure Propagation Tests
// ============================================================================

func TestDownloadSinkBeginFailure(t *testing.T) {
	svc, _ := newDiskService(t, defaultTestConfig())

	uploadObject(t, svc, "doc.txt", []byte("payload"))

	sink := &captureSink{beginErr: errors.New("receiver hung up")}
	err := svc.Download(context.Background(), ObjectRef{ObjectID: "doc.txt"}, sink)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin download stream")
	assert.Contains(t, err.Error(), "receiver hung up")
}

func TestDownloadCancellationMidStream(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.ChunkSize = 8
	svc, _ := newDiskService(t, cfg)

	payload := make([]byte, 64)
	uploadObject(t, svc, "doomed.bin", payload)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &captureSink{onSend: func(call int) {
		if call == 2 {
			cancel()
		}
	}}

	err := svc.Download(ctx, ObjectRef{ObjectID: "doomed.bin"}, sink)
	require.Error(t, err)
	assert.Equal(t, CodeCancelled, CodeOf(err))
	assert.Less(t, len(sink.chunks), 8, "stream must stop early")
}

// ============================================================================
// Concurrency Tests
// ============================================================================

func TestDownloadGateBoundsConcurrency(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.DownloadSlots = 1
	svc, _ := newDiskService(t, cfg)

	uploadObject(t, svc, "shared.bin", make([]byte, 1024))

	entered := make(chan struct{})
	resume := make(chan struct{})

	slowSink := &captureSink{onSend: func(call int) {
		if call == 0 {
			close(entered)
			<-resume
		}
	}}

	slowDone := make(chan error, 1)
	go func() {
		slowDone <- svc.Download(context.Background(), ObjectRef{ObjectID: "shared.bin"}, slowSink)
	}()

	<-entered // the only download slot is now held mid-stream

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := svc.Download(ctx, ObjectRef{ObjectID: "shared.bin"}, &captureSink{})
	require.Error(t, err)
	assert.Equal(t, CodeCancelled, CodeOf(err))
	assert.Contains(t, err.Error(), "download slot")

	close(resume)
	require.NoError(t, <-slowDone)

	// The slot freed by the finished download is usable again.
	sink := &captureSink{}
	require.NoError(t, svc.Download(context.Background(), ObjectRef{ObjectID: "shared.bin"}, sink))
	assert.Equal(t, int64(1024), sink.size)
}
