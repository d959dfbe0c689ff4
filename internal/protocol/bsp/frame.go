package bsp

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ============================================================================
// Record-Marked Framing
// ============================================================================

// FrameReader reads record-marked frames from a stream.
//
// Payloads are read into pooled buffers owned by the reader: the slice
// returned by ReadFrame is valid only until the next ReadFrame or Release
// call. Callers that keep payload bytes must copy them; the message codecs
// in this package all do.
//
// A FrameReader is not safe for concurrent use. One lives per connection.
type FrameReader struct {
	r   io.Reader
	buf []byte // pooled payload of the most recent frame
}

// NewFrameReader wraps r in a frame reader.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r}
}

// ReadFrame reads the next frame and returns its payload and the last-frame
// flag. The returned slice aliases a pooled buffer; see the type comment.
//
// Returns io.EOF unchanged when the stream ends cleanly between frames, so
// callers can tell a client hang-up from a truncated frame.
func (fr *FrameReader) ReadFrame() ([]byte, bool, error) {
	// Recycle the previous frame's buffer before touching the wire.
	fr.Release()

	var header [4]byte
	if _, err := io.ReadFull(fr.r, header[:]); err != nil {
		return nil, false, err
	}

	mark := binary.BigEndian.Uint32(header[:])
	last := mark&lastFrameFlag != 0
	length := mark & frameLengthMask

	// Validate frame size to prevent memory exhaustion
	if length > MaxFrameSize {
		return nil, false, fmt.Errorf("frame of %d bytes exceeds maximum %d", length, MaxFrameSize)
	}

	buf := GetBuffer(length)
	if _, err := io.ReadFull(fr.r, buf); err != nil {
		PutBuffer(buf)
		return nil, false, fmt.Errorf("read frame payload: %w", err)
	}

	fr.buf = buf
	return buf, last, nil
}

// Release returns the current frame's buffer to the pool. Safe to call any
// number of times; ReadFrame calls it implicitly, so an explicit call is
// only needed when the reader is done for good.
func (fr *FrameReader) Release() {
	if fr.buf != nil {
		PutBuffer(fr.buf)
		fr.buf = nil
	}
}

// FrameWriter writes record-marked frames to a stream.
//
// A FrameWriter is not safe for concurrent use.
type FrameWriter struct {
	w io.Writer
}

// NewFrameWriter wraps w in a frame writer.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// WriteFrame writes one frame. The payload may be empty: an empty last
// frame is how a message with no body terminates.
func (fw *FrameWriter) WriteFrame(payload []byte, last bool) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds maximum %d", len(payload), MaxFrameSize)
	}

	mark := uint32(len(payload))
	if last {
		mark |= lastFrameFlag
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], mark)
	if _, err := fw.w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := fw.w.Write(payload); err != nil {
			return fmt.Errorf("write frame payload: %w", err)
		}
	}
	return nil
}
