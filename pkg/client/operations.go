package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/marmos91/blobnode/internal/protocol/bsp"
	"github.com/marmos91/blobnode/internal/protocol/bsp/xdr"
	"github.com/marmos91/blobnode/pkg/storage"
)

// Upload streams an object to the node and returns the stored version.
// The source is read in chunks of the configured size; cancelling ctx
// mid-stream aborts the call in-band, leaving the connection usable.
//
// Validation verdicts (bad metadata, missing id) come back in the result
// with Success false, not as an error.
func (c *Client) Upload(ctx context.Context, meta storage.ObjectMeta, source io.Reader) (*storage.UploadResult, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	metaUnit, err := bsp.EncodeMetadataUnit(meta)
	if err != nil {
		return nil, fmt.Errorf("encode object metadata: %w", err)
	}

	if source == nil {
		source = bytes.NewReader(nil)
	}

	// Read ahead one chunk so the final frame can carry the last bit.
	data := make([]byte, c.opts.chunkSize)
	n, err := readChunk(source, data)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read upload source: %w", err)
	}

	if n == 0 {
		// Zero-byte object: the metadata frame is the whole call.
		xid, serr := c.sendCall(bsp.ProcUpload, metaUnit, true)
		if serr != nil {
			return nil, serr
		}
		return c.finishUpload(ctx, xid)
	}

	xid, serr := c.sendCall(bsp.ProcUpload, metaUnit, false)
	if serr != nil {
		return nil, serr
	}

	data = data[:n]
	dataFinal := errors.Is(err, io.EOF)
	spare := make([]byte, c.opts.chunkSize)

	for {
		if cerr := ctx.Err(); cerr != nil {
			return nil, c.abortUpload(xid, cerr)
		}

		if dataFinal {
			if werr := c.sendChunk(data, true); werr != nil {
				return nil, werr
			}
			break
		}

		nn, rerr := readChunk(source, spare)
		if rerr != nil && !errors.Is(rerr, io.EOF) {
			return nil, c.abortUpload(xid, fmt.Errorf("read upload source: %w", rerr))
		}
		if nn == 0 {
			dataFinal = true
			continue
		}

		if werr := c.sendChunk(data, false); werr != nil {
			return nil, werr
		}
		data, spare = spare[:nn], data[:cap(data)]
		dataFinal = errors.Is(rerr, io.EOF)
	}

	return c.finishUpload(ctx, xid)
}

func (c *Client) sendChunk(data []byte, last bool) error {
	unit, err := bsp.EncodeChunkUnit(data)
	if err != nil {
		return c.fail(fmt.Errorf("encode chunk unit: %w", err))
	}
	if err := c.fw.WriteFrame(unit, last); err != nil {
		return c.fail(fmt.Errorf("send chunk frame: %w", err))
	}
	return nil
}

// finishUpload waits for the node's verdict on the streamed object.
func (c *Client) finishUpload(ctx context.Context, xid uint32) (*storage.UploadResult, error) {
	stop := c.watch(ctx)
	defer stop()

	body, err := c.readReply(xid)
	if err != nil {
		return nil, callErr(ctx, err)
	}
	result, err := bsp.DecodeUploadResult(body)
	if err != nil {
		return nil, c.fail(fmt.Errorf("decode upload result: %w", err))
	}
	return &result, nil
}

// abortUpload ends an in-flight upload early. The abort unit tells the
// node to discard the partial object and fault the call; swallowing that
// fault keeps the connection aligned for the next call. Returns cause so
// callers hand back the original reason, not the abort mechanics.
func (c *Client) abortUpload(xid uint32, cause error) error {
	unit, err := bsp.EncodeAbortUnit()
	if err != nil {
		_ = c.fail(err)
		return cause
	}

	_ = c.conn.SetDeadline(time.Now().Add(abortGrace))
	if werr := c.fw.WriteFrame(unit, true); werr != nil {
		_ = c.fail(werr)
		return cause
	}
	if _, rerr := c.readReply(xid); rerr != nil {
		var se *StatusError
		if !errors.As(rerr, &se) {
			// Transport error; readReply tore the connection down already.
			return cause
		}
	}
	_ = c.conn.SetDeadline(time.Time{})
	return cause
}

// DownloadTo streams an object into w and returns the byte count written.
// If w fails mid-stream the remaining chunks are drained so the
// connection survives; cancelling ctx mid-stream tears it down instead,
// since the node keeps sending until told otherwise.
func (c *Client) DownloadTo(ctx context.Context, ref storage.ObjectRef, w io.Writer) (int64, error) {
	if err := c.acquire(ctx); err != nil {
		return 0, err
	}
	defer c.release()

	body, err := bsp.EncodeObjectRef(ref)
	if err != nil {
		return 0, fmt.Errorf("encode object ref: %w", err)
	}
	xid, err := c.sendCall(bsp.ProcDownload, body, true)
	if err != nil {
		return 0, err
	}

	stop := c.watch(ctx)
	defer stop()

	frame, last, err := c.fr.ReadFrame()
	if err != nil {
		return 0, c.transportErr(ctx, fmt.Errorf("read download header: %w", err))
	}
	header, consumed, err := bsp.DecodeReplyHeader(frame)
	if err != nil {
		return 0, c.transportErr(ctx, fmt.Errorf("decode reply header: %w", err))
	}
	if header.Xid != xid {
		return 0, c.transportErr(ctx, fmt.Errorf("reply xid 0x%x does not match call 0x%x", header.Xid, xid))
	}

	if header.Status != bsp.StatusOK {
		if !last {
			return 0, c.transportErr(ctx, fmt.Errorf("fault reply for xid 0x%x spans frames", xid))
		}
		message, derr := bsp.DecodeFaultMessage(frame[consumed:])
		if derr != nil {
			return 0, c.transportErr(ctx, fmt.Errorf("decode fault message: %w", derr))
		}
		return 0, &StatusError{Status: header.Status, Message: message}
	}

	size, err := xdr.DecodeUint64(bytes.NewReader(frame[consumed:]))
	if err != nil {
		return 0, c.transportErr(ctx, fmt.Errorf("decode object size: %w", err))
	}

	var written int64
	var sinkErr error
	for !last {
		if cerr := ctx.Err(); cerr != nil {
			return written, c.transportErr(ctx, cerr)
		}

		var chunk []byte
		chunk, last, err = c.fr.ReadFrame()
		if err != nil {
			return written, c.transportErr(ctx, fmt.Errorf("read download chunk: %w", err))
		}
		if sinkErr == nil && len(chunk) > 0 {
			n, werr := w.Write(chunk)
			written += int64(n)
			if werr != nil {
				sinkErr = fmt.Errorf("write download chunk: %w", werr)
			}
		}
	}

	if sinkErr != nil {
		return written, sinkErr
	}
	if uint64(written) != size {
		return written, c.fail(fmt.Errorf("download stream ended at %d bytes, header promised %d", written, size))
	}
	return written, nil
}

// Delete removes an object. Returns false without error when nothing
// matched the ref.
func (c *Client) Delete(ctx context.Context, ref storage.ObjectRef) (bool, error) {
	if err := c.acquire(ctx); err != nil {
		return false, err
	}
	defer c.release()

	body, err := bsp.EncodeObjectRef(ref)
	if err != nil {
		return false, fmt.Errorf("encode object ref: %w", err)
	}
	xid, err := c.sendCall(bsp.ProcDelete, body, true)
	if err != nil {
		return false, err
	}

	stop := c.watch(ctx)
	defer stop()

	reply, err := c.readReply(xid)
	if err != nil {
		return false, callErr(ctx, err)
	}
	deleted, err := bsp.DecodeDeleteReply(reply)
	if err != nil {
		return false, c.fail(fmt.Errorf("decode delete reply: %w", err))
	}
	return deleted, nil
}

// Health probes the node for liveness and volume capacity.
func (c *Client) Health(ctx context.Context) (*storage.NodeStatus, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	xid, err := c.sendCall(bsp.ProcHealth, nil, true)
	if err != nil {
		return nil, err
	}

	stop := c.watch(ctx)
	defer stop()

	reply, err := c.readReply(xid)
	if err != nil {
		return nil, callErr(ctx, err)
	}
	status, err := bsp.DecodeNodeStatus(reply)
	if err != nil {
		return nil, c.fail(fmt.Errorf("decode node status: %w", err))
	}
	return &status, nil
}

// transportErr tears the connection down and reports the most useful
// error: the context's own, when the failure was a cancellation poke.
func (c *Client) transportErr(ctx context.Context, err error) error {
	_ = c.fail(err)
	return callErr(ctx, err)
}

// callErr passes in-band faults through untouched and maps poke-induced
// transport errors back to the context's error.
func callErr(ctx context.Context, err error) error {
	var se *StatusError
	if errors.As(err, &se) {
		return err
	}
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	return err
}

// readChunk reads one chunk from r, looping past empty reads per the
// io.Reader contract. Returns n > 0 with or without io.EOF, or 0 with an
// error.
func readChunk(r io.Reader, buf []byte) (int, error) {
	for {
		n, err := r.Read(buf)
		if n > 0 || err != nil {
			return n, err
		}
	}
}
