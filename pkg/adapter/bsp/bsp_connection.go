package bsp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/marmos91/blobnode/internal/logger"
	"github.com/marmos91/blobnode/internal/protocol/bsp"
)

// BSPConnection runs the call/reply cycle for one client connection.
//
// One frame reader and one frame writer live for the whole connection, so
// calls are strictly sequential per connection: a client wanting parallel
// transfers opens more connections.
type BSPConnection struct {
	server     *BSPAdapter
	conn       net.Conn
	clientAddr string

	rw     *connIO
	frames *bsp.FrameReader
	reply  *bsp.FrameWriter
}

// NewBSPConnection wraps an accepted TCP connection.
func NewBSPConnection(server *BSPAdapter, conn net.Conn) *BSPConnection {
	rw := &connIO{
		conn:         conn,
		readTimeout:  server.config.ReadTimeout,
		writeTimeout: server.config.WriteTimeout,
		idleTimeout:  server.config.IdleTimeout,
	}
	return &BSPConnection{
		server:     server,
		conn:       conn,
		clientAddr: conn.RemoteAddr().String(),
		rw:         rw,
		frames:     bsp.NewFrameReader(rw),
		reply:      bsp.NewFrameWriter(rw),
	}
}

// Serve handles calls until the client disconnects, a deadline fires, the
// server shuts down, or an unrecoverable protocol error occurs.
//
// Panic recovery keeps one misbehaving connection from taking the whole
// server down.
func (c *BSPConnection) Serve(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in BSP connection handler from %s: %v", c.clientAddr, r)
		}
		c.frames.Release()
		_ = c.conn.Close()
	}()

	logger.Debug("New BSP connection from %s", c.clientAddr)

	for {
		// Between calls is the only safe place to stop: mid-call the
		// stream would be left torn.
		select {
		case <-ctx.Done():
			logger.Debug("BSP connection from %s closed: context cancelled", c.clientAddr)
			return
		case <-c.server.shutdown:
			logger.Debug("BSP connection from %s closed: server shutdown", c.clientAddr)
			return
		default:
		}

		if err := c.handleCall(ctx); err != nil {
			var netErr net.Error
			switch {
			case errors.Is(err, io.EOF):
				logger.Debug("BSP connection from %s closed by client", c.clientAddr)
			case errors.As(err, &netErr) && netErr.Timeout():
				logger.Debug("BSP connection from %s timed out: %v", c.clientAddr, err)
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				logger.Debug("BSP connection from %s cancelled: %v", c.clientAddr, err)
			default:
				logger.Debug("BSP connection from %s failed: %v", c.clientAddr, err)
			}
			return
		}
	}
}

// handleCall processes a single BSP call.
//
// Protocol-level rejections (bad version, unknown procedure, malformed
// framing) are answered in-band and return nil so the connection keeps
// serving. A non-nil return means the connection is unusable: the header
// never arrived, the stream is torn, or the server is shutting down.
func (c *BSPConnection) handleCall(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := c.rw.awaitCall(); err != nil {
		return err
	}
	frame, last, err := c.frames.ReadFrame()
	if err != nil {
		// io.EOF here is a clean disconnect between calls.
		return err
	}

	header, consumed, err := bsp.DecodeCallHeader(frame)
	if err != nil {
		// No header means no xid to reply to; whatever the peer is
		// speaking, it is not BSP.
		return fmt.Errorf("decode call header from %s: %w", c.clientAddr, err)
	}
	body := frame[consumed:]

	logger.Debug("BSP call: xid=0x%x version=%d procedure=%s client=%s",
		header.Xid, header.Version, bsp.ProcedureName(header.Procedure), c.clientAddr)

	if header.Version != bsp.ProtocolVersion {
		return c.rejectCall(header.Xid, last,
			fmt.Sprintf("unsupported protocol version %d", header.Version))
	}

	procInfo, ok := bsp.DispatchTable[header.Procedure]
	if !ok {
		return c.rejectCall(header.Xid, last,
			fmt.Sprintf("unknown procedure %d", header.Procedure))
	}

	if !procInfo.Streaming && !last {
		return c.rejectCall(header.Xid, last,
			fmt.Sprintf("%s is a single-frame call", procInfo.Name))
	}

	select {
	case <-ctx.Done():
		logger.Debug("BSP %s cancelled before handler: xid=0x%x client=%s",
			procInfo.Name, header.Xid, c.clientAddr)
		return ctx.Err()
	default:
	}

	c.server.metrics.RecordRequestStart(procInfo.Name)
	defer c.server.metrics.RecordRequestEnd(procInfo.Name)

	call := &bsp.CallContext{
		Context:    ctx,
		ClientAddr: c.clientAddr,
		Header:     header,
		Body:       body,
		BodyLast:   last,
		Frames:     c.frames,
		Reply:      c.reply,
	}

	startTime := time.Now()
	err = procInfo.Handler(call, c.server.service)
	duration := time.Since(startTime)

	c.server.metrics.RecordRequest(procInfo.Name, duration, err)

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			logger.Debug("BSP %s cancelled: xid=0x%x client=%s error=%v",
				procInfo.Name, header.Xid, c.clientAddr, err)
			return err
		}
		return fmt.Errorf("handle %s for %s: %w", procInfo.Name, c.clientAddr, err)
	}

	logger.Debug("BSP %s completed: xid=0x%x client=%s duration=%v",
		procInfo.Name, header.Xid, c.clientAddr, duration)
	return nil
}

// rejectCall answers a malformed call in-band and keeps the connection.
// Remaining call frames are drained first so the stream stays aligned on
// the next call header.
func (c *BSPConnection) rejectCall(xid uint32, lastSeen bool, message string) error {
	logger.Warn("BSP call rejected from %s: %s", c.clientAddr, message)

	if err := bsp.DrainCall(c.frames, lastSeen); err != nil {
		return fmt.Errorf("drain rejected call: %w", err)
	}

	reply, err := bsp.MakeFaultReply(xid, bsp.StatusInvalidArgument, message)
	if err != nil {
		return fmt.Errorf("build reject reply: %w", err)
	}
	return c.reply.WriteFrame(reply, true)
}

// connIO arms per-I/O deadlines on the underlying connection. Streamed
// calls and replies get progress-based protection: every frame must make
// headway within the configured window, while the transfer as a whole may
// run as long as it keeps moving.
type connIO struct {
	conn         net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
	idleTimeout  time.Duration

	// awaiting marks the gap between calls, where the next read runs
	// under the idle deadline armed by awaitCall instead of the per-read
	// window.
	awaiting bool
}

// awaitCall opens the window in which the next call may start. With no
// idle timeout configured the previous call's deadline is cleared, so an
// idle client can hold the connection open indefinitely.
func (t *connIO) awaitCall() error {
	t.awaiting = true

	var deadline time.Time
	if t.idleTimeout > 0 {
		deadline = time.Now().Add(t.idleTimeout)
	}
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("set idle deadline: %w", err)
	}
	return nil
}

func (t *connIO) Read(p []byte) (int, error) {
	if t.awaiting {
		t.awaiting = false
		return t.conn.Read(p)
	}
	if t.readTimeout > 0 {
		if err := t.conn.SetReadDeadline(time.Now().Add(t.readTimeout)); err != nil {
			return 0, fmt.Errorf("set read deadline: %w", err)
		}
	}
	return t.conn.Read(p)
}

func (t *connIO) Write(p []byte) (int, error) {
	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return 0, fmt.Errorf("set write deadline: %w", err)
		}
	}
	return t.conn.Write(p)
}
