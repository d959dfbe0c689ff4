// Package client implements a Go client for the BSP protocol.
//
// A Client owns one TCP connection and runs one call at a time on it;
// callers wanting parallel transfers open more clients. Wire-level faults
// come back as *StatusError, transport failures close the connection and
// surface as plain errors, after which every call returns ErrClosed.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/blobnode/internal/protocol/bsp"
)

// Status is the wire outcome code carried by StatusError.
type Status = bsp.Status

// Wire status codes a call can fail with.
const (
	StatusInvalidArgument = bsp.StatusInvalidArgument
	StatusNotFound        = bsp.StatusNotFound
	StatusNoSpace         = bsp.StatusNoSpace
	StatusCancelled       = bsp.StatusCancelled
	StatusInternal        = bsp.StatusInternal
)

// ErrClosed is returned by calls made after the connection is gone,
// whether through Close or a prior transport failure.
var ErrClosed = errors.New("client: connection closed")

// StatusError is a non-OK reply from the node. The connection stays
// usable: the fault was delivered in-band.
type StatusError struct {
	Status  Status
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("node replied %s: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a NotFound reply.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == StatusNotFound
}

const (
	defaultDialTimeout = 10 * time.Second
	defaultChunkSize   = 256 << 10

	// abortGrace bounds the farewell exchange when a cancelled upload is
	// aborted in-band.
	abortGrace = 5 * time.Second
)

type options struct {
	dialTimeout time.Duration
	chunkSize   int
}

// Option configures a Client at Dial time.
type Option func(*options)

// WithDialTimeout bounds the TCP connect.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.dialTimeout = d }
}

// WithChunkSize sets how many payload bytes each upload frame carries.
// Must be positive and leave room for framing under the 1 MiB cap.
func WithChunkSize(n int) Option {
	return func(o *options) { o.chunkSize = n }
}

// Client is a BSP connection to one node.
type Client struct {
	conn net.Conn
	fr   *bsp.FrameReader
	fw   *bsp.FrameWriter

	// slot serializes calls: one in-flight call per connection.
	slot chan struct{}

	xid uint32

	closed    atomic.Bool
	closeOnce sync.Once

	opts options
}

// Dial connects to a node's BSP port.
func Dial(addr string, opts ...Option) (*Client, error) {
	o := options{
		dialTimeout: defaultDialTimeout,
		chunkSize:   defaultChunkSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.chunkSize <= 0 || o.chunkSize > bsp.MaxFrameSize-64 {
		return nil, fmt.Errorf("client: chunk size %d out of range", o.chunkSize)
	}

	conn, err := net.DialTimeout("tcp", addr, o.dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect to node at %s: %w", addr, err)
	}

	return &Client{
		conn: conn,
		fr:   bsp.NewFrameReader(conn),
		fw:   bsp.NewFrameWriter(conn),
		slot: make(chan struct{}, 1),
		opts: o,
	}, nil
}

// Close tears down the connection. In-flight calls fail with a transport
// error. Safe to call multiple times.
func (c *Client) Close() error {
	c.closed.Store(true)

	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// acquire takes the call slot, respecting ctx while waiting.
func (c *Client) acquire(ctx context.Context) error {
	select {
	case c.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	if c.closed.Load() {
		<-c.slot
		return ErrClosed
	}
	return nil
}

func (c *Client) release() {
	<-c.slot
}

// fail marks the connection unusable and closes it. Called on transport
// errors: once framing is torn there is no way back in sync.
func (c *Client) fail(err error) error {
	c.closed.Store(true)
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
	return err
}

// watch pokes the connection deadline when ctx is cancelled, failing any
// blocked read or write. The returned stop function must be called when
// the guarded phase ends; it restores the deadline if the watch never
// fired.
func (c *Client) watch(ctx context.Context) (stop func()) {
	if ctx.Done() == nil {
		return func() {}
	}

	var poked atomic.Bool
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			poked.Store(true)
			_ = c.conn.SetDeadline(time.Now())
		case <-done:
		}
	}()

	return func() {
		close(done)
		if !poked.Load() {
			_ = c.conn.SetDeadline(time.Time{})
		}
	}
}

// sendCall writes frame 1 of a call and returns its xid. Caller holds the
// slot.
func (c *Client) sendCall(procedure uint32, body []byte, last bool) (uint32, error) {
	c.xid++
	header := &bsp.CallHeader{Xid: c.xid, Version: bsp.ProtocolVersion, Procedure: procedure}
	frame, err := header.Encode()
	if err != nil {
		return 0, fmt.Errorf("encode call header: %w", err)
	}
	if err := c.fw.WriteFrame(append(frame, body...), last); err != nil {
		return 0, c.fail(fmt.Errorf("send %s call: %w", bsp.ProcedureName(procedure), err))
	}
	return c.xid, nil
}

// readReply reads a single-frame reply for xid. Non-OK statuses come back
// as *StatusError with a nil body; the returned body slice is only valid
// until the next read on this client.
func (c *Client) readReply(xid uint32) ([]byte, error) {
	frame, last, err := c.fr.ReadFrame()
	if err != nil {
		return nil, c.fail(fmt.Errorf("read reply: %w", err))
	}

	header, consumed, err := bsp.DecodeReplyHeader(frame)
	if err != nil {
		return nil, c.fail(fmt.Errorf("decode reply header: %w", err))
	}
	if header.Xid != xid {
		return nil, c.fail(fmt.Errorf("reply xid 0x%x does not match call 0x%x", header.Xid, xid))
	}
	if !last {
		return nil, c.fail(fmt.Errorf("reply for xid 0x%x spans frames unexpectedly", xid))
	}

	if header.Status != bsp.StatusOK {
		message, err := bsp.DecodeFaultMessage(frame[consumed:])
		if err != nil {
			return nil, c.fail(fmt.Errorf("decode fault message: %w", err))
		}
		return nil, &StatusError{Status: header.Status, Message: message}
	}
	return frame[consumed:], nil
}
