package adapter

import (
	"context"
	"net"

	"github.com/marmos91/blobnode/pkg/storage"
)

// Adapter is a protocol front-end the node's server can manage.
//
// Each adapter speaks one wire protocol (BSP, REST) and translates it onto
// the shared storage service. Adapters own their listeners and connection
// lifecycles; they never own storage state.
//
// Lifecycle:
//  1. Creation with protocol-specific configuration
//  2. SetService injects the shared storage service
//  3. Serve binds the listener and blocks until shutdown
//  4. Stop initiates graceful shutdown with a caller-controlled deadline
//
// Implementations must be safe for concurrent use: SetService is called
// once before Serve, but Stop may race with Serve during shutdown.
type Adapter interface {
	// Serve starts the protocol server and blocks until the context is
	// cancelled or an unrecoverable error occurs.
	//
	// On context cancellation the adapter must stop accepting new work,
	// wait for in-flight operations up to its configured shutdown
	// timeout, then release all resources. A return before cancellation
	// is treated as fatal by the server, which then stops every other
	// adapter.
	Serve(ctx context.Context) error

	// Stop initiates graceful shutdown. Idempotent, safe to call
	// concurrently with Serve. The context bounds how long Stop waits
	// for in-flight operations before giving up.
	Stop(ctx context.Context) error

	// SetService injects the shared storage service. Called exactly once
	// before Serve.
	SetService(svc *storage.Service)

	// Protocol returns the protocol name for logging and metrics, e.g.
	// "BSP" or "REST".
	Protocol() string

	// Port returns the TCP port the adapter listens on: the bound port
	// once serving (which resolves a configured 0 to the ephemeral port
	// the kernel picked), the configured port before that.
	Port() int

	// Addr returns the bound listener address, or nil before Serve has
	// bound it. Tests use it to reach adapters on ephemeral ports.
	Addr() net.Addr
}
