package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/blobnode/internal/logger"
	"github.com/marmos91/blobnode/pkg/adapter"
	"github.com/marmos91/blobnode/pkg/storage"
)

// Server manages the lifecycle of the protocol adapters that share one
// storage service.
//
// Architecture:
// Server orchestrates the node's wire surfaces (BSP, REST) represented as
// Adapter implementations. All adapters share the same storage service, so
// an object uploaded through one protocol is immediately visible through
// every other.
//
// Lifecycle:
//  1. Creation: New() with the storage service
//  2. Registration: AddAdapter() for each protocol
//  3. Startup: Serve() starts all adapters concurrently
//  4. Shutdown: Context cancellation triggers graceful shutdown of all adapters
//
// Thread safety:
// Server is safe for concurrent use. AddAdapter() may be called concurrently
// with other methods. Serve() may only be called once per server instance.
//
// Example usage:
//
//	srv := server.New(svc, 30*time.Second)
//	srv.AddAdapter(bsp.New(bspConfig, bspMetrics))
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := srv.Serve(ctx); err != nil && err != context.Canceled {
//	    log.Fatal(err)
//	}
type Server struct {
	// service is the shared storage pipeline injected into every adapter
	service *storage.Service

	// stopTimeout bounds the graceful shutdown of each adapter
	stopTimeout time.Duration

	// adapters contains all registered protocol adapters
	adapters []adapter.Adapter

	// mu protects the adapters slice and the served flag
	mu sync.Mutex

	// served flips when Serve() starts; guards late AddAdapter calls and
	// duplicate Serve calls
	served bool
}

// New creates a Server around the provided storage service.
//
// The service is shared across all adapters added to this server. stopTimeout
// bounds how long shutdown waits for each adapter; zero selects 30 seconds.
//
// Returns a configured but not yet started Server. Call AddAdapter() to
// register protocols, then Serve() to start them.
//
// Panics if service is nil (indicates programmer error).
func New(service *storage.Service, stopTimeout time.Duration) *Server {
	if service == nil {
		panic("storage service cannot be nil")
	}
	if stopTimeout <= 0 {
		stopTimeout = 30 * time.Second
	}

	return &Server{
		service:     service,
		stopTimeout: stopTimeout,
		adapters:    make([]adapter.Adapter, 0, 2),
	}
}

// AddAdapter registers a protocol adapter with the server.
//
// The shared storage service is injected into the adapter here, before the
// adapter is ever started. Each adapter must implement a distinct protocol
// and, unless it asked for an ephemeral port, listen on a distinct port.
//
// Returns an error if the adapter duplicates a registered protocol or port.
//
// Panics if the adapter is nil or if Serve() has already been called.
func (s *Server) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		panic("cannot add adapter after Serve() has been called")
	}

	protocol := a.Protocol()
	port := a.Port()

	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		// Port 0 is ephemeral: the kernel hands out distinct ports
		if port != 0 && existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter", port, existing.Protocol())
		}
	}

	a.SetService(s.service)
	s.adapters = append(s.adapters, a)

	logger.Info("Registered %s adapter on port %d", protocol, port)

	return nil
}

// Adapters returns a snapshot of currently registered adapters.
//
// The returned slice is a copy and safe to iterate without holding locks.
func (s *Server) Adapters() []adapter.Adapter {
	s.mu.Lock()
	defer s.mu.Unlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}

// Serve starts all registered adapters and blocks until the context is
// cancelled or an adapter fails.
//
// Shutdown behavior: when the context is cancelled or any adapter returns an
// unexpected error, every adapter receives Stop() in reverse registration
// order, each bounded by the server's stop timeout, and Serve waits for all
// adapter goroutines to finish before returning.
//
// Returns:
//   - context.Canceled (or DeadlineExceeded) when shutdown was context-driven
//   - the first adapter error when an adapter failed
//
// Serve may only be called once; a second call returns an error immediately.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return fmt.Errorf("Serve() has already been called on this server")
	}
	s.served = true

	if len(s.adapters) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("no adapters registered; call AddAdapter() before Serve()")
	}
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	s.mu.Unlock()

	logger.Info("Starting server with %d adapter(s)", len(adapters))

	// Buffered so late failures never block exiting goroutines
	errChan := make(chan adapterError, len(adapters))

	var wg sync.WaitGroup

	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			protocol := a.Protocol()
			logger.Info("Starting %s adapter on port %d", protocol, a.Port())

			if err := a.Serve(ctx); err != nil {
				// context.Canceled is the expected shutdown path
				if err != context.Canceled && ctx.Err() == nil {
					logger.Error("%s adapter failed: %v", protocol, err)
					errChan <- adapterError{protocol: protocol, err: err}
					return
				}
				logger.Debug("%s adapter stopped gracefully", protocol)
				return
			}
			logger.Info("%s adapter stopped", protocol)
		}(adp)
	}

	// Wait for either context cancellation or an adapter failure
	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		s.stopAllAdapters(adapters)
		shutdownErr = ctx.Err()

	case adapterErr := <-errChan:
		logger.Error("Adapter %s failed: %v - stopping all adapters",
			adapterErr.protocol, adapterErr.err)
		s.stopAllAdapters(adapters)
		shutdownErr = fmt.Errorf("%s adapter error: %w", adapterErr.protocol, adapterErr.err)
	}

	logger.Debug("Waiting for all adapters to complete shutdown")
	wg.Wait()

	logger.Info("Server stopped")

	return shutdownErr
}

// adapterError pairs an adapter protocol name with its error for reporting.
type adapterError struct {
	protocol string
	err      error
}

// stopAllAdapters initiates graceful shutdown of all adapters in reverse
// registration order, each Stop bounded by the server's stop timeout.
//
// Errors from Stop are logged, not propagated: one misbehaving adapter must
// not keep the rest from shutting down.
func (s *Server) stopAllAdapters(adapters []adapter.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
	defer cancel()

	logger.Info("Stopping %d adapter(s)", len(adapters))

	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]
		protocol := adp.Protocol()

		logger.Debug("Stopping %s adapter (port %d)", protocol, adp.Port())

		if err := adp.Stop(ctx); err != nil && err != context.Canceled {
			logger.Error("Error stopping %s adapter: %v", protocol, err)
		}
	}
}
