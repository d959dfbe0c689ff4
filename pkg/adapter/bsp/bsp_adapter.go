package bsp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/blobnode/internal/logger"
	"github.com/marmos91/blobnode/internal/ratelimiter"
	"github.com/marmos91/blobnode/pkg/metrics"
	"github.com/marmos91/blobnode/pkg/storage"
)

// BSPAdapter implements the adapter.Adapter interface for the BSP protocol.
//
// The adapter owns the TCP listener and the connection lifecycle. Each
// accepted connection is handled by a BSPConnection that runs the
// call/reply cycle against the shared storage service. Shutdown is
// coordinated across all active connections with context cancellation and
// a wait group.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. shutdownCtx cancelled (in-flight calls abort between chunks)
//  4. Wait for active connections up to ShutdownTimeout
//  5. Force-close whatever is left
//
// All methods are safe for concurrent use; shutdown runs exactly once
// behind a sync.Once no matter how many paths trigger it.
type BSPAdapter struct {
	config BSPConfig

	// listener accepts BSP connections. Closed during shutdown.
	listener net.Listener

	// boundAddr publishes the listener address once Serve has bound it,
	// so Addr() is safe to poll from other goroutines. Holds a net.Addr.
	boundAddr atomic.Value

	// service is the shared storage pipeline every handler runs against.
	service *storage.Service

	// metrics collects wire-level counters. Never nil; a no-op
	// implementation stands in when none is provided.
	metrics metrics.BSPMetrics

	// acceptLimiter paces the accept loop when accept_rate is configured.
	// nil means unlimited.
	acceptLimiter *ratelimiter.RateLimiter

	// activeConns tracks live connections for graceful shutdown.
	activeConns sync.WaitGroup

	// shutdownOnce guards the shutdown sequence.
	shutdownOnce sync.Once

	// shutdown is closed when shutdown begins; the accept loop and the
	// connections watch it.
	shutdown chan struct{}

	// connCount is the live connection count, for metrics and logs.
	connCount atomic.Int32

	// connSemaphore bounds concurrent connections when MaxConnections is
	// set. nil means unlimited.
	connSemaphore chan struct{}

	// shutdownCtx is the parent of every in-flight call; cancelled during
	// shutdown so uploads and downloads abort between chunks.
	shutdownCtx    context.Context
	cancelRequests context.CancelFunc

	// activeConnections maps remote address to net.Conn for force-closure
	// after the graceful window expires.
	activeConnections sync.Map
}

// BSPConfig holds the BSP server settings.
//
// Zero timeouts mean no timeout (not recommended outside tests). Port 0
// asks the kernel for an ephemeral port; tests use it and read the bound
// address back through Addr().
type BSPConfig struct {
	// Enabled controls whether the adapter is started at all.
	Enabled bool `mapstructure:"enabled"`

	// Port is the TCP port to listen on. 0 means ephemeral.
	Port int `mapstructure:"port" validate:"min=0,max=65535"`

	// MaxConnections bounds concurrent client connections; new ones wait
	// for a slot. 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" validate:"min=0"`

	// AcceptRate paces connection accepts per second through a token
	// bucket, absorbing connection storms. 0 disables pacing.
	AcceptRate uint `mapstructure:"accept_rate"`

	// AcceptBurst is the token bucket depth when AcceptRate is set.
	AcceptBurst uint `mapstructure:"accept_burst"`

	// ReadTimeout bounds reading one call frame from a client.
	ReadTimeout time.Duration `mapstructure:"read_timeout" validate:"min=0"`

	// WriteTimeout bounds writing one reply frame to a client.
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"min=0"`

	// IdleTimeout closes connections with no traffic between calls.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"min=0"`

	// ShutdownTimeout is how long graceful shutdown waits for in-flight
	// connections before force-closing them. Must be positive.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`

	// MetricsLogInterval is how often the adapter logs its connection
	// count. 0 disables the ticker.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" validate:"min=0"`
}

// applyDefaults fills zero values with production settings. Port is left
// alone: 0 is a meaningful value (ephemeral).
func (c *BSPConfig) applyDefaults() {
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 5 * time.Minute
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.AcceptRate > 0 && c.AcceptBurst == 0 {
		c.AcceptBurst = c.AcceptRate
	}
}

// validate checks the configuration is usable.
func (c *BSPConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid MaxConnections %d: must be >= 0", c.MaxConnections)
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("invalid ReadTimeout %v: must be >= 0", c.ReadTimeout)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("invalid WriteTimeout %v: must be >= 0", c.WriteTimeout)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("invalid IdleTimeout %v: must be >= 0", c.IdleTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	return nil
}

// New creates a BSPAdapter with the given configuration.
//
// The adapter starts stopped: call SetService, then Serve. Zero config
// values are replaced with defaults; an invalid configuration panics,
// since it indicates a programming error, not an operational one.
//
// bspMetrics may be nil, in which case no metrics are collected.
func New(config BSPConfig, bspMetrics metrics.BSPMetrics) *BSPAdapter {
	config.applyDefaults()

	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid BSP config: %v", err))
	}

	var connSemaphore chan struct{}
	if config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, config.MaxConnections)
		logger.Debug("BSP connection limit: %d", config.MaxConnections)
	} else {
		logger.Debug("BSP connection limit: unlimited")
	}

	var acceptLimiter *ratelimiter.RateLimiter
	if config.AcceptRate > 0 {
		acceptLimiter = ratelimiter.New(config.AcceptRate, config.AcceptBurst)
		logger.Debug("BSP accept pacing: %d/s burst %d", config.AcceptRate, config.AcceptBurst)
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	if bspMetrics == nil {
		bspMetrics = &noopBSPMetrics{}
	}

	return &BSPAdapter{
		config:         config,
		metrics:        bspMetrics,
		acceptLimiter:  acceptLimiter,
		shutdown:       make(chan struct{}),
		connSemaphore:  connSemaphore,
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
	}
}

// noopBSPMetrics is the local no-op used when no collector is wired.
type noopBSPMetrics struct{}

func (noopBSPMetrics) RecordRequest(procedure string, duration time.Duration, err error) {}
func (noopBSPMetrics) RecordRequestStart(procedure string)                               {}
func (noopBSPMetrics) RecordRequestEnd(procedure string)                                 {}
func (noopBSPMetrics) SetActiveConnections(count int32)                                  {}
func (noopBSPMetrics) RecordConnectionAccepted()                                         {}
func (noopBSPMetrics) RecordConnectionClosed()                                           {}

// SetService injects the shared storage service. Called once by the server
// before Serve; no synchronization needed.
func (s *BSPAdapter) SetService(svc *storage.Service) {
	s.service = svc
	logger.Debug("BSP storage service configured")
}

// Serve starts the BSP server and blocks until the context is cancelled or
// an unrecoverable error occurs.
//
// Each accepted connection gets its own goroutine running the call loop
// with shutdownCtx, so cancelling the server context aborts in-flight
// uploads and downloads between chunks rather than at the next call
// boundary.
func (s *BSPAdapter) Serve(ctx context.Context) error {
	if s.service == nil {
		return fmt.Errorf("BSP adapter has no storage service: call SetService before Serve")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("create BSP listener on port %d: %w", s.config.Port, err)
	}

	s.listener = listener
	s.boundAddr.Store(listener.Addr())
	logger.Info("BSP server listening on %s", listener.Addr())
	logger.Debug("BSP config: max_connections=%d read_timeout=%v write_timeout=%v idle_timeout=%v",
		s.config.MaxConnections, s.config.ReadTimeout, s.config.WriteTimeout, s.config.IdleTimeout)

	// Watch for cancellation off the hot path.
	go func() {
		<-ctx.Done()
		logger.Info("BSP shutdown signal received: %v", ctx.Err())
		s.initiateShutdown()
	}()

	if s.config.MetricsLogInterval > 0 {
		go s.logMetrics(ctx)
	}

	for {
		// The accept pacing and the connection cap both gate here, before
		// Accept, so a storm of clients queues in the kernel instead of
		// churning goroutines.
		if s.acceptLimiter != nil {
			if err := s.acceptLimiter.Wait(s.shutdownCtx); err != nil {
				return s.gracefulShutdown()
			}
		}

		if s.connSemaphore != nil {
			select {
			case s.connSemaphore <- struct{}{}:
			case <-s.shutdown:
				return s.gracefulShutdown()
			}
		}

		tcpConn, err := s.listener.Accept()
		if err != nil {
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}

			select {
			case <-s.shutdown:
				// Expected: the listener was closed under us.
				return s.gracefulShutdown()
			default:
				logger.Debug("Error accepting BSP connection: %v", err)
				continue
			}
		}

		s.activeConns.Add(1)
		s.connCount.Add(1)

		connAddr := tcpConn.RemoteAddr().String()
		s.activeConnections.Store(connAddr, tcpConn)

		s.metrics.RecordConnectionAccepted()
		currentConns := s.connCount.Load()
		s.metrics.SetActiveConnections(currentConns)

		logger.Debug("BSP connection accepted from %s (active: %d)", connAddr, currentConns)

		conn := NewBSPConnection(s, tcpConn)
		go func(addr string, tcp net.Conn) {
			defer func() {
				s.activeConnections.Delete(addr)

				s.activeConns.Done()
				s.connCount.Add(-1)
				if s.connSemaphore != nil {
					<-s.connSemaphore
				}

				s.metrics.RecordConnectionClosed()
				currentConns := s.connCount.Load()
				s.metrics.SetActiveConnections(currentConns)

				logger.Debug("BSP connection closed from %s (active: %d)", addr, currentConns)
			}()

			conn.Serve(s.shutdownCtx)
		}(connAddr, tcpConn)
	}
}

// initiateShutdown begins graceful shutdown exactly once: stop the accept
// loop, close the listener, cancel every in-flight call.
func (s *BSPAdapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("BSP shutdown initiated")

		close(s.shutdown)

		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				logger.Debug("Error closing BSP listener: %v", err)
			}
		}

		s.cancelRequests()
		logger.Debug("BSP request cancellation signalled to in-flight calls")
	})
}

// gracefulShutdown waits for active connections to finish, then
// force-closes the stragglers after ShutdownTimeout.
func (s *BSPAdapter) gracefulShutdown() error {
	activeCount := s.connCount.Load()
	logger.Info("BSP graceful shutdown: waiting for %d active connection(s) (timeout: %v)",
		activeCount, s.config.ShutdownTimeout)

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("BSP graceful shutdown complete: all connections closed")
		return nil

	case <-time.After(s.config.ShutdownTimeout):
		remaining := s.connCount.Load()
		logger.Warn("BSP shutdown timeout exceeded: %d connection(s) still active after %v, forcing closure",
			remaining, s.config.ShutdownTimeout)

		s.forceCloseConnections()

		return fmt.Errorf("BSP shutdown timeout: %d connections force-closed", remaining)
	}
}

// forceCloseConnections tears down every tracked TCP connection. Run after
// the graceful window: the contexts are already cancelled, so closing the
// sockets just fails any blocked reads and writes immediately.
func (s *BSPAdapter) forceCloseConnections() {
	logger.Info("Force-closing active BSP connections")

	closedCount := 0
	s.activeConnections.Range(func(key, value any) bool {
		addr := key.(string)
		conn := value.(net.Conn)

		if err := conn.Close(); err != nil {
			logger.Debug("Error force-closing connection to %s: %v", addr, err)
		} else {
			closedCount++
			logger.Debug("Force-closed connection to %s", addr)
		}
		return true
	})

	if closedCount > 0 {
		logger.Info("Force-closed %d connection(s)", closedCount)
	}
}

// Stop initiates graceful shutdown and waits for completion.
//
// Safe to call multiple times and concurrently with Serve. The context
// bounds the wait; when it expires Stop returns its error with
// connections still draining in the background.
func (s *BSPAdapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	if ctx == nil {
		return s.gracefulShutdown()
	}

	activeCount := s.connCount.Load()
	logger.Info("BSP graceful shutdown: waiting for %d active connection(s) (context deadline)",
		activeCount)

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("BSP graceful shutdown complete: all connections closed")
		return nil

	case <-ctx.Done():
		remaining := s.connCount.Load()
		logger.Warn("BSP shutdown context expired: %d connection(s) still active: %v",
			remaining, ctx.Err())
		return ctx.Err()
	}
}

// logMetrics logs the connection count at the configured interval until
// the context ends.
func (s *BSPAdapter) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(s.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info("BSP metrics: active_connections=%d", s.connCount.Load())
		}
	}
}

// GetActiveConnections returns the live connection count. Used by tests
// and monitoring.
func (s *BSPAdapter) GetActiveConnections() int32 {
	return s.connCount.Load()
}

// Addr returns the bound listener address, nil before Serve binds one.
func (s *BSPAdapter) Addr() net.Addr {
	if addr, ok := s.boundAddr.Load().(net.Addr); ok {
		return addr
	}
	return nil
}

// Port returns the actual bound port once serving, else the configured
// port. The distinction matters for ephemeral ports.
func (s *BSPAdapter) Port() int {
	if addr, ok := s.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return s.config.Port
}

// Protocol returns "BSP".
func (s *BSPAdapter) Protocol() string {
	return "BSP"
}
