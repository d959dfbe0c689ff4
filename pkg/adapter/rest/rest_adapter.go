package rest

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/blobnode/internal/logger"
	"github.com/marmos91/blobnode/pkg/storage"
)

// RESTAdapter implements the adapter.Adapter interface over plain HTTP.
//
// It is a thin translation layer for test harnesses and ad-hoc tooling:
// every route decodes the request, hands it to the storage service, and
// encodes the outcome. The BSP adapter is the production surface; this one
// ships disabled by default.
type RESTAdapter struct {
	config RESTConfig

	// service is the shared storage pipeline every route runs against.
	service *storage.Service

	// boundAddr publishes the listener address once Serve has bound it.
	// Holds a net.Addr.
	boundAddr atomic.Value

	httpServer   *http.Server
	shutdownOnce sync.Once
}

// RESTConfig holds the REST gateway settings.
type RESTConfig struct {
	// Enabled controls whether the gateway is started at all. Off by
	// default.
	Enabled bool `mapstructure:"enabled"`

	// Port is the TCP port to listen on. 0 means ephemeral.
	Port int `mapstructure:"port" validate:"min=0,max=65535"`

	// ReadTimeout bounds reading an entire request, body included. Zero
	// leaves streaming uploads unbounded; header reads stay guarded
	// separately.
	ReadTimeout time.Duration `mapstructure:"read_timeout" validate:"min=0"`

	// WriteTimeout bounds writing an entire response. Zero leaves
	// streaming downloads unbounded.
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"min=0"`

	// ShutdownTimeout is how long graceful shutdown waits for in-flight
	// requests.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`
}

// readHeaderTimeout guards against clients that open a connection and
// never finish the request line. Body reads are governed by ReadTimeout.
const readHeaderTimeout = 10 * time.Second

func (c *RESTConfig) applyDefaults() {
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

func (c *RESTConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("invalid ReadTimeout %v: must be >= 0", c.ReadTimeout)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("invalid WriteTimeout %v: must be >= 0", c.WriteTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	return nil
}

// New creates a RESTAdapter with the given configuration.
//
// The adapter starts stopped: call SetService, then Serve. An invalid
// configuration panics, since it indicates a programming error, not an
// operational one.
func New(config RESTConfig) *RESTAdapter {
	config.applyDefaults()

	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid REST config: %v", err))
	}

	s := &RESTAdapter{config: config}

	s.httpServer = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// SetService injects the shared storage service. Called once by the server
// before Serve; no synchronization needed.
func (s *RESTAdapter) SetService(svc *storage.Service) {
	s.service = svc
	logger.Debug("REST storage service configured")
}

// Serve starts the gateway and blocks until the context is cancelled or an
// unrecoverable error occurs. Cancellation triggers graceful shutdown
// bounded by ShutdownTimeout.
func (s *RESTAdapter) Serve(ctx context.Context) error {
	if s.service == nil {
		return fmt.Errorf("REST adapter has no storage service: call SetService before Serve")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("create REST listener on port %d: %w", s.config.Port, err)
	}

	s.boundAddr.Store(listener.Addr())
	logger.Info("REST gateway listening on %s", listener.Addr())

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("REST gateway shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("REST gateway failed: %w", err)
	}
}

// Stop initiates graceful shutdown. Safe to call multiple times and
// concurrently with Serve; the context bounds the wait for in-flight
// requests.
func (s *RESTAdapter) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("REST gateway shutdown initiated")

		if err := s.httpServer.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("REST gateway shutdown: %w", err)
		} else {
			logger.Info("REST gateway stopped gracefully")
		}
	})
	return shutdownErr
}

// Addr returns the bound listener address, nil before Serve binds one.
func (s *RESTAdapter) Addr() net.Addr {
	if addr, ok := s.boundAddr.Load().(net.Addr); ok {
		return addr
	}
	return nil
}

// Port returns the actual bound port once serving, else the configured
// port.
func (s *RESTAdapter) Port() int {
	if addr, ok := s.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return s.config.Port
}

// Protocol returns "REST".
func (s *RESTAdapter) Protocol() string {
	return "REST"
}
