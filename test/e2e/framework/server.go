// Package framework boots a complete blobnode on ephemeral ports for
// end-to-end tests: real config, real file store, real storage service, and
// the real adapters, driven through the public client.
package framework

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/marmos91/blobnode/internal/logger"
	"github.com/marmos91/blobnode/pkg/adapter"
	"github.com/marmos91/blobnode/pkg/adapter/bsp"
	"github.com/marmos91/blobnode/pkg/adapter/rest"
	"github.com/marmos91/blobnode/pkg/client"
	"github.com/marmos91/blobnode/pkg/config"
	"github.com/marmos91/blobnode/pkg/metrics"
	"github.com/marmos91/blobnode/pkg/server"
	"github.com/marmos91/blobnode/pkg/storage"
)

// NodeConfig selects what kind of node to boot. The zero value is a
// filesystem-backed node with a BSP adapter only.
type NodeConfig struct {
	// StoreType is "filesystem" or "memory". Default: filesystem.
	StoreType string

	// BasePath roots a filesystem store. Default: a per-test temp dir.
	BasePath string

	// ChunkSize for download streaming. Default: 8KB, small enough that
	// modest payloads exercise multi-chunk streaming.
	ChunkSize int

	// UploadSlots and DownloadSlots bound concurrency. Default: 8 each.
	UploadSlots   int64
	DownloadSlots int64

	// MemoryCapacity bounds a memory store; 0 is unlimited.
	MemoryCapacity uint64

	// EnableREST also starts the REST gateway on an ephemeral port.
	EnableREST bool
}

// Node is a running blobnode under test.
type Node struct {
	t testing.TB

	// Service is the shared storage pipeline, exposed for assertions on
	// derived paths.
	Service *storage.Service

	bspAdapter  *bsp.BSPAdapter
	restAdapter *rest.RESTAdapter

	cancel  context.CancelFunc
	done    chan error
	stopped bool
}

// StartNode boots a full node and registers its shutdown with t.Cleanup.
func StartNode(t testing.TB, nc NodeConfig) *Node {
	t.Helper()

	logger.SetLevel("ERROR")

	if nc.StoreType == "" {
		nc.StoreType = "filesystem"
	}
	if nc.BasePath == "" {
		nc.BasePath = t.TempDir()
	}
	if nc.ChunkSize == 0 {
		nc.ChunkSize = 8 * 1024
	}
	if nc.UploadSlots == 0 {
		nc.UploadSlots = 8
	}
	if nc.DownloadSlots == 0 {
		nc.DownloadSlots = 8
	}

	storageCfg := config.StorageConfig{
		Type:                   nc.StoreType,
		BasePath:               nc.BasePath,
		TempDir:                "_temp",
		ShardSymbols:           2,
		ShardLevels:            2,
		ChunkSize:              nc.ChunkSize,
		MaxConcurrentUploads:   nc.UploadSlots,
		MaxConcurrentDownloads: nc.DownloadSlots,
		Memory:                 map[string]any{"max_size_bytes": nc.MemoryCapacity},
	}

	ctx, cancel := context.WithCancel(context.Background())

	store, err := config.CreateFileStore(ctx, &storageCfg)
	if err != nil {
		cancel()
		t.Fatalf("create file store: %v", err)
	}

	mapper, err := storage.NewPathMapper(storage.MapperConfig{
		BasePath:         storageCfg.BasePath,
		TempDirName:      storageCfg.TempDir,
		ShardSymbolCount: storageCfg.ShardSymbols,
		ShardLevelCount:  storageCfg.ShardLevels,
	})
	if err != nil {
		cancel()
		t.Fatalf("create path mapper: %v", err)
	}

	svc, err := storage.NewService(ctx, storage.Config{
		NodeID:        "e2e-node",
		UploadSlots:   storageCfg.MaxConcurrentUploads,
		DownloadSlots: storageCfg.MaxConcurrentDownloads,
		ChunkSize:     storageCfg.ChunkSize,
	}, mapper, store, metrics.NewStorageMetrics())
	if err != nil {
		cancel()
		t.Fatalf("create storage service: %v", err)
	}

	n := &Node{
		t:       t,
		Service: svc,
		cancel:  cancel,
		done:    make(chan error, 1),
	}

	n.bspAdapter = bsp.New(bsp.BSPConfig{
		Enabled:         true,
		Port:            0,
		ShutdownTimeout: 5 * time.Second,
	}, nil)

	srv := server.New(svc, 5*time.Second)
	if err := srv.AddAdapter(n.bspAdapter); err != nil {
		cancel()
		t.Fatalf("register BSP adapter: %v", err)
	}

	if nc.EnableREST {
		n.restAdapter = rest.New(rest.RESTConfig{
			Enabled:         true,
			Port:            0,
			ShutdownTimeout: 5 * time.Second,
		})
		if err := srv.AddAdapter(n.restAdapter); err != nil {
			cancel()
			t.Fatalf("register REST adapter: %v", err)
		}
	}

	go func() { n.done <- srv.Serve(ctx) }()

	waitForAddr(t, n.bspAdapter)
	if n.restAdapter != nil {
		waitForAddr(t, n.restAdapter)
	}

	t.Cleanup(n.Stop)

	return n
}

// waitForAddr polls until the adapter has bound its listener.
func waitForAddr(t testing.TB, a adapter.Adapter) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for a.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatalf("%s adapter did not bind within 5s", a.Protocol())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Addr returns the BSP listener address, dialable by the client.
func (n *Node) Addr() string {
	return n.bspAdapter.Addr().String()
}

// RESTBase returns the REST gateway base URL. Fails the test if the node
// was started without REST.
func (n *Node) RESTBase() string {
	if n.restAdapter == nil {
		n.t.Fatal("node started without REST gateway")
	}
	return fmt.Sprintf("http://%s", n.restAdapter.Addr().String())
}

// Client dials the node's BSP port and ties the connection to the test.
func (n *Node) Client() *client.Client {
	n.t.Helper()

	c, err := client.Dial(n.Addr())
	if err != nil {
		n.t.Fatalf("dial node: %v", err)
	}
	n.t.Cleanup(func() { _ = c.Close() })
	return c
}

// Stop shuts the node down and waits for Serve to return. Idempotent.
func (n *Node) Stop() {
	if n.stopped {
		return
	}
	n.stopped = true

	n.cancel()
	select {
	case err := <-n.done:
		if err != nil && err != context.Canceled {
			n.t.Errorf("node shutdown: %v", err)
		}
	case <-time.After(10 * time.Second):
		n.t.Error("node did not shut down within 10s")
	}
}
