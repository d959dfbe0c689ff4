package config

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/blobnode/pkg/store/file"
	filefs "github.com/marmos91/blobnode/pkg/store/file/fs"
	filememory "github.com/marmos91/blobnode/pkg/store/file/memory"
)

// CreateFileStore creates a file store based on configuration.
//
// This factory function uses the Type field to determine which store
// implementation to create, then decodes the type-specific options from the
// corresponding map and passes them to the store's constructor.
//
// Supported types:
//   - "filesystem": Uses pkg/store/file/fs (local disk storage)
//   - "memory": Uses pkg/store/file/memory (ephemeral, for tests and dev)
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Storage configuration
//
// Returns:
//   - file.Store: Initialized file store
//   - error: Configuration or initialization error
func CreateFileStore(ctx context.Context, cfg *StorageConfig) (file.Store, error) {
	switch cfg.Type {
	case "filesystem":
		return createFilesystemStore(ctx, cfg)
	case "memory":
		return createMemoryStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown file store type: %q (supported: filesystem, memory)", cfg.Type)
	}
}

// createFilesystemStore creates a disk-backed file store rooted at the
// storage base path.
func createFilesystemStore(ctx context.Context, cfg *StorageConfig) (file.Store, error) {
	// Define the option struct for the filesystem store
	type filesystemStoreOptions struct {
		// Root overrides the containment root. Defaults to base_path;
		// set it wider only when the temp directory must live elsewhere.
		Root string `mapstructure:"root"`
	}

	// Decode the options into the struct
	var opts filesystemStoreOptions
	if err := mapstructure.Decode(cfg.Filesystem, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode filesystem store options: %w", err)
	}

	root := opts.Root
	if root == "" {
		root = cfg.BasePath
	}

	store, err := filefs.New(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem store: %w", err)
	}

	return store, nil
}

// createMemoryStore creates an in-memory file store.
func createMemoryStore(ctx context.Context, cfg *StorageConfig) (file.Store, error) {
	// Define the option struct for the memory store
	type memoryStoreOptions struct {
		MaxSizeBytes uint64 `mapstructure:"max_size_bytes"`
	}

	// Decode the options into the struct
	var opts memoryStoreOptions
	if err := mapstructure.Decode(cfg.Memory, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode memory store options: %w", err)
	}

	store, err := filememory.New(ctx, opts.MaxSizeBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory store: %w", err)
	}

	return store, nil
}
