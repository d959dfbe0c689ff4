package config

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marmos91/blobnode/pkg/store/file/fs"
	"github.com/marmos91/blobnode/pkg/store/file/memory"
)

func TestCreateFileStore_Filesystem(t *testing.T) {
	cfg := &StorageConfig{
		Type:     "filesystem",
		BasePath: filepath.Join(t.TempDir(), "objects"),
	}

	store, err := CreateFileStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create filesystem store: %v", err)
	}

	fsStore, ok := store.(*fs.FSStore)
	if !ok {
		t.Fatalf("Expected *fs.FSStore, got %T", store)
	}
	if fsStore.BasePath() != cfg.BasePath {
		t.Errorf("Expected store rooted at %q, got %q", cfg.BasePath, fsStore.BasePath())
	}
}

func TestCreateFileStore_FilesystemRootOption(t *testing.T) {
	root := t.TempDir()
	cfg := &StorageConfig{
		Type:       "filesystem",
		BasePath:   filepath.Join(root, "objects"),
		Filesystem: map[string]any{"root": root},
	}

	store, err := CreateFileStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create filesystem store: %v", err)
	}

	if got := store.(*fs.FSStore).BasePath(); got != root {
		t.Errorf("Expected root option %q to win, got %q", root, got)
	}
}

func TestCreateFileStore_Memory(t *testing.T) {
	cfg := &StorageConfig{
		Type:   "memory",
		Memory: map[string]any{"max_size_bytes": uint64(4096)},
	}

	store, err := CreateFileStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create memory store: %v", err)
	}

	if _, ok := store.(*memory.MemoryStore); !ok {
		t.Fatalf("Expected *memory.MemoryStore, got %T", store)
	}
}

func TestCreateFileStore_MemoryBadOptions(t *testing.T) {
	cfg := &StorageConfig{
		Type:   "memory",
		Memory: map[string]any{"max_size_bytes": "lots"},
	}

	if _, err := CreateFileStore(context.Background(), cfg); err == nil {
		t.Fatal("Expected decode error for non-numeric max_size_bytes")
	}
}

func TestCreateFileStore_UnknownType(t *testing.T) {
	cfg := &StorageConfig{Type: "tape"}

	_, err := CreateFileStore(context.Background(), cfg)
	if err == nil {
		t.Fatal("Expected error for unknown store type")
	}
	if !strings.Contains(err.Error(), "tape") {
		t.Errorf("Expected error to name the bad type, got: %v", err)
	}
}

func TestCreateAdapters_Enabled(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Adapters.REST.Enabled = true

	adapters, err := CreateAdapters(cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create adapters: %v", err)
	}
	if len(adapters) != 2 {
		t.Fatalf("Expected 2 adapters, got %d", len(adapters))
	}
	if adapters[0].Protocol() != "BSP" {
		t.Errorf("Expected first adapter BSP, got %q", adapters[0].Protocol())
	}
	if adapters[1].Protocol() != "REST" {
		t.Errorf("Expected second adapter REST, got %q", adapters[1].Protocol())
	}
}

func TestCreateAdapters_NoneEnabled(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Adapters.BSP.Enabled = false

	if _, err := CreateAdapters(cfg, nil); err == nil {
		t.Fatal("Expected error when no adapters are enabled")
	}
}
