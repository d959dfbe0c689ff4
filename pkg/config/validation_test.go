package config

import (
	"strings"
	"testing"
)

// validConfig returns a configuration that passes validation, for tests to
// break one field at a time.
func validConfig() *Config {
	cfg := GetDefaultConfig()
	cfg.Storage.BasePath = "/tmp/blobnode-test"
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("Expected valid config to pass, got: %v", err)
	}
}

func TestValidate_LogLevel(t *testing.T) {
	tests := []struct {
		level string
		valid bool
	}{
		{"DEBUG", true},
		{"INFO", true},
		{"WARN", true},
		{"ERROR", true},
		{"debug", true},
		{"TRACE", false},
		{"", false},
	}

	for _, tt := range tests {
		cfg := validConfig()
		cfg.Logging.Level = tt.level

		err := Validate(cfg)
		if tt.valid && err != nil {
			t.Errorf("Level %q: expected valid, got error: %v", tt.level, err)
		}
		if !tt.valid && err == nil {
			t.Errorf("Level %q: expected validation error, got none", tt.level)
		}
	}
}

func TestValidate_StorageType(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Type = "s3"

	if err := Validate(cfg); err == nil {
		t.Error("Expected validation error for unsupported store type")
	}
}

func TestValidate_NoAdapterEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.Adapters.BSP.Enabled = false
	cfg.Adapters.REST.Enabled = false

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error when no adapter is enabled")
	}
	if !strings.Contains(err.Error(), "at least one adapter") {
		t.Errorf("Unexpected error message: %v", err)
	}
}

func TestValidate_AdapterPortCollision(t *testing.T) {
	cfg := validConfig()
	cfg.Adapters.REST.Enabled = true
	cfg.Adapters.REST.Port = cfg.Adapters.BSP.Port

	if err := Validate(cfg); err == nil {
		t.Error("Expected validation error for colliding adapter ports")
	}

	// Ephemeral ports never collide
	cfg = validConfig()
	cfg.Adapters.REST.Enabled = true
	cfg.Adapters.BSP.Port = 0
	cfg.Adapters.REST.Port = 0
	if err := Validate(cfg); err != nil {
		t.Errorf("Expected ephemeral ports to pass, got: %v", err)
	}
}

func TestValidate_TempDirMustBePlainName(t *testing.T) {
	for _, dir := range []string{"a/b", `a\b`, "/abs"} {
		cfg := validConfig()
		cfg.Storage.TempDir = dir

		if err := Validate(cfg); err == nil {
			t.Errorf("Temp dir %q: expected validation error, got none", dir)
		}
	}
}

func TestValidate_ShardBudget(t *testing.T) {
	// 8 symbols x 8 levels = 64 consumes the whole digest: allowed
	cfg := validConfig()
	cfg.Storage.ShardSymbols = 8
	cfg.Storage.ShardLevels = 8
	if err := Validate(cfg); err != nil {
		t.Errorf("Expected 8x8 sharding to pass, got: %v", err)
	}

	// 16 symbols x 16 levels = 256 overruns it
	cfg = validConfig()
	cfg.Storage.ShardSymbols = 16
	cfg.Storage.ShardLevels = 16
	if err := Validate(cfg); err == nil {
		t.Error("Expected validation error for shard budget overrun")
	}
}

func TestValidate_ChunkSize(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.ChunkSize = -1
	if err := Validate(cfg); err == nil {
		t.Error("Expected validation error for negative chunk size")
	}

	cfg = validConfig()
	cfg.Storage.ChunkSize = 2 << 20 // larger than a frame payload
	if err := Validate(cfg); err == nil {
		t.Error("Expected validation error for chunk size exceeding frame cap")
	}
}

func TestValidate_ConcurrencyLimits(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.MaxConcurrentUploads = 0
	if err := Validate(cfg); err == nil {
		t.Error("Expected validation error for zero upload limit")
	}

	cfg = validConfig()
	cfg.Storage.MaxConcurrentDownloads = -2
	if err := Validate(cfg); err == nil {
		t.Error("Expected validation error for negative download limit")
	}
}
