package config

import (
	"os"
	"strings"
	"time"

	"github.com/marmos91/blobnode/pkg/adapter/bsp"
	"github.com/marmos91/blobnode/pkg/adapter/rest"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Store-specific defaults are handled by store option decoding
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyNodeDefaults(&cfg.Node)
	applyServerDefaults(&cfg.Server)
	applyStorageDefaults(&cfg.Storage)
	applyAdaptersDefaults(&cfg.Adapters)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyNodeDefaults sets the node identity defaults.
func applyNodeDefaults(cfg *NodeConfig) {
	if cfg.ID == "" {
		if hostname, err := os.Hostname(); err == nil && hostname != "" {
			cfg.ID = hostname
		} else {
			cfg.ID = "blobnode"
		}
	}
	if cfg.Name == "" {
		cfg.Name = cfg.ID
	}
}

// applyServerDefaults sets server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyStorageDefaults sets storage pipeline and store defaults.
func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Type == "" {
		cfg.Type = "filesystem"
	}
	if cfg.BasePath == "" {
		cfg.BasePath = "/var/lib/blobnode/objects"
	}
	if cfg.TempDir == "" {
		cfg.TempDir = "_temp"
	}
	if cfg.ShardSymbols == 0 {
		cfg.ShardSymbols = 2
	}
	if cfg.ShardLevels == 0 {
		cfg.ShardLevels = 2
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 65536 // 64KB
	}
	if cfg.MaxConcurrentUploads == 0 {
		cfg.MaxConcurrentUploads = 64
	}
	if cfg.MaxConcurrentDownloads == 0 {
		cfg.MaxConcurrentDownloads = 64
	}

	// Initialize option maps if nil
	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}

	// Apply defaults for all store types (for config file generation)
	if _, ok := cfg.Memory["max_size_bytes"]; !ok {
		cfg.Memory["max_size_bytes"] = uint64(1073741824) // 1GB
	}
}

// applyAdaptersDefaults sets adapter defaults.
func applyAdaptersDefaults(cfg *AdaptersConfig) {
	// Enable the BSP adapter by default if it looks unconfigured (Port 0,
	// meaning no explicit configuration was provided). This ensures that a
	// freshly loaded config with no config file has at least one adapter
	// enabled and passes validation. Users can explicitly set
	// enabled: false to disable it.
	if !cfg.BSP.Enabled && cfg.BSP.Port == 0 {
		cfg.BSP.Enabled = true
	}

	applyBSPDefaults(&cfg.BSP)
	applyRESTDefaults(&cfg.REST)
}

// applyBSPDefaults sets BSP adapter defaults.
//
// The adapter applies the same defaults itself on construction; they are
// duplicated here so that -print-config shows the effective values.
func applyBSPDefaults(cfg *bsp.BSPConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9315
	}

	// MaxConnections defaults to 0 (unlimited)
	// AcceptRate defaults to 0 (no accept pacing)

	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 5 * time.Minute
	}

	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}

	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	if cfg.MetricsLogInterval == 0 {
		cfg.MetricsLogInterval = 5 * time.Minute
	}

	if cfg.AcceptRate > 0 && cfg.AcceptBurst == 0 {
		cfg.AcceptBurst = cfg.AcceptRate
	}
}

// applyRESTDefaults sets REST gateway defaults. Enabled stays false unless
// set explicitly: the gateway is a test harness surface, not a production
// protocol.
func applyRESTDefaults(cfg *rest.RESTConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9316
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false

	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Storage: StorageConfig{
			Filesystem: make(map[string]any),
			Memory:     make(map[string]any),
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
