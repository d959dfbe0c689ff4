package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/blobnode/pkg/adapter/bsp"
	"github.com/marmos91/blobnode/pkg/adapter/rest"
	"github.com/spf13/viper"
)

// Config represents the complete blobnode configuration.
//
// This structure captures all configurable aspects of the node including:
//   - Logging configuration
//   - Node identity
//   - Server-wide settings
//   - Storage pipeline settings and store selection (store-specific)
//   - Protocol adapter configurations
//   - Metrics exposure
//
// Configuration sources (in order of precedence):
//  1. Environment variables (BLOBNODE_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values (lowest priority)
//
// Store Configuration Pattern:
// Each store backend defines its own option set. The Storage section
// contains type-specific subsections (e.g., storage.filesystem,
// storage.memory) and only the section matching the selected type is used.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Node identifies this node in health reports and logs
	Node NodeConfig `mapstructure:"node"`

	// Server contains server-wide settings
	Server ServerConfig `mapstructure:"server"`

	// Storage configures the storage pipeline and the file store backend
	Storage StorageConfig `mapstructure:"storage"`

	// Adapters contains protocol adapter configurations
	Adapters AdaptersConfig `mapstructure:"adapters"`

	// Metrics controls Prometheus metrics exposure
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// NodeConfig identifies this node.
type NodeConfig struct {
	// ID is the node identifier reported by the health probe.
	// Defaults to the hostname.
	ID string `mapstructure:"id" validate:"required"`

	// Name is a human-friendly label used in logs. Defaults to ID.
	Name string `mapstructure:"name"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`
}

// StorageConfig configures the storage pipeline and the file store backend.
//
// The Type field determines which store implementation is used.
// Only the corresponding type-specific option section is consulted.
type StorageConfig struct {
	// Type specifies which file store backend to use
	// Valid values: filesystem, memory
	Type string `mapstructure:"type" validate:"required,oneof=filesystem memory"`

	// BasePath is the storage root; every object the node persists lives
	// under it
	BasePath string `mapstructure:"base_path" validate:"required"`

	// TempDir is the name of the in-flight upload directory. It lives
	// directly under BasePath so that commits are same-volume renames.
	TempDir string `mapstructure:"temp_dir" validate:"required"`

	// ShardSymbols is the number of hex characters per shard directory
	ShardSymbols int `mapstructure:"shard_symbols" validate:"required,min=1,max=16"`

	// ShardLevels is the number of nested shard directories. 0 places
	// every object directly under BasePath.
	ShardLevels int `mapstructure:"shard_levels" validate:"min=0,max=16"`

	// ChunkSize is the download streaming unit in bytes
	ChunkSize int `mapstructure:"chunk_size" validate:"required,gt=0"`

	// MaxConcurrentUploads caps simultaneous uploads node-wide
	MaxConcurrentUploads int64 `mapstructure:"max_concurrent_uploads" validate:"required,gt=0"`

	// MaxConcurrentDownloads caps simultaneous downloads node-wide.
	// Independent of the upload limit: saturating one never blocks the other.
	MaxConcurrentDownloads int64 `mapstructure:"max_concurrent_downloads" validate:"required,gt=0"`

	// Filesystem contains filesystem-specific options
	// Only used when Type = "filesystem"
	Filesystem map[string]any `mapstructure:"filesystem"`

	// Memory contains memory-specific options
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory"`
}

// AdaptersConfig contains all protocol adapter configurations.
type AdaptersConfig struct {
	// BSP is the node's native streaming RPC protocol.
	// Uses the bsp.BSPConfig type directly to avoid duplication.
	BSP bsp.BSPConfig `mapstructure:"bsp"`

	// REST is the optional HTTP translation gateway for test harnesses.
	// Uses the rest.RESTConfig type directly to avoid duplication.
	REST rest.RESTConfig `mapstructure:"rest"`
}

// MetricsConfig controls Prometheus metrics exposure.
type MetricsConfig struct {
	// Enabled turns the metrics registry and HTTP server on
	Enabled bool `mapstructure:"enabled"`

	// Port is the metrics HTTP server port
	Port int `mapstructure:"port" validate:"min=0,max=65535"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (BLOBNODE_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Configure viper
	setupViper(v, configPath)

	// Read configuration file if it exists
	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	// Unmarshal into config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for any missing values
	ApplyDefaults(&cfg)

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Set up environment variable support
	// Environment variables use BLOBNODE_ prefix and underscores
	// Example: BLOBNODE_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("BLOBNODE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Configure config file search
	if configPath != "" {
		// Use explicitly specified config file
		v.SetConfigFile(configPath)
	} else {
		// Use default location: $XDG_CONFIG_HOME/blobnode/config.{yaml,toml}
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml") // Primary format
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		// Check if error is "config file not found"
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is acceptable - use defaults
			return nil
		}
		// An explicitly named file that is missing is a problem: the
		// operator asked for it
		if configPath != "" {
			if _, statErr := os.Stat(configPath); os.IsNotExist(statErr) {
				return fmt.Errorf("config file %q not found", configPath)
			}
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	// Check XDG_CONFIG_HOME
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "blobnode")
	}

	// Fall back to ~/.config
	home, err := os.UserHomeDir()
	if err != nil {
		// If we can't get home dir, use current directory as last resort
		return "."
	}

	return filepath.Join(home, ".config", "blobnode")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
