package config

import (
	"github.com/marmos91/blobnode/pkg/metrics"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// Storage is the metrics collector for the storage pipeline
	// (never nil, no-op if disabled)
	Storage metrics.StorageMetrics

	// BSP is the metrics collector for the BSP adapter
	// (never nil, no-op if disabled)
	BSP metrics.BSPMetrics
}

// InitializeMetrics creates and initializes all metrics components based on
// configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed metrics instances for all components
//
// If metrics are disabled:
//   - Returns nil server
//   - Returns no-op metrics implementations (zero overhead)
//
// Parameters:
//   - cfg: The complete blobnode configuration
//
// Returns:
//   - MetricsResult containing all metrics components
func InitializeMetrics(cfg *Config) *MetricsResult {
	if cfg.Metrics.Enabled {
		// Initialize global Prometheus registry. The collectors below
		// bind to it; without it they degrade to no-ops.
		metrics.InitRegistry()
	}

	result := &MetricsResult{
		Storage: metrics.NewStorageMetrics(),
		BSP:     metrics.NewBSPMetrics(),
	}

	if cfg.Metrics.Enabled {
		result.Server = metrics.NewServer(metrics.ServerConfig{
			Port: cfg.Metrics.Port,
		})
	}

	return result
}
