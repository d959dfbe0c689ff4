package config

import (
	"fmt"

	"github.com/marmos91/blobnode/pkg/adapter"
	"github.com/marmos91/blobnode/pkg/adapter/bsp"
	"github.com/marmos91/blobnode/pkg/adapter/rest"
	"github.com/marmos91/blobnode/pkg/metrics"
)

// CreateAdapters creates all enabled protocol adapters from the configuration.
//
// This factory function centralizes adapter creation logic and makes it easy to:
//   - Add new protocol adapters
//   - Configure metrics for all adapters
//   - Handle adapter-specific initialization
//
// Parameters:
//   - cfg: The complete blobnode configuration
//   - bspMetrics: Optional BSP metrics collector (nil = no metrics)
//
// Returns:
//   - []adapter.Adapter: List of enabled adapters ready to be added to the server
//   - error: Any error during adapter creation
func CreateAdapters(cfg *Config, bspMetrics metrics.BSPMetrics) ([]adapter.Adapter, error) {
	var adapters []adapter.Adapter

	// Create the BSP adapter if enabled
	if cfg.Adapters.BSP.Enabled {
		adapters = append(adapters, bsp.New(cfg.Adapters.BSP, bspMetrics))
	}

	// Create the REST gateway if enabled
	if cfg.Adapters.REST.Enabled {
		adapters = append(adapters, rest.New(cfg.Adapters.REST))
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters enabled in configuration")
	}

	return adapters, nil
}
