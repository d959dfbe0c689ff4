package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/blobnode/internal/protocol/bsp"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// hexDigestLength is the length of a lowercase hex SHA-256 digest, the
// string the shard segments are sliced from.
const hexDigestLength = 64

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	// Run struct tag validation
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	// Custom validation rules that can't be expressed in tags
	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	// Validate at least one adapter is enabled
	if !cfg.Adapters.BSP.Enabled && !cfg.Adapters.REST.Enabled {
		return fmt.Errorf("adapters: at least one adapter must be enabled")
	}

	// Enabled adapters must not collide on a port. Port 0 is ephemeral and
	// never collides.
	if cfg.Adapters.BSP.Enabled && cfg.Adapters.REST.Enabled &&
		cfg.Adapters.BSP.Port != 0 && cfg.Adapters.BSP.Port == cfg.Adapters.REST.Port {
		return fmt.Errorf("adapters: bsp and rest cannot share port %d", cfg.Adapters.BSP.Port)
	}

	// The temp directory is a single path component under base_path
	if strings.ContainsAny(cfg.Storage.TempDir, `/\`) {
		return fmt.Errorf("storage: temp_dir %q must be a plain directory name, not a path", cfg.Storage.TempDir)
	}

	// Shard segments are sliced from a 64-character hex digest. Asking for
	// more characters than the digest has silently produces fewer levels;
	// refuse the configuration instead of shipping a surprise.
	if cfg.Storage.ShardSymbols*cfg.Storage.ShardLevels > hexDigestLength {
		return fmt.Errorf("storage: shard_symbols (%d) x shard_levels (%d) exceeds the %d hex digits of a SHA-256 digest",
			cfg.Storage.ShardSymbols, cfg.Storage.ShardLevels, hexDigestLength)
	}

	// Download chunks travel one per BSP frame
	if cfg.Storage.ChunkSize > bsp.MaxFrameSize {
		return fmt.Errorf("storage: chunk_size %d exceeds the maximum frame payload of %d bytes",
			cfg.Storage.ChunkSize, bsp.MaxFrameSize)
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		// Return the first validation error with context
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
