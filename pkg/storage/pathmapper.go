package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// MapperConfig carries the path-derivation settings of a node.
type MapperConfig struct {
	// BasePath is the storage root. Everything the node persists lives
	// under it.
	BasePath string

	// TempDirName is the directory under BasePath receiving in-flight
	// uploads. Same volume as BasePath so the commit rename is atomic.
	TempDirName string

	// ShardSymbolCount is the number of hex characters per shard segment.
	ShardSymbolCount int

	// ShardLevelCount is the number of nested shard directories.
	ShardLevelCount int
}

// PathMapper derives every path the node uses from an object id.
//
// The canonical layout is BasePath/<shards...>/<id>, where the shard
// segments are consecutive slices of hex(SHA-256(id)). The mapping is a
// pure function of the id and the shard configuration, so any node with
// the same settings resolves the same id to the same file.
type PathMapper struct {
	basePath string
	tempDir  string
	symbols  int
	levels   int
}

// NewPathMapper validates cfg and builds a mapper. BasePath is made
// absolute once here; all derived paths inherit it.
func NewPathMapper(cfg MapperConfig) (*PathMapper, error) {
	if strings.TrimSpace(cfg.BasePath) == "" {
		return nil, fmt.Errorf("base path is required")
	}
	if strings.TrimSpace(cfg.TempDirName) == "" {
		return nil, fmt.Errorf("temp directory name is required")
	}
	if strings.ContainsAny(cfg.TempDirName, `/\`) {
		return nil, fmt.Errorf("temp directory name %q must not contain separators", cfg.TempDirName)
	}
	if cfg.ShardSymbolCount < 1 {
		return nil, fmt.Errorf("shard symbol count must be at least 1, got %d", cfg.ShardSymbolCount)
	}
	if cfg.ShardLevelCount < 0 {
		return nil, fmt.Errorf("shard level count must not be negative, got %d", cfg.ShardLevelCount)
	}

	abs, err := filepath.Abs(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("resolve base path: %w", err)
	}

	return &PathMapper{
		basePath: abs,
		tempDir:  cfg.TempDirName,
		symbols:  cfg.ShardSymbolCount,
		levels:   cfg.ShardLevelCount,
	}, nil
}

// BasePath returns the absolute storage root.
func (m *PathMapper) BasePath() string {
	return m.basePath
}

// TempDirPath returns the absolute temp directory.
func (m *PathMapper) TempDirPath() string {
	return filepath.Join(m.basePath, m.tempDir)
}

// validateID rejects ids that cannot safely become a filename. The id is
// used verbatim as the leaf name, so separators and relative-path tokens
// would let a caller place files outside their shard or outside the
// storage root entirely.
func (m *PathMapper) validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return Errorf(CodeInvalidArgument, "object id is required")
	}
	if strings.ContainsRune(id, 0) {
		return Errorf(CodeInvalidArgument, "object id contains a NUL byte")
	}
	if strings.ContainsAny(id, `/\`) {
		return Errorf(CodeInvalidArgument, "object id %q contains path separators", id)
	}
	if id == "." || id == ".." {
		return Errorf(CodeInvalidArgument, "object id %q is a relative path token", id)
	}
	return nil
}

// shardSegments slices hex(SHA-256(id)) into the configured number of
// fixed-width segments. If the hex digest runs out before all levels are
// produced, generation stops early with fewer segments.
func (m *PathMapper) shardSegments(id string) []string {
	sum := sha256.Sum256([]byte(id))
	digest := hex.EncodeToString(sum[:])

	segments := make([]string, 0, m.levels)
	cursor := 0
	for level := 0; level < m.levels; level++ {
		if cursor+m.symbols > len(digest) {
			break
		}
		segments = append(segments, digest[cursor:cursor+m.symbols])
		cursor += m.symbols
	}
	return segments
}

// RelativePath derives the canonical path of id relative to the storage
// root: <shards...>/<id>.
func (m *PathMapper) RelativePath(id string) (string, error) {
	if err := m.validateID(id); err != nil {
		return "", err
	}

	parts := append(m.shardSegments(id), id)
	return filepath.Join(parts...), nil
}

// FinalPath derives the absolute canonical path of id. Stable across calls
// and processes for a fixed shard configuration.
func (m *PathMapper) FinalPath(id string) (string, error) {
	rel, err := m.RelativePath(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(m.basePath, rel), nil
}

// TempPath derives a fresh in-flight path for an upload of id. The
// nanosecond stamp keeps overlapping attempts for one id apart; the
// per-object lock makes true simultaneous calls for the same id
// impossible.
func (m *PathMapper) TempPath(id string) (string, error) {
	if err := m.validateID(id); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s_%d", id, time.Now().UTC().UnixNano())
	return filepath.Join(m.basePath, m.tempDir, name), nil
}

// LockKey returns the per-object lock key for id: the identity function.
// Writers must key their locks through it rather than using the id
// directly, so the keying scheme can change in one place.
func (m *PathMapper) LockKey(id string) string {
	return id
}

// VersionedName inserts _n before the extension of path's leaf name:
// photo.jpg becomes photo_1.jpg, a bare name gets a plain suffix.
func (m *PathMapper) VersionedName(path string, n int) string {
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(path, ext), n, ext)
}

// ResolveRelative anchors a caller-supplied relative path under the
// storage root. Callers use it to address a specific version, whose path
// is not derivable from the id alone. Absolute paths and paths escaping
// the root are rejected.
func (m *PathMapper) ResolveRelative(rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", Errorf(CodeInvalidArgument, "relative path is required")
	}
	if strings.ContainsRune(rel, 0) {
		return "", Errorf(CodeInvalidArgument, "relative path contains a NUL byte")
	}
	if filepath.IsAbs(rel) {
		return "", Errorf(CodeInvalidArgument, "path %q must be relative to the storage root", rel)
	}

	clean := filepath.Clean(rel)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", Errorf(CodeInvalidArgument, "path %q escapes the storage root", rel)
	}

	return filepath.Join(m.basePath, clean), nil
}
