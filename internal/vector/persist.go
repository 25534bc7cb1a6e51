package vector

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// indexMetadata is the gob sidecar persisted next to the graph file. The
// label map is stored here and reattached on load; the graph file itself
// carries only the HNSW structure.
type indexMetadata struct {
	LabelMap map[uint64]int
	NextKey  uint64
	Config   Config
}

// Save persists the index to disk under an exclusive file lock.
// Uses atomic save (temp file + rename). Only callers holding the global
// context should save; the worker enforces that rule.
func (x *Index) Save(path string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock index file: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}

	if err := x.graph.Export(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to export graph: %w", err)
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close index file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename index file: %w", err)
	}

	if err := x.saveMetadata(path + ".meta"); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}

	return nil
}

// saveMetadata writes the label map sidecar atomically.
func (x *Index) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}

	meta := indexMetadata{
		LabelMap: x.labelMap,
		NextKey:  x.nextKey,
		Config:   x.config,
	}

	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("encode index metadata: %w", err)
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close metadata file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// Load reads a previously saved index. The caller states the expected
// maximum element count via the receiver's config; a persisted index that
// exceeds it is rejected rather than silently truncated.
//
// On success the label map is reconstructed from the sidecar, so its
// length again equals the populated count.
func Load(path string, expected Config) (*Index, error) {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("failed to lock index file: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	meta, err := loadMetadata(path + ".meta")
	if err != nil {
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}

	if meta.Config.Dimensions != expected.Dimensions {
		return nil, fmt.Errorf("saved index dimension %d does not match expected %d",
			meta.Config.Dimensions, expected.Dimensions)
	}
	if len(meta.LabelMap) > expected.MaxElements {
		return nil, fmt.Errorf("saved index holds %d items, above expected maximum %d",
			len(meta.LabelMap), expected.MaxElements)
	}

	cfg := meta.Config
	cfg.MaxElements = expected.MaxElements
	if expected.EfSearch > 0 {
		cfg.EfSearch = expected.EfSearch
	}

	x, err := New(cfg)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index file: %w", err)
	}
	defer func() { _ = file.Close() }()

	// coder/hnsw Import requires an io.ByteReader
	if err := x.graph.Import(bufio.NewReader(file)); err != nil {
		return nil, fmt.Errorf("failed to import graph: %w", err)
	}

	x.labelMap = meta.LabelMap
	x.nextKey = meta.NextKey

	return x, nil
}

// loadMetadata reads the gob sidecar.
func loadMetadata(path string) (*indexMetadata, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open metadata file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var meta indexMetadata
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode index metadata: %w", err)
	}

	return &meta, nil
}

// Exists reports whether a saved index (graph + sidecar) is present.
func Exists(path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	if _, err := os.Stat(path + ".meta"); err != nil {
		return false
	}
	return true
}
