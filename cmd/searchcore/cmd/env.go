package cmd

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/quickcart/searchcore/internal/catalog"
	"github.com/quickcart/searchcore/internal/catalogcache"
	"github.com/quickcart/searchcore/internal/config"
	"github.com/quickcart/searchcore/internal/coordinator"
	"github.com/quickcart/searchcore/internal/vector"
	"github.com/quickcart/searchcore/internal/worker"
)

// metricsDBFilename is the telemetry database inside the data dir.
const metricsDBFilename = "metrics.db"

// snapshotDirname is the Badger directory for the catalog snapshot,
// inside the data dir.
const snapshotDirname = "catalog"

// environment bundles the components every command starts from:
// loaded config, the catalog fetcher, and the snapshot store.
type environment struct {
	cfg     *config.Config
	fetcher *catalog.HTTPFetcher
	store   *catalogcache.Store
}

// openEnvironment loads config from the working directory and opens the
// snapshot store. Callers must Close the returned environment.
func openEnvironment() (*environment, error) {
	cfg, err := config.Load(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	fetcher, err := catalog.NewHTTPFetcher(catalog.HTTPFetcherConfig{
		BaseURL: cfg.Catalog.BaseURL,
		Timeout: cfg.Catalog.FetchTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog fetcher: %w", err)
	}

	store, err := catalogcache.Open(catalogcache.Config{
		Dir:             filepath.Join(cfg.Paths.DataDir, snapshotDirname),
		FreshnessWindow: cfg.Cache.FreshnessWindow,
		ChunkSize:       cfg.Cache.ChunkSize,
	}, fetcher, slog.Default())
	if err != nil {
		fetcher.Close()
		return nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}

	return &environment{cfg: cfg, fetcher: fetcher, store: store}, nil
}

// Close releases the snapshot store and the fetcher's connections.
func (e *environment) Close() {
	if e.store != nil {
		_ = e.store.Close()
	}
	if e.fetcher != nil {
		e.fetcher.Close()
	}
}

// metricsDBPath returns the telemetry database path.
func (e *environment) metricsDBPath() string {
	return filepath.Join(e.cfg.Paths.DataDir, metricsDBFilename)
}

// newCoordinator builds a coordinator from the loaded config. The caller
// owns Initialize and Dispose.
func newCoordinator(cfg *config.Config) *coordinator.Coordinator {
	return coordinator.New(coordinator.Config{
		Worker: worker.Config{
			DataDir:    cfg.Paths.DataDir,
			Dimensions: catalog.EmbeddingDimensions,
			Defaults: vector.Config{
				Dimensions:     catalog.EmbeddingDimensions,
				MaxElements:    cfg.Index.MaxElements,
				M:              cfg.Index.M,
				EfConstruction: cfg.Index.EfConstruction,
				EfSearch:       cfg.Index.EfSearch,
			},
		},
		QueryCacheCapacity: cfg.Cache.QueryCacheCapacity,
		StartupTimeout:     cfg.Worker.StartupTimeout,
	}, slog.Default())
}

// snapshotGeneration derives the index generation token from a snapshot.
// The same snapshot always maps to the same generation, so a rebuilt
// index is skipped when nothing changed.
func snapshotGeneration(snap *catalogcache.Snapshot) uint64 {
	return uint64(snap.CreatedAt.UnixNano())
}
