// Package catalogcache persists a normalized snapshot of the product
// catalog in a local Badger keyspace so startup does not depend on the
// remote catalog being reachable. The snapshot is written chunked, with
// string intern tables, and is validated for freshness, version, and
// structure on every load; any defect triggers a full rebuild rather than
// an error to the caller.
package catalogcache

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/quickcart/searchcore/internal/catalog"
)

// DefaultFreshnessWindow is how long a snapshot stays valid.
const DefaultFreshnessWindow = 24 * time.Hour

// DefaultChunkSize is the number of products per stored chunk.
const DefaultChunkSize = 500

// Config configures the snapshot store.
type Config struct {
	// Dir is the Badger directory. Ignored when InMemory is set.
	Dir string

	// InMemory keeps the keyspace in memory, used by tests.
	InMemory bool

	// FreshnessWindow invalidates snapshots older than this.
	FreshnessWindow time.Duration

	// ChunkSize is the number of products per chunk.
	ChunkSize int
}

// Store owns the Badger keyspace holding the snapshot.
type Store struct {
	db      *badger.DB
	cfg     Config
	fetcher catalog.Fetcher
	logger  *slog.Logger
}

// badgerLoggerAdapter routes Badger's internal logging through slog.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// Open opens the snapshot store. The directory is created when missing.
func Open(cfg Config, fetcher catalog.Fetcher, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = DefaultFreshnessWindow
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	return &Store{db: db, cfg: cfg, fetcher: fetcher, logger: logger}, nil
}

// Close closes the underlying keyspace.
func (s *Store) Close() error {
	return s.db.Close()
}
