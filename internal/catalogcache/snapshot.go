package catalogcache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"golang.org/x/sync/errgroup"

	"github.com/quickcart/searchcore/internal/catalog"
	seerrors "github.com/quickcart/searchcore/internal/errors"
)

// SnapshotVersion invalidates snapshots written by incompatible layouts.
const SnapshotVersion = 3

// sampleSize is how many leading records structural validation inspects.
const sampleSize = 10

// rebuildFetchLimit bounds how many products one category fetch returns.
const rebuildFetchLimit = 10000

const (
	keyPrefix       = "snapshot:"
	keyMetadata     = keyPrefix + "metadata"
	keyLookupTables = keyPrefix + "lookupTables"
)

func chunkKey(i int) []byte {
	return []byte(fmt.Sprintf("%schunk_%d", keyPrefix, i))
}

// LookupTables intern repeated strings so chunks stay small.
type LookupTables struct {
	Categories    []string `json:"categories"`
	Subcategories []string `json:"subcategories"`
	ProductTypes  []string `json:"product_types"`
	Groups        []string `json:"groups"`
	Brands        []string `json:"brands"`
}

// Snapshot is a decoded catalog snapshot.
type Snapshot struct {
	Products  []catalog.Product
	Tables    LookupTables
	CreatedAt time.Time
	Version   int
}

type metadata struct {
	Version      int       `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	ChunkCount   int       `json:"chunk_count"`
	ProductCount int       `json:"product_count"`
}

// chunkRecord is the stored form of one product. String fields point into
// the lookup tables.
type chunkRecord struct {
	Name        string    `json:"n"`
	Category    int       `json:"c"`
	Subcategory int       `json:"s"`
	ProductType int       `json:"t"`
	Price       float64   `json:"p"`
	PromoPrice  *float64  `json:"pp,omitempty"`
	SoldByUnit  bool      `json:"u,omitempty"`
	ImageRef    string    `json:"i,omitempty"`
	Embedding   []float32 `json:"e,omitempty"`
	HashGroup   int       `json:"hg"`
	HashIndex   int       `json:"hi"`
}

// GetSnapshot returns a valid snapshot, loading the stored one when it
// passes validation and rebuilding from the catalog otherwise. force skips
// the load entirely.
func (s *Store) GetSnapshot(ctx context.Context, force bool) (*Snapshot, error) {
	if !force {
		snap, err := s.load()
		if err == nil {
			return snap, nil
		}
		// Corruption and staleness are internal conditions; the caller
		// only ever sees a rebuilt snapshot or a rebuild failure.
		s.logger.Warn("snapshot_invalid",
			slog.String("reason", err.Error()))
	}
	return s.Rebuild(ctx)
}

// Peek returns the stored snapshot without fetching, or an error when
// none is stored or the stored one fails validation. Unlike GetSnapshot
// it never contacts the catalog, so it is safe for status reporting.
func (s *Store) Peek() (*Snapshot, error) {
	return s.load()
}

// Rebuild fetches the catalog category by category, priority shelves first,
// and writes the whole snapshot in a single batch. Nothing is stored until
// every category has been fetched, so a failed rebuild never leaves a
// partial snapshot behind.
func (s *Store) Rebuild(ctx context.Context) (*Snapshot, error) {
	categories := catalog.AllCategories()
	perCategory := make([][]*catalog.Product, len(categories))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, category := range categories {
		g.Go(func() error {
			products, err := s.fetcher.FetchByCategory(gctx, category, rebuildFetchLimit)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", category, err)
			}
			perCategory[i] = products
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var products []catalog.Product
	for _, batch := range perCategory {
		for _, p := range batch {
			if p == nil {
				continue
			}
			normalized := *p
			normalized.Normalize()
			products = append(products, normalized)
		}
	}

	snap := &Snapshot{
		Products:  products,
		Tables:    buildLookupTables(products),
		CreatedAt: time.Now(),
		Version:   SnapshotVersion,
	}
	if err := s.persist(snap); err != nil {
		return nil, err
	}

	s.logger.Info("snapshot_rebuilt",
		slog.Int("products", len(products)),
		slog.Int("categories", len(categories)))
	return snap, nil
}

func buildLookupTables(products []catalog.Product) LookupTables {
	brands := make(map[string]bool)
	for i := range products {
		if b := catalog.InferBrand(products[i].Name); b != "" {
			brands[b] = true
		}
	}
	sorted := make([]string, 0, len(brands))
	for b := range brands {
		sorted = append(sorted, b)
	}
	sort.Strings(sorted)
	return LookupTables{Brands: sorted}
}

// interner assigns dense ids to repeated strings during persist.
type interner struct {
	ids    map[string]int
	values []string
}

func newInterner() *interner {
	return &interner{ids: make(map[string]int)}
}

func (in *interner) id(s string) int {
	if id, ok := in.ids[s]; ok {
		return id
	}
	id := len(in.values)
	in.ids[s] = id
	in.values = append(in.values, s)
	return id
}

func (s *Store) persist(snap *Snapshot) error {
	categories := newInterner()
	subcategories := newInterner()
	productTypes := newInterner()
	groups := newInterner()

	records := make([]chunkRecord, len(snap.Products))
	for i := range snap.Products {
		p := &snap.Products[i]
		records[i] = chunkRecord{
			Name:        p.Name,
			Category:    categories.id(p.Category),
			Subcategory: subcategories.id(p.Subcategory),
			ProductType: productTypes.id(p.ProductType),
			Price:       p.Price,
			PromoPrice:  p.PromoPrice,
			SoldByUnit:  p.SoldByUnit,
			ImageRef:    p.ImageRef,
			Embedding:   p.Embedding,
			HashGroup:   groups.id(p.Hash.Group),
			HashIndex:   p.Hash.Index,
		}
	}
	snap.Tables.Categories = categories.values
	snap.Tables.Subcategories = subcategories.values
	snap.Tables.ProductTypes = productTypes.values
	snap.Tables.Groups = groups.values

	if err := s.db.DropPrefix([]byte(keyPrefix)); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}

	chunkCount := 0
	batch := s.db.NewWriteBatch()
	defer batch.Cancel()

	for start := 0; start < len(records); start += s.cfg.ChunkSize {
		end := start + s.cfg.ChunkSize
		if end > len(records) {
			end = len(records)
		}
		data, err := json.Marshal(records[start:end])
		if err != nil {
			return fmt.Errorf("encode chunk %d: %w", chunkCount, err)
		}
		if err := batch.Set(chunkKey(chunkCount), data); err != nil {
			return fmt.Errorf("write chunk %d: %w", chunkCount, err)
		}
		chunkCount++
	}

	tables, err := json.Marshal(snap.Tables)
	if err != nil {
		return fmt.Errorf("encode lookup tables: %w", err)
	}
	if err := batch.Set([]byte(keyLookupTables), tables); err != nil {
		return fmt.Errorf("write lookup tables: %w", err)
	}

	meta, err := json.Marshal(metadata{
		Version:      snap.Version,
		CreatedAt:    snap.CreatedAt,
		ChunkCount:   chunkCount,
		ProductCount: len(records),
	})
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := batch.Set([]byte(keyMetadata), meta); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	if err := batch.Flush(); err != nil {
		return fmt.Errorf("flush snapshot: %w", err)
	}
	return nil
}

func (s *Store) load() (*Snapshot, error) {
	var meta metadata
	var tables LookupTables
	var records []chunkRecord

	err := s.db.View(func(tx *badger.Txn) error {
		if err := getJSON(tx, []byte(keyMetadata), &meta); err != nil {
			return err
		}
		if meta.Version != SnapshotVersion {
			return seerrors.CacheCorruptError(
				fmt.Sprintf("version %d, want %d", meta.Version, SnapshotVersion), nil)
		}
		if time.Since(meta.CreatedAt) > s.cfg.FreshnessWindow {
			return seerrors.CacheCorruptError(
				fmt.Sprintf("snapshot from %s is stale", meta.CreatedAt.Format(time.RFC3339)), nil)
		}

		if err := getJSON(tx, []byte(keyLookupTables), &tables); err != nil {
			return err
		}

		records = make([]chunkRecord, 0, meta.ProductCount)
		for i := 0; i < meta.ChunkCount; i++ {
			var chunk []chunkRecord
			if err := getJSON(tx, chunkKey(i), &chunk); err != nil {
				return err
			}
			records = append(records, chunk...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(records) != meta.ProductCount {
		return nil, seerrors.CacheCorruptError(
			fmt.Sprintf("decoded %d products, metadata says %d", len(records), meta.ProductCount), nil)
	}

	products := make([]catalog.Product, len(records))
	for i, r := range records {
		category, err := lookup(tables.Categories, r.Category)
		if err != nil {
			return nil, err
		}
		subcategory, err := lookup(tables.Subcategories, r.Subcategory)
		if err != nil {
			return nil, err
		}
		productType, err := lookup(tables.ProductTypes, r.ProductType)
		if err != nil {
			return nil, err
		}
		group, err := lookup(tables.Groups, r.HashGroup)
		if err != nil {
			return nil, err
		}
		products[i] = catalog.Product{
			Name:        r.Name,
			Category:    category,
			Subcategory: subcategory,
			ProductType: productType,
			Price:       r.Price,
			PromoPrice:  r.PromoPrice,
			SoldByUnit:  r.SoldByUnit,
			ImageRef:    r.ImageRef,
			Embedding:   r.Embedding,
			Hash:        catalog.CompositeHash{Group: group, Index: r.HashIndex},
		}
	}

	if err := validateSample(products); err != nil {
		return nil, err
	}

	return &Snapshot{
		Products:  products,
		Tables:    tables,
		CreatedAt: meta.CreatedAt,
		Version:   meta.Version,
	}, nil
}

// validateSample spot-checks the leading records: a snapshot whose first
// entries lack a name or category was written from bad data.
func validateSample(products []catalog.Product) error {
	n := sampleSize
	if n > len(products) {
		n = len(products)
	}
	for i := 0; i < n; i++ {
		if products[i].Name == "" || products[i].Category == "" {
			return seerrors.CacheCorruptError(
				fmt.Sprintf("record %d missing name or category", i), nil)
		}
	}
	return nil
}

func lookup(table []string, id int) (string, error) {
	if id < 0 || id >= len(table) {
		return "", seerrors.CacheCorruptError(
			fmt.Sprintf("intern id %d out of range (%d entries)", id, len(table)), nil)
	}
	return table[id], nil
}

func getJSON(tx *badger.Txn, key []byte, out any) error {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return seerrors.CacheCorruptError(fmt.Sprintf("missing key %s", key), nil)
		}
		return err
	}
	return item.Value(func(val []byte) error {
		if err := json.Unmarshal(val, out); err != nil {
			return seerrors.CacheCorruptError(fmt.Sprintf("decode key %s", key), err)
		}
		return nil
	})
}
