// Package orchestrator drives the interactive search flow: keystrokes are
// debounced into lexical prefilters, dropdowns render immediately from
// lexical results, and a throttled background embedding request upgrades
// the same dropdown in place once semantic ranking is possible.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/quickcart/searchcore/internal/catalog"
	"github.com/quickcart/searchcore/internal/coordinator"
	"github.com/quickcart/searchcore/internal/lexical"
	"github.com/quickcart/searchcore/internal/strategy"
	"github.com/quickcart/searchcore/internal/vector"
)

// Embedding request priorities. Full-page searches outrank dropdown
// upgrades in the coordinator's queue.
const (
	PriorityDropdown = 1
	PrioritySearch   = 5
)

// Default timer intervals.
const (
	DefaultDebounce = 150 * time.Millisecond
	DefaultThrottle = 400 * time.Millisecond
)

// Dropdown is one rendered dropdown state.
type Dropdown struct {
	// Query is the keystroke burst this dropdown answers.
	Query string

	Products []catalog.Product

	// Loading is set while a semantic upgrade is still possible for this
	// query. A cold worker yields an empty, loading dropdown rather than
	// an error.
	Loading bool

	// Upgraded is set once the products were reordered semantically.
	Upgraded bool
}

// EmbeddingProvider computes query embeddings. Implemented by the
// coordinator.
type EmbeddingProvider interface {
	GetQueryEmbedding(ctx context.Context, query string, priority int) ([]float32, error)
}

// IndexManager prepares and queries ANN indexes. Implemented by the
// coordinator.
type IndexManager interface {
	PrepareIndex(ctx context.Context, products []catalog.Product, generation uint64, opts coordinator.PrepareOptions) error
	RankBySimilarity(ctx context.Context, queryEmbedding []float32, limit int) ([]vector.Neighbor, error)
}

// Config configures the orchestrator.
type Config struct {
	// Debounce is the quiet period after a keystroke before the lexical
	// prefilter runs.
	Debounce time.Duration

	// Throttle is the minimum spacing between embedding requests issued
	// for dropdown upgrades.
	Throttle time.Duration

	// MaxResults bounds the full result page.
	MaxResults int

	// IndexFilename names the persisted global index.
	IndexFilename string

	// Persist saves the global index after SetCatalog builds it.
	Persist bool
}

// Orchestrator owns the interactive search session state. Safe for
// concurrent use; dropdown emissions happen on timer goroutines.
type Orchestrator struct {
	cfg      Config
	lexical  *lexical.Index
	embedder EmbeddingProvider
	indexes  IndexManager
	reranker strategy.Reranker
	logger   *slog.Logger

	mu            sync.Mutex
	listener      func(Dropdown)
	seq           uint64
	debounceTimer *time.Timer
	throttleTimer *time.Timer
	lexicalBusy   bool
	embedBusy     bool
	lastEmbedAt   time.Time

	pool       []catalog.Product
	generation uint64

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an orchestrator. The reranker is typically a
// TemporaryReranker over the same coordinator as embedder and indexes.
func New(cfg Config, lex *lexical.Index, embedder EmbeddingProvider, indexes IndexManager, reranker strategy.Reranker, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Throttle <= 0 {
		cfg.Throttle = DefaultThrottle
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 50
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:      cfg,
		lexical:  lex,
		embedder: embedder,
		indexes:  indexes,
		reranker: reranker,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetDropdownListener registers the dropdown render callback. Emissions for
// superseded keystrokes are suppressed, so the listener only ever sees the
// latest query's state.
func (o *Orchestrator) SetDropdownListener(fn func(Dropdown)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listener = fn
}

// SetCatalog installs a product snapshot: the lexical index is rebuilt and
// the global ANN context is prepared under the given generation token.
func (o *Orchestrator) SetCatalog(ctx context.Context, products []catalog.Product, generation uint64) error {
	if err := o.lexical.Rebuild(ctx, products); err != nil {
		return err
	}

	o.mu.Lock()
	o.pool = products
	o.generation = generation
	o.mu.Unlock()

	return o.indexes.PrepareIndex(ctx, products, generation, coordinator.PrepareOptions{
		Context:  vector.ContextGlobal,
		Persist:  o.cfg.Persist,
		Filename: o.cfg.IndexFilename,
	})
}

// OnKeystroke registers a keystroke. After the debounce window the lexical
// prefilter runs and the dropdown renders; a throttled embedding request
// then upgrades it in place.
func (o *Orchestrator) OnKeystroke(query string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.seq++
	seq := o.seq

	if o.debounceTimer != nil {
		o.debounceTimer.Stop()
	}
	o.debounceTimer = time.AfterFunc(o.cfg.Debounce, func() {
		o.runLexical(seq, query)
	})
}

// runLexical serves the fast half of the dropdown: lexical prefilter, then
// immediate render with the loading flag set.
func (o *Orchestrator) runLexical(seq uint64, query string) {
	o.mu.Lock()
	if seq != o.seq || o.lexicalBusy {
		o.mu.Unlock()
		return
	}
	o.lexicalBusy = true
	o.mu.Unlock()

	candidates, err := o.lexical.Search(o.ctx, query, strategy.DropdownCandidateLimit)

	o.mu.Lock()
	o.lexicalBusy = false
	stale := seq != o.seq
	o.mu.Unlock()
	if stale {
		return
	}
	if err != nil {
		o.logger.Warn("lexical_prefilter_failed",
			slog.String("query", query),
			slog.String("error", err.Error()))
		candidates = nil
	}

	initial := &strategy.HybridDropdownStrategy{Candidates: candidates}
	result, _ := initial.Search(o.ctx)
	o.emit(seq, Dropdown{Query: query, Products: result.Products, Loading: true})

	o.scheduleUpgrade(seq, query, candidates)
}

// scheduleUpgrade spaces embedding requests at least one throttle interval
// apart across a keystroke burst.
func (o *Orchestrator) scheduleUpgrade(seq uint64, query string, candidates []lexical.Result) {
	o.mu.Lock()
	defer o.mu.Unlock()

	delay := o.cfg.Throttle - time.Since(o.lastEmbedAt)
	if delay < 0 {
		delay = 0
	}
	if o.throttleTimer != nil {
		o.throttleTimer.Stop()
	}
	o.throttleTimer = time.AfterFunc(delay, func() {
		o.runUpgrade(seq, query, candidates)
	})
}

// runUpgrade serves the slow half: query embedding, then in-place rerank of
// the exact candidate set the lexical half already rendered.
func (o *Orchestrator) runUpgrade(seq uint64, query string, candidates []lexical.Result) {
	o.mu.Lock()
	if seq != o.seq || o.embedBusy {
		o.mu.Unlock()
		return
	}
	o.embedBusy = true
	o.lastEmbedAt = time.Now()
	o.mu.Unlock()

	embedding, err := o.embedder.GetQueryEmbedding(o.ctx, query, PriorityDropdown)

	o.mu.Lock()
	o.embedBusy = false
	stale := seq != o.seq
	o.mu.Unlock()
	if stale {
		return
	}
	if err != nil || embedding == nil {
		// Cold worker or failed embed: the lexical dropdown stands, still
		// flagged as loading so the UI can show an indicator.
		if err != nil {
			o.logger.Debug("dropdown_upgrade_unavailable",
				slog.String("query", query),
				slog.String("error", err.Error()))
		}
		return
	}

	upgrade := &strategy.HybridDropdownStrategy{
		Candidates:     candidates,
		QueryEmbedding: embedding,
		Reranker:       o.reranker,
	}
	result, _ := upgrade.Search(o.ctx)
	o.emit(seq, Dropdown{Query: query, Products: result.Products, Upgraded: true})
}

func (o *Orchestrator) emit(seq uint64, dropdown Dropdown) {
	o.mu.Lock()
	listener := o.listener
	stale := seq != o.seq
	o.mu.Unlock()
	if stale || listener == nil {
		return
	}
	listener(dropdown)
}

// SearchAll serves the explicit full-page search: a high-priority
// embedding, a global-context ANN ranking, and lexical fallback when the
// semantic side is unavailable.
func (o *Orchestrator) SearchAll(ctx context.Context, query string) (strategy.Result, error) {
	lex, err := o.lexical.Search(ctx, query, o.cfg.MaxResults)
	if err != nil {
		return strategy.Result{}, err
	}

	// Unavailable embeddings degrade to lexical inside the strategy.
	embedding, err := o.embedder.GetQueryEmbedding(ctx, query, PrioritySearch)
	if err != nil {
		embedding = nil
	}

	o.mu.Lock()
	pool := o.pool
	generation := o.generation
	o.mu.Unlock()

	if embedding != nil && len(pool) > 0 {
		// Reactivate the global context in case a dropdown rerank left
		// the temporary one active.
		if err := o.indexes.PrepareIndex(ctx, pool, generation, coordinator.PrepareOptions{
			Context:  vector.ContextGlobal,
			Persist:  o.cfg.Persist,
			Filename: o.cfg.IndexFilename,
		}); err != nil {
			embedding = nil
		}
	}

	s := &strategy.SemanticSearchStrategy{
		Pool:           pool,
		QueryEmbedding: embedding,
		Ranker:         rankerFunc(o.indexes.RankBySimilarity),
		Lexical:        lex,
		Limit:          o.cfg.MaxResults,
	}
	return s.Search(ctx)
}

// rankerFunc adapts a function to strategy.Ranker.
type rankerFunc func(ctx context.Context, queryEmbedding []float32, limit int) ([]vector.Neighbor, error)

func (f rankerFunc) RankBySimilarity(ctx context.Context, queryEmbedding []float32, limit int) ([]vector.Neighbor, error) {
	return f(ctx, queryEmbedding, limit)
}

// Close stops pending timers and cancels background work.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.debounceTimer != nil {
		o.debounceTimer.Stop()
	}
	if o.throttleTimer != nil {
		o.throttleTimer.Stop()
	}
	o.mu.Unlock()
	o.cancel()
}
