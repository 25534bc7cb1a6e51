// Package coordinator mediates every interaction with the compute worker:
// startup, query embedding with caching and prioritization, index
// preparation, similarity ranking, and teardown. Callers never talk to the
// worker directly.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/quickcart/searchcore/internal/catalog"
	seerrors "github.com/quickcart/searchcore/internal/errors"
	"github.com/quickcart/searchcore/internal/vector"
	"github.com/quickcart/searchcore/internal/worker"
)

// DefaultStartupTimeout bounds the worker spawn + library + model sequence.
const DefaultStartupTimeout = 30 * time.Second

// Config configures the coordinator.
type Config struct {
	// Worker is handed to the spawned compute worker.
	Worker worker.Config

	// QueryCacheCapacity bounds the query-embedding cache.
	QueryCacheCapacity int

	// StartupTimeout bounds Initialize. This is the only built-in timeout;
	// all other operations run under the caller's context.
	StartupTimeout time.Duration
}

// PrepareOptions controls a single PrepareIndex call.
type PrepareOptions struct {
	// Context selects the index context; empty means global.
	Context vector.Context

	// ForceRebuild discards any persisted or previously prepared index.
	ForceRebuild bool

	// Persist saves the global index after population.
	Persist bool

	// Filename names the persisted index file, relative to the data dir.
	Filename string
}

type initState int

const (
	stateIdle initState = iota
	stateInitializing
	stateReady
	stateFailed
)

// Coordinator owns the worker lifecycle and serializes index mutation.
// Methods are safe for concurrent use.
type Coordinator struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	state    initState
	initDone chan struct{}
	initErr  error
	worker   *worker.Worker
	cache    *queryCache
	queue    *embedQueue
	dispDone chan struct{}

	// Index readiness tracking. A context is ready only between the end of
	// one PrepareIndex and the start of the next mutation; the flag is
	// cleared before the worker is touched, never optimistically set.
	active      vector.Context
	prepared    map[vector.Context]bool
	generations map[vector.Context]uint64

	// prepareMu serializes PrepareIndex calls end to end.
	prepareMu sync.Mutex
}

// New creates a coordinator. Initialize must succeed before any other
// method does useful work.
func New(cfg Config, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = DefaultStartupTimeout
	}
	return &Coordinator{
		cfg:         cfg,
		logger:      logger,
		active:      vector.ContextGlobal,
		prepared:    make(map[vector.Context]bool),
		generations: make(map[vector.Context]uint64),
	}
}

// Progress returns the worker's progress stream, or nil before
// Initialize succeeds. Events are emitted during index population and
// may be dropped when the consumer lags.
func (c *Coordinator) Progress() <-chan worker.Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.worker == nil {
		return nil
	}
	return c.worker.Progress()
}

// Initialize spawns the compute worker, loads the ANN library and the
// embedding model. It is idempotent and concurrent-safe: overlapping calls
// share one in-flight initialization and observe the same error. A failed
// initialization is not retried; Dispose resets the coordinator so it can
// be attempted again.
func (c *Coordinator) Initialize(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case stateReady, stateFailed:
		err := c.initErr
		c.mu.Unlock()
		return err
	case stateInitializing:
		done := c.initDone
		c.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
		err := c.initErr
		c.mu.Unlock()
		return err
	}

	c.state = stateInitializing
	c.initDone = make(chan struct{})
	done := c.initDone
	c.mu.Unlock()

	err := c.initialize(ctx)

	c.mu.Lock()
	c.initErr = err
	if err != nil {
		c.state = stateFailed
	} else {
		c.state = stateReady
	}
	c.mu.Unlock()
	close(done)
	return err
}

func (c *Coordinator) initialize(ctx context.Context) error {
	startCtx, cancel := context.WithTimeout(ctx, c.cfg.StartupTimeout)
	defer cancel()

	w := worker.New(c.cfg.Worker, c.logger)
	if err := w.Start(startCtx); err != nil {
		return seerrors.InitializationError("compute worker failed to start", err)
	}

	for _, payload := range []worker.Payload{
		worker.InitLibraryRequest{},
		worker.LoadModelRequest{},
	} {
		resp, err := w.Send(startCtx, payload)
		if err != nil {
			w.Stop()
			return seerrors.InitializationError("compute worker startup", err)
		}
		if !resp.Success {
			w.Stop()
			return seerrors.InitializationError(
				fmt.Sprintf("compute worker startup: %s", resp.Err), nil)
		}
	}

	queue := newEmbedQueue()
	dispDone := make(chan struct{})

	c.mu.Lock()
	c.worker = w
	c.cache = newQueryCache(c.cfg.QueryCacheCapacity)
	c.queue = queue
	c.dispDone = dispDone
	c.mu.Unlock()

	go c.dispatch(w, queue, dispDone)

	c.logger.Info("coordinator_initialized",
		slog.Duration("startup_timeout", c.cfg.StartupTimeout))
	return nil
}

// dispatch is the single goroutine that feeds embedding requests to the
// worker. Pulling one task at a time keeps exactly one embed request in
// flight regardless of caller concurrency.
func (c *Coordinator) dispatch(w *worker.Worker, queue *embedQueue, done chan struct{}) {
	defer close(done)

	for {
		task := queue.Next()
		if task == nil {
			return
		}

		resp, err := w.Send(context.Background(), worker.EmbedQueryRequest{Query: task.query})
		switch {
		case err != nil:
			task.done <- embedOutcome{err: seerrors.WorkerTerminatedError()}
		case !resp.Success:
			if strings.Contains(resp.Err, "terminated") {
				task.done <- embedOutcome{err: seerrors.WorkerTerminatedError()}
			} else {
				task.done <- embedOutcome{err: fmt.Errorf("embed query: %s", resp.Err)}
			}
		default:
			result, ok := resp.Data.(worker.EmbedResult)
			if !ok {
				task.done <- embedOutcome{err: seerrors.InvalidMessageError(
					fmt.Sprintf("unexpected embed response payload %T", resp.Data))}
				continue
			}
			c.cacheEmbedding(task.key, result.Vector)
			task.done <- embedOutcome{vector: result.Vector}
		}
	}
}

func (c *Coordinator) cacheEmbedding(key string, vec []float32) {
	c.mu.Lock()
	cache := c.cache
	c.mu.Unlock()
	if cache != nil {
		cache.Put(key, vec)
	}
}

// GetQueryEmbedding returns the embedding for a query. Blank queries (after
// trimming) return nil without touching the worker. Cached embeddings are
// returned immediately; misses are queued by descending priority, FIFO among
// equals.
func (c *Coordinator) GetQueryEmbedding(ctx context.Context, query string, priority int) ([]float32, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, nil
	}
	key := normalizeQuery(query)

	c.mu.Lock()
	if c.state != stateReady {
		c.mu.Unlock()
		return nil, seerrors.InitializationError("coordinator not initialized", nil)
	}
	cache := c.cache
	queue := c.queue
	c.mu.Unlock()

	if vec, ok := cache.Get(key); ok {
		return vec, nil
	}

	task := &embedTask{
		query:    trimmed,
		key:      key,
		priority: priority,
		done:     make(chan embedOutcome, 1),
	}
	if !queue.Submit(task) {
		return nil, seerrors.WorkerTerminatedError()
	}

	select {
	case outcome := <-task.done:
		return outcome.vector, outcome.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PrepareIndex makes the given context's ANN index reflect the given product
// list. The generation token identifies the list; when the same context was
// already prepared for the same generation and ForceRebuild is unset, only a
// context switch is issued. Otherwise the readiness flag is cleared, the
// index is initialized (the global context may load its persisted file),
// populated with the products carrying valid embeddings, and optionally
// saved.
func (c *Coordinator) PrepareIndex(ctx context.Context, products []catalog.Product, generation uint64, opts PrepareOptions) error {
	target := opts.Context
	if target == "" {
		target = vector.ContextGlobal
	}
	if !target.Valid() {
		return fmt.Errorf("unknown index context %q", target)
	}

	c.prepareMu.Lock()
	defer c.prepareMu.Unlock()

	c.mu.Lock()
	if c.state != stateReady {
		c.mu.Unlock()
		return seerrors.InitializationError("coordinator not initialized", nil)
	}
	w := c.worker
	skip := c.prepared[target] && c.generations[target] == generation && !opts.ForceRebuild
	c.mu.Unlock()

	if skip {
		// The structure is current; only make sure the worker's active
		// context agrees with ours.
		if err := c.switchContext(ctx, w, target, opts.Filename); err != nil {
			return err
		}
		c.mu.Lock()
		c.active = target
		c.mu.Unlock()
		return nil
	}

	// Readiness off before any mutation. It comes back only after the
	// worker has acknowledged the final operation.
	c.mu.Lock()
	c.prepared[target] = false
	c.mu.Unlock()

	if err := c.switchContext(ctx, w, target, opts.Filename); err != nil {
		return err
	}

	d := c.cfg.Worker.Defaults
	resp, err := c.send(ctx, w, worker.InitIndexRequest{
		MaxElements:    d.MaxElements,
		M:              d.M,
		EfConstruction: d.EfConstruction,
		EfSearch:       d.EfSearch,
		Filename:       opts.Filename,
		ForceRebuild:   opts.ForceRebuild,
		Persist:        opts.Persist,
		Context:        target,
	})
	if err != nil {
		return err
	}
	init, ok := resp.Data.(worker.InitIndexResult)
	if !ok {
		return seerrors.InvalidMessageError(
			fmt.Sprintf("unexpected init response payload %T", resp.Data))
	}

	if init.LoadedFromDisk {
		c.logger.Info("index_restored",
			slog.String("context", string(target)),
			slog.Int("count", init.Count))
	} else {
		points := embeddablePoints(products)
		if len(points) > 0 {
			if _, err := c.send(ctx, w, worker.AddPointsRequest{
				Points:  points,
				Context: target,
			}); err != nil {
				return err
			}
		}
		c.logger.Info("index_built",
			slog.String("context", string(target)),
			slog.Int("indexed", len(points)),
			slog.Int("skipped", len(products)-len(points)))

		if opts.Persist && target == vector.ContextGlobal {
			if _, err := c.send(ctx, w, worker.SaveIndexRequest{
				Filename: opts.Filename,
				Context:  vector.ContextGlobal,
			}); err != nil {
				return err
			}
		}
	}

	c.mu.Lock()
	c.prepared[target] = true
	c.generations[target] = generation
	c.active = target
	c.mu.Unlock()
	return nil
}

// embeddablePoints keeps only products with a valid embedding, preserving
// each product's position in the source list as its original index.
func embeddablePoints(products []catalog.Product) []vector.Point {
	points := make([]vector.Point, 0, len(products))
	for i := range products {
		if !products[i].HasValidEmbedding() {
			continue
		}
		points = append(points, vector.Point{
			Embedding:     products[i].Embedding,
			OriginalIndex: i,
		})
	}
	return points
}

// RankBySimilarity searches the active context for the nearest neighbors of
// a query embedding. When no prepared index is available it returns an empty
// result rather than an error, so lexical-only flows degrade gracefully.
func (c *Coordinator) RankBySimilarity(ctx context.Context, queryEmbedding []float32, limit int) ([]vector.Neighbor, error) {
	c.mu.Lock()
	if c.state != stateReady {
		c.mu.Unlock()
		return []vector.Neighbor{}, nil
	}
	w := c.worker
	target := c.active
	ready := c.prepared[target]
	c.mu.Unlock()

	if !ready {
		return []vector.Neighbor{}, nil
	}

	if err := c.switchContext(ctx, w, target, ""); err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, w, worker.SearchRequest{
		QueryEmbedding: queryEmbedding,
		Limit:          limit,
		Context:        target,
	})
	if err != nil {
		return nil, err
	}
	result, ok := resp.Data.(worker.SearchResult)
	if !ok {
		return nil, seerrors.InvalidMessageError(
			fmt.Sprintf("unexpected search response payload %T", resp.Data))
	}
	return result.Neighbors, nil
}

// IndexReady reports whether the given context currently has a prepared
// index. An empty context means global.
func (c *Coordinator) IndexReady(ictx vector.Context) bool {
	if ictx == "" {
		ictx = vector.ContextGlobal
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateReady && c.prepared[ictx]
}

// ActiveContext returns the coordinator's view of the active index context.
func (c *Coordinator) ActiveContext() vector.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Dispose stops the worker and resets the coordinator to its uninitialized
// state. Queued and in-flight embedding requests fail with a worker
// terminated error. Initialize may be called again afterwards.
func (c *Coordinator) Dispose() {
	c.mu.Lock()
	if c.state == stateIdle {
		c.mu.Unlock()
		return
	}
	w := c.worker
	queue := c.queue
	dispDone := c.dispDone
	c.worker = nil
	c.queue = nil
	c.cache = nil
	c.dispDone = nil
	c.state = stateIdle
	c.initErr = nil
	c.active = vector.ContextGlobal
	c.prepared = make(map[vector.Context]bool)
	c.generations = make(map[vector.Context]uint64)
	c.mu.Unlock()

	if queue != nil {
		for _, task := range queue.Close() {
			task.done <- embedOutcome{err: seerrors.WorkerTerminatedError()}
		}
	}
	if w != nil {
		w.Stop()
	}
	if dispDone != nil {
		<-dispDone
	}
	c.logger.Info("coordinator_disposed")
}

// switchContext asks the worker to activate a context. The worker treats a
// switch to the already-active context as a no-op.
func (c *Coordinator) switchContext(ctx context.Context, w *worker.Worker, target vector.Context, filename string) error {
	_, err := c.send(ctx, w, worker.SwitchContextRequest{Target: target, Filename: filename})
	return err
}

// send performs one worker round trip, folding transport errors and
// success:false responses into a single error return.
func (c *Coordinator) send(ctx context.Context, w *worker.Worker, payload worker.Payload) (worker.Response, error) {
	if w == nil {
		return worker.Response{}, seerrors.WorkerTerminatedError()
	}
	resp, err := w.Send(ctx, payload)
	if err != nil {
		if ctx.Err() != nil {
			return worker.Response{}, err
		}
		return worker.Response{}, seerrors.WorkerTerminatedError()
	}
	if !resp.Success {
		if strings.Contains(resp.Err, "terminated") {
			return worker.Response{}, seerrors.WorkerTerminatedError()
		}
		return worker.Response{}, fmt.Errorf("%s: %s", resp.Op, resp.Err)
	}
	return resp, nil
}
