package worker

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/quickcart/searchcore/internal/embed"
	"github.com/quickcart/searchcore/internal/vector"
)

// Config configures the compute worker.
type Config struct {
	// DataDir anchors relative index filenames.
	DataDir string

	// Dimensions is the embedding dimension all contexts use.
	Dimensions int

	// Defaults sizes on-demand global loads triggered by switchContext.
	Defaults vector.Config
}

// contextState tracks one index context inside the worker.
type contextState struct {
	index          *vector.Index
	populated      bool
	loadedFromDisk bool
	filename       string
}

// Worker owns the embedding model and the ANN structures. All state is
// confined to the run goroutine; callers interact only via Send and the
// progress stream.
type Worker struct {
	cfg    Config
	logger *slog.Logger

	requests chan *envelope
	progress chan Progress
	ready    chan struct{}
	stop     chan struct{}
	done     chan struct{}

	nextID   atomic.Uint64
	stopOnce sync.Once

	// Owned exclusively by the run goroutine.
	libraryLoaded bool
	model         embed.Embedder
	modelErr      error
	contexts      map[vector.Context]*contextState
	active        vector.Context
}

type envelope struct {
	id      uint64
	payload Payload
	reply   chan Response
}

// New creates a worker. Start must be called before Send.
func New(cfg Config, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = embed.Dimensions
	}
	return &Worker{
		cfg:      cfg,
		logger:   logger,
		requests: make(chan *envelope, 64),
		progress: make(chan Progress, 64),
		ready:    make(chan struct{}),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		contexts: make(map[vector.Context]*contextState),
		active:   vector.ContextGlobal,
	}
}

// Start spawns the run goroutine and waits for its readiness signal or
// context expiry.
func (w *Worker) Start(ctx context.Context) error {
	go w.run()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		w.Stop()
		return fmt.Errorf("worker failed to start: %w", ctx.Err())
	}
}

// Progress returns the one-way telemetry stream. Events are dropped when
// the consumer falls behind; they are advisory only.
func (w *Worker) Progress() <-chan Progress {
	return w.progress
}

// Send submits a request and blocks until its correlated response, context
// expiry, or worker termination.
func (w *Worker) Send(ctx context.Context, payload Payload) (Response, error) {
	env := &envelope{
		id:      w.nextID.Add(1),
		payload: payload,
		reply:   make(chan Response, 1),
	}

	select {
	case w.requests <- env:
	case <-w.done:
		return Response{}, fmt.Errorf("compute worker terminated")
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}

	select {
	case resp := <-env.reply:
		return resp, nil
	case <-w.done:
		return Response{}, fmt.Errorf("compute worker terminated")
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Stop terminates the worker. Queued requests receive failure responses
// before the worker exits; it is safe to call Stop multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		<-w.done
	})
}

// run is the single goroutine that owns all worker state.
func (w *Worker) run() {
	defer close(w.done)
	close(w.ready)

	for {
		select {
		case env := <-w.requests:
			env.reply <- w.dispatch(env)
		case <-w.stop:
			w.drain()
			if w.model != nil {
				_ = w.model.Close()
			}
			return
		}
	}
}

// drain fails every queued request so no correlation id is left without
// a response.
func (w *Worker) drain() {
	for {
		select {
		case env := <-w.requests:
			env.reply <- Response{
				ID:      env.id,
				Op:      env.payload.op(),
				Success: false,
				Err:     "compute worker terminated",
			}
		default:
			return
		}
	}
}

// dispatch routes a request to its handler. Handlers never panic the loop:
// failures become success:false responses.
func (w *Worker) dispatch(env *envelope) Response {
	op := env.payload.op()

	fail := func(err error) Response {
		w.logger.Warn("worker_op_failed",
			slog.String("op", string(op)),
			slog.Uint64("id", env.id),
			slog.String("error", err.Error()))
		return Response{ID: env.id, Op: op, Success: false, Err: err.Error()}
	}
	ok := func(data Result) Response {
		return Response{ID: env.id, Op: op, Success: true, Data: data}
	}

	switch req := env.payload.(type) {
	case InitLibraryRequest:
		return ok(w.handleInitLibrary())
	case LoadModelRequest:
		if err := w.handleLoadModel(); err != nil {
			return fail(err)
		}
		return ok(AckResult{})
	case EmbedQueryRequest:
		vec, err := w.handleEmbedQuery(req)
		if err != nil {
			return fail(err)
		}
		return ok(EmbedResult{Vector: vec})
	case InitIndexRequest:
		res, err := w.handleInitIndex(req)
		if err != nil {
			return fail(err)
		}
		return ok(res)
	case AddPointsRequest:
		if err := w.handleAddPoints(req); err != nil {
			return fail(err)
		}
		return ok(AckResult{})
	case SearchRequest:
		res, err := w.handleSearch(req)
		if err != nil {
			return fail(err)
		}
		return ok(res)
	case SaveIndexRequest:
		if err := w.handleSaveIndex(req); err != nil {
			return fail(err)
		}
		return ok(AckResult{})
	case SwitchContextRequest:
		if err := w.handleSwitchContext(req); err != nil {
			return fail(err)
		}
		return ok(AckResult{})
	default:
		return fail(fmt.Errorf("unknown operation %q", op))
	}
}

// handleInitLibrary is idempotent: the ANN library is compiled in, so the
// load amounts to flipping the state flag the other handlers gate on.
func (w *Worker) handleInitLibrary() Result {
	w.libraryLoaded = true
	return AckResult{}
}

func (w *Worker) handleLoadModel() error {
	if w.model != nil {
		return nil
	}
	if w.modelErr != nil {
		return w.modelErr
	}

	w.model = embed.NewStaticEmbedder()
	w.logger.Info("model_loaded", slog.String("model", w.model.ModelName()))
	return nil
}

func (w *Worker) handleEmbedQuery(req EmbedQueryRequest) ([]float32, error) {
	if w.model == nil {
		return nil, fmt.Errorf("embedding model not loaded")
	}
	return w.model.Embed(context.Background(), req.Query)
}

func (w *Worker) handleInitIndex(req InitIndexRequest) (InitIndexResult, error) {
	if !w.libraryLoaded {
		return InitIndexResult{}, fmt.Errorf("ann library not loaded")
	}
	if !req.Context.Valid() {
		return InitIndexResult{}, fmt.Errorf("unknown index context %q", req.Context)
	}

	cfg := vector.Config{
		Dimensions:     w.cfg.Dimensions,
		MaxElements:    req.MaxElements,
		M:              req.M,
		EfConstruction: req.EfConstruction,
		EfSearch:       req.EfSearch,
	}

	st := &contextState{filename: req.Filename}

	if req.Context == vector.ContextGlobal && !req.ForceRebuild && req.Persist && req.Filename != "" {
		path := w.resolvePath(req.Filename)
		if vector.Exists(path) {
			idx, err := vector.Load(path, cfg)
			if err != nil {
				// A stale or corrupt file falls back to a fresh build.
				w.logger.Warn("index_load_failed",
					slog.String("path", path),
					slog.String("error", err.Error()))
			} else {
				st.index = idx
				st.loadedFromDisk = true
				st.populated = idx.Count() > 0
				w.logger.Info("index_loaded",
					slog.String("path", path),
					slog.Int("count", idx.Count()))
			}
		}
	}

	if st.index == nil {
		idx, err := vector.New(cfg)
		if err != nil {
			return InitIndexResult{}, err
		}
		st.index = idx
	}

	w.contexts[req.Context] = st
	return InitIndexResult{LoadedFromDisk: st.loadedFromDisk, Count: st.index.Count()}, nil
}

func (w *Worker) handleAddPoints(req AddPointsRequest) error {
	st, ok := w.contexts[req.Context]
	if !ok {
		return fmt.Errorf("index context %q not initialized", req.Context)
	}

	err := st.index.Add(req.Points, func(done, total int) {
		w.emitProgress(Progress{
			Context: req.Context,
			Done:    done,
			Total:   total,
			Percent: done * 100 / total,
			Message: fmt.Sprintf("indexed %d/%d products", done, total),
		})
	})
	if err != nil {
		return err
	}

	st.populated = st.index.Count() > 0
	return nil
}

func (w *Worker) handleSearch(req SearchRequest) (SearchResult, error) {
	st, ok := w.contexts[req.Context]
	if !ok {
		return SearchResult{}, fmt.Errorf("index context %q not initialized", req.Context)
	}

	neighbors, err := st.index.Search(req.QueryEmbedding, req.Limit)
	if err != nil {
		return SearchResult{}, err
	}
	return SearchResult{Neighbors: neighbors}, nil
}

func (w *Worker) handleSaveIndex(req SaveIndexRequest) error {
	if req.Context != vector.ContextGlobal {
		return fmt.Errorf("only the global context may be saved, got %q", req.Context)
	}

	st, ok := w.contexts[vector.ContextGlobal]
	if !ok {
		return fmt.Errorf("global context not initialized")
	}

	filename := req.Filename
	if filename == "" {
		filename = st.filename
	}
	if filename == "" {
		return fmt.Errorf("no filename configured for the global index")
	}

	return st.index.Save(w.resolvePath(filename))
}

func (w *Worker) handleSwitchContext(req SwitchContextRequest) error {
	if !req.Target.Valid() {
		return fmt.Errorf("unknown index context %q", req.Target)
	}

	if req.Target == w.active {
		return nil
	}

	// On-demand load for a global context that was never initialized
	// in this process but has a known saved file.
	if req.Target == vector.ContextGlobal {
		if _, ok := w.contexts[vector.ContextGlobal]; !ok && req.Filename != "" {
			path := w.resolvePath(req.Filename)
			if vector.Exists(path) {
				idx, err := vector.Load(path, w.cfg.Defaults)
				if err != nil {
					return fmt.Errorf("on-demand index load: %w", err)
				}
				w.contexts[vector.ContextGlobal] = &contextState{
					index:          idx,
					populated:      idx.Count() > 0,
					loadedFromDisk: true,
					filename:       req.Filename,
				}
			}
		}
	}

	w.active = req.Target
	return nil
}

// emitProgress never blocks the run loop; events are dropped when the
// consumer falls behind.
func (w *Worker) emitProgress(p Progress) {
	select {
	case w.progress <- p:
	default:
	}
}

func (w *Worker) resolvePath(filename string) string {
	if filepath.IsAbs(filename) {
		return filename
	}
	return filepath.Join(w.cfg.DataDir, filename)
}
