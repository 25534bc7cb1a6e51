package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quickcart/searchcore/internal/coordinator"
	"github.com/quickcart/searchcore/internal/embed"
	"github.com/quickcart/searchcore/internal/lexical"
	"github.com/quickcart/searchcore/internal/ui"
	"github.com/quickcart/searchcore/internal/vector"
	"github.com/quickcart/searchcore/internal/worker"
)

func newIndexCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Fetch the catalog and build the search indexes",
		Long: `Fetches the product catalog, stores a snapshot, and builds both the
keyword (BM25) and vector (HNSW) indexes.

A fresh snapshot and a persisted index are reused; pass --force to
rebuild everything from the catalog service.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndex(cmd.Context(), cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Rebuild even when a fresh snapshot and index exist")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, force bool) error {
	env, err := openEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	renderer := ui.NewRenderer(ui.Config{
		Output:      cmd.OutOrStdout(),
		ForcePlain:  plainOutput,
		NoColor:     noColor,
		CatalogName: env.cfg.Catalog.BaseURL,
	})
	if err := renderer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start renderer: %w", err)
	}
	defer func() { _ = renderer.Stop() }()

	start := time.Now()
	var timings ui.StageTimings

	// Stage 1: catalog snapshot.
	renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageFetching,
		Message: "Fetching catalog",
	})
	fetchStart := time.Now()
	snap, err := env.store.GetSnapshot(ctx, force)
	if err != nil {
		renderer.AddError(ui.ErrorEvent{Scope: "catalog", Err: err})
		return fmt.Errorf("failed to build catalog snapshot: %w", err)
	}
	timings.Fetch = time.Since(fetchStart)
	renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageFetching,
		Current: len(snap.Products),
		Total:   len(snap.Products),
		Message: fmt.Sprintf("Fetched %d products", len(snap.Products)),
	})

	// Stage 2: keyword index.
	renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageKeyword,
		Total:   len(snap.Products),
		Message: "Building keyword index",
	})
	keywordStart := time.Now()
	lex, err := lexical.New(lexical.Config{ResultCacheSize: env.cfg.Search.ResultCacheSize})
	if err != nil {
		return fmt.Errorf("failed to create keyword index: %w", err)
	}
	defer func() { _ = lex.Close() }()
	if err := lex.Rebuild(ctx, snap.Products); err != nil {
		renderer.AddError(ui.ErrorEvent{Scope: "keyword", Err: err})
		return fmt.Errorf("failed to build keyword index: %w", err)
	}
	timings.Keyword = time.Since(keywordStart)
	renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageKeyword,
		Current: len(snap.Products),
		Total:   len(snap.Products),
		Message: fmt.Sprintf("Indexed %d products", lex.Count()),
	})

	// Stage 3: vector index via the compute worker.
	coord := newCoordinator(env.cfg)
	if err := coord.Initialize(ctx); err != nil {
		renderer.AddError(ui.ErrorEvent{Scope: "worker", Err: err})
		return fmt.Errorf("failed to start compute worker: %w", err)
	}
	defer coord.Dispose()

	pumpStop := make(chan struct{})
	pumpDone := pumpProgress(coord, renderer, len(snap.Products), pumpStop)

	vectorStart := time.Now()
	err = coord.PrepareIndex(ctx, snap.Products, snapshotGeneration(snap), coordinator.PrepareOptions{
		Context:      vector.ContextGlobal,
		ForceRebuild: force,
		Persist:      env.cfg.Index.Persist,
		Filename:     env.cfg.Index.Filename,
	})
	close(pumpStop)
	<-pumpDone
	if err != nil {
		renderer.AddError(ui.ErrorEvent{Scope: "vector", Err: err})
		return fmt.Errorf("failed to build vector index: %w", err)
	}
	timings.Vector = time.Since(vectorStart)

	renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageComplete,
		Current: len(snap.Products),
		Total:   len(snap.Products),
	})

	embedder := embed.NewStaticEmbedder()
	renderer.Complete(ui.CompletionStats{
		Products:   len(snap.Products),
		Categories: len(snap.Tables.Categories),
		Duration:   time.Since(start),
		Stages:     timings,
		Model: ui.ModelInfo{
			Model:      embedder.ModelName(),
			Dimensions: embedder.Dimensions(),
		},
	})
	_ = embedder.Close()

	return nil
}

// pumpProgress forwards worker progress events to the renderer until the
// stop channel closes. The worker drops events when the consumer lags, so
// missing a tick only skips a frame.
func pumpProgress(coord *coordinator.Coordinator, renderer ui.Renderer, total int, stop <-chan struct{}) <-chan struct{} {
	done := make(chan struct{})
	progress := coord.Progress()
	go func() {
		defer close(done)
		for {
			select {
			case p, ok := <-progress:
				if !ok {
					return
				}
				renderer.UpdateProgress(progressToEvent(p, total))
			case <-stop:
				return
			}
		}
	}()
	return done
}

func progressToEvent(p worker.Progress, total int) ui.ProgressEvent {
	stage := ui.StageVector
	if p.Done == p.Total && p.Total > 0 {
		stage = ui.StageSaving
	}
	if p.Total == 0 {
		p.Total = total
	}
	return ui.ProgressEvent{
		Stage:   stage,
		Current: p.Done,
		Total:   p.Total,
		Message: p.Message,
	}
}
