package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer outputs line-oriented progress for CI and pipes.
type PlainRenderer struct {
	mu     sync.Mutex
	out    io.Writer
	stage  Stage
	errors []ErrorEvent
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(ctx context.Context) error {
	return nil
}

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stage = event.Stage

	msg := event.Message
	if msg == "" {
		msg = event.Detail
	}

	if event.Total > 0 {
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d - %s\n", event.Stage.Icon(), event.Current, event.Total, msg)
	} else if msg != "" {
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), msg)
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errors = append(r.errors, event)

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	}

	if event.Scope != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.Scope, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Complete: %d products across %d categories indexed in %s",
		stats.Products, stats.Categories, stats.Duration.Round(100*time.Millisecond))

	if stats.Errors > 0 || stats.Warnings > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d errors, %d warnings)", stats.Errors, stats.Warnings)
	}

	_, _ = fmt.Fprintln(r.out)

	if stats.Stages.Fetch > 0 || stats.Stages.Vector > 0 {
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintln(r.out, "Stage Breakdown:")
		_, _ = fmt.Fprintf(r.out, "  Fetch:   %s (catalog snapshot)\n", stats.Stages.Fetch.Round(100*time.Millisecond))
		_, _ = fmt.Fprintf(r.out, "  Keyword: %s (keyword index)\n", stats.Stages.Keyword.Round(100*time.Millisecond))
		if stats.Stages.Vector > 0 && stats.Products > 0 {
			perSec := float64(stats.Products) / stats.Stages.Vector.Seconds()
			_, _ = fmt.Fprintf(r.out, "  Vector:  %s (%d products @ %.1f/sec)\n",
				stats.Stages.Vector.Round(100*time.Millisecond), stats.Products, perSec)
		}
		if stats.Stages.Save > 0 {
			_, _ = fmt.Fprintf(r.out, "  Save:    %s (index persisted)\n", stats.Stages.Save.Round(100*time.Millisecond))
		}
	}

	if stats.Model.Model != "" {
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintf(r.out, "Model: %s (%d dims)\n", stats.Model.Model, stats.Model.Dimensions)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}
