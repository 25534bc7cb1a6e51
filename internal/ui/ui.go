// Package ui provides terminal components for index-build progress and
// catalog status display.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage represents an index build stage.
type Stage int

const (
	// StageFetching is the catalog snapshot fetch stage.
	StageFetching Stage = iota
	// StageKeyword is the keyword index build stage.
	StageKeyword
	// StageVector is the vector index build stage.
	StageVector
	// StageSaving is the index persistence stage.
	StageSaving
	// StageComplete indicates the build is finished.
	StageComplete
)

// String returns the human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageFetching:
		return "Fetching"
	case StageKeyword:
		return "Keyword"
	case StageVector:
		return "Vector"
	case StageSaving:
		return "Saving"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short stage tag for plain text output.
func (s Stage) Icon() string {
	switch s {
	case StageFetching:
		return "FETCH"
	case StageKeyword:
		return "KEYWORD"
	case StageVector:
		return "VECTOR"
	case StageSaving:
		return "SAVE"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent represents a progress update within a stage.
type ProgressEvent struct {
	Stage   Stage
	Current int
	Total   int
	Detail  string // category or product currently being processed
	Message string
}

// ErrorEvent represents an error during the build.
type ErrorEvent struct {
	Scope  string // category or component the error belongs to
	Err    error
	IsWarn bool
}

// StageTimings tracks duration for each build stage.
type StageTimings struct {
	Fetch   time.Duration
	Keyword time.Duration
	Vector  time.Duration
	Save    time.Duration
}

// ModelInfo describes the embedding model used for the build.
type ModelInfo struct {
	Model      string
	Dimensions int
}

// CompletionStats contains final build statistics.
type CompletionStats struct {
	Products   int
	Categories int
	Duration   time.Duration
	Errors     int
	Warnings   int
	Stages     StageTimings
	Model      ModelInfo
}

// Renderer defines the interface for progress display.
type Renderer interface {
	// Start initializes the renderer.
	Start(ctx context.Context) error

	// UpdateProgress updates progress display.
	UpdateProgress(event ProgressEvent)

	// AddError adds an error to display.
	AddError(event ErrorEvent)

	// Complete marks rendering as complete with summary.
	Complete(stats CompletionStats)

	// Stop stops the renderer and cleans up.
	Stop() error
}

// Config configures the UI renderer.
type Config struct {
	Output      io.Writer
	ForcePlain  bool
	NoColor     bool
	CatalogName string // catalog label to display in the header
}

// ConfigOption is a function that modifies Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) {
		c.ForcePlain = force
	}
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

// WithCatalogName sets the catalog label shown in the header.
func WithCatalogName(name string) ConfigOption {
	return func(c *Config) {
		c.CatalogName = name
	}
}

// NewConfig creates a new Config with the given output and options.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer creates an appropriate renderer based on config and
// environment. Interactive terminals get the TUI; CI environments,
// pipes, and --plain get line-oriented output.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain {
		return NewPlainRenderer(cfg)
	}

	if !IsTTY(cfg.Output) {
		return NewPlainRenderer(cfg)
	}

	if DetectCI() {
		return NewPlainRenderer(cfg)
	}

	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}

	return tui
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}

	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}

	return false
}

// DetectNoColor checks if the NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
