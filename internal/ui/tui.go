package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUIRenderer provides a rich terminal UI using bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *buildModel
	tracker *ProgressTracker
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer. Returns an error when the
// output is not a TTY.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}

	tracker := NewProgressTracker()
	model := newBuildModel(tracker, cfg.CatalogName)

	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}

	return &TUIRenderer{
		cfg:     cfg,
		tracker: tracker,
		model:   model,
		done:    make(chan struct{}),
	}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	r.ctx, r.cancel = context.WithCancel(ctx)

	var opts []tea.ProgramOption
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	opts = append(opts, tea.WithAltScreen())

	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()

	return nil
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Stage != r.tracker.Stats().Stage {
		r.tracker.SetStage(event.Stage, event.Total)
	}
	r.tracker.Update(event.Current, event.Detail)

	if r.program != nil {
		r.program.Send(progressUpdateMsg(event))
	}
}

// AddError implements Renderer.
func (r *TUIRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.AddError(event)

	if r.program != nil {
		r.program.Send(errorMsg(event))
	}
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.SetStage(StageComplete, 0)

	if r.program != nil {
		r.program.Send(completeMsg(stats))
	}
}

// Stop implements Renderer.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}

	if r.program != nil {
		r.program.Quit()

		// Bounded wait so Ctrl+C never hangs on an unresponsive TUI.
		select {
		case <-r.done:
		case <-time.After(2 * time.Second):
		}
	}

	return nil
}

// Message types for bubbletea.
type progressUpdateMsg ProgressEvent
type errorMsg ErrorEvent
type completeMsg CompletionStats
type tickMsg time.Time

// buildModel is the bubbletea model for index build progress.
type buildModel struct {
	tracker     *ProgressTracker
	width       int
	height      int
	quitting    bool
	complete    bool
	stats       CompletionStats
	spinner     spinner.Model
	progressBar progress.Model
	styles      Styles
	catalogName string
}

func newBuildModel(tracker *ProgressTracker, catalogName string) *buildModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorTeal))

	p := progress.New(
		progress.WithSolidFill(ColorTeal),
		progress.WithWidth(50),
		progress.WithoutPercentage(),
	)

	return &buildModel{
		tracker:     tracker,
		spinner:     s,
		progressBar: p,
		styles:      DefaultStyles(),
		width:       80,
		height:      24,
		catalogName: catalogName,
	}
}

// Init implements tea.Model.
func (m *buildModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		tickCmd(),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m *buildModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progressBar.Width = msg.Width - 20
		if m.progressBar.Width < 20 {
			m.progressBar.Width = 20
		}

	case progressUpdateMsg:
		// tracker already updated by the renderer
		return m, nil

	case errorMsg:
		return m, nil

	case completeMsg:
		m.complete = true
		m.stats = CompletionStats(msg)
		return m, tea.Quit

	case tickMsg:
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m *buildModel) View() string {
	if m.quitting {
		return "Cancelled.\n"
	}

	if m.complete {
		return m.renderComplete()
	}

	contentWidth := m.width - 4
	if contentWidth < 40 {
		contentWidth = 40
	}

	var sections []string
	sections = append(sections, m.renderStages())
	sections = append(sections, m.renderDivider(contentWidth))
	sections = append(sections, m.renderProgress())
	sections = append(sections, m.renderSpeedMetrics())
	sections = append(sections, m.renderDivider(contentWidth))
	sections = append(sections, m.renderSparkline(contentWidth))

	if detail := m.tracker.Stats().Detail; detail != "" {
		sections = append(sections, m.renderDivider(contentWidth))
		sections = append(sections, m.styles.Dim.Render(truncate(detail, contentWidth-2)))
	}

	content := strings.Join(sections, "\n")

	title := "Catalog Indexer"
	if m.catalogName != "" {
		title = fmt.Sprintf("Catalog Indexer • %s", m.catalogName)
	}
	panel := m.wrapInPanel(title, content, contentWidth)

	return panel + "\n" + m.renderStatusBar(contentWidth)
}

// renderStages renders the pipeline stage indicators.
func (m *buildModel) renderStages() string {
	currentStage := m.tracker.Stats().Stage

	stages := []struct {
		stage Stage
		name  string
	}{
		{StageFetching, "Fetch"},
		{StageKeyword, "Keyword"},
		{StageVector, "Vector"},
		{StageSaving, "Save"},
	}

	var parts []string
	for _, s := range stages {
		var icon string
		var style lipgloss.Style

		switch {
		case s.stage < currentStage:
			icon = "●"
			style = m.styles.Success
		case s.stage == currentStage:
			icon = m.spinner.View()
			style = m.styles.Active
		default:
			icon = "○"
			style = m.styles.Dim
		}

		parts = append(parts, style.Render(icon+" "+s.name))
	}

	arrow := m.styles.Dim.Render(" → ")
	return strings.Join(parts, arrow)
}

func (m *buildModel) renderProgress() string {
	stats := m.tracker.Stats()

	if stats.Total == 0 {
		return fmt.Sprintf("%s %s...\n%s",
			m.spinner.View(),
			stats.Stage.String(),
			m.styles.Dim.Render("Preparing..."))
	}

	percent := stats.Progress
	bar := m.progressBar.ViewAs(percent)
	pctStr := m.styles.Active.Render(fmt.Sprintf("%3.0f%%", percent*100))
	countLine := m.styles.Label.Render(fmt.Sprintf("%d / %d products", stats.Current, stats.Total))

	return fmt.Sprintf("%s  %s\n%s", bar, pctStr, countLine)
}

func (m *buildModel) renderSpeedMetrics() string {
	stats := m.tracker.Stats()

	var parts []string

	speedStr := fmt.Sprintf("Speed: %.0f/s", stats.Speed.Current)
	if stats.Speed.Avg > 0 {
		speedStr += fmt.Sprintf(" (avg: %.0f, peak: %.0f)", stats.Speed.Avg, stats.Speed.Peak)
	}
	parts = append(parts, m.styles.Speed.Render(speedStr))

	if e := stats.ETA; e > 0 {
		parts = append(parts, m.styles.Label.Render(fmt.Sprintf("ETA: %s", formatDuration(e))))
	}

	separator := m.styles.Dim.Render("  •  ")
	return strings.Join(parts, separator)
}

func (m *buildModel) renderSparkline(width int) string {
	sparkWidth := width - 10
	if sparkWidth < 10 {
		sparkWidth = 10
	}

	spark := m.tracker.RenderSparkline(sparkWidth)
	label := m.styles.Dim.Render("throughput ─")

	return m.styles.Sparkline.Render(spark) + " " + label
}

func (m *buildModel) renderDivider(width int) string {
	return m.styles.Border.Render(strings.Repeat("─", width))
}

func (m *buildModel) wrapInPanel(title, content string, width int) string {
	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorDarkGray)).
		Padding(0, 1).
		Width(width)

	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Header.Render(title),
		panel.Render(content),
	)
}

func (m *buildModel) renderStatusBar(width int) string {
	stats := m.tracker.Stats()
	var parts []string

	if stats.WarnCount > 0 {
		parts = append(parts, m.styles.Warning.Render(fmt.Sprintf("⚠ %d warnings", stats.WarnCount)))
	}
	if stats.ErrorCount > 0 {
		parts = append(parts, m.styles.Error.Render(fmt.Sprintf("✗ %d errors", stats.ErrorCount)))
	}

	if len(parts) == 0 {
		return m.styles.Dim.Render("q to quit")
	}

	separator := m.styles.Dim.Render("  │  ")
	return strings.Join(parts, separator) + m.styles.Dim.Render("  │  q to quit")
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		if secs == 0 {
			return fmt.Sprintf("%dm", mins)
		}
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	h := int(d.Hours())
	mins := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", h, mins)
}

// renderComplete renders the completion summary panel.
func (m *buildModel) renderComplete() string {
	contentWidth := m.width - 4
	if contentWidth < 40 {
		contentWidth = 40
	}

	var lines []string

	lines = append(lines, m.styles.Success.Render("✓ Indexing Complete"))
	lines = append(lines, "")

	productsLabel := m.styles.Label.Render("Products:")
	categoriesLabel := m.styles.Label.Render("Categories:")
	durationLabel := m.styles.Label.Render("Duration:")

	lines = append(lines, fmt.Sprintf("%s   %s", productsLabel, m.styles.Active.Render(fmt.Sprintf("%d", m.stats.Products))))
	lines = append(lines, fmt.Sprintf("%s %s", categoriesLabel, m.styles.Active.Render(fmt.Sprintf("%d", m.stats.Categories))))
	lines = append(lines, fmt.Sprintf("%s   %s", durationLabel, m.styles.Active.Render(formatDuration(m.stats.Duration))))

	speedStats := m.tracker.SpeedStats()
	if speedStats.Avg > 0 {
		speedLabel := m.styles.Label.Render("Avg Speed:")
		lines = append(lines, fmt.Sprintf("%s %s", speedLabel, m.styles.Speed.Render(fmt.Sprintf("%.0f products/sec", speedStats.Avg))))
	}

	if m.stats.Errors > 0 || m.stats.Warnings > 0 {
		lines = append(lines, "")
		if m.stats.Errors > 0 {
			lines = append(lines, m.styles.Error.Render(fmt.Sprintf("✗ %d errors", m.stats.Errors)))
		}
		if m.stats.Warnings > 0 {
			lines = append(lines, m.styles.Warning.Render(fmt.Sprintf("⚠ %d warnings", m.stats.Warnings)))
		}
	}

	content := strings.Join(lines, "\n")

	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorTeal)).
		Padding(1, 2).
		Width(contentWidth)

	return panel.Render(content) + "\n"
}

// truncate shortens a string to maxLen, keeping the tail.
func truncate(s string, maxLen int) string {
	if s == "" || len(s) <= maxLen {
		return s
	}
	if maxLen < 4 {
		return "..."
	}
	return "..." + s[len(s)-maxLen+3:]
}

var _ Renderer = (*TUIRenderer)(nil)
