package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// StatusInfo contains catalog and index health information.
type StatusInfo struct {
	CatalogName   string    `json:"catalog_name"`
	TotalProducts int       `json:"total_products"`
	Categories    int       `json:"categories"`
	Brands        int       `json:"brands"`
	LastIndexed   time.Time `json:"last_indexed"`

	// storage sizes in bytes
	SnapshotSize int64 `json:"snapshot_size"`
	VectorSize   int64 `json:"vector_size"`
	MetricsSize  int64 `json:"metrics_size"`
	TotalSize    int64 `json:"total_size"`

	ModelName    string `json:"model_name,omitempty"`
	Dimensions   int    `json:"dimensions,omitempty"`
	WorkerStatus string `json:"worker_status"` // "ready", "stopped", "error"
}

// StatusRenderer displays catalog index status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:    out,
		styles: GetStyles(noColor),
	}
}

// Render displays status info to the terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Catalog Status: "+info.CatalogName))

	_, _ = fmt.Fprintf(r.out, "  Products:     %d\n", info.TotalProducts)
	_, _ = fmt.Fprintf(r.out, "  Categories:   %d\n", info.Categories)
	if info.Brands > 0 {
		_, _ = fmt.Fprintf(r.out, "  Brands:       %d\n", info.Brands)
	}
	if !info.LastIndexed.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Last indexed: %s\n", formatTime(info.LastIndexed))
	}
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Storage:")
	_, _ = fmt.Fprintf(r.out, "    Snapshot: %s\n", FormatBytes(info.SnapshotSize))
	_, _ = fmt.Fprintf(r.out, "    Vectors:  %s\n", FormatBytes(info.VectorSize))
	if info.MetricsSize > 0 {
		_, _ = fmt.Fprintf(r.out, "    Metrics:  %s\n", FormatBytes(info.MetricsSize))
	}
	_, _ = fmt.Fprintf(r.out, "    Total:    %s\n", FormatBytes(info.TotalSize))
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Worker:")
	_, _ = fmt.Fprintf(r.out, "    Status: %s\n", r.renderStatus(info.WorkerStatus))
	if info.ModelName != "" {
		_, _ = fmt.Fprintf(r.out, "    Model:  %s (%d dims)\n", info.ModelName, info.Dimensions)
	}

	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "ready", "running":
		return r.styles.Success.Render(status)
	case "offline", "stopped":
		return r.styles.Warning.Render(status)
	case "error":
		return r.styles.Error.Render(status)
	default:
		return status
	}
}

// formatTime formats a time as a relative age for display.
func formatTime(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats a byte count in human-readable units.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
