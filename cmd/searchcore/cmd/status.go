package cmd

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/quickcart/searchcore/internal/embed"
	"github.com/quickcart/searchcore/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show catalog and index status",
		Long: `Shows the stored catalog snapshot, index sizes, and the embedding
model without contacting the catalog service.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, jsonOutput bool) error {
	env, err := openEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	info, err := collectStatus(env)
	if err != nil {
		return err
	}

	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), noColor || plainOutput)
	if jsonOutput {
		return renderer.RenderJSON(info)
	}
	return renderer.Render(info)
}

// collectStatus reads everything from local storage; it never triggers a
// snapshot rebuild or a catalog fetch.
func collectStatus(env *environment) (ui.StatusInfo, error) {
	info := ui.StatusInfo{
		CatalogName:  env.cfg.Catalog.BaseURL,
		WorkerStatus: "stopped",
	}

	snap, err := env.store.Peek()
	if err != nil {
		return info, fmt.Errorf("no catalog snapshot found; run 'searchcore index' first: %w", err)
	}

	info.TotalProducts = len(snap.Products)
	info.Categories = len(snap.Tables.Categories)
	info.Brands = len(snap.Tables.Brands)
	info.LastIndexed = snap.CreatedAt

	info.SnapshotSize = dirSize(filepath.Join(env.cfg.Paths.DataDir, snapshotDirname))
	info.VectorSize = fileSize(filepath.Join(env.cfg.Paths.DataDir, env.cfg.Index.Filename))
	info.MetricsSize = fileSize(env.metricsDBPath())
	info.TotalSize = info.SnapshotSize + info.VectorSize + info.MetricsSize

	// A persisted vector index means a search can start without a rebuild.
	if info.VectorSize > 0 {
		info.WorkerStatus = "ready"
	}

	embedder := embed.NewStaticEmbedder()
	info.ModelName = embedder.ModelName()
	info.Dimensions = embedder.Dimensions()
	_ = embedder.Close()

	return info, nil
}

// fileSize returns the size of a file in bytes, or 0 if it doesn't exist.
func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return 0
	}
	return fi.Size()
}

// dirSize returns the total size of all files under a directory.
func dirSize(path string) int64 {
	var total int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		total += fi.Size()
		return nil
	})
	return total
}
