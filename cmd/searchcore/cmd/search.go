package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/quickcart/searchcore/internal/catalog"
	"github.com/quickcart/searchcore/internal/lexical"
	"github.com/quickcart/searchcore/internal/orchestrator"
	"github.com/quickcart/searchcore/internal/telemetry"
	"github.com/quickcart/searchcore/internal/ui"
	"github.com/quickcart/searchcore/internal/vector"
)

func newSearchCmd() *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed catalog",
		Long: `Runs a full hybrid search over the stored catalog snapshot: keyword
BM25 candidates reranked by semantic vector similarity.

Requires 'searchcore index' to have been run first.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), limit, jsonOutput)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum results (0 uses the configured default)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	return cmd
}

// searchResultJSON is the machine-readable result shape.
type searchResultJSON struct {
	Query   string            `json:"query"`
	Total   int               `json:"total"`
	Results []productJSON     `json:"results"`
	Took    telemetryDuration `json:"took_ms"`
}

type productJSON struct {
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory"`
	ProductType string   `json:"product_type"`
	Price       float64  `json:"price"`
	PromoPrice  *float64 `json:"promo_price,omitempty"`
	SoldByUnit  bool     `json:"sold_by_unit"`
}

// telemetryDuration marshals a duration as whole milliseconds.
type telemetryDuration time.Duration

func (d telemetryDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).Milliseconds())
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, limit int, jsonOutput bool) error {
	env, err := openEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	snap, err := env.store.Peek()
	if err != nil {
		return fmt.Errorf("no catalog snapshot found; run 'searchcore index' first: %w", err)
	}

	if limit <= 0 {
		limit = env.cfg.Search.MaxResults
	}

	lex, err := lexical.New(lexical.Config{ResultCacheSize: env.cfg.Search.ResultCacheSize})
	if err != nil {
		return fmt.Errorf("failed to create keyword index: %w", err)
	}
	defer func() { _ = lex.Close() }()
	if err := lex.Rebuild(ctx, snap.Products); err != nil {
		return fmt.Errorf("failed to build keyword index: %w", err)
	}

	coord := newCoordinator(env.cfg)
	if err := coord.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to start compute worker: %w", err)
	}
	defer coord.Dispose()

	orch := orchestrator.New(orchestrator.Config{
		Debounce:      env.cfg.Orchestrator.DebounceInterval,
		Throttle:      env.cfg.Orchestrator.ThrottleInterval,
		MaxResults:    limit,
		IndexFilename: env.cfg.Index.Filename,
		Persist:       env.cfg.Index.Persist,
	}, lex, coord, coord, &orchestrator.TemporaryReranker{Indexes: coord}, slog.Default())
	defer orch.Close()

	if err := orch.SetCatalog(ctx, snap.Products, snapshotGeneration(snap)); err != nil {
		return fmt.Errorf("failed to prepare indexes: %w", err)
	}

	start := time.Now()
	result, err := orch.SearchAll(ctx, query)
	latency := time.Since(start)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	recordSearch(env, query, latency, result.Total, coord.IndexReady(vector.ContextGlobal))

	if jsonOutput {
		return printSearchJSON(cmd, query, result.Products, result.Total, latency)
	}
	printSearchText(cmd, query, result.Products, result.Total, latency)
	return nil
}

// recordSearch persists one telemetry event. Telemetry failures never fail
// the search; they are logged and dropped.
func recordSearch(env *environment, query string, latency time.Duration, total int, semanticReady bool) {
	if !env.cfg.Telemetry.Enabled {
		return
	}

	store, err := telemetry.OpenSQLiteMetricsStore(env.metricsDBPath())
	if err != nil {
		slog.Warn("telemetry store unavailable", slog.String("error", err.Error()))
		return
	}

	metrics := telemetry.NewQueryMetrics(store, telemetry.QueryMetricsConfig{
		FlushInterval: env.cfg.Telemetry.FlushInterval,
	})
	qt := telemetry.QueryTypeLexical
	if semanticReady {
		qt = telemetry.QueryTypeMixed
	}
	metrics.Record(telemetry.QueryEvent{
		Query:       query,
		QueryType:   qt,
		ResultCount: total,
		Latency:     latency,
		Timestamp:   time.Now(),
	})
	if err := metrics.Close(); err != nil {
		slog.Warn("telemetry flush failed", slog.String("error", err.Error()))
	}
}

func printSearchJSON(cmd *cobra.Command, query string, products []catalog.Product, total int, latency time.Duration) error {
	out := searchResultJSON{
		Query:   query,
		Total:   total,
		Results: make([]productJSON, 0, len(products)),
		Took:    telemetryDuration(latency),
	}
	for _, p := range products {
		out.Results = append(out.Results, productJSON{
			Name:        p.Name,
			Category:    p.Category,
			Subcategory: p.Subcategory,
			ProductType: p.ProductType,
			Price:       p.Price,
			PromoPrice:  p.PromoPrice,
			SoldByUnit:  p.SoldByUnit,
		})
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printSearchText(cmd *cobra.Command, query string, products []catalog.Product, total int, latency time.Duration) {
	styles := ui.GetStyles(noColor || !ui.IsTTY(cmd.OutOrStdout()))
	w := cmd.OutOrStdout()

	if len(products) == 0 {
		fmt.Fprintf(w, "%s\n", styles.Dim.Render(fmt.Sprintf("No results for %q", query)))
		return
	}

	fmt.Fprintf(w, "%s\n\n",
		styles.Header.Render(fmt.Sprintf("%d results for %q (%s)", total, query, latency.Round(time.Millisecond))))

	for i, p := range products {
		price := fmt.Sprintf("$%.2f", p.Price)
		if p.PromoPrice != nil {
			price = fmt.Sprintf("$%.2f (was $%.2f)", *p.PromoPrice, p.Price)
		}
		unit := ""
		if p.SoldByUnit {
			unit = " / unit"
		}
		fmt.Fprintf(w, "%2d. %s  %s%s\n", i+1, styles.Active.Render(p.Name), styles.Success.Render(price), unit)
		fmt.Fprintf(w, "    %s\n", styles.Dim.Render(fmt.Sprintf("%s › %s › %s", p.Category, p.Subcategory, p.ProductType)))
	}
}
