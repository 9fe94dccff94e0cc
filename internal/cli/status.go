package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/docrag/internal/config"
	"github.com/nickcecere/docrag/internal/errs"
	"github.com/nickcecere/docrag/internal/indexer"
	"github.com/nickcecere/docrag/internal/registry"
	"github.com/nickcecere/docrag/internal/store"
	"github.com/nickcecere/docrag/internal/ui"
)

var statusOrphans bool

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status [index_id]",
	Short: "Show registered indexes and their stores",
	Long: `Display the registered indexes with their label, source file, chunk
count and whether the backing vector store is still present.

Examples:
  # Show every index
  docrag status

  # Show one index
  docrag status idx_3f2a...

  # Also list stores no index id points at
  docrag status --orphans`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusOrphans, "orphans", false, "list stores that are not registered")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	indexes, err := a.registry.List()
	if err != nil {
		return fmt.Errorf("failed to read registry: %w", err)
	}
	if len(args) > 0 {
		indexes = filterIndexes(indexes, args[0])
		if len(indexes) == 0 {
			return errs.Errorf(errs.KindNotFound, "cli.status", args[0], "unknown index id %s", args[0])
		}
	}

	if len(indexes) == 0 {
		fmt.Println("No indexes registered.")
		fmt.Println()
		fmt.Println("Run 'docrag index <path>' to create one.")
	} else {
		fmt.Println(ui.Header.Render("Index Status"))
		fmt.Println()
	}

	ctx := context.Background()
	for i, ix := range indexes {
		printIndex(ctx, a.stores, ix)
		if i < len(indexes)-1 {
			fmt.Println()
		}
	}

	if len(indexes) > 1 {
		fmt.Println()
		fmt.Println(ui.Dim.Render(fmt.Sprintf("Total: %d indexes", len(indexes))))
	}

	if statusOrphans {
		if err := printOrphans(a.stores, indexes); err != nil {
			return err
		}
	}

	fmt.Println()
	fmt.Println(ui.Dim.Render("Configuration:"))
	fmt.Printf("  Vector stores: %s\n", cfg.Storage.VectorstoreDir)
	fmt.Printf("  Registry:      %s\n", a.registry.Path())
	fmt.Printf("  Embeddings:    %s (%s)\n", cfg.Embeddings.Provider, embeddingModel(cfg))

	return nil
}

func filterIndexes(indexes []registry.Index, id string) []registry.Index {
	for _, ix := range indexes {
		if ix.ID == id {
			return []registry.Index{ix}
		}
	}
	return nil
}

func printIndex(ctx context.Context, stores *store.Manager, ix registry.Index) {
	fmt.Printf("%s %s\n", ui.Highlight.Render("Index:"), ui.IndexID.Render(ix.ID))

	if label := ix.Meta[indexer.MetaLabel]; label != "" {
		fmt.Printf("  %s %s\n", ui.Dim.Render("Label:"), label)
	}
	if name := ix.Meta[indexer.MetaFileName]; name != "" {
		fmt.Printf("  %s %s\n", ui.Dim.Render("Source:"), ui.FilePath.Render(name))
	}
	fmt.Printf("  %s %s\n", ui.Dim.Render("Store:"), ix.StoreName)
	fmt.Printf("  %s %s\n", ui.Dim.Render("Created:"), formatTime(ix.CreatedAt))

	stats, err := stores.Stats(ctx, ix.StoreName)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			fmt.Printf("  %s %s\n", ui.Dim.Render("Health:"), ui.Warning.Render("store missing"))
			return
		}
		log.Warn("Failed to get stats", "store", ix.StoreName, "error", err)
		fmt.Printf("  %s %s\n", ui.Dim.Render("Health:"), ui.Error.Render("unreadable"))
		return
	}

	fmt.Printf("  %s %s (%s, %d dims, %s)\n",
		ui.Dim.Render("Model:"),
		stats.EmbeddingModel,
		stats.EmbeddingProvider,
		stats.EmbeddingDimensions,
		stats.Metric,
	)
	fmt.Printf("  %s %d chunks, %s\n",
		ui.Dim.Render("Indexed:"),
		stats.ChunkCount,
		ui.FormatBytes(stats.SizeBytes),
	)
	fmt.Printf("  %s %s\n", ui.Dim.Render("Updated:"), formatTime(stats.UpdatedAt))
	fmt.Printf("  %s %s\n", ui.Dim.Render("Health:"), healthStatus(stats))
}

// printOrphans lists store directories that no registry entry references.
func printOrphans(stores *store.Manager, indexes []registry.Index) error {
	names, err := stores.List()
	if err != nil {
		return fmt.Errorf("failed to list stores: %w", err)
	}

	registered := make(map[string]bool, len(indexes))
	for _, ix := range indexes {
		registered[ix.StoreName] = true
	}

	var orphans []string
	for _, name := range names {
		if !registered[name] {
			orphans = append(orphans, name)
		}
	}
	sort.Strings(orphans)

	fmt.Println()
	if len(orphans) == 0 {
		fmt.Println(ui.Dim.Render("No unregistered stores."))
		return nil
	}
	fmt.Println(ui.Warning.Render(fmt.Sprintf("Unregistered stores (%d):", len(orphans))))
	for _, name := range orphans {
		fmt.Printf("  %s\n", stores.Path(name))
	}
	return nil
}

// formatTime formats a time for display.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	t = t.Local()

	// If today, show time only
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return "today at " + t.Format("15:04")
	}

	// If this year, omit year
	if t.Year() == now.Year() {
		return t.Format("Jan 2 at 15:04")
	}

	return t.Format("Jan 2, 2006 at 15:04")
}

// healthStatus returns a health indicator based on stats.
func healthStatus(stats *store.Stats) string {
	if stats.ChunkCount == 0 {
		return ui.Warning.Render("empty (no chunks)")
	}
	return ui.Success.Render("healthy")
}
