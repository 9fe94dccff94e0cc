package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/docrag/internal/config"
	"github.com/nickcecere/docrag/internal/indexer"
	"github.com/nickcecere/docrag/internal/ui"
)

var (
	indexLabel        string
	indexAppend       string
	indexChunkSize    int
	indexChunkOverlap int
)

// indexCmd represents the index command
var indexCmd = &cobra.Command{
	Use:   "index <path>",
	Short: "Index a document or a directory of documents",
	Long: `Index a PDF, DOCX, Markdown or text file, or every supported document
under a directory, into a new vector store and register it under a fresh
index id.

This command will:
1. Load the documents (directories honour .gitignore and the ignore config)
2. Split them into overlapping chunks
3. Embed the chunks and write them to a new vector store
4. Register the store and print its index id

Examples:
  # Index a single document
  docrag index ./handbook.pdf --label handbook

  # Index a directory of notes
  docrag index ./notes

  # Add a document to an existing index
  docrag index ./addendum.docx --append idx_3f2a...`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVarP(&indexLabel, "label", "l", indexer.DefaultLabel, "label used in the store name")
	indexCmd.Flags().StringVar(&indexAppend, "append", "", "add to an existing index id instead of creating one")
	indexCmd.Flags().IntVar(&indexChunkSize, "chunk-size", 0, "chunk size in characters (overrides indexing.chunk_size)")
	indexCmd.Flags().IntVar(&indexChunkOverlap, "chunk-overlap", 0, "chunk overlap in characters (overrides indexing.chunk_overlap)")
}

func runIndex(cmd *cobra.Command, args []string) error {
	absPath, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	cfg := config.Get()
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := signalContext()
	defer cancel()

	lastUpdate := time.Now()
	opts := indexer.Options{
		Label:        indexLabel,
		ChunkSize: indexChunkSize,
		OnProgress: func(p indexer.Progress) {
			// Throttle updates to every 100ms
			if time.Since(lastUpdate) < 100*time.Millisecond {
				return
			}
			lastUpdate = time.Now()

			fmt.Printf("\r\033[K")
			if p.TotalFiles > 0 {
				pct := float64(p.ProcessedFiles) / float64(p.TotalFiles) * 100
				fmt.Printf("Loading: %d/%d files (%.0f%%) | Chunks: %d | %s",
					p.ProcessedFiles, p.TotalFiles, pct, p.TotalChunks,
					truncatePath(p.CurrentFile, 40))
			}
		},
	}

	if cmd.Flags().Changed("chunk-overlap") {
		opts.ChunkOverlap = &indexChunkOverlap
	}

	if indexAppend != "" {
		fmt.Println(ui.Header.Render("Appending to " + indexAppend))
	} else {
		fmt.Println(ui.Header.Render("Indexing " + filepath.Base(absPath)))
	}
	fmt.Printf("Path: %s\n", absPath)
	fmt.Printf("Embeddings: %s (%s)\n", cfg.Embeddings.Provider, embeddingModel(cfg))
	fmt.Println()

	log.Debug("Starting index", "path", absPath, "label", indexLabel, "append", indexAppend)
	startTime := time.Now()

	var res *indexer.Result
	if indexAppend != "" {
		res, err = a.indexer.Append(ctx, indexAppend, absPath, opts)
	} else {
		res, err = a.indexer.Index(ctx, absPath, opts)
	}

	// Clear progress line
	fmt.Printf("\r\033[K")

	if err != nil {
		if ctx.Err() != nil {
			fmt.Println(ui.Warning.Render("Indexing cancelled"))
			return nil
		}
		return fmt.Errorf("indexing failed: %w", err)
	}

	p := a.indexer.Progress()
	fmt.Println(ui.Success.Render("Indexing complete!"))
	fmt.Println()
	fmt.Printf("  Index ID:  %s\n", ui.IndexID.Render(res.IndexID))
	fmt.Printf("  Store:     %s\n", res.StorePath)
	fmt.Printf("  Documents: %d\n", res.Documents)
	fmt.Printf("  Chunks:    %d\n", res.Chunks)
	if p.SkippedFiles > 0 || p.Errors > 0 {
		fmt.Printf("  Skipped:   %d files, %d errors\n", p.SkippedFiles, p.Errors)
	}
	fmt.Printf("  Duration:  %s\n", time.Since(startTime).Round(time.Millisecond))

	return nil
}

func embeddingModel(cfg *config.Config) string {
	if cfg.Embeddings.Provider == "openai" {
		return cfg.Embeddings.OpenAI.Model
	}
	return cfg.Embeddings.Ollama.Model
}

// truncatePath shortens a path for display.
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	return "..." + path[len(path)-maxLen+3:]
}
