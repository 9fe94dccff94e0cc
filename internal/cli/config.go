package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nickcecere/docrag/internal/config"
	"github.com/nickcecere/docrag/internal/ui"
)

var configShowPath bool

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration",
	Long: `Display current configuration settings and config file locations.

Examples:
  # Show current configuration
  docrag config

  # Show config file paths
  docrag config --path`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configShowPath, "path", false, "show config file paths")
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	if configShowPath {
		fmt.Println(ui.SectionTitle.Render("Configuration Paths"))
		fmt.Println()
		fmt.Printf("Global config:  %s\n", config.GlobalConfigPath())
		fmt.Printf("Local config:   .docragrc.yaml (searched from cwd upward)\n")
		fmt.Printf("Active config:  %s\n", orNone(config.ConfigFilePath()))
		fmt.Printf("Vector stores:  %s\n", cfg.Storage.VectorstoreDir)
		fmt.Printf("Registry:       %s\n", cfg.Storage.RegistryPath)
		fmt.Printf("Uploads:        %s\n", cfg.Storage.UploadDir)
		return nil
	}

	fmt.Println(ui.SectionTitle.Render("Current Configuration"))
	fmt.Println()

	fmt.Println(ui.Bold.Render("Embeddings:"))
	fmt.Printf("  Provider: %s\n", cfg.Embeddings.Provider)
	fmt.Printf("  Normalize: %t\n", cfg.Embeddings.Normalize)
	fmt.Printf("  Ollama URL: %s\n", cfg.Embeddings.Ollama.URL)
	fmt.Printf("  Ollama Model: %s\n", cfg.Embeddings.Ollama.Model)
	fmt.Printf("  OpenAI Model: %s\n", cfg.Embeddings.OpenAI.Model)
	if cfg.Embeddings.OpenAI.BaseURL != "" {
		fmt.Printf("  OpenAI Base URL: %s\n", cfg.Embeddings.OpenAI.BaseURL)
	}
	fmt.Println()

	provider, model, host := cfg.LLMEndpoint()
	fmt.Println(ui.Bold.Render("LLM:"))
	fmt.Printf("  Provider: %s\n", provider)
	fmt.Printf("  Model: %s\n", model)
	fmt.Printf("  Host: %s\n", host)
	fmt.Printf("  Temperature: %g\n", cfg.LLM.Temperature)
	fmt.Printf("  Max Tokens: %d\n", cfg.LLM.MaxTokens)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Indexing:"))
	fmt.Printf("  Chunk Size: %d\n", cfg.Indexing.ChunkSize)
	fmt.Printf("  Chunk Overlap: %d\n", cfg.Indexing.ChunkOverlap)
	fmt.Printf("  Batch Size: %d\n", cfg.Indexing.BatchSize)
	fmt.Printf("  Max Upload Size: %s\n", ui.FormatBytes(cfg.Indexing.MaxUploadSize))
	fmt.Println()

	fmt.Println(ui.Bold.Render("Retrieval:"))
	fmt.Printf("  Default k: %d\n", cfg.Retrieval.DefaultK)
	fmt.Printf("  Cache Size: %d\n", cfg.Retrieval.CacheSize)
	fmt.Printf("  MMR fetch_k: %d\n", cfg.Retrieval.FetchK)
	fmt.Printf("  MMR lambda: %g\n", cfg.Retrieval.MMRLambda)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Server:"))
	fmt.Printf("  Address: %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Timeouts:"))
	fmt.Printf("  Embedding: %s\n", cfg.Timeouts.Embedding)
	fmt.Printf("  Storage: %s\n", cfg.Timeouts.Storage)
	fmt.Printf("  Generation: %s\n", cfg.Timeouts.Generation)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Storage:"))
	fmt.Printf("  Vector stores: %s\n", cfg.Storage.VectorstoreDir)
	fmt.Printf("  Registry: %s\n", cfg.Storage.RegistryPath)
	fmt.Printf("  Uploads: %s\n", cfg.Storage.UploadDir)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Ignore Patterns:"))
	fmt.Printf("  %d patterns configured\n", len(cfg.Ignore))

	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(none, using defaults)"
	}
	return s
}
