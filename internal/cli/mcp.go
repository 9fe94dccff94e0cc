package cli

import (
	"context"
	"errors"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/docrag/internal/config"
	"github.com/nickcecere/docrag/internal/mcp"
	"github.com/nickcecere/docrag/internal/rag"
)

// mcpCmd represents the MCP server command.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP server for AI agent integration",
	Long: `Start a Model Context Protocol (MCP) server over stdin/stdout.

The server speaks JSON-RPC 2.0 and provides tools for:
  - docrag_list_indexes: List registered indexes
  - docrag_ask: Answer a question from an index with cited sources
  - docrag_search: Retrieve the most relevant chunks of an index
  - docrag_index: Index a document or directory

This command is typically launched by an MCP client, not run directly.`,
	Args: cobra.NoArgs,
	RunE: runMcp,
}

func runMcp(cmd *cobra.Command, args []string) error {
	// stdout carries the protocol
	log.SetOutput(os.Stderr)

	cfg := config.Get()
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	pipeline, err := a.pipeline(rag.OptionsFromConfig(cfg))
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	server := mcp.NewServer(cfg, a.stores, a.registry, a.indexer, pipeline, version, os.Stdin, os.Stdout)
	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
