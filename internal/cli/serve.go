package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/docrag/internal/config"
	"github.com/nickcecere/docrag/internal/rag"
	"github.com/nickcecere/docrag/internal/server"
)

const shutdownTimeout = 15 * time.Second

var (
	serveHost string
	servePort int
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve the docrag HTTP API.

Endpoints:
  GET    /api/health
  POST   /api/upload
  POST   /api/query
  POST   /api/stream_query
  GET    /api/indexes
  POST   /api/indexes/{id}/documents
  DELETE /api/indexes/{id}

Examples:
  # Listen on the configured address (default 127.0.0.1:8000)
  docrag serve

  # Listen on all interfaces
  docrag serve --host 0.0.0.0 --port 9000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "address to listen on (overrides server.host)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "port to listen on (overrides server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort > 0 {
		cfg.Server.Port = servePort
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	pipeline, err := a.pipeline(rag.OptionsFromConfig(cfg))
	if err != nil {
		return err
	}

	srv := server.New(cfg, a.stores, a.registry, a.indexer, pipeline)

	ctx, stop := signalContext()
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	return <-errCh
}
