package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/docrag/internal/config"
	"github.com/nickcecere/docrag/internal/embeddings"
	"github.com/nickcecere/docrag/internal/indexer"
	"github.com/nickcecere/docrag/internal/llm"
	"github.com/nickcecere/docrag/internal/rag"
	"github.com/nickcecere/docrag/internal/registry"
	"github.com/nickcecere/docrag/internal/store"
)

// app holds the services shared by the commands.
type app struct {
	cfg      *config.Config
	stores   *store.Manager
	registry *registry.Registry
	indexer  *indexer.Indexer
}

// newApp builds the storage side of docrag from cfg.
func newApp(cfg *config.Config) (*app, error) {
	emb, err := embeddings.NewService(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding service: %w", err)
	}

	stores, err := store.NewManager(cfg.Storage.VectorstoreDir, emb, store.OptionsFromConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open vector stores: %w", err)
	}

	reg := registry.New(cfg.Storage.RegistryPath)
	log.Debug("Initialized services",
		"embeddings", emb.Provider(),
		"model", emb.ModelName(),
		"vectorstores", cfg.Storage.VectorstoreDir,
		"registry", reg.Path(),
	)

	return &app{
		cfg:      cfg,
		stores:   stores,
		registry: reg,
		indexer:  indexer.New(stores, reg, cfg),
	}, nil
}

// pipeline builds the answer pipeline on top of the stores.
func (a *app) pipeline(opts rag.Options) (*rag.Pipeline, error) {
	model, err := llm.NewService(a.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM service: %w", err)
	}
	log.Debug("Initialized LLM", "provider", model.Provider(), "model", model.ModelName())
	return rag.NewPipeline(a.stores, model, opts), nil
}

func (a *app) close() {
	a.stores.Close()
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
