// Package server provides the docrag HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nickcecere/docrag/internal/config"
	"github.com/nickcecere/docrag/internal/indexer"
	"github.com/nickcecere/docrag/internal/rag"
	"github.com/nickcecere/docrag/internal/registry"
	"github.com/nickcecere/docrag/internal/store"
)

// Server is the HTTP server for the docrag API.
type Server struct {
	cfg      *config.Config
	stores   *store.Manager
	registry *registry.Registry
	indexer  *indexer.Indexer
	pipeline *rag.Pipeline
	server   *http.Server
}

// New creates a server with the given dependencies.
func New(
	cfg *config.Config,
	stores *store.Manager,
	reg *registry.Registry,
	idx *indexer.Indexer,
	pipeline *rag.Pipeline,
) *Server {
	s := &Server{
		cfg:      cfg,
		stores:   stores,
		registry: reg,
		indexer:  idx,
		pipeline: pipeline,
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(allowCORS)

	r.Get("/", s.handleRoot)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/upload", s.handleUpload)
		r.Post("/query", s.handleQuery)
		r.Post("/stream_query", s.handleStreamQuery)

		r.Get("/indexes", s.handleListIndexes)
		r.Post("/indexes/{id}/documents", s.handleAppendDocument)
		r.Delete("/indexes/{id}", s.handleDeleteIndex)
	})

	return r
}

// Start serves the API and blocks until the server stops.
func (s *Server) Start() error {
	log.Info("Starting server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
