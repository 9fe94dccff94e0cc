package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/nickcecere/docrag/internal/indexer"
	"github.com/nickcecere/docrag/internal/registry"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"message": "Welcome to the docrag API. POST a document to /api/upload, then query it with /api/query.",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	provider, model, host := s.cfg.LLMEndpoint()

	vectorstores, err := filepath.Abs(s.stores.Root())
	if err != nil {
		vectorstores = s.stores.Root()
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"message":           "RAG API is healthy",
		"vectorstores_dir":  vectorstores,
		"llm_provider":      provider,
		"llm_model":         model,
		"llm_host":          host,
		"cached_retrievers": s.stores.CachedRetrievers(),
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	up, err := s.receiveUpload(w, r)
	if err != nil {
		s.respondError(w, err)
		return
	}

	res, err := s.indexer.Index(r.Context(), up.path, indexer.Options{
		Label:        up.label,
		FileName:     up.fileName,
		Base:         up.base,
		ChunkSize:    up.chunkSize,
		ChunkOverlap: &up.chunkOverlap,
	})
	if err != nil {
		up.remove()
		s.respondError(w, indexingError(err))
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":     "indexed",
		"index_id":   res.IndexID,
		"documents":  res.Documents,
		"chunks":     res.Chunks,
		"store_path": res.StorePath,
	})
}

func (s *Server) handleAppendDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	up, err := s.receiveUpload(w, r)
	if err != nil {
		s.respondError(w, err)
		return
	}

	res, err := s.indexer.Append(r.Context(), id, up.path, indexer.Options{
		ChunkSize:    up.chunkSize,
		ChunkOverlap: &up.chunkOverlap,
	})
	if err != nil {
		up.remove()
		s.respondError(w, indexingError(err))
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":     "indexed",
		"index_id":   res.IndexID,
		"documents":  res.Documents,
		"chunks":     res.Chunks,
		"store_path": res.StorePath,
	})
}

type queryRequest struct {
	Query          string `json:"query"`
	IndexID        string `json:"index_id"`
	K              *int   `json:"k"`
	IncludeSources *bool  `json:"include_sources"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" || req.IndexID == "" {
		s.respondDetail(w, http.StatusBadRequest, "query and index_id are required")
		return
	}

	k := s.cfg.Retrieval.DefaultK
	if req.K != nil {
		k = *req.K
	}
	includeSources := true
	if req.IncludeSources != nil {
		includeSources = *req.IncludeSources
	}

	storeName, err := s.indexer.Resolve(req.IndexID)
	if err != nil {
		s.respondError(w, err)
		return
	}

	out, err := s.pipeline.Answer(r.Context(), req.Query, storeName, k, includeSources)
	if err != nil {
		log.Error("Query failed", "index_id", req.IndexID, "error", err)
		s.respondError(w, answerError(err))
		return
	}

	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleStreamQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	indexID, query := q.Get("index_id"), q.Get("q")
	if indexID == "" || query == "" {
		s.respondDetail(w, http.StatusBadRequest, "index_id and q are required")
		return
	}

	k := s.cfg.Retrieval.DefaultK
	if raw := q.Get("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.respondDetail(w, http.StatusBadRequest, fmt.Sprintf("invalid k: %q", raw))
			return
		}
		k = n
	}

	storeName, err := s.indexer.Resolve(indexID)
	if err != nil {
		s.respondError(w, err)
		return
	}

	stream, err := s.pipeline.StreamAnswer(r.Context(), query, storeName, k)
	if err != nil {
		log.Error("Stream query failed", "index_id", indexID, "error", err)
		s.respondError(w, answerError(err))
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	for stream.Next() {
		if _, err := io.WriteString(w, stream.Text()); err != nil {
			log.Debug("Client went away during stream", "index_id", indexID, "error", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	if err := stream.Err(); err != nil {
		log.Error("Stream failed", "index_id", indexID, "error", err)
		fmt.Fprintf(w, "\n\n[ERROR] Could not process query: %v\n", cause(err))
		if flusher != nil {
			flusher.Flush()
		}
	}
}

type indexView struct {
	registry.Index
	StorePresent bool `json:"store_present"`
}

func (s *Server) handleListIndexes(w http.ResponseWriter, r *http.Request) {
	list, err := s.registry.List()
	if err != nil {
		s.respondError(w, err)
		return
	}

	out := make([]indexView, len(list))
	for i, ix := range list {
		present, err := s.stores.Exists(ix.StoreName)
		if err != nil {
			log.Warn("Failed to check store", "store", ix.StoreName, "error", err)
		}
		out[i] = indexView{Index: ix, StorePresent: present}
	}

	s.respondJSON(w, http.StatusOK, map[string]any{"indexes": out})
}

func (s *Server) handleDeleteIndex(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.indexer.Delete(id); err != nil {
		s.respondError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted", "index_id": id})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Debug("Failed to write response", "error", err)
	}
}

func (s *Server) respondDetail(w http.ResponseWriter, status int, detail string) {
	s.respondJSON(w, status, map[string]string{"detail": detail})
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	s.respondDetail(w, statusFor(err), detailFor(err))
}
