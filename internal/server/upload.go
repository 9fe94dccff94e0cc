package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/nickcecere/docrag/internal/document"
	"github.com/nickcecere/docrag/internal/errs"
	"github.com/nickcecere/docrag/internal/indexer"
)

// maxMemory is how much of a multipart form is kept in memory before
// spilling to temp files.
const maxMemory = 32 << 20

// upload is a document saved from a multipart request.
type upload struct {
	path     string
	base     string
	fileName string
	label    string

	chunkSize    int
	chunkOverlap int
}

// remove deletes the saved file.
func (u *upload) remove() {
	if err := os.Remove(u.path); err != nil && !os.IsNotExist(err) {
		log.Warn("Failed to remove upload", "path", u.path, "error", err)
	}
}

// receiveUpload validates the multipart form and saves its file under a
// random name in the upload directory.
func (s *Server) receiveUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	const op = "server.upload"

	limit := s.cfg.Indexing.MaxUploadSize
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &httpError{
				status: http.StatusRequestEntityTooLarge,
				detail: fmt.Sprintf("upload exceeds %d bytes", limit),
				err:    err,
			}
		}
		return nil, errs.E(errs.KindValidation, op, "", fmt.Errorf("invalid multipart form: %w", err))
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, errs.Errorf(errs.KindValidation, op, "", "file is required")
	}
	defer file.Close()

	up := &upload{
		fileName: filepath.Base(header.Filename),
		label:    r.FormValue("label"),
	}
	if up.label == "" {
		up.label = indexer.DefaultLabel
	}

	if up.chunkSize, err = formInt(r, "chunk_size", s.cfg.Indexing.ChunkSize); err != nil {
		return nil, errs.E(errs.KindValidation, op, "", err)
	}
	if up.chunkOverlap, err = formInt(r, "chunk_overlap", s.cfg.Indexing.ChunkOverlap); err != nil {
		return nil, errs.E(errs.KindValidation, op, "", err)
	}
	if up.chunkSize <= 0 || up.chunkOverlap < 0 || up.chunkOverlap >= up.chunkSize {
		return nil, errs.Errorf(errs.KindValidation, op, "",
			"chunk_size must be positive and chunk_overlap in [0, chunk_size), got %d and %d", up.chunkSize, up.chunkOverlap)
	}

	if !document.IsSupported(up.fileName) {
		return nil, &httpError{
			status: http.StatusBadRequest,
			detail: fmt.Sprintf("Could not load document: unsupported file type %q", filepath.Ext(up.fileName)),
		}
	}

	dir := s.cfg.Storage.UploadDir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errs.E(errs.KindStorage, op, dir, fmt.Errorf("failed to create upload directory: %w", err))
	}

	up.base = strings.ReplaceAll(uuid.NewString(), "-", "")
	up.path = filepath.Join(dir, up.base+strings.ToLower(filepath.Ext(up.fileName)))

	out, err := os.OpenFile(up.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, errs.E(errs.KindStorage, op, up.path, fmt.Errorf("failed to create upload: %w", err))
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		up.remove()
		return nil, errs.E(errs.KindStorage, op, up.path, fmt.Errorf("failed to save upload: %w", err))
	}
	if err := out.Close(); err != nil {
		up.remove()
		return nil, errs.E(errs.KindStorage, op, up.path, fmt.Errorf("failed to save upload: %w", err))
	}

	log.Debug("Saved upload", "file", up.fileName, "path", up.path, "size", header.Size)
	return up, nil
}

func formInt(r *http.Request, key string, def int) (int, error) {
	raw := r.FormValue(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return n, nil
}
