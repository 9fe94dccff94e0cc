// Package indexer turns documents into registered vector stores: it loads
// and splits files, builds or extends a store, and records the store in the
// index registry.
package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/nickcecere/docrag/internal/config"
	"github.com/nickcecere/docrag/internal/document"
	"github.com/nickcecere/docrag/internal/errs"
	"github.com/nickcecere/docrag/internal/registry"
)

// Registry metadata keys.
const (
	MetaLabel       = "label"
	MetaFileName    = "filename"
	MetaContentHash = "content_hash"
	MetaDocuments   = "documents"
	MetaChunks      = "chunks"
)

// DefaultLabel is used when no label is given.
const DefaultLabel = "default"

// Stores is the part of the store manager the indexer writes through.
// *store.Manager implements it.
type Stores interface {
	Create(ctx context.Context, chunks []document.Chunk, name string) (string, error)
	Upsert(ctx context.Context, chunks []document.Chunk, name string) (string, error)
	Delete(name string) error
	Exists(name string) (bool, error)
}

// Indexer builds registered stores from files and directories.
type Indexer struct {
	stores   Stores
	registry *registry.Registry
	cfg      *config.Config

	// Progress tracking
	progress Progress
	mu       sync.Mutex
}

// Progress tracks directory indexing.
type Progress struct {
	TotalFiles     int
	ProcessedFiles int
	SkippedFiles   int
	TotalChunks    int
	Errors         int
	StartTime      time.Time
	CurrentFile    string
}

// ProgressFunc is called to report progress during indexing.
type ProgressFunc func(Progress)

// Options configures one indexing call.
type Options struct {
	// Label groups indexes for humans and prefixes the store name.
	Label string

	// FileName is the name recorded in the registry. Defaults to the base
	// name of the indexed path.
	FileName string

	// Base is the store name suffix. Defaults to the file name plus a short
	// random tag so repeated indexing never overwrites another index.
	Base string

	// ChunkSize overrides the configured chunk size when positive.
	ChunkSize int

	// ChunkOverlap overrides the configured overlap when set. Zero means no
	// overlap.
	ChunkOverlap *int

	// OnProgress is called after each file of a directory.
	OnProgress ProgressFunc
}

// Result describes an indexing call.
type Result struct {
	IndexID   string `json:"index_id"`
	StoreName string `json:"-"`
	StorePath string `json:"store_path"`
	Documents int    `json:"documents"`
	Chunks    int    `json:"chunks"`
}

// New creates an Indexer.
func New(stores Stores, reg *registry.Registry, cfg *config.Config) *Indexer {
	return &Indexer{stores: stores, registry: reg, cfg: cfg}
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// StoreName derives a filesystem-safe store name from label and base.
func StoreName(label, base string) string {
	name := unsafeChars.ReplaceAllString(label+"_"+base, "_")
	if len(name) > 128 {
		name = name[:128]
	}
	return name
}

// Index builds a new store from the file or directory at path and registers
// it under a fresh index id.
func (idx *Indexer) Index(ctx context.Context, path string, opts Options) (*Result, error) {
	const op = "indexer.index"

	if opts.Label == "" {
		opts.Label = DefaultLabel
	}
	if opts.FileName == "" {
		opts.FileName = filepath.Base(path)
	}
	if opts.Base == "" {
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		opts.Base = stem + "_" + uuid.NewString()[:8]
	}

	docs, chunks, err := idx.collect(ctx, op, path, opts)
	if err != nil {
		return nil, err
	}

	name := StoreName(opts.Label, opts.Base)
	storePath, err := idx.stores.Create(ctx, chunks, name)
	if err != nil {
		return nil, err
	}

	meta := map[string]string{
		MetaLabel:       opts.Label,
		MetaFileName:    opts.FileName,
		MetaContentHash: contentHash("", chunks),
		MetaDocuments:   strconv.Itoa(docs),
		MetaChunks:      strconv.Itoa(len(chunks)),
	}
	id, err := idx.registry.Register(name, meta)
	if err != nil {
		return nil, err
	}

	log.Info("Indexed", "path", path, "index_id", id, "store", name, "documents", docs, "chunks", len(chunks))
	return &Result{IndexID: id, StoreName: name, StorePath: storePath, Documents: docs, Chunks: len(chunks)}, nil
}

// Append adds the file or directory at path to the store behind indexID.
func (idx *Indexer) Append(ctx context.Context, indexID, path string, opts Options) (*Result, error) {
	const op = "indexer.append"

	entry, err := idx.lookup(op, indexID)
	if err != nil {
		return nil, err
	}

	docs, chunks, err := idx.collect(ctx, op, path, opts)
	if err != nil {
		return nil, err
	}

	storePath, err := idx.stores.Upsert(ctx, chunks, entry.StoreName)
	if err != nil {
		return nil, err
	}

	meta := make(map[string]string, len(entry.Meta))
	for k, v := range entry.Meta {
		meta[k] = v
	}
	meta[MetaDocuments] = strconv.Itoa(atoi(meta[MetaDocuments]) + docs)
	meta[MetaChunks] = strconv.Itoa(atoi(meta[MetaChunks]) + len(chunks))
	meta[MetaContentHash] = contentHash(meta[MetaContentHash], chunks)
	if err := idx.registry.Update(indexID, meta); err != nil {
		// The chunks are already in the store; only the bookkeeping is stale.
		log.Warn("Failed to update index metadata", "index_id", indexID, "error", err)
	}

	log.Info("Appended", "path", path, "index_id", indexID, "store", entry.StoreName, "documents", docs, "chunks", len(chunks))
	return &Result{IndexID: indexID, StoreName: entry.StoreName, StorePath: storePath, Documents: docs, Chunks: len(chunks)}, nil
}

// Resolve returns the store name behind indexID. It fails with NotFound
// when the id is unknown or its store no longer exists.
func (idx *Indexer) Resolve(indexID string) (string, error) {
	entry, err := idx.lookup("indexer.resolve", indexID)
	if err != nil {
		return "", err
	}
	return entry.StoreName, nil
}

func (idx *Indexer) lookup(op, indexID string) (registry.Entry, error) {
	entry, ok, err := idx.registry.Get(indexID)
	if err != nil {
		return registry.Entry{}, err
	}
	if !ok {
		return registry.Entry{}, errs.Errorf(errs.KindNotFound, op, indexID, "Unknown index_id: %s", indexID)
	}
	exists, err := idx.stores.Exists(entry.StoreName)
	if err != nil {
		return registry.Entry{}, err
	}
	if !exists {
		return registry.Entry{}, errs.Errorf(errs.KindNotFound, op, indexID, "index store missing")
	}
	return entry, nil
}

// Delete removes the store behind indexID and then its registry entry.
func (idx *Indexer) Delete(indexID string) error {
	name, ok, err := idx.registry.Resolve(indexID)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Errorf(errs.KindNotFound, "indexer.delete", indexID, "Unknown index_id: %s", indexID)
	}

	if err := idx.stores.Delete(name); err != nil {
		return err
	}
	if err := idx.registry.Remove(indexID); err != nil {
		return err
	}

	log.Info("Deleted index", "index_id", indexID, "store", name)
	return nil
}

// Progress returns the current directory indexing progress.
func (idx *Indexer) Progress() Progress {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.progress
}

// collect loads and splits path, returning the document count and chunks.
func (idx *Indexer) collect(ctx context.Context, op, path string, opts Options) (int, []document.Chunk, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil, errs.E(errs.KindNotFound, op, path, err)
		}
		return 0, nil, errs.E(errs.KindStorage, op, path, err)
	}

	splitter := idx.splitter(opts)

	if !info.IsDir() {
		segments, err := document.Load(path)
		if err != nil {
			return 0, nil, err
		}
		chunks := splitter.Split(segments)
		if len(chunks) == 0 {
			return 0, nil, errs.Errorf(errs.KindValidation, op, path, "document has no text to index")
		}
		return len(segments), chunks, nil
	}

	return idx.collectDir(ctx, op, path, splitter, opts)
}

func (idx *Indexer) collectDir(ctx context.Context, op, root string, splitter *document.Splitter, opts Options) (int, []document.Chunk, error) {
	walker, err := document.NewWalker(document.WalkOptions{
		Root:           root,
		IgnorePatterns: idx.cfg.Ignore,
		MaxFileSize:    idx.cfg.Indexing.MaxUploadSize,
	})
	if err != nil {
		return 0, nil, errs.E(errs.KindValidation, op, root, err)
	}

	var files []document.FileInfo
	if err := walker.Walk(func(fi document.FileInfo) error {
		files = append(files, fi)
		return nil
	}); err != nil {
		return 0, nil, errs.E(errs.KindStorage, op, root, fmt.Errorf("failed to walk directory: %w", err))
	}

	idx.mu.Lock()
	idx.progress = Progress{StartTime: time.Now(), TotalFiles: len(files)}
	idx.mu.Unlock()

	log.Info("Found files to index", "count", len(files))

	var docs int
	var chunks []document.Chunk
	for _, fi := range files {
		if err := ctx.Err(); err != nil {
			return 0, nil, err
		}

		idx.mu.Lock()
		idx.progress.CurrentFile = fi.RelPath
		idx.mu.Unlock()

		segments, err := document.Load(fi.Path)
		if err != nil {
			log.Warn("Failed to load file", "path", fi.RelPath, "error", err)
			idx.mu.Lock()
			idx.progress.Errors++
			idx.mu.Unlock()
			continue
		}

		pieces := splitter.Split(segments)

		idx.mu.Lock()
		if len(pieces) == 0 {
			log.Debug("No text in file, skipping", "path", fi.RelPath)
			idx.progress.SkippedFiles++
		} else {
			docs += len(segments)
			chunks = append(chunks, pieces...)
			idx.progress.TotalChunks += len(pieces)
		}
		idx.progress.ProcessedFiles++
		if opts.OnProgress != nil {
			opts.OnProgress(idx.progress)
		}
		idx.mu.Unlock()
	}

	if len(chunks) == 0 {
		return 0, nil, errs.Errorf(errs.KindValidation, op, root, "no indexable documents found")
	}

	log.Info("Collected documents",
		"files", len(files),
		"chunks", len(chunks),
		"duration", time.Since(idx.progress.StartTime).Round(time.Millisecond),
	)
	return docs, chunks, nil
}

func (idx *Indexer) splitter(opts Options) *document.Splitter {
	split := document.DefaultSplitOptions()
	if idx.cfg.Indexing.ChunkSize > 0 {
		split.ChunkSize = idx.cfg.Indexing.ChunkSize
	}
	if idx.cfg.Indexing.ChunkOverlap >= 0 {
		split.ChunkOverlap = idx.cfg.Indexing.ChunkOverlap
	}
	if opts.ChunkSize > 0 {
		split.ChunkSize = opts.ChunkSize
	}
	if opts.ChunkOverlap != nil {
		split.ChunkOverlap = *opts.ChunkOverlap
	}
	return document.NewSplitter(split)
}

// contentHash chains the hash of chunks onto prev.
func contentHash(prev string, chunks []document.Chunk) string {
	d := xxhash.New()
	d.WriteString(prev)
	for _, c := range chunks {
		d.WriteString(c.Content)
	}
	return fmt.Sprintf("%016x", d.Sum64())
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
