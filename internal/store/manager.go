package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/docrag/internal/config"
	"github.com/nickcecere/docrag/internal/document"
	"github.com/nickcecere/docrag/internal/embeddings"
	"github.com/nickcecere/docrag/internal/errs"
)

// Options tunes a Manager.
type Options struct {
	CacheSize        int
	FetchK           int
	MMRLambda        float64
	BatchSize        int
	EmbeddingTimeout time.Duration
	StorageTimeout   time.Duration
}

// OptionsFromConfig builds Options from the retrieval, indexing and timeout
// settings.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		CacheSize:        cfg.Retrieval.CacheSize,
		FetchK:           cfg.Retrieval.FetchK,
		MMRLambda:        cfg.Retrieval.MMRLambda,
		BatchSize:        cfg.Indexing.BatchSize,
		EmbeddingTimeout: cfg.Timeouts.Embedding,
		StorageTimeout:   cfg.Timeouts.Storage,
	}
}

// Manager owns the store directories under one root, serializes mutations
// per store name and caches retrievers.
type Manager struct {
	root     string
	embedder embeddings.Service
	opts     Options
	locks    *lockTable
	cache    *retrieverCache
}

// NewManager creates a manager rooted at root, creating the directory if
// needed.
func NewManager(root string, embedder embeddings.Service, opts Options) (*Manager, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, errs.E(errs.KindStorage, "store.init", root, err)
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = config.DefaultCacheSize
	}
	if opts.FetchK <= 0 {
		opts.FetchK = config.DefaultFetchK
	}
	if opts.MMRLambda <= 0 || opts.MMRLambda > 1 {
		opts.MMRLambda = config.DefaultMMRLambda
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = config.DefaultBatchSize
	}

	return &Manager{
		root:     root,
		embedder: embedder,
		opts:     opts,
		locks:    newLockTable(),
		cache:    newRetrieverCache(opts.CacheSize),
	}, nil
}

// Root returns the directory holding all stores.
func (m *Manager) Root() string {
	return m.root
}

// Path returns the directory of the named store.
func (m *Manager) Path(name string) string {
	return filepath.Join(m.root, name)
}

// Metric returns the distance metric new stores are built with.
func (m *Manager) Metric() Metric {
	if embeddings.IsNormalized(m.embedder) {
		return MetricL2
	}
	return MetricCosine
}

// Create builds the named store from chunks, replacing whatever was there.
// The new store is built in a staging directory and swapped into place, so
// a failure leaves the previous store untouched.
func (m *Manager) Create(ctx context.Context, chunks []document.Chunk, name string) (string, error) {
	const op = "store.create"
	if err := m.validate(op, name, chunks); err != nil {
		return "", err
	}

	vectors, err := m.embedChunks(ctx, chunks)
	if err != nil {
		return "", errs.E(errs.KindStorage, op, name, err)
	}

	unlock := m.locks.Lock(name)
	defer unlock()

	m.invalidate(name)

	if err := m.build(ctx, name, chunks, vectors); err != nil {
		return "", errs.E(errs.KindStorage, op, name, err)
	}

	log.Info("Created store", "store", name, "chunks", len(chunks))
	return m.Path(name), nil
}

// Upsert appends chunks to the named store, creating it if absent. The
// append runs in one transaction.
func (m *Manager) Upsert(ctx context.Context, chunks []document.Chunk, name string) (string, error) {
	const op = "store.upsert"
	if err := m.validate(op, name, chunks); err != nil {
		return "", err
	}

	vectors, err := m.embedChunks(ctx, chunks)
	if err != nil {
		return "", errs.E(errs.KindStorage, op, name, err)
	}

	unlock := m.locks.Lock(name)
	defer unlock()

	m.invalidate(name)

	exists, err := m.exists(name)
	if err != nil {
		return "", errs.E(errs.KindStorage, op, name, err)
	}
	if !exists {
		if err := m.build(ctx, name, chunks, vectors); err != nil {
			return "", errs.E(errs.KindStorage, op, name, err)
		}
		log.Info("Created store on upsert", "store", name, "chunks", len(chunks))
		return m.Path(name), nil
	}

	ix, err := m.open(ctx, name)
	if err != nil {
		return "", err
	}
	defer ix.Close()

	sctx, cancel := m.storageContext(ctx)
	defer cancel()
	if err := ix.Insert(sctx, chunks, vectors); err != nil {
		return "", errs.E(errs.KindStorage, op, name, err)
	}

	log.Info("Upserted into store", "store", name, "chunks", len(chunks))
	return m.Path(name), nil
}

// Load opens the named store. The caller must Close the handle.
func (m *Manager) Load(ctx context.Context, name string) (*Index, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	unlock := m.locks.RLock(name)
	defer unlock()

	return m.open(ctx, name)
}

// Delete removes the named store. Deleting an absent store is a no-op.
func (m *Manager) Delete(name string) error {
	const op = "store.delete"
	if err := ValidateName(name); err != nil {
		return err
	}

	unlock := m.locks.Lock(name)
	defer unlock()

	m.invalidate(name)

	if err := os.RemoveAll(m.Path(name)); err != nil {
		return errs.E(errs.KindStorage, op, name, err)
	}

	log.Info("Deleted store", "store", name)
	return nil
}

// Exists reports whether the named store is present.
func (m *Manager) Exists(name string) (bool, error) {
	if err := ValidateName(name); err != nil {
		return false, err
	}

	unlock := m.locks.RLock(name)
	defer unlock()

	ok, err := m.exists(name)
	if err != nil {
		return false, errs.E(errs.KindStorage, "store.exists", name, err)
	}
	return ok, nil
}

// Stats returns the metadata and size of the named store.
func (m *Manager) Stats(ctx context.Context, name string) (*Stats, error) {
	ix, err := m.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	defer ix.Close()

	sctx, cancel := m.storageContext(ctx)
	defer cancel()

	count, err := ix.Count(sctx)
	if err != nil {
		return nil, errs.E(errs.KindStorage, "store.stats", name, err)
	}

	stats := &Stats{Meta: ix.Meta(), ChunkCount: count}
	if info, err := os.Stat(ix.Path()); err == nil {
		stats.SizeBytes = info.Size()
	}
	return stats, nil
}

// List returns the names of all stores present on disk, sorted.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return nil, errs.E(errs.KindStorage, "store.list", m.root, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") || ValidateName(e.Name()) != nil {
			continue
		}
		if ok, err := m.exists(e.Name()); err == nil && ok {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Retriever returns a cached retriever for (name, k, mode), loading the
// store on a miss.
func (m *Manager) Retriever(ctx context.Context, name string, k int, mode Mode) (*Retriever, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, errs.Errorf(errs.KindValidation, "store.retriever", name, "k must be positive, got %d", k)
	}
	if mode != ModeSimilarity && mode != ModeMMR {
		return nil, errs.Errorf(errs.KindValidation, "store.retriever", name, "unknown search mode %q", mode)
	}

	key := cacheKey{name: name, k: k, mode: mode}
	if r, ok := m.cache.Get(key); ok {
		return r, nil
	}

	// The read lock keeps an invalidation from slipping in between the load
	// and the insert.
	unlock := m.locks.RLock(name)
	ix, err := m.open(ctx, name)
	if err != nil {
		unlock()
		return nil, err
	}
	fresh := newRetriever(m, name, k, mode, ix)
	r, evicted := m.cache.Add(key, fresh)
	unlock()

	if r != fresh {
		fresh.close()
	}
	for _, e := range evicted {
		e.close()
	}

	log.Debug("Cached retriever", "store", name, "k", k, "mode", mode)
	return r, nil
}

// CachedRetrievers returns the number of cached retrievers.
func (m *Manager) CachedRetrievers() int {
	return m.cache.Len()
}

// Close closes every cached retriever. Retrievers handed out earlier stay
// usable and reopen their store on the next query.
func (m *Manager) Close() {
	for _, r := range m.cache.Purge() {
		r.close()
	}
}

// invalidate drops and closes all cached retrievers of name. The caller
// must hold the store's write lock.
func (m *Manager) invalidate(name string) {
	dropped := m.cache.InvalidateStore(name)
	for _, r := range dropped {
		r.close()
	}
	if len(dropped) > 0 {
		log.Debug("Invalidated retrievers", "store", name, "count", len(dropped))
	}
}

// open opens the named store. The caller must hold the store lock.
func (m *Manager) open(ctx context.Context, name string) (*Index, error) {
	const op = "store.load"

	exists, err := m.exists(name)
	if err != nil {
		return nil, errs.E(errs.KindStorage, op, name, err)
	}
	if !exists {
		return nil, errs.Errorf(errs.KindNotFound, op, name, "vector store %q does not exist", name)
	}

	sctx, cancel := m.storageContext(ctx)
	defer cancel()

	ix, err := openIndex(sctx, filepath.Join(m.Path(name), indexFileName))
	if err != nil {
		return nil, errs.E(errs.KindStorage, op, name, err)
	}
	return ix, nil
}

// exists reports whether the store directory is present and non-empty.
func (m *Manager) exists(name string) (bool, error) {
	entries, err := os.ReadDir(m.Path(name))
	if err != nil {
		if isNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return len(entries) > 0, nil
}

// build writes a complete store in a staging directory and swaps it into
// place. The caller must hold the store's write lock.
func (m *Manager) build(ctx context.Context, name string, chunks []document.Chunk, vectors [][]float32) error {
	staging, err := os.MkdirTemp(m.root, "."+name+".staging-")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	now := time.Now().UTC().Truncate(time.Second)
	meta := Meta{
		Name:                name,
		Metric:              m.Metric(),
		EmbeddingProvider:   string(m.embedder.Provider()),
		EmbeddingModel:      m.embedder.ModelName(),
		EmbeddingDimensions: len(vectors[0]),
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	sctx, cancel := m.storageContext(ctx)
	defer cancel()

	ix, err := createIndex(sctx, filepath.Join(staging, indexFileName), meta)
	if err != nil {
		return err
	}
	if err := ix.Insert(sctx, chunks, vectors); err != nil {
		ix.Close()
		return err
	}
	if err := ix.Close(); err != nil {
		return fmt.Errorf("failed to close staged store: %w", err)
	}

	return m.swap(name, staging)
}

// swap moves staging to the store path, replacing any existing store.
func (m *Manager) swap(name, staging string) error {
	target := m.Path(name)

	var old string
	if _, err := os.Stat(target); err == nil {
		old = filepath.Join(m.root, "."+name+".old-"+filepath.Base(staging))
		if err := os.Rename(target, old); err != nil {
			return fmt.Errorf("failed to move existing store aside: %w", err)
		}
	} else if !isNotExist(err) {
		return fmt.Errorf("failed to stat store directory: %w", err)
	}

	if err := os.Rename(staging, target); err != nil {
		if old != "" {
			if rerr := os.Rename(old, target); rerr != nil {
				log.Error("Failed to restore previous store", "store", name, "error", rerr)
			}
		}
		return fmt.Errorf("failed to move staged store into place: %w", err)
	}

	if old != "" {
		if err := os.RemoveAll(old); err != nil {
			log.Warn("Failed to remove previous store", "path", old, "error", err)
		}
	}
	return nil
}

func (m *Manager) validate(op, name string, chunks []document.Chunk) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return errs.Errorf(errs.KindValidation, op, name, "no chunks to index")
	}
	return nil
}

// embedChunks embeds chunk contents in batches, each under the embedding
// timeout.
func (m *Manager) embedChunks(ctx context.Context, chunks []document.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += m.opts.BatchSize {
		end := min(start+m.opts.BatchSize, len(chunks))

		texts := make([]string, end-start)
		for i, c := range chunks[start:end] {
			texts[i] = c.Content
		}

		ectx, cancel := m.embeddingContext(ctx)
		batch, err := m.embedder.EmbedBatch(ectx, texts)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks %d-%d: %w", start, end, err)
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(batch), len(texts))
		}
		vectors = append(vectors, batch...)

		log.Debug("Embedded batch", "from", start, "to", end, "total", len(chunks))
	}
	return vectors, nil
}

func (m *Manager) embedQuery(ctx context.Context, query string) ([]float32, error) {
	ectx, cancel := m.embeddingContext(ctx)
	defer cancel()

	v, err := m.embedder.EmbedQuery(ectx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return v, nil
}

func (m *Manager) embeddingContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, m.opts.EmbeddingTimeout)
}

func (m *Manager) storageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, m.opts.StorageTimeout)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
