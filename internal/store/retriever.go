package store

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/docrag/internal/errs"
)

// Retriever is a read-only view over one store returning up to k chunks per
// query. Once the cache drops a retriever (store mutation, eviction or
// Manager.Close) it keeps no handle: each later query opens the store and
// closes it again.
type Retriever struct {
	m    *Manager
	name string
	k    int
	mode Mode

	mu    sync.RWMutex
	index *Index
}

func newRetriever(m *Manager, name string, k int, mode Mode, ix *Index) *Retriever {
	return &Retriever{m: m, name: name, k: k, mode: mode, index: ix}
}

// Name returns the store name.
func (r *Retriever) Name() string { return r.name }

// K returns the number of results per query.
func (r *Retriever) K() int { return r.k }

// Mode returns the ranking mode.
func (r *Retriever) Mode() Mode { return r.mode }

// Retrieve returns the chunks most relevant to query, best first.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]Result, error) {
	const op = "store.retrieve"

	vector, err := r.m.embedQuery(ctx, query)
	if err != nil {
		return nil, errs.E(errs.KindRetrieval, op, r.name, err)
	}

	unlock := r.m.locks.RLock(r.name)
	defer unlock()

	ix, release, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	sctx, cancel := r.m.storageContext(ctx)
	defer cancel()

	if r.mode == ModeSimilarity {
		results, err := ix.Search(sctx, vector, r.k)
		if err != nil {
			return nil, errs.E(errs.KindRetrieval, op, r.name, err)
		}
		return results, nil
	}

	cands, err := ix.nearest(sctx, vector, fetchK(r.k, r.m.opts.FetchK), true)
	if err != nil {
		return nil, errs.E(errs.KindRetrieval, op, r.name, err)
	}
	return selectMMR(vector, cands, r.k, r.m.opts.MMRLambda), nil
}

// acquire returns an index to query and the func that releases it. A cached
// retriever shares its handle; a dropped one gets a handle of its own for
// this query. The caller must hold the store read lock.
func (r *Retriever) acquire(ctx context.Context) (*Index, func(), error) {
	r.mu.RLock()
	if r.index != nil {
		return r.index, r.mu.RUnlock, nil
	}
	r.mu.RUnlock()

	log.Debug("Opening store for uncached retriever", "store", r.name)
	ix, err := r.m.open(ctx, r.name)
	if err != nil {
		return nil, nil, err
	}
	return ix, func() {
		if err := ix.Close(); err != nil {
			log.Warn("Failed to close retriever handle", "store", r.name, "error", err)
		}
	}, nil
}

// holdsHandle reports whether r keeps an open index.
func (r *Retriever) holdsHandle() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index != nil
}

// close releases the handle, waiting for in-flight queries to finish.
func (r *Retriever) close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.index == nil {
		return
	}
	if err := r.index.Close(); err != nil {
		log.Warn("Failed to close retriever handle", "store", r.name, "error", err)
	}
	r.index = nil
}
