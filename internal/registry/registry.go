// Package registry maps opaque index ids to vector store names. The mapping
// lives in one JSON document that is rewritten atomically on every change.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/nickcecere/docrag/internal/errs"
)

// Version is the document format written by this package.
const Version = 1

// IDPrefix starts every index id.
const IDPrefix = "idx_"

// Entry is one registered index.
type Entry struct {
	StoreName string            `json:"store_name"`
	CreatedAt time.Time         `json:"created_at"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// Index is an entry together with its id, as returned by List.
type Index struct {
	ID string `json:"index_id"`
	Entry
}

type document struct {
	Version int              `json:"version"`
	Indexes map[string]Entry `json:"indexes"`
}

// Registry is the index id → store name mapping backed by a JSON file.
type Registry struct {
	path string

	// mu serializes writers across the whole read-modify-replace cycle.
	mu sync.Mutex
}

// New returns a registry stored at path. The file is created on the first
// Register.
func New(path string) *Registry {
	return &Registry{path: path}
}

// Path returns the registry file path.
func (r *Registry) Path() string {
	return r.path
}

// NewID returns a fresh index id.
func NewID() string {
	return IDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Register records storeName under a new id and returns the id.
func (r *Registry) Register(storeName string, meta map[string]string) (string, error) {
	const op = "registry.register"

	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.read()
	if err != nil {
		return "", errs.E(errs.KindStorage, op, r.path, err)
	}

	id := NewID()
	for _, taken := doc.Indexes[id]; taken; _, taken = doc.Indexes[id] {
		id = NewID()
	}

	doc.Indexes[id] = Entry{
		StoreName: storeName,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Meta:      meta,
	}

	if err := r.write(doc); err != nil {
		return "", errs.E(errs.KindStorage, op, r.path, err)
	}

	log.Debug("Registered index", "id", id, "store", storeName)
	return id, nil
}

// Resolve returns the store name registered under id. An unknown id yields
// ok=false and no error.
func (r *Registry) Resolve(id string) (storeName string, ok bool, err error) {
	entry, ok, err := r.Get(id)
	if err != nil || !ok {
		return "", ok, err
	}
	return entry.StoreName, true, nil
}

// Get returns the entry registered under id.
func (r *Registry) Get(id string) (Entry, bool, error) {
	doc, err := r.read()
	if err != nil {
		return Entry{}, false, errs.E(errs.KindStorage, "registry.resolve", r.path, err)
	}
	entry, ok := doc.Indexes[id]
	return entry, ok, nil
}

// Update replaces the metadata of an existing entry.
func (r *Registry) Update(id string, meta map[string]string) error {
	const op = "registry.update"

	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.read()
	if err != nil {
		return errs.E(errs.KindStorage, op, r.path, err)
	}
	entry, ok := doc.Indexes[id]
	if !ok {
		return errs.Errorf(errs.KindNotFound, op, id, "index %q is not registered", id)
	}
	entry.Meta = meta
	doc.Indexes[id] = entry

	if err := r.write(doc); err != nil {
		return errs.E(errs.KindStorage, op, r.path, err)
	}
	return nil
}

// Remove deletes the entry for id. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) error {
	const op = "registry.remove"

	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.read()
	if err != nil {
		return errs.E(errs.KindStorage, op, r.path, err)
	}
	if _, ok := doc.Indexes[id]; !ok {
		return nil
	}
	delete(doc.Indexes, id)

	if err := r.write(doc); err != nil {
		return errs.E(errs.KindStorage, op, r.path, err)
	}

	log.Debug("Removed index", "id", id)
	return nil
}

// List returns all entries, oldest first.
func (r *Registry) List() ([]Index, error) {
	doc, err := r.read()
	if err != nil {
		return nil, errs.E(errs.KindStorage, "registry.list", r.path, err)
	}

	out := make([]Index, 0, len(doc.Indexes))
	for id, entry := range doc.Indexes {
		out = append(out, Index{ID: id, Entry: entry})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// read loads the document. A missing file is an empty registry. Files
// without a version are read as version 1.
func (r *Registry) read() (*document, error) {
	doc := &document{Version: Version, Indexes: make(map[string]Entry)}

	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}

	var stored storedDocument
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to parse registry: %w", err)
	}
	if stored.Version != 0 && stored.Version != Version {
		return nil, fmt.Errorf("unsupported registry version %d", stored.Version)
	}

	for id, se := range stored.Indexes {
		entry, err := se.entry()
		if err != nil {
			return nil, fmt.Errorf("failed to parse registry entry %s: %w", id, err)
		}
		doc.Indexes[id] = entry
	}
	return doc, nil
}

// storedDocument is the on-disk form accepted by read. Older files carry
// created_at as epoch seconds and may hold non-string meta values.
type storedDocument struct {
	Version int                    `json:"version"`
	Indexes map[string]storedEntry `json:"indexes"`
}

type storedEntry struct {
	StoreName string          `json:"store_name"`
	CreatedAt json.RawMessage `json:"created_at"`
	Meta      map[string]any  `json:"meta"`
}

func (se storedEntry) entry() (Entry, error) {
	created, err := parseCreatedAt(se.CreatedAt)
	if err != nil {
		return Entry{}, err
	}

	var meta map[string]string
	if len(se.Meta) > 0 {
		meta = make(map[string]string, len(se.Meta))
		for k, v := range se.Meta {
			switch v := v.(type) {
			case nil:
			case string:
				meta[k] = v
			default:
				meta[k] = fmt.Sprint(v)
			}
		}
	}
	return Entry{StoreName: se.StoreName, CreatedAt: created, Meta: meta}, nil
}

// parseCreatedAt accepts an RFC 3339 string or epoch seconds.
func parseCreatedAt(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, nil
	}

	var secs float64
	if err := json.Unmarshal(raw, &secs); err == nil {
		whole := int64(secs)
		return time.Unix(whole, int64((secs-float64(whole))*1e9)).UTC(), nil
	}

	var t time.Time
	if err := json.Unmarshal(raw, &t); err != nil {
		return time.Time{}, fmt.Errorf("invalid created_at %s", raw)
	}
	return t, nil
}

// write replaces the registry file with doc via a synced temp file and a
// rename, so readers see either the old or the new document.
func (r *Registry) write(doc *document) error {
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(r.path)+".tmp-")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write registry: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close registry: %w", err)
	}

	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("failed to replace registry: %w", err)
	}
	return nil
}
