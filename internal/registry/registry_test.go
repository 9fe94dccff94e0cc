package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcecere/docrag/internal/errs"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "data", "index_registry.json"))
}

func TestNewID(t *testing.T) {
	id := NewID()
	assert.Regexp(t, regexp.MustCompile(`^idx_[0-9a-f]{32}$`), id)
	assert.NotEqual(t, id, NewID())
}

func TestRegisterAndResolve(t *testing.T) {
	r := newTestRegistry(t)

	id, err := r.Register("guide_123", map[string]string{"label": "guide"})
	require.NoError(t, err)

	name, ok, err := r.Resolve(id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "guide_123", name)

	entry, ok, err := r.Get(id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "guide", entry.Meta["label"])
	assert.False(t, entry.CreatedAt.IsZero())

	data, err := os.ReadFile(r.Path())
	require.NoError(t, err)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.JSONEq(t, `1`, string(doc["version"]))
	assert.Contains(t, string(doc["indexes"]), `"store_name": "guide_123"`)
}

func TestResolveUnknown(t *testing.T) {
	r := newTestRegistry(t)

	// Missing file
	name, ok, err := r.Resolve("idx_missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, name)

	_, err = r.Register("a", nil)
	require.NoError(t, err)

	_, ok, err = r.Resolve("idx_missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemove(t *testing.T) {
	r := newTestRegistry(t)
	id, err := r.Register("a", nil)
	require.NoError(t, err)
	keep, err := r.Register("b", nil)
	require.NoError(t, err)

	require.NoError(t, r.Remove(id))
	_, ok, err := r.Resolve(id)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = r.Resolve(keep)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.NoError(t, r.Remove(id))
}

func TestUpdate(t *testing.T) {
	r := newTestRegistry(t)
	id, err := r.Register("a", map[string]string{"documents": "1"})
	require.NoError(t, err)

	require.NoError(t, r.Update(id, map[string]string{"documents": "2"}))
	entry, _, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "2", entry.Meta["documents"])
	assert.Equal(t, "a", entry.StoreName)

	err = r.Update("idx_missing", nil)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestList(t *testing.T) {
	r := newTestRegistry(t)

	list, err := r.List()
	require.NoError(t, err)
	assert.Empty(t, list)

	ids := map[string]string{}
	for _, name := range []string{"a", "b", "c"} {
		id, err := r.Register(name, nil)
		require.NoError(t, err)
		ids[id] = name
	}

	list, err = r.List()
	require.NoError(t, err)
	require.Len(t, list, 3)
	for _, ix := range list {
		assert.Equal(t, ids[ix.ID], ix.StoreName)
	}
}

func TestConcurrentRegister(t *testing.T) {
	r := newTestRegistry(t)

	const n = 20
	var wg sync.WaitGroup
	idCh := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := r.Register(fmt.Sprintf("store_%d", i), nil)
			assert.NoError(t, err)
			idCh <- id
		}(i)
	}
	wg.Wait()
	close(idCh)

	for id := range idCh {
		_, ok, err := r.Resolve(id)
		require.NoError(t, err)
		assert.True(t, ok, "lost registration %s", id)
	}

	list, err := r.List()
	require.NoError(t, err)
	assert.Len(t, list, n)

	// No temp files left behind
	entries, err := os.ReadDir(filepath.Dir(r.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCorruptRegistry(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(r.Path()), 0755))
	require.NoError(t, os.WriteFile(r.Path(), []byte("{not json"), 0644))

	_, _, err := r.Resolve("idx_x")
	assert.ErrorIs(t, err, errs.ErrStorage)

	_, err = r.Register("a", nil)
	assert.ErrorIs(t, err, errs.ErrStorage)

	require.NoError(t, os.WriteFile(r.Path(), []byte(`{"version":2,"indexes":{}}`), 0644))
	_, err = r.List()
	assert.ErrorIs(t, err, errs.ErrStorage)
}

func TestReadsUnversionedRegistry(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(r.Path()), 0755))
	legacy := `{
  "indexes": {
    "idx_0123456789abcdef0123456789abcdef": {
      "store_name": "handbook_9f8e7d",
      "created_at": 1714564800.5,
      "meta": {"label": "handbook", "filename": null}
    }
  }
}`
	require.NoError(t, os.WriteFile(r.Path(), []byte(legacy), 0644))

	entry, ok, err := r.Get("idx_0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "handbook_9f8e7d", entry.StoreName)
	assert.Equal(t, int64(1714564800), entry.CreatedAt.Unix())
	assert.Equal(t, map[string]string{"label": "handbook"}, entry.Meta)

	// The next write upgrades the file
	id, err := r.Register("notes_1", nil)
	require.NoError(t, err)

	data, err := os.ReadFile(r.Path())
	require.NoError(t, err)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.JSONEq(t, `1`, string(doc["version"]))

	list, err := r.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "idx_0123456789abcdef0123456789abcdef", list[0].ID)
	assert.Equal(t, id, list[1].ID)
}
