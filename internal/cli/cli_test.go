package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcecere/docrag/internal/registry"
	"github.com/nickcecere/docrag/internal/store"
)

func TestTruncatePath(t *testing.T) {
	assert.Equal(t, "short.txt", truncatePath("short.txt", 20))
	assert.Equal(t, "...c/d.txt", truncatePath("/a/b/c/d.txt", 10))
}

func TestTruncateLine(t *testing.T) {
	assert.Equal(t, "one two", truncateLine("one\ntwo", 20))
	assert.Equal(t, "ééééé...", truncateLine("éééééééééé", 8))
}

func TestFilterIndexes(t *testing.T) {
	indexes := []registry.Index{{ID: "idx_a"}, {ID: "idx_b"}}
	assert.Equal(t, []registry.Index{{ID: "idx_b"}}, filterIndexes(indexes, "idx_b"))
	assert.Empty(t, filterIndexes(indexes, "idx_c"))
}

func TestHealthStatus(t *testing.T) {
	assert.Contains(t, healthStatus(&store.Stats{ChunkCount: 3}), "healthy")
	assert.Contains(t, healthStatus(&store.Stats{}), "empty")
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "unknown", formatTime(time.Time{}))
	assert.Contains(t, formatTime(time.Now()), "today at ")
	assert.Equal(t, "Mar 4, 2001 at 05:06", formatTime(time.Date(2001, 3, 4, 5, 6, 0, 0, time.Local)))
}

func TestTargets(t *testing.T) {
	all, err := targets("all")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := targets("opencode")
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "opencode", one[0].Name)

	_, err = targets("nope")
	assert.ErrorContains(t, err, "unknown client")
}

func TestCommandsRegistered(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "index", "ask", "status", "delete", "config", "version", "mcp", "install", "uninstall"} {
		assert.Contains(t, names, want)
	}
}
