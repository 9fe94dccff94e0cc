package install

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readJSON(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestLookup(t *testing.T) {
	c, ok := Lookup("opencode")
	require.True(t, ok)
	assert.Equal(t, "OpenCode", c.Display)
	assert.NotEmpty(t, c.ConfigPath())

	_, ok = Lookup("nope")
	assert.False(t, ok)

	var names []string
	for _, c := range Clients() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"claude-code", "opencode"}, names)
}

func TestInstallPreservesSettings(t *testing.T) {
	c, _ := Lookup("claude-code")
	path := filepath.Join(t.TempDir(), "client.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"theme":"dark","mcpServers":{"other":{"command":"x"}}}`), 0644))

	require.NoError(t, Install(c, path, []string{"/usr/local/bin/docrag", "mcp"}))

	cfg := readJSON(t, path)
	assert.Equal(t, "dark", cfg["theme"])
	servers := cfg["mcpServers"].(map[string]any)
	assert.Contains(t, servers, "other")
	assert.Equal(t, map[string]any{"command": "/usr/local/bin/docrag", "args": []any{"mcp"}}, servers[ServerKey])

	// Reinstalling replaces the entry
	require.NoError(t, Install(c, path, []string{"docrag", "mcp"}))
	servers = readJSON(t, path)["mcpServers"].(map[string]any)
	assert.Equal(t, "docrag", servers[ServerKey].(map[string]any)["command"])
	assert.Len(t, servers, 2)
}

func TestInstallCreatesConfig(t *testing.T) {
	c, _ := Lookup("opencode")
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "opencode.json")

	require.NoError(t, Install(c, path, []string{"docrag", "mcp"}))

	cfg := readJSON(t, path)
	assert.Equal(t, "https://opencode.ai/config.json", cfg["$schema"])
	entry := cfg["mcp"].(map[string]any)[ServerKey].(map[string]any)
	assert.Equal(t, "local", entry["type"])
	assert.Equal(t, []any{"docrag", "mcp"}, entry["command"])
	assert.Equal(t, true, entry["enabled"])

	entries, err := os.ReadDir(filepath.Join(dir, "nested"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestInstallErrors(t *testing.T) {
	c, _ := Lookup("claude-code")
	path := filepath.Join(t.TempDir(), "client.json")

	assert.Error(t, Install(c, path, nil))

	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0644))
	assert.Error(t, Install(c, path, []string{"docrag", "mcp"}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{not json`, string(data))
}

func TestUninstall(t *testing.T) {
	c, _ := Lookup("claude-code")
	path := filepath.Join(t.TempDir(), "client.json")

	removed, err := Uninstall(c, path)
	require.NoError(t, err)
	assert.False(t, removed)

	require.NoError(t, os.WriteFile(path, []byte(`{"mcpServers":{"other":{}}}`), 0644))
	require.NoError(t, Install(c, path, []string{"docrag", "mcp"}))

	removed, err = Uninstall(c, path)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, map[string]any{"other": map[string]any{}}, readJSON(t, path)["mcpServers"])

	removed, err = Uninstall(c, path)
	require.NoError(t, err)
	assert.False(t, removed)
}
