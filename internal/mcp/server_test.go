package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcecere/docrag/internal/config"
	"github.com/nickcecere/docrag/internal/embeddings/embeddingstest"
	"github.com/nickcecere/docrag/internal/indexer"
	"github.com/nickcecere/docrag/internal/llm/llmtest"
	"github.com/nickcecere/docrag/internal/rag"
	"github.com/nickcecere/docrag/internal/registry"
	"github.com/nickcecere/docrag/internal/store"
)

type testEnv struct {
	cfg     *config.Config
	stores  *store.Manager
	reg     *registry.Registry
	indexer *indexer.Indexer
	model   *llmtest.Service
	docs    string
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Storage.VectorstoreDir = filepath.Join(dir, "vectorstore")
	cfg.Storage.RegistryPath = filepath.Join(dir, "index_registry.json")

	stores, err := store.NewManager(cfg.Storage.VectorstoreDir, embeddingstest.New(384), store.OptionsFromConfig(cfg))
	require.NoError(t, err)
	reg := registry.New(cfg.Storage.RegistryPath)

	docs := filepath.Join(dir, "docs")
	require.NoError(t, os.MkdirAll(docs, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "sky.txt"), []byte("The sky is blue."), 0644))

	return &testEnv{
		cfg:     cfg,
		stores:  stores,
		reg:     reg,
		indexer: indexer.New(stores, reg, cfg),
		model:   llmtest.New("The sky is blue ", "[0]."),
		docs:    docs,
	}
}

// run feeds lines to a fresh server and returns the decoded responses.
func (env *testEnv) run(t *testing.T, lines ...string) []Response {
	t.Helper()
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	var out bytes.Buffer

	pipeline := rag.NewPipeline(env.stores, env.model, rag.OptionsFromConfig(env.cfg))
	srv := NewServer(env.cfg, env.stores, env.reg, env.indexer, pipeline, "test", in, &out)
	require.NoError(t, srv.Run(context.Background()))

	var responses []Response
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var resp Response
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
		responses = append(responses, resp)
	}
	return responses
}

func call(id int, tool string, args any) string {
	data, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "tools/call",
		"params":  map[string]any{"name": tool, "arguments": args},
	})
	return string(data)
}

// toolText decodes a tools/call result.
func toolText(t *testing.T, resp Response) (string, bool) {
	t.Helper()
	require.Nil(t, resp.Error)
	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var res CallToolResult
	require.NoError(t, json.Unmarshal(data, &res))
	require.Len(t, res.Content, 1)
	return res.Content[0].Text, res.IsError
}

func TestInitializeAndListTools(t *testing.T) {
	env := setupTestEnv(t)

	responses := env.run(t,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"test"}}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":"three","method":"ping"}`,
	)
	require.Len(t, responses, 3)

	assert.JSONEq(t, `1`, string(responses[0].ID))
	init := responses[0].Result.(map[string]any)
	assert.Equal(t, MCPVersion, init["protocolVersion"])
	assert.Equal(t, ServerName, init["serverInfo"].(map[string]any)["name"])

	var names []string
	for _, tool := range responses[1].Result.(map[string]any)["tools"].([]any) {
		names = append(names, tool.(map[string]any)["name"].(string))
	}
	assert.Equal(t, []string{"docrag_list_indexes", "docrag_ask", "docrag_search", "docrag_index"}, names)

	assert.JSONEq(t, `"three"`, string(responses[2].ID))
}

func TestProtocolErrors(t *testing.T) {
	env := setupTestEnv(t)

	responses := env.run(t,
		`not json`,
		`{"jsonrpc":"2.0","id":1,"method":"resources/list"}`,
		`{"jsonrpc":"2.0","method":"unknown/notification"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":"oops"}`,
		`{"jsonrpc":"1.0","id":3,"method":"ping"}`,
	)
	require.Len(t, responses, 4)

	assert.Equal(t, ErrorCodeParse, responses[0].Error.Code)
	assert.JSONEq(t, `null`, string(responses[0].ID))
	assert.Equal(t, ErrorCodeMethodNotFound, responses[1].Error.Code)
	assert.Equal(t, ErrorCodeInvalidParams, responses[2].Error.Code)
	assert.Equal(t, ErrorCodeInvalidRequest, responses[3].Error.Code)
}

func TestIndexAskAndSearch(t *testing.T) {
	env := setupTestEnv(t)

	responses := env.run(t, call(1, "docrag_index", map[string]any{"path": env.docs, "label": "colors"}))
	require.Len(t, responses, 1)
	text, isErr := toolText(t, responses[0])
	require.False(t, isErr, text)
	assert.Contains(t, text, "1 documents, 1 chunks")

	indexes, err := env.reg.List()
	require.NoError(t, err)
	require.Len(t, indexes, 1)
	id := indexes[0].ID
	assert.Contains(t, text, id)

	responses = env.run(t,
		call(2, "docrag_list_indexes", nil),
		call(3, "docrag_ask", map[string]any{"index_id": id, "question": "what color is the sky"}),
		call(4, "docrag_search", map[string]any{"index_id": id, "query": "sky", "k": 2, "mode": "mmr"}),
	)
	require.Len(t, responses, 3)

	text, isErr = toolText(t, responses[0])
	assert.False(t, isErr)
	assert.Contains(t, text, id+" label=colors file=docs chunks=1")

	text, isErr = toolText(t, responses[1])
	assert.False(t, isErr)
	assert.Contains(t, text, "The sky is blue [0].\n\nSources:\n[0] ")
	assert.Contains(t, text, "sky.txt")

	text, isErr = toolText(t, responses[2])
	assert.False(t, isErr)
	assert.Contains(t, text, "Found 1 results:")
	assert.Contains(t, text, "The sky is blue.")
}

func TestToolErrors(t *testing.T) {
	env := setupTestEnv(t)

	responses := env.run(t,
		call(1, "docrag_ask", map[string]any{"index_id": "idx_nope", "question": "sky"}),
		call(2, "docrag_ask", map[string]any{"index_id": "idx_nope"}),
		call(3, "docrag_search", map[string]any{"index_id": "idx_nope", "query": "sky", "mode": "fuzzy"}),
		call(4, "docrag_index", map[string]any{}),
		call(5, "docrag_index", map[string]any{"path": filepath.Join(env.docs, "missing.txt")}),
		call(6, "docrag_nope", nil),
		call(7, "docrag_ask", map[string]any{"index_id": 42}),
	)
	require.Len(t, responses, 7)

	want := []string{
		"Unknown index_id: idx_nope",
		"question is required",
		"unknown search mode",
		"path is required",
		"indexing failed",
		"Unknown tool: docrag_nope",
		"invalid arguments",
	}
	for i, resp := range responses {
		text, isErr := toolText(t, resp)
		assert.True(t, isErr, "response %d", i)
		assert.Contains(t, text, want[i], "response %d", i)
	}
	assert.Empty(t, env.model.Prompts())
}
