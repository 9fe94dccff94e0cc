package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)

	// Embeddings defaults
	assert.Equal(t, DefaultEmbeddingProvider, cfg.Embeddings.Provider)
	assert.Equal(t, DefaultOllamaURL, cfg.Embeddings.Ollama.URL)
	assert.Equal(t, DefaultOllamaEmbedModel, cfg.Embeddings.Ollama.Model)
	assert.False(t, cfg.Embeddings.Normalize)

	// LLM defaults
	assert.Equal(t, DefaultLLMProvider, cfg.LLM.Provider)
	assert.Equal(t, DefaultOllamaLLMModel, cfg.LLM.Ollama.Model)
	assert.Equal(t, DefaultTemperature, cfg.LLM.Temperature)

	// Indexing and retrieval defaults
	assert.Equal(t, 900, cfg.Indexing.ChunkSize)
	assert.Equal(t, 100, cfg.Indexing.ChunkOverlap)
	assert.Equal(t, 4, cfg.Retrieval.DefaultK)
	assert.Equal(t, 128, cfg.Retrieval.CacheSize)

	// Timeouts
	assert.Equal(t, DefaultGenerationTimeout, cfg.Timeouts.Generation)

	assert.NoError(t, cfg.Validate())
}

func TestDefaultPaths(t *testing.T) {
	assert.Contains(t, DefaultConfigDir(), "docrag")
	assert.Contains(t, DefaultDataDir(), "docrag")
	assert.Contains(t, DefaultVectorstoreDir(), "vectorstore")
	assert.Contains(t, DefaultUploadDir(), "uploads")
	assert.Contains(t, DefaultRegistryPath(), DefaultRegistryFileName)
}

func TestLoadWithConfigFile(t *testing.T) {
	viper.Reset()
	cfg = nil

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
embeddings:
  provider: openai
  normalize: true
  openai:
    model: text-embedding-3-large
    base_url: https://custom-api.example.com
llm:
  provider: anthropic
  anthropic:
    model: claude-3-opus-20240229
storage:
  vectorstore_dir: /srv/docrag/vectorstore
  registry_path: /srv/docrag/registry.json
indexing:
  chunk_size: 1000
  chunk_overlap: 150
retrieval:
  cache_size: 16
timeouts:
  generation: 90s
ignore:
  - "drafts/"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	require.NoError(t, Load(configPath))
	loaded := Get()

	assert.Equal(t, "openai", loaded.Embeddings.Provider)
	assert.True(t, loaded.Embeddings.Normalize)
	assert.Equal(t, "text-embedding-3-large", loaded.Embeddings.OpenAI.Model)
	assert.Equal(t, "https://custom-api.example.com", loaded.Embeddings.OpenAI.BaseURL)
	assert.Equal(t, "anthropic", loaded.LLM.Provider)
	assert.Equal(t, "claude-3-opus-20240229", loaded.LLM.Anthropic.Model)
	assert.Equal(t, "/srv/docrag/vectorstore", loaded.Storage.VectorstoreDir)
	assert.Equal(t, "/srv/docrag/registry.json", loaded.Storage.RegistryPath)
	assert.Equal(t, 1000, loaded.Indexing.ChunkSize)
	assert.Equal(t, 150, loaded.Indexing.ChunkOverlap)
	assert.Equal(t, 16, loaded.Retrieval.CacheSize)
	assert.Equal(t, 90*time.Second, loaded.Timeouts.Generation)
	assert.Equal(t, DefaultStorageTimeout, loaded.Timeouts.Storage)
	assert.Contains(t, loaded.Ignore, "drafts/")
}

func TestLoadRejectsInvalidChunking(t *testing.T) {
	viper.Reset()
	cfg = nil

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("indexing:\n  chunk_size: 100\n  chunk_overlap: 100\n"), 0644))

	err := Load(configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk_overlap")
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	viper.Reset()
	cfg = nil

	t.Setenv("DOCRAG_EMBEDDINGS_PROVIDER", "openai")
	t.Setenv("DOCRAG_LLM_PROVIDER", "anthropic")
	t.Setenv("OPENAI_API_KEY", "test-api-key")
	t.Setenv("ANTHROPIC_API_KEY", "test-anthropic-key")

	require.NoError(t, Load(""))
	loaded := Get()

	assert.Equal(t, "openai", loaded.Embeddings.Provider)
	assert.Equal(t, "anthropic", loaded.LLM.Provider)
	assert.Equal(t, "test-api-key", loaded.Embeddings.OpenAI.APIKey)
	assert.Equal(t, "test-api-key", loaded.LLM.OpenAI.APIKey)
	assert.Equal(t, "test-anthropic-key", loaded.LLM.Anthropic.APIKey)
}

func TestOllamaHostFeedsLLMAndEmbeddings(t *testing.T) {
	viper.Reset()
	cfg = nil

	t.Setenv("OLLAMA_HOST", "http://gpu-box:11434")
	t.Setenv("OLLAMA_MODEL", "llama3")

	require.NoError(t, Load(""))
	loaded := Get()

	assert.Equal(t, "http://gpu-box:11434", loaded.LLM.Ollama.URL)
	assert.Equal(t, "http://gpu-box:11434", loaded.Embeddings.Ollama.URL)
	assert.Equal(t, "llama3", loaded.LLM.Ollama.Model)

	provider, model, host := loaded.LLMEndpoint()
	assert.Equal(t, "ollama", provider)
	assert.Equal(t, "llama3", model)
	assert.Equal(t, "http://gpu-box:11434", host)
}

func TestLoadMissingConfigFile(t *testing.T) {
	viper.Reset()
	cfg = nil

	require.NoError(t, Load(""))
	loaded := Get()

	assert.Equal(t, DefaultEmbeddingProvider, loaded.Embeddings.Provider)
	assert.Equal(t, DefaultLLMProvider, loaded.LLM.Provider)
}

func TestGet(t *testing.T) {
	cfg = nil

	c1 := Get()
	assert.NotNil(t, c1)

	c2 := Get()
	assert.Same(t, c1, c2)
}

func TestLLMEndpoint(t *testing.T) {
	c := DefaultConfig()
	c.LLM.Provider = "openai"
	_, model, host := c.LLMEndpoint()
	assert.Equal(t, DefaultOpenAILLMModel, model)
	assert.Equal(t, "https://api.openai.com/v1", host)

	c.LLM.Provider = "anthropic"
	_, model, host = c.LLMEndpoint()
	assert.Equal(t, DefaultAnthropicModel, model)
	assert.Equal(t, DefaultAnthropicURL, host)
}

func TestGlobalConfigPath(t *testing.T) {
	path := GlobalConfigPath()
	assert.Contains(t, path, "docrag")
	assert.Contains(t, path, "config.yaml")
}
