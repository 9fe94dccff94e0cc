package config

import (
	"os"
	"path/filepath"
	"time"
)

// Default configuration values
const (
	// Embedding defaults
	DefaultEmbeddingProvider = "ollama"
	DefaultOllamaURL         = "http://localhost:11434"
	DefaultOllamaEmbedModel  = "all-minilm"
	DefaultOpenAIEmbedModel  = "text-embedding-3-small"
	DefaultEmbedNormalize    = false

	// LLM defaults
	DefaultLLMProvider    = "ollama"
	DefaultOllamaLLMModel = "qwen3:8b"
	DefaultOpenAILLMModel = "gpt-4o-mini"
	DefaultAnthropicModel = "claude-3-haiku-20240307"
	DefaultAnthropicURL   = "https://api.anthropic.com"
	DefaultTemperature    = 0.2
	DefaultMaxTokens      = 2048

	// Indexing defaults
	DefaultChunkSize     = 900
	DefaultChunkOverlap  = 100
	DefaultBatchSize     = 64
	DefaultMaxUploadSize = 50 << 20 // 50MB

	// Retrieval defaults
	DefaultK         = 4
	DefaultCacheSize = 128
	DefaultFetchK    = 20
	DefaultMMRLambda = 0.5

	// Server defaults
	DefaultHost = "127.0.0.1"
	DefaultPort = 8000

	// Timeouts
	DefaultEmbeddingTimeout  = 60 * time.Second
	DefaultStorageTimeout    = 30 * time.Second
	DefaultGenerationTimeout = 5 * time.Minute

	// Storage
	DefaultRegistryFileName = "index_registry.json"
)

// DefaultIgnorePatterns returns the patterns skipped when indexing a directory.
func DefaultIgnorePatterns() []string {
	return []string{
		// Version control
		".git/",
		".svn/",
		".hg/",

		// Dependencies and build outputs
		"node_modules/",
		"vendor/",
		".venv/",
		"__pycache__/",
		"dist/",
		"build/",

		// Office lock and temp files
		"~$*",
		"*.tmp",
		".~lock.*",

		// Misc
		".DS_Store",
		"Thumbs.db",
		".env",
		".env.*",
	}
}

// DefaultConfigDir returns the default configuration directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/docrag"
	}
	return filepath.Join(home, ".config", "docrag")
}

// DefaultDataDir returns the default data directory path.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".local/share/docrag"
	}
	return filepath.Join(home, ".local", "share", "docrag")
}

// DefaultVectorstoreDir returns the default root for vector store directories.
func DefaultVectorstoreDir() string {
	return filepath.Join(DefaultDataDir(), "vectorstore")
}

// DefaultUploadDir returns the default directory for uploaded files.
func DefaultUploadDir() string {
	return filepath.Join(DefaultDataDir(), "uploads")
}

// DefaultRegistryPath returns the default index registry file path.
func DefaultRegistryPath() string {
	return filepath.Join(DefaultDataDir(), DefaultRegistryFileName)
}
