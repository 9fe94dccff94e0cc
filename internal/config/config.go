// Package config handles configuration loading and validation for docrag.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

// Config represents the complete docrag configuration.
type Config struct {
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Indexing   IndexingConfig   `mapstructure:"indexing"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	Server     ServerConfig     `mapstructure:"server"`
	Timeouts   TimeoutsConfig   `mapstructure:"timeouts"`
	Ignore     []string         `mapstructure:"ignore"`
}

// EmbeddingsConfig configures the embedding service.
type EmbeddingsConfig struct {
	Provider string `mapstructure:"provider"`
	// Normalize scales every vector to unit length before it is stored or queried.
	Normalize bool              `mapstructure:"normalize"`
	Ollama    OllamaEmbedConfig `mapstructure:"ollama"`
	OpenAI    OpenAIEmbedConfig `mapstructure:"openai"`
}

// OllamaEmbedConfig configures Ollama embeddings.
type OllamaEmbedConfig struct {
	URL   string `mapstructure:"url"`
	Model string `mapstructure:"model"`
}

// OpenAIEmbedConfig configures OpenAI embeddings.
type OpenAIEmbedConfig struct {
	Model      string `mapstructure:"model"`
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Dimensions int    `mapstructure:"dimensions"`
}

// LLMConfig configures the LLM used to synthesize answers.
type LLMConfig struct {
	Provider    string          `mapstructure:"provider"`
	Temperature float64         `mapstructure:"temperature"`
	MaxTokens   int             `mapstructure:"max_tokens"`
	Ollama      OllamaLLMConfig `mapstructure:"ollama"`
	OpenAI      OpenAILLMConfig `mapstructure:"openai"`
	Anthropic   AnthropicConfig `mapstructure:"anthropic"`
}

// OllamaLLMConfig configures Ollama LLM.
type OllamaLLMConfig struct {
	URL   string `mapstructure:"url"`
	Model string `mapstructure:"model"`
}

// OpenAILLMConfig configures OpenAI LLM.
type OpenAILLMConfig struct {
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// AnthropicConfig configures Anthropic LLM.
type AnthropicConfig struct {
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// StorageConfig configures where persistent state lives.
type StorageConfig struct {
	VectorstoreDir string `mapstructure:"vectorstore_dir"`
	RegistryPath   string `mapstructure:"registry_path"`
	UploadDir      string `mapstructure:"upload_dir"`
}

// IndexingConfig configures document splitting and embedding batches.
type IndexingConfig struct {
	ChunkSize     int   `mapstructure:"chunk_size"`
	ChunkOverlap  int   `mapstructure:"chunk_overlap"`
	BatchSize     int   `mapstructure:"batch_size"`
	MaxUploadSize int64 `mapstructure:"max_upload_size"`
}

// RetrievalConfig configures retrievers and their cache.
type RetrievalConfig struct {
	DefaultK  int     `mapstructure:"default_k"`
	CacheSize int     `mapstructure:"cache_size"`
	FetchK    int     `mapstructure:"fetch_k"`
	MMRLambda float64 `mapstructure:"mmr_lambda"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// TimeoutsConfig bounds the three blocking external calls.
type TimeoutsConfig struct {
	Embedding  time.Duration `mapstructure:"embedding"`
	Storage    time.Duration `mapstructure:"storage"`
	Generation time.Duration `mapstructure:"generation"`
}

// Global configuration instance
var cfg *Config

// Get returns the current configuration.
func Get() *Config {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Embeddings: EmbeddingsConfig{
			Provider:  DefaultEmbeddingProvider,
			Normalize: DefaultEmbedNormalize,
			Ollama: OllamaEmbedConfig{
				URL:   DefaultOllamaURL,
				Model: DefaultOllamaEmbedModel,
			},
			OpenAI: OpenAIEmbedConfig{
				Model: DefaultOpenAIEmbedModel,
			},
		},
		LLM: LLMConfig{
			Provider:    DefaultLLMProvider,
			Temperature: DefaultTemperature,
			MaxTokens:   DefaultMaxTokens,
			Ollama: OllamaLLMConfig{
				URL:   DefaultOllamaURL,
				Model: DefaultOllamaLLMModel,
			},
			OpenAI: OpenAILLMConfig{
				Model: DefaultOpenAILLMModel,
			},
			Anthropic: AnthropicConfig{
				Model: DefaultAnthropicModel,
			},
		},
		Storage: StorageConfig{
			VectorstoreDir: DefaultVectorstoreDir(),
			RegistryPath:   DefaultRegistryPath(),
			UploadDir:      DefaultUploadDir(),
		},
		Indexing: IndexingConfig{
			ChunkSize:     DefaultChunkSize,
			ChunkOverlap:  DefaultChunkOverlap,
			BatchSize:     DefaultBatchSize,
			MaxUploadSize: DefaultMaxUploadSize,
		},
		Retrieval: RetrievalConfig{
			DefaultK:  DefaultK,
			CacheSize: DefaultCacheSize,
			FetchK:    DefaultFetchK,
			MMRLambda: DefaultMMRLambda,
		},
		Server: ServerConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Timeouts: TimeoutsConfig{
			Embedding:  DefaultEmbeddingTimeout,
			Storage:    DefaultStorageTimeout,
			Generation: DefaultGenerationTimeout,
		},
		Ignore: DefaultIgnorePatterns(),
	}
}

// Load reads configuration from file and environment variables.
func Load(configFile string) error {
	// Set defaults
	setDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(DefaultConfigDir())
		viper.AddConfigPath(".")

		// A .docragrc.yaml in the current directory or a parent wins
		if rcPath := findRCFile(); rcPath != "" {
			viper.SetConfigFile(rcPath)
		}
	}

	// Environment variables
	viper.SetEnvPrefix("DOCRAG")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	bindLegacyEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug("No config file found, using defaults")
	} else {
		log.Debug("Loaded config from", "file", viper.ConfigFileUsed())
	}

	loaded := &Config{}
	if err := viper.Unmarshal(loaded); err != nil {
		return fmt.Errorf("error parsing config: %w", err)
	}
	if err := loaded.Validate(); err != nil {
		return err
	}
	cfg = loaded

	// Load API keys from environment if not in config
	loadAPIKeysFromEnv()

	return nil
}

// Validate checks values that would otherwise fail deep inside a request.
func (c *Config) Validate() error {
	if c.Indexing.ChunkSize <= 0 {
		return fmt.Errorf("indexing.chunk_size must be positive, got %d", c.Indexing.ChunkSize)
	}
	if c.Indexing.ChunkOverlap < 0 || c.Indexing.ChunkOverlap >= c.Indexing.ChunkSize {
		return fmt.Errorf("indexing.chunk_overlap must be in [0, chunk_size), got %d", c.Indexing.ChunkOverlap)
	}
	if c.Retrieval.DefaultK <= 0 {
		return fmt.Errorf("retrieval.default_k must be positive, got %d", c.Retrieval.DefaultK)
	}
	if c.Retrieval.CacheSize <= 0 {
		return fmt.Errorf("retrieval.cache_size must be positive, got %d", c.Retrieval.CacheSize)
	}
	if c.Retrieval.MMRLambda < 0 || c.Retrieval.MMRLambda > 1 {
		return fmt.Errorf("retrieval.mmr_lambda must be in [0, 1], got %g", c.Retrieval.MMRLambda)
	}
	return nil
}

// setDefaults sets default values in viper.
func setDefaults() {
	// Embeddings
	viper.SetDefault("embeddings.provider", DefaultEmbeddingProvider)
	viper.SetDefault("embeddings.normalize", DefaultEmbedNormalize)
	viper.SetDefault("embeddings.ollama.url", DefaultOllamaURL)
	viper.SetDefault("embeddings.ollama.model", DefaultOllamaEmbedModel)
	viper.SetDefault("embeddings.openai.model", DefaultOpenAIEmbedModel)

	// LLM
	viper.SetDefault("llm.provider", DefaultLLMProvider)
	viper.SetDefault("llm.temperature", DefaultTemperature)
	viper.SetDefault("llm.max_tokens", DefaultMaxTokens)
	viper.SetDefault("llm.ollama.url", DefaultOllamaURL)
	viper.SetDefault("llm.ollama.model", DefaultOllamaLLMModel)
	viper.SetDefault("llm.openai.model", DefaultOpenAILLMModel)
	viper.SetDefault("llm.anthropic.model", DefaultAnthropicModel)

	// Storage
	viper.SetDefault("storage.vectorstore_dir", DefaultVectorstoreDir())
	viper.SetDefault("storage.registry_path", DefaultRegistryPath())
	viper.SetDefault("storage.upload_dir", DefaultUploadDir())

	// Indexing
	viper.SetDefault("indexing.chunk_size", DefaultChunkSize)
	viper.SetDefault("indexing.chunk_overlap", DefaultChunkOverlap)
	viper.SetDefault("indexing.batch_size", DefaultBatchSize)
	viper.SetDefault("indexing.max_upload_size", DefaultMaxUploadSize)

	// Retrieval
	viper.SetDefault("retrieval.default_k", DefaultK)
	viper.SetDefault("retrieval.cache_size", DefaultCacheSize)
	viper.SetDefault("retrieval.fetch_k", DefaultFetchK)
	viper.SetDefault("retrieval.mmr_lambda", DefaultMMRLambda)

	// Server
	viper.SetDefault("server.host", DefaultHost)
	viper.SetDefault("server.port", DefaultPort)

	// Timeouts
	viper.SetDefault("timeouts.embedding", DefaultEmbeddingTimeout)
	viper.SetDefault("timeouts.storage", DefaultStorageTimeout)
	viper.SetDefault("timeouts.generation", DefaultGenerationTimeout)

	// Ignore patterns
	viper.SetDefault("ignore", DefaultIgnorePatterns())
}

// bindLegacyEnv maps the unprefixed Ollama variables onto both the LLM and
// the embedding settings, so host and model come from one place.
func bindLegacyEnv() {
	_ = viper.BindEnv("llm.ollama.url", "DOCRAG_LLM_OLLAMA_URL", "OLLAMA_HOST")
	_ = viper.BindEnv("llm.ollama.model", "DOCRAG_LLM_OLLAMA_MODEL", "OLLAMA_MODEL")
	_ = viper.BindEnv("embeddings.ollama.url", "DOCRAG_EMBEDDINGS_OLLAMA_URL", "OLLAMA_HOST")
	_ = viper.BindEnv("indexing.chunk_size", "DOCRAG_INDEXING_CHUNK_SIZE", "CHUNK_SIZE")
	_ = viper.BindEnv("indexing.chunk_overlap", "DOCRAG_INDEXING_CHUNK_OVERLAP", "CHUNK_OVERLAP")
	_ = viper.BindEnv("embeddings.normalize", "DOCRAG_EMBEDDINGS_NORMALIZE", "EMBED_NORMALIZE")
	_ = viper.BindEnv("storage.vectorstore_dir", "DOCRAG_STORAGE_VECTORSTORE_DIR", "VECTORSTORE_DIR")
	_ = viper.BindEnv("storage.upload_dir", "DOCRAG_STORAGE_UPLOAD_DIR", "UPLOAD_DIR")
}

// findRCFile searches for .docragrc.yaml starting from current directory.
func findRCFile() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		rcPath := filepath.Join(dir, ".docragrc.yaml")
		if _, err := os.Stat(rcPath); err == nil {
			return rcPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// loadAPIKeysFromEnv loads API keys from environment variables if not already set.
func loadAPIKeysFromEnv() {
	if cfg.Embeddings.OpenAI.APIKey == "" {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.Embeddings.OpenAI.APIKey = key
		}
	}
	if cfg.LLM.OpenAI.APIKey == "" {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.LLM.OpenAI.APIKey = key
		}
	}

	if cfg.LLM.Anthropic.APIKey == "" {
		if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
			cfg.LLM.Anthropic.APIKey = key
		}
	}
}

// ConfigFilePath returns the path of the loaded config file, or empty string if none.
func ConfigFilePath() string {
	return viper.ConfigFileUsed()
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// LLMEndpoint returns the provider, model and host the LLM service is built
// from. The health endpoint reports these same values.
func (c *Config) LLMEndpoint() (provider, model, host string) {
	switch c.LLM.Provider {
	case "openai":
		host = c.LLM.OpenAI.BaseURL
		if host == "" {
			host = "https://api.openai.com/v1"
		}
		return c.LLM.Provider, c.LLM.OpenAI.Model, host
	case "anthropic":
		host = c.LLM.Anthropic.BaseURL
		if host == "" {
			host = DefaultAnthropicURL
		}
		return c.LLM.Provider, c.LLM.Anthropic.Model, host
	default:
		return c.LLM.Provider, c.LLM.Ollama.Model, c.LLM.Ollama.URL
	}
}
