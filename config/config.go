package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override values loaded from file.
const (
	EnvAddr      = "DOCRAG_ADDR"
	EnvLogLevel  = "DOCRAG_LOG_LEVEL"
	EnvStorePath = "DOCRAG_STORE_PATH"
)

// Embedding providers understood by the embedding adapters.
const (
	ProviderHash   = "hash"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Config holds all configuration for the document service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Store     StoreConfig     `yaml:"store"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Retrieve  RetrieveConfig  `yaml:"retrieve"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	Mode            string        `yaml:"mode"` // gin mode: "release", "debug", "test"
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"` // bounds loader and embedding calls per request
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ChunkingConfig holds text splitting configuration. Sizes are in characters.
type ChunkingConfig struct {
	ChunkSize    int      `yaml:"chunk_size"`
	ChunkOverlap int      `yaml:"chunk_overlap"`
	Separators   []string `yaml:"separators,omitempty"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider  string        `yaml:"provider"` // "hash", "openai", "ollama"
	Model     string        `yaml:"model"`
	BaseURL   string        `yaml:"base_url"`
	APIKeyEnv string        `yaml:"api_key_env"` // Environment variable for API key
	Dimension int           `yaml:"dimension"`
	BatchSize int           `yaml:"batch_size"`
	Workers   int           `yaml:"workers"`
	CacheSize int           `yaml:"cache_size"` // query embedding cache entries (0 = disabled)
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// StoreConfig holds persistence configuration. An empty path keeps the
// registry purely in memory.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// IngestConfig holds document registration and bulk ingest configuration.
type IngestConfig struct {
	DefaultSource string   `yaml:"default_source"`
	Includes      []string `yaml:"includes"`
	Excludes      []string `yaml:"excludes"`
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	TopK    int `yaml:"top_k"`
	MaxTopK int `yaml:"max_top_k"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level       string   `yaml:"level"`
	Format      string   `yaml:"format"` // "json" or "console"
	Development bool     `yaml:"development"`
	OutputPaths []string `yaml:"output_paths"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8000",
			Mode:            "release",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			RequestTimeout:  45 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Chunking: ChunkingConfig{
			ChunkSize:    2000,
			ChunkOverlap: 100,
		},
		Embedding: EmbeddingConfig{
			Provider:  ProviderHash,
			Model:     "all-minilm",
			APIKeyEnv: "OPENAI_API_KEY",
			Dimension: 384,
			BatchSize: 32,
			Workers:   4,
			CacheSize: 256,
			CacheTTL:  10 * time.Minute,
		},
		Ingest: IngestConfig{
			Includes: []string{"**/*.pdf", "**/*.txt", "**/*.md"},
			Excludes: []string{"**/.git/**", "**/node_modules/**", "**/.docrag/**"},
		},
		Retrieve: RetrieveConfig{
			TopK:    5,
			MaxTopK: 100,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			OutputPaths: []string{"stderr"},
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return cfg, nil
	case err != nil:
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromDir loads docrag.yaml or .docrag/config.yaml from dir, whichever
// exists first, falling back to defaults.
func LoadFromDir(dir string) (*Config, error) {
	for _, candidate := range []string{
		filepath.Join(dir, "docrag.yaml"),
		filepath.Join(dir, DataDirName, "config.yaml"),
	} {
		if _, err := os.Stat(candidate); err == nil {
			return Load(candidate)
		}
	}
	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyEnv overrides file values with DOCRAG_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvAddr); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvStorePath); v != "" {
		c.Store.Path = v
	}
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunking.chunk_size must be positive, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunking.chunk_overlap must be in [0, %d), got %d", c.Chunking.ChunkSize, c.Chunking.ChunkOverlap)
	}
	if c.Retrieve.TopK <= 0 {
		return fmt.Errorf("retrieve.top_k must be positive, got %d", c.Retrieve.TopK)
	}
	if c.Retrieve.MaxTopK < c.Retrieve.TopK {
		return fmt.Errorf("retrieve.max_top_k (%d) must be at least top_k (%d)", c.Retrieve.MaxTopK, c.Retrieve.TopK)
	}
	switch c.Embedding.Provider {
	case ProviderHash:
		if c.Embedding.Dimension <= 0 {
			return fmt.Errorf("embedding.dimension must be positive for the hash provider")
		}
	case ProviderOpenAI, ProviderOllama:
		if c.Embedding.Model == "" {
			return fmt.Errorf("embedding.model is required for provider %q", c.Embedding.Provider)
		}
	default:
		return fmt.Errorf("unknown embedding.provider %q", c.Embedding.Provider)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding.batch_size must be positive, got %d", c.Embedding.BatchSize)
	}
	return nil
}

// DataDirName is the per-directory folder holding config and the store.
const DataDirName = ".docrag"

// IndexDBPath returns the default path of the bolt store for a directory.
func IndexDBPath(dir string) string {
	return filepath.Join(dir, DataDirName, "index.db")
}
