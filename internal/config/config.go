// Package config provides configuration loading and structs for the yomu server and CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables that override secrets from the config file.
const (
	EnvEmbeddingAPIKey = "YOMU_EMBEDDING_API_KEY"
	EnvAnswerAPIKey    = "YOMU_ANSWER_API_KEY"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Answer    AnswerConfig    `yaml:"answer"`
	Watch     WatchConfig     `yaml:"watch"`
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the vector index and the ingestion ledger.
// The index metadata sidecar lives next to IndexPath with a ".meta" suffix.
type StorageConfig struct {
	IndexPath    string `yaml:"index_path"`
	DatabasePath string `yaml:"database_path"`
	Compression  string `yaml:"compression"` // none, lz4 or zstd
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider          string  `yaml:"provider"` // onnx, openai or mock
	ModelID           string  `yaml:"model_id"`
	ModelPath         string  `yaml:"model_path"`
	Dimensions        int     `yaml:"dimensions"`
	MaxTokens         int     `yaml:"max_tokens"`
	CacheSize         int     `yaml:"cache_size"`
	BaseURL           string  `yaml:"base_url"`
	APIKey            string  `yaml:"api_key"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BatchSize         int     `yaml:"batch_size"`
}

// RetrievalConfig holds the confidence gates. Pointers distinguish an explicit 0 from unset.
//
// Deployments have used both 0.15/0.005 (permissive) and 0.22/0.03 (strict).
type RetrievalConfig struct {
	TopK      int      `yaml:"top_k"`
	MinScore  *float64 `yaml:"min_score"`
	MinMargin *float64 `yaml:"min_margin"`
}

// Gate returns the configured thresholds, falling back to the defaults.
func (r *RetrievalConfig) Gate() (minScore, minMargin float64) {
	minScore, minMargin = DefaultMinScore, DefaultMinMargin
	if r.MinScore != nil {
		minScore = *r.MinScore
	}
	if r.MinMargin != nil {
		minMargin = *r.MinMargin
	}
	return minScore, minMargin
}

// IngestConfig holds extraction and chunking settings.
type IngestConfig struct {
	ChunkSize    int      `yaml:"chunk_size"`
	ChunkOverlap int      `yaml:"chunk_overlap"`
	Extensions   []string `yaml:"extensions"`
	Workers      int      `yaml:"workers"`
}

// AnswerConfig configures the OpenAI-compatible chat endpoint used by ask.
type AnswerConfig struct {
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	APIKey         string  `yaml:"api_key"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// Load reads and parses the config file at path, expands paths, applies defaults
// and environment overrides. Returns an error if the file cannot be read, parsed or validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	applyEnv(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.IndexPath = expandPath(cfg.Storage.IndexPath, configDir)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Default returns the built-in configuration with environment overrides applied.
// It is used when no config file exists.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	applyEnv(&cfg)
	return &cfg
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case ProviderONNX, ProviderOpenAI, ProviderMock:
	default:
		return fmt.Errorf("embedding.provider: unknown provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	switch strings.ToLower(strings.TrimSpace(c.Storage.Compression)) {
	case "", "none", "lz4", "zstd":
	default:
		return fmt.Errorf("storage.compression: unknown value %q", c.Storage.Compression)
	}
	if c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap (%d) must be smaller than ingest.chunk_size (%d)",
			c.Ingest.ChunkOverlap, c.Ingest.ChunkSize)
	}
	minScore, minMargin := c.Retrieval.Gate()
	if minScore < -1 || minScore > 1 {
		return fmt.Errorf("retrieval.min_score must be within [-1, 1], got %v", minScore)
	}
	if minMargin < 0 {
		return fmt.Errorf("retrieval.min_margin must not be negative, got %v", minMargin)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvEmbeddingAPIKey); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv(EnvAnswerAPIKey); v != "" {
		cfg.Answer.APIKey = v
	}
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
