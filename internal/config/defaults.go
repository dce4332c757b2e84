package config

import "strings"

// Embedding providers.
const (
	ProviderONNX   = "onnx"
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// Retrieval gate defaults.
const (
	DefaultMinScore  = 0.15
	DefaultMinMargin = 0.005
)

// DefaultExtensions are the file types ingestion and the watcher pick up.
var DefaultExtensions = []string{".txt", ".md", ".rst", ".pdf", ".docx", ".xlsx", ".odt", ".rtf"}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	cfg.Embedding.Provider = strings.ToLower(strings.TrimSpace(cfg.Embedding.Provider))
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.IndexPath == "" {
		cfg.Storage.IndexPath = "/usr/local/var/yomu/data/index/vectors.yvec"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/yomu/data/db/ledger.db"
	}
	if cfg.Storage.Compression == "" {
		cfg.Storage.Compression = "zstd"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = ProviderONNX
	}
	if cfg.Embedding.Provider == ProviderONNX && cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/yomu/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Provider == ProviderOpenAI && cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Embedding.RequestsPerSecond == 0 {
		cfg.Embedding.RequestsPerSecond = 5
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 64
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.MinScore == nil {
		v := DefaultMinScore
		cfg.Retrieval.MinScore = &v
	}
	if cfg.Retrieval.MinMargin == nil {
		v := DefaultMinMargin
		cfg.Retrieval.MinMargin = &v
	}
	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 500
	}
	if cfg.Ingest.ChunkOverlap == 0 {
		cfg.Ingest.ChunkOverlap = 50
	}
	if cfg.Ingest.Extensions == nil {
		cfg.Ingest.Extensions = append([]string(nil), DefaultExtensions...)
	}
	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = 4
	}
	if cfg.Answer.BaseURL == "" {
		cfg.Answer.BaseURL = "http://localhost:8081/v1"
	}
	if cfg.Answer.Model == "" {
		cfg.Answer.Model = "local"
	}
	if cfg.Answer.MaxTokens == 0 {
		cfg.Answer.MaxTokens = 512
	}
	if cfg.Answer.TimeoutSeconds == 0 {
		cfg.Answer.TimeoutSeconds = 120
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
