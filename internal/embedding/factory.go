package embedding

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/yomu/internal/config"
)

// New builds the embedder selected by cfg.Provider. When the ONNX runtime or
// model cannot be loaded it logs a warning and falls back to the mock embedder.
func New(cfg *config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewHTTPEmbedder(HTTPConfig{
			BaseURL:           cfg.BaseURL,
			APIKey:            cfg.APIKey,
			Model:             cfg.ModelID,
			Dimensions:        cfg.Dimensions,
			BatchSize:         cfg.BatchSize,
			RequestsPerSecond: cfg.RequestsPerSecond,
			CacheSize:         cfg.CacheSize,
		}, logger)
	case config.ProviderMock:
		return mockFor(cfg), nil
	case config.ProviderONNX, "":
		modelID := cfg.ModelID
		if modelID == "" {
			modelID = strings.TrimSuffix(filepath.Base(cfg.ModelPath), filepath.Ext(cfg.ModelPath))
		}
		e, err := NewONNXEmbedder(cfg.ModelPath, modelID, cfg.Dimensions, cfg.MaxTokens, cfg.CacheSize, logger)
		if err != nil {
			logger.Warn("ONNX embedder not available, using mock embedder (semantic search will not be meaningful)",
				zap.String("model_path", cfg.ModelPath),
				zap.Error(err))
			return mockFor(cfg), nil
		}
		logger.Info("ONNX embedder loaded",
			zap.String("model_path", cfg.ModelPath),
			zap.String("model_id", modelID))
		return e, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

func mockFor(cfg *config.EmbeddingConfig) Embedder {
	m := NewMockEmbedder(cfg.Dimensions)
	if cfg.ModelID != "" && cfg.Provider == config.ProviderMock {
		return m.WithModelID(cfg.ModelID)
	}
	return m
}
