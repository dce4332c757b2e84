package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HTTPConfig configures an HTTPEmbedder.
type HTTPConfig struct {
	BaseURL           string // e.g. https://api.openai.com/v1 or http://localhost:8081/v1
	APIKey            string
	Model             string
	Dimensions        int
	BatchSize         int
	RequestsPerSecond float64
	CacheSize         int
	Timeout           time.Duration
}

// HTTPEmbedder calls an OpenAI-compatible /embeddings endpoint.
// Requests are throttled by a token bucket and split into batches.
type HTTPEmbedder struct {
	cfg     HTTPConfig
	http    *http.Client
	limiter *rate.Limiter
	cache   *EmbeddingCache
	logger  *zap.Logger
}

// NewHTTPEmbedder creates an HTTP embedder. Model and Dimensions are required.
func NewHTTPEmbedder(cfg HTTPConfig, logger *zap.Logger) (*HTTPEmbedder, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("embedding base_url is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model_id is required for the openai provider")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HTTPEmbedder{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		cache:   NewEmbeddingCache(cfg.CacheSize),
		logger:  logger,
	}, nil
}

// Embed returns the embedding for text, using cache when available.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in order. Cached texts are not sent again.
func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []int
	for i, t := range texts {
		if v, ok := e.cache.Get(t); ok {
			out[i] = v
			continue
		}
		missing = append(missing, i)
	}

	for start := 0; start < len(missing); start += e.cfg.BatchSize {
		end := min(start+e.cfg.BatchSize, len(missing))
		batch := make([]string, 0, end-start)
		for _, i := range missing[start:end] {
			batch = append(batch, texts[i])
		}
		vecs, err := e.request(ctx, batch)
		if err != nil {
			return nil, err
		}
		for j, i := range missing[start:end] {
			out[i] = vecs[j]
			e.cache.Set(texts[i], vecs[j])
		}
	}
	return out, nil
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
}

func (e *HTTPEmbedder) request(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	data, err := json.Marshal(embeddingsRequest{Model: e.cfg.Model, Input: texts})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+"/embeddings", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	start := time.Now()
	resp, err := e.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embeddings request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embeddings response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embeddings: %s: %s", resp.Status, bytes.TrimSpace(body))
	}

	var result embeddingsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode embeddings response: %w", err)
	}
	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings: got %d vectors for %d inputs", len(result.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(texts) || out[d.Index] != nil {
			return nil, fmt.Errorf("embeddings: bad or duplicate index %d", d.Index)
		}
		if len(d.Embedding) != e.cfg.Dimensions {
			return nil, fmt.Errorf("embeddings: model %s returned %d dimensions, configured %d",
				e.cfg.Model, len(d.Embedding), e.cfg.Dimensions)
		}
		NormalizeL2Slice(d.Embedding)
		out[d.Index] = d.Embedding
	}

	e.logger.Debug("embedded batch",
		zap.Int("texts", len(texts)),
		zap.Duration("took", time.Since(start)))
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *HTTPEmbedder) Dimensions() int { return e.cfg.Dimensions }

// ModelID returns the remote model name.
func (e *HTTPEmbedder) ModelID() string { return e.cfg.Model }

// Close releases idle connections.
func (e *HTTPEmbedder) Close() error {
	e.http.CloseIdleConnections()
	return nil
}
