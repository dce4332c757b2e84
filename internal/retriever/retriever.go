// Package retriever turns query text into gated search results.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/yomu/internal/embedding"
	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/search"
	"github.com/hyperjump/yomu/internal/store"
)

// ErrEmptyQuery is returned when the query text is empty or whitespace.
var ErrEmptyQuery = errors.New("query text is empty")

// DefaultTopK is used when neither the request nor the configuration sets k.
const DefaultTopK = 5

// Retriever embeds query text and runs it through the confidence-gated searcher
// against a single store.
type Retriever struct {
	store    *store.Store
	embedder embedding.Embedder
	searcher *search.Searcher
	topK     int
	logger   *zap.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLogger sets the logger for the retriever and its searcher.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Retriever) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTopK sets the k used when a request passes k <= 0.
func WithTopK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.topK = k
		}
	}
}

// New creates a retriever over st using emb for queries.
func New(st *store.Store, emb embedding.Embedder, gate search.GateConfig, opts ...Option) (*Retriever, error) {
	if st == nil || emb == nil {
		return nil, fmt.Errorf("retriever requires a store and an embedder")
	}
	r := &Retriever{store: st, embedder: emb, topK: DefaultTopK, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	s, err := search.NewSearcher(st, gate, search.WithLogger(r.logger))
	if err != nil {
		return nil, err
	}
	r.searcher = s
	return r, nil
}

// Search embeds text and returns up to k gated results, best first.
// k <= 0 uses the configured top k.
func (r *Retriever) Search(ctx context.Context, text string, k int) ([]models.ScoredChunk, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		k = r.topK
	}

	start := time.Now()
	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	meta := r.store.Metadata()
	if len(vec) != meta.Dimension {
		return nil, &store.DimensionMismatchError{Expected: meta.Dimension, Actual: len(vec)}
	}
	if meta.Count > 0 && r.embedder.ModelID() != meta.EmbeddingModelID {
		return nil, &store.ModelMismatchError{Store: meta.EmbeddingModelID, Got: r.embedder.ModelID()}
	}

	results, err := r.searcher.Search(ctx, vec, k)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("retrieved",
		zap.Int("k", k),
		zap.Int("results", len(results)),
		zap.Duration("took", time.Since(start)))
	return results, nil
}

// Reload re-reads the persisted store so state changed elsewhere is never served stale.
func (r *Retriever) Reload() (store.LoadReport, error) {
	return r.store.Reload()
}

// Store returns the store the retriever searches.
func (r *Retriever) Store() *store.Store { return r.store }

// Embedder returns the query embedder.
func (r *Retriever) Embedder() embedding.Embedder { return r.embedder }

// TopK returns the default k.
func (r *Retriever) TopK() int { return r.topK }
