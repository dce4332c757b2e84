// Package search provides the confidence-gated nearest-neighbour searcher.
package search

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/store"
	"github.com/hyperjump/yomu/internal/vector"
)

// ErrInvalidK is returned when k is not positive.
var ErrInvalidK = errors.New("k must be positive")

const (
	// DefaultMinScore is the absolute gate: a top score below it yields no results.
	DefaultMinScore = 0.15
	// DefaultMinMargin is the ambiguity gate: a top-two gap below it yields no results.
	DefaultMinMargin = 0.005
)

// GateConfig holds the two acceptance thresholds.
type GateConfig struct {
	MinScore  float64
	MinMargin float64
}

// DefaultGate returns the default thresholds.
func DefaultGate() GateConfig {
	return GateConfig{MinScore: DefaultMinScore, MinMargin: DefaultMinMargin}
}

// Validate checks the thresholds are usable with cosine scores.
func (g GateConfig) Validate() error {
	if g.MinScore < -1 || g.MinScore > 1 {
		return fmt.Errorf("min_score must be within [-1, 1], got %v", g.MinScore)
	}
	if g.MinMargin < 0 || g.MinMargin > 2 {
		return fmt.Errorf("min_margin must be within [0, 2], got %v", g.MinMargin)
	}
	return nil
}

// Index is the read side of the record store used by the searcher.
type Index interface {
	Count() int
	Nearest(query []float32, n int) ([]store.Neighbor, error)
}

// Searcher runs exact similarity search and applies the confidence gates.
type Searcher struct {
	index  Index
	gate   GateConfig
	logger *zap.Logger
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithLogger sets the logger for the searcher.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Searcher) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSearcher creates a searcher over index with the given gates.
func NewSearcher(index Index, gate GateConfig, opts ...Option) (*Searcher, error) {
	if err := gate.Validate(); err != nil {
		return nil, err
	}
	s := &Searcher{index: index, gate: gate, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Gate returns the configured thresholds.
func (s *Searcher) Gate() GateConfig { return s.gate }

// Search returns up to k chunks similar to query, best first. It returns no
// results when the store is empty, when the best score is below MinScore, or
// when the top two scores are closer than MinMargin.
func (s *Searcher) Search(ctx context.Context, query []float32, k int) ([]models.ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.index.Count() == 0 {
		return []models.ScoredChunk{}, nil
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	if !vector.Finite(query) {
		return nil, store.ErrInvalidVector
	}

	// At least two candidates so the ambiguity gate can compare.
	neighbors, err := s.index.Nearest(vector.Normalized(query), max(k, 2))
	if err != nil {
		return nil, err
	}
	if len(neighbors) == 0 {
		return []models.ScoredChunk{}, nil
	}

	top := neighbors[0].Score
	if top < s.gate.MinScore {
		s.logger.Debug("rejected by confidence gate",
			zap.Float64("top", top),
			zap.Float64("min_score", s.gate.MinScore))
		return []models.ScoredChunk{}, nil
	}
	if len(neighbors) > 1 {
		second := neighbors[1].Score
		if top-second < s.gate.MinMargin {
			s.logger.Debug("rejected by ambiguity gate",
				zap.Float64("top", top),
				zap.Float64("second", second),
				zap.Float64("min_margin", s.gate.MinMargin))
			return []models.ScoredChunk{}, nil
		}
	}

	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	results := make([]models.ScoredChunk, 0, len(neighbors))
	for _, n := range neighbors {
		if n.Score < s.gate.MinScore {
			break
		}
		results = append(results, models.ScoredChunk{
			ID:         n.Chunk.ID,
			Text:       n.Chunk.Text,
			SourcePath: n.Chunk.SourcePath,
			ChunkIndex: n.Chunk.ChunkIndex,
			Score:      n.Score,
		})
	}
	return results, nil
}
