// Package store holds indexed vectors together with their chunk records and
// keeps both consistent in memory and on disk.
package store

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/vector"
)

// Store is an append-only set of unit vectors and the chunk records describing them.
// Position i in the index is the vector for chunk record i.
//
// Store is safe for concurrent use: writes are serialized and searches run
// concurrently with each other but never with a write.
type Store struct {
	mu sync.RWMutex

	path        string
	dim         int // configured dimension, adopted whenever the store is empty
	compression vector.Compression
	logger      *zap.Logger

	index    *vector.FlatIndex
	modelID  string
	chunks   []models.ChunkRecord
	lastLoad LoadReport
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCompression sets the payload compression used by Save.
func WithCompression(c vector.Compression) Option {
	return func(s *Store) { s.compression = c }
}

// WithPath sets where Save writes the index; the sidecar goes to path + ".meta".
func WithPath(path string) Option {
	return func(s *Store) { s.path = path }
}

// Neighbor is a chunk paired with its inner-product score against a query.
type Neighbor struct {
	Chunk models.ChunkRecord
	Score float64
}

// New creates an empty store for vectors of the given dimension.
// Without WithPath the store is memory-only and Save does nothing.
func New(dim int, opts ...Option) (*Store, error) {
	idx, err := vector.NewFlatIndex(dim)
	if err != nil {
		return nil, err
	}
	s := &Store{dim: dim, index: idx, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.lastLoad = LoadReport{State: StateFresh}
	return s, nil
}

// Add validates and appends a batch of vectors with their texts, all taken from
// sourcePath (empty when unknown) and produced by modelID. Vectors are copied and
// normalized to unit length. On any error the store is left unchanged.
// It returns the number of records added.
func (s *Store) Add(vectors [][]float32, texts []string, sourcePath, modelID string) (int, error) {
	if len(vectors) != len(texts) {
		return 0, fmt.Errorf("%w: %d vectors, %d texts", ErrLengthMismatch, len(vectors), len(texts))
	}
	if len(vectors) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if modelID == "" || (len(s.chunks) > 0 && modelID != s.modelID) {
		return 0, &ModelMismatchError{Store: s.modelID, Got: modelID}
	}
	dim := s.index.Dim()
	normalized := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return 0, &DimensionMismatchError{Expected: dim, Actual: len(v)}
		}
		if !vector.Finite(v) {
			return 0, fmt.Errorf("%w: vector %d", ErrInvalidVector, i)
		}
		normalized[i] = vector.Normalized(v)
	}

	if err := s.index.Add(normalized); err != nil {
		return 0, err
	}
	first := len(s.chunks)
	for i, text := range texts {
		s.chunks = append(s.chunks, models.ChunkRecord{
			ID:         first + i,
			Text:       text,
			SourcePath: sourcePath,
			ChunkIndex: i,
		})
	}
	s.modelID = modelID

	s.logger.Debug("added vectors",
		zap.Int("added", len(vectors)),
		zap.Int("count", len(s.chunks)),
		zap.String("source", sourcePath))
	return len(vectors), nil
}

// Reset drops every vector and record, clears the model id and persists the
// empty state. Calling it repeatedly yields the same empty store.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	if err := s.saveLocked(); err != nil {
		return fmt.Errorf("persist reset: %w", err)
	}
	s.logger.Info("store reset", zap.String("path", s.path))
	return nil
}

func (s *Store) clearLocked() {
	if s.index.Dim() != s.dim {
		s.index, _ = vector.NewFlatIndex(s.dim)
	} else {
		s.index.Reset()
	}
	s.chunks = nil
	s.modelID = ""
}

// Nearest returns the n highest-scoring chunks for query, best first.
// query is used as given; callers normalize it. An empty store yields no neighbors.
func (s *Store) Nearest(query []float32, n int) ([]Neighbor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(query) != s.index.Dim() {
		return nil, &DimensionMismatchError{Expected: s.index.Dim(), Actual: len(query)}
	}
	hits, err := s.index.Search(query, n)
	if err != nil {
		return nil, err
	}
	out := make([]Neighbor, len(hits))
	for i, h := range hits {
		out[i] = Neighbor{Chunk: s.chunks[h.Pos], Score: h.Score}
	}
	return out, nil
}

// Dimension returns the vector dimension.
func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Dim()
}

// ModelID returns the embedding model the stored vectors came from, or "" when empty.
func (s *Store) ModelID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modelID
}

// Count returns the number of stored vectors.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Metadata returns dimension, model id and count as one consistent snapshot.
func (s *Store) Metadata() models.IndexMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.IndexMetadata{
		Dimension:        s.index.Dim(),
		EmbeddingModelID: s.modelID,
		Count:            len(s.chunks),
	}
}

// Chunk returns the record with the given id.
func (s *Store) Chunk(id int) (models.ChunkRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id < 0 || id >= len(s.chunks) {
		return models.ChunkRecord{}, false
	}
	return s.chunks[id], true
}

// Chunks returns a copy of every record in id order.
func (s *Store) Chunks() []models.ChunkRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ChunkRecord, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// Vector returns a copy of the stored (normalized) vector for id.
func (s *Store) Vector(id int) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id < 0 || id >= len(s.chunks) {
		return nil, false
	}
	return s.index.Vector(id), true
}

// Path returns the index path, or "" for a memory-only store.
func (s *Store) Path() string { return s.path }

// LastLoad returns the report of the most recent Load or Reload.
func (s *Store) LastLoad() LoadReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastLoad
}
