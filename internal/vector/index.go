// Package vector provides the exact inner-product index behind the record store.
package vector

import (
	"fmt"
	"sort"
)

// Hit is a single search hit. Pos is the vector's position in the index.
type Hit struct {
	Pos   int
	Score float64 // inner product; cosine similarity when both sides are unit length
}

// FlatIndex is an exact inner-product index over fixed-length float32 vectors.
// Vectors are stored contiguously; a vector's position is its identity.
// FlatIndex does no locking; the owning store serializes access.
type FlatIndex struct {
	dim  int
	data []float32
}

// NewFlatIndex creates an empty index for vectors of the given dimension.
func NewFlatIndex(dim int) (*FlatIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dim)
	}
	return &FlatIndex{dim: dim}, nil
}

// Dim returns the vector dimension.
func (f *FlatIndex) Dim() int { return f.dim }

// Len returns the number of vectors in the index.
func (f *FlatIndex) Len() int { return len(f.data) / f.dim }

// Add appends vectors. Either every vector is appended or none is.
func (f *FlatIndex) Add(vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != f.dim {
			return fmt.Errorf("vector %d: dimension mismatch: got %d, expected %d", i, len(v), f.dim)
		}
	}
	grown := make([]float32, len(f.data), len(f.data)+len(vectors)*f.dim)
	copy(grown, f.data)
	for _, v := range vectors {
		grown = append(grown, v...)
	}
	f.data = grown
	return nil
}

// Vector returns a copy of the vector at position i.
func (f *FlatIndex) Vector(i int) []float32 {
	out := make([]float32, f.dim)
	copy(out, f.data[i*f.dim:(i+1)*f.dim])
	return out
}

// Search returns up to k hits by descending inner product with query.
// Equal scores keep insertion order (lower position first).
func (f *FlatIndex) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), f.dim)
	}
	n := f.Len()
	if k <= 0 || n == 0 {
		return nil, nil
	}
	hits := make([]Hit, n)
	for i := 0; i < n; i++ {
		hits[i] = Hit{Pos: i, Score: InnerProduct(query, f.data[i*f.dim:(i+1)*f.dim])}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })
	if k > n {
		k = n
	}
	return hits[:k], nil
}

// Reset drops every vector; the dimension is kept.
func (f *FlatIndex) Reset() {
	f.data = nil
}

// raw exposes the contiguous backing slice for the codec.
func (f *FlatIndex) raw() []float32 { return f.data }
