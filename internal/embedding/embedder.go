// Package embedding turns text into vectors via ONNX, an OpenAI-compatible
// HTTP endpoint, or a deterministic mock.
package embedding

import "context"

// Embedder produces vector embeddings for text.
// ModelID identifies the model so vectors from different models are never mixed.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelID() string
	Close() error
}
