// Package models defines core data structures for chunks, queries, and search results.
package models

// ChunkRecord is the text payload stored alongside one indexed vector.
// ID equals the vector's position in the index.
type ChunkRecord struct {
	ID         int    `json:"id"`
	Text       string `json:"text"`
	SourcePath string `json:"source_path,omitempty"`
	ChunkIndex int    `json:"chunk_index"`
}

// IndexMetadata describes the live state of the record store.
type IndexMetadata struct {
	Dimension        int    `json:"dimension"`
	EmbeddingModelID string `json:"embedding_model_id"`
	Count            int    `json:"count"`
}
