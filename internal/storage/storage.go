// Package storage records which source files have been ingested.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"path/filepath"
	"time"
)

// ErrNotFound is returned when a source has no ledger entry.
var ErrNotFound = errors.New("source not found")

// Source is one ingested file and where its chunks landed in the store.
type Source struct {
	ID           string    `json:"id"`
	Path         string    `json:"path"`
	ModTime      time.Time `json:"mtime"`
	Size         int64     `json:"size"`
	ChunkCount   int       `json:"chunk_count"`
	FirstChunkID int       `json:"first_chunk_id"`
	ModelID      string    `json:"model_id"`
	RunID        string    `json:"run_id"`
	IngestedAt   time.Time `json:"ingested_at"`
}

// Unchanged reports whether s still describes a file with the given mtime and size.
func (s *Source) Unchanged(modTime time.Time, size int64) bool {
	return s.Size == size && s.ModTime.Equal(modTime.UTC().Truncate(time.Second))
}

// Ledger persists ingestion history.
type Ledger interface {
	RecordSource(ctx context.Context, src *Source) error
	GetSource(ctx context.Context, path string) (*Source, error)
	ListSources(ctx context.Context, offset, limit int) ([]*Source, error)
	CountSources(ctx context.Context) (int64, error)
	TotalChunks(ctx context.Context) (int64, error)
	Clear(ctx context.Context) error
	Close() error
}

const sourceIDPrefix = "src:"

// SourceID returns a stable id for the given path. Same path always yields the same id.
func SourceID(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	hash := sha256.Sum256([]byte(filepath.Clean(path)))
	return sourceIDPrefix + hex.EncodeToString(hash[:])
}
