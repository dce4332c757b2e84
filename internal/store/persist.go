package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/vector"
)

// MetaSuffix is appended to the index path to name the metadata sidecar.
const MetaSuffix = ".meta"

// LoadState is the outcome of loading persisted state.
type LoadState string

const (
	// StateFresh means no index artifact existed; the store starts empty.
	StateFresh LoadState = "fresh"
	// StateLoaded means index and sidecar were read and agree.
	StateLoaded LoadState = "loaded"
	// StateCorrupt means persisted state was discarded and the store starts empty.
	StateCorrupt LoadState = "corrupt"
)

// LoadReport describes what Load found on disk.
type LoadReport struct {
	State  LoadState `json:"state"`
	Reason string    `json:"reason,omitempty"`
	Count  int       `json:"count"`
	// Cause wraps ErrCorruptState when State is StateCorrupt.
	Cause error `json:"-"`
}

type sidecar struct {
	Dim            int            `json:"dim"`
	EmbeddingModel string         `json:"embedding_model"`
	Count          int            `json:"count"`
	Chunks         []sidecarChunk `json:"chunks"`
}

type sidecarChunk struct {
	ID      int     `json:"id"`
	Text    string  `json:"text"`
	DocPath *string `json:"doc_path"`
	ChunkID int     `json:"chunk_id"`
}

// loaded is the validated content of an index/sidecar pair.
type loaded struct {
	index   *vector.FlatIndex
	modelID string
	chunks  []models.ChunkRecord
}

// Load opens the store persisted at path. dim is the configured dimension used
// when nothing usable is on disk or the persisted store holds no vectors.
//
// Missing, unreadable or inconsistent persisted state is not an error: the store
// starts empty and the returned report says why. Only I/O failures such as a
// permission error are returned.
func Load(path string, dim int, opts ...Option) (*Store, LoadReport, error) {
	if path == "" {
		return nil, LoadReport{}, fmt.Errorf("index path is required")
	}
	s, err := New(dim, append(opts, WithPath(path))...)
	if err != nil {
		return nil, LoadReport{}, err
	}
	report, err := s.Reload()
	if err != nil {
		return nil, report, err
	}
	return s, report, nil
}

// Reload replaces the in-memory state with what is persisted at the store's path.
// It is used after the files were changed by another component, e.g. a reset.
func (s *Store) Reload() (LoadReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return LoadReport{}, fmt.Errorf("reload: store has no path")
	}
	l, report, err := readPersisted(s.path)
	if err != nil {
		return report, err
	}

	switch report.State {
	case StateLoaded:
		if l.index.Len() == 0 && l.index.Dim() != s.dim {
			s.logger.Info("empty persisted store adopts configured dimension",
				zap.Int("persisted", l.index.Dim()), zap.Int("configured", s.dim))
			s.clearLocked()
		} else {
			s.index, s.modelID, s.chunks = l.index, l.modelID, l.chunks
		}
	case StateCorrupt:
		s.logger.Warn("discarding corrupt persisted store, starting empty",
			zap.String("path", s.path),
			zap.String("reason", report.Reason))
		s.clearLocked()
	default:
		s.clearLocked()
	}
	report.Count = len(s.chunks)
	s.lastLoad = report

	s.logger.Info("store loaded",
		zap.String("path", s.path),
		zap.String("state", string(report.State)),
		zap.Int("count", report.Count),
		zap.Int("dimension", s.index.Dim()),
		zap.String("model", s.modelID))
	return report, nil
}

func corrupt(format string, args ...any) (*loaded, LoadReport, error) {
	cause := fmt.Errorf("%w: %s", ErrCorruptState, fmt.Sprintf(format, args...))
	return nil, LoadReport{State: StateCorrupt, Reason: cause.Error(), Cause: cause}, nil
}

// readPersisted reads and cross-checks the index and sidecar without touching the store.
func readPersisted(path string) (*loaded, LoadReport, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, LoadReport{State: StateFresh}, nil
		}
		return nil, LoadReport{}, fmt.Errorf("open index: %w", err)
	}
	idx, err := vector.ReadIndex(bufio.NewReader(f))
	f.Close()
	if err != nil {
		if errors.Is(err, vector.ErrCorruptIndex) {
			return corrupt("index %s: %v", path, err)
		}
		return nil, LoadReport{}, fmt.Errorf("read index: %w", err)
	}

	metaPath := path + MetaSuffix
	data, err := os.ReadFile(metaPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return corrupt("sidecar %s missing for existing index", metaPath)
		}
		return nil, LoadReport{}, fmt.Errorf("read sidecar: %w", err)
	}
	var meta sidecar
	if err := json.Unmarshal(data, &meta); err != nil {
		return corrupt("sidecar %s: %v", metaPath, err)
	}

	switch {
	case meta.Dim != idx.Dim():
		return corrupt("sidecar dim %d, index dim %d", meta.Dim, idx.Dim())
	case len(meta.Chunks) != idx.Len():
		return corrupt("sidecar has %d chunks, index has %d vectors", len(meta.Chunks), idx.Len())
	case meta.Count != len(meta.Chunks):
		return corrupt("sidecar count %d, %d chunks listed", meta.Count, len(meta.Chunks))
	case meta.Count > 0 && meta.EmbeddingModel == "":
		return corrupt("sidecar lists %d chunks without an embedding model", meta.Count)
	}

	chunks := make([]models.ChunkRecord, len(meta.Chunks))
	for i, c := range meta.Chunks {
		if c.ID != i {
			return corrupt("chunk at position %d has id %d", i, c.ID)
		}
		chunks[i] = models.ChunkRecord{ID: c.ID, Text: c.Text, ChunkIndex: c.ChunkID}
		if c.DocPath != nil {
			chunks[i].SourcePath = *c.DocPath
		}
	}
	modelID := meta.EmbeddingModel
	if len(chunks) == 0 {
		modelID = ""
	}
	return &loaded{index: idx, modelID: modelID, chunks: chunks}, LoadReport{State: StateLoaded}, nil
}

// Save writes the index and its sidecar. Each file is written to a temporary
// file, synced and renamed into place. A memory-only store is not persisted.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	meta := sidecar{
		Dim:            s.index.Dim(),
		EmbeddingModel: s.modelID,
		Count:          len(s.chunks),
		Chunks:         make([]sidecarChunk, len(s.chunks)),
	}
	for i, c := range s.chunks {
		sc := sidecarChunk{ID: c.ID, Text: c.Text, ChunkID: c.ChunkIndex}
		if c.SourcePath != "" {
			p := c.SourcePath
			sc.DocPath = &p
		}
		meta.Chunks[i] = sc
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode sidecar: %w", err)
	}

	if err := writeFileAtomic(s.path, func(w io.Writer) error {
		return vector.WriteIndex(w, s.index, s.compression)
	}); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if err := writeFileAtomic(s.path+MetaSuffix, func(w io.Writer) error {
		_, err := w.Write(metaBytes)
		return err
	}); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}

	s.logger.Debug("store saved",
		zap.String("path", s.path),
		zap.Int("count", len(s.chunks)),
		zap.String("compression", s.compression.String()))
	return nil
}

func writeFileAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()
	_ = tmp.Chmod(0o644)

	buf := bufio.NewWriterSize(tmp, 256*1024)
	if err := write(buf); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	tmpName = ""

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
