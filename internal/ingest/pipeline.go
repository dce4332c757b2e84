package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/yomu/internal/embedding"
	"github.com/hyperjump/yomu/internal/extract"
	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/storage"
	"github.com/hyperjump/yomu/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the number of files prepared concurrently by IngestDirectory.
const DefaultWorkers = 4

// Pipeline turns files and text into store records: extract, preprocess, chunk,
// embed and append. Runs are serialized; only file preparation fans out.
type Pipeline struct {
	store      *store.Store
	embedder   embedding.Embedder
	ledger     storage.Ledger
	extractor  *extract.Extractor
	chunker    *Chunker
	extensions []string
	workers    int
	logger     *zap.Logger

	mu sync.Mutex
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithLedger enables incremental ingestion: unchanged files recorded in the
// ledger are skipped.
func WithLedger(l storage.Ledger) Option {
	return func(p *Pipeline) { p.ledger = l }
}

// WithExtensions restricts directory walks to the given extensions.
func WithExtensions(exts []string) Option {
	return func(p *Pipeline) { p.extensions = exts }
}

// WithWorkers sets how many files are extracted and embedded concurrently.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithChunker replaces the default 500/50 word chunker.
func WithChunker(c *Chunker) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.chunker = c
		}
	}
}

// NewPipeline creates a pipeline appending to st with vectors from emb.
// When a ledger is configured it is reconciled against the store: a ledger
// claiming chunks the store does not hold (the store was discarded or reset
// elsewhere) is cleared so every file is ingested again.
func NewPipeline(ctx context.Context, st *store.Store, emb embedding.Embedder, opts ...Option) (*Pipeline, error) {
	if st == nil || emb == nil {
		return nil, errors.New("ingest: store and embedder are required")
	}
	chunker, _ := NewChunker(500, 50)
	p := &Pipeline{
		store:      st,
		embedder:   emb,
		extractor:  extract.NewExtractor(),
		chunker:    chunker,
		extensions: extract.SupportedExtensions,
		workers:    DefaultWorkers,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.reconcile(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) reconcile(ctx context.Context) error {
	if p.ledger == nil {
		return nil
	}
	total, err := p.ledger.TotalChunks(ctx)
	if err != nil {
		return fmt.Errorf("ledger total: %w", err)
	}
	sources, err := p.ledger.CountSources(ctx)
	if err != nil {
		return fmt.Errorf("ledger count: %w", err)
	}
	count := int64(p.store.Count())
	if total <= count && (count > 0 || sources == 0) {
		return nil
	}
	p.logger.Warn("ingestion ledger out of sync with store, clearing it",
		zap.Int64("ledger_chunks", total),
		zap.Int64("store_chunks", count))
	return p.ledger.Clear(ctx)
}

// Reload re-reads the persisted store and reconciles the ledger against it, so
// files whose chunks were discarded with a corrupt index are ingested again.
func (p *Pipeline) Reload(ctx context.Context) (store.LoadReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	report, err := p.store.Reload()
	if err != nil {
		return report, err
	}
	if err := p.reconcile(ctx); err != nil {
		return report, err
	}
	return report, nil
}

// IngestText chunks and embeds text and appends the chunks to the store under
// sourcePath (may be empty). The store is saved before returning.
func (p *Pipeline) IngestText(ctx context.Context, text, sourcePath string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	prep, err := p.prepareText(ctx, text)
	if err != nil {
		return 0, err
	}
	n, err := p.store.Add(prep.vectors, prep.chunks, sourcePath, p.embedder.ModelID())
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	if err := p.store.Save(); err != nil {
		return n, fmt.Errorf("save store: %w", err)
	}
	return n, nil
}

// IngestFile ingests a single file. Files recorded in the ledger with the same
// mtime and size are skipped.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (*models.IngestResponse, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}
	if !p.extractor.Supports(absPath) {
		return nil, fmt.Errorf("%w: %s", extract.ErrUnsupportedFormat, filepath.Ext(absPath))
	}
	return p.run(ctx, []candidate{{path: absPath, info: info}})
}

// IngestDirectory walks dir recursively and ingests every regular file with an
// allowed extension. Files are extracted and embedded concurrently but appended
// in walk order, so chunk ids are deterministic for a given tree.
// A file that cannot be extracted or embedded is counted as failed and the run
// continues; a store rejection (model or dimension mismatch) stops the run.
func (p *Pipeline) IngestDirectory(ctx context.Context, dir string) (*models.IngestResponse, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", absDir)
	}

	var files []candidate
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if !extensionAllowed(filepath.Ext(path), p.extensions) || !p.extractor.Supports(path) {
			return nil
		}
		// Follow symlinks; only regular files are ingested.
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		files = append(files, candidate{path: path, info: finfo})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", absDir, err)
	}
	return p.run(ctx, files)
}

// Reset empties the store (persisting the empty state) and the ledger.
func (p *Pipeline) Reset(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.store.Reset(); err != nil {
		return fmt.Errorf("reset store: %w", err)
	}
	if p.ledger != nil {
		if err := p.ledger.Clear(ctx); err != nil {
			return fmt.Errorf("clear ledger: %w", err)
		}
	}
	p.logger.Info("store reset")
	return nil
}

type candidate struct {
	path string
	info os.FileInfo
}

type prepared struct {
	chunks  []string
	vectors [][]float32
	err     error
}

func (p *Pipeline) run(ctx context.Context, files []candidate) (*models.IngestResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	runID := uuid.New().String()
	resp := &models.IngestResponse{RunID: runID}
	log := p.logger.With(zap.String("run_id", runID))
	start := time.Now()

	pending := files[:0:0]
	for _, f := range files {
		if p.unchanged(ctx, f) {
			resp.FilesSkipped++
			log.Debug("skipping unchanged file", zap.String("path", f.path))
			continue
		}
		pending = append(pending, f)
	}

	results := make([]prepared, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, f := range pending {
		g.Go(func() error {
			results[i] = p.prepareFile(gctx, f.path)
			// Only cancellation aborts the group; per-file errors are reported below.
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	modelID := p.embedder.ModelID()
	var recorded []*storage.Source
	var runErr error
	for i, f := range pending {
		res := results[i]
		if res.err != nil {
			resp.FilesFailed++
			log.Warn("failed to ingest file", zap.String("path", f.path), zap.Error(res.err))
			continue
		}
		first := p.store.Count()
		n, err := p.store.Add(res.vectors, res.chunks, f.path, modelID)
		if err != nil {
			runErr = fmt.Errorf("add %s: %w", f.path, err)
			break
		}
		resp.FilesIndexed++
		resp.ChunksAdded += n
		recorded = append(recorded, &storage.Source{
			ID:           storage.SourceID(f.path),
			Path:         f.path,
			ModTime:      f.info.ModTime(),
			Size:         f.info.Size(),
			ChunkCount:   n,
			FirstChunkID: first,
			ModelID:      modelID,
			RunID:        runID,
		})
		log.Debug("file ingested", zap.String("path", f.path), zap.Int("chunks", n))
	}

	if resp.ChunksAdded > 0 {
		if err := p.store.Save(); err != nil {
			return nil, fmt.Errorf("save store: %w", err)
		}
	}
	// The ledger is written after the store is durable so it never claims unsaved chunks.
	if p.ledger != nil {
		for _, src := range recorded {
			if err := p.ledger.RecordSource(ctx, src); err != nil {
				log.Warn("failed to record source", zap.String("path", src.Path), zap.Error(err))
			}
		}
	}
	resp.TotalChunks = p.store.Count()
	if runErr != nil {
		return resp, runErr
	}

	log.Info("ingestion finished",
		zap.Int("indexed", resp.FilesIndexed),
		zap.Int("skipped", resp.FilesSkipped),
		zap.Int("failed", resp.FilesFailed),
		zap.Int("chunks_added", resp.ChunksAdded),
		zap.Duration("took", time.Since(start)))
	return resp, nil
}

func (p *Pipeline) unchanged(ctx context.Context, f candidate) bool {
	if p.ledger == nil {
		return false
	}
	src, err := p.ledger.GetSource(ctx, f.path)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			p.logger.Warn("ledger lookup failed", zap.String("path", f.path), zap.Error(err))
		}
		return false
	}
	return src.Unchanged(f.info.ModTime(), f.info.Size())
}

func (p *Pipeline) prepareFile(ctx context.Context, path string) prepared {
	text, err := p.extractor.Extract(path)
	if err != nil {
		return prepared{err: fmt.Errorf("extract: %w", err)}
	}
	res, err := p.prepareText(ctx, text)
	if err != nil {
		return prepared{err: err}
	}
	return res
}

func (p *Pipeline) prepareText(ctx context.Context, text string) (prepared, error) {
	chunks := p.chunker.Chunk(Preprocess(text))
	if len(chunks) == 0 {
		return prepared{}, nil
	}
	vectors, err := p.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return prepared{}, fmt.Errorf("embed: %w", err)
	}
	if len(vectors) != len(chunks) {
		return prepared{}, fmt.Errorf("embed: got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	return prepared{chunks: chunks, vectors: vectors}, nil
}

func extensionAllowed(ext string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
