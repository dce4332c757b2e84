package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/yomu/internal/answer"
	"github.com/hyperjump/yomu/internal/config"
	"github.com/hyperjump/yomu/internal/embedding"
	"github.com/hyperjump/yomu/internal/ingest"
	"github.com/hyperjump/yomu/internal/retriever"
	"github.com/hyperjump/yomu/internal/search"
	"github.com/hyperjump/yomu/internal/storage"
	"github.com/hyperjump/yomu/internal/store"
	"github.com/hyperjump/yomu/internal/vector"
)

// Components holds initialized services.
type Components struct {
	Config     *config.Config
	Store      *store.Store
	LoadReport store.LoadReport
	Ledger     *storage.SQLiteLedger
	Embedder   embedding.Embedder
	Retriever  *retriever.Retriever
	Pipeline   *ingest.Pipeline
	Generator  answer.Generator
}

// Close releases the ledger and the embedder.
func (c *Components) Close() {
	if c.Ledger != nil {
		_ = c.Ledger.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	compression, err := vector.ParseCompression(cfg.Storage.Compression)
	if err != nil {
		return nil, err
	}

	embedder, err := embedding.New(&cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c := &Components{Config: cfg, Embedder: embedder}

	st, report, err := store.Load(cfg.Storage.IndexPath, cfg.Embedding.Dimensions,
		store.WithLogger(logger),
		store.WithCompression(compression))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to load store: %w", err)
	}
	c.Store = st
	c.LoadReport = report

	ledger, err := storage.NewSQLiteLedger(cfg.Storage.DatabasePath)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize ledger: %w", err)
	}
	c.Ledger = ledger

	minScore, minMargin := cfg.Retrieval.Gate()
	c.Retriever, err = retriever.New(st, embedder,
		search.GateConfig{MinScore: minScore, MinMargin: minMargin},
		retriever.WithLogger(logger),
		retriever.WithTopK(cfg.Retrieval.TopK))
	if err != nil {
		c.Close()
		return nil, err
	}

	chunker, err := ingest.NewChunker(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Pipeline, err = ingest.NewPipeline(ctx, st, embedder,
		ingest.WithLogger(logger),
		ingest.WithLedger(ledger),
		ingest.WithChunker(chunker),
		ingest.WithExtensions(cfg.Ingest.Extensions),
		ingest.WithWorkers(cfg.Ingest.Workers))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	if gen, err := answer.NewOpenAIGenerator(cfg.Answer, logger); err == nil {
		c.Generator = gen
	} else {
		logger.Debug("answer generation disabled", zap.Error(err))
	}
	return c, nil
}
