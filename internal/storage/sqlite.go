package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteLedger implements Ledger using SQLite.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteLedger(dbPath string) (*SQLiteLedger, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps writes serialized and in-memory databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteLedger{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sources (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL UNIQUE,
		mtime TIMESTAMP NOT NULL,
		size INTEGER NOT NULL,
		chunk_count INTEGER NOT NULL,
		first_chunk_id INTEGER NOT NULL,
		model_id TEXT NOT NULL,
		run_id TEXT NOT NULL,
		ingested_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sources_run_id ON sources(run_id);
	CREATE INDEX IF NOT EXISTS idx_sources_ingested_at ON sources(ingested_at);
	`
	_, err := db.Exec(schema)
	return err
}

// RecordSource inserts or replaces the entry for src.Path. ID and IngestedAt
// are filled in when empty.
func (l *SQLiteLedger) RecordSource(ctx context.Context, src *Source) error {
	if src.Path == "" {
		return fmt.Errorf("source path is required")
	}
	if src.ID == "" {
		src.ID = SourceID(src.Path)
	}
	if src.IngestedAt.IsZero() {
		src.IngestedAt = time.Now().UTC()
	}
	src.ModTime = src.ModTime.UTC().Truncate(time.Second)

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO sources (id, path, mtime, size, chunk_count, first_chunk_id, model_id, run_id, ingested_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			path = excluded.path,
			mtime = excluded.mtime,
			size = excluded.size,
			chunk_count = excluded.chunk_count,
			first_chunk_id = excluded.first_chunk_id,
			model_id = excluded.model_id,
			run_id = excluded.run_id,
			ingested_at = excluded.ingested_at`,
		src.ID, src.Path, src.ModTime, src.Size, src.ChunkCount, src.FirstChunkID, src.ModelID, src.RunID, src.IngestedAt,
	)
	if err != nil {
		return fmt.Errorf("record source %s: %w", src.Path, err)
	}
	return nil
}

// GetSource returns the entry for path, or ErrNotFound.
func (l *SQLiteLedger) GetSource(ctx context.Context, path string) (*Source, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT id, path, mtime, size, chunk_count, first_chunk_id, model_id, run_id, ingested_at
		 FROM sources WHERE id = ?`, SourceID(path))
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, err
	}
	return src, nil
}

// ListSources returns entries ordered by first chunk id.
func (l *SQLiteLedger) ListSources(ctx context.Context, offset, limit int) ([]*Source, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, path, mtime, size, chunk_count, first_chunk_id, model_id, run_id, ingested_at
		 FROM sources ORDER BY first_chunk_id, path LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []*Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSource(s scanner) (*Source, error) {
	var src Source
	if err := s.Scan(&src.ID, &src.Path, &src.ModTime, &src.Size, &src.ChunkCount,
		&src.FirstChunkID, &src.ModelID, &src.RunID, &src.IngestedAt); err != nil {
		return nil, err
	}
	src.ModTime = src.ModTime.UTC()
	src.IngestedAt = src.IngestedAt.UTC()
	return &src, nil
}

// CountSources returns the number of recorded sources.
func (l *SQLiteLedger) CountSources(ctx context.Context) (int64, error) {
	var n int64
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sources`).Scan(&n)
	return n, err
}

// TotalChunks returns the sum of chunk counts over all sources.
func (l *SQLiteLedger) TotalChunks(ctx context.Context) (int64, error) {
	var n int64
	err := l.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(chunk_count), 0) FROM sources`).Scan(&n)
	return n, err
}

// Clear removes every entry.
func (l *SQLiteLedger) Clear(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `DELETE FROM sources`)
	return err
}

// Close closes the database.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
