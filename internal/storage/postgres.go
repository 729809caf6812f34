package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps every record in a single documents table, the index
// name as a column and the record itself as jsonb.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

const createDocumentsTable = `
CREATE TABLE IF NOT EXISTS crawl_documents (
	id BIGSERIAL PRIMARY KEY,
	index_name TEXT NOT NULL,
	payload JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_crawl_documents_index ON crawl_documents (index_name);`

func NewPostgresStore(ctx context.Context, url string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, createDocumentsTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure documents table: %w", err)
	}
	return &PostgresStore{
		pool:   pool,
		logger: slog.Default().With("component", "storage", "backend", "postgres"),
	}, nil
}

func (s *PostgresStore) InsertDocument(ctx context.Context, doc any, index string) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		"INSERT INTO crawl_documents (index_name, payload) VALUES ($1, $2)",
		index, payload)
	if err != nil {
		return fmt.Errorf("failed to insert document into %s: %w", index, err)
	}
	return nil
}

func (s *PostgresStore) InsertDocuments(ctx context.Context, docs []any, index string) error {
	if len(docs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, doc := range docs {
		payload, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to encode document: %w", err)
		}
		batch.Queue("INSERT INTO crawl_documents (index_name, payload) VALUES ($1, $2)", index, payload)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range docs {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert documents into %s: %w", index, err)
		}
	}
	s.logger.Debug("documents inserted", "index", index, "count", len(docs))
	return nil
}

func (s *PostgresStore) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}
