// Package postgres persists the knowledge corpus so a restart does not lose
// ingested documents. The pgvector extension must be available; Migrate
// installs it via CREATE EXTENSION IF NOT EXISTS.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddlKnowledgeChunks returns the chunk table DDL with the embedding dimension
// substituted. The dimension is baked into the column type at creation time.
func ddlKnowledgeChunks(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS knowledge_chunks (
    id          BIGSERIAL    PRIMARY KEY,
    position    INTEGER      NOT NULL,
    content     TEXT         NOT NULL,
    embedding   vector(%d),
    source      TEXT         NOT NULL DEFAULT '',
    page_number INTEGER      NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_knowledge_chunks_position
    ON knowledge_chunks (position);

CREATE INDEX IF NOT EXISTS idx_knowledge_chunks_embedding
    ON knowledge_chunks USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures the knowledge tables and extensions exist. It is
// idempotent and safe to call on every application start.
//
// embeddingDimensions must match the configured embedding model (e.g. 1536
// for OpenAI text-embedding-3-small, 768 for nomic-embed-text). Changing it
// after the first migration requires a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if _, err := pool.Exec(ctx, ddlKnowledgeChunks(embeddingDimensions)); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
