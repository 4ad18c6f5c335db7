package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/callsmith-ai/callsmith/internal/knowledge"
)

// ChunkStore persists knowledge base snapshots in a PostgreSQL table with a
// pgvector HNSW index. All methods are safe for concurrent use.
type ChunkStore struct {
	pool *pgxpool.Pool
}

// NewChunkStore connects to dsn and ensures the schema exists.
func NewChunkStore(ctx context.Context, dsn string, embeddingDimensions int) (*ChunkStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("chunk store: connect: %w", err)
	}
	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, err
	}
	return &ChunkStore{pool: pool}, nil
}

// Replace overwrites the persisted corpus with base inside one transaction,
// so a reader loading concurrently sees either the old or the new corpus.
func (s *ChunkStore) Replace(ctx context.Context, base *knowledge.Base) error {
	if err := base.Validate(); err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("chunk store: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM knowledge_chunks`); err != nil {
		return fmt.Errorf("chunk store: clear: %w", err)
	}
	const q = `
		INSERT INTO knowledge_chunks (position, content, embedding, source, page_number)
		VALUES ($1, $2, $3, $4, $5)`
	for i := range base.Chunks {
		_, err := tx.Exec(ctx, q,
			i,
			base.Chunks[i],
			pgvector.NewVector(base.Embeddings[i]),
			base.Sources[i],
			base.PageNumbers[i],
		)
		if err != nil {
			return fmt.Errorf("chunk store: insert chunk %d: %w", i, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("chunk store: commit: %w", err)
	}
	return nil
}

// Load reads the full persisted corpus in position order.
func (s *ChunkStore) Load(ctx context.Context) (*knowledge.Base, error) {
	const q = `
		SELECT content, embedding, source, page_number
		FROM   knowledge_chunks
		ORDER  BY position`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("chunk store: load: %w", err)
	}

	base := &knowledge.Base{}
	_, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (struct{}, error) {
		var (
			content string
			vec     pgvector.Vector
			source  string
			page    int
		)
		if err := row.Scan(&content, &vec, &source, &page); err != nil {
			return struct{}{}, err
		}
		base.Chunks = append(base.Chunks, content)
		base.Embeddings = append(base.Embeddings, vec.Slice())
		base.Sources = append(base.Sources, source)
		base.PageNumbers = append(base.PageNumbers, page)
		return struct{}{}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("chunk store: scan rows: %w", err)
	}
	return base, nil
}

// Search finds the topK persisted chunks closest to embedding by cosine
// distance, most similar first.
func (s *ChunkStore) Search(ctx context.Context, embedding []float32, topK int) (knowledge.Result, error) {
	const q = `
		SELECT content, source, page_number,
		       1 - (embedding <=> $1) AS similarity
		FROM   knowledge_chunks
		ORDER  BY embedding <=> $1, position
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(embedding), topK)
	if err != nil {
		return knowledge.Result{}, fmt.Errorf("chunk store: search: %w", err)
	}

	var out knowledge.Result
	_, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (struct{}, error) {
		var (
			content    string
			source     string
			page       int
			similarity float64
		)
		if err := row.Scan(&content, &source, &page, &similarity); err != nil {
			return struct{}{}, err
		}
		out.Chunks = append(out.Chunks, content)
		out.Similarities = append(out.Similarities, similarity)
		out.Sources = append(out.Sources, source)
		out.PageNumbers = append(out.PageNumbers, page)
		return struct{}{}, nil
	})
	if err != nil {
		return knowledge.Result{}, fmt.Errorf("chunk store: scan rows: %w", err)
	}
	return out, nil
}

// Close releases the connection pool.
func (s *ChunkStore) Close() {
	s.pool.Close()
}
