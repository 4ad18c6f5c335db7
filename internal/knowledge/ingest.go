package knowledge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/callsmith-ai/callsmith/pkg/provider/embeddings"
)

// Document is one source to be ingested, split into pages. Page numbers in
// the resulting base are 1-based.
type Document struct {
	Source string
	Pages  []string
}

// Ingestor chunks and embeds documents and publishes the result to a Store.
type Ingestor struct {
	store     *Store
	embedder  embeddings.Provider
	logger    *slog.Logger
	chunkSize int
}

// NewIngestor builds an ingestor writing to store. chunkSize of zero or less
// uses DefaultChunkSize.
func NewIngestor(store *Store, embedder embeddings.Provider, logger *slog.Logger, chunkSize int) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Ingestor{store: store, embedder: embedder, logger: logger, chunkSize: chunkSize}
}

// Ingest chunks and embeds docs, appends them to the current corpus and swaps
// the combined snapshot into the store. Concurrent readers keep serving the
// old base until the swap completes. Returns the number of chunks added.
func (ing *Ingestor) Ingest(ctx context.Context, docs ...Document) (int, error) {
	var (
		chunks  []string
		sources []string
		pages   []int
	)
	for _, doc := range docs {
		for pageIdx, page := range doc.Pages {
			for _, chunk := range SplitText(page, ing.chunkSize) {
				chunks = append(chunks, chunk)
				sources = append(sources, doc.Source)
				pages = append(pages, pageIdx+1)
			}
		}
	}
	if len(chunks) == 0 {
		ing.logger.Warn("ingest produced no chunks", "documents", len(docs))
		return 0, nil
	}

	vecs, err := ing.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("knowledge: embed chunks: %w", err)
	}
	if len(vecs) != len(chunks) {
		return 0, fmt.Errorf("knowledge: embedder returned %d vectors for %d chunks", len(vecs), len(chunks))
	}

	old := ing.store.Current()
	next := &Base{
		Chunks:      append(append([]string{}, old.Chunks...), chunks...),
		Embeddings:  append(append([][]float32{}, old.Embeddings...), vecs...),
		Sources:     append(append([]string{}, old.Sources...), sources...),
		PageNumbers: append(append([]int{}, old.PageNumbers...), pages...),
	}
	if err := ing.store.Swap(next); err != nil {
		return 0, err
	}
	ing.logger.Info("knowledge base updated",
		"new_chunks", len(chunks),
		"total_chunks", next.Len(),
		"model", ing.embedder.ModelID())
	return len(chunks), nil
}
