package knowledge

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/callsmith-ai/callsmith/pkg/provider/embeddings"
)

// DefaultTopK is the number of chunks injected into a conversation prompt.
const DefaultTopK = 3

// Result is a ranked retrieval outcome. All slices have equal length, at most
// k, ordered by descending cosine similarity. Chunks with equal similarity
// keep their original base order.
type Result struct {
	Chunks       []string
	Similarities []float64
	Sources      []string
	PageNumbers  []int
}

// Empty reports whether the retrieval matched nothing.
func (r Result) Empty() bool { return len(r.Chunks) == 0 }

// Retriever ranks knowledge base chunks against a query embedding.
type Retriever struct {
	store    *Store
	embedder embeddings.Provider
}

// NewRetriever builds a retriever over store using embedder for queries.
func NewRetriever(store *Store, embedder embeddings.Provider) *Retriever {
	return &Retriever{store: store, embedder: embedder}
}

// Retrieve returns up to k chunks most similar to query. An empty base yields
// an empty result without touching the embedder and without error.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) (Result, error) {
	base := r.store.Current()
	if base.Len() == 0 {
		return Result{}, nil
	}
	if k <= 0 {
		k = DefaultTopK
	}

	qvec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return Result{}, fmt.Errorf("knowledge: embed query: %w", err)
	}

	indices := make([]int, base.Len())
	sims := make([]float64, base.Len())
	for i := range indices {
		indices[i] = i
		sims[i] = cosineSimilarity(qvec, base.Embeddings[i])
	}
	sort.SliceStable(indices, func(a, b int) bool {
		return sims[indices[a]] > sims[indices[b]]
	})

	if k > len(indices) {
		k = len(indices)
	}
	out := Result{
		Chunks:       make([]string, 0, k),
		Similarities: make([]float64, 0, k),
		Sources:      make([]string, 0, k),
		PageNumbers:  make([]int, 0, k),
	}
	for _, idx := range indices[:k] {
		out.Chunks = append(out.Chunks, base.Chunks[idx])
		out.Similarities = append(out.Similarities, sims[idx])
		out.Sources = append(out.Sources, base.Sources[idx])
		out.PageNumbers = append(out.PageNumbers, base.PageNumbers[idx])
	}
	return out, nil
}

// cosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either vector is zero or the lengths differ.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
