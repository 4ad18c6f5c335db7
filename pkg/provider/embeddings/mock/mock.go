// Package mock provides a test double for the embeddings.Provider interface.
//
// The mock derives deterministic vectors from input text unless explicit
// vectors are configured, so retrieval tests can rely on stable similarity
// orderings without a live embedding backend.
package mock

import (
	"context"
	"sync"

	"github.com/callsmith-ai/callsmith/pkg/provider/embeddings"
)

// Provider is a mock implementation of embeddings.Provider.
type Provider struct {
	mu sync.Mutex

	// Vectors maps input text to the vector returned for it. Texts not in the
	// map fall back to a deterministic hash-derived vector.
	Vectors map[string][]float32

	// Dims is the dimensionality reported by Dimensions and used for derived
	// vectors. Defaults to 8 when zero.
	Dims int

	// Err, if non-nil, is returned by Embed and EmbedBatch.
	Err error

	// EmbedCalls records every text passed to Embed.
	EmbedCalls []string

	// EmbedBatchCalls records every slice passed to EmbedBatch.
	EmbedBatchCalls [][]string
}

// Embed returns the configured or derived vector for text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = append(p.EmbedCalls, text)
	if p.Err != nil {
		return nil, p.Err
	}
	return p.vectorFor(text), nil
}

// EmbedBatch returns configured or derived vectors for each text.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	copied := make([]string, len(texts))
	copy(copied, texts)
	p.EmbedBatchCalls = append(p.EmbedBatchCalls, copied)
	if p.Err != nil {
		return nil, p.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.vectorFor(t)
	}
	return out, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int {
	if p.Dims > 0 {
		return p.Dims
	}
	return 8
}

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string {
	return "mock-embeddings"
}

// vectorFor returns the configured vector for text or derives a stable one
// from its bytes. Must be called with p.mu held.
func (p *Provider) vectorFor(text string) []float32 {
	if v, ok := p.Vectors[text]; ok {
		out := make([]float32, len(v))
		copy(out, v)
		return out
	}
	dims := p.Dims
	if dims <= 0 {
		dims = 8
	}
	vec := make([]float32, dims)
	for i, b := range []byte(text) {
		vec[i%dims] += float32(b) / 255.0
	}
	return vec
}

// Ensure Provider implements embeddings.Provider at compile time.
var _ embeddings.Provider = (*Provider)(nil)
