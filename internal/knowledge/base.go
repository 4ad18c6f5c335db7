// Package knowledge holds the in-process knowledge base used to ground sales
// conversations and the retriever that ranks its chunks against a query.
//
// The base is four parallel slices sharing an index: chunk text, embedding,
// source document and page number. It is shared read-only by every active
// call. Ingestion never mutates a live base; it builds a replacement and
// swaps it in atomically so readers always see matched parallel slices.
package knowledge

import (
	"fmt"
	"sync/atomic"
)

// Base is one immutable snapshot of the knowledge corpus. Index i across all
// four slices describes a single chunk.
type Base struct {
	Chunks      []string
	Embeddings  [][]float32
	Sources     []string
	PageNumbers []int
}

// Len returns the number of chunks in the base.
func (b *Base) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Chunks)
}

// Validate checks the parallel-slice invariant.
func (b *Base) Validate() error {
	n := len(b.Chunks)
	if len(b.Embeddings) != n || len(b.Sources) != n || len(b.PageNumbers) != n {
		return fmt.Errorf("knowledge: mismatched parallel slices: chunks=%d embeddings=%d sources=%d pages=%d",
			n, len(b.Embeddings), len(b.Sources), len(b.PageNumbers))
	}
	return nil
}

// Store publishes the current Base to concurrent readers. The zero value
// starts with an empty base.
type Store struct {
	current atomic.Pointer[Base]
}

// NewStore returns a store holding an empty base.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(&Base{})
	return s
}

// Current returns the live base. The returned snapshot must not be mutated.
func (s *Store) Current() *Base {
	return s.current.Load()
}

// Swap publishes b as the new live base. It rejects a base that violates the
// parallel-slice invariant so a half-built snapshot can never be served.
func (s *Store) Swap(b *Base) error {
	if err := b.Validate(); err != nil {
		return err
	}
	s.current.Store(b)
	return nil
}
