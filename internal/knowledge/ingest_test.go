package knowledge

import (
	"context"
	"errors"
	"testing"

	embmock "github.com/callsmith-ai/callsmith/pkg/provider/embeddings/mock"
)

func TestIngestBuildsParallelSlices(t *testing.T) {
	store := NewStore()
	emb := &embmock.Provider{Dims: 4}
	ing := NewIngestor(store, emb, nil, 50)

	added, err := ing.Ingest(context.Background(), Document{
		Source: "brochure.pdf",
		Pages: []string{
			"We build software. We also train teams.",
			"Pricing starts at ten dollars.",
		},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	base := store.Current()
	if base.Len() == 0 {
		t.Fatal("base empty after ingest")
	}
	if added != base.Len() {
		t.Errorf("added = %d, base len = %d", added, base.Len())
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("invariant violated: %v", err)
	}
	if base.Sources[0] != "brochure.pdf" || base.PageNumbers[0] != 1 {
		t.Errorf("metadata wrong for first chunk: %q page %d", base.Sources[0], base.PageNumbers[0])
	}
	last := base.Len() - 1
	if base.PageNumbers[last] != 2 {
		t.Errorf("last chunk page = %d, want 2", base.PageNumbers[last])
	}
}

func TestIngestAppendsAcrossCalls(t *testing.T) {
	store := NewStore()
	emb := &embmock.Provider{Dims: 4}
	ing := NewIngestor(store, emb, nil, 100)

	ctx := context.Background()
	if _, err := ing.Ingest(ctx, Document{Source: "a.pdf", Pages: []string{"Alpha content here."}}); err != nil {
		t.Fatal(err)
	}
	first := store.Current()
	if _, err := ing.Ingest(ctx, Document{Source: "b.pdf", Pages: []string{"Beta content here."}}); err != nil {
		t.Fatal(err)
	}
	second := store.Current()

	if second == first {
		t.Error("ingest mutated the live base instead of swapping a new one")
	}
	if second.Len() != first.Len()+1 {
		t.Errorf("total chunks = %d, want %d", second.Len(), first.Len()+1)
	}
	if first.Len() != 1 {
		t.Errorf("old snapshot changed: len = %d", first.Len())
	}
}

func TestIngestEmptyDocumentIsNoop(t *testing.T) {
	store := NewStore()
	ing := NewIngestor(store, &embmock.Provider{}, nil, 0)
	added, err := ing.Ingest(context.Background(), Document{Source: "empty.pdf", Pages: []string{"  "}})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if added != 0 {
		t.Errorf("added = %d, want 0", added)
	}
	if store.Current().Len() != 0 {
		t.Error("empty ingest changed the base")
	}
}

func TestIngestEmbedFailureLeavesBaseUntouched(t *testing.T) {
	store := NewStore()
	ing := NewIngestor(store, &embmock.Provider{Err: errors.New("quota")}, nil, 0)
	_, err := ing.Ingest(context.Background(), Document{Source: "x.pdf", Pages: []string{"Some text."}})
	if err == nil {
		t.Fatal("expected error")
	}
	if store.Current().Len() != 0 {
		t.Error("failed ingest modified the base")
	}
}
