package ingest

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/callsmith-ai/callsmith/internal/workerpool"
	trmock "github.com/callsmith-ai/callsmith/pkg/provider/transcribe/mock"
)

type turnRecorder struct {
	mu    sync.Mutex
	turns []string
}

func (r *turnRecorder) handle(ctx context.Context, callID, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, callID+":"+text)
}

func (r *turnRecorder) wait(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		if len(r.turns) >= n {
			out := append([]string{}, r.turns...)
			r.mu.Unlock()
			return out
		}
		r.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t.Fatalf("timed out waiting for %d turns, have %v", n, r.turns)
	return nil
}

func newTestPipeline(tr *trmock.Provider, rec *turnRecorder, opts ...Option) (*Pipeline, *workerpool.Pool) {
	pool := workerpool.New(2, nil)
	return New(tr, pool, rec.handle, nil, opts...), pool
}

func TestIngestBuffersBelowThreshold(t *testing.T) {
	tr := &trmock.Provider{Text: "hello"}
	rec := &turnRecorder{}
	p, pool := newTestPipeline(tr, rec, WithFlushThreshold(100))
	defer pool.Close()

	if err := p.Ingest(context.Background(), "c1", make([]byte, 50)); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	pool.Close()
	if len(tr.Calls) != 0 {
		t.Error("transcriber invoked below threshold")
	}
}

func TestIngestFlushesAboveThreshold(t *testing.T) {
	tr := &trmock.Provider{Text: "i need a website"}
	rec := &turnRecorder{}
	p, pool := newTestPipeline(tr, rec, WithFlushThreshold(100))
	defer pool.Close()

	ctx := context.Background()
	if err := p.Ingest(ctx, "c1", make([]byte, 60)); err != nil {
		t.Fatal(err)
	}
	if err := p.Ingest(ctx, "c1", make([]byte, 60)); err != nil {
		t.Fatal(err)
	}

	turns := rec.wait(t, 1)
	if turns[0] != "c1:i need a website" {
		t.Errorf("turn = %q", turns[0])
	}
	tr.ReadCalls(func(calls [][]byte) {
		if len(calls) != 1 {
			t.Fatalf("transcriber calls = %d, want 1", len(calls))
		}
		if len(calls[0]) != 120 {
			t.Errorf("flushed chunk = %d bytes, want 120", len(calls[0]))
		}
	})

	// Buffer restarted clean after the flush.
	if err := p.Ingest(ctx, "c1", make([]byte, 10)); err != nil {
		t.Fatal(err)
	}
	pool.Close()
	tr.ReadCalls(func(calls [][]byte) {
		if len(calls) != 1 {
			t.Errorf("small residue flushed early: %d calls", len(calls))
		}
	})
}

func TestEmptyTranscriptionProducesNoTurn(t *testing.T) {
	tr := &trmock.Provider{Text: ""}
	rec := &turnRecorder{}
	p, pool := newTestPipeline(tr, rec, WithFlushThreshold(10))
	defer pool.Close()

	if err := p.Ingest(context.Background(), "c1", make([]byte, 20)); err != nil {
		t.Fatal(err)
	}
	pool.Close()
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.turns) != 0 {
		t.Errorf("empty transcription produced turns: %v", rec.turns)
	}
}

func TestTranscriptionFailureDoesNotStallPipeline(t *testing.T) {
	tr := &trmock.Provider{Err: errors.New("model busy")}
	rec := &turnRecorder{}
	p, pool := newTestPipeline(tr, rec, WithFlushThreshold(10))
	defer pool.Close()

	ctx := context.Background()
	if err := p.Ingest(ctx, "c1", make([]byte, 20)); err != nil {
		t.Fatal(err)
	}

	// Later audio still flows after a failed chunk.
	tr.SetError(nil)
	tr.SetText("still here")
	if err := p.Ingest(ctx, "c1", make([]byte, 20)); err != nil {
		t.Fatal(err)
	}
	turns := rec.wait(t, 1)
	if turns[0] != "c1:still here" {
		t.Errorf("turn = %q", turns[0])
	}
}

func TestFlushDrainsResidue(t *testing.T) {
	tr := &trmock.Provider{Text: "bye"}
	rec := &turnRecorder{}
	p, pool := newTestPipeline(tr, rec, WithFlushThreshold(1000))
	defer pool.Close()

	ctx := context.Background()
	if err := p.Ingest(ctx, "c1", bytes.Repeat([]byte{1}, 30)); err != nil {
		t.Fatal(err)
	}
	if err := p.Flush(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	rec.wait(t, 1)

	// Flushing an already-empty buffer is fine.
	if err := p.Flush(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
}

func TestBuffersAreIndependentPerCall(t *testing.T) {
	tr := &trmock.Provider{Text: "x"}
	rec := &turnRecorder{}
	p, pool := newTestPipeline(tr, rec, WithFlushThreshold(100))
	defer pool.Close()

	ctx := context.Background()
	if err := p.Ingest(ctx, "c1", make([]byte, 90)); err != nil {
		t.Fatal(err)
	}
	if err := p.Ingest(ctx, "c2", make([]byte, 90)); err != nil {
		t.Fatal(err)
	}
	pool.Close()
	tr.ReadCalls(func(calls [][]byte) {
		if len(calls) != 0 {
			t.Errorf("independent buffers flushed together: %d calls", len(calls))
		}
	})
}
