// Package ingest buffers inbound call audio and turns it into conversation
// turns.
//
// Each call accumulates raw audio bytes in its own buffer. Once a buffer
// crosses the flush threshold it is swapped out whole and handed to the
// transcriber on a bounded worker pool, so the transport loop that delivers
// frames never waits on transcription. Recognised text is forwarded to the
// turn handler; empty transcriptions and transcription failures consume the
// audio without producing a turn.
package ingest

import (
	"context"
	"log/slog"
	"sync"

	"github.com/callsmith-ai/callsmith/internal/phonetic"
	"github.com/callsmith-ai/callsmith/internal/workerpool"
	"github.com/callsmith-ai/callsmith/pkg/provider/transcribe"
)

// DefaultFlushThreshold is the buffered byte count that triggers a flush.
const DefaultFlushThreshold = 8000

// TurnHandler receives recognised speech for a call. Implementations route
// the text into the conversation engine and deliver the reply.
type TurnHandler func(ctx context.Context, callID, text string)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithFlushThreshold overrides the flush threshold in bytes.
func WithFlushThreshold(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.threshold = n
		}
	}
}

// WithCorrector applies vocabulary correction to transcripts before they
// reach the turn handler.
func WithCorrector(c *phonetic.Corrector) Option {
	return func(p *Pipeline) { p.corrector = c }
}

// Pipeline is the per-call audio buffering stage. Safe for concurrent use.
type Pipeline struct {
	transcriber transcribe.Provider
	pool        *workerpool.Pool
	handler     TurnHandler
	corrector   *phonetic.Corrector
	logger      *slog.Logger
	threshold   int

	mu      sync.Mutex
	buffers map[string][]byte
}

// New builds a pipeline that transcribes on pool and forwards turns to
// handler.
func New(transcriber transcribe.Provider, pool *workerpool.Pool, handler TurnHandler, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		transcriber: transcriber,
		pool:        pool,
		handler:     handler,
		logger:      logger,
		threshold:   DefaultFlushThreshold,
		buffers:     make(map[string][]byte),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Ingest appends audio to the call's buffer and flushes it once the
// threshold is crossed. Ingest itself never blocks on transcription; it only
// waits when the worker pool is saturated, which is the backpressure point.
func (p *Pipeline) Ingest(ctx context.Context, callID string, audio []byte) error {
	p.mu.Lock()
	buf := append(p.buffers[callID], audio...)
	if len(buf) <= p.threshold {
		p.buffers[callID] = buf
		p.mu.Unlock()
		return nil
	}
	// Swap in a fresh buffer before releasing the lock so frames arriving
	// during transcription start clean.
	p.buffers[callID] = nil
	p.mu.Unlock()

	return p.submit(ctx, callID, buf)
}

// Flush submits whatever is buffered for callID regardless of size. A call
// with an empty buffer is a no-op.
func (p *Pipeline) Flush(ctx context.Context, callID string) error {
	p.mu.Lock()
	buf := p.buffers[callID]
	p.buffers[callID] = nil
	p.mu.Unlock()

	if len(buf) == 0 {
		return nil
	}
	return p.submit(ctx, callID, buf)
}

// Remove drops the buffer for a finished call.
func (p *Pipeline) Remove(callID string) {
	p.mu.Lock()
	delete(p.buffers, callID)
	p.mu.Unlock()
}

// submit schedules transcription of chunk on the worker pool.
func (p *Pipeline) submit(ctx context.Context, callID string, chunk []byte) error {
	return p.pool.Submit(ctx, func(jobCtx context.Context) {
		text, err := p.transcriber.Transcribe(jobCtx, chunk)
		if err != nil {
			p.logger.Error("transcription failed, dropping chunk",
				"call_id", callID, "bytes", len(chunk), "error", err)
			return
		}
		if text == "" {
			return
		}
		if p.corrector != nil {
			text = p.corrector.Correct(text)
		}
		p.handler(jobCtx, callID, text)
	})
}
