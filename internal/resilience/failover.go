package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/callsmith-ai/callsmith/pkg/provider/llm"
	"github.com/callsmith-ai/callsmith/pkg/provider/transcribe"
)

// ErrAllBackendsFailed is returned when every entry in a failover chain
// failed or was rejected by its breaker.
var ErrAllBackendsFailed = errors.New("all backends failed")

// backend pairs a provider with its breaker.
type backend[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Failover tries a chain of same-typed providers in order until one
// succeeds. Each entry has its own breaker so a flapping backend is skipped
// without probing it on every turn. Safe for concurrent use after all Add
// calls are done.
type Failover[T any] struct {
	backends []backend[T]
	cfg      BreakerConfig
	logger   *slog.Logger
}

// NewFailover creates a chain with primary first.
func NewFailover[T any](primaryName string, primary T, cfg BreakerConfig, logger *slog.Logger) *Failover[T] {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Failover[T]{cfg: cfg, logger: logger}
	f.Add(primaryName, primary)
	return f
}

// Add appends a fallback, tried after all earlier entries.
func (f *Failover[T]) Add(name string, value T) {
	cfg := f.cfg
	cfg.Name = name
	f.backends = append(f.backends, backend[T]{
		name:    name,
		value:   value,
		breaker: NewBreaker(cfg, f.logger),
	})
}

// Try runs fn against each backend in order until one succeeds. Entries with
// an open breaker are skipped. A package-level function because Go methods
// cannot introduce the result type parameter.
func Try[T, R any](f *Failover[T], fn func(T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range f.backends {
		be := &f.backends[i]
		var out R
		err := be.breaker.Do(func() error {
			var inner error
			out, inner = fn(be.value)
			return inner
		})
		if err == nil {
			return out, nil
		}
		lastErr = err
		if errors.Is(err, ErrBreakerOpen) {
			f.logger.Debug("skipping backend, breaker open", "backend", be.name)
		} else {
			f.logger.Warn("backend failed, trying next", "backend", be.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrAllBackendsFailed, lastErr)
}

// LLM adapts a Failover of llm.Provider back into an llm.Provider, so the
// engine and summary generator stay unaware of failover entirely.
type LLM struct {
	chain *Failover[llm.Provider]
}

// NewLLM wraps chain as a provider.
func NewLLM(chain *Failover[llm.Provider]) *LLM {
	return &LLM{chain: chain}
}

// Complete implements llm.Provider.
func (l *LLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Try(l.chain, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Ensure LLM implements llm.Provider at compile time.
var _ llm.Provider = (*LLM)(nil)

// Transcriber adapts a Failover of transcribe.Provider back into a
// transcribe.Provider for the audio ingest pipeline.
type Transcriber struct {
	chain *Failover[transcribe.Provider]
}

// NewTranscriber wraps chain as a provider.
func NewTranscriber(chain *Failover[transcribe.Provider]) *Transcriber {
	return &Transcriber{chain: chain}
}

// Transcribe implements transcribe.Provider.
func (t *Transcriber) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	return Try(t.chain, func(p transcribe.Provider) (string, error) {
		return p.Transcribe(ctx, pcm)
	})
}

// Ensure Transcriber implements transcribe.Provider at compile time.
var _ transcribe.Provider = (*Transcriber)(nil)
