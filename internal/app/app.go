// Package app wires all Callsmith subsystems into a running call server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the transport surface until the context is
// cancelled, and Shutdown tears everything down in order.
//
// For testing, inject mock providers via the Providers struct and test
// doubles via functional options. When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/callsmith-ai/callsmith/internal/archive"
	"github.com/callsmith-ai/callsmith/internal/call"
	"github.com/callsmith-ai/callsmith/internal/config"
	"github.com/callsmith-ai/callsmith/internal/engine"
	"github.com/callsmith-ai/callsmith/internal/ingest"
	"github.com/callsmith-ai/callsmith/internal/knowledge"
	knowledgepg "github.com/callsmith-ai/callsmith/internal/knowledge/postgres"
	"github.com/callsmith-ai/callsmith/internal/lifecycle"
	"github.com/callsmith-ai/callsmith/internal/observe"
	"github.com/callsmith-ai/callsmith/internal/phonetic"
	"github.com/callsmith-ai/callsmith/internal/summary"
	"github.com/callsmith-ai/callsmith/internal/transport"
	"github.com/callsmith-ai/callsmith/internal/workerpool"
	"github.com/callsmith-ai/callsmith/pkg/provider/calendar"
	"github.com/callsmith-ai/callsmith/pkg/provider/crm"
	"github.com/callsmith-ai/callsmith/pkg/provider/embeddings"
	"github.com/callsmith-ai/callsmith/pkg/provider/llm"
	"github.com/callsmith-ai/callsmith/pkg/provider/transcribe"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config.
type Providers struct {
	LLM        llm.Provider
	Transcribe transcribe.Provider
	Embeddings embeddings.Provider
	Scheduler  calendar.Scheduler
	Leads      crm.Connector
}

// App owns all subsystem lifetimes and implements [transport.Service].
type App struct {
	cfg       *config.Config
	providers *Providers
	logger    *slog.Logger
	metrics   *observe.Metrics

	// Subsystems — initialised in New, torn down in Shutdown.
	registry    *call.Registry
	engine      *engine.Engine
	pool        *workerpool.Pool
	pipeline    *ingest.Pipeline
	summaries   *summary.Generator
	coordinator *lifecycle.Coordinator
	store       *knowledge.Store
	ingestor    *knowledge.Ingestor
	chunks      *knowledgepg.ChunkStore
	archive     *archive.Store

	// sinks maps call IDs to the reply sink of their media stream.
	sinks sync.Map

	httpServer *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithKnowledgeStore injects a knowledge store instead of creating one.
func WithKnowledgeStore(s *knowledge.Store) Option {
	return func(a *App) { a.store = s }
}

// WithRegistry injects a session registry instead of creating one from config.
func WithRegistry(r *call.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithArchive injects a call archive instead of connecting via config.
func WithArchive(s *archive.Store) Option {
	return func(a *App) { a.archive = s }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go. Use Option functions to inject test doubles.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		logger:    slog.Default(),
		metrics:   observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(a)
	}

	if providers.LLM == nil {
		return nil, errors.New("app: an LLM provider is required")
	}

	if err := a.initKnowledge(ctx); err != nil {
		return nil, fmt.Errorf("app: init knowledge: %w", err)
	}
	a.initSessions()
	a.initEngine()
	a.initPipeline()
	a.initLifecycle()
	if err := a.initArchive(ctx); err != nil {
		return nil, fmt.Errorf("app: init archive: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initKnowledge sets up the in-memory knowledge store, the retrieval path and
// the optional PostgreSQL persistence behind it.
func (a *App) initKnowledge(ctx context.Context) error {
	if a.store == nil {
		a.store = knowledge.NewStore()
	}

	if dsn := a.cfg.Storage.PostgresDSN; dsn != "" && a.providers.Embeddings != nil {
		dims := a.cfg.Knowledge.EmbeddingDimensions
		if dims <= 0 {
			dims = 1536
		}
		cs, err := knowledgepg.NewChunkStore(ctx, dsn, dims)
		if err != nil {
			return err
		}
		a.chunks = cs
		a.closers = append(a.closers, func() error {
			cs.Close()
			return nil
		})

		persisted, err := cs.Load(ctx)
		if err != nil {
			return fmt.Errorf("load persisted knowledge: %w", err)
		}
		if persisted.Len() > 0 {
			if err := a.store.Swap(persisted); err != nil {
				return err
			}
			slog.Info("restored knowledge base", "chunks", persisted.Len())
		}
	}

	a.ingestor = knowledge.NewIngestor(a.store, a.providers.Embeddings, a.logger, a.cfg.Knowledge.ChunkSize)
	return nil
}

// initSessions creates the registry with the configured or default prompt.
func (a *App) initSessions() {
	if a.registry != nil {
		return
	}
	prompt := a.cfg.Agent.SystemPrompt
	if prompt == "" {
		prompt = engine.DefaultSystemPrompt(time.Now())
	}
	a.registry = call.NewRegistry(prompt)
}

func (a *App) initEngine() {
	var retriever *knowledge.Retriever
	if a.providers.Embeddings != nil {
		retriever = knowledge.NewRetriever(a.store, a.providers.Embeddings)
	}

	var opts []engine.Option
	if a.cfg.Agent.MaxTokens > 0 {
		opts = append(opts, engine.WithMaxTokens(a.cfg.Agent.MaxTokens))
	}
	if a.cfg.Agent.ModelConcurrency > 0 {
		opts = append(opts, engine.WithModelConcurrency(a.cfg.Agent.ModelConcurrency))
	}
	a.engine = engine.New(a.providers.LLM, retriever, a.logger, opts...)
}

// initPipeline builds the worker pool and the audio ingest pipeline feeding
// transcribed turns back into the engine.
func (a *App) initPipeline() {
	workers := a.cfg.Ingest.Workers
	if workers <= 0 {
		workers = workerpool.DefaultSize
	}
	a.pool = workerpool.New(workers, a.logger)
	a.closers = append(a.closers, func() error {
		a.pool.Close()
		return nil
	})

	if a.providers.Transcribe == nil {
		slog.Warn("no transcription provider configured; streamed audio will be dropped")
		return
	}

	var opts []ingest.Option
	if a.cfg.Ingest.FlushThresholdBytes > 0 {
		opts = append(opts, ingest.WithFlushThreshold(a.cfg.Ingest.FlushThresholdBytes))
	}
	if vocab := a.cfg.Agent.Vocabulary; len(vocab) > 0 {
		opts = append(opts, ingest.WithCorrector(phonetic.NewCorrector(vocab)))
	}
	a.pipeline = ingest.New(a.providers.Transcribe, a.pool, a.handleTurn, a.logger, opts...)
}

func (a *App) initLifecycle() {
	a.summaries = summary.NewGenerator(a.providers.LLM, a.logger)
	a.coordinator = lifecycle.New(a.summaries, a.providers.Scheduler, a.providers.Leads, a.logger)
}

func (a *App) initArchive(ctx context.Context) error {
	if a.archive != nil {
		return nil
	}
	dsn := a.cfg.Storage.PostgresDSN
	if dsn == "" {
		return nil
	}
	store, err := archive.NewStore(ctx, dsn)
	if err != nil {
		return err
	}
	a.archive = store
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	return nil
}

// ─── Run / Shutdown ──────────────────────────────────────────────────────────

// Run serves the HTTP and websocket surface until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}

	srv := transport.NewServer(a, a.logger, a.metrics)
	a.httpServer = &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", addr)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops the HTTP server and runs closers in order. Safe to call
// more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.httpServer != nil {
			if err := a.httpServer.Shutdown(ctx); err != nil {
				slog.Warn("http shutdown error", "err", err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
