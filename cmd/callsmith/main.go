// Command callsmith is the main entry point for the Callsmith call server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/callsmith-ai/callsmith/internal/app"
	"github.com/callsmith-ai/callsmith/internal/config"
	"github.com/callsmith-ai/callsmith/internal/observe"
	"github.com/callsmith-ai/callsmith/internal/resilience"
	"github.com/callsmith-ai/callsmith/pkg/provider/embeddings"
	ollamaembed "github.com/callsmith-ai/callsmith/pkg/provider/embeddings/ollama"
	oaembed "github.com/callsmith-ai/callsmith/pkg/provider/embeddings/openai"
	"github.com/callsmith-ai/callsmith/pkg/provider/llm"
	"github.com/callsmith-ai/callsmith/pkg/provider/llm/anyllm"
	oallm "github.com/callsmith-ai/callsmith/pkg/provider/llm/openai"
	"github.com/callsmith-ai/callsmith/pkg/provider/transcribe"
	oatranscribe "github.com/callsmith-ai/callsmith/pkg/provider/transcribe/openai"
	"github.com/callsmith-ai/callsmith/pkg/provider/transcribe/whisper"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "callsmith: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "callsmith: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("callsmith starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Metrics and (optional) tracing.
	shutdownObserve, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise observability", "err", err)
		return 1
	}

	providers, err := buildProviders(cfg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if err := shutdownObserve(shutdownCtx); err != nil {
		slog.Warn("observability shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// ─── Provider wiring ──────────────────────────────────────────────────────────

// buildProviders instantiates all providers named in cfg and returns them in
// an [app.Providers] struct for the application to consume.
func buildProviders(cfg *config.Config) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := buildLLM(cfg.Providers.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		ps.LLM = p
		slog.Info("provider created", "kind", "llm", "name", name, "model", cfg.Providers.LLM.Model)

		// Optional fallback chain with per-backend circuit breakers.
		if len(cfg.Providers.LLMFallbacks) > 0 {
			chain := resilience.NewFailover[llm.Provider](name, p, resilience.BreakerConfig{Name: "llm"}, slog.Default())
			for _, fb := range cfg.Providers.LLMFallbacks {
				fp, err := buildLLM(fb)
				if err != nil {
					return nil, fmt.Errorf("create llm fallback %q: %w", fb.Name, err)
				}
				chain.Add(fb.Name, fp)
				slog.Info("provider created", "kind", "llm-fallback", "name", fb.Name, "model", fb.Model)
			}
			ps.LLM = resilience.NewLLM(chain)
		}
	}

	if name := cfg.Providers.Transcribe.Name; name != "" {
		p, err := buildTranscribe(cfg.Providers.Transcribe)
		if err != nil {
			return nil, fmt.Errorf("create transcribe provider %q: %w", name, err)
		}
		ps.Transcribe = p
		slog.Info("provider created", "kind", "transcribe", "name", name)

		if len(cfg.Providers.TranscribeFallbacks) > 0 {
			chain := resilience.NewFailover[transcribe.Provider](name, p, resilience.BreakerConfig{Name: "transcribe"}, slog.Default())
			for _, fb := range cfg.Providers.TranscribeFallbacks {
				fp, err := buildTranscribe(fb)
				if err != nil {
					return nil, fmt.Errorf("create transcribe fallback %q: %w", fb.Name, err)
				}
				chain.Add(fb.Name, fp)
				slog.Info("provider created", "kind", "transcribe-fallback", "name", fb.Name)
			}
			ps.Transcribe = resilience.NewTranscriber(chain)
		}
	}

	if name := cfg.Providers.Embeddings.Name; name != "" {
		p, err := buildEmbeddings(cfg.Providers.Embeddings)
		if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		}
		ps.Embeddings = p
		slog.Info("provider created", "kind", "embeddings", "name", name, "model", cfg.Providers.Embeddings.Model)
	}

	return ps, nil
}

func buildLLM(entry config.LLMConfig) (llm.Provider, error) {
	switch entry.Name {
	case "openai":
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	case "ollama":
		// Local server; BaseURL selects the address, no API key.
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	default:
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New(entry.Name, entry.Model, opts...)
	}
}

func buildTranscribe(entry config.TranscribeConfig) (transcribe.Provider, error) {
	switch entry.Name {
	case "whisper-native":
		var opts []whisper.Option
		if entry.Language != "" {
			opts = append(opts, whisper.WithLanguage(entry.Language))
		}
		return whisper.New(entry.ModelPath, opts...)
	case "openai":
		var opts []oatranscribe.Option
		if entry.Language != "" {
			opts = append(opts, oatranscribe.WithLanguage(entry.Language))
		}
		return oatranscribe.New(entry.APIKey, "", opts...)
	default:
		return nil, fmt.Errorf("unknown transcribe provider %q", entry.Name)
	}
}

func buildEmbeddings(entry config.EmbeddingsConfig) (embeddings.Provider, error) {
	switch entry.Name {
	case "openai":
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	case "ollama":
		return ollamaembed.New(entry.BaseURL, entry.Model)
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", entry.Name)
	}
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
